// Package chunker splits plain text into ordered chunks for synthesis.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultTargetChars is the default chunk size budget.
const DefaultTargetChars = 300

// Splitter groups sentences into chunks up to a target character budget.
// Chunks preserve text order, never overlap, and together cover the whole
// input. A single sentence longer than the budget becomes its own chunk.
type Splitter struct {
	// TargetChars is the soft upper bound on chunk length.
	TargetChars int

	abbreviations map[string]bool
}

// New creates a splitter with the given target chunk size. A non-positive
// target uses DefaultTargetChars.
func New(targetChars int) *Splitter {
	if targetChars <= 0 {
		targetChars = DefaultTargetChars
	}
	return &Splitter{
		TargetChars:   targetChars,
		abbreviations: makeAbbreviationMap(),
	}
}

// Split divides text into ordered chunks. Whitespace-only input yields no
// chunks.
func (s *Splitter) Split(text string) []string {
	sentences := s.sentences(text)

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sentence) > s.TargetChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// sentences splits text at sentence-ending punctuation, keeping the
// punctuation with its sentence. Paragraph breaks always end a sentence.
func (s *Splitter) sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0

	flush := func(end int) {
		sentence := strings.TrimSpace(string(runes[start:end]))
		sentence = collapseWhitespace(sentence)
		if sentence != "" {
			out = append(out, sentence)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			end := i + 1
			for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
				end++
			}
			for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')' || runes[end] == ']') {
				end++
			}
			if s.isSentenceEnd(runes, i, end) {
				flush(end)
				i = end - 1
			} else {
				i = end - 1
			}
		case '\n':
			// A blank line ends the sentence even without punctuation.
			if i+1 < len(runes) && runes[i+1] == '\n' {
				flush(i)
			}
		}
	}
	flush(len(runes))
	return out
}

// isSentenceEnd decides whether the punctuation at pos really terminates a
// sentence, guarding against abbreviations, decimals, and ellipses.
func (s *Splitter) isSentenceEnd(runes []rune, pos, after int) bool {
	punct := runes[pos]

	if punct == '.' {
		// Ellipsis is not a boundary.
		if pos+2 < len(runes) && runes[pos+1] == '.' && runes[pos+2] == '.' {
			return false
		}
		// Decimal numbers like 3.14.
		if pos > 0 && pos+1 < len(runes) && unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
			return false
		}
		// Known abbreviations: Mr., Dr., e.g., U.S.
		word := wordBefore(runes, pos)
		if word != "" {
			if s.abbreviations[word] || s.abbreviations[strings.TrimSuffix(word, ".")] {
				return false
			}
			if strings.Count(word, ".") > 0 {
				// Multi-part abbreviation already containing periods.
				return false
			}
		}
	}

	if after >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[after]) {
		return false
	}
	if punct == '!' || punct == '?' {
		return true
	}

	// A period needs the next word to look like a sentence start.
	next := after
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	return unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]) || runes[next] == '"' || runes[next] == '\''
}

// wordBefore returns the lowercased word immediately preceding runes[pos],
// excluding the punctuation at pos itself.
func wordBefore(runes []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	if start+1 >= pos {
		return ""
	}
	return strings.ToLower(string(runes[start+1 : pos]))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"inc", "ltd", "co", "corp",
		"i.e", "e.g", "etc", "vs", "cf", "al",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"u.s", "u.k", "u.n", "e.u",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi",
		"hr", "hrs", "min", "mins", "sec", "secs", "no", "vol", "pp",
	}
	m := make(map[string]bool, len(abbrevs))
	for _, a := range abbrevs {
		m[a] = true
	}
	return m
}
