package extract

import (
	"archive/zip"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// epubFile extracts text from every XHTML document in the EPUB container.
// Documents are visited in archive path order, which matches spine order
// for the common numbered-file layout.
func epubFile(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	var docs []*zip.File
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			docs = append(docs, f)
		}
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no documents found in %s", path)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	var sb strings.Builder
	for _, f := range docs {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("opening %s in %s: %w", f.Name, path, err)
		}
		doc, err := html.Parse(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("parsing %s in %s: %w", f.Name, path, err)
		}
		collectText(doc, &sb)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// collectText appends the visible text of the document, skipping script
// and style subtrees.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "head":
			return
		case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li":
			sb.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
