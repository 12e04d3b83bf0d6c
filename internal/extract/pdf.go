package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfFile extracts the text of every page in order.
func pdfFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", path, err)
	}
	return sb.String(), nil
}
