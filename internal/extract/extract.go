// Package extract turns input files into plain text for the pipeline.
// Supported formats: .txt, .pdf, .epub.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file types the extractor cannot
// handle.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Text extracts plain text from the file at path, dispatching on its
// extension.
func Text(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md":
		return textFile(path)
	case ".pdf":
		return pdfFile(path)
	case ".epub":
		return epubFile(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func textFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
