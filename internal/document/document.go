// Package document fetches uploaded files and extracts their text.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var ErrUnsupported = errors.New("unsupported document type: only PDF and Word (.docx) files are accepted")

// Kind resolves the content type of an upload from its declared type, falling
// back to the file extension. Unknown kinds return "".
func Kind(name, contentType string) string {
	switch contentType {
	case ContentTypePDF, ContentTypeDOCX:
		return contentType
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ContentTypePDF
	case ".docx":
		return ContentTypeDOCX
	}
	return ""
}

// Extract returns the plain text of a PDF or DOCX document.
func Extract(data []byte, name, contentType string) (string, error) {
	var (
		text string
		err  error
	)
	switch Kind(name, contentType) {
	case ContentTypePDF:
		text, err = pdfText(data)
	case ContentTypeDOCX:
		text, err = docxText(data)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return text, nil
}
