package document

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat/docxtxt"
)

// docxText returns the text runs of word/document.xml.
func docxText(data []byte) (string, error) {
	text, err := docxtxt.BytesToStr(data)
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	return strings.TrimSpace(text), nil
}
