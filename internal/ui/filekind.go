package ui

import (
	"path/filepath"
	"strings"
)

// fileKind maps a file name to the label shown next to a staged attachment.
func fileKind(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "pdf":
		return "pdf"
	case "jpg", "jpeg", "png", "gif":
		return "image"
	case "doc", "docx":
		return "word"
	case "txt":
		return "text"
	default:
		return "file"
	}
}
