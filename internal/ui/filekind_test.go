package ui

import "testing"

func TestFileKind(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", "pdf"},
		{"photo.JPG", "image"},
		{"photo.jpeg", "image"},
		{"logo.png", "image"},
		{"anim.gif", "image"},
		{"letter.doc", "word"},
		{"letter.docx", "word"},
		{"notes.txt", "text"},
		{"archive.zip", "file"},
		{"noextension", "file"},
	}
	for _, tt := range tests {
		if got := fileKind(tt.name); got != tt.want {
			t.Errorf("fileKind(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
