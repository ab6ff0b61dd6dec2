package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is the declared document format derived from the file extension.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
	FormatTXT  Format = "txt"
	FormatRTF  Format = "rtf"
)

var formats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".doc":  FormatDOC,
	".txt":  FormatTXT,
	".rtf":  FormatRTF,
}

// FormatFromName returns the declared format for a filename. Matching is case-insensitive.
func FormatFromName(name string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// SupportedExtensions lists the accepted extensions, dot included.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".doc", ".txt", ".rtf"}
}

// Ref identifies one candidate document. It is immutable once resolved and
// safe to share between goroutines.
type Ref struct {
	// Name is the display name, the base filename.
	Name string `json:"filename"`
	// Path is set for documents discovered on disk.
	Path   string `json:"path,omitempty"`
	Format Format `json:"format"`
	Size   int64  `json:"size"`

	data []byte
}

// NewRef builds an in-memory reference. The caller must not modify data afterwards.
func NewRef(name string, data []byte) Ref {
	if data == nil {
		data = []byte{}
	}
	format, _ := FormatFromName(name)
	return Ref{Name: name, Format: format, Size: int64(len(data)), data: data}
}

// Bytes returns the document content, reading it from disk for path-backed references.
// The returned slice must be treated as read-only.
func (r Ref) Bytes() ([]byte, error) {
	if r.data != nil {
		return r.data, nil
	}
	if r.Path == "" {
		return nil, fmt.Errorf("document %q has no content", r.Name)
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name, err)
	}
	return data, nil
}

// InMemory reports whether the content is held by the reference itself.
func (r Ref) InMemory() bool {
	return r.data != nil
}

// Upload is a received file before resolution.
type Upload struct {
	Name string
	Data []byte
}
