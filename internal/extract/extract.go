// Package extract turns resume documents into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-batch/internal/document"
	"go.uber.org/zap"
)

// ErrUnreadableDocument marks every extraction failure.
var ErrUnreadableDocument = errors.New("unreadable document")

// Extractor returns the plain text of a document.
type Extractor interface {
	Extract(ctx context.Context, ref document.Ref) (string, error)
}

// Reader handles one declared format.
type Reader interface {
	Read(ctx context.Context, ref document.Ref, data []byte) (string, error)
}

// Config holds the external tool locations and the accepted document size.
type Config struct {
	Pdftotext string
	Antiword  string
	// MaxSize rejects larger documents; zero means no limit.
	MaxSize int64
}

// Registry dispatches extraction by declared format.
type Registry struct {
	readers map[document.Format]Reader
	maxSize int64
	logger  *zap.Logger
}

// New returns a registry wired with the default readers.
func New(cfg Config, runner Runner, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Antiword == "" {
		cfg.Antiword = "antiword"
	}

	return &Registry{
		readers: map[document.Format]Reader{
			document.FormatPDF:  &commandReader{tool: cfg.Pdftotext, args: pdftotextArgs, runner: runner, logger: logger},
			document.FormatDOC:  &commandReader{tool: cfg.Antiword, args: antiwordArgs, runner: runner, logger: logger},
			document.FormatDOCX: docxReader{},
			document.FormatTXT:  textReader{},
			document.FormatRTF:  rtfReader{},
		},
		maxSize: cfg.MaxSize,
		logger:  logger,
	}
}

// Register overrides the reader for a format.
func (r *Registry) Register(format document.Format, reader Reader) {
	r.readers[format] = reader
}

// Extract reads the document and fails with ErrUnreadableDocument when the
// file is empty or too large, or the reader errors or produces only whitespace.
func (r *Registry) Extract(ctx context.Context, ref document.Ref) (string, error) {
	reader, ok := r.readers[ref.Format]
	if !ok {
		return "", fmt.Errorf("%w: unsupported format %q", ErrUnreadableDocument, ref.Format)
	}
	if r.maxSize > 0 && ref.Size > r.maxSize {
		return "", fmt.Errorf("%w: file is %d bytes, limit is %d", ErrUnreadableDocument, ref.Size, r.maxSize)
	}

	data, err := ref.Bytes()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnreadableDocument)
	}

	text, err := reader.Read(ctx, ref, data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, ref.Format, err)
	}

	text = normalize(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found in %s", ErrUnreadableDocument, ref.Name)
	}

	r.logger.Debug("extracted text",
		zap.String("document", ref.Name),
		zap.Int("chars", len([]rune(text))),
	)

	return text, nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
