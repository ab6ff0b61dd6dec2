package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

// Resolver turns a directory or a set of uploads into the ordered list of
// candidate documents.
type Resolver struct {
	steps  []Filter
	logger *zap.Logger
}

// NewResolver builds a resolver with the default filter chain.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		steps: []Filter{
			NewExtension(logger),
		},
		logger: logger,
	}
}

// Filters exposes the configured filter chain.
func (r *Resolver) Filters() []Filter {
	return r.steps
}

// Dir enumerates regular files directly inside dir in lexical order. Anything
// unsupported is skipped; an empty result is not an error. Empty or oversized
// files are kept so they surface as failed items.
func (r *Resolver) Dir(ctx context.Context, dir string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %q: %w", dir, err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		refs = append(refs, Ref{Name: entry.Name(), Path: path, Size: info.Size()})
	}

	refs = runFilters(r.logger, r.steps, refs)

	r.logger.Info("resolved documents",
		zap.String("dir", dir),
		zap.Int("entries", len(entries)),
		zap.Int("documents", len(refs)),
	)

	return refs, nil
}

// Uploads resolves received files, preserving upload order.
func (r *Resolver) Uploads(files []Upload) []Ref {
	refs := make([]Ref, 0, len(files))
	for _, file := range files {
		name := utils.BaseName(file.Name)
		if name == "" {
			continue
		}
		refs = append(refs, NewRef(name, file.Data))
	}

	refs = runFilters(r.logger, r.steps, refs)

	r.logger.Info("resolved uploads",
		zap.Int("uploads", len(files)),
		zap.Int("documents", len(refs)),
	)

	return refs
}
