// Package loader discovers pitch decks in a source directory.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// Loader scans one directory for documents with a recognized extension.
type Loader struct {
	source    string
	extension string
	logger    *observability.Logger
}

// New creates a loader for the given directory. Extension matching is
// case-insensitive; an empty extension defaults to ".pdf".
func New(source, extension string, logger *observability.Logger) *Loader {
	if extension == "" {
		extension = ".pdf"
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Loader{
		source:    source,
		extension: strings.ToLower(extension),
		logger:    logger.WithOperation("loader"),
	}
}

// Source returns the scanned directory.
func (l *Loader) Source() string {
	return l.source
}

// Discover lists candidate documents. A missing source directory is created
// and yields an empty result.
func (l *Loader) Discover(ctx context.Context) ([]domain.DocumentDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(l.source)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(l.source, 0o755); err != nil {
			return nil, domain.FilesystemError(fmt.Sprintf("create source directory %s", l.source), err)
		}
		l.logger.Info().Str("source", l.source).Msg("Created source folder, put PDF files inside")
		return []domain.DocumentDescriptor{}, nil
	}
	if err != nil {
		return nil, domain.FilesystemError(fmt.Sprintf("cannot access source %s", l.source), err)
	}
	if !info.IsDir() {
		return nil, domain.FilesystemError(fmt.Sprintf("source is not a directory: %s", l.source), nil)
	}

	entries, err := os.ReadDir(l.source)
	if err != nil {
		return nil, domain.FilesystemError(fmt.Sprintf("list source %s", l.source), err)
	}

	docs := make([]domain.DocumentDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), l.extension) {
			continue
		}
		docs = append(docs, Describe(filepath.Join(l.source, name)))
	}

	l.logger.Debug().Str("source", l.source).Int("documents", len(docs)).Msg("Discovery complete")
	return docs, nil
}

// Describe builds a descriptor for a single path. The identity is the file stem.
func Describe(path string) domain.DocumentDescriptor {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return domain.DocumentDescriptor{
		ID:       "local_" + stem,
		Identity: stem,
		Path:     path,
		Name:     name,
	}
}
