package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
	"github.com/spherical/deck-evaluator/internal/pdf"
)

// DefaultMaxPages bounds how much of a deck is read.
const DefaultMaxPages = 6

// Config holds Extract stage settings
type Config struct {
	MaxPages int
	DPI      float64
	Strategy pdf.AssetStrategy
}

// Service is the Extract stage: page text plus one rendered asset per page
type Service struct {
	opener pdf.Opener
	config Config
	logger *observability.Logger
}

// NewService creates a new extraction service
func NewService(opener pdf.Opener, cfg Config, logger *observability.Logger) *Service {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 100
	}
	if cfg.Strategy == nil {
		cfg.Strategy = pdf.PNGStrategy{}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		opener: opener,
		config: cfg,
		logger: logger.WithOperation("extract"),
	}
}

// Extract reads at most MaxPages pages of state.SourcePath. Assets are
// written to state.ScratchDir as slide_<index>.<ext>; re-running overwrites them.
func (s *Service) Extract(ctx context.Context, state domain.EvaluationState) (*domain.Extraction, error) {
	logger := s.logger.WithDocument(state.Identity)

	doc, err := s.opener.Open(state.SourcePath)
	if err != nil {
		if domain.IsErrorType(err, domain.ErrorTypeDocumentParse) {
			return nil, err
		}
		return nil, domain.DocumentParseError(fmt.Sprintf("cannot open %s", state.SourcePath), err)
	}
	defer doc.Close()

	if err := os.MkdirAll(state.ScratchDir, 0o755); err != nil {
		return nil, domain.FilesystemError("Failed to create scratch directory", err)
	}

	pages := doc.NumPage()
	if pages > s.config.MaxPages {
		logger.Debug().Int("pages", pages).Int("max_pages", s.config.MaxPages).Msg("Truncating document")
		pages = s.config.MaxPages
	}

	var text strings.Builder
	assets := make([]string, 0, pages)

	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageText, err := doc.Text(i)
		if err != nil {
			return nil, asParseError(fmt.Sprintf("page %d text", i+1), err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")

		assetPath, err := s.writeAsset(doc, i, state.ScratchDir)
		if err != nil {
			return nil, err
		}
		assets = append(assets, assetPath)
	}

	logger.Info().Int("pages", pages).Int("assets", len(assets)).Msg("Extraction complete")

	return &domain.Extraction{
		RawText:    text.String(),
		AssetPaths: assets,
		PageCount:  pages,
	}, nil
}

// writeAsset renders one page and encodes it with the configured strategy
func (s *Service) writeAsset(doc pdf.Document, page int, dir string) (string, error) {
	img, err := doc.Render(page, s.config.DPI)
	if err != nil {
		return "", asParseError(fmt.Sprintf("page %d render", page+1), err)
	}

	path := AssetPath(dir, page, s.config.Strategy.Extension())
	file, err := os.Create(path)
	if err != nil {
		return "", domain.FilesystemError(fmt.Sprintf("Failed to create asset for page %d", page+1), err)
	}

	err = s.config.Strategy.Encode(file, img)
	closeErr := file.Close()
	if err != nil {
		return "", domain.FilesystemError(fmt.Sprintf("Failed to encode page %d", page+1), err)
	}
	if closeErr != nil {
		return "", domain.FilesystemError(fmt.Sprintf("Failed to write page %d", page+1), closeErr)
	}

	return path, nil
}

// AssetPath returns the deterministic asset location for a page index.
func AssetPath(dir string, page int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("slide_%d.%s", page, ext))
}

func asParseError(message string, err error) error {
	if domain.IsErrorType(err, domain.ErrorTypeDocumentParse) {
		return err
	}
	return domain.DocumentParseError(message, err)
}
