package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// Normalizer is the first pipeline stage: it guarantees PDF input for the
// rasterizer. PDF uploads pass through untouched; everything else goes
// through the conversion engine via a scoped temporary directory.
type Normalizer struct {
	engine Engine
	logger *zap.Logger
}

// NewNormalizer creates a normalizer around a conversion engine.
func NewNormalizer(engine Engine, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		engine: engine,
		logger: logger,
	}
}

// Normalize implements domain.Normalizer.
func (n *Normalizer) Normalize(ctx context.Context, doc *domain.SourceDocument) (domain.NormalizedPDF, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}

	// Identity transform: PDF in, same bytes out. No re-encoding.
	if doc.Format.IsPDF() {
		n.logger.Debug("input is PDF, skipping conversion",
			zap.String("filename", doc.Filename),
		)
		return domain.NormalizedPDF(doc.Data), nil
	}

	// All conversion artifacts live in one temp dir that is removed on
	// every exit path.
	tmpDir, err := os.MkdirTemp("", "safeseal-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, sanitizeFilename(doc.Filename))
	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(inPath, doc.Data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	producedPath, err := n.engine.ConvertToPDF(ctx, inPath, outDir)
	if err != nil {
		return nil, n.conversionError(doc.Format, err)
	}

	pdf, err := os.ReadFile(producedPath)
	if err != nil {
		return nil, n.conversionError(doc.Format, err)
	}

	n.logger.Info("document converted to PDF",
		zap.String("filename", doc.Filename),
		zap.String("format", string(doc.Format)),
		zap.Int("pdf_bytes", len(pdf)),
	)
	return domain.NormalizedPDF(pdf), nil
}

// conversionError wraps an engine failure into the domain taxonomy,
// preserving any captured diagnostic output.
func (n *Normalizer) conversionError(format domain.Format, err error) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return &domain.ConversionError{Format: format, Output: ee.Output, Err: ee.Err}
	}
	return &domain.ConversionError{Format: format, Err: err}
}

// sanitizeFilename strips any path components from an upload name. The
// extension is kept because the engine uses it for format detection.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "upload"
	}
	return base
}

// Verify that Normalizer implements the domain interface
var _ domain.Normalizer = (*Normalizer)(nil)
