package rasterizer

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// FitzRasterizer renders PDF pages to RGBA bitmaps through MuPDF.
// The rendering is a pure read: the source buffer is never modified.
type FitzRasterizer struct {
	logger *zap.Logger
}

// New creates a MuPDF-backed rasterizer.
func New(logger *zap.Logger) *FitzRasterizer {
	return &FitzRasterizer{logger: logger}
}

// Rasterize implements domain.Rasterizer. Pages are rendered eagerly and
// sequentially: a MuPDF document handle is not safe to share across
// goroutines, and the compositor pool needs the full page set anyway.
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdf domain.NormalizedPDF, dpi int) ([]domain.PageImage, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("rasterize: dpi must be positive, got %d", dpi)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, &domain.MalformedDocumentError{Err: err}
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, &domain.MalformedDocumentError{Err: fmt.Errorf("PDF contains no pages")}
	}

	pages := make([]domain.PageImage, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			// A page that fails to render means the buffer is defective,
			// typically broken conversion output. Never skip a page.
			return nil, &domain.MalformedDocumentError{
				Err: fmt.Errorf("failed to render page %d: %w", i, err),
			}
		}

		pages = append(pages, domain.PageImage{
			Index: i,
			DPI:   float64(dpi),
			Image: img,
		})
	}

	r.logger.Debug("document rasterized",
		zap.Int("pages", total),
		zap.Int("dpi", dpi),
	)
	return pages, nil
}

// Verify that FitzRasterizer implements the domain interface
var _ domain.Rasterizer = (*FitzRasterizer)(nil)
