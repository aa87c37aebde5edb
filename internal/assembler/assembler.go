package assembler

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// PDFAssembler serializes watermarked page images back into a single PDF.
// Every page is embedded as an opaque raster XObject scaled to fill a page
// of the original physical size, so the output carries no text layer at all.
type PDFAssembler struct {
	quality int
	conf    *model.Configuration
	logger  *zap.Logger
}

// New creates an assembler. quality is the JPEG quality (1..100) used for
// page compression.
func New(quality int, logger *zap.Logger) *PDFAssembler {
	if quality < 1 || quality > 100 {
		quality = 75
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFAssembler{
		quality: quality,
		conf:    conf,
		logger:  logger,
	}
}

// Assemble implements domain.Assembler. Page order in the output matches the
// input slice order exactly.
func (a *PDFAssembler) Assemble(ctx context.Context, pages []domain.PageImage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	singles := make([]io.ReadSeeker, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		single, err := a.buildPage(page)
		if err != nil {
			return nil, fmt.Errorf("failed to build page %d: %w", page.Index, err)
		}
		singles = append(singles, bytes.NewReader(single))
	}

	if len(singles) == 1 {
		var out bytes.Buffer
		if _, err := out.ReadFrom(singles[0]); err != nil {
			return nil, err
		}
		a.logPageStats(1, out.Len())
		return out.Bytes(), nil
	}

	var out bytes.Buffer
	if err := api.MergeRaw(singles, &out, false, a.conf); err != nil {
		return nil, fmt.Errorf("failed to merge pages: %w", err)
	}

	a.logPageStats(len(pages), out.Len())
	return out.Bytes(), nil
}

// buildPage encodes one page image as JPEG and wraps it into a single-page
// PDF whose media box matches the page's physical dimensions.
func (a *PDFAssembler) buildPage(page domain.PageImage) ([]byte, error) {
	if page.Image == nil {
		return nil, fmt.Errorf("nil page image")
	}

	widthPt, heightPt := page.PointSize()
	if widthPt <= 0 || heightPt <= 0 {
		return nil, fmt.Errorf("invalid page dimensions %.2fx%.2f pt", widthPt, heightPt)
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, page.Image, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encoding failed: %w", err)
	}

	// pos:full stretches the image over the whole page; dim restores the
	// source paper size from the pixel buffer and its DPI.
	desc := fmt.Sprintf("dim:%.2f %.2f, pos:full", widthPt, heightPt)
	imp, err := api.Import(desc, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("invalid import description: %w", err)
	}

	var pagePDF bytes.Buffer
	if err := api.ImportImages(nil, &pagePDF, []io.Reader{bytes.NewReader(jpg.Bytes())}, imp, a.conf); err != nil {
		return nil, fmt.Errorf("image import failed: %w", err)
	}
	return pagePDF.Bytes(), nil
}

func (a *PDFAssembler) logPageStats(pages, outBytes int) {
	a.logger.Debug("sealed PDF assembled",
		zap.Int("pages", pages),
		zap.Int("bytes", outBytes),
		zap.Int("jpeg_quality", a.quality),
	)
}

// Verify that PDFAssembler implements the domain interface
var _ domain.Assembler = (*PDFAssembler)(nil)
