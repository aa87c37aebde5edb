package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
	"github.com/FYCodeLab/safeseal/internal/watermark"
)

// Options carries the fixed sealing parameters. They come from configuration
// at construction so concurrent pipeline instances stay isolated; nothing
// here changes per request except the watermark text.
type Options struct {
	DPI          int
	Opacity      uint8
	AngleDeg     float64
	FontSizePt   float64
	MaxTextRunes int
}

// Pipeline sequences the sealing stages: normalize, rasterize, stamp,
// assemble. The first failure of any stage propagates unchanged; on failure
// no partial output reaches the caller. Each stage owns its temporary
// resources, so nothing is left behind on any exit path.
type Pipeline struct {
	normalizer domain.Normalizer
	rasterizer domain.Rasterizer
	stamper    domain.PageStamper
	assembler  domain.Assembler
	opts       Options
	logger     *zap.Logger
}

// New wires the four stages into an orchestrator.
func New(
	normalizer domain.Normalizer,
	rasterizer domain.Rasterizer,
	stamper domain.PageStamper,
	assembler domain.Assembler,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	if opts.DPI <= 0 {
		opts.DPI = 120
	}
	if opts.Opacity == 0 {
		opts.Opacity = 60
	}
	if opts.FontSizePt <= 0 {
		opts.FontSizePt = 8
	}

	return &Pipeline{
		normalizer: normalizer,
		rasterizer: rasterizer,
		stamper:    stamper,
		assembler:  assembler,
		opts:       opts,
		logger:     logger,
	}
}

// Seal implements domain.Sealer.
func (p *Pipeline) Seal(ctx context.Context, doc *domain.SourceDocument, owner string) (*domain.SealedDocument, error) {
	// Fail fast on caller input before any stage acquires resources. The
	// whole point of sealing is the watermark, so a blank owner is an
	// error, not a no-op.
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: watermark owner must not be empty", domain.ErrInvalidInput)
	}
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}

	start := time.Now()
	p.logger.Info("seal started",
		zap.String("filename", doc.Filename),
		zap.String("format", string(doc.Format)),
		zap.Int("input_bytes", len(doc.Data)),
	)

	pdf, err := p.normalizer.Normalize(ctx, doc)
	if err != nil {
		return nil, err
	}

	pages, err := p.rasterizer.Rasterize(ctx, pdf, p.opts.DPI)
	if err != nil {
		return nil, err
	}

	spec := domain.WatermarkSpec{
		Text:       watermark.Truncate(strings.TrimSpace(owner), p.opts.MaxTextRunes),
		Opacity:    p.opts.Opacity,
		AngleDeg:   p.opts.AngleDeg,
		FontSizePt: p.opts.FontSizePt,
		SpacingPx:  p.opts.DPI,
	}

	stamped, err := p.stamper.StampPages(ctx, pages, spec)
	if err != nil {
		return nil, err
	}
	if len(stamped) != len(pages) {
		return nil, fmt.Errorf("page count changed during stamping: %d != %d", len(stamped), len(pages))
	}

	data, err := p.assembler.Assemble(ctx, stamped)
	if err != nil {
		return nil, err
	}

	sealed := &domain.SealedDocument{
		Name:      domain.SealedName(doc.Filename),
		Data:      data,
		PageCount: len(stamped),
	}

	p.logger.Info("seal finished",
		zap.String("filename", doc.Filename),
		zap.String("sealed_name", sealed.Name),
		zap.Int("pages", sealed.PageCount),
		zap.Int("output_bytes", len(sealed.Data)),
		zap.Duration("duration", time.Since(start)),
	)
	return sealed, nil
}

// Verify that Pipeline implements the domain interface
var _ domain.Sealer = (*Pipeline)(nil)
