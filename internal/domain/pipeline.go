package domain

import "context"

// Normalizer turns an arbitrary supported document into a PDF.
type Normalizer interface {
	// Normalize returns the input bytes unchanged for PDF input, otherwise
	// runs the external conversion engine. Fails with *ConversionError.
	Normalize(ctx context.Context, doc *SourceDocument) (NormalizedPDF, error)
}

// Rasterizer renders every page of a PDF to a bitmap.
type Rasterizer interface {
	// Rasterize returns one PageImage per page, in document order, rendered
	// at the given resolution. Fails with *MalformedDocumentError when the
	// buffer is not a parseable PDF.
	Rasterize(ctx context.Context, pdf NormalizedPDF, dpi int) ([]PageImage, error)
}

// Compositor draws the watermark over a single page image.
type Compositor interface {
	// Stamp returns a new image with the tiled watermark applied. The input
	// image is not mutated. Stamping is deterministic: identical inputs
	// yield pixel-identical output. An empty watermark text is a no-op.
	Stamp(img PageImage, spec WatermarkSpec) (PageImage, error)
}

// PageStamper applies the watermark to an ordered sequence of pages,
// possibly in parallel, preserving input order in the result.
type PageStamper interface {
	StampPages(ctx context.Context, pages []PageImage, spec WatermarkSpec) ([]PageImage, error)
}

// Assembler serializes watermarked pages back into a single PDF.
type Assembler interface {
	// Assemble builds an image-only PDF with one page per input image, each
	// page sized to the original physical dimensions. Fails with
	// ErrEmptyDocument on zero pages.
	Assemble(ctx context.Context, pages []PageImage) ([]byte, error)
}

// Sealer runs the whole pipeline: normalize, rasterize, stamp, assemble.
type Sealer interface {
	Seal(ctx context.Context, doc *SourceDocument, owner string) (*SealedDocument, error)
}
