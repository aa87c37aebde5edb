package domain

import "image"

// PageImage is a single rendered page. Index is 0-based and matches the
// page's position in the source PDF. DPI is the resolution the page was
// rendered at; dividing pixel dimensions by DPI/72 recovers the page's
// physical size in PDF points.
type PageImage struct {
	Index int
	DPI   float64
	Image *image.RGBA
}

// PointSize returns the physical page dimensions in PDF points (1/72 inch).
func (p PageImage) PointSize() (width, height float64) {
	if p.Image == nil || p.DPI <= 0 {
		return 0, 0
	}
	scale := 72.0 / p.DPI
	b := p.Image.Bounds()
	return float64(b.Dx()) * scale, float64(b.Dy()) * scale
}

// WatermarkSpec describes the stamp drawn over every page. Only Text varies
// per request; the visual parameters come from configuration defaults.
type WatermarkSpec struct {
	Text       string
	Opacity    uint8   // alpha channel, 0..255
	AngleDeg   float64 // counter-clockwise rotation of the tile grid
	FontSizePt float64 // nominal size at 72 DPI, scaled by the page DPI
	SpacingPx  int     // tile spacing in pixels; defaults to one inch (DPI px)
}
