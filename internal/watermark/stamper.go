package watermark

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// Tile fill color. Light gray keeps the underlying content legible; the
// alpha channel comes from the WatermarkSpec.
const (
	fillRed   = 180
	fillGreen = 180
	fillBlue  = 180

	// minFontPx is the floor for the scaled font size so the stamp stays
	// legible at low rendering resolutions.
	minFontPx = 6
)

// TiledStamper draws a repeating, rotated, semi-transparent text pattern
// across a page image. Stamping is deterministic: no time, randomness or
// shared mutable state participates in rendering.
type TiledStamper struct {
	font *truetype.Font
}

// NewTiledStamper parses the embedded typeface once and reuses it for every
// stamp.
func NewTiledStamper() (*TiledStamper, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark font: %w", err)
	}
	return &TiledStamper{font: f}, nil
}

// Stamp implements domain.Compositor. The input image is copied before
// drawing, so the caller's PageImage is never mutated.
func (s *TiledStamper) Stamp(img domain.PageImage, spec domain.WatermarkSpec) (domain.PageImage, error) {
	if img.Image == nil {
		return domain.PageImage{}, &domain.RenderError{Reason: "nil page image"}
	}

	bounds := img.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return domain.PageImage{}, &domain.RenderError{
			Reason: fmt.Sprintf("zero-area page image (%dx%d)", w, h),
		}
	}

	// Empty watermark text is an explicit no-op. The orchestrator rejects
	// empty owners before this point; a pass-through here keeps the
	// component total.
	if strings.TrimSpace(spec.Text) == "" {
		return img, nil
	}

	out := cloneRGBA(img.Image)

	fontPx := scaledFontPx(spec.FontSizePt, img.DPI)
	face := truetype.NewFace(s.font, &truetype.Options{
		Size:    float64(fontPx),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	defer face.Close()

	spacing := spec.SpacingPx
	if spacing <= 0 {
		// Default tile pitch: one inch at the page's rendering resolution.
		spacing = int(math.Round(img.DPI))
		if spacing < 1 {
			spacing = 72
		}
	}

	dc := gg.NewContextForRGBA(out)
	dc.RotateAbout(gg.Radians(spec.AngleDeg), float64(w)/2, float64(h)/2)
	dc.SetFontFace(face)
	dc.SetRGBA255(fillRed, fillGreen, fillBlue, int(spec.Opacity))

	// Tile well past the page on every side so the rotated grid still
	// covers the corners.
	for y := -h; y < 2*h; y += spacing {
		for x := -w; x < 2*w; x += spacing {
			dc.DrawString(spec.Text, float64(x), float64(y))
		}
	}

	return domain.PageImage{Index: img.Index, DPI: img.DPI, Image: out}, nil
}

// scaledFontPx converts the nominal point size into pixels at the page's
// rendering resolution, with a legibility floor.
func scaledFontPx(sizePt, dpi float64) int {
	if sizePt <= 0 {
		sizePt = 8
	}
	if dpi <= 0 {
		dpi = 72
	}
	px := int(math.Round(sizePt * dpi / 72.0))
	if px < minFontPx {
		px = minFontPx
	}
	return px
}

// cloneRGBA returns a deep copy of an RGBA image.
func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// Truncate limits watermark text to max runes. This is the documented policy
// for over-long owner names: the stamp must tile densely, and a multi-line
// wrap would break the fixed grid.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// Verify that TiledStamper implements the domain interface
var _ domain.Compositor = (*TiledStamper)(nil)
