package watermark

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

func testSpec() domain.WatermarkSpec {
	return domain.WatermarkSpec{
		Text:       "ACME Corp",
		Opacity:    60,
		AngleDeg:   45,
		FontSizePt: 8,
		SpacingPx:  120,
	}
}

func whitePage(w, h int, dpi float64) domain.PageImage {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return domain.PageImage{Index: 0, DPI: dpi, Image: img}
}

// TestStampModifiesPixels verifies that stamping a non-empty text actually
// draws something onto the page.
func TestStampModifiesPixels(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	page := whitePage(400, 300, 120)

	stamped, err := stamper.Stamp(page, testSpec())
	require.NoError(t, err)
	require.NotNil(t, stamped.Image)

	assert.Equal(t, page.Image.Bounds(), stamped.Image.Bounds())
	assert.NotEqual(t, page.Image.Pix, stamped.Image.Pix, "stamp should change at least one pixel")
}

// TestStampDoesNotMutateInput verifies the input image survives stamping
// untouched.
func TestStampDoesNotMutateInput(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	page := whitePage(200, 200, 120)
	before := make([]uint8, len(page.Image.Pix))
	copy(before, page.Image.Pix)

	_, err = stamper.Stamp(page, testSpec())
	require.NoError(t, err)

	assert.True(t, bytes.Equal(before, page.Image.Pix), "input image must not be mutated")
}

// TestStampDeterministic verifies pixel-identical output for identical
// inputs.
func TestStampDeterministic(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	spec := testSpec()

	first, err := stamper.Stamp(whitePage(300, 240, 120), spec)
	require.NoError(t, err)
	second, err := stamper.Stamp(whitePage(300, 240, 120), spec)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.Image.Pix, second.Image.Pix), "stamping must be deterministic")
}

// TestStampEmptyTextIsNoOp verifies that blank watermark text passes the
// page through unchanged.
func TestStampEmptyTextIsNoOp(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	page := whitePage(100, 100, 120)

	for _, text := range []string{"", "   ", "\t\n"} {
		spec := testSpec()
		spec.Text = text

		stamped, err := stamper.Stamp(page, spec)
		require.NoError(t, err)
		assert.Same(t, page.Image, stamped.Image, "blank text must be a pass-through")
	}
}

// TestStampRejectsInvalidImages verifies nil and zero-area pages fail with a
// render error.
func TestStampRejectsInvalidImages(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	var renderErr *domain.RenderError

	_, err = stamper.Stamp(domain.PageImage{Index: 0, DPI: 120}, testSpec())
	assert.ErrorAs(t, err, &renderErr)

	empty := domain.PageImage{Index: 0, DPI: 120, Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	_, err = stamper.Stamp(empty, testSpec())
	assert.ErrorAs(t, err, &renderErr)
}

// TestStampCoversWholePage verifies the tiled grid reaches every quadrant of
// the page, including regions the rotation sweeps in from outside.
func TestStampCoversWholePage(t *testing.T) {
	stamper, err := NewTiledStamper()
	require.NoError(t, err)

	spec := testSpec()
	spec.Text = "OWNER OWNER OWNER"
	spec.Opacity = 255
	spec.SpacingPx = 40

	page := whitePage(400, 400, 120)
	stamped, err := stamper.Stamp(page, spec)
	require.NoError(t, err)

	quadrants := []image.Rectangle{
		image.Rect(0, 0, 200, 200),
		image.Rect(200, 0, 400, 200),
		image.Rect(0, 200, 200, 400),
		image.Rect(200, 200, 400, 400),
	}

	white := color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	for i, q := range quadrants {
		touched := false
		for y := q.Min.Y; y < q.Max.Y && !touched; y++ {
			for x := q.Min.X; x < q.Max.X; x++ {
				if stamped.Image.RGBAAt(x, y) != white {
					touched = true
					break
				}
			}
		}
		assert.True(t, touched, "quadrant %d should contain watermark pixels", i)
	}
}

// TestScaledFontPx tests DPI scaling and the legibility floor
func TestScaledFontPx(t *testing.T) {
	assert.Equal(t, 13, scaledFontPx(8, 120))
	assert.Equal(t, 8, scaledFontPx(8, 72))
	assert.Equal(t, 20, scaledFontPx(8, 180))
	// Floor kicks in at low resolutions
	assert.Equal(t, 6, scaledFontPx(8, 36))
	// Zero inputs fall back to defaults
	assert.Equal(t, 8, scaledFontPx(0, 0))
}

// TestTruncate tests the rune-based text limit
func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 64))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0), "non-positive max disables truncation")
	// Rune-aware, never splits a multi-byte character
	assert.Equal(t, "héllø", Truncate("héllø wörld", 5))
}
