package processor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// indexCompositor marks each page with its index so order can be checked
// after parallel stamping. A small sleep makes worker interleaving likely.
type indexCompositor struct {
	delay time.Duration
}

func (c *indexCompositor) Stamp(img domain.PageImage, spec domain.WatermarkSpec) (domain.PageImage, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	out := image.NewRGBA(image.Rect(0, 0, 1, 1))
	out.Pix[0] = uint8(img.Index)
	return domain.PageImage{Index: img.Index, DPI: img.DPI, Image: out}, nil
}

// failingCompositor fails on one specific page index
type failingCompositor struct {
	failAt int
}

func (c *failingCompositor) Stamp(img domain.PageImage, spec domain.WatermarkSpec) (domain.PageImage, error) {
	if img.Index == c.failAt {
		return domain.PageImage{}, &domain.RenderError{Reason: fmt.Sprintf("page %d broke", img.Index)}
	}
	return img, nil
}

func makePages(n int) []domain.PageImage {
	pages := make([]domain.PageImage, n)
	for i := range pages {
		pages[i] = domain.PageImage{
			Index: i,
			DPI:   120,
			Image: image.NewRGBA(image.Rect(0, 0, 2, 2)),
		}
	}
	return pages
}

// TestPagePoolOrderPreservation tests that the pool preserves page order
func TestPagePoolOrderPreservation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(5, 100, &indexCompositor{delay: time.Millisecond}, logger)
	pool.Start()
	defer pool.Stop()

	pages := makePages(100)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stamped, err := pool.StampPages(ctx, pages, domain.WatermarkSpec{Text: "owner"})
	require.NoError(t, err)
	require.Len(t, stamped, 100)

	for i, page := range stamped {
		assert.Equal(t, i, page.Index, "order should be preserved at index %d", i)
		assert.Equal(t, uint8(i), page.Image.Pix[0], "page %d should carry its own stamp", i)
	}
}

// TestPagePoolConcurrentBatches tests that concurrent StampPages calls on a
// shared pool never mix up each other's results.
func TestPagePoolConcurrentBatches(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(10, 200, &indexCompositor{}, logger)
	pool.Start()
	defer pool.Stop()

	numBatches := 10
	batchSize := 20

	var wg sync.WaitGroup
	errs := make(chan error, numBatches)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	wg.Add(numBatches)
	for batch := 0; batch < numBatches; batch++ {
		go func(batch int) {
			defer wg.Done()

			stamped, err := pool.StampPages(ctx, makePages(batchSize), domain.WatermarkSpec{Text: "owner"})
			if err != nil {
				errs <- fmt.Errorf("batch %d: %w", batch, err)
				return
			}
			for i, page := range stamped {
				if page.Index != i {
					errs <- fmt.Errorf("batch %d: page %d out of order", batch, i)
					return
				}
			}
		}(batch)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

// TestPagePoolErrorPropagation tests that a page failure surfaces and no
// partial result is returned.
func TestPagePoolErrorPropagation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(4, 50, &failingCompositor{failAt: 7}, logger)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stamped, err := pool.StampPages(ctx, makePages(20), domain.WatermarkSpec{Text: "owner"})
	assert.Nil(t, stamped)

	var renderErr *domain.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Reason, "page 7")
}

// TestPagePoolEmptyInput tests the zero-page edge case
func TestPagePoolEmptyInput(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(2, 10, &indexCompositor{}, logger)
	pool.Start()
	defer pool.Stop()

	stamped, err := pool.StampPages(context.Background(), nil, domain.WatermarkSpec{Text: "owner"})
	require.NoError(t, err)
	assert.Empty(t, stamped)
}

// TestPagePoolContextCancellation tests that a cancelled caller context
// aborts the batch.
func TestPagePoolContextCancellation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(1, 5, &indexCompositor{delay: 50 * time.Millisecond}, logger)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.StampPages(ctx, makePages(10), domain.WatermarkSpec{Text: "owner"})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestPagePoolStopIdempotent tests that Stop can be called multiple times
func TestPagePoolStopIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := NewPagePool(2, 10, &indexCompositor{}, logger)
	pool.Start()

	pool.Stop()
	pool.Stop()
}
