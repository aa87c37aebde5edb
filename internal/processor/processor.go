package processor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// StampTask represents a single page stamping task with index for ordering.
// Each task carries its caller's result channel so concurrent pipeline runs
// sharing the pool never mix up results.
type StampTask struct {
	Index   int
	Page    domain.PageImage
	Spec    domain.WatermarkSpec
	Results chan<- *StampResult
}

// StampResult represents a stamping result with index for ordering
type StampResult struct {
	Index int
	Page  domain.PageImage
	Err   error
}

// PagePool implements domain.PageStamper with a worker pool and order
// preservation. Page stamping is CPU-bound and independent per page, so the
// pool fans pages out to workers and rebuilds the original order from the
// task indices afterwards.
type PagePool struct {
	workers    int
	compositor domain.Compositor
	inputQueue chan *StampTask
	wg         sync.WaitGroup
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	// Shutdown management
	shutdownOnce sync.Once
}

// NewPagePool creates a new stamping pool around a compositor.
func NewPagePool(workers int, queueSize int, compositor domain.Compositor, logger *zap.Logger) *PagePool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PagePool{
		workers:    workers,
		compositor: compositor,
		inputQueue: make(chan *StampTask, queueSize),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker pool
func (p *PagePool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("page stamping pool started",
		zap.Int("workers", p.workers),
	)
}

// Stop stops the worker pool gracefully
func (p *PagePool) Stop() {
	p.shutdownOnce.Do(func() {
		p.cancel()
		close(p.inputQueue)
		p.wg.Wait()
		p.logger.Info("page stamping pool stopped")
	})
}

// StampPages stamps all pages preserving input order (implements
// domain.PageStamper). The first page error, in page order, is returned;
// pages are never silently skipped.
func (p *PagePool) StampPages(ctx context.Context, pages []domain.PageImage, spec domain.WatermarkSpec) ([]domain.PageImage, error) {
	if len(pages) == 0 {
		return []domain.PageImage{}, nil
	}

	results := make(chan *StampResult, len(pages))

	for i, page := range pages {
		task := &StampTask{
			Index:   i,
			Page:    page,
			Spec:    spec,
			Results: results,
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, p.ctx.Err()
		case p.inputQueue <- task:
			// Task queued
		}
	}

	// Collect results and rebuild input order from the indices.
	ordered := make([]*StampResult, len(pages))
	for collected := 0; collected < len(pages); collected++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, p.ctx.Err()
		case result := <-results:
			if result.Index < 0 || result.Index >= len(pages) {
				return nil, fmt.Errorf("stamping produced out-of-range index %d", result.Index)
			}
			ordered[result.Index] = result
		}
	}

	stamped := make([]domain.PageImage, len(pages))
	for i, result := range ordered {
		if result == nil {
			return nil, fmt.Errorf("missing stamping result for page %d", i)
		}
		if result.Err != nil {
			return nil, result.Err
		}
		stamped[i] = result.Page
	}

	return stamped, nil
}

// worker processes tasks from the input queue
func (p *PagePool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("stamping worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stamping worker stopping due to context cancellation",
				zap.Int("worker_id", id),
			)
			return
		case task, ok := <-p.inputQueue:
			if !ok {
				p.logger.Debug("stamping worker stopping due to closed input queue",
					zap.Int("worker_id", id),
				)
				return
			}

			page, err := p.compositor.Stamp(task.Page, task.Spec)

			result := &StampResult{
				Index: task.Index,
				Page:  page,
				Err:   err,
			}

			select {
			case <-p.ctx.Done():
				return
			case task.Results <- result:
				// Result delivered
			}
		}
	}
}

// Verify that PagePool implements domain.PageStamper interface
var _ domain.PageStamper = (*PagePool)(nil)
