package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// SealUsecase is the business logic around the sealing pipeline. It adds
// what the pipeline itself deliberately does not have:
// 1. A result cache keyed by content digest (identical upload, identical
//    owner and settings -> cached sealed bytes).
// 2. Load control via a semaphore rate limiter.
// 3. A job history record per run.
type SealUsecase struct {
	sealer domain.Sealer
	cache  domain.Cache
	jobs   domain.JobRepository
	logger *zap.Logger

	// Concurrency management
	wg          sync.WaitGroup
	rateLimiter *RateLimiter

	// Cache key ingredients besides the content: sealing output depends on
	// these settings, so they participate in the digest.
	dpi     int
	quality int
}

// RateLimiter is a simple semaphore-based load limiter. It never lets more
// than N seal operations run at once, protecting the conversion engine and
// the rasterizer from memory exhaustion under concurrent uploads.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter creates a limiter with a buffer of maxConcurrent slots.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire takes a slot, blocking until one frees up or the context is done.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release frees a slot for the next request.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
		// Guard against releasing an empty semaphore
	}
}

// NewSealUsecase wires the pipeline, cache and job history together.
func NewSealUsecase(
	sealer domain.Sealer,
	cache domain.Cache,
	jobs domain.JobRepository,
	logger *zap.Logger,
	maxConcurrentOps int,
	dpi int,
	quality int,
) *SealUsecase {
	if maxConcurrentOps < 1 {
		maxConcurrentOps = 10
	}

	return &SealUsecase{
		sealer:      sealer,
		cache:       cache,
		jobs:        jobs,
		logger:      logger,
		rateLimiter: NewRateLimiter(maxConcurrentOps),
		dpi:         dpi,
		quality:     quality,
	}
}

// Seal runs the sealing pipeline for one upload.
func (u *SealUsecase) Seal(ctx context.Context, doc *domain.SourceDocument, owner string) (*domain.SealedDocument, error) {
	// Input validation happens before any resource is acquired and before
	// a job record exists: bad input is not a pipeline run.
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: watermark owner must not be empty", domain.ErrInvalidInput)
	}
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}

	cacheKey := u.cacheKey(doc, owner)

	// Fast path: identical upload sealed before and still cached.
	if cached, ok := u.cache.Get(ctx, cacheKey); ok {
		u.logger.Debug("seal cache hit",
			zap.String("filename", doc.Filename),
			zap.String("key", cacheKey[:12]),
		)
		return cached, nil
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("seal capacity exceeded: %w", err)
	}
	defer u.rateLimiter.Release()

	job := u.startJob(ctx, doc, owner)

	sealed, err := u.sealer.Seal(ctx, doc, owner)
	if err != nil {
		u.finishJob(job, nil, err)
		return nil, err
	}
	u.finishJob(job, sealed, nil)

	// Cache asynchronously so the caller gets the bytes without waiting.
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := u.cache.Set(cacheCtx, cacheKey, sealed); err != nil {
			u.logger.Warn("failed to cache sealed document",
				zap.String("filename", doc.Filename),
				zap.Error(err),
			)
		}
	}()

	return sealed, nil
}

// GetJob returns a single job record.
func (u *SealUsecase) GetJob(ctx context.Context, id string) (*domain.SealJob, error) {
	return u.jobs.GetByID(ctx, id)
}

// ListJobs returns paginated job history, newest first.
func (u *SealUsecase) ListJobs(ctx context.Context, params domain.PaginationParams) (*domain.PaginatedResult, error) {
	return u.jobs.ListWithPagination(ctx, params)
}

// Shutdown waits for background cache writes and job updates to finish.
func (u *SealUsecase) Shutdown() {
	u.wg.Wait()
}

// cacheKey digests everything the sealed output depends on.
func (u *SealUsecase) cacheKey(doc *domain.SourceDocument, owner string) string {
	h := sha256.New()
	h.Write(doc.Data)
	fmt.Fprintf(h, "|%s|%s|%d|%d", owner, doc.Format, u.dpi, u.quality)
	return hex.EncodeToString(h.Sum(nil))
}

// startJob records the beginning of a pipeline run. History is best-effort:
// a broken job store must not block sealing.
func (u *SealUsecase) startJob(ctx context.Context, doc *domain.SourceDocument, owner string) *domain.SealJob {
	job := &domain.SealJob{
		ID:        uuid.New().String(),
		Filename:  doc.Filename,
		Owner:     owner,
		Format:    string(doc.Format),
		Status:    domain.JobStatusRunning,
		CreatedAt: time.Now(),
	}

	if err := u.jobs.Create(ctx, job); err != nil {
		u.logger.Warn("failed to record seal job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	return job
}

// finishJob updates the job record with the run outcome.
func (u *SealUsecase) finishJob(job *domain.SealJob, sealed *domain.SealedDocument, runErr error) {
	job.FinishedAt = time.Now()
	job.DurationMS = job.FinishedAt.Sub(job.CreatedAt).Milliseconds()

	if runErr != nil {
		job.Status = domain.JobStatusFailed
		job.Error = runErr.Error()
	} else {
		job.Status = domain.JobStatusSucceeded
		job.PageCount = sealed.PageCount
		job.SealedName = sealed.Name
	}

	// Short independent timeout: the run itself is already over, the
	// history update must not hang the response.
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.jobs.Update(updateCtx, job); err != nil {
		u.logger.Warn("failed to update seal job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
