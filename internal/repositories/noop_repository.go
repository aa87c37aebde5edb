package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// NoopJobRepository is used when no job store DSN is configured. Sealing
// itself owns no persistent state, so the service runs fine without a
// database; job records are only logged.
type NoopJobRepository struct {
	logger *zap.Logger
}

// NewNoopJobRepository creates a log-only job repository.
func NewNoopJobRepository(logger *zap.Logger) *NoopJobRepository {
	return &NoopJobRepository{logger: logger}
}

// Create logs the job record (implements domain.JobRepository).
func (r *NoopJobRepository) Create(ctx context.Context, job *domain.SealJob) error {
	r.logger.Info("seal job started",
		zap.String("job_id", job.ID),
		zap.String("filename", job.Filename),
		zap.String("format", job.Format),
	)
	return nil
}

// Update logs the job outcome (implements domain.JobRepository).
func (r *NoopJobRepository) Update(ctx context.Context, job *domain.SealJob) error {
	r.logger.Info("seal job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("pages", job.PageCount),
		zap.Int64("duration_ms", job.DurationMS),
	)
	return nil
}

// GetByID always reports the job as unknown (implements domain.JobRepository).
func (r *NoopJobRepository) GetByID(ctx context.Context, id string) (*domain.SealJob, error) {
	return nil, fmt.Errorf("%w: %s (job history is disabled)", domain.ErrJobNotFound, id)
}

// ListWithPagination returns an empty page (implements domain.JobRepository).
func (r *NoopJobRepository) ListWithPagination(ctx context.Context, params domain.PaginationParams) (*domain.PaginatedResult, error) {
	return &domain.PaginatedResult{
		Items:  []*domain.SealJob{},
		Limit:  params.Limit,
		Offset: params.Offset,
	}, nil
}

// Verify interface compliance
var _ domain.JobRepository = (*NoopJobRepository)(nil)
