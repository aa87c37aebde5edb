package domain

import "context"

// JobRepository defines the interface for seal job history persistence
type JobRepository interface {
	// Create stores a new job record
	Create(ctx context.Context, job *SealJob) error

	// Update replaces an existing job record
	Update(ctx context.Context, job *SealJob) error

	// GetByID retrieves a job record by ID
	GetByID(ctx context.Context, id string) (*SealJob, error)

	// ListWithPagination retrieves job records with pagination, newest first
	ListWithPagination(ctx context.Context, params PaginationParams) (*PaginatedResult, error)
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the backing store connection is healthy
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/namespaces exist
	EnsureCollections(ctx context.Context) error
}
