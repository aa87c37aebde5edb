package repositories

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restream/reindexer/v4"
	// cproto is the RPC binding, faster than the HTTP one.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

const (
	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// HealthStatus holds the current state of the database connection, read by
// health checks without locks.
type HealthStatus struct {
	IsHealthy bool
	LastCheck time.Time
	LastError error
}

// ReindexerJobRepository persists seal job history in Reindexer. Job records
// are write-once-update-once and low traffic, so a single cproto connection
// (which multiplexes internally) is enough.
type ReindexerJobRepository struct {
	dsn       string
	namespace string
	logger    *zap.Logger

	mu sync.RWMutex
	db *reindexer.Reindexer

	// Atomic health status storage, see HealthStatus.
	healthStatus atomic.Value

	// Namespace creation happens once per process.
	collectionsInitialized bool
	collectionsMu          sync.Mutex
}

// NewReindexerJobRepository creates the repository and connects with retries.
func NewReindexerJobRepository(dsn, namespace string, logger *zap.Logger) (*ReindexerJobRepository, error) {
	if namespace == "" {
		namespace = "seal_jobs"
	}

	repo := &ReindexerJobRepository{
		dsn:       dsn,
		namespace: namespace,
		logger:    logger,
	}

	repo.healthStatus.Store(&HealthStatus{
		IsHealthy: false,
		LastCheck: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.connectWithRetry(ctx, defaultMaxRetries); err != nil {
		return nil, fmt.Errorf("failed to connect to job store: %w", err)
	}

	return repo, nil
}

// connectWithRetry retries the initial connection; the database may start
// slower than the service.
func (r *ReindexerJobRepository) connectWithRetry(ctx context.Context, maxRetries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("retrying job store connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if err := db.Status().Err; err != nil {
			lastErr = err
			db.Close()
			r.logger.Warn("job store connection test failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if r.db != nil {
			r.db.Close()
		}
		r.db = db

		r.updateHealthStatus(true, nil)
		r.logger.Info("connected to job store", zap.String("dsn", r.dsn))
		return nil
	}

	r.updateHealthStatus(false, lastErr)
	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// updateHealthStatus stores the health snapshot atomically.
func (r *ReindexerJobRepository) updateHealthStatus(isHealthy bool, err error) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy: isHealthy,
		LastCheck: time.Now(),
		LastError: err,
	})
}

// CheckConnection checks if the database connection is healthy (implements
// domain.HealthChecker).
func (r *ReindexerJobRepository) CheckConnection(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("job store connection not established")
	}

	if err := db.Status().Err; err != nil {
		r.updateHealthStatus(false, err)
		return err
	}

	r.updateHealthStatus(true, nil)
	return nil
}

// EnsureCollections ensures the jobs namespace exists, creating it on first
// use (implements domain.HealthChecker).
func (r *ReindexerJobRepository) EnsureCollections(ctx context.Context) error {
	// Fast path without locking.
	if r.collectionsInitialized {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()

	// Double-check after taking the lock.
	if r.collectionsInitialized {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("job store connection not established")
	}

	// The SealJob struct carries the schema via reindex tags.
	opts := reindexer.DefaultNamespaceOptions()
	if err := db.OpenNamespace(r.namespace, opts, domain.SealJob{}); err != nil {
		return fmt.Errorf("failed to open namespace: %w", err)
	}

	r.collectionsInitialized = true
	r.logger.Info("job store namespace ready", zap.String("namespace", r.namespace))
	return nil
}

// Create stores a new job record (implements domain.JobRepository).
func (r *ReindexerJobRepository) Create(ctx context.Context, job *domain.SealJob) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("failed to ensure collections: %w", err)
	}

	return r.upsert(ctx, job, "create")
}

// Update replaces an existing job record (implements domain.JobRepository).
func (r *ReindexerJobRepository) Update(ctx context.Context, job *domain.SealJob) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	return r.upsert(ctx, job, "update")
}

// upsert performs the shared Upsert path for Create and Update.
func (r *ReindexerJobRepository) upsert(ctx context.Context, job *domain.SealJob, op string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("job store connection not established")
	}

	if err := db.Upsert(r.namespace, job); err != nil {
		r.logger.Error("job store upsert failed",
			zap.String("op", op),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		r.updateHealthStatus(false, err)
		return fmt.Errorf("failed to store job: %w", err)
	}

	return nil
}

// GetByID retrieves a job record by ID (implements domain.JobRepository).
func (r *ReindexerJobRepository) GetByID(ctx context.Context, id string) (*domain.SealJob, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("job store connection not established")
	}

	query := db.Query(r.namespace).Where("id", reindexer.EQ, id)
	iter := query.Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("job query failed: %w", iter.Error())
	}

	for iter.Next() {
		elem := iter.Object()
		if elem == nil {
			continue
		}
		job, ok := elem.(*domain.SealJob)
		if !ok {
			return nil, fmt.Errorf("unexpected job record type %T", elem)
		}
		return job, nil
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
}

// ListWithPagination retrieves job records with pagination, newest first
// (implements domain.JobRepository).
func (r *ReindexerJobRepository) ListWithPagination(ctx context.Context, params domain.PaginationParams) (*domain.PaginatedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("job store connection not established")
	}

	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	query := db.Query(r.namespace).
		Sort("created_at", true).
		Limit(params.Limit).
		Offset(params.Offset).
		ReqTotal()
	iter := query.Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("job list query failed: %w", iter.Error())
	}

	items := make([]*domain.SealJob, 0, params.Limit)
	for iter.Next() {
		elem := iter.Object()
		if elem == nil {
			continue
		}
		if job, ok := elem.(*domain.SealJob); ok {
			items = append(items, job)
		}
	}

	total := iter.TotalCount()
	return &domain.PaginatedResult{
		Items:   items,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(items) < total,
	}, nil
}

// Close closes the database connection.
func (r *ReindexerJobRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	return nil
}

// Verify interface compliance
var (
	_ domain.JobRepository = (*ReindexerJobRepository)(nil)
	_ domain.HealthChecker = (*ReindexerJobRepository)(nil)
)
