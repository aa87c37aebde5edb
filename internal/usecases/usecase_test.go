package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/FYCodeLab/safeseal/internal/domain"
)

// MockSealer is a mock implementation of Sealer
type MockSealer struct {
	mock.Mock
}

var _ domain.Sealer = (*MockSealer)(nil)

func (m *MockSealer) Seal(ctx context.Context, doc *domain.SourceDocument, owner string) (*domain.SealedDocument, error) {
	args := m.Called(ctx, doc, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SealedDocument), args.Error(1)
}

// MockCache is a mock implementation of Cache
type MockCache struct {
	mock.Mock
}

var _ domain.Cache = (*MockCache)(nil)

func (m *MockCache) Get(ctx context.Context, key string) (*domain.SealedDocument, bool) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.SealedDocument), args.Bool(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value *domain.SealedDocument) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) CleanExpired(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockJobRepository is a mock implementation of JobRepository
type MockJobRepository struct {
	mock.Mock
}

var _ domain.JobRepository = (*MockJobRepository)(nil)

func (m *MockJobRepository) Create(ctx context.Context, job *domain.SealJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) Update(ctx context.Context, job *domain.SealJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.SealJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SealJob), args.Error(1)
}

func (m *MockJobRepository) ListWithPagination(ctx context.Context, params domain.PaginationParams) (*domain.PaginatedResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaginatedResult), args.Error(1)
}

func newTestUsecase(t *testing.T, sealer *MockSealer, cache *MockCache, jobs *MockJobRepository) *SealUsecase {
	return NewSealUsecase(sealer, cache, jobs, zaptest.NewLogger(t), 10, 120, 75)
}

func testDoc() *domain.SourceDocument {
	return &domain.SourceDocument{
		Filename: "contract.docx",
		Format:   domain.FormatFromFilename("contract.docx"),
		Data:     []byte("fake docx bytes"),
	}
}

// TestSealUsecaseCacheHit verifies that an identical upload sealed before is
// served from the cache without rerunning the pipeline.
func TestSealUsecaseCacheHit(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)
	defer usecase.Shutdown()

	ctx := context.Background()
	doc := testDoc()

	cached := &domain.SealedDocument{
		Name:      "contract_sealed.pdf",
		Data:      []byte("%PDF-cached"),
		PageCount: 3,
	}

	mockCache.On("Get", ctx, mock.AnythingOfType("string")).Return(cached, true).Once()

	sealed, err := usecase.Seal(ctx, doc, "ACME Corp")
	assert.NoError(t, err)
	assert.Equal(t, cached, sealed)
	mockCache.AssertExpectations(t)
	mockSealer.AssertNotCalled(t, "Seal")
	mockJobs.AssertNotCalled(t, "Create")
}

// TestSealUsecaseFullRun verifies the cache-miss path: the pipeline runs, a
// job record is created and finished, and the output is cached.
func TestSealUsecaseFullRun(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)

	ctx := context.Background()
	doc := testDoc()

	sealed := &domain.SealedDocument{
		Name:      "contract_sealed.pdf",
		Data:      []byte("%PDF-sealed"),
		PageCount: 2,
	}

	mockCache.On("Get", ctx, mock.AnythingOfType("string")).Return(nil, false).Once()
	mockJobs.On("Create", ctx, mock.AnythingOfType("*domain.SealJob")).Return(nil).Once()
	mockSealer.On("Seal", ctx, doc, "ACME Corp").Return(sealed, nil).Once()
	mockJobs.On("Update", mock.Anything, mock.MatchedBy(func(job *domain.SealJob) bool {
		return job.Status == domain.JobStatusSucceeded && job.PageCount == 2
	})).Return(nil).Once()
	mockCache.On("Set", mock.Anything, mock.AnythingOfType("string"), sealed).Return(nil).Once()

	got, err := usecase.Seal(ctx, doc, "ACME Corp")
	assert.NoError(t, err)
	assert.Equal(t, sealed, got)

	// Shutdown waits for the async cache write before asserting on it
	usecase.Shutdown()
	mockSealer.AssertExpectations(t)
	mockCache.AssertExpectations(t)
	mockJobs.AssertExpectations(t)
}

// TestSealUsecaseInvalidInput verifies that bad input is rejected before any
// collaborator is touched.
func TestSealUsecaseInvalidInput(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)
	defer usecase.Shutdown()

	ctx := context.Background()

	sealed, err := usecase.Seal(ctx, testDoc(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, sealed)

	sealed, err = usecase.Seal(ctx, &domain.SourceDocument{Filename: "empty.pdf"}, "ACME Corp")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, sealed)

	sealed, err = usecase.Seal(ctx, nil, "ACME Corp")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, sealed)

	mockSealer.AssertNotCalled(t, "Seal")
	mockCache.AssertNotCalled(t, "Get")
	mockJobs.AssertNotCalled(t, "Create")
}

// TestSealUsecasePipelineError verifies that a pipeline failure propagates
// unchanged and the job record is marked failed.
func TestSealUsecasePipelineError(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)
	defer usecase.Shutdown()

	ctx := context.Background()
	doc := testDoc()
	pipelineErr := &domain.ConversionError{
		Format: "docx",
		Output: "soffice: cannot open file",
		Err:    errors.New("exit status 1"),
	}

	mockCache.On("Get", ctx, mock.AnythingOfType("string")).Return(nil, false).Once()
	mockJobs.On("Create", ctx, mock.AnythingOfType("*domain.SealJob")).Return(nil).Once()
	mockSealer.On("Seal", ctx, doc, "ACME Corp").Return(nil, pipelineErr).Once()
	mockJobs.On("Update", mock.Anything, mock.MatchedBy(func(job *domain.SealJob) bool {
		return job.Status == domain.JobStatusFailed && job.Error != ""
	})).Return(nil).Once()

	sealed, err := usecase.Seal(ctx, doc, "ACME Corp")
	assert.Error(t, err)
	assert.Nil(t, sealed)

	var convErr *domain.ConversionError
	assert.ErrorAs(t, err, &convErr)
	mockSealer.AssertExpectations(t)
	mockJobs.AssertExpectations(t)
	mockCache.AssertNotCalled(t, "Set")
}

// TestSealUsecaseBrokenJobStore verifies that job history is best-effort: a
// failing repository must not block sealing.
func TestSealUsecaseBrokenJobStore(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)

	ctx := context.Background()
	doc := testDoc()

	sealed := &domain.SealedDocument{
		Name:      "contract_sealed.pdf",
		Data:      []byte("%PDF-sealed"),
		PageCount: 1,
	}

	storeErr := errors.New("reindexer unavailable")
	mockCache.On("Get", ctx, mock.AnythingOfType("string")).Return(nil, false).Once()
	mockJobs.On("Create", ctx, mock.AnythingOfType("*domain.SealJob")).Return(storeErr).Once()
	mockSealer.On("Seal", ctx, doc, "ACME Corp").Return(sealed, nil).Once()
	mockJobs.On("Update", mock.Anything, mock.AnythingOfType("*domain.SealJob")).Return(storeErr).Once()
	mockCache.On("Set", mock.Anything, mock.AnythingOfType("string"), sealed).Return(nil).Maybe()

	got, err := usecase.Seal(ctx, doc, "ACME Corp")
	assert.NoError(t, err)
	assert.Equal(t, sealed, got)

	usecase.Shutdown()
	mockSealer.AssertExpectations(t)
	mockJobs.AssertExpectations(t)
}

// TestSealUsecaseGetJob tests job lookup passthrough
func TestSealUsecaseGetJob(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)
	defer usecase.Shutdown()

	ctx := context.Background()
	job := &domain.SealJob{
		ID:        "job-1",
		Filename:  "contract.docx",
		Status:    domain.JobStatusSucceeded,
		CreatedAt: time.Now(),
	}

	mockJobs.On("GetByID", ctx, "job-1").Return(job, nil).Once()
	mockJobs.On("GetByID", ctx, "missing").Return(nil, domain.ErrJobNotFound).Once()

	got, err := usecase.GetJob(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, job, got)

	got, err = usecase.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.Nil(t, got)
	mockJobs.AssertExpectations(t)
}

// TestSealUsecaseListJobs tests job listing passthrough
func TestSealUsecaseListJobs(t *testing.T) {
	mockSealer := new(MockSealer)
	mockCache := new(MockCache)
	mockJobs := new(MockJobRepository)

	usecase := newTestUsecase(t, mockSealer, mockCache, mockJobs)
	defer usecase.Shutdown()

	ctx := context.Background()
	params := domain.PaginationParams{Limit: 10, Offset: 0}

	result := &domain.PaginatedResult{
		Items: []*domain.SealJob{
			{ID: "job-1"},
			{ID: "job-2"},
		},
		Total:   2,
		Limit:   10,
		Offset:  0,
		HasMore: false,
	}

	mockJobs.On("ListWithPagination", ctx, params).Return(result, nil).Once()

	got, err := usecase.ListJobs(ctx, params)
	assert.NoError(t, err)
	assert.Equal(t, result, got)
	mockJobs.AssertExpectations(t)
}
