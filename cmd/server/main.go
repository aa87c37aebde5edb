package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/assembler"
	"github.com/FYCodeLab/safeseal/internal/cache"
	"github.com/FYCodeLab/safeseal/internal/config"
	"github.com/FYCodeLab/safeseal/internal/converter"
	"github.com/FYCodeLab/safeseal/internal/domain"
	"github.com/FYCodeLab/safeseal/internal/handlers"
	"github.com/FYCodeLab/safeseal/internal/middleware"
	"github.com/FYCodeLab/safeseal/internal/pipeline"
	"github.com/FYCodeLab/safeseal/internal/processor"
	"github.com/FYCodeLab/safeseal/internal/rasterizer"
	"github.com/FYCodeLab/safeseal/internal/repositories"
	"github.com/FYCodeLab/safeseal/internal/usecases"
	"github.com/FYCodeLab/safeseal/internal/watermark"
	"github.com/FYCodeLab/safeseal/pkg/logger"
)

const (
	// The job store may come up slower than the service; give it a few
	// chances before giving up.
	storeCheckRetries    = 5
	storeCheckRetryDelay = 2 * time.Second

	shutdownTimeout = 30 * time.Second

	// Page stamping tasks waiting behind the worker pool
	pageQueueSize = 100
)

// App holds every component of the service so lifecycle management lives in
// one place instead of package-level globals.
type App struct {
	config   *config.Config
	logger   *zap.Logger
	repo     domain.JobRepository
	store    *repositories.ReindexerJobRepository // nil when persistence disabled
	cache    *cache.ShardedCache
	pagePool *processor.PagePool
	usecase  *usecases.SealUsecase
	server   *http.Server

	initOnce sync.Once
	initErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp creates an empty application shell; the real setup happens in
// Initialize.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize sets up all components exactly once. All-or-nothing: any
// component failing aborts startup.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize builds the application bottom-up: logger and config first,
// then the sealing stages, then the service layer on top of them.
func (a *App) doInitialize() error {
	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger.Get()

	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// A missing config file is fine: defaults plus environment variables
	// are a complete configuration.
	if err := config.Load(configPath); err != nil {
		a.logger.Warn("config file not loaded, falling back to defaults and env",
			zap.String("path", configPath),
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
	}

	a.config = config.Get()
	a.logger.Info("configuration loaded",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.Int("raster_dpi", a.config.Raster.DPI),
	)

	sealer, err := a.buildPipeline()
	if err != nil {
		return fmt.Errorf("failed to build sealing pipeline: %w", err)
	}

	if err := a.initializeRepository(); err != nil {
		return fmt.Errorf("failed to initialize job repository: %w", err)
	}

	a.cache = cache.NewShardedCache(
		a.config.Cache.Shards,
		a.config.Cache.TTL,
	)
	a.cache.StartCleanupWorker()

	a.usecase = usecases.NewSealUsecase(
		sealer,
		a.cache,
		a.repo,
		a.logger,
		a.config.Concurrency.HTTPMaxWorkers,
		a.config.Raster.DPI,
		a.config.Raster.JPEGQuality,
	)

	if err := a.initializeServer(); err != nil {
		return fmt.Errorf("failed to set up HTTP server: %w", err)
	}

	a.logger.Info("application ready")
	return nil
}

// buildPipeline assembles the four sealing stages and the page worker pool.
func (a *App) buildPipeline() (domain.Sealer, error) {
	bin, err := converter.ResolveBinary(a.config.Converter.Binary)
	if err != nil {
		return nil, err
	}
	a.logger.Info("conversion engine resolved", zap.String("binary", bin))

	engine := converter.NewLibreOffice(
		bin,
		a.config.Converter.Timeout(),
		a.config.Converter.MaxConcurrent,
		a.logger,
	)
	normalizer := converter.NewNormalizer(engine, a.logger)

	raster := rasterizer.New(a.logger)

	stamper, err := watermark.NewTiledStamper()
	if err != nil {
		return nil, fmt.Errorf("failed to build watermark stamper: %w", err)
	}

	a.pagePool = processor.NewPagePool(
		a.config.Concurrency.PageWorkers,
		pageQueueSize,
		stamper,
		a.logger,
	)
	a.pagePool.Start()

	asm := assembler.New(a.config.Raster.JPEGQuality, a.logger)

	opts := pipeline.Options{
		DPI:          a.config.Raster.DPI,
		Opacity:      uint8(a.config.Watermark.Opacity),
		AngleDeg:     a.config.Watermark.AngleDegrees,
		FontSizePt:   a.config.Watermark.FontSizePt,
		MaxTextRunes: a.config.Watermark.MaxTextRunes,
	}

	return pipeline.New(normalizer, raster, a.pagePool, asm, opts, a.logger), nil
}

// initializeRepository connects to the Reindexer job store, retrying because
// the database may start slower than the service. An empty DSN disables
// persistence entirely and jobs are only logged.
func (a *App) initializeRepository() error {
	if a.config.Reindexer.DSN == "" {
		a.logger.Info("job persistence disabled, using in-process log only")
		a.repo = repositories.NewNoopJobRepository(a.logger)
		return nil
	}

	var err error

	for attempt := 0; attempt < storeCheckRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying job store connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", storeCheckRetryDelay),
			)
			time.Sleep(storeCheckRetryDelay)
		}

		store, initErr := repositories.NewReindexerJobRepository(
			a.config.Reindexer.DSN,
			a.config.Reindexer.Namespace,
			a.logger,
		)
		if initErr != nil {
			err = initErr
			a.logger.Warn("failed to create job store client",
				zap.Int("attempt", attempt+1),
				zap.Error(initErr),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if checkErr := store.CheckConnection(ctx); checkErr != nil {
			cancel()
			store.Close()
			err = checkErr
			a.logger.Warn("job store not reachable",
				zap.Int("attempt", attempt+1),
				zap.Error(checkErr),
			)
			continue
		}
		cancel()

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		if ensureErr := store.EnsureCollections(ctx); ensureErr != nil {
			cancel()
			store.Close()
			err = ensureErr
			a.logger.Warn("failed to ensure job namespace",
				zap.Int("attempt", attempt+1),
				zap.Error(ensureErr),
			)
			continue
		}
		cancel()

		a.store = store
		a.repo = store
		a.logger.Info("job store initialized",
			zap.Int("attempts_used", attempt+1),
			zap.String("dsn", a.config.Reindexer.DSN),
		)
		return nil
	}

	return fmt.Errorf("job store unreachable after %d attempts: %w", storeCheckRetries, err)
}

// initializeServer sets up routing and middleware.
func (a *App) initializeServer() error {
	sealHandler := handlers.NewSealHandler(a.usecase, a.logger)

	r := chi.NewRouter()

	rateLimiter := middleware.NewRateLimiter(a.config.Concurrency.HTTPMaxWorkers, 1*time.Minute)

	// Health endpoint stays outside the middleware chain so orchestrator
	// probes are never rate limited or logged per hit.
	r.Get("/health", a.healthCheckHandler)

	maxUploadBytes := int64(a.config.Concurrency.MaxUploadMB) << 20

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.TimeoutMiddleware(a.config.Converter.Timeout() + 30*time.Second))
		r.Use(middleware.RateLimitMiddleware(rateLimiter, a.logger))

		r.With(middleware.MaxBodySizeMiddleware(maxUploadBytes)).
			Post("/seal", sealHandler.SealDocument)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", sealHandler.ListJobs)
			r.Get("/{id}", sealHandler.GetJob)
		})
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:    addr,
		Handler: r,
		// Reads can take a while because uploads arrive in the request
		// body; writes carry the whole sealed PDF.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: a.config.Converter.Timeout() + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// healthCheckHandler answers liveness probes. Reports the job store state
// when persistence is enabled; a dead store makes the service unhealthy.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")

	if a.store != nil {
		if err := a.store.CheckConnection(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			json.NewEncoder(w).Encode(health)
			return
		}
		health["job_store"] = "connected"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// StartBackgroundJobs launches the periodic health logger.
func (a *App) StartBackgroundJobs() {
	if a.store == nil {
		return
	}
	a.wg.Add(1)
	go a.periodicHealthCheck()
}

// periodicHealthCheck logs the job store state every 30 seconds. Useful for
// spotting flaky connectivity that individual requests would hide.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("background health check stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.store.CheckConnection(ctx); err != nil {
				a.logger.Warn("background check: job store problem", zap.Error(err))
			} else {
				a.logger.Debug("background check: job store healthy")
			}
			cancel()
		}
	}
}

// Start initializes everything and begins serving. Non-blocking: the server
// runs in its own goroutine so main can wait for OS signals.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("starting HTTP server",
			zap.String("addr", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown stops the application gracefully: new requests are refused first,
// then in-flight work is drained, then components are torn down in reverse
// dependency order.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down...")

		a.cancel()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("error stopping HTTP server", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		if a.usecase != nil {
			a.usecase.Shutdown()
		}

		if a.pagePool != nil {
			a.pagePool.Stop()
		}

		if a.cache != nil {
			a.cache.StopCleanupWorker()
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Error("error closing job store", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("all background work finished")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("timed out waiting for background work, exiting anyway")
		}

		if a.logger != nil {
			_ = a.logger.Sync()
		}

		a.logger.Info("shutdown complete")
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal startup error: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}
