package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Engine is the narrow contract of the external conversion process: given an
// input file and an output directory it produces a same-named .pdf file and
// returns its path. Kept minimal so tests can substitute a fake engine.
type Engine interface {
	ConvertToPDF(ctx context.Context, inputPath, outDir string) (string, error)
}

// EngineError carries the diagnostic output captured from a failed engine
// run alongside the underlying error.
type EngineError struct {
	Output string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("conversion engine failed: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Flags passed to every headless conversion run. Lock checking and the first
// start wizard are disabled so parallel container instances do not trip over
// each other's profile directories.
var libreOfficeArgs = []string{
	"--headless", "--nologo", "--nodefault", "--nolockcheck",
	"--norestore", "--nofirststartwizard",
	"--convert-to", "pdf",
}

// defaultBinaryCandidates mirrors the usual LibreOffice install locations.
var defaultBinaryCandidates = []string{
	"soffice",
	"libreoffice",
	"/usr/bin/soffice",
	"/usr/bin/libreoffice",
}

// ResolveBinary finds a working LibreOffice binary. When explicit is
// non-empty only that path is considered. Each candidate is verified with a
// --version probe before being accepted.
func ResolveBinary(explicit string) (string, error) {
	candidates := defaultBinaryCandidates
	if explicit != "" {
		candidates = []string{explicit}
	}

	var lastErr error
	for _, cand := range candidates {
		path := cand
		if filepath.Base(cand) == cand {
			resolved, err := exec.LookPath(cand)
			if err != nil {
				lastErr = err
				continue
			}
			path = resolved
		} else if _, err := os.Stat(cand); err != nil {
			lastErr = err
			continue
		}

		probe := exec.Command(path, "--version")
		if err := probe.Run(); err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}

	if lastErr == nil {
		lastErr = exec.ErrNotFound
	}
	return "", fmt.Errorf("no usable conversion engine found: %w", lastErr)
}

// LibreOffice runs a headless LibreOffice process for each conversion.
// Engine capacity is bounded by a semaphore: office suites are heavyweight
// and concurrent instances sharing one profile corrupt each other.
type LibreOffice struct {
	bin     string
	timeout time.Duration
	sem     chan struct{}
	logger  *zap.Logger
}

// NewLibreOffice creates an engine around a resolved binary path.
func NewLibreOffice(bin string, timeout time.Duration, maxConcurrent int, logger *zap.Logger) *LibreOffice {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LibreOffice{
		bin:     bin,
		timeout: timeout,
		sem:     make(chan struct{}, maxConcurrent),
		logger:  logger,
	}
}

// ConvertToPDF converts inputPath to a PDF inside outDir and returns the
// path of the produced file (implements Engine).
func (lo *LibreOffice) ConvertToPDF(ctx context.Context, inputPath, outDir string) (string, error) {
	// Queue behind running conversions; respect caller cancellation while
	// waiting.
	select {
	case lo.sem <- struct{}{}:
		defer func() { <-lo.sem }()
	case <-ctx.Done():
		return "", &EngineError{Err: ctx.Err()}
	}

	runCtx, cancel := context.WithTimeout(ctx, lo.timeout)
	defer cancel()

	args := make([]string, 0, len(libreOfficeArgs)+3)
	args = append(args, libreOfficeArgs...)
	args = append(args, "--outdir", outDir, inputPath)

	start := time.Now()
	lo.logger.Info("launching conversion engine",
		zap.String("binary", lo.bin),
		zap.String("input", filepath.Base(inputPath)),
	)

	cmd := exec.CommandContext(runCtx, lo.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// A killed process reports "signal: killed"; surface the timeout
		// instead so callers see a meaningful cause.
		if runCtx.Err() != nil {
			err = runCtx.Err()
		}
		lo.logger.Error("conversion engine failed",
			zap.String("input", filepath.Base(inputPath)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", &EngineError{Output: strings.TrimSpace(string(out)), Err: err}
	}

	produced, err := findProducedPDF(outDir)
	if err != nil {
		return "", &EngineError{Output: strings.TrimSpace(string(out)), Err: err}
	}

	lo.logger.Info("conversion engine finished",
		zap.String("output", filepath.Base(produced)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return produced, nil
}

// findProducedPDF locates the engine's output file. The output directory is
// scoped to a single conversion, so exactly one PDF is expected.
func findProducedPDF(outDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outDir, "*.pdf"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("engine produced no PDF in %s", outDir)
	}
	return matches[0], nil
}

// Verify that LibreOffice implements the Engine interface
var _ Engine = (*LibreOffice)(nil)
