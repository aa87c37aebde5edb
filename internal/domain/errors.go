package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
var (
	// ErrInvalidInput marks bad caller input (empty watermark text, empty
	// upload). Reported before any pipeline stage runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDocument is returned when the reassembler receives zero pages.
	// A sealed document must have at least one page.
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrJobNotFound is returned by job repositories for unknown job IDs.
	ErrJobNotFound = errors.New("seal job not found")
)

// ConversionError reports a failure of the external conversion engine:
// binary missing, non-zero exit, timeout, or no output file produced.
// Output carries whatever diagnostic text the engine emitted.
type ConversionError struct {
	Format Format
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion of %q input failed: %v", e.Format, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// MalformedDocumentError reports a PDF buffer that could not be parsed.
// After a conversion this is treated as a conversion defect.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed PDF document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// RenderError reports an invariant violation inside the watermark
// compositor, e.g. a zero-area page image.
type RenderError struct {
	Reason string
}

func (e *RenderError) Error() string {
	return "watermark render failed: " + e.Reason
}
