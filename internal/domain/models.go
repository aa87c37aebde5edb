package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the declared format of an uploaded document, derived from its
// file extension ("pdf", "docx", "pptx", ...).
type Format string

// FormatPDF is the only format that skips the conversion engine.
const FormatPDF Format = "pdf"

// FormatFromFilename derives the document format from a filename extension.
func FormatFromFilename(name string) Format {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return Format(ext)
}

// IsPDF reports whether the format requires no conversion step.
func (f Format) IsPDF() bool {
	return f == FormatPDF
}

// SourceDocument is the raw upload as received from the caller.
// It is never mutated after creation.
type SourceDocument struct {
	Filename string
	Format   Format
	Data     []byte
}

// NormalizedPDF is a byte buffer expected to hold a valid PDF, either passed
// through unchanged or produced by the conversion engine.
type NormalizedPDF []byte

// SealedDocument is the final output of a pipeline run: a flattened,
// watermarked, image-only PDF.
type SealedDocument struct {
	Name      string `json:"name"`
	Data      []byte `json:"-"`
	PageCount int    `json:"page_count"`
}

// SealedName derives the deterministic output filename from the input
// filename: stem plus "_sealed.pdf".
func SealedName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "document"
	}
	return stem + "_sealed.pdf"
}

// JobStatus represents the lifecycle state of a seal job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// SealJob is the persisted record of a single pipeline run.
type SealJob struct {
	ID         string    `json:"id" reindex:"id,,pk"`
	Filename   string    `json:"filename" reindex:"filename"`
	SealedName string    `json:"sealed_name" reindex:"sealed_name"`
	Owner      string    `json:"owner" reindex:"owner"`
	Format     string    `json:"format" reindex:"format"`
	Status     JobStatus `json:"status" reindex:"status"`
	PageCount  int       `json:"page_count" reindex:"page_count"`
	Error      string    `json:"error,omitempty" reindex:"error"`
	CreatedAt  time.Time `json:"created_at" reindex:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" reindex:"finished_at"`
	DurationMS int64     `json:"duration_ms" reindex:"duration_ms"`
}

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResult represents a paginated page of seal jobs
type PaginatedResult struct {
	Items   []*SealJob
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}
