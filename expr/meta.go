package expr

import (
	"time"

	"github.com/exprvec/exprvec/annot"
)

// Format identifies the source format of an ingestion.
type Format string

const (
	// FormatBulkCSV tags delimited expression tables (CSV or TSV).
	FormatBulkCSV Format = "bulk_csv"
	// FormatMatrix tags binary matrix container ingestions.
	FormatMatrix Format = "matrix"
)

// SampleMeta carries the per-sample metadata captured at ingestion.
// It is created once and never mutated afterwards.
type SampleMeta struct {
	SampleID    string            `json:"sample_id"`
	Annotations annot.Annotations `json:"annotations,omitempty"`
	Provenance  string            `json:"provenance,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// IngestedData bundles a parsed expression matrix with its ingestion
// identity and per-sample metadata. Samples are ordered exactly like
// the matrix columns.
type IngestedData struct {
	IngestionID string
	IngestedAt  time.Time
	Format      Format
	Matrix      *Matrix
	Samples     []SampleMeta
}
