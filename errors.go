package exprvec

import (
	"errors"
	"fmt"

	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/infer"
	"github.com/exprvec/exprvec/project"
	"github.com/exprvec/exprvec/registry"
)

// Sentinel errors for the pipeline failure taxonomy. Callers match them
// with errors.Is; the concrete typed errors below carry the details and
// are matched with errors.As.
var (
	// ErrNotFound unifies missing ingestions, embeddings, and model
	// checkpoints.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates expression data whose gene count
	// does not match the model.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrModelLoad indicates an unreadable or malformed checkpoint.
	ErrModelLoad = errors.New("model load failed")

	// ErrPersistence indicates a failed artifact write.
	ErrPersistence = errors.New("persistence failed")

	// ErrInvalidProjection indicates an unsupported projection method or
	// component count.
	ErrInvalidProjection = errors.New("invalid projection")

	// ErrMalformedData indicates expression data that violates a
	// structural invariant (empty, ragged, duplicate ids, non-finite).
	ErrMalformedData = errors.New("malformed expression data")
)

// IngestionNotFoundError is returned when no canonical artifacts exist
// for an ingestion id.
type IngestionNotFoundError struct {
	IngestionID string
}

func (e *IngestionNotFoundError) Error() string {
	return fmt.Sprintf("Ingestion %s not found", e.IngestionID)
}

func (e *IngestionNotFoundError) Is(target error) bool { return target == ErrNotFound }

// EmbeddingNotFoundError is returned when an ingestion exists but no
// pipeline run has persisted embeddings for it yet.
type EmbeddingNotFoundError struct {
	IngestionID string
}

func (e *EmbeddingNotFoundError) Error() string {
	return fmt.Sprintf("Embeddings not found for ingestion %s. Generate embeddings first.", e.IngestionID)
}

func (e *EmbeddingNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ModelNotFoundError is returned when no checkpoint exists, either at an
// explicit path or as the registry's current generation.
type ModelNotFoundError struct {
	Path string
}

func (e *ModelNotFoundError) Error() string {
	if e.Path == "" {
		return "no trained model available. Train a model first."
	}
	return fmt.Sprintf("Model checkpoint %s not found", e.Path)
}

func (e *ModelNotFoundError) Is(target error) bool { return target == ErrNotFound }

// DimensionMismatchError reports a gene-count mismatch between
// expression data and the model it is being run through.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	DataGenes  int
	ModelGenes int
	cause      error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("expression data has %d genes, model expects %d genes. Gene ordering must match model training data.",
		e.DataGenes, e.ModelGenes)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// ModelLoadError reports a checkpoint that exists but cannot be parsed
// or validated.
//
// The original underlying error can be accessed via errors.Unwrap.
type ModelLoadError struct {
	Path  string
	cause error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to load model: %v", e.cause)
	}
	return fmt.Sprintf("failed to load model from %s: %v", e.Path, e.cause)
}

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

func (e *ModelLoadError) Unwrap() error { return e.cause }

// PersistenceError reports a failed artifact write. Key names the
// artifact group that failed to persist.
//
// The original underlying error can be accessed via errors.Unwrap.
type PersistenceError struct {
	Key   string
	cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Key, e.cause)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.cause }

// StageError reports the pipeline stage a run failed in. The wrapped
// cause is always a member of the failure taxonomy, so errors.Is and
// errors.As see through it.
type StageError struct {
	IngestionID string
	Stage       Stage
	cause       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline run for %s failed at %s: %v", e.IngestionID, e.Stage, e.cause)
}

func (e *StageError) Unwrap() error { return e.cause }

// translateError maps subpackage errors into the facade taxonomy.
// Errors that already belong to the taxonomy pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		ErrNotFound, ErrDimensionMismatch, ErrModelLoad,
		ErrPersistence, ErrInvalidProjection, ErrMalformedData,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var dm *infer.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{DataGenes: dm.DataGenes, ModelGenes: dm.ModelGenes, cause: err}
	}
	var ml *infer.ModelLoadError
	if errors.As(err, &ml) {
		return &ModelLoadError{Path: ml.Path, cause: err}
	}
	var ip *project.InvalidProjectionError
	if errors.As(err, &ip) {
		return fmt.Errorf("%w: %w", ErrInvalidProjection, err)
	}

	if errors.Is(err, expr.ErrEmptyMatrix) || errors.Is(err, expr.ErrShapeMismatch) ||
		errors.Is(err, expr.ErrDuplicateID) || errors.Is(err, expr.ErrNonFinite) {
		return fmt.Errorf("%w: %w", ErrMalformedData, err)
	}

	if errors.Is(err, registry.ErrNoModel) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
