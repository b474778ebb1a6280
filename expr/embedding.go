package expr

import (
	"fmt"
	"strconv"
)

// Embedding is a dense samples x dims matrix of latent representations.
// Values are row-major: the vector for sample i sits at
// Values[i*Dims : (i+1)*Dims].
type Embedding struct {
	SampleIDs []string
	Dims      int
	Values    []float64
}

// NewEmbedding builds an embedding and validates its shape.
func NewEmbedding(sampleIDs []string, dims int, values []float64) (*Embedding, error) {
	e := &Embedding{SampleIDs: sampleIDs, Dims: dims, Values: values}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// NumSamples returns the number of embedded samples.
func (e *Embedding) NumSamples() int { return len(e.SampleIDs) }

// Validate checks the structural invariants.
func (e *Embedding) Validate() error {
	if len(e.SampleIDs) == 0 || e.Dims <= 0 {
		return ErrEmptyMatrix
	}
	if len(e.Values) != len(e.SampleIDs)*e.Dims {
		return fmt.Errorf("%w: %d values for %d samples x %d dims",
			ErrShapeMismatch, len(e.Values), len(e.SampleIDs), e.Dims)
	}
	if id, ok := firstDuplicate(e.SampleIDs); ok {
		return fmt.Errorf("%w: sample id %q", ErrDuplicateID, id)
	}
	return nil
}

// Vector returns the embedding vector of sample i. The returned slice
// aliases the embedding values and must be treated as read-only.
func (e *Embedding) Vector(i int) []float64 {
	return e.Values[i*e.Dims : (i+1)*e.Dims]
}

// DimLabels returns the serialized column labels dim_0 .. dim_{d-1}.
func (e *Embedding) DimLabels() []string {
	labels := make([]string, e.Dims)
	for d := range labels {
		labels[d] = "dim_" + strconv.Itoa(d)
	}
	return labels
}

// Clone creates a deep copy of the embedding.
func (e *Embedding) Clone() *Embedding {
	clone := &Embedding{
		SampleIDs: make([]string, len(e.SampleIDs)),
		Dims:      e.Dims,
		Values:    make([]float64, len(e.Values)),
	}
	copy(clone.SampleIDs, e.SampleIDs)
	copy(clone.Values, e.Values)
	return clone
}
