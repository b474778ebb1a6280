package expr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShapeMismatch is returned when the value count does not match the
	// declared matrix shape.
	ErrShapeMismatch = errors.New("value count does not match matrix shape")
	// ErrDuplicateID is returned when gene or sample identifiers repeat.
	ErrDuplicateID = errors.New("duplicate identifier")
	// ErrEmptyMatrix is returned when a matrix has no genes or no samples.
	ErrEmptyMatrix = errors.New("matrix has no genes or samples")
	// ErrNonFinite is returned when a matrix contains NaN or Inf values.
	ErrNonFinite = errors.New("non-finite expression value")
)

// Matrix is a dense gene expression matrix with genes as rows and
// samples as columns. Values are row-major: the value for gene g and
// sample s sits at Values[g*len(SampleIDs)+s].
type Matrix struct {
	GeneIDs   []string
	SampleIDs []string
	Values    []float64
}

// NewMatrix builds a matrix and validates its shape.
func NewMatrix(geneIDs, sampleIDs []string, values []float64) (*Matrix, error) {
	m := &Matrix{GeneIDs: geneIDs, SampleIDs: sampleIDs, Values: values}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NumGenes returns the number of genes (rows).
func (m *Matrix) NumGenes() int { return len(m.GeneIDs) }

// NumSamples returns the number of samples (columns).
func (m *Matrix) NumSamples() int { return len(m.SampleIDs) }

// Validate checks the structural invariants: non-empty dimensions,
// value count matching the shape and unique identifiers.
func (m *Matrix) Validate() error {
	if len(m.GeneIDs) == 0 || len(m.SampleIDs) == 0 {
		return ErrEmptyMatrix
	}
	if len(m.Values) != len(m.GeneIDs)*len(m.SampleIDs) {
		return fmt.Errorf("%w: %d values for %d genes x %d samples",
			ErrShapeMismatch, len(m.Values), len(m.GeneIDs), len(m.SampleIDs))
	}
	if id, ok := firstDuplicate(m.GeneIDs); ok {
		return fmt.Errorf("%w: gene id %q", ErrDuplicateID, id)
	}
	if id, ok := firstDuplicate(m.SampleIDs); ok {
		return fmt.Errorf("%w: sample id %q", ErrDuplicateID, id)
	}
	return nil
}

// CheckFinite returns an error naming the first NaN or Inf value, if any.
func (m *Matrix) CheckFinite() error {
	ns := len(m.SampleIDs)
	for i, v := range m.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v for gene %q, sample %q",
				ErrNonFinite, v, m.GeneIDs[i/ns], m.SampleIDs[i%ns])
		}
	}
	return nil
}

// At returns the value for gene g and sample s.
func (m *Matrix) At(g, s int) float64 {
	return m.Values[g*len(m.SampleIDs)+s]
}

// Row returns the expression values of gene g across all samples. The
// returned slice aliases the matrix values and must be treated as
// read-only.
func (m *Matrix) Row(g int) []float64 {
	ns := len(m.SampleIDs)
	return m.Values[g*ns : (g+1)*ns]
}

// SampleVector gathers the expression values of sample s across all
// genes into a new slice.
func (m *Matrix) SampleVector(s int) []float64 {
	ns := len(m.SampleIDs)
	out := make([]float64, len(m.GeneIDs))
	for g := range out {
		out[g] = m.Values[g*ns+s]
	}
	return out
}

// SampleMajor returns a copy of the values reordered sample-major
// (samples as rows, genes as columns), the orientation model code
// consumes.
func (m *Matrix) SampleMajor() []float64 {
	ng, ns := len(m.GeneIDs), len(m.SampleIDs)
	out := make([]float64, len(m.Values))
	for g := 0; g < ng; g++ {
		row := m.Values[g*ns : (g+1)*ns]
		for s, v := range row {
			out[s*ng+g] = v
		}
	}
	return out
}

// Clone creates a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	clone := &Matrix{
		GeneIDs:   make([]string, len(m.GeneIDs)),
		SampleIDs: make([]string, len(m.SampleIDs)),
		Values:    make([]float64, len(m.Values)),
	}
	copy(clone.GeneIDs, m.GeneIDs)
	copy(clone.SampleIDs, m.SampleIDs)
	copy(clone.Values, m.Values)
	return clone
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
