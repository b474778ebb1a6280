package project

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/exprvec/exprvec/expr"
)

// Method identifies a projection algorithm. The value doubles as the
// serialized method name, which is always upper case.
type Method string

const (
	// MethodUMAP is the neighborhood-preserving nonlinear layout.
	MethodUMAP Method = "UMAP"
	// MethodPCA is the variance-maximizing linear projection.
	MethodPCA Method = "PCA"
)

// ParseMethod resolves a case-insensitive method name.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "umap":
		return MethodUMAP, nil
	case "pca":
		return MethodPCA, nil
	default:
		return "", &InvalidProjectionError{
			Method: s,
			Reason: fmt.Sprintf("unknown projection method: %s", s),
		}
	}
}

// InvalidProjectionError reports a projection request that cannot be
// computed: an unknown method, an unsupported component count, or an
// embedding too small for the request.
type InvalidProjectionError struct {
	Method      string
	NComponents int
	Reason      string
}

func (e *InvalidProjectionError) Error() string {
	return "invalid projection: " + e.Reason
}

// Options control the neighborhood layout. PCA ignores everything but
// nothing here affects its result.
type Options struct {
	// NNeighbors is the local neighborhood size of the fuzzy graph.
	// Capped at one less than the number of samples.
	NNeighbors int
	// MinDist is the minimum spacing between points in the layout.
	MinDist float64
	// NEpochs is the number of optimization epochs. Zero selects a
	// default based on the sample count.
	NEpochs int
	// NegativeSampleRate is the number of repulsive samples applied
	// per attractive update.
	NegativeSampleRate int
	// Seed drives layout initialization and negative sampling.
	Seed int64
}

// DefaultOptions are the layout defaults.
var DefaultOptions = Options{
	NNeighbors:         15,
	MinDist:            0.1,
	NegativeSampleRate: 5,
	Seed:               42,
}

// WithNNeighbors sets the neighborhood size.
func WithNNeighbors(k int) func(o *Options) {
	return func(o *Options) {
		o.NNeighbors = k
	}
}

// WithMinDist sets the minimum layout spacing.
func WithMinDist(d float64) func(o *Options) {
	return func(o *Options) {
		o.MinDist = d
	}
}

// WithNEpochs sets the number of optimization epochs.
func WithNEpochs(n int) func(o *Options) {
	return func(o *Options) {
		o.NEpochs = n
	}
}

// WithSeed sets the layout seed.
func WithSeed(seed int64) func(o *Options) {
	return func(o *Options) {
		o.Seed = seed
	}
}

// Projection is a low-dimensional layout of an embedding. Row i holds
// the coordinates of sample i of the source embedding.
type Projection struct {
	SampleIDs   []string
	Method      Method
	NComponents int
	// Coordinates is row-major, len(SampleIDs) x NComponents.
	Coordinates []float64
	// ExplainedVariance holds the per-axis fraction of total variance
	// for PCA. Nil for methods that do not define it.
	ExplainedVariance []float64
}

// NumSamples returns the number of projected samples.
func (p *Projection) NumSamples() int {
	return len(p.SampleIDs)
}

// Row returns the coordinates of sample i. The slice aliases the
// projection's backing array.
func (p *Projection) Row(i int) []float64 {
	return p.Coordinates[i*p.NComponents : (i+1)*p.NComponents]
}

// Rows returns the coordinates as one slice per sample. The slices
// alias the projection's backing array.
func (p *Projection) Rows() [][]float64 {
	rows := make([][]float64, p.NumSamples())
	for i := range rows {
		rows[i] = p.Row(i)
	}
	return rows
}

// AxisLabels returns the serialized axis names, numbered from one:
// pc_1, pc_2, .. for PCA and umap_1, umap_2, .. otherwise.
func (p *Projection) AxisLabels() []string {
	prefix := "umap_"
	if p.Method == MethodPCA {
		prefix = "pc_"
	}
	labels := make([]string, p.NComponents)
	for i := range labels {
		labels[i] = prefix + strconv.Itoa(i+1)
	}
	return labels
}

// Project lays out an embedding in nComponents dimensions using the
// named method. The method name is case-insensitive and nComponents
// must be 2 or 3; both are rejected before any computation starts.
func Project(e *expr.Embedding, method string, nComponents int, optFns ...func(o *Options)) (*Projection, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if nComponents != 2 && nComponents != 3 {
		return nil, &InvalidProjectionError{
			Method:      string(m),
			NComponents: nComponents,
			Reason:      fmt.Sprintf("n_components must be 2 or 3, got %d", nComponents),
		}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate embedding: %w", err)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	switch m {
	case MethodPCA:
		return projectPCA(e, nComponents)
	default:
		return projectUMAP(e, nComponents, opts)
	}
}
