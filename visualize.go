package exprvec

import (
	"context"
	"time"

	"github.com/exprvec/exprvec/project"
)

// Visualization is the 2D/3D scatter payload derived from a persisted
// embedding. Coordinates holds one [x, y] or [x, y, z] row per sample,
// in sample order. ExplainedVariance is present for PCA only.
type Visualization struct {
	SampleIDs         []string    `json:"sample_ids"`
	Coordinates       [][]float64 `json:"coordinates"`
	ProjectionMethod  string      `json:"projection_method"`
	NComponents       int         `json:"n_components"`
	ExplainedVariance []float64   `json:"explained_variance,omitempty"`
}

// GetVisualization projects the persisted embedding of an ingestion to
// nComponents dimensions with the named method ("pca" or "umap").
//
// The method is validated before the store is touched; a missing
// embedding is ErrNotFound, an unsupported method or component count is
// ErrInvalidProjection.
func (ev *Exprvec) GetVisualization(ctx context.Context, ingestionID, method string, nComponents int) (*Visualization, error) {
	start := time.Now()

	vis, err := ev.visualize(ctx, ingestionID, method, nComponents, nil)

	duration := time.Since(start)
	err = translateError(err)
	ev.metrics.RecordVisualization(duration, err)
	ev.logger.LogVisualization(ctx, ingestionID, method, nComponents, err)
	if err != nil {
		return nil, err
	}
	return vis, nil
}

func (ev *Exprvec) visualize(ctx context.Context, ingestionID, method string, nComponents int, projFns []func(o *project.Options)) (*Visualization, error) {
	if _, err := project.ParseMethod(method); err != nil {
		return nil, err
	}

	emb, _, err := ev.loadEmbedding(ctx, ingestionID)
	if err != nil {
		return nil, err
	}

	p, err := project.Project(emb, method, nComponents, projFns...)
	if err != nil {
		return nil, err
	}

	return &Visualization{
		SampleIDs:         p.SampleIDs,
		Coordinates:       p.Rows(),
		ProjectionMethod:  string(p.Method),
		NComponents:       p.NComponents,
		ExplainedVariance: p.ExplainedVariance,
	}, nil
}

// Visualize creates a fluent visualization builder for the given
// ingestion. The zero configuration is a 2-component PCA.
//
// Example:
//
//	vis, err := ev.Visualize(id).
//	    UMAP().
//	    Components(2).
//	    Neighbors(30).
//	    Seed(7).
//	    Execute(ctx)
func (ev *Exprvec) Visualize(ingestionID string) *VisualizeBuilder {
	return &VisualizeBuilder{
		ev:          ev,
		ingestionID: ingestionID,
		method:      string(project.MethodPCA),
		nComponents: 2,
	}
}

// VisualizeBuilder is a fluent builder for visualization queries.
type VisualizeBuilder struct {
	ev          *Exprvec
	ingestionID string
	method      string
	nComponents int
	projFns     []func(o *project.Options)
}

// Method sets the projection method by name ("pca" or "umap").
func (vb *VisualizeBuilder) Method(m string) *VisualizeBuilder {
	vb.method = m
	return vb
}

// PCA selects the principal component projection.
func (vb *VisualizeBuilder) PCA() *VisualizeBuilder {
	vb.method = string(project.MethodPCA)
	return vb
}

// UMAP selects the neighborhood-preserving projection.
func (vb *VisualizeBuilder) UMAP() *VisualizeBuilder {
	vb.method = string(project.MethodUMAP)
	return vb
}

// Components sets the output dimensionality. Must be 2 or 3.
func (vb *VisualizeBuilder) Components(n int) *VisualizeBuilder {
	vb.nComponents = n
	return vb
}

// Neighbors sets the neighborhood size for UMAP layouts.
func (vb *VisualizeBuilder) Neighbors(k int) *VisualizeBuilder {
	vb.projFns = append(vb.projFns, project.WithNNeighbors(k))
	return vb
}

// MinDist sets the minimum point spacing for UMAP layouts.
func (vb *VisualizeBuilder) MinDist(d float64) *VisualizeBuilder {
	vb.projFns = append(vb.projFns, project.WithMinDist(d))
	return vb
}

// Epochs sets the optimization epoch count for UMAP layouts.
func (vb *VisualizeBuilder) Epochs(n int) *VisualizeBuilder {
	vb.projFns = append(vb.projFns, project.WithNEpochs(n))
	return vb
}

// Seed sets the layout seed, making stochastic projections reproducible
// across processes.
func (vb *VisualizeBuilder) Seed(seed int64) *VisualizeBuilder {
	vb.projFns = append(vb.projFns, project.WithSeed(seed))
	return vb
}

// Execute runs the visualization query.
func (vb *VisualizeBuilder) Execute(ctx context.Context) (*Visualization, error) {
	start := time.Now()

	vis, err := vb.ev.visualize(ctx, vb.ingestionID, vb.method, vb.nComponents, vb.projFns)

	duration := time.Since(start)
	err = translateError(err)
	vb.ev.metrics.RecordVisualization(duration, err)
	vb.ev.logger.LogVisualization(ctx, vb.ingestionID, vb.method, vb.nComponents, err)
	if err != nil {
		return nil, err
	}
	return vis, nil
}

// MustExecute runs the visualization query, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (vb *VisualizeBuilder) MustExecute(ctx context.Context) *Visualization {
	vis, err := vb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return vis
}
