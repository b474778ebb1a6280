package project

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/util"
)

func TestPCA_Shapes(t *testing.T) {
	e := blobEmbedding(t, 10, 5, 0, 11)
	p, err := Project(e, "pca", 2)
	require.NoError(t, err)

	require.Equal(t, MethodPCA, p.Method)
	require.Equal(t, 2, p.NComponents)
	require.Len(t, p.Coordinates, e.NumSamples()*2)
	require.Len(t, p.ExplainedVariance, 2)
	for _, v := range p.Coordinates {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestPCA_Deterministic(t *testing.T) {
	e := blobEmbedding(t, 10, 6, 2, 12)
	a, err := Project(e, "pca", 3)
	require.NoError(t, err)
	b, err := Project(e, "pca", 3)
	require.NoError(t, err)

	require.Equal(t, a.Coordinates, b.Coordinates)
	require.Equal(t, a.ExplainedVariance, b.ExplainedVariance)
}

func TestPCA_ExplainedVarianceOrdered(t *testing.T) {
	e := blobEmbedding(t, 15, 8, 1, 13)
	p, err := Project(e, "pca", 3)
	require.NoError(t, err)

	var sum float64
	for i, v := range p.ExplainedVariance {
		require.GreaterOrEqual(t, v, 0.0)
		if i > 0 {
			require.LessOrEqual(t, v, p.ExplainedVariance[i-1])
		}
		sum += v
	}
	require.LessOrEqual(t, sum, 1+1e-12)
}

func TestPCA_RecoversDominantDirection(t *testing.T) {
	// Variance concentrated on dimension 2, faint noise elsewhere.
	rng := util.NewRNG(14)
	const n, d = 30, 5
	ids := make([]string, n)
	values := make([]float64, n*d)
	for i := 0; i < n; i++ {
		ids[i] = "s" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		for j := 0; j < d; j++ {
			values[i*d+j] = 0.1 * rng.NormFloat64()
		}
		values[i*d+2] += 10 * rng.NormFloat64()
	}
	e, err := expr.NewEmbedding(ids, d, values)
	require.NoError(t, err)

	p, err := Project(e, "pca", 2)
	require.NoError(t, err)
	require.Greater(t, p.ExplainedVariance[0], 0.9)

	// The sign convention pins the dominant loading positive, so the
	// first axis tracks dimension 2 directly.
	var mean2 float64
	for i := 0; i < n; i++ {
		mean2 += values[i*d+2]
	}
	mean2 /= n
	var maxIdx int
	for i := 1; i < n; i++ {
		if values[i*d+2] > values[maxIdx*d+2] {
			maxIdx = i
		}
	}
	require.Greater(t, values[maxIdx*d+2], mean2)
	require.Greater(t, p.Row(maxIdx)[0], 0.0)
}

func TestPCA_TranslationInvariant(t *testing.T) {
	e := blobEmbedding(t, 8, 4, 0, 15)
	shifted := e.Clone()
	for i := range shifted.Values {
		shifted.Values[i] += 100
	}

	a, err := Project(e, "pca", 2)
	require.NoError(t, err)
	b, err := Project(shifted, "pca", 2)
	require.NoError(t, err)

	for i := range a.Coordinates {
		require.InDelta(t, a.Coordinates[i], b.Coordinates[i], 1e-8)
	}
}

func TestPCA_TooFewSamples(t *testing.T) {
	e, err := expr.NewEmbedding([]string{"a", "b"}, 4, make([]float64, 8))
	require.NoError(t, err)

	_, err = Project(e, "pca", 3)
	var perr *InvalidProjectionError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Reason, "cannot compute 3 components")
}

func TestPCA_ZeroVariance(t *testing.T) {
	values := make([]float64, 0, 12)
	for i := 0; i < 4; i++ {
		values = append(values, 1, 2, 3)
	}
	e, err := expr.NewEmbedding([]string{"a", "b", "c", "d"}, 3, values)
	require.NoError(t, err)

	p, err := Project(e, "pca", 2)
	require.NoError(t, err)
	for _, v := range p.Coordinates {
		require.InDelta(t, 0, v, 1e-12)
	}
	for _, v := range p.ExplainedVariance {
		require.Zero(t, v)
	}
}
