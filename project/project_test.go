package project

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/util"
)

// blobEmbedding builds two gaussian blobs of nPerBlob samples each,
// the second one shifted by sep along every dimension.
func blobEmbedding(t *testing.T, nPerBlob, dims int, sep float64, seed int64) *expr.Embedding {
	t.Helper()
	rng := util.NewRNG(seed)
	n := 2 * nPerBlob
	ids := make([]string, 0, n)
	values := make([]float64, 0, n*dims)
	for i := 0; i < n; i++ {
		var center float64
		if i >= nPerBlob {
			center = sep
		}
		for d := 0; d < dims; d++ {
			values = append(values, center+rng.NormFloat64())
		}
		ids = append(ids, fmt.Sprintf("s%03d", i))
	}
	e, err := expr.NewEmbedding(ids, dims, values)
	require.NoError(t, err)
	return e
}

func TestParseMethod(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Method
	}{
		{"umap", MethodUMAP},
		{"UMAP", MethodUMAP},
		{"Umap", MethodUMAP},
		{"pca", MethodPCA},
		{"PCA", MethodPCA},
		{" pca ", MethodPCA},
	} {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseMethod("tsne")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown projection method: tsne")

		var perr *InvalidProjectionError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "tsne", perr.Method)
	})
}

func TestProject_RejectsBeforeComputing(t *testing.T) {
	e := blobEmbedding(t, 5, 4, 0, 1)

	t.Run("unknown method", func(t *testing.T) {
		_, err := Project(e, "tsne", 2)
		var perr *InvalidProjectionError
		require.ErrorAs(t, err, &perr)
		require.Contains(t, perr.Reason, "unknown projection method")
	})

	t.Run("method checked first", func(t *testing.T) {
		_, err := Project(e, "tsne", 7)
		var perr *InvalidProjectionError
		require.ErrorAs(t, err, &perr)
		require.Contains(t, perr.Reason, "unknown projection method")
	})

	for _, k := range []int{0, 1, 4, -2} {
		t.Run(fmt.Sprintf("n_components %d", k), func(t *testing.T) {
			_, err := Project(e, "pca", k)
			var perr *InvalidProjectionError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, k, perr.NComponents)
			require.Contains(t, perr.Reason, "n_components must be 2 or 3")
		})
	}
}

func TestProject_InvalidEmbedding(t *testing.T) {
	e := &expr.Embedding{SampleIDs: []string{"a"}, Dims: 2, Values: []float64{1}}
	_, err := Project(e, "pca", 2)
	require.ErrorIs(t, err, expr.ErrShapeMismatch)
}

func TestProject_SampleOrderPreserved(t *testing.T) {
	e := blobEmbedding(t, 6, 5, 0, 3)
	p, err := Project(e, "pca", 2)
	require.NoError(t, err)
	require.Equal(t, e.SampleIDs, p.SampleIDs)

	// The projection owns its id slice.
	p.SampleIDs[0] = "mutated"
	require.Equal(t, "s000", e.SampleIDs[0])
}

func TestProjection_AxisLabels(t *testing.T) {
	pca := &Projection{Method: MethodPCA, NComponents: 3}
	require.Equal(t, []string{"pc_1", "pc_2", "pc_3"}, pca.AxisLabels())

	umap := &Projection{Method: MethodUMAP, NComponents: 2}
	require.Equal(t, []string{"umap_1", "umap_2"}, umap.AxisLabels())
}

func TestProjection_Rows(t *testing.T) {
	p := &Projection{
		SampleIDs:   []string{"a", "b", "c"},
		Method:      MethodUMAP,
		NComponents: 2,
		Coordinates: []float64{1, 2, 3, 4, 5, 6},
	}
	require.Equal(t, 3, p.NumSamples())
	require.Equal(t, []float64{3, 4}, p.Row(1))
	require.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, p.Rows())
}
