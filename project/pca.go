package project

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/exprvec/exprvec/expr"
)

// projectPCA computes the first k principal components of the embedding
// by thin SVD of the mean-centered sample matrix. Scores are U*Sigma,
// explained variance fractions are sigma_i^2 over the total. Each axis
// sign is pinned by forcing its largest-magnitude loading positive, so
// repeated runs on the same data produce identical coordinates.
func projectPCA(e *expr.Embedding, k int) (*Projection, error) {
	n, d := e.NumSamples(), e.Dims
	if k > n || k > d {
		return nil, &InvalidProjectionError{
			Method:      string(MethodPCA),
			NComponents: k,
			Reason:      fmt.Sprintf("cannot compute %d components from %d samples x %d dims", k, n, d),
		}
	}

	means := make([]float64, d)
	for i := 0; i < n; i++ {
		for j, v := range e.Vector(i) {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	cdata := centered.RawMatrix().Data
	for i := 0; i < n; i++ {
		row := cdata[i*d : (i+1)*d]
		for j, v := range e.Vector(i) {
			row[j] = v - means[j]
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("pca: singular value decomposition did not converge")
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Pin axis signs to the largest-magnitude loading. Ties resolve to
	// the lowest dimension index.
	for c := 0; c < k; c++ {
		maxIdx, maxAbs := 0, 0.0
		for r := 0; r < d; r++ {
			if a := math.Abs(v.At(r, c)); a > maxAbs {
				maxAbs, maxIdx = a, r
			}
		}
		if v.At(maxIdx, c) < 0 {
			for r := 0; r < n; r++ {
				u.Set(r, c, -u.At(r, c))
			}
			for r := 0; r < d; r++ {
				v.Set(r, c, -v.At(r, c))
			}
		}
	}

	coords := make([]float64, n*k)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			coords[i*k+c] = u.At(i, c) * sv[c]
		}
	}

	var total float64
	for _, s := range sv {
		total += s * s
	}
	explained := make([]float64, k)
	if total > 0 {
		for c := 0; c < k; c++ {
			explained[c] = sv[c] * sv[c] / total
		}
	}

	ids := make([]string, n)
	copy(ids, e.SampleIDs)
	return &Projection{
		SampleIDs:         ids,
		Method:            MethodPCA,
		NComponents:       k,
		Coordinates:       coords,
		ExplainedVariance: explained,
	}, nil
}
