package project

import (
	"fmt"
	"math"
	"sort"

	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/util"
)

const (
	// smoothTolerance bounds the bandwidth search for the fuzzy graph.
	smoothTolerance = 1e-5
	// repulsionStrength weighs negative samples during layout.
	repulsionStrength = 1.0
	// gradientClip bounds a single per-dimension update.
	gradientClip = 4.0
)

// projectUMAP lays out the embedding with a fuzzy k-NN graph and seeded
// stochastic gradient descent. All randomness flows from opts.Seed, so
// the layout is reproducible.
func projectUMAP(e *expr.Embedding, k int, opts Options) (*Projection, error) {
	n, d := e.NumSamples(), e.Dims
	if n < 2 {
		return nil, &InvalidProjectionError{
			Method:      string(MethodUMAP),
			NComponents: k,
			Reason:      fmt.Sprintf("neighborhood layout needs at least 2 samples, got %d", n),
		}
	}

	nNeighbors := opts.NNeighbors
	if nNeighbors < 1 {
		nNeighbors = DefaultOptions.NNeighbors
	}
	if nNeighbors > n-1 {
		nNeighbors = n - 1
	}
	minDist := opts.MinDist
	if minDist <= 0 {
		minDist = DefaultOptions.MinDist
	}
	negRate := opts.NegativeSampleRate
	if negRate < 1 {
		negRate = DefaultOptions.NegativeSampleRate
	}
	nEpochs := opts.NEpochs
	if nEpochs <= 0 {
		// Small collections get the longer schedule, matching the
		// usual heuristic for this family of layouts.
		if n < 10000 {
			nEpochs = 500
		} else {
			nEpochs = 200
		}
	}

	nbrs, dists := knnGraph(e.Values, n, d, nNeighbors)
	edges := fuzzyGraph(nbrs, dists, n)

	rng := util.NewRNG(opts.Seed)
	coords := make([]float64, n*k)
	for i := range coords {
		coords[i] = rng.Uniform(-10, 10)
	}
	curveA, curveB := fitCurveParams(minDist)
	optimizeLayout(coords, n, k, edges, nEpochs, curveA, curveB, negRate, rng)

	ids := make([]string, n)
	copy(ids, e.SampleIDs)
	return &Projection{
		SampleIDs:   ids,
		Method:      MethodUMAP,
		NComponents: k,
		Coordinates: coords,
	}, nil
}

// knnGraph finds the nNeighbors nearest neighbors of every sample by
// exact search over Euclidean distance. Neighbor lists are ordered by
// distance, ties broken by sample index.
func knnGraph(values []float64, n, d, nNeighbors int) (nbrs [][]int, dists [][]float64) {
	type candidate struct {
		idx  int
		dist float64
	}
	nbrs = make([][]int, n)
	dists = make([][]float64, n)
	cands := make([]candidate, 0, n-1)
	for i := 0; i < n; i++ {
		vi := values[i*d : (i+1)*d]
		cands = cands[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			vj := values[j*d : (j+1)*d]
			var sum float64
			for c, x := range vi {
				diff := x - vj[c]
				sum += diff * diff
			}
			cands = append(cands, candidate{idx: j, dist: math.Sqrt(sum)})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		nbrs[i] = make([]int, nNeighbors)
		dists[i] = make([]float64, nNeighbors)
		for c := 0; c < nNeighbors; c++ {
			nbrs[i][c] = cands[c].idx
			dists[i][c] = cands[c].dist
		}
	}
	return nbrs, dists
}

// smoothBandwidth finds rho and sigma for one sample so that the sum of
// exp(-(d-rho)/sigma) over its neighbors hits log2(k), the calibration
// that gives every sample comparable effective connectivity.
func smoothBandwidth(dists []float64) (rho, sigma float64) {
	target := math.Log2(float64(len(dists)))
	for _, dist := range dists {
		if dist > 0 {
			rho = dist
			break
		}
	}

	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for iter := 0; iter < 64; iter++ {
		var sum float64
		for _, dist := range dists {
			if diff := dist - rho; diff > 0 {
				sum += math.Exp(-diff / mid)
			} else {
				sum++
			}
		}
		if math.Abs(sum-target) < smoothTolerance {
			break
		}
		if sum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}
	return rho, mid
}

// layoutEdge is an undirected fuzzy-graph edge with membership weight.
type layoutEdge struct {
	a, b int
	w    float64
}

// fuzzyGraph converts directed neighbor lists into a symmetric weighted
// edge list via the fuzzy union w_ab + w_ba - w_ab*w_ba. Edge order is
// deterministic.
func fuzzyGraph(nbrs [][]int, dists [][]float64, n int) []layoutEdge {
	directed := make([]map[int]float64, n)
	for i := 0; i < n; i++ {
		rho, sigma := smoothBandwidth(dists[i])
		directed[i] = make(map[int]float64, len(nbrs[i]))
		for c, j := range nbrs[i] {
			w := 1.0
			if diff := dists[i][c] - rho; diff > 0 {
				w = math.Exp(-diff / sigma)
			}
			directed[i][j] = w
		}
	}

	edges := make([]layoutEdge, 0, n*len(nbrs[0]))
	for i := 0; i < n; i++ {
		for _, j := range nbrs[i] {
			wij := directed[i][j]
			if j > i {
				wji := directed[j][i]
				edges = append(edges, layoutEdge{a: i, b: j, w: wij + wji - wij*wji})
				continue
			}
			// The pair (j, i) was not emitted while scanning j unless
			// i sits in j's neighbor list.
			if _, ok := directed[j][i]; !ok {
				edges = append(edges, layoutEdge{a: j, b: i, w: wij})
			}
		}
	}
	return edges
}

// optimizeLayout runs the attraction/repulsion schedule over the edge
// list. Strong edges fire every epoch, weak edges proportionally less
// often, and each attractive update is paired with negRate repulsive
// samples drawn from rng.
func optimizeLayout(coords []float64, n, k int, edges []layoutEdge, nEpochs int, curveA, curveB float64, negRate int, rng *util.RNG) {
	var maxW float64
	for _, e := range edges {
		if e.w > maxW {
			maxW = e.w
		}
	}
	if maxW == 0 {
		return
	}
	every := make([]float64, len(edges))
	next := make([]float64, len(edges))
	for i, e := range edges {
		every[i] = maxW / e.w
		next[i] = every[i]
	}

	for epoch := 1; epoch <= nEpochs; epoch++ {
		alpha := 1 - float64(epoch-1)/float64(nEpochs)
		for ei, e := range edges {
			if next[ei] > float64(epoch) {
				continue
			}
			next[ei] += every[ei]

			pa := coords[e.a*k : (e.a+1)*k]
			pb := coords[e.b*k : (e.b+1)*k]
			attract(pa, pb, curveA, curveB, alpha)
			for s := 0; s < negRate; s++ {
				j := rng.Intn(n)
				if j == e.a {
					continue
				}
				repel(pa, coords[j*k:(j+1)*k], curveA, curveB, alpha)
			}
		}
	}
}

func attract(pa, pb []float64, curveA, curveB, alpha float64) {
	var d2 float64
	for c, x := range pa {
		diff := x - pb[c]
		d2 += diff * diff
	}
	if d2 <= 0 {
		return
	}
	coeff := -2 * curveA * curveB * math.Pow(d2, curveB-1) / (curveA*math.Pow(d2, curveB) + 1)
	for c := range pa {
		g := clip(coeff * (pa[c] - pb[c]))
		pa[c] += alpha * g
		pb[c] -= alpha * g
	}
}

func repel(pa, pn []float64, curveA, curveB, alpha float64) {
	var d2 float64
	for c, x := range pa {
		diff := x - pn[c]
		d2 += diff * diff
	}
	if d2 > 0 {
		coeff := 2 * repulsionStrength * curveB / ((0.001 + d2) * (curveA*math.Pow(d2, curveB) + 1))
		for c := range pa {
			pa[c] += alpha * clip(coeff*(pa[c]-pn[c]))
		}
		return
	}
	// Coincident points get a fixed push so they separate.
	for c := range pa {
		pa[c] += alpha * gradientClip
	}
}

func clip(v float64) float64 {
	if v > gradientClip {
		return gradientClip
	}
	if v < -gradientClip {
		return -gradientClip
	}
	return v
}

// fitCurveParams fits the low-dimensional similarity curve
// 1/(1 + a*d^(2b)) to the target membership shape for the given minimum
// distance: exactly 1 below minDist, exponential decay above it. The
// fit is Gauss-Newton least squares with backtracking, started at
// a=1, b=1.
func fitCurveParams(minDist float64) (a, b float64) {
	const (
		spread  = 1.0
		samples = 300
		iters   = 200
	)
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	for i := range xs {
		x := spread * 3 * float64(i+1) / samples
		xs[i] = x
		if x <= minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}

	a, b = 1, 1
	sse := curveSSE(xs, ys, a, b)
	for iter := 0; iter < iters; iter++ {
		var jtj00, jtj01, jtj11, jtr0, jtr1 float64
		for i, x := range xs {
			xb := math.Pow(x, 2*b)
			den := 1 + a*xb
			r := 1/den - ys[i]
			da := -xb / (den * den)
			db := -2 * a * xb * math.Log(x) / (den * den)
			jtj00 += da * da
			jtj01 += da * db
			jtj11 += db * db
			jtr0 += da * r
			jtr1 += db * r
		}
		det := jtj00*jtj11 - jtj01*jtj01
		if det == 0 {
			break
		}
		stepA := (jtj11*jtr0 - jtj01*jtr1) / det
		stepB := (jtj00*jtr1 - jtj01*jtr0) / det

		improved := false
		for scale := 1.0; scale > 1e-6; scale /= 2 {
			na, nb := a-scale*stepA, b-scale*stepB
			if na <= 0 || nb <= 0 {
				continue
			}
			if nsse := curveSSE(xs, ys, na, nb); nsse < sse {
				a, b, sse = na, nb, nsse
				improved = true
				break
			}
		}
		if !improved {
			break
		}
	}
	return a, b
}

func curveSSE(xs, ys []float64, a, b float64) float64 {
	var sse float64
	for i, x := range xs {
		r := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
		sse += r * r
	}
	return sse
}
