package autoenc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam update constants.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// adam carries first and second moment estimates for every parameter
// tensor, shaped to match the network.
type adam struct {
	lr float64
	t  int

	mw, vw []*mat.Dense
	mb, vb [][]float64
}

func newAdam(n *Network, lr float64) *adam {
	a := &adam{
		lr: lr,
		mw: make([]*mat.Dense, len(n.layers)),
		vw: make([]*mat.Dense, len(n.layers)),
		mb: make([][]float64, len(n.layers)),
		vb: make([][]float64, len(n.layers)),
	}
	for i, l := range n.layers {
		a.mw[i] = mat.NewDense(l.in, l.out, nil)
		a.vw[i] = mat.NewDense(l.in, l.out, nil)
		a.mb[i] = make([]float64, l.out)
		a.vb[i] = make([]float64, l.out)
	}
	return a
}

// step applies one bias-corrected Adam update from g to the network
// parameters.
func (a *adam) step(n *Network, g *gradients) {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))

	for li, l := range n.layers {
		adamUpdate(l.w.RawMatrix().Data, g.w[li].RawMatrix().Data,
			a.mw[li].RawMatrix().Data, a.vw[li].RawMatrix().Data, a.lr, c1, c2)
		adamUpdate(l.b, g.b[li], a.mb[li], a.vb[li], a.lr, c1, c2)
	}
}

func adamUpdate(p, g, m, v []float64, lr, c1, c2 float64) {
	for i := range p {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g[i]
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g[i]*g[i]
		mhat := m[i] / c1
		vhat := v[i] / c2
		p[i] -= lr * mhat / (math.Sqrt(vhat) + adamEps)
	}
}
