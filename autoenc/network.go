package autoenc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/exprvec/exprvec/util"
)

// layer is one dense layer computing y = x*W + b with an optional ReLU.
// W is stored input-by-output so a batch forward pass is a single
// matrix product without transposes.
type layer struct {
	w    *mat.Dense // in x out
	b    []float64  // out
	in   int
	out  int
	relu bool
}

func newLayer(in, out int, relu bool) *layer {
	return &layer{
		w:    mat.NewDense(in, out, nil),
		b:    make([]float64, out),
		in:   in,
		out:  out,
		relu: relu,
	}
}

// forward computes the layer output for a batch (rows are samples).
// The input is not modified.
func (l *layer) forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Mul(x, l.w)
	raw := y.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, bj := range l.b {
			row[j] += bj
		}
		if l.relu {
			for j, v := range row {
				if v < 0 {
					row[j] = 0
				}
			}
		}
	}
	return &y
}

// Network is a symmetric autoencoder: an encoder from input to latent
// space and a decoder mirroring it back. The layer producing the latent
// code and the layer producing the reconstruction are plain linear maps;
// every other layer applies ReLU.
type Network struct {
	cfg    Config
	layers []*layer
	nEnc   int // layers[:nEnc] form the encoder
}

// NewNetwork builds a network for cfg with weights and biases drawn from
// rng as uniform values in (-1/sqrt(fanIn), +1/sqrt(fanIn)). Draws
// happen in a fixed order (layer by layer, weight before bias), so a
// seed fully determines the initial state.
func NewNetwork(cfg Config, rng *util.RNG) (*Network, error) {
	net, err := newShell(cfg)
	if err != nil {
		return nil, err
	}
	for _, l := range net.layers {
		bound := 1.0 / math.Sqrt(float64(l.in))
		data := l.w.RawMatrix().Data
		for i := range data {
			data[i] = rng.Uniform(-bound, bound)
		}
		for i := range l.b {
			l.b[i] = rng.Uniform(-bound, bound)
		}
	}
	return net, nil
}

// newShell builds the layer structure for cfg with zero weights.
func newShell(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encDims := make([]int, 0, len(cfg.HiddenDims)+2)
	encDims = append(encDims, cfg.InputDim)
	encDims = append(encDims, cfg.HiddenDims...)
	encDims = append(encDims, cfg.LatentDim)

	decDims := make([]int, 0, len(encDims))
	decDims = append(decDims, cfg.LatentDim)
	for i := len(cfg.HiddenDims) - 1; i >= 0; i-- {
		decDims = append(decDims, cfg.HiddenDims[i])
	}
	decDims = append(decDims, cfg.InputDim)

	net := &Network{cfg: cfg, nEnc: len(encDims) - 1}
	for i := 0; i+1 < len(encDims); i++ {
		net.layers = append(net.layers, newLayer(encDims[i], encDims[i+1], i+2 < len(encDims)))
	}
	for i := 0; i+1 < len(decDims); i++ {
		net.layers = append(net.layers, newLayer(decDims[i], decDims[i+1], i+2 < len(decDims)))
	}
	return net, nil
}

// Config returns the configuration the network was built from.
func (n *Network) Config() Config {
	return n.cfg
}

// Encode maps a samples-by-genes batch to its samples-by-latent
// embedding.
func (n *Network) Encode(x *mat.Dense) *mat.Dense {
	h := x
	for _, l := range n.layers[:n.nEnc] {
		h = l.forward(h)
	}
	return h
}

// Decode maps a samples-by-latent batch back to reconstructed
// expression space.
func (n *Network) Decode(z *mat.Dense) *mat.Dense {
	h := z
	for _, l := range n.layers[n.nEnc:] {
		h = l.forward(h)
	}
	return h
}

// Forward runs the full autoencoder and returns the reconstruction and
// the latent code.
func (n *Network) Forward(x *mat.Dense) (reconstructed, latent *mat.Dense) {
	z := n.Encode(x)
	return n.Decode(z), z
}

// Clone returns a deep copy of the network. Training continues to
// mutate the original; the clone is frozen at the moment of the call.
func (n *Network) Clone() *Network {
	c := &Network{cfg: n.cfg, nEnc: n.nEnc}
	c.layers = make([]*layer, 0, len(n.layers))
	for _, l := range n.layers {
		nl := newLayer(l.in, l.out, l.relu)
		nl.w.Copy(l.w)
		copy(nl.b, l.b)
		c.layers = append(c.layers, nl)
	}
	return c
}

// gradients holds one weight and bias gradient per layer, shaped to
// match the network. Buffers are reused across batches.
type gradients struct {
	w []*mat.Dense
	b [][]float64
}

func newGradients(n *Network) *gradients {
	g := &gradients{
		w: make([]*mat.Dense, len(n.layers)),
		b: make([][]float64, len(n.layers)),
	}
	for i, l := range n.layers {
		g.w[i] = mat.NewDense(l.in, l.out, nil)
		g.b[i] = make([]float64, l.out)
	}
	return g
}

// forwardAll runs the network keeping every activation for the backward
// pass. acts[0] is the input, acts[len(layers)] the reconstruction.
func (n *Network) forwardAll(x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(n.layers)+1)
	acts[0] = x
	for i, l := range n.layers {
		acts[i+1] = l.forward(acts[i])
	}
	return acts
}

// lossAndGradients backpropagates the mean squared reconstruction error
// for one minibatch, writing parameter gradients into g, and returns the
// batch loss.
func (n *Network) lossAndGradients(x *mat.Dense, g *gradients) float64 {
	acts := n.forwardAll(x)
	out := acts[len(acts)-1]

	rows, cols := out.Dims()
	elems := float64(rows * cols)

	// Loss L = mean((out-x)^2), so dL/dout = 2*(out-x)/elems.
	d := mat.NewDense(rows, cols, nil)
	rawOut := out.RawMatrix()
	rawX := x.RawMatrix()
	rawD := d.RawMatrix()
	var loss float64
	scale := 2.0 / elems
	for i := 0; i < rows; i++ {
		or := rawOut.Data[i*rawOut.Stride : i*rawOut.Stride+cols]
		xr := rawX.Data[i*rawX.Stride : i*rawX.Stride+cols]
		dr := rawD.Data[i*rawD.Stride : i*rawD.Stride+cols]
		for j := range or {
			diff := or[j] - xr[j]
			loss += diff * diff
			dr[j] = scale * diff
		}
	}
	loss /= elems

	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]

		if l.relu {
			// The layer output is post-activation, so a zero output means
			// the unit was clipped and passes no gradient.
			rawA := acts[li+1].RawMatrix()
			rawD := d.RawMatrix()
			for i := 0; i < rawD.Rows; i++ {
				ar := rawA.Data[i*rawA.Stride : i*rawA.Stride+rawA.Cols]
				dr := rawD.Data[i*rawD.Stride : i*rawD.Stride+rawD.Cols]
				for j := range dr {
					if ar[j] <= 0 {
						dr[j] = 0
					}
				}
			}
		}

		g.w[li].Mul(acts[li].T(), d)

		gb := g.b[li]
		for j := range gb {
			gb[j] = 0
		}
		rawD := d.RawMatrix()
		for i := 0; i < rawD.Rows; i++ {
			dr := rawD.Data[i*rawD.Stride : i*rawD.Stride+rawD.Cols]
			for j, v := range dr {
				gb[j] += v
			}
		}

		if li > 0 {
			var dp mat.Dense
			dp.Mul(d, l.w.T())
			d = &dp
		}
	}

	return loss
}
