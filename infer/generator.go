package infer

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/exprvec/exprvec/autoenc"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/internal/mmap"
)

// Options configure a Generator.
type Options struct {
	// BatchSize is the number of samples encoded per batch.
	BatchSize int

	// Parallelism bounds how many batches encode concurrently. Values
	// below 1 select GOMAXPROCS.
	Parallelism int
}

// DefaultOptions encode 32 samples per batch.
var DefaultOptions = Options{
	BatchSize: 32,
}

// Generator produces embeddings from a frozen trained network. It is
// safe for concurrent use: generation only reads the weights.
type Generator struct {
	net         *autoenc.Network
	batchSize   int
	parallelism int
}

// New wraps an already-loaded network.
func New(net *autoenc.Network, optFns ...func(o *Options)) *Generator {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Generator{
		net:         net,
		batchSize:   opts.BatchSize,
		parallelism: opts.Parallelism,
	}
}

// FromBytes parses a checkpoint bundle already in memory, typically a
// blob store read. ModelLoadError wraps any parse or validation
// failure.
func FromBytes(data []byte, optFns ...func(o *Options)) (*Generator, error) {
	net, err := autoenc.LoadCheckpoint(data)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	return New(net, optFns...), nil
}

// Load reads and parses a checkpoint bundle from a local file. The file
// is mapped rather than read: the network copies its tensors out, so
// nothing references the mapping after Load returns.
func Load(ctx context.Context, path string, optFns ...func(o *Options)) (*Generator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := mmap.Open(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	defer m.Close()

	net, err := autoenc.LoadCheckpoint(m.Bytes())
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return New(net, optFns...), nil
}

// Config returns the model configuration of the wrapped network.
func (g *Generator) Config() autoenc.Config {
	return g.net.Config()
}

// Generate encodes a normalized genes-by-samples matrix into a
// samples-by-latent embedding, preserving the input sample order. The
// input is not modified. Batches encode concurrently up to the
// configured parallelism; each batch writes to a fixed row range, so
// the result is bit-identical to an unbatched pass.
func (g *Generator) Generate(ctx context.Context, m *expr.Matrix) (*expr.Embedding, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	cfg := g.net.Config()
	if got := m.NumGenes(); got != cfg.InputDim {
		return nil, &DimensionMismatchError{DataGenes: got, ModelGenes: cfg.InputDim}
	}

	n := m.NumSamples()
	genes := cfg.InputDim
	latent := cfg.LatentDim
	data := m.SampleMajor()
	out := make([]float64, n*latent)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelism)
	for start := 0; start < n; start += g.batchSize {
		end := min(start+g.batchSize, n)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			xb := mat.NewDense(end-start, genes, data[start*genes:end*genes])
			z := g.net.Encode(xb)
			raw := z.RawMatrix()
			for i := 0; i < raw.Rows; i++ {
				copy(out[(start+i)*latent:(start+i+1)*latent],
					raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sampleIDs := make([]string, len(m.SampleIDs))
	copy(sampleIDs, m.SampleIDs)
	return expr.NewEmbedding(sampleIDs, latent, out)
}

// GenerateVector encodes a single expression vector (one value per
// gene, in model gene order) into its embedding.
func (g *Generator) GenerateVector(vec []float64) ([]float64, error) {
	cfg := g.net.Config()
	if len(vec) != cfg.InputDim {
		return nil, &DimensionMismatchError{DataGenes: len(vec), ModelGenes: cfg.InputDim}
	}

	x := mat.NewDense(1, cfg.InputDim, vec)
	z := g.net.Encode(x)
	out := make([]float64, cfg.LatentDim)
	copy(out, z.RawMatrix().Data[:cfg.LatentDim])
	return out, nil
}
