package autoenc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/util"
)

// ErrDiverged is returned when training produces no usable weights
// because the validation loss was non-finite in every epoch.
var ErrDiverged = errors.New("training diverged: non-finite validation loss")

// TrainOptions configure a training run.
type TrainOptions struct {
	// ValidationSplit is the fraction of samples held out for validation.
	// The split is positional: the leading samples train, the trailing
	// samples validate, and the boundary is never shuffled.
	ValidationSplit float64

	// Journal, when set, receives one record per completed epoch.
	Journal *Journal

	// OnEpoch, when set, is called after each epoch with that epoch's
	// statistics. Useful for progress logging.
	OnEpoch func(EpochStats)
}

// DefaultTrainOptions hold out 10% of samples for validation.
var DefaultTrainOptions = TrainOptions{
	ValidationSplit: 0.1,
}

// EpochStats describe one completed training epoch.
type EpochStats struct {
	Epoch     int // 1-based
	Epochs    int // total configured epochs
	TrainLoss float64
	ValLoss   float64
}

// History records per-epoch losses across a full run. The JSON field
// names match the persisted training history file.
type History struct {
	TrainLoss []float64 `json:"train_loss"`
	ValLoss   []float64 `json:"val_loss"`
}

// Result is the outcome of a training run.
type Result struct {
	// Best holds the weights from the epoch with the lowest validation
	// loss.
	Best *Network
	// Final holds the weights after the last epoch.
	Final *Network

	History     History
	BestEpoch   int // 1-based epoch that produced Best
	BestValLoss float64
}

// Train fits an autoencoder to the matrix. Samples are the training
// unit: the genes-by-samples matrix is transposed to sample-major and
// each sample vector is one training example.
//
// Per epoch the training set is reshuffled from the config seed and
// consumed in minibatches with Adam minimizing mean squared
// reconstruction error, followed by one no-gradient pass over the
// validation set. Identical (matrix, config, options) reproduce
// identical results bit for bit.
//
// Malformed input (empty matrix, non-finite values, gene count not
// matching cfg.InputDim) fails before any work happens.
func Train(ctx context.Context, m *expr.Matrix, cfg Config, optFns ...func(o *TrainOptions)) (*Result, error) {
	opts := DefaultTrainOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.CheckFinite(); err != nil {
		return nil, err
	}
	if got := m.NumGenes(); got != cfg.InputDim {
		return nil, fmt.Errorf("training data has %d genes, config input_dim is %d", got, cfg.InputDim)
	}
	if opts.ValidationSplit <= 0 || opts.ValidationSplit >= 1 {
		return nil, fmt.Errorf("validation split must be in (0, 1), got %v", opts.ValidationSplit)
	}

	n := m.NumSamples()
	nTrain := int(float64(n) * (1 - opts.ValidationSplit))
	nVal := n - nTrain
	if nTrain == 0 || nVal == 0 {
		return nil, fmt.Errorf("cannot split %d samples into training and validation sets with split %v", n, opts.ValidationSplit)
	}

	genes := cfg.InputDim
	data := m.SampleMajor()
	train := data[:nTrain*genes]
	val := data[nTrain*genes:]

	rng := util.NewRNG(cfg.Seed)
	net, err := NewNetwork(cfg, rng)
	if err != nil {
		return nil, err
	}
	opt := newAdam(net, cfg.LearningRate)
	grads := newGradients(net)

	perm := make([]int, nTrain)
	for i := range perm {
		perm[i] = i
	}

	var (
		hist      History
		best      *Network
		bestEpoch int
		bestVal   = math.Inf(1)
	)

	for epoch := 1; epoch <= cfg.NumEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(nTrain, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		trainLoss, err := trainEpoch(ctx, net, opt, grads, train, perm, genes, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		valLoss := evalLoss(net, val, nVal, genes, cfg.BatchSize)

		hist.TrainLoss = append(hist.TrainLoss, trainLoss)
		hist.ValLoss = append(hist.ValLoss, valLoss)

		if opts.Journal != nil {
			if err := opts.Journal.Append(Record{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss}); err != nil {
				return nil, fmt.Errorf("append epoch journal: %w", err)
			}
		}
		if opts.OnEpoch != nil {
			opts.OnEpoch(EpochStats{Epoch: epoch, Epochs: cfg.NumEpochs, TrainLoss: trainLoss, ValLoss: valLoss})
		}

		if valLoss < bestVal {
			bestVal = valLoss
			bestEpoch = epoch
			best = net.Clone()
		}
	}

	if best == nil {
		return nil, ErrDiverged
	}

	return &Result{
		Best:        best,
		Final:       net,
		History:     hist,
		BestEpoch:   bestEpoch,
		BestValLoss: bestVal,
	}, nil
}

// trainEpoch runs one pass over the shuffled training set and returns
// the mean of the per-batch losses.
func trainEpoch(ctx context.Context, net *Network, opt *adam, grads *gradients, train []float64, perm []int, genes, batchSize int) (float64, error) {
	var total float64
	var batches int
	for start := 0; start < len(perm); start += batchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(start+batchSize, len(perm))
		xb := gatherBatch(train, perm[start:end], genes)
		total += net.lossAndGradients(xb, grads)
		opt.step(net, grads)
		batches++
	}
	return total / float64(batches), nil
}

// evalLoss computes the mean per-batch reconstruction loss over the
// validation samples without touching gradients.
func evalLoss(net *Network, val []float64, nVal, genes, batchSize int) float64 {
	var total float64
	var batches int
	for start := 0; start < nVal; start += batchSize {
		end := min(start+batchSize, nVal)
		xb := mat.NewDense(end-start, genes, val[start*genes:end*genes])
		recon, _ := net.Forward(xb)
		total += mse(recon, xb)
		batches++
	}
	return total / float64(batches)
}

// gatherBatch copies the selected sample rows into a fresh batch matrix.
func gatherBatch(data []float64, idx []int, genes int) *mat.Dense {
	b := mat.NewDense(len(idx), genes, nil)
	raw := b.RawMatrix().Data
	for r, s := range idx {
		copy(raw[r*genes:(r+1)*genes], data[s*genes:(s+1)*genes])
	}
	return b
}

func mse(a, b *mat.Dense) float64 {
	ra, rb := a.RawMatrix(), b.RawMatrix()
	var sum float64
	for i := 0; i < ra.Rows; i++ {
		ar := ra.Data[i*ra.Stride : i*ra.Stride+ra.Cols]
		br := rb.Data[i*rb.Stride : i*rb.Stride+rb.Cols]
		for j := range ar {
			d := ar[j] - br[j]
			sum += d * d
		}
	}
	return sum / float64(ra.Rows*ra.Cols)
}
