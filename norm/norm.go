package norm

import (
	"errors"
	"fmt"
	"math"

	"github.com/exprvec/exprvec/expr"
)

// ErrInvalidLogBase is returned when the configured log base cannot
// define a logarithm.
var ErrInvalidLogBase = errors.New("invalid log base")

// Config controls the normalization steps. Field names serialize in the
// form persisted alongside processed artifacts.
type Config struct {
	// LogBase selects the logarithm base when UseLog1p is false.
	LogBase float64 `json:"log_base"`
	// UseLog1p applies natural log1p, which handles zeros gracefully.
	UseLog1p bool `json:"use_log1p"`

	// ApplyBatchCorrection and BatchCorrectionMethod are a placeholder
	// hook. They are recorded but apply no transform.
	ApplyBatchCorrection  bool   `json:"apply_batch_correction"`
	BatchCorrectionMethod string `json:"batch_correction_method,omitempty"`

	// Seed is reserved for future stochastic steps. The current steps
	// consume no randomness; the value is carried for the audit trail.
	Seed int64 `json:"random_seed"`

	ScaleUnitVariance bool `json:"scale_to_unit_variance"`
	CenterMean        bool `json:"center_mean"`
}

// DefaultConfig returns the standard normalization configuration:
// log1p transform only, seed 42.
func DefaultConfig() Config {
	return Config{
		LogBase:  2,
		UseLog1p: true,
		Seed:     42,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !c.UseLog1p && (c.LogBase <= 0 || c.LogBase == 1) {
		return fmt.Errorf("%w: %v", ErrInvalidLogBase, c.LogBase)
	}
	return nil
}

// Snapshot records the applied configuration and the input/output
// shapes. It is persisted next to normalized artifacts so a result can
// be audited and re-derived.
type Snapshot struct {
	Config
	InputShape  [2]int `json:"input_shape"`
	OutputShape [2]int `json:"output_shape"`
}

// Normalize applies the configured steps to m and returns a new matrix.
// The input is never mutated. Non-finite input values are an error, not
// silently coerced.
func Normalize(m *expr.Matrix, cfg Config) (*expr.Matrix, Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Snapshot{}, err
	}
	if err := m.Validate(); err != nil {
		return nil, Snapshot{}, err
	}
	if err := m.CheckFinite(); err != nil {
		return nil, Snapshot{}, err
	}

	out := m.Clone()
	ng, ns := out.NumGenes(), out.NumSamples()

	// Step 1: log transform.
	if cfg.UseLog1p {
		for i, v := range out.Values {
			out.Values[i] = math.Log1p(v)
		}
	} else {
		switch cfg.LogBase {
		case 2:
			for i, v := range out.Values {
				out.Values[i] = math.Log2(v + 1)
			}
		case 10:
			for i, v := range out.Values {
				out.Values[i] = math.Log10(v + 1)
			}
		default:
			logBase := math.Log(cfg.LogBase)
			for i, v := range out.Values {
				out.Values[i] = math.Log(v+1) / logBase
			}
		}
	}

	// Step 2: batch correction hook. Recorded in the snapshot, applies
	// no transform.

	// Step 3: scale each gene to unit variance. Zero-variance genes keep
	// their values (divisor 1).
	if cfg.ScaleUnitVariance {
		for g := 0; g < ng; g++ {
			row := out.Values[g*ns : (g+1)*ns]
			std := sampleStd(row)
			if std == 0 {
				continue
			}
			for i := range row {
				row[i] /= std
			}
		}
	}

	// Step 4: center each gene to zero mean.
	if cfg.CenterMean {
		for g := 0; g < ng; g++ {
			row := out.Values[g*ns : (g+1)*ns]
			m := mean(row)
			for i := range row {
				row[i] -= m
			}
		}
	}

	snap := Snapshot{
		Config:      cfg,
		InputShape:  [2]int{ng, ns},
		OutputShape: [2]int{out.NumGenes(), out.NumSamples()},
	}
	return out, snap, nil
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// sampleStd computes the sample standard deviation (n-1 denominator).
// A single observation has no spread and yields 0.
func sampleStd(vals []float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	m := mean(vals)
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
