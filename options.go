package exprvec

import (
	"log/slog"

	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/persistence"
	"github.com/exprvec/exprvec/resource"
)

// DefaultModelName is the model directory used when no explicit name is
// configured. Checkpoints register under models/<name>/.
const DefaultModelName = "default"

type options struct {
	compression persistence.CompressionType
	modelName   string
	normCfg     norm.Config
	controller  *resource.Controller
	metrics     MetricsCollector
	logger      *Logger
}

// Option configures constructor behavior.
//
// Breaking changes are expected while the API is pre-release.
type Option func(*options)

// WithCompression configures the block compression used for matrix,
// embedding, and checkpoint containers. Default: zstd.
func WithCompression(c persistence.CompressionType) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithModelName configures the model directory used for checkpoints and
// the registry manifest. Default: "default".
//
// Distinct names keep independently trained models apart under the same
// store; RunPipeline resolves its default checkpoint from this model's
// registry.
func WithModelName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.modelName = name
		}
	}
}

// WithNormalization configures the default normalization applied by
// RunPipeline and Train. Individual runs can still override it via the
// RunOption of the same name.
func WithNormalization(cfg norm.Config) Option {
	return func(o *options) {
		o.normCfg = cfg
	}
}

// WithResourceController configures admission control for pipeline runs
// and artifact IO throttling. Pass nil for the default controller, which
// admits GOMAXPROCS concurrent runs unthrottled.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &exprvec.BasicMetricsCollector{}
//	ev, _ := exprvec.New(store, exprvec.WithMetricsCollector(metrics))
//	// ... use ev ...
//	stats := metrics.GetStats()
//	fmt.Printf("Runs: %d, Avg latency: %dns\n", stats.RunCount, stats.RunAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := exprvec.NewJSONLogger(slog.LevelInfo)
//	ev, _ := exprvec.New(store, exprvec.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression: persistence.CompressionZSTD,
		modelName:   DefaultModelName,
		normCfg:     norm.DefaultConfig(),
		metrics:     NoopMetricsCollector{},
		logger:      NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
