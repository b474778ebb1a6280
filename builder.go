// Package exprvec provides an embedded pipeline turning gene expression
// matrices into latent embeddings.
//
// This file implements the fluent builder API for creating and configuring
// Exprvec instances. The builder is immutable - each method returns a new
// builder with the updated configuration.
package exprvec

import (
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/persistence"
	"github.com/exprvec/exprvec/resource"
)

// Pipeline creates a new pipeline builder over the given blob store.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents
// accidental state sharing.
//
// Example:
//
//	ev, err := exprvec.Pipeline(store).
//	    ModelName("bulk-rnaseq").
//	    LZ4().
//	    Metrics(&exprvec.BasicMetricsCollector{}).
//	    Build()
func Pipeline(store blobstore.BlobStore) PipelineBuilder {
	return PipelineBuilder{
		store:       store,
		compression: persistence.CompressionZSTD,
		modelName:   DefaultModelName,
	}
}

// PipelineBuilder is an immutable fluent builder for creating Exprvec
// instances. Each method returns a new builder with the updated
// configuration.
type PipelineBuilder struct {
	store       blobstore.BlobStore
	compression persistence.CompressionType
	modelName   string
	normCfg     *norm.Config
	controller  *resource.Controller
	logger      *Logger
	metrics     MetricsCollector
}

// ZSTD selects zstd block compression for containers (the default).
func (b PipelineBuilder) ZSTD() PipelineBuilder {
	b.compression = persistence.CompressionZSTD
	return b
}

// LZ4 selects LZ4 block compression for containers.
func (b PipelineBuilder) LZ4() PipelineBuilder {
	b.compression = persistence.CompressionLZ4
	return b
}

// Uncompressed disables container block compression.
func (b PipelineBuilder) Uncompressed() PipelineBuilder {
	b.compression = persistence.CompressionNone
	return b
}

// ModelName sets the model directory for checkpoints and the registry.
func (b PipelineBuilder) ModelName(name string) PipelineBuilder {
	b.modelName = name
	return b
}

// Normalization sets the default normalization configuration.
func (b PipelineBuilder) Normalization(cfg norm.Config) PipelineBuilder {
	b.normCfg = &cfg
	return b
}

// Resources sets the resource controller for run admission and IO
// throttling.
func (b PipelineBuilder) Resources(rc *resource.Controller) PipelineBuilder {
	b.controller = rc
	return b
}

// Logger sets the structured logger for operation tracing.
func (b PipelineBuilder) Logger(l *Logger) PipelineBuilder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b PipelineBuilder) Metrics(mc MetricsCollector) PipelineBuilder {
	b.metrics = mc
	return b
}

// Build creates the Exprvec instance.
func (b PipelineBuilder) Build() (*Exprvec, error) {
	opts := []Option{
		WithCompression(b.compression),
		WithModelName(b.modelName),
	}
	if b.normCfg != nil {
		opts = append(opts, WithNormalization(*b.normCfg))
	}
	if b.controller != nil {
		opts = append(opts, WithResourceController(b.controller))
	}
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	if b.metrics != nil {
		opts = append(opts, WithMetricsCollector(b.metrics))
	}

	return New(b.store, opts...)
}

// MustBuild creates the Exprvec instance, panicking on error.
func (b PipelineBuilder) MustBuild() *Exprvec {
	ev, err := b.Build()
	if err != nil {
		panic(err)
	}
	return ev
}
