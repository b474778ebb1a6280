package autoenc

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a model configuration cannot
// describe a trainable network.
var ErrInvalidConfig = errors.New("invalid model config")

// Config describes the autoencoder architecture and its training
// hyperparameters. Field names match the persisted model config, so
// checkpoints written by one build decode under any other.
type Config struct {
	// InputDim is the gene count the model is trained on. It has no
	// default: embeddings are only meaningful when inference inputs share
	// the training gene ordering, so the dimension must be stated.
	InputDim int `json:"input_dim"`

	// LatentDim is the embedding width.
	LatentDim int `json:"latent_dim"`

	// HiddenDims are the encoder hidden layer widths, widest first.
	// The decoder mirrors them in reverse. May be empty.
	HiddenDims []int `json:"hidden_dims"`

	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	NumEpochs    int     `json:"num_epochs"`

	// Seed drives weight initialization and per-epoch shuffling.
	Seed int64 `json:"random_seed"`

	// ModelVersion tags checkpoints for provenance.
	ModelVersion string `json:"model_version"`
}

// DefaultConfig returns the standard configuration for the given input
// dimension: a 512/256 encoder into a 128-wide latent space, trained
// for 100 epochs with Adam at learning rate 0.001.
func DefaultConfig(inputDim int) Config {
	return Config{
		InputDim:     inputDim,
		LatentDim:    128,
		HiddenDims:   []int{512, 256},
		LearningRate: 0.001,
		BatchSize:    32,
		NumEpochs:    100,
		Seed:         42,
		ModelVersion: "0.1.0",
	}
}

// Validate checks that the configuration describes a trainable network.
func (c Config) Validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("%w: input_dim must be positive, got %d", ErrInvalidConfig, c.InputDim)
	}
	if c.LatentDim <= 0 {
		return fmt.Errorf("%w: latent_dim must be positive, got %d", ErrInvalidConfig, c.LatentDim)
	}
	for i, h := range c.HiddenDims {
		if h <= 0 {
			return fmt.Errorf("%w: hidden_dims[%d] must be positive, got %d", ErrInvalidConfig, i, h)
		}
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate must be positive, got %v", ErrInvalidConfig, c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.NumEpochs <= 0 {
		return fmt.Errorf("%w: num_epochs must be positive, got %d", ErrInvalidConfig, c.NumEpochs)
	}
	return nil
}
