// Package autoenc implements the symmetric autoencoder that turns
// normalized expression matrices into per-sample embeddings.
//
// # Architecture
//
// The encoder maps input through the configured hidden layers down to
// the latent dimension. Hidden layers apply ReLU; the projection into
// latent space is a plain linear map. The decoder mirrors the encoder in
// reverse back to the input dimension, again ending without an
// activation. All arithmetic is float64 over gonum dense matrices.
//
// # Training
//
// Train fits the network with minibatch Adam on mean squared
// reconstruction error. The trailing fraction of samples is held out for
// validation at a fixed positional boundary that is never shuffled.
// Training order reshuffles every epoch from the config seed, so a run
// is reproducible from (data, config) alone:
//
//	res, err := autoenc.Train(ctx, m, autoenc.DefaultConfig(m.NumGenes()))
//	if err != nil {
//		return err
//	}
//	// res.Best holds the lowest-validation-loss weights,
//	// res.Final the weights after the last epoch.
//
// # Checkpoints and progress
//
// SaveCheckpoint and LoadCheckpoint move a trained network through a
// sectioned container holding the model config and the raw weight
// tensors. During training a Journal streams one record per epoch to a
// writer, so long runs stay observable before the final history file is
// written.
package autoenc
