// Package infer turns trained autoencoder checkpoints into embedding
// generators.
//
// A Generator wraps frozen network weights. Load reads a checkpoint
// bundle from disk, FromBytes parses one already in memory (a blob
// store read), and Generate encodes a normalized expression matrix into
// a per-sample embedding:
//
//	gen, err := infer.Load(ctx, "models/default/best.ckpt")
//	if err != nil {
//		return err
//	}
//	emb, err := gen.Generate(ctx, normalized)
//
// Generation batches samples (32 by default) and may encode batches
// concurrently; every batch lands at a fixed row offset, so the output
// is identical to a single unbatched pass regardless of parallelism.
// The input gene count must equal the model input dimension exactly, a
// mismatch fails with DimensionMismatchError before any encoding.
package infer
