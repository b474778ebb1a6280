// Package exprvec provides an embedded gene expression embedding pipeline for Go.
//
// Exprvec turns raw expression matrices (genes x samples) into compact
// latent embeddings with a trained autoencoder, and projects those
// embeddings to 2D/3D coordinates for visualization. Every artifact
// lives in a pluggable blob store, so the same pipeline runs on a local
// directory, in memory, or against S3/MinIO.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	store, _ := blobstore.NewLocalStore("./data")
//	ev, _ := exprvec.New(store)
//	defer ev.Close()
//
//	res, _ := ev.IngestFile(ctx, "counts.csv")
//	ev.Train(ctx, res.IngestionID, autoenc.DefaultConfig(0))
//	ev.RunPipeline(ctx, res.IngestionID)
//	vis, _ := ev.GetVisualization(ctx, res.IngestionID, "umap", 2)
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("expression/"))
//	ev, _ := exprvec.New(s3Store, exprvec.WithModelName("bulk-rnaseq"))
//
// # Pipeline Stages
//
// A run advances through fixed stages and never retries:
//
//	LOADING      read the canonical matrix and sample metadata
//	VALIDATING   resolve the model, gate on gene count
//	NORMALIZING  log transform, scale, center (deterministic)
//	EMBEDDING    encode samples through the trained autoencoder
//	PERSISTING   commit embedding + metadata as one artifact group
//	DONE
//
// Any stage can transition to FAILED; the returned error reports the
// stage and wraps a member of the failure taxonomy (ErrNotFound,
// ErrDimensionMismatch, ErrModelLoad, ErrPersistence, ...).
//
// # Store Layout
//
// One blob store holds everything, keyed by convention:
//
//	processed/<ingestion_id>/matrix.exm      canonical expression matrix
//	processed/<ingestion_id>/metadata.json   sample metadata + provenance
//	embeddings/<ingestion_id>/embedding.exm  latent embedding container
//	embeddings/<ingestion_id>/metadata.json  run provenance (written last)
//	models/<name>/gen-000001.ckpt            best-epoch checkpoint
//	models/<name>/gen-000001-final.ckpt      final-epoch checkpoint
//	models/<name>/history.json               per-epoch losses
//	models/<name>/epochs.log                 append-only epoch journal
//	models/<name>/manifest/, CURRENT         model registry
//
// Within a group the metadata document is written last, so a reader
// that sees it can trust the rest of the group.
//
// # Determinism
//
// Identical inputs produce identical outputs. Training, normalization
// and UMAP layouts draw from seeded RNGs; embedding generation is
// bit-identical for any batch size or worker count. Seeds live in the
// persisted configs, so results reproduce across processes.
//
// # Key Features
//
//   - Delimited-table (CSV/TSV) and binary container ingestion
//   - Deterministic normalization (log transform, unit variance, centering)
//   - Autoencoder training with best/final checkpoints and epoch journal
//   - Versioned model registry with an atomically advanced CURRENT pointer
//   - PCA and UMAP projections with a fluent query builder
//   - Typed annotation filtering over sample metadata
//   - Cloud-native storage (S3/MinIO via BlobStore)
//   - Structured logging (slog) and pluggable metrics
package exprvec
