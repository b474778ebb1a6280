// Package blobstore provides the artifact store abstraction for
// ingested matrices, embeddings and model checkpoints.
//
// BlobStore is the interface for reading and writing artifacts under
// hierarchical keys such as "processed/<id>/matrix.exm". Implementations
// must be safe for concurrent use. Artifacts are immutable once written;
// a pipeline re-run replaces whole key groups rather than patching
// blobs in place.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic group commits
//   - MemoryStore: in-memory store for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object storage
//
// # Group commits
//
// A pipeline stage persists an artifact group (numeric payload plus its
// metadata document) through PutGroup. LocalStore commits the group
// atomically via temp files and renames. Object stores write entries in
// order with the final entry last, so readers that probe for the final
// entry never observe a partially visible group.
package blobstore
