// Package s3 provides an Amazon S3 implementation of the
// blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("expression/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// # Features
//
//   - Range reads for partial fetches of matrix containers
//   - Multipart uploads with CRC32C validation for large checkpoints
//   - Conditional writes for create-once manifests (PutIfNotExists)
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// When several writers share one bucket, wrap the store in a
// DDBCommitStore: it pairs the bucket with a DynamoDB commit log so
// that advancing the CURRENT manifest pointer is an atomic
// compare-and-swap.
package s3
