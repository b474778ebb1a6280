// Package minio provides a BlobStore implementation using the MinIO
// client.
//
// MinIO is a high-performance, S3-compatible object storage system.
// This package uses the official MinIO Go client for compatibility with
// MinIO and other S3-compatible systems like Ceph, SeaweedFS, and
// Garage. It is the natural choice for on-prem deployments where
// expression data must not leave the cluster.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "expression/")
//
// # Features
//
//   - Works with any S3-compatible storage (Ceph, Garage, SeaweedFS)
//   - Streaming uploads for matrix containers and checkpoints
//   - Air-gap friendly (no AWS dependencies required)
//
// # Configuration Options
//
// The MinIO client supports the usual connection options:
//
//	client, _ := minio.New("s3.example.com:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: true,                    // Use HTTPS
//	    Region: "us-east-1",             // Optional region
//	})
package minio
