package exprvec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/codec"
	"github.com/exprvec/exprvec/expr"
)

const (
	embeddingsPrefix = "embeddings"

	// EmbeddingName is the embedding container blob within an
	// embeddings/<ingestion_id>/ directory.
	EmbeddingName = "embedding.exm"
	// EmbeddingMetadataName is the pipeline metadata document. It is
	// written last and marks the artifact group as complete.
	EmbeddingMetadataName = "metadata.json"
)

// EmbeddingKey returns the store key of an ingestion's embedding
// container.
func EmbeddingKey(ingestionID string) string {
	return path.Join(embeddingsPrefix, ingestionID, EmbeddingName)
}

// EmbeddingMetadataKey returns the store key of an ingestion's pipeline
// metadata document.
func EmbeddingMetadataKey(ingestionID string) string {
	return path.Join(embeddingsPrefix, ingestionID, EmbeddingMetadataName)
}

// saveEmbedding writes the embedding container and its metadata as one
// group, metadata last so a reader never observes the container without
// its completion marker.
func (ev *Exprvec) saveEmbedding(ctx context.Context, emb *expr.Embedding, md PipelineMetadata) error {
	var buf bytes.Buffer
	if err := expr.WriteEmbedding(&buf, emb, ev.compression); err != nil {
		return fmt.Errorf("encode embedding container: %w", err)
	}
	mdData, err := codec.Default.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode pipeline metadata: %w", err)
	}

	payload := buf.Len() + len(mdData)
	if err := ev.controller.AcquireIO(ctx, payload); err != nil {
		return err
	}
	err = blobstore.PutGroup(ctx, ev.store, []blobstore.Entry{
		{Name: EmbeddingKey(md.IngestionID), Data: buf.Bytes()},
		{Name: EmbeddingMetadataKey(md.IngestionID), Data: mdData},
	})
	if err != nil {
		return err
	}
	ev.metrics.RecordPersistedBytes(int64(payload))
	return nil
}

// loadEmbedding reads an ingestion's embedding artifacts back, checking
// the container against the metadata it was persisted with.
func (ev *Exprvec) loadEmbedding(ctx context.Context, ingestionID string) (*expr.Embedding, *PipelineMetadata, error) {
	mdData, err := blobstore.ReadAll(ctx, ev.store, EmbeddingMetadataKey(ingestionID))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil, &EmbeddingNotFoundError{IngestionID: ingestionID}
		}
		return nil, nil, fmt.Errorf("load embedding %s: %w", ingestionID, err)
	}
	var md PipelineMetadata
	if err := codec.Default.UnmarshalStrict(mdData, &md); err != nil {
		return nil, nil, fmt.Errorf("decode embedding %s metadata: %w", ingestionID, err)
	}

	var emb *expr.Embedding
	err = blobstore.WithBytes(ctx, ev.store, EmbeddingKey(ingestionID), func(data []byte) error {
		e, err := expr.ReadEmbedding(data)
		if err != nil {
			return err
		}
		emb = e
		return nil
	})
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil, &EmbeddingNotFoundError{IngestionID: ingestionID}
		}
		return nil, nil, fmt.Errorf("load embedding %s container: %w", ingestionID, err)
	}

	if emb.NumSamples() != md.NumSamples || emb.Dims != md.EmbeddingDim {
		return nil, nil, fmt.Errorf("embedding %s is %dx%d, metadata declares %dx%d",
			ingestionID, emb.NumSamples(), emb.Dims, md.NumSamples, md.EmbeddingDim)
	}
	return emb, &md, nil
}
