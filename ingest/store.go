package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/codec"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/persistence"
)

const (
	processedPrefix = "processed"
	// MatrixName is the canonical matrix blob inside an ingestion
	// directory.
	MatrixName = "matrix.exm"
	// MetadataName is the ingestion metadata blob. It is written last
	// and acts as the ingestion's visibility marker.
	MetadataName = "metadata.json"
)

// MatrixKey returns the blob name of an ingestion's canonical matrix.
func MatrixKey(ingestionID string) string {
	return processedPrefix + "/" + ingestionID + "/" + MatrixName
}

// MetadataKey returns the blob name of an ingestion's metadata.
func MetadataKey(ingestionID string) string {
	return processedPrefix + "/" + ingestionID + "/" + MetadataName
}

// Metadata is the persisted ingestion metadata document.
type Metadata struct {
	IngestionID string            `json:"ingestion_id"`
	IngestedAt  time.Time         `json:"ingested_at"`
	Format      expr.Format       `json:"format"`
	NumGenes    int               `json:"num_genes"`
	NumSamples  int               `json:"num_samples"`
	Samples     []expr.SampleMeta `json:"samples"`
}

// NewMetadata derives the metadata document for an ingestion.
func NewMetadata(d *expr.IngestedData) Metadata {
	return Metadata{
		IngestionID: d.IngestionID,
		IngestedAt:  d.IngestedAt,
		Format:      d.Format,
		NumGenes:    d.Matrix.NumGenes(),
		NumSamples:  d.Matrix.NumSamples(),
		Samples:     d.Samples,
	}
}

// Save persists the canonical artifacts of an ingestion under
// processed/<id>/ in one group commit.
func Save(ctx context.Context, store blobstore.BlobStore, d *expr.IngestedData, compression persistence.CompressionType) error {
	if d.IngestionID == "" {
		return errors.New("save ingestion: empty ingestion id")
	}
	if d.Matrix == nil {
		return errors.New("save ingestion: nil matrix")
	}
	if len(d.Samples) != d.Matrix.NumSamples() {
		return fmt.Errorf("save ingestion: %d sample records for %d matrix samples", len(d.Samples), d.Matrix.NumSamples())
	}

	var buf bytes.Buffer
	if err := expr.WriteMatrix(&buf, d.Matrix, compression); err != nil {
		return fmt.Errorf("encode matrix container: %w", err)
	}
	meta, err := codec.Default.Marshal(NewMetadata(d))
	if err != nil {
		return fmt.Errorf("encode ingestion metadata: %w", err)
	}

	return blobstore.PutGroup(ctx, store, []blobstore.Entry{
		{Name: MatrixKey(d.IngestionID), Data: buf.Bytes()},
		{Name: MetadataKey(d.IngestionID), Data: meta},
	})
}

// Load reads an ingestion back from the store. A missing ingestion
// reports blobstore.ErrNotFound.
func Load(ctx context.Context, store blobstore.BlobStore, ingestionID string) (*expr.IngestedData, error) {
	metaBytes, err := blobstore.ReadAll(ctx, store, MetadataKey(ingestionID))
	if err != nil {
		return nil, fmt.Errorf("load ingestion %s: %w", ingestionID, err)
	}
	var meta Metadata
	if err := codec.Default.UnmarshalStrict(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("decode ingestion %s metadata: %w", ingestionID, err)
	}

	var m *expr.Matrix
	err = blobstore.WithBytes(ctx, store, MatrixKey(ingestionID), func(data []byte) error {
		var err error
		m, err = expr.ReadMatrix(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load ingestion %s matrix: %w", ingestionID, err)
	}

	if m.NumGenes() != meta.NumGenes || m.NumSamples() != meta.NumSamples {
		return nil, fmt.Errorf("ingestion %s: matrix is %dx%d, metadata declares %dx%d",
			ingestionID, m.NumGenes(), m.NumSamples(), meta.NumGenes, meta.NumSamples)
	}
	if len(meta.Samples) != m.NumSamples() {
		return nil, fmt.Errorf("ingestion %s: %d sample records for %d matrix samples",
			ingestionID, len(meta.Samples), m.NumSamples())
	}
	for i, s := range meta.Samples {
		if s.SampleID != m.SampleIDs[i] {
			return nil, fmt.Errorf("ingestion %s: sample record %d is %q, matrix column is %q",
				ingestionID, i, s.SampleID, m.SampleIDs[i])
		}
	}

	return &expr.IngestedData{
		IngestionID: meta.IngestionID,
		IngestedAt:  meta.IngestedAt,
		Format:      meta.Format,
		Matrix:      m,
		Samples:     meta.Samples,
	}, nil
}

// List returns the ids of all persisted ingestions, sorted. Only
// ingestions whose metadata marker exists are reported.
func List(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	names, err := store.List(ctx, processedPrefix+"/")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range names {
		rest, ok := strings.CutPrefix(name, processedPrefix+"/")
		if !ok {
			continue
		}
		id, file, ok := strings.Cut(rest, "/")
		if ok && file == MetadataName {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes every artifact of an ingestion. Deleting a missing
// ingestion is not an error.
func Delete(ctx context.Context, store blobstore.BlobStore, ingestionID string) error {
	return blobstore.DeleteAll(ctx, store, processedPrefix+"/"+ingestionID+"/")
}
