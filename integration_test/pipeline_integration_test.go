package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprvec/exprvec"
	"github.com/exprvec/exprvec/autoenc"
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/testutil"
)

func smallConfig() autoenc.Config {
	return autoenc.Config{
		LatentDim:    8,
		HiddenDims:   []int{32},
		LearningRate: 0.01,
		BatchSize:    8,
		NumEpochs:    3,
		Seed:         42,
		ModelVersion: "0.1.0",
	}
}

func TestPipeline_Restart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// 1. Ingest, train and run against a fresh directory.
	ev, err := exprvec.New(blobstore.NewLocalStore(dir))
	require.NoError(t, err)

	csvPath := filepath.Join(t.TempDir(), "counts.csv")
	require.NoError(t, os.WriteFile(csvPath, testutil.MatrixCSV(testutil.DefaultMatrix(), ','), 0o600))

	res, err := ev.IngestFile(ctx, csvPath)
	require.NoError(t, err)

	_, err = ev.Train(ctx, res.IngestionID, smallConfig())
	require.NoError(t, err)

	summary, err := ev.RunPipeline(ctx, res.IngestionID)
	require.NoError(t, err)

	first, _, err := ev.LoadEmbedding(ctx, res.IngestionID)
	require.NoError(t, err)
	require.NoError(t, ev.Close())

	// 2. Reopen over the same directory and verify every artifact is
	// reachable: the ingestion, the embedding, and the registered model.
	ev, err = exprvec.New(blobstore.NewLocalStore(dir))
	require.NoError(t, err)
	defer ev.Close()

	ids, err := ev.ListIngestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{res.IngestionID}, ids)

	emb, md, err := ev.LoadEmbedding(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, first.Values, emb.Values)
	assert.Equal(t, summary.Metadata, *md)

	// A new run resolves the model registered before the restart.
	again, err := ev.RunPipeline(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, summary.Metadata.ModelPath, again.Metadata.ModelPath)
}

func TestPipeline_CrossStoreDeterminism(t *testing.T) {
	ctx := context.Background()
	m := testutil.DefaultMatrix()
	csv := testutil.MatrixCSV(m, ',')

	embed := func(t *testing.T, store blobstore.BlobStore) []float64 {
		t.Helper()

		ev, err := exprvec.New(store)
		require.NoError(t, err)
		defer ev.Close()

		csvPath := filepath.Join(t.TempDir(), "counts.csv")
		require.NoError(t, os.WriteFile(csvPath, csv, 0o600))

		res, err := ev.IngestFile(ctx, csvPath)
		require.NoError(t, err)
		_, err = ev.Train(ctx, res.IngestionID, smallConfig())
		require.NoError(t, err)
		_, err = ev.RunPipeline(ctx, res.IngestionID)
		require.NoError(t, err)

		emb, _, err := ev.LoadEmbedding(ctx, res.IngestionID)
		require.NoError(t, err)
		return emb.Values
	}

	// The same input trained with the same seed yields the same latent
	// values no matter which backend holds the artifacts.
	memValues := embed(t, blobstore.NewMemoryStore())
	localValues := embed(t, blobstore.NewLocalStore(t.TempDir()))

	require.Len(t, localValues, len(memValues))
	for i := range memValues {
		assert.InDelta(t, memValues[i], localValues[i], 1e-9)
	}
}

func TestPipeline_FailedRunLeavesNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := blobstore.NewLocalStore(dir)
	ev, err := exprvec.New(store)
	require.NoError(t, err)
	defer ev.Close()

	csvPath := filepath.Join(t.TempDir(), "counts.csv")
	require.NoError(t, os.WriteFile(csvPath, testutil.MatrixCSV(testutil.DefaultMatrix(), ','), 0o600))
	res, err := ev.IngestFile(ctx, csvPath)
	require.NoError(t, err)

	_, err = ev.Train(ctx, res.IngestionID, smallConfig())
	require.NoError(t, err)

	smallPath := filepath.Join(t.TempDir(), "small.csv")
	require.NoError(t, os.WriteFile(smallPath, testutil.MatrixCSV(testutil.SyntheticMatrix(50, 20, 7), ','), 0o600))
	small, err := ev.IngestFile(ctx, smallPath)
	require.NoError(t, err)

	_, err = ev.RunPipeline(ctx, small.IngestionID)
	require.ErrorIs(t, err, exprvec.ErrDimensionMismatch)

	names, err := store.List(ctx, "embeddings/"+small.IngestionID)
	require.NoError(t, err)
	assert.Empty(t, names)

	// The directory itself must not exist either; the gate fires before
	// any write.
	_, statErr := os.Stat(filepath.Join(dir, "embeddings", small.IngestionID))
	assert.True(t, os.IsNotExist(statErr))
}
