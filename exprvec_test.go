package exprvec

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprvec/exprvec/annot"
	"github.com/exprvec/exprvec/autoenc"
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/ingest"
	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/project"
	"github.com/exprvec/exprvec/registry"
	"github.com/exprvec/exprvec/testutil"
)

func newTestPipeline(t *testing.T, optFns ...Option) (*Exprvec, *blobstore.MemoryStore) {
	t.Helper()

	store := blobstore.NewMemoryStore()
	ev, err := New(store, optFns...)
	require.NoError(t, err)

	return ev, store
}

// smallTrainConfig keeps training fast. InputDim is filled in from the
// ingestion by Train.
func smallTrainConfig() autoenc.Config {
	return autoenc.Config{
		LatentDim:    8,
		HiddenDims:   []int{32},
		LearningRate: 0.01,
		BatchSize:    8,
		NumEpochs:    5,
		Seed:         42,
		ModelVersion: "0.1.0",
	}
}

func ingestMatrix(t *testing.T, ev *Exprvec, m *expr.Matrix, optFns ...func(o *ingest.Options)) string {
	t.Helper()

	res, err := ev.Ingest(context.Background(), bytes.NewReader(testutil.MatrixCSV(m, ',')), optFns...)
	require.NoError(t, err)

	return res.IngestionID
}

func TestNew(t *testing.T) {
	t.Run("NilStore", func(t *testing.T) {
		_, err := New(nil)
		require.Error(t, err)
	})

	t.Run("InvalidNormalization", func(t *testing.T) {
		_, err := New(blobstore.NewMemoryStore(),
			WithNormalization(norm.Config{UseLog1p: false, LogBase: 1}))
		require.ErrorIs(t, err, norm.ErrInvalidLogBase)
	})

	t.Run("Defaults", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		assert.NotNil(t, ev.controller)
		assert.Equal(t, norm.DefaultConfig(), ev.normCfg)
	})
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("CSVRoundTrip", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		m := testutil.DefaultMatrix()

		res, err := ev.Ingest(ctx, bytes.NewReader(testutil.MatrixCSV(m, ',')))
		require.NoError(t, err)
		assert.NotEmpty(t, res.IngestionID)
		assert.Equal(t, 100, res.NumGenes)
		assert.Equal(t, 20, res.NumSamples)
		assert.Equal(t, expr.FormatBulkCSV, res.Format)
		assert.False(t, res.IngestedAt.IsZero())

		d, err := ev.LoadIngestion(ctx, res.IngestionID)
		require.NoError(t, err)
		assert.Equal(t, m.GeneIDs, d.Matrix.GeneIDs)
		assert.Equal(t, m.SampleIDs, d.Matrix.SampleIDs)
		assert.Equal(t, m.Values, d.Matrix.Values)
		require.Len(t, d.Samples, 20)
		assert.Equal(t, "SAMPLE_000", d.Samples[0].SampleID)
	})

	t.Run("List", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		ids, err := ev.ListIngestions(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		a := ingestMatrix(t, ev, testutil.DefaultMatrix())
		b := ingestMatrix(t, ev, testutil.SyntheticMatrix(10, 5, 7))

		ids, err = ev.ListIngestions(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a, b}, ids)
	})

	t.Run("MalformedInput", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		_, err := ev.Ingest(ctx, strings.NewReader(""))
		require.Error(t, err)
	})

	t.Run("LoadUnknown", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		_, err := ev.LoadIngestion(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)

		var nf *IngestionNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "nope", nf.IngestionID)
		assert.EqualError(t, err, "Ingestion nope not found")
	})
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("EndToEnd", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)

		summary, err := ev.RunPipeline(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, summary.IngestionID)
		assert.Equal(t, "success", summary.Status)
		assert.Equal(t, 20, summary.Metadata.NumSamples)
		assert.Equal(t, 100, summary.Metadata.NumGenes)
		assert.Equal(t, 8, summary.Metadata.EmbeddingDim)
		assert.Equal(t, "0.1.0", summary.Metadata.ModelVersion)
		assert.Equal(t, "models/default/gen-000001.ckpt", summary.Metadata.ModelPath)
		assert.Equal(t, [2]int{100, 20}, summary.Metadata.Normalization.InputShape)
		assert.Equal(t, [2]int{100, 20}, summary.Metadata.Normalization.OutputShape)

		emb, md, err := ev.LoadEmbedding(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 20, emb.NumSamples())
		assert.Equal(t, 8, emb.Dims)
		assert.Equal(t, summary.Metadata, *md)
		for _, v := range emb.Values {
			assert.False(t, math.IsNaN(v))
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		m := testutil.DefaultMatrix()
		a := ingestMatrix(t, ev, m)
		b := ingestMatrix(t, ev, m)

		_, err := ev.Train(ctx, a, smallTrainConfig())
		require.NoError(t, err)

		_, err = ev.RunPipeline(ctx, a)
		require.NoError(t, err)
		_, err = ev.RunPipeline(ctx, b)
		require.NoError(t, err)

		embA, mdA, err := ev.LoadEmbedding(ctx, a)
		require.NoError(t, err)
		embB, mdB, err := ev.LoadEmbedding(ctx, b)
		require.NoError(t, err)

		assert.Equal(t, embA.SampleIDs, embB.SampleIDs)
		require.Len(t, embB.Values, len(embA.Values))
		for i := range embA.Values {
			assert.InDelta(t, embA.Values[i], embB.Values[i], 1e-9)
		}

		// Run provenance is identical apart from the ingestion id.
		mdA.IngestionID = ""
		mdB.IngestionID = ""
		assert.Equal(t, *mdA, *mdB)
	})

	t.Run("RerunOverwrites", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)

		_, err = ev.RunPipeline(ctx, id)
		require.NoError(t, err)
		first, _, err := ev.LoadEmbedding(ctx, id)
		require.NoError(t, err)

		_, err = ev.RunPipeline(ctx, id)
		require.NoError(t, err)
		second, _, err := ev.LoadEmbedding(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, first.Values, second.Values)
	})

	t.Run("ExplicitModelPath", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		res, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)

		summary, err := ev.RunPipeline(ctx, id, WithModelPath(res.FinalCheckpoint))
		require.NoError(t, err)
		assert.Equal(t, res.FinalCheckpoint, summary.Metadata.ModelPath)
	})

	t.Run("NormalizationOverride", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)

		cfg := norm.Config{LogBase: 10, UseLog1p: false, Seed: 42}
		summary, err := ev.RunPipeline(ctx, id, WithRunNormalization(cfg))
		require.NoError(t, err)
		assert.Equal(t, cfg, summary.Metadata.Normalization.Config)
	})
}

func TestRunPipelineErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownIngestion", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		_, err := ev.RunPipeline(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)

		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageLoading, se.Stage)

		var nf *IngestionNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Contains(t, err.Error(), "Ingestion nope not found")
	})

	t.Run("NoTrainedModel", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.RunPipeline(ctx, id)
		require.ErrorIs(t, err, ErrNotFound)

		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageValidating, se.Stage)
		assert.Contains(t, err.Error(), "no trained model available. Train a model first.")
	})

	t.Run("DimensionGate", func(t *testing.T) {
		ev, store := newTestPipeline(t)
		trainID := ingestMatrix(t, ev, testutil.DefaultMatrix())
		_, err := ev.Train(ctx, trainID, smallTrainConfig())
		require.NoError(t, err)

		smallID := ingestMatrix(t, ev, testutil.SyntheticMatrix(50, 20, 7))
		_, err = ev.RunPipeline(ctx, smallID)
		require.ErrorIs(t, err, ErrDimensionMismatch)

		var dm *DimensionMismatchError
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 50, dm.DataGenes)
		assert.Equal(t, 100, dm.ModelGenes)
		assert.EqualError(t, dm,
			"expression data has 50 genes, model expects 100 genes. Gene ordering must match model training data.")

		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageValidating, se.Stage)

		// Nothing was persisted for the rejected run.
		names, err := store.List(ctx, "embeddings/"+smallID)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("MissingExplicitModel", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.RunPipeline(ctx, id, WithModelPath("models/default/gen-000099.ckpt"))
		require.ErrorIs(t, err, ErrNotFound)

		var mn *ModelNotFoundError
		require.ErrorAs(t, err, &mn)
		assert.Equal(t, "models/default/gen-000099.ckpt", mn.Path)
		assert.Contains(t, err.Error(), "Model checkpoint models/default/gen-000099.ckpt not found")
	})

	t.Run("CorruptCheckpoint", func(t *testing.T) {
		ev, store := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		require.NoError(t, store.Put(ctx, "models/default/bad.ckpt", []byte("not a checkpoint")))

		_, err := ev.RunPipeline(ctx, id, WithModelPath("models/default/bad.ckpt"))
		require.ErrorIs(t, err, ErrModelLoad)

		var ml *ModelLoadError
		require.ErrorAs(t, err, &ml)
		assert.Equal(t, "models/default/bad.ckpt", ml.Path)
	})
}

func TestTrain(t *testing.T) {
	ctx := context.Background()

	t.Run("RegistersGeneration", func(t *testing.T) {
		ev, store := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		res, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), res.ModelID)
		assert.Equal(t, "models/default/gen-000001.ckpt", res.Checkpoint)
		assert.Equal(t, "models/default/gen-000001-final.ckpt", res.FinalCheckpoint)
		assert.Equal(t, "0.1.0", res.ModelVersion)
		assert.Equal(t, 5, res.Epochs)
		assert.GreaterOrEqual(t, res.BestEpoch, 1)
		assert.LessOrEqual(t, res.BestEpoch, 5)
		assert.False(t, math.IsNaN(res.BestValLoss))
		assert.Len(t, res.History.TrainLoss, 5)
		assert.Len(t, res.History.ValLoss, 5)

		for _, name := range []string{
			res.Checkpoint,
			res.FinalCheckpoint,
			"models/default/history.json",
			"models/default/epochs.log",
		} {
			ok, err := blobstore.Exists(ctx, store, name)
			require.NoError(t, err)
			assert.True(t, ok, name)
		}

		reg := registry.NewStore(store, "models/default")
		gen, err := reg.CurrentGeneration(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), gen.ID)
		assert.Equal(t, 100, gen.InputDim)
		assert.Equal(t, 8, gen.LatentDim)
		assert.Equal(t, res.BestEpoch, gen.BestEpoch)
		assert.False(t, gen.CreatedAt.IsZero())
	})

	t.Run("JournalRecordsEveryEpoch", func(t *testing.T) {
		ev, store := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)

		data, err := blobstore.ReadAll(ctx, store, "models/default/epochs.log")
		require.NoError(t, err)
		records, err := autoenc.ReadJournal(bytes.NewReader(data))
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, 1, records[0].Epoch)
		assert.Equal(t, 5, records[4].Epoch)
	})

	t.Run("SecondGenerationAdvances", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		first, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)
		second, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)
		assert.Equal(t, first.ModelID+1, second.ModelID)

		// New runs resolve the advanced generation.
		summary, err := ev.RunPipeline(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, second.Checkpoint, summary.Metadata.ModelPath)
	})

	t.Run("EpochCallbackChains", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		var seen []int
		_, err := ev.Train(ctx, id, smallTrainConfig(), func(o *autoenc.TrainOptions) {
			o.OnEpoch = func(stats autoenc.EpochStats) {
				seen = append(seen, stats.Epoch)
			}
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	})

	t.Run("UnknownIngestion", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		_, err := ev.Train(ctx, "nope", smallTrainConfig())
		require.ErrorIs(t, err, ErrNotFound)

		var nf *IngestionNotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		cfg := smallTrainConfig()
		cfg.LearningRate = -1
		_, err := ev.Train(ctx, id, cfg)
		require.ErrorIs(t, err, autoenc.ErrInvalidConfig)
	})
}

func TestVisualization(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Exprvec, string) {
		t.Helper()
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())
		_, err := ev.Train(ctx, id, smallTrainConfig())
		require.NoError(t, err)
		_, err = ev.RunPipeline(ctx, id)
		require.NoError(t, err)
		return ev, id
	}

	t.Run("PCA", func(t *testing.T) {
		ev, id := setup(t)

		vis, err := ev.GetVisualization(ctx, id, "pca", 2)
		require.NoError(t, err)
		assert.Equal(t, "PCA", vis.ProjectionMethod)
		assert.Equal(t, 2, vis.NComponents)
		require.Len(t, vis.Coordinates, 20)
		for _, row := range vis.Coordinates {
			assert.Len(t, row, 2)
		}
		require.Len(t, vis.ExplainedVariance, 2)
		assert.Greater(t, vis.ExplainedVariance[0], 0.0)
		assert.GreaterOrEqual(t, vis.ExplainedVariance[0], vis.ExplainedVariance[1])
		assert.Equal(t, "SAMPLE_000", vis.SampleIDs[0])
	})

	t.Run("PCAThreeComponents", func(t *testing.T) {
		ev, id := setup(t)

		vis, err := ev.GetVisualization(ctx, id, "pca", 3)
		require.NoError(t, err)
		require.Len(t, vis.Coordinates, 20)
		assert.Len(t, vis.Coordinates[0], 3)
		assert.Len(t, vis.ExplainedVariance, 3)
	})

	t.Run("UMAP", func(t *testing.T) {
		ev, id := setup(t)

		vis, err := ev.GetVisualization(ctx, id, "umap", 2)
		require.NoError(t, err)
		assert.Equal(t, "UMAP", vis.ProjectionMethod)
		require.Len(t, vis.Coordinates, 20)
		assert.Len(t, vis.Coordinates[0], 2)
		assert.Nil(t, vis.ExplainedVariance)
	})

	t.Run("UMAPSeedReproduces", func(t *testing.T) {
		ev, id := setup(t)

		first, err := ev.Visualize(id).UMAP().Seed(7).Execute(ctx)
		require.NoError(t, err)
		second, err := ev.Visualize(id).UMAP().Seed(7).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.Coordinates, second.Coordinates)
	})

	t.Run("BuilderOptions", func(t *testing.T) {
		ev, id := setup(t)

		vis, err := ev.Visualize(id).
			UMAP().
			Components(3).
			Neighbors(5).
			MinDist(0.5).
			Epochs(50).
			Seed(7).
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, "UMAP", vis.ProjectionMethod)
		require.Len(t, vis.Coordinates, 20)
		assert.Len(t, vis.Coordinates[0], 3)
	})

	t.Run("UnknownMethodBeforeStore", func(t *testing.T) {
		ev, _ := newTestPipeline(t)

		// The method gate fires even when the ingestion does not exist.
		_, err := ev.GetVisualization(ctx, "no-such-ingestion", "tsne", 2)
		require.ErrorIs(t, err, ErrInvalidProjection)
		require.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvalidComponents", func(t *testing.T) {
		ev, id := setup(t)

		_, err := ev.GetVisualization(ctx, id, "pca", 4)
		require.ErrorIs(t, err, ErrInvalidProjection)

		var ip *project.InvalidProjectionError
		require.ErrorAs(t, err, &ip)
		assert.Equal(t, 4, ip.NComponents)
	})

	t.Run("MissingEmbedding", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		id := ingestMatrix(t, ev, testutil.DefaultMatrix())

		_, err := ev.GetVisualization(ctx, id, "pca", 2)
		require.ErrorIs(t, err, ErrNotFound)

		var nf *EmbeddingNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.EqualError(t, err, "Embeddings not found for ingestion "+id+". Generate embeddings first.")
	})
}

func TestFilterSamples(t *testing.T) {
	ctx := context.Background()

	ev, _ := newTestPipeline(t)
	m := testutil.DefaultMatrix()

	anns := testutil.SampleAnnotations(20)
	byID := make(map[string]annot.Annotations, len(anns))
	for j, a := range anns {
		byID[testutil.SampleID(j)] = a
	}
	id := ingestMatrix(t, ev, m, ingest.WithAnnotations(byID))

	t.Run("StringEquality", func(t *testing.T) {
		treated, err := ev.FilterSamples(ctx, id, "condition", annot.String("treated"))
		require.NoError(t, err)
		require.Len(t, treated, 10)
		assert.Equal(t, "SAMPLE_001", treated[0].SampleID)
		for _, s := range treated {
			assert.True(t, s.Annotations["condition"].Equal(annot.String("treated")))
		}
	})

	t.Run("IntEquality", func(t *testing.T) {
		batch0, err := ev.FilterSamples(ctx, id, "batch", annot.Int(0))
		require.NoError(t, err)
		assert.Len(t, batch0, 10)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		none, err := ev.FilterSamples(ctx, id, "tissue", annot.String("liver"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UnknownIngestion", func(t *testing.T) {
		_, err := ev.FilterSamples(ctx, "nope", "condition", annot.String("treated"))
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()

	metrics := &BasicMetricsCollector{}
	store := blobstore.NewMemoryStore()
	ev, err := New(store, WithMetricsCollector(metrics))
	require.NoError(t, err)

	id := ingestMatrix(t, ev, testutil.DefaultMatrix())
	_, err = ev.Ingest(ctx, strings.NewReader(""))
	require.Error(t, err)

	_, err = ev.Train(ctx, id, smallTrainConfig())
	require.NoError(t, err)

	_, err = ev.RunPipeline(ctx, id)
	require.NoError(t, err)
	_, err = ev.RunPipeline(ctx, "nope")
	require.Error(t, err)

	_, err = ev.GetVisualization(ctx, id, "pca", 2)
	require.NoError(t, err)
	_, err = ev.GetVisualization(ctx, id, "tsne", 2)
	require.Error(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.IngestCount)
	assert.Equal(t, int64(1), stats.IngestErrors)
	assert.Equal(t, int64(1), stats.TrainCount)
	assert.Equal(t, int64(0), stats.TrainErrors)
	assert.Equal(t, int64(5), stats.TrainEpochs)
	assert.Equal(t, int64(2), stats.RunCount)
	assert.Equal(t, int64(1), stats.RunErrors)
	assert.Equal(t, int64(2), stats.VisualizationCount)
	assert.Equal(t, int64(1), stats.VisualizationErrors)
	assert.Greater(t, stats.PersistedBytes, int64(0))

	assert.Equal(t, int64(2), stats.StageCounts[StageLoading])
	assert.Equal(t, int64(1), stats.StageCounts[StageDone])
	assert.Equal(t, int64(1), stats.StageCounts[StageFailed])
}

func TestClose(t *testing.T) {
	t.Run("NilReceiver", func(t *testing.T) {
		var ev *Exprvec
		require.NoError(t, ev.Close())
	})

	t.Run("MemoryStore", func(t *testing.T) {
		ev, _ := newTestPipeline(t)
		require.NoError(t, ev.Close())
	})
}

func TestEmbeddingArtifactKeys(t *testing.T) {
	assert.Equal(t, "embeddings/abc/embedding.exm", EmbeddingKey("abc"))
	assert.Equal(t, "embeddings/abc/metadata.json", EmbeddingMetadataKey("abc"))
}
