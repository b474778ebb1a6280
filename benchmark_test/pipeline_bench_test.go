package benchmark_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/exprvec/exprvec"
	"github.com/exprvec/exprvec/autoenc"
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/testutil"
)

func benchConfig() autoenc.Config {
	return autoenc.Config{
		LatentDim:    8,
		HiddenDims:   []int{32},
		LearningRate: 0.01,
		BatchSize:    8,
		NumEpochs:    2,
		Seed:         42,
		ModelVersion: "0.1.0",
	}
}

// benchPipeline returns a memory-backed pipeline with one trained and
// embedded ingestion.
func benchPipeline(b *testing.B) (*exprvec.Exprvec, string) {
	b.Helper()

	ev, err := exprvec.New(blobstore.NewMemoryStore())
	if err != nil {
		b.Fatal(err)
	}

	csv := testutil.MatrixCSV(testutil.DefaultMatrix(), ',')
	res, err := ev.Ingest(context.Background(), bytes.NewReader(csv))
	if err != nil {
		b.Fatal(err)
	}
	if _, err := ev.Train(context.Background(), res.IngestionID, benchConfig()); err != nil {
		b.Fatal(err)
	}
	if _, err := ev.RunPipeline(context.Background(), res.IngestionID); err != nil {
		b.Fatal(err)
	}

	return ev, res.IngestionID
}

func BenchmarkIngest(b *testing.B) {
	b.ReportAllocs()

	ev, err := exprvec.New(blobstore.NewMemoryStore())
	if err != nil {
		b.Fatal(err)
	}
	csv := testutil.MatrixCSV(testutil.DefaultMatrix(), ',')

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Ingest(context.Background(), bytes.NewReader(csv)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunPipeline(b *testing.B) {
	b.ReportAllocs()

	ev, id := benchPipeline(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.RunPipeline(context.Background(), id); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTrain(b *testing.B) {
	b.ReportAllocs()

	ev, err := exprvec.New(blobstore.NewMemoryStore())
	if err != nil {
		b.Fatal(err)
	}
	csv := testutil.MatrixCSV(testutil.DefaultMatrix(), ',')
	res, err := ev.Ingest(context.Background(), bytes.NewReader(csv))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Train(context.Background(), res.IngestionID, benchConfig()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVisualizePCA(b *testing.B) {
	b.ReportAllocs()

	ev, id := benchPipeline(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.GetVisualization(context.Background(), id, "pca", 2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVisualizeUMAP(b *testing.B) {
	b.ReportAllocs()

	ev, id := benchPipeline(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Visualize(id).UMAP().Epochs(50).Execute(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoadEmbedding(b *testing.B) {
	b.ReportAllocs()

	ev, id := benchPipeline(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := ev.LoadEmbedding(context.Background(), id); err != nil {
			b.Fatal(err)
		}
	}
}
