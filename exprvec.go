package exprvec

import (
	"context"
	"errors"
	"io"
	"path"
	"runtime"
	"time"

	"github.com/exprvec/exprvec/annot"
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/ingest"
	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/persistence"
	"github.com/exprvec/exprvec/registry"
	"github.com/exprvec/exprvec/resource"
)

// modelsPrefix is the store directory that holds checkpoint bundles and
// registry manifests, one subdirectory per model name.
const modelsPrefix = "models"

// Exprvec is the expression embedding pipeline facade. All artifacts
// live in one blob store: canonical ingestions under processed/, latent
// embeddings under embeddings/, and model checkpoints under models/.
//
// An Exprvec is safe for concurrent use. Runs on distinct ingestion ids
// write to distinct artifact directories; the resource controller
// bounds how many execute at once.
type Exprvec struct {
	store       blobstore.BlobStore
	registry    *registry.Store
	controller  *resource.Controller
	compression persistence.CompressionType
	normCfg     norm.Config
	metrics     MetricsCollector
	logger      *Logger
}

// New creates a pipeline over the given blob store.
//
// Example:
//
//	store, _ := blobstore.NewLocalStore("./data")
//	ev, err := exprvec.New(store,
//	    exprvec.WithModelName("bulk-rnaseq"),
//	    exprvec.WithLogLevel(slog.LevelInfo),
//	)
func New(store blobstore.BlobStore, optFns ...Option) (*Exprvec, error) {
	if store == nil {
		return nil, errors.New("exprvec: nil blob store")
	}

	o := applyOptions(optFns)
	if err := o.normCfg.Validate(); err != nil {
		return nil, err
	}

	controller := o.controller
	if controller == nil {
		controller = resource.NewController(resource.Config{
			MaxConcurrentRuns: int64(runtime.GOMAXPROCS(0)),
		})
	}

	return &Exprvec{
		store:       store,
		registry:    registry.NewStore(store, path.Join(modelsPrefix, o.modelName)),
		controller:  controller,
		compression: o.compression,
		normCfg:     o.normCfg,
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

// IngestResult identifies a persisted ingestion. The numeric payload is
// not included; read it back with LoadIngestion.
type IngestResult struct {
	IngestionID string
	NumGenes    int
	NumSamples  int
	Format      expr.Format
	IngestedAt  time.Time
}

// Ingest parses expression data from r, assigns an ingestion id, and
// persists the canonical matrix and metadata artifacts.
//
// Two source formats are accepted: delimited tables (CSV/TSV, genes as
// rows, first column gene ids, header row sample ids) and binary matrix
// containers. The format is sniffed from the leading bytes.
func (ev *Exprvec) Ingest(ctx context.Context, r io.Reader, optFns ...func(o *ingest.Options)) (*IngestResult, error) {
	start := time.Now()

	res, err := ev.ingest(ctx, func() (*expr.IngestedData, error) {
		return ingest.Read(r, optFns...)
	})

	duration := time.Since(start)
	err = translateError(err)
	ev.metrics.RecordIngest(duration, err)
	if res != nil {
		ev.logger.LogIngest(ctx, res.IngestionID, res.NumGenes, res.NumSamples, err)
	} else {
		ev.logger.LogIngest(ctx, "", 0, 0, err)
	}
	return res, err
}

// IngestFile is Ingest reading from a local file. The file path becomes
// the default provenance, and .tsv/.tab extensions select the tab
// delimiter.
func (ev *Exprvec) IngestFile(ctx context.Context, filename string, optFns ...func(o *ingest.Options)) (*IngestResult, error) {
	start := time.Now()

	res, err := ev.ingest(ctx, func() (*expr.IngestedData, error) {
		return ingest.ReadFile(filename, optFns...)
	})

	duration := time.Since(start)
	err = translateError(err)
	ev.metrics.RecordIngest(duration, err)
	if res != nil {
		ev.logger.LogIngest(ctx, res.IngestionID, res.NumGenes, res.NumSamples, err)
	} else {
		ev.logger.LogIngest(ctx, "", 0, 0, err)
	}
	return res, err
}

func (ev *Exprvec) ingest(ctx context.Context, read func() (*expr.IngestedData, error)) (*IngestResult, error) {
	d, err := read()
	if err != nil {
		return nil, err
	}

	payload := int64(8 * len(d.Matrix.Values))
	if err := ev.controller.AcquireIO(ctx, int(payload)); err != nil {
		return nil, err
	}
	if err := ingest.Save(ctx, ev.store, d, ev.compression); err != nil {
		return nil, &PersistenceError{Key: "processed/" + d.IngestionID, cause: err}
	}
	ev.metrics.RecordPersistedBytes(payload)

	return &IngestResult{
		IngestionID: d.IngestionID,
		NumGenes:    d.Matrix.NumGenes(),
		NumSamples:  d.Matrix.NumSamples(),
		Format:      d.Format,
		IngestedAt:  d.IngestedAt,
	}, nil
}

// LoadIngestion reads the canonical matrix and sample metadata of a
// persisted ingestion.
func (ev *Exprvec) LoadIngestion(ctx context.Context, ingestionID string) (*expr.IngestedData, error) {
	d, err := ingest.Load(ctx, ev.store, ingestionID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			err = &IngestionNotFoundError{IngestionID: ingestionID}
		}
		err = translateError(err)
		ev.logger.LogError(ctx, "load ingestion", err)
		return nil, err
	}
	return d, nil
}

// ListIngestions returns the ids of all persisted ingestions, sorted.
func (ev *Exprvec) ListIngestions(ctx context.Context) ([]string, error) {
	ids, err := ingest.List(ctx, ev.store)
	if err != nil {
		err = translateError(err)
		ev.logger.LogError(ctx, "list ingestions", err)
		return nil, err
	}
	return ids, nil
}

// LoadEmbedding reads the persisted embedding of an ingestion together
// with the metadata of the pipeline run that produced it.
func (ev *Exprvec) LoadEmbedding(ctx context.Context, ingestionID string) (*expr.Embedding, *PipelineMetadata, error) {
	emb, md, err := ev.loadEmbedding(ctx, ingestionID)
	if err != nil {
		err = translateError(err)
		ev.logger.LogError(ctx, "load embedding", err)
		return nil, nil, err
	}
	return emb, md, nil
}

// FilterSamples returns the sample records of an ingestion whose
// annotation under key equals value, in sample order. Keys the
// ingestion filter dropped as identifying are never present.
//
// Example:
//
//	treated, err := ev.FilterSamples(ctx, id, "condition", annot.String("treated"))
func (ev *Exprvec) FilterSamples(ctx context.Context, ingestionID, key string, value annot.Value) ([]expr.SampleMeta, error) {
	d, err := ev.LoadIngestion(ctx, ingestionID)
	if err != nil {
		return nil, err
	}

	ix := annot.NewIndex()
	for i, s := range d.Samples {
		ix.Set(uint32(i), s.Annotations)
	}

	bm := ix.Filter(key, value)
	out := make([]expr.SampleMeta, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, d.Samples[it.Next()])
	}
	return out, nil
}
