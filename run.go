package exprvec

import (
	"context"
	"errors"
	"time"

	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/infer"
	"github.com/exprvec/exprvec/ingest"
	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/registry"
)

// Stage is a pipeline run state. Runs advance strictly in order and
// never retry; any non-terminal stage can transition to StageFailed.
type Stage string

const (
	StageLoading     Stage = "LOADING"
	StageValidating  Stage = "VALIDATING"
	StageNormalizing Stage = "NORMALIZING"
	StageEmbedding   Stage = "EMBEDDING"
	StagePersisting  Stage = "PERSISTING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

type runOptions struct {
	modelPath string
	normCfg   *norm.Config
}

// RunOption configures a single pipeline run.
type RunOption func(*runOptions)

// WithModelPath selects an explicit checkpoint blob instead of the
// registry's current generation.
func WithModelPath(path string) RunOption {
	return func(o *runOptions) {
		o.modelPath = path
	}
}

// WithRunNormalization overrides the pipeline's default normalization
// for this run only.
func WithRunNormalization(cfg norm.Config) RunOption {
	return func(o *runOptions) {
		o.normCfg = &cfg
	}
}

// PipelineMetadata is the run provenance persisted next to each
// embedding artifact. Identical inputs produce byte-identical metadata
// apart from the ingestion id.
type PipelineMetadata struct {
	IngestionID   string        `json:"ingestion_id"`
	NumSamples    int           `json:"num_samples"`
	NumGenes      int           `json:"num_genes"`
	EmbeddingDim  int           `json:"embedding_dim"`
	ModelVersion  string        `json:"model_version"`
	ModelPath     string        `json:"model_path"`
	Normalization norm.Snapshot `json:"normalization_config"`
}

// PipelineSummary reports a completed run. The numeric embedding payload
// is excluded; read it back with LoadEmbedding.
type PipelineSummary struct {
	IngestionID string
	Status      string
	Metadata    PipelineMetadata
	Duration    time.Duration
}

// RunPipeline executes the embedding pipeline for a persisted ingestion:
// load, validate against the model, normalize, embed, persist. The
// embedding and its metadata commit together; a failed run leaves no
// partial artifacts.
//
// The model checkpoint is the registry's current generation unless
// WithModelPath overrides it.
func (ev *Exprvec) RunPipeline(ctx context.Context, ingestionID string, optFns ...RunOption) (*PipelineSummary, error) {
	start := time.Now()

	var opts runOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	var summary *PipelineSummary
	err := ev.controller.AcquireRun(ctx)
	if err == nil {
		summary, err = ev.run(ctx, ingestionID, opts)
		ev.controller.ReleaseRun()
	}

	duration := time.Since(start)
	err = translateError(err)
	ev.metrics.RecordRun(duration, err)
	ev.logger.LogRun(ctx, ingestionID, duration, err)
	if err != nil {
		return nil, err
	}
	summary.Duration = duration
	return summary, nil
}

func (ev *Exprvec) run(ctx context.Context, ingestionID string, opts runOptions) (*PipelineSummary, error) {
	stage := func(s Stage) {
		ev.metrics.RecordRunStage(s)
		ev.logger.LogRunStage(ctx, ingestionID, s)
	}

	stage(StageLoading)
	data, err := ingest.Load(ctx, ev.store, ingestionID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			err = &IngestionNotFoundError{IngestionID: ingestionID}
		}
		return nil, ev.fail(ingestionID, StageLoading, stage, err)
	}

	matrixBytes := int64(8 * len(data.Matrix.Values))
	// Raw matrix plus the normalized copy.
	if err := ev.controller.AcquireMemory(ctx, 2*matrixBytes); err != nil {
		return nil, ev.fail(ingestionID, StageLoading, stage, err)
	}
	defer ev.controller.ReleaseMemory(2 * matrixBytes)

	stage(StageValidating)
	gen, modelPath, err := ev.resolveModel(ctx, opts.modelPath)
	if err != nil {
		return nil, ev.fail(ingestionID, StageValidating, stage, err)
	}
	cfg := gen.Config()
	if got := data.Matrix.NumGenes(); got != cfg.InputDim {
		err := &DimensionMismatchError{DataGenes: got, ModelGenes: cfg.InputDim}
		return nil, ev.fail(ingestionID, StageValidating, stage, err)
	}

	stage(StageNormalizing)
	normCfg := ev.normCfg
	if opts.normCfg != nil {
		normCfg = *opts.normCfg
	}
	normalized, snapshot, err := norm.Normalize(data.Matrix, normCfg)
	if err != nil {
		return nil, ev.fail(ingestionID, StageNormalizing, stage, err)
	}

	stage(StageEmbedding)
	emb, err := gen.Generate(ctx, normalized)
	if err != nil {
		return nil, ev.fail(ingestionID, StageEmbedding, stage, err)
	}

	stage(StagePersisting)
	md := PipelineMetadata{
		IngestionID:   ingestionID,
		NumSamples:    emb.NumSamples(),
		NumGenes:      data.Matrix.NumGenes(),
		EmbeddingDim:  emb.Dims,
		ModelVersion:  cfg.ModelVersion,
		ModelPath:     modelPath,
		Normalization: snapshot,
	}
	if err := ev.saveEmbedding(ctx, emb, md); err != nil {
		err = &PersistenceError{Key: "embeddings/" + ingestionID, cause: err}
		return nil, ev.fail(ingestionID, StagePersisting, stage, err)
	}

	stage(StageDone)
	return &PipelineSummary{
		IngestionID: ingestionID,
		Status:      "success",
		Metadata:    md,
	}, nil
}

// fail marks the FAILED transition and wraps the translated cause with
// the stage it happened in.
func (ev *Exprvec) fail(ingestionID string, at Stage, stage func(Stage), err error) error {
	stage(StageFailed)
	return &StageError{IngestionID: ingestionID, Stage: at, cause: translateError(err)}
}

// resolveModel loads the checkpoint for a run: the explicit path when
// given, otherwise the registry's current generation.
func (ev *Exprvec) resolveModel(ctx context.Context, explicit string) (*infer.Generator, string, error) {
	name := explicit
	if name == "" {
		gen, err := ev.registry.CurrentGeneration(ctx)
		if err != nil {
			if errors.Is(err, registry.ErrNoModel) {
				return nil, "", &ModelNotFoundError{}
			}
			return nil, "", err
		}
		name = ev.registry.Path(gen.Checkpoint)
	}

	data, err := blobstore.ReadAll(ctx, ev.store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, "", &ModelNotFoundError{Path: name}
		}
		return nil, "", err
	}

	g, err := infer.FromBytes(data)
	if err != nil {
		return nil, "", &ModelLoadError{Path: name, cause: err}
	}
	return g, name, nil
}
