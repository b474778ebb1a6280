package exprvec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exprvec/exprvec/autoenc"
	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/codec"
	"github.com/exprvec/exprvec/ingest"
	"github.com/exprvec/exprvec/norm"
	"github.com/exprvec/exprvec/registry"
)

// TrainResult reports a completed training run. Checkpoint and
// FinalCheckpoint are store keys usable directly with WithModelPath.
type TrainResult struct {
	ModelID         uint64
	Checkpoint      string
	FinalCheckpoint string
	ModelVersion    string
	BestEpoch       int
	BestValLoss     float64
	Epochs          int
	History         autoenc.History
	Duration        time.Duration
}

// Train fits an autoencoder to a persisted ingestion and registers the
// best-epoch checkpoint as the model's current generation. The data is
// normalized with the pipeline's default configuration, so embeddings
// generated later by RunPipeline see inputs distributed like the
// training set.
//
// A zero cfg.InputDim is filled in from the ingestion's gene count.
// Alongside both checkpoints, the per-epoch loss history and the epoch
// journal are persisted under the model directory; the registry CURRENT
// pointer advances only after every artifact is in place.
func (ev *Exprvec) Train(ctx context.Context, ingestionID string, cfg autoenc.Config, optFns ...func(o *autoenc.TrainOptions)) (*TrainResult, error) {
	start := time.Now()

	var res *TrainResult
	err := ev.controller.AcquireRun(ctx)
	if err == nil {
		res, err = ev.train(ctx, ingestionID, cfg, optFns)
		ev.controller.ReleaseRun()
	}

	duration := time.Since(start)
	err = translateError(err)
	ev.metrics.RecordTrain(duration, err)
	if res != nil {
		res.Duration = duration
		ev.logger.LogTrain(ctx, ingestionID, res.ModelID, res.BestEpoch, res.BestValLoss, nil)
	} else {
		ev.logger.LogTrain(ctx, ingestionID, 0, 0, 0, err)
	}
	return res, err
}

func (ev *Exprvec) train(ctx context.Context, ingestionID string, cfg autoenc.Config, optFns []func(o *autoenc.TrainOptions)) (*TrainResult, error) {
	data, err := ingest.Load(ctx, ev.store, ingestionID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, &IngestionNotFoundError{IngestionID: ingestionID}
		}
		return nil, err
	}

	if cfg.InputDim == 0 {
		cfg.InputDim = data.Matrix.NumGenes()
	}

	matrixBytes := int64(8 * len(data.Matrix.Values))
	if err := ev.controller.AcquireMemory(ctx, 2*matrixBytes); err != nil {
		return nil, err
	}
	defer ev.controller.ReleaseMemory(2 * matrixBytes)

	normalized, _, err := norm.Normalize(data.Matrix, ev.normCfg)
	if err != nil {
		return nil, err
	}

	// The journal buffers in memory and persists with the checkpoints, so
	// a failed run never clobbers the previous epochs.log.
	var journalBuf bytes.Buffer
	journal, err := autoenc.NewJournal(&journalBuf)
	if err != nil {
		return nil, err
	}

	result, err := autoenc.Train(ctx, normalized, cfg, func(o *autoenc.TrainOptions) {
		for _, fn := range optFns {
			fn(o)
		}
		onEpoch := o.OnEpoch
		o.Journal = journal
		o.OnEpoch = func(stats autoenc.EpochStats) {
			ev.metrics.RecordTrainEpoch(stats.ValLoss)
			ev.logger.LogTrainEpoch(ctx, stats)
			if onEpoch != nil {
				onEpoch(stats)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if err := journal.Close(); err != nil {
		return nil, fmt.Errorf("finalize epoch journal: %w", err)
	}

	manifest, err := ev.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	next := manifest.NextGenerationID()

	var best, final bytes.Buffer
	if err := autoenc.SaveCheckpoint(&best, result.Best, ev.compression); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := autoenc.SaveCheckpoint(&final, result.Final, ev.compression); err != nil {
		return nil, fmt.Errorf("encode final checkpoint: %w", err)
	}
	historyData, err := codec.Default.Marshal(result.History)
	if err != nil {
		return nil, fmt.Errorf("encode training history: %w", err)
	}

	payload := best.Len() + final.Len() + len(historyData) + journalBuf.Len()
	if err := ev.controller.AcquireIO(ctx, payload); err != nil {
		return nil, err
	}
	checkpointKey := ev.registry.Path(registry.CheckpointName(next))
	finalKey := ev.registry.Path(registry.FinalCheckpointName(next))
	err = blobstore.PutGroup(ctx, ev.store, []blobstore.Entry{
		{Name: checkpointKey, Data: best.Bytes()},
		{Name: finalKey, Data: final.Bytes()},
		{Name: ev.registry.Path(registry.HistoryName), Data: historyData},
		{Name: ev.registry.Path(registry.JournalName), Data: journalBuf.Bytes()},
	})
	if err != nil {
		return nil, &PersistenceError{Key: ev.registry.Path(""), cause: err}
	}
	ev.metrics.RecordPersistedBytes(int64(payload))

	if _, err := ev.registry.Register(ctx, registry.Generation{
		ID:              next,
		Checkpoint:      registry.CheckpointName(next),
		FinalCheckpoint: registry.FinalCheckpointName(next),
		History:         registry.HistoryName,
		Journal:         registry.JournalName,
		InputDim:        cfg.InputDim,
		LatentDim:       cfg.LatentDim,
		ModelVersion:    cfg.ModelVersion,
		BestValLoss:     result.BestValLoss,
		BestEpoch:       result.BestEpoch,
		Epochs:          cfg.NumEpochs,
	}); err != nil {
		return nil, &PersistenceError{Key: ev.registry.Path(registry.CurrentName), cause: err}
	}

	return &TrainResult{
		ModelID:         next,
		Checkpoint:      checkpointKey,
		FinalCheckpoint: finalKey,
		ModelVersion:    cfg.ModelVersion,
		BestEpoch:       result.BestEpoch,
		BestValLoss:     result.BestValLoss,
		Epochs:          cfg.NumEpochs,
		History:         result.History,
	}, nil
}
