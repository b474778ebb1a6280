package exprvec

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/exprvec/exprvec/autoenc"
)

// Logger wraps slog.Logger with pipeline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIngestion adds an ingestion_id field to the logger.
func (l *Logger) WithIngestion(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("ingestion_id", id),
	}
}

// WithModel adds a model field to the logger.
func (l *Logger) WithModel(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("model", name),
	}
}

// LogIngest logs an ingest operation.
func (l *Logger) LogIngest(ctx context.Context, ingestionID string, numGenes, numSamples int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"ingestion_id", ingestionID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "ingest completed",
			"ingestion_id", ingestionID,
			"num_genes", numGenes,
			"num_samples", numSamples,
		)
	}
}

// LogRunStage logs one pipeline stage transition.
func (l *Logger) LogRunStage(ctx context.Context, ingestionID string, stage Stage) {
	l.DebugContext(ctx, "pipeline stage",
		"ingestion_id", ingestionID,
		"stage", string(stage),
	)
}

// LogRun logs the outcome of a full pipeline run.
func (l *Logger) LogRun(ctx context.Context, ingestionID string, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pipeline run failed",
			"ingestion_id", ingestionID,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pipeline run completed",
			"ingestion_id", ingestionID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// LogTrainEpoch logs one completed training epoch.
func (l *Logger) LogTrainEpoch(ctx context.Context, stats autoenc.EpochStats) {
	l.DebugContext(ctx, "train epoch",
		"epoch", stats.Epoch,
		"epochs", stats.Epochs,
		"train_loss", stats.TrainLoss,
		"val_loss", stats.ValLoss,
	)
}

// LogTrain logs the outcome of a training run.
func (l *Logger) LogTrain(ctx context.Context, ingestionID string, modelID uint64, bestEpoch int, bestValLoss float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "training failed",
			"ingestion_id", ingestionID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "training completed",
			"ingestion_id", ingestionID,
			"model_id", modelID,
			"best_epoch", bestEpoch,
			"best_val_loss", bestValLoss,
		)
	}
}

// LogVisualization logs a visualization request.
func (l *Logger) LogVisualization(ctx context.Context, ingestionID, method string, nComponents int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "visualization failed",
			"ingestion_id", ingestionID,
			"method", method,
			"n_components", nComponents,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "visualization completed",
			"ingestion_id", ingestionID,
			"method", method,
			"n_components", nComponents,
		)
	}
}

// LogError logs a failure in any operation without dedicated fields.
func (l *Logger) LogError(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	l.ErrorContext(ctx, op+" failed",
		"error", err,
	)
}
