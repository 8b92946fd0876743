package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/media"
	"github.com/King-fly/subtitle-api/internal/subtitle"
	"github.com/King-fly/subtitle-api/internal/transcribe"
)

// Progress checkpoints per stage. Formatting advances linearly from the
// transcribe checkpoint to 1.0.
const (
	progressExtracted   = 0.2
	progressTranscribed = 0.7
)

// errCanceled marks a pipeline aborted at a checkpoint. It never reaches
// the store's error field; the job settles as canceled, not failed.
var errCanceled = errors.New("job canceled at checkpoint")

// executor runs one job through extract -> transcribe -> format -> persist,
// with a cancellation check before every stage and every artifact write.
type executor struct {
	store       domain.Store
	extractor   media.Extractor
	transcriber transcribe.Transcriber
	logger      zerolog.Logger

	maxRetries        int
	retryBackoff      time.Duration
	extractTimeout    time.Duration
	transcribeTimeout time.Duration
}

// run executes the pipeline and settles the job into exactly one terminal
// state. Every path out of here goes through the store's compare-and-set,
// so a racing cancellation can never be overwritten.
func (e *executor) run(ctx context.Context, job *domain.Job, log zerolog.Logger) {
	log = log.With().Str("job_id", job.ID).Logger()
	started := time.Now()

	err := e.execute(ctx, job, log)
	switch {
	case err == nil:
		log.Info().Dur("elapsed", time.Since(started)).Msg("job completed")
	case errors.Is(err, errCanceled):
		e.settle(ctx, job.ID, domain.JobStateCanceled, "", log)
		log.Info().Msg("job canceled")
	default:
		e.settle(ctx, job.ID, domain.JobStateFailed, domain.Cause(err), log)
		log.Error().Err(err).Str("cause", domain.Cause(err)).Msg("job failed")
	}
}

func (e *executor) execute(ctx context.Context, job *domain.Job, log zerolog.Logger) error {
	// Checkpoint: before extraction.
	if ctx.Err() != nil {
		return errCanceled
	}

	var wavPath string
	var cleanup func()
	err := e.runStage(ctx, "extract", e.extractTimeout, log, func(stageCtx context.Context) error {
		var stageErr error
		wavPath, cleanup, stageErr = e.extractor.Extract(stageCtx, job.MediaPath)
		return stageErr
	})
	if err != nil {
		return err
	}
	defer cleanup()
	e.progress(ctx, job.ID, progressExtracted, log)

	// Checkpoint: before transcription.
	if ctx.Err() != nil {
		return errCanceled
	}

	var transcript domain.Transcript
	err = e.runStage(ctx, "transcribe", e.transcribeTimeout, log, func(stageCtx context.Context) error {
		var stageErr error
		transcript, stageErr = e.transcriber.Transcribe(stageCtx, wavPath, job.Language)
		return stageErr
	})
	if err != nil {
		return err
	}
	e.progress(ctx, job.ID, progressTranscribed, log)

	// Render every requested format into memory first; nothing is persisted
	// until the whole set exists.
	records := make([]domain.Subtitle, 0, len(job.Formats))
	total := len(job.Formats)
	for i, format := range job.Formats {
		// Checkpoint: before each artifact.
		if ctx.Err() != nil {
			return errCanceled
		}
		content, err := subtitle.Render(format, transcript)
		if err != nil {
			return err
		}
		records = append(records, domain.Subtitle{
			ID:      uuid.NewString(),
			JobID:   job.ID,
			Format:  format,
			Content: content,
		})
		// Full progress is written only by the completion commit below, so a
		// job settling as anything but completed can never read 1.0.
		if i+1 < total {
			e.progress(ctx, job.ID, progressTranscribed+(1-progressTranscribed)*float64(i+1)/float64(total), log)
		}
	}

	// Checkpoint: before the terminal commit.
	if ctx.Err() != nil {
		return errCanceled
	}

	// Single atomic commit: all artifacts plus the completed transition. A
	// conflict means a cancellation settled the job first; not-found means
	// the job was deleted while this pipeline ran.
	if err := e.store.AttachSubtitles(ctx, job.ID, records); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return errCanceled
		}
		return err
	}
	return nil
}

// runStage wraps one stage call with its hard timeout and the retry policy:
// transient failures (timeouts, unavailable model) retry with doubling
// backoff up to the bound, permanent failures surface immediately.
func (e *executor) runStage(ctx context.Context, stage string, timeout time.Duration, log zerolog.Logger, fn func(context.Context) error) error {
	backoff := e.retryBackoff
	for attempt := 0; ; attempt++ {
		stageCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := fn(stageCtx)
		cancel()

		if err == nil {
			return nil
		}
		// The job context going away is cancellation, not a stage failure.
		if ctx.Err() != nil {
			return errCanceled
		}
		if !domain.IsTransient(err) || attempt >= e.maxRetries {
			return err
		}

		log.Warn().
			Err(err).
			Str("stage", stage).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("transient stage failure, retrying")
		select {
		case <-ctx.Done():
			return errCanceled
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// settle writes a terminal state through the store CAS. Losing the swap
// means another transition (cancel vs. worker) won, which is the intended
// outcome of the race.
func (e *executor) settle(ctx context.Context, jobID string, state domain.JobState, cause string, log zerolog.Logger) {
	change := domain.StateChange{}
	if cause != "" {
		change.Error = &cause
	}
	// Settling must survive the job context being canceled.
	swapped, err := e.store.CompareAndSetState(context.WithoutCancel(ctx), jobID, domain.JobStateProcessing, state, change)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug().Str("state", string(state)).Msg("job deleted before settling")
			return
		}
		log.Error().Err(err).Str("state", string(state)).Msg("settle job")
		return
	}
	if !swapped {
		log.Debug().Str("state", string(state)).Msg("job already settled")
	}
}

func (e *executor) progress(ctx context.Context, jobID string, value float64, log zerolog.Logger) {
	if err := e.store.UpdateProgress(context.WithoutCancel(ctx), jobID, value); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		log.Warn().Err(err).Float64("progress", value).Msg("update progress")
	}
}
