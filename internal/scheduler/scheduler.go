// Package scheduler owns the job lifecycle: a bounded FIFO queue feeding a
// fixed worker pool, an in-memory index of in-flight jobs for cancellation,
// and the staged pipeline each worker runs. Durable truth lives in the
// store; the scheduler keeps only transient handles.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/media"
	"github.com/King-fly/subtitle-api/internal/transcribe"
)

// Config sizes the pool and the per-stage execution policy.
type Config struct {
	Workers           int
	QueueCapacity     int
	MaxRetries        int
	RetryBackoff      time.Duration
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
}

// SubmitRequest describes one unit of work to enqueue.
type SubmitRequest struct {
	Owner     string
	MediaPath string
	Filename  string
	Language  string
	Model     string
	Formats   []domain.Format
}

// Scheduler accepts job submissions and dispatches them to the worker pool.
//
// Queue discipline is bounded FIFO with a fail-fast saturation policy:
// Submit never blocks on a full queue, it returns ErrBackpressure
// synchronously, before any job record is created.
type Scheduler struct {
	cfg    Config
	store  domain.Store
	exec   *executor
	logger zerolog.Logger

	// slots is the capacity semaphore: a token is taken at submission and
	// released when a worker finishes the job, so capacity covers queued
	// plus running work. queue carries the FIFO order of job ids.
	slots chan struct{}
	queue chan string

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	running  bool

	cancelAll context.CancelFunc
	group     *errgroup.Group
}

// New creates a scheduler; Start must be called before submissions.
func New(cfg Config, store domain.Store, extractor media.Extractor, transcriber transcribe.Transcriber, logger zerolog.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	return &Scheduler{
		cfg:   cfg,
		store: store,
		exec: &executor{
			store:             store,
			extractor:         extractor,
			transcriber:       transcriber,
			logger:            logger,
			maxRetries:        cfg.MaxRetries,
			retryBackoff:      cfg.RetryBackoff,
			extractTimeout:    cfg.ExtractTimeout,
			transcribeTimeout: cfg.TranscribeTimeout,
		},
		logger:   logger,
		slots:    make(chan struct{}, cfg.QueueCapacity),
		queue:    make(chan string, cfg.QueueCapacity),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers live until Shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.running = true
	s.cancelAll = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)
	for i := 0; i < s.cfg.Workers; i++ {
		worker := i
		s.group.Go(func() error {
			s.runWorker(runCtx, worker)
			return nil
		})
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Int("queue_capacity", s.cfg.QueueCapacity).
		Msg("scheduler started")
}

// Shutdown stops intake, aborts in-flight jobs (they settle as canceled at
// their next checkpoint) and waits for the workers up to the ctx deadline.
// Jobs still queued remain pending in the store.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancelAll
	group := s.group
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Submit validates the request, reserves a queue slot and enqueues a new
// pending job. It returns immediately with the created record; completion is
// observed through Status. ErrBackpressure when the queue is saturated and
// ErrInvalidRequest on a malformed request are both surfaced before a
// record exists.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if req.MediaPath == "" {
		return nil, fmt.Errorf("%w: media path is required", domain.ErrInvalidRequest)
	}
	if len(req.Formats) == 0 {
		return nil, fmt.Errorf("%w: at least one subtitle format is required", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, fmt.Errorf("%w: scheduler is not accepting work", domain.ErrBackpressure)
	}

	// Reserve capacity first so saturation is reported without a stray
	// pending record ever being written.
	select {
	case s.slots <- struct{}{}:
	default:
		return nil, domain.ErrBackpressure
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Owner:     req.Owner,
		MediaPath: req.MediaPath,
		Filename:  req.Filename,
		Language:  req.Language,
		Model:     req.Model,
		Formats:   append([]domain.Format(nil), req.Formats...),
		State:     domain.JobStatePending,
	}
	if err := s.store.Create(ctx, job); err != nil {
		<-s.slots
		return nil, fmt.Errorf("create job: %w", err)
	}

	// The slot reservation guarantees the buffered send cannot block.
	s.queue <- job.ID

	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner", job.Owner).
		Str("filename", job.Filename).
		Msg("job submitted")
	return job, nil
}

// Cancel requests cancellation of a job. It is idempotent: canceling a
// pending job settles it immediately, canceling a processing job flags it
// and the pipeline halts at its next checkpoint, and canceling an already
// terminal job is a successful no-op.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}

	if job.State == domain.JobStatePending {
		swapped, err := s.store.CompareAndSetState(ctx, jobID, domain.JobStatePending, domain.JobStateCanceled, domain.StateChange{})
		if err != nil {
			return err
		}
		if swapped {
			s.logger.Info().Str("job_id", jobID).Msg("pending job canceled")
			return nil
		}
		// A worker picked it up between the read and the swap.
	}

	// Terminal write races with the executor through the store CAS; losing
	// it just means the job settled first.
	if _, err := s.store.CompareAndSetState(ctx, jobID, domain.JobStateProcessing, domain.JobStateCanceled, domain.StateChange{}); err != nil {
		return err
	}
	s.mu.Lock()
	if cancel, ok := s.inflight[jobID]; ok {
		cancel()
	}
	s.mu.Unlock()
	s.logger.Info().Str("job_id", jobID).Msg("cancellation requested")
	return nil
}

// Status returns the job's current state, progress and error by delegating
// to the store; it works whether or not the job is still tracked in memory.
func (s *Scheduler) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.GetByID(ctx, jobID)
}

// ListSubtitles returns the artifacts of a job.
func (s *Scheduler) ListSubtitles(ctx context.Context, jobID string) ([]domain.Subtitle, error) {
	return s.store.ListSubtitles(ctx, jobID)
}

// runWorker pulls job ids in FIFO order and executes them one at a time.
// The slot token is released only after the job settles, so queue capacity
// bounds queued plus running work.
func (s *Scheduler) runWorker(ctx context.Context, worker int) {
	log := s.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-s.queue:
			s.runJob(ctx, jobID, log)
			<-s.slots
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, jobID string, log zerolog.Logger) {
	// Claim the job. Losing the swap means a cancellation settled it while
	// it sat in the queue; there is nothing to run.
	swapped, err := s.store.CompareAndSetState(ctx, jobID, domain.JobStatePending, domain.JobStateProcessing, domain.StateChange{})
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("claim failed")
		return
	}
	if !swapped {
		log.Debug().Str("job_id", jobID).Msg("job settled before dispatch")
		return
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("load claimed job")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.inflight[jobID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, jobID)
		s.mu.Unlock()
		cancel()
	}()

	s.exec.run(jobCtx, job, log)
}
