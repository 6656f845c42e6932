package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Queue is the storage side of the worker
type Queue interface {
	Claim(ctx context.Context, max int, visibility time.Duration) ([]Job, error)
	Ack(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, delay time.Duration, cause error) error
	DeadLetter(ctx context.Context, job Job, cause error) error
}

// JobObserver receives the result of every processed job
type JobObserver interface {
	ObserveJob(kind Kind, result string, elapsed time.Duration)
}

// Job results reported to a JobObserver
const (
	ResultAcked      = "acked"
	ResultRetried    = "retried"
	ResultDeadLetter = "dead_letter"
)

// WorkerConfig tunes polling and retry behaviour
type WorkerConfig struct {
	PollInterval time.Duration
	Visibility   time.Duration // must exceed the slowest handler
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

// DefaultWorkerConfig returns production defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 250 * time.Millisecond,
		Visibility:   60 * time.Second,
		BatchSize:    32,
		Concurrency:  8,
		MaxAttempts:  10,
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
	}
}

// Worker polls a Queue and dispatches due jobs to registered handlers
type Worker struct {
	queue    Queue
	cfg      WorkerConfig
	observer JobObserver

	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewWorker creates a worker over queue
func NewWorker(queue Queue, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    queue,
		cfg:      cfg,
		handlers: make(map[Kind]Handler),
	}
}

// WithObserver attaches a job observer
func (w *Worker) WithObserver(o JobObserver) *Worker {
	w.observer = o
	return w
}

// Handle registers the handler for kind
func (w *Worker) Handle(kind Kind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Start launches the polling loop and returns a stop function
func (w *Worker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"pollInterval": w.cfg.PollInterval,
			"concurrency":  w.cfg.Concurrency,
		}).Info("Scheduler worker started")

		for {
			if _, err := w.ProcessDue(ctx); err != nil {
				log.Errorf("Error processing scheduled jobs: %v", err)
			}

			select {
			case <-ctx.Done():
				log.Info("Scheduler worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Scheduler worker shutting down (stop requested)...")
				return
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		<-done
	}
}

// ProcessDue claims one batch of due jobs and runs them. It returns how
// many jobs were claimed.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := w.queue.Claim(ctx, w.cfg.BatchSize, w.cfg.Visibility)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	log.WithField("count", len(jobs)).Debug("Claimed scheduled jobs")

	// one failing job must not cancel its siblings
	var g errgroup.Group
	if w.cfg.Concurrency > 0 {
		g.SetLimit(w.cfg.Concurrency)
	}
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return w.run(ctx, job)
		})
	}
	return len(jobs), g.Wait()
}

func (w *Worker) run(ctx context.Context, job Job) error {
	start := time.Now()
	fields := log.Fields{
		"jobID":    job.ID,
		"kind":     job.Kind,
		"roomID":   job.RoomID,
		"attempts": job.Attempts,
	}

	w.mu.RLock()
	h, ok := w.handlers[job.Kind]
	w.mu.RUnlock()

	if !ok {
		log.WithFields(fields).Error("No handler registered for job kind")
		w.observe(job.Kind, ResultDeadLetter, start)
		return w.queue.DeadLetter(ctx, job, fmt.Errorf("no handler for kind %s", job.Kind))
	}

	herr := invoke(ctx, h, job)
	if herr == nil {
		log.WithFields(fields).Debug("Scheduled job completed")
		w.observe(job.Kind, ResultAcked, start)
		return w.queue.Ack(ctx, job)
	}

	if job.Attempts+1 >= w.cfg.MaxAttempts {
		log.WithFields(fields).WithError(herr).Error("Scheduled job exhausted retries")
		w.observe(job.Kind, ResultDeadLetter, start)
		return w.queue.DeadLetter(ctx, job, herr)
	}

	delay := w.backoff(job.Attempts)
	log.WithFields(fields).WithError(herr).WithField("retryIn", delay).Warn("Scheduled job failed, retrying")
	w.observe(job.Kind, ResultRetried, start)
	return w.queue.Retry(ctx, job, delay, herr)
}

// invoke runs h, turning a panic into an error so the job is retried
func invoke(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"jobID": job.ID,
				"kind":  job.Kind,
				"panic": r,
			}).Error("Scheduled job handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 0; i < attempts && d < w.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > w.cfg.BackoffMax {
		d = w.cfg.BackoffMax
	}
	return d
}

func (w *Worker) observe(kind Kind, result string, start time.Time) {
	if w.observer != nil {
		w.observer.ObserveJob(kind, result, time.Since(start))
	}
}
