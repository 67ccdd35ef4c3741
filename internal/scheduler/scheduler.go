package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fentz26/recsync/internal/audit"
	"github.com/fentz26/recsync/internal/connectors"
	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/metrics"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/store"
	"github.com/fentz26/recsync/internal/transport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Store is the outbox access the scheduler needs.
type Store interface {
	ListDispatchableJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	MarkJobPending(ctx context.Context, id string) error
	CompleteJob(ctx context.Context, id string, response []byte) error
	FailJob(ctx context.Context, id, reason string) error
	RetryJob(ctx context.Context, id, reason string, next time.Time) error
	RequeueInFlightJobs(ctx context.Context) (int64, error)
}

// Scheduler sends outbox jobs through a client. At most one job per entity
// is in flight because the outbox only offers the lowest outstanding
// sequence number of each entity.
type Scheduler struct {
	store   Store
	pdr     *audit.PDRWriter
	client  connectors.Client
	config  *Config
	log     *logger.Logger
	metrics *metrics.Collector

	// Worker pool state
	mu            sync.Mutex
	activeWorkers int
	opCounts      map[string]int
	opSems        map[string]*semaphore.Weighted

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a new scheduler.
func New(s Store, pdr *audit.PDRWriter, client connectors.Client, cfg *Config, log *logger.Logger, m *metrics.Collector) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.GlobalMax <= 0 {
		cfg.GlobalMax = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:    s,
		pdr:      pdr,
		client:   client,
		config:   cfg,
		log:      log.With("component", "scheduler", "client", client.Name()),
		metrics:  m,
		opCounts: make(map[string]int),
		opSems:   make(map[string]*semaphore.Weighted),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Start requeues jobs left pending by a previous run and begins the
// dispatch loop.
func (sch *Scheduler) Start() {
	n, err := sch.store.RequeueInFlightJobs(sch.ctx)
	if err != nil {
		sch.log.Error("requeue in-flight jobs", "error", err)
	} else if n > 0 {
		sch.log.Info("requeued in-flight jobs", "count", n)
	}

	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.log.Info("scheduler started", "global_max", sch.config.GlobalMax)
}

// Stop stops polling and waits for in-flight dispatches to finish.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.log.Info("scheduler stopped")
}

func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch starts a worker for every dispatchable job that fits in the
// free capacity.
func (sch *Scheduler) pollAndDispatch() {
	sch.mu.Lock()
	free := sch.config.GlobalMax - sch.activeWorkers
	sch.mu.Unlock()
	if free <= 0 {
		return
	}

	jobs, err := sch.store.ListDispatchableJobs(sch.ctx, sch.now(), free)
	if err != nil {
		if sch.ctx.Err() == nil {
			sch.log.Error("list dispatchable jobs", "error", err)
		}
		return
	}

	for _, job := range jobs {
		sem := sch.opSemaphore(job.Operation)
		if !sem.TryAcquire(1) {
			continue
		}
		// Reserve the slot before the worker starts so the next poll sees it.
		sch.track(job.Operation, 1)
		sch.wg.Add(1)
		go func(job *models.Job) {
			defer sch.wg.Done()
			defer sem.Release(1)
			defer sch.track(job.Operation, -1)
			sch.process(sch.ctx, job)
		}(job)
	}
}

// RunOnce dispatches every job that is due now, waiting for each to finish,
// and repeats until none is left. Jobs queued behind a completed job on the
// same entity are sent in a later round.
func (sch *Scheduler) RunOnce(ctx context.Context) error {
	for {
		jobs, err := sch.store.ListDispatchableJobs(ctx, sch.now(), sch.config.GlobalMax)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sch.config.GlobalMax)
		for _, job := range jobs {
			job := job
			g.Go(func() error {
				sem := sch.opSemaphore(job.Operation)
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				sch.track(job.Operation, 1)
				defer sch.track(job.Operation, -1)
				sch.process(gctx, job)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

func (sch *Scheduler) opSemaphore(operation string) *semaphore.Weighted {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sem, ok := sch.opSems[operation]
	if !ok {
		sem = semaphore.NewWeighted(int64(sch.config.GetOperationLimit(operation)))
		sch.opSems[operation] = sem
	}
	return sem
}

func (sch *Scheduler) track(operation string, delta int) {
	sch.mu.Lock()
	sch.activeWorkers += delta
	sch.opCounts[operation] += delta
	active := sch.activeWorkers
	sch.mu.Unlock()
	sch.metrics.SetInFlight(active)
}

// process sends one job and records the outcome. The caller holds the job's
// worker slot.
func (sch *Scheduler) process(ctx context.Context, job *models.Job) {
	log := sch.log.With("job_id", job.ID, "operation", job.Operation, "attempt", job.Attempt+1)

	// Outcomes are recorded even when the dispatch was interrupted.
	sctx := context.WithoutCancel(ctx)

	if err := sch.store.MarkJobPending(sctx, job.ID); err != nil {
		if errors.Is(err, store.ErrJobNotDispatchable) || errors.Is(err, store.ErrJobTerminal) {
			log.Debug("job already taken", "error", err)
			return
		}
		log.Error("mark job pending", "error", err)
		return
	}

	sch.pdr.Record(sctx, "job.dispatch", job.Payload, "success", job.ID, "sent to "+sch.client.Name())
	log.Debug("dispatching job")

	start := sch.now()
	resp, err := connectors.Dispatch(ctx, sch.client, job.Operation, job.Payload)
	elapsed := sch.now().Sub(start).Seconds()

	if err == nil {
		if err := sch.store.CompleteJob(sctx, job.ID, resp); err != nil {
			log.Error("complete job", "error", err)
			return
		}
		sch.metrics.RecordCompleted(job.Operation, elapsed)
		sch.pdr.Record(sctx, "job.complete", resp, "success", job.ID, "")
		log.Info("job completed", "seconds", elapsed)
		return
	}

	attempts := job.Attempt + 1
	if transport.IsRetryable(err) && attempts < sch.config.MaxAttempts {
		next := sch.now().Add(sch.config.Backoff(attempts))
		if rerr := sch.store.RetryJob(sctx, job.ID, err.Error(), next); rerr != nil {
			log.Error("schedule job retry", "error", rerr)
			return
		}
		sch.metrics.RecordRetry(job.Operation)
		sch.pdr.Record(sctx, "job.retry", job.Payload, "retry", job.ID, err.Error())
		log.Warn("job attempt failed, retrying", "error", err, "next_attempt_at", next)
		return
	}

	if ferr := sch.store.FailJob(sctx, job.ID, err.Error()); ferr != nil {
		log.Error("fail job", "error", ferr)
		return
	}
	sch.metrics.RecordFailed(job.Operation, elapsed)
	sch.pdr.Record(sctx, "job.fail", job.Payload, "failure", job.ID, err.Error())
	log.Error("job failed", "error", err)
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	opCounts := make(map[string]int)
	for k, v := range sch.opCounts {
		if v > 0 {
			opCounts[k] = v
		}
	}

	return map[string]interface{}{
		"client":           sch.client.Name(),
		"active_workers":   sch.activeWorkers,
		"global_max":       sch.config.GlobalMax,
		"operation_counts": opCounts,
	}
}
