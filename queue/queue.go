// ABOUTME: In-process enrichment job queue with priority scheduling, retry
// ABOUTME: backoff, stalled-job recovery, and state persisted through the cache
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"news-enricher/domain"
)

const jobsHashKey = "queue:jobs"

// Processor consumes jobs. Process performs the enrichment; Fallback runs
// once when a job exhausts its attempts so the article still ships with
// deterministic commentary.
type Processor interface {
	Process(ctx context.Context, job *domain.EnrichmentJob) error
	Fallback(ctx context.Context, job *domain.EnrichmentJob) error
}

// AdmissionChecker is an optional Processor extension consulted before a job
// is enqueued. A true result means the work is already done (the store holds
// commentary, or could be back-filled from the cache) and Submit returns
// domain.ErrJobAlreadyDone instead of enqueuing.
type AdmissionChecker interface {
	AlreadyEnriched(ctx context.Context, articleID string) (bool, error)
}

// JobStore is the persistence slice of the cache facade the queue uses to
// survive restarts.
type JobStore interface {
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// Config tunes the queue. Zero values take the documented defaults.
type Config struct {
	Concurrency     int           // parallel workers, default 2
	MaxAttempts     int           // per job, default 3
	BackoffBase     time.Duration // retry n waits BackoffBase * 2^(n-1), default 5s
	StartLimit      int           // job starts per window, default 10
	StartWindow     time.Duration // default 60s
	LockTTL         time.Duration // active-job lock, default 2m
	StalledInterval time.Duration // stalled-job scan period, default 60s
	DrainDelay      time.Duration // max wait for active jobs on Stop, default 30s
	KeepCompleted   int           // retention count, default 100
	KeepCompletedD  time.Duration // retention age, default 24h
	KeepFailed      int           // default 500
	KeepFailedD     time.Duration // default 7d
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.StartLimit <= 0 {
		c.StartLimit = 10
	}
	if c.StartWindow <= 0 {
		c.StartWindow = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.StalledInterval <= 0 {
		c.StalledInterval = time.Minute
	}
	if c.DrainDelay <= 0 {
		c.DrainDelay = 30 * time.Second
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = 100
	}
	if c.KeepCompletedD <= 0 {
		c.KeepCompletedD = 24 * time.Hour
	}
	if c.KeepFailed <= 0 {
		c.KeepFailed = 500
	}
	if c.KeepFailedD <= 0 {
		c.KeepFailedD = 7 * 24 * time.Hour
	}
}

// Stats is the queue's observability snapshot.
type Stats struct {
	Waiting       int    `json:"waiting"`
	Active        int    `json:"active"`
	Delayed       int    `json:"delayed"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	StartsInWin   int    `json:"starts_in_window"`
	Health        string `json:"health"`
	OldestWaiting string `json:"oldest_waiting,omitempty"`
}

// Queue schedules enrichment jobs by priority with bounded concurrency.
// Admission is idempotent per job id; state changes are mirrored into the
// cache tier so a restart can recover in-flight work.
type Queue struct {
	cfg       Config
	jobs      map[string]*domain.EnrichmentJob
	ready     jobHeap
	processor Processor
	store     JobStore
	limiter   *StartLimiter
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// New builds a queue. store may be nil, which disables persistence.
func New(cfg Config, processor Processor, store JobStore, logger *slog.Logger) *Queue {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:       cfg,
		jobs:      make(map[string]*domain.EnrichmentJob),
		processor: processor,
		store:     store,
		limiter:   NewStartLimiter(cfg.StartLimit, cfg.StartWindow),
		logger:    logger,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Submit admits a job. Re-submitting an in-flight job id returns
// domain.ErrDuplicateJob and work already done returns
// domain.ErrJobAlreadyDone; callers treat both as success. A completed or
// failed job id may be submitted again.
func (q *Queue) Submit(ctx context.Context, job *domain.EnrichmentJob) error {
	if job == nil || job.ArticleID == "" {
		return fmt.Errorf("%w: missing article id", domain.ErrInvalidJob)
	}

	job.JobID = domain.JobIDFor(job.ArticleID)
	if job.Priority <= 0 {
		job.Priority = domain.PriorityDefault
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}

	if checker, ok := q.processor.(AdmissionChecker); ok {
		done, err := checker.AlreadyEnriched(ctx, job.ArticleID)
		if err != nil {
			q.logger.WarnContext(ctx, "admission check failed, enqueuing anyway",
				"job_id", job.JobID,
				"error", err)
		} else if done {
			return fmt.Errorf("%w: %s", domain.ErrJobAlreadyDone, job.JobID)
		}
	}

	q.mu.Lock()
	if existing, ok := q.jobs[job.JobID]; ok && existing.InFlight() {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, job.JobID)
	}

	now := q.now()
	job.State = domain.JobStateWaiting
	job.Attempts = 0
	job.EnqueuedAt = now
	job.NextRunAt = now
	job.LastError = ""
	job.FinishedAt = time.Time{}

	q.jobs[job.JobID] = job
	heap.Push(&q.ready, job)
	q.mu.Unlock()

	q.persist(ctx, job)
	q.signal()

	q.logger.InfoContext(ctx, "job enqueued",
		"job_id", job.JobID,
		"section", job.Section,
		"priority", job.Priority)
	return nil
}

// Start launches the worker loops, the stalled-job monitor, and the
// retention sweeper. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, i+1)
	}
	q.wg.Add(1)
	go q.maintenanceLoop(ctx)

	q.logger.InfoContext(ctx, "enrichment queue started",
		"concurrency", q.cfg.Concurrency,
		"start_limit", q.cfg.StartLimit,
		"start_window", q.cfg.StartWindow)
}

// Stop halts admission of new work and waits up to DrainDelay for active
// jobs to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(q.cfg.DrainDelay):
		q.logger.Warn("queue drain delay elapsed with jobs still active")
	}
}

// Restore reloads persisted jobs. In-flight jobs re-enter the waiting set;
// terminal jobs are kept for retention accounting.
func (q *Queue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	fields, err := q.store.HGetAll(ctx, jobsHashKey)
	if err != nil {
		return fmt.Errorf("restore queue state: %w", err)
	}

	restored := 0
	q.mu.Lock()
	for _, raw := range fields {
		var job domain.EnrichmentJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn("skipping unreadable persisted job", "error", err)
			continue
		}
		if job.InFlight() {
			job.State = domain.JobStateWaiting
			job.NextRunAt = q.now()
			job.LockExpiresAt = time.Time{}
			heap.Push(&q.ready, &job)
			restored++
		}
		q.jobs[job.JobID] = &job
	}
	q.mu.Unlock()

	if restored > 0 {
		q.signal()
	}
	q.logger.InfoContext(ctx, "queue state restored",
		"jobs", len(fields),
		"requeued", restored)
	return nil
}

func (q *Queue) workerLoop(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		job := q.nextReady()
		if job == nil {
			select {
			case <-q.wake:
			case <-time.After(time.Second):
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		// Rate-limit job starts, not job submissions.
		for !q.limiter.Allow() {
			wait := time.Until(q.limiter.RetryAt())
			if wait < 50*time.Millisecond {
				wait = 50 * time.Millisecond
			}
			select {
			case <-time.After(wait):
			case <-q.stopCh:
				q.requeue(job)
				return
			case <-ctx.Done():
				q.requeue(job)
				return
			}
		}

		q.run(ctx, id, job)

		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// nextReady pops the highest-priority job whose NextRunAt has passed, also
// promoting any delayed jobs that became ready.
func (q *Queue) nextReady() *domain.EnrichmentJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, job := range q.jobs {
		if job.State == domain.JobStateDelayed && !job.NextRunAt.After(now) {
			job.State = domain.JobStateWaiting
			heap.Push(&q.ready, job)
		}
	}

	for q.ready.Len() > 0 {
		job := heap.Pop(&q.ready).(*domain.EnrichmentJob)
		// Stale heap entries (re-submitted or re-enqueued ids) are skipped.
		if q.jobs[job.JobID] != job || job.State != domain.JobStateWaiting {
			continue
		}
		job.State = domain.JobStateActive
		job.LockExpiresAt = now.Add(q.cfg.LockTTL)
		return job
	}
	return nil
}

func (q *Queue) run(ctx context.Context, workerID int, job *domain.EnrichmentJob) {
	q.persist(ctx, job)

	q.logger.InfoContext(ctx, "job started",
		"worker", workerID,
		"job_id", job.JobID,
		"attempt", job.Attempts+1,
		"priority", job.Priority)

	err := q.processor.Process(ctx, job)

	q.mu.Lock()
	job.Attempts++
	now := q.now()

	if err == nil {
		job.State = domain.JobStateCompleted
		job.FinishedAt = now
		job.LastError = ""
		job.LockExpiresAt = time.Time{}
		q.mu.Unlock()
		q.persist(ctx, job)
		q.logger.InfoContext(ctx, "job completed",
			"worker", workerID,
			"job_id", job.JobID,
			"attempts", job.Attempts)
		return
	}

	job.LastError = err.Error()

	if job.Attempts >= job.MaxAttempts {
		job.State = domain.JobStateFailed
		job.FinishedAt = now
		job.LockExpiresAt = time.Time{}
		q.mu.Unlock()
		q.persist(ctx, job)

		q.logger.ErrorContext(ctx, "job exhausted attempts, running fallback",
			"job_id", job.JobID,
			"attempts", job.Attempts,
			"error", err)
		if fbErr := q.processor.Fallback(ctx, job); fbErr != nil {
			q.logger.ErrorContext(ctx, "job fallback failed",
				"job_id", job.JobID,
				"error", fbErr)
		}
		return
	}

	backoff := q.backoff(job.Attempts)
	job.State = domain.JobStateDelayed
	job.NextRunAt = now.Add(backoff)
	job.LockExpiresAt = time.Time{}
	q.mu.Unlock()
	q.persist(ctx, job)

	q.logger.WarnContext(ctx, "job failed, retrying",
		"job_id", job.JobID,
		"attempt", job.Attempts,
		"retry_in", backoff,
		"error", err)
}

// backoff returns the delay before retry n (1-based): base * 2^(n-1).
func (q *Queue) backoff(attempt int) time.Duration {
	return q.cfg.BackoffBase * time.Duration(math.Pow(2, float64(attempt-1)))
}

func (q *Queue) requeue(job *domain.EnrichmentJob) {
	q.mu.Lock()
	job.State = domain.JobStateWaiting
	job.LockExpiresAt = time.Time{}
	heap.Push(&q.ready, job)
	q.mu.Unlock()
}

// maintenanceLoop recovers stalled jobs and enforces retention.
func (q *Queue) maintenanceLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.StalledInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.recoverStalled(ctx)
			q.enforceRetention(ctx)
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) recoverStalled(ctx context.Context) {
	now := q.now()
	var stalled []*domain.EnrichmentJob

	q.mu.Lock()
	for _, job := range q.jobs {
		if job.State == domain.JobStateActive && !job.LockExpiresAt.IsZero() && job.LockExpiresAt.Before(now) {
			job.State = domain.JobStateWaiting
			job.LockExpiresAt = time.Time{}
			job.NextRunAt = now
			heap.Push(&q.ready, job)
			stalled = append(stalled, job)
		}
	}
	q.mu.Unlock()

	for _, job := range stalled {
		q.persist(ctx, job)
		q.logger.WarnContext(ctx, "stalled job re-enqueued", "job_id", job.JobID)
	}
	if len(stalled) > 0 {
		q.signal()
	}
}

// enforceRetention trims terminal jobs beyond the count or age limits.
func (q *Queue) enforceRetention(ctx context.Context) {
	now := q.now()
	var evict []string

	q.mu.Lock()
	var completed, failed []*domain.EnrichmentJob
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobStateCompleted:
			completed = append(completed, job)
		case domain.JobStateFailed:
			failed = append(failed, job)
		}
	}
	evict = append(evict, retentionOverflow(completed, q.cfg.KeepCompleted, q.cfg.KeepCompletedD, now)...)
	evict = append(evict, retentionOverflow(failed, q.cfg.KeepFailed, q.cfg.KeepFailedD, now)...)
	for _, id := range evict {
		delete(q.jobs, id)
	}
	q.mu.Unlock()

	if len(evict) > 0 && q.store != nil {
		if err := q.store.HDel(ctx, jobsHashKey, evict...); err != nil {
			q.logger.WarnContext(ctx, "failed to prune persisted jobs", "error", err)
		}
	}
}

// retentionOverflow returns the job ids to evict: everything older than
// maxAge plus, after sorting newest-first, everything past maxCount.
func retentionOverflow(jobs []*domain.EnrichmentJob, maxCount int, maxAge time.Duration, now time.Time) []string {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].FinishedAt.After(jobs[j].FinishedAt)
	})
	var evict []string
	for i, job := range jobs {
		if i >= maxCount || now.Sub(job.FinishedAt) > maxAge {
			evict = append(evict, job.JobID)
		}
	}
	return evict
}

func (q *Queue) persist(ctx context.Context, job *domain.EnrichmentJob) {
	if q.store == nil {
		return
	}
	q.mu.Lock()
	raw, err := json.Marshal(job)
	q.mu.Unlock()
	if err != nil {
		q.logger.WarnContext(ctx, "failed to encode job for persistence",
			"job_id", job.JobID,
			"error", err)
		return
	}
	if err := q.store.HSet(ctx, jobsHashKey, job.JobID, string(raw)); err != nil {
		q.logger.WarnContext(ctx, "failed to persist job state",
			"job_id", job.JobID,
			"error", err)
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Job returns a copy of the tracked job for a job id.
func (q *Queue) Job(jobID string) (domain.EnrichmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return domain.EnrichmentJob{}, false
	}
	return *job, true
}

// Stats snapshots queue depth by state with a coarse health grade.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	var oldest time.Time
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobStateWaiting:
			s.Waiting++
			if oldest.IsZero() || job.EnqueuedAt.Before(oldest) {
				oldest = job.EnqueuedAt
			}
		case domain.JobStateActive:
			s.Active++
		case domain.JobStateDelayed:
			s.Delayed++
		case domain.JobStateCompleted:
			s.Completed++
		case domain.JobStateFailed:
			s.Failed++
		}
	}
	if !oldest.IsZero() {
		s.OldestWaiting = oldest.UTC().Format(time.RFC3339)
	}
	s.StartsInWin = q.limiter.InWindow()

	s.Health = "healthy"
	if s.Failed > 50 || s.Waiting > 500 {
		s.Health = "degraded"
	}
	return s
}

// SetClock overrides the queue's time source. Test hook.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}
