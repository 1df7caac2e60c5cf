// Package orchestrator owns the lifecycle of asynchronous jobs: scans
// and transfers run as background tasks while clients poll or subscribe
// for progress. The job table is the single shared mutable resource;
// a RWMutex lets readers run concurrently while every mutation is
// exclusive.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/scan"
)

const (
	defaultRetention       = 24 * time.Hour
	defaultCleanupInterval = time.Hour
)

// ScanRunner executes one tree scan. Satisfied by *scan.Scanner.
type ScanRunner interface {
	Scan(ctx context.Context, cfg model.ConnectionConfig, limits model.ScanLimits, opts model.ScanOptions, custom []model.ExclusionPattern, progress scan.ProgressFunc) model.ScanResult
}

// TransferRunner executes one transfer. The paused callback is polled
// between files so a paused job stops moving bytes without losing its
// place.
type TransferRunner interface {
	Run(ctx context.Context, src, dst model.ConnectionConfig, opts model.TransferOptions, progress func(model.TransferProgress), paused func() bool) (model.TransferResult, error)
}

// HistoryAppender receives finished-job summaries. Append failures are
// logged and otherwise ignored; history is fire-and-forget.
type HistoryAppender interface {
	Append(model.JobSummary) error
}

// Orchestrator tracks jobs and drives their background workers.
type Orchestrator struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	cancels map[string]context.CancelFunc
	subs    map[string][]chan model.Event

	scanner   ScanRunner
	executors map[model.TransferMethod]TransferRunner
	history   HistoryAppender

	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	log             *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScanner sets the scan runner used by StartScan.
func WithScanner(s ScanRunner) Option {
	return func(o *Orchestrator) { o.scanner = s }
}

// WithExecutor registers a transfer runner for a method.
func WithExecutor(m model.TransferMethod, r TransferRunner) Option {
	return func(o *Orchestrator) { o.executors[m] = r }
}

// WithHistory sets the terminal-job summary sink.
func WithHistory(h HistoryAppender) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithRetention overrides how long terminal jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(o *Orchestrator) { o.retention = d }
}

// WithCleanupInterval overrides the cleanup cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.cleanupInterval = d }
}

// WithClock substitutes the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. Construct one at startup and pass it by
// reference; there is no package-level instance.
func New(log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		jobs:            make(map[string]*model.Job),
		cancels:         make(map[string]context.CancelFunc),
		subs:            make(map[string][]chan model.Event),
		executors:       make(map[model.TransferMethod]TransferRunner),
		retention:       defaultRetention,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
		log:             log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create allocates a job in pending state and returns its id.
func (o *Orchestrator) Create(typ model.JobType, src, dst *model.ConnectionConfig) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := uuid.NewString()
	now := o.now()
	o.jobs[id] = &model.Job{
		ID:        id,
		Type:      typ,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Source:    src,
		Dest:      dst,
	}
	o.log.Debug("job created", "job_id", id, "type", typ)
	return id
}

// Get returns a copy of the job.
func (o *Orchestrator) Get(id string) (model.Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	j, ok := o.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	return *j, nil
}

// UpdateStatus transitions a job. Invalid transitions, including any
// write to an already-terminal job, return ErrInvalidTransition.
// Entering a terminal state stamps completed_at, notifies subscribers
// and appends a summary to history.
func (o *Orchestrator) UpdateStatus(id string, status model.JobStatus) error {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	if !validTransition(j.Type, j.Status, status) {
		from := j.Status
		o.mu.Unlock()
		return fmt.Errorf("job %s: %s -> %s: %w", id, from, status, model.ErrInvalidTransition)
	}
	o.applyStatus(j, status)
	done := *j
	o.mu.Unlock()

	if status.Terminal() {
		o.publish(model.Event{Kind: model.EventComplete, JobID: id, Status: status})
		o.appendHistory(done)
	}
	return nil
}

// applyStatus mutates the job under the write lock.
func (o *Orchestrator) applyStatus(j *model.Job, status model.JobStatus) {
	now := o.now()
	j.Status = status
	j.UpdatedAt = now
	if status.Terminal() {
		t := now
		j.CompletedAt = &t
	}
}

// UpdateScanProgress replaces the progress snapshot of a scan job.
// Safe at high frequency; never changes status. Unknown or terminal
// jobs are ignored so a finishing worker cannot race a cancellation.
func (o *Orchestrator) UpdateScanProgress(id string, p model.ScanProgress) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if ok && !j.Status.Terminal() {
		j.ScanProgress = &p
		j.UpdatedAt = o.now()
	}
	o.mu.Unlock()
	if ok {
		o.publish(model.Event{Kind: model.EventProgress, JobID: id, Scan: &p})
	}
}

// UpdateTransferProgress replaces the progress snapshot of a transfer
// job. Same contract as UpdateScanProgress.
func (o *Orchestrator) UpdateTransferProgress(id string, p model.TransferProgress) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if ok && !j.Status.Terminal() {
		j.TransferProgress = &p
		j.UpdatedAt = o.now()
	}
	o.mu.Unlock()
	if ok {
		o.publish(model.Event{Kind: model.EventProgress, JobID: id, Transfer: &p})
	}
}

// SetScanResult attaches the typed result. Does not change status.
func (o *Orchestrator) SetScanResult(id string, res model.ScanResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	j.ScanResult = &res
	j.UpdatedAt = o.now()
	return nil
}

// SetTransferResult attaches the typed result. Does not change status.
func (o *Orchestrator) SetTransferResult(id string, res model.TransferResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	j.TransferResult = &res
	j.UpdatedAt = o.now()
	return nil
}

// SetError records a human-readable failure message. Does not change
// status; callers follow up with UpdateStatus(failed).
func (o *Orchestrator) SetError(id string, msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	j.ErrorMessage = msg
	j.UpdatedAt = o.now()
	return nil
}

// Cancel requests cooperative cancellation of a non-terminal job. The
// status flips to cancelled immediately; the worker observes its
// context and stops at its next check, not instantaneously.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	if j.Status.Terminal() {
		from := j.Status
		o.mu.Unlock()
		return fmt.Errorf("job %s: %s -> %s: %w", id, from, model.StatusCancelled, model.ErrInvalidTransition)
	}
	o.applyStatus(j, model.StatusCancelled)
	cancel := o.cancels[id]
	delete(o.cancels, id)
	done := *j
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.publish(model.Event{Kind: model.EventComplete, JobID: id, Status: model.StatusCancelled})
	o.appendHistory(done)
	o.log.Info("job cancelled", "job_id", id)
	return nil
}

// Pause suspends a running transfer job.
func (o *Orchestrator) Pause(id string) error {
	return o.UpdateStatus(id, model.StatusPaused)
}

// Resume continues a paused transfer job.
func (o *Orchestrator) Resume(id string) error {
	o.mu.RLock()
	j, ok := o.jobs[id]
	paused := ok && j.Status == model.StatusPaused
	o.mu.RUnlock()
	if ok && !paused {
		return fmt.Errorf("job %s: %w", id, model.ErrInvalidTransition)
	}
	return o.UpdateStatus(id, model.StatusRunning)
}

// Delete removes a terminal job from the table. Deleting a pending,
// running or paused job is rejected.
func (o *Orchestrator) Delete(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	}
	if !j.Status.Terminal() {
		return fmt.Errorf("job %s is %s; only terminal jobs can be deleted: %w", id, j.Status, model.ErrInvalidTransition)
	}
	delete(o.jobs, id)
	o.dropSubscribers(id)
	return nil
}

// List returns copies of all jobs, optionally filtered by status.
// Order is unspecified.
func (o *Orchestrator) List(filter model.JobStatus) []model.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]model.Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		if filter != "" && j.Status != filter {
			continue
		}
		out = append(out, *j)
	}
	return out
}

// ListActive returns pending, running and paused jobs.
func (o *Orchestrator) ListActive() []model.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []model.Job
	for _, j := range o.jobs {
		if !j.Status.Terminal() {
			out = append(out, *j)
		}
	}
	return out
}

// Cleanup removes terminal jobs whose completed_at is older than the
// retention window. Non-terminal jobs are never removed regardless of
// age. Returns the number of jobs removed.
func (o *Orchestrator) Cleanup() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-o.retention)
	removed := 0
	for id, j := range o.jobs {
		if !j.Status.Terminal() || j.CompletedAt == nil {
			continue
		}
		if j.CompletedAt.Before(cutoff) {
			delete(o.jobs, id)
			o.dropSubscribers(id)
			removed++
		}
	}
	if removed > 0 {
		o.log.Debug("cleanup removed jobs", "count", removed)
	}
	return removed
}

// Run drives periodic cleanup until ctx is done. The loop is owned by
// the orchestrator's lifecycle; there is no way for it to outlive the
// caller's context.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Cleanup()
		}
	}
}

// status reads the current status without copying the whole job.
func (o *Orchestrator) status(id string) model.JobStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if j, ok := o.jobs[id]; ok {
		return j.Status
	}
	return ""
}

func (o *Orchestrator) bindCancel(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) releaseCancel(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.mu.Unlock()
}

func (o *Orchestrator) appendHistory(j model.Job) {
	if o.history == nil {
		return
	}
	sum := model.JobSummary{
		JobID:        j.ID,
		Type:         j.Type,
		Status:       j.Status,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
	}
	if j.Source != nil {
		sum.SourceHost = j.Source.Host
	}
	if j.Dest != nil {
		sum.DestHost = j.Dest.Host
	}
	if j.CompletedAt != nil {
		sum.CompletedAt = *j.CompletedAt
		sum.Duration = j.CompletedAt.Sub(j.CreatedAt)
	}
	go func() {
		if err := o.history.Append(sum); err != nil {
			o.log.Warn("history append failed", "job_id", sum.JobID, "error", err)
		}
	}()
}

// validTransition encodes the job state machine. Terminal states accept
// nothing; paused exists only for transfers.
func validTransition(typ model.JobType, from, to model.JobStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case model.StatusPending:
		return to == model.StatusRunning || to == model.StatusFailed || to == model.StatusCancelled
	case model.StatusRunning:
		if to == model.StatusPaused {
			return typ == model.JobTransfer
		}
		return to.Terminal()
	case model.StatusPaused:
		return to == model.StatusRunning || to == model.StatusCancelled || to == model.StatusFailed
	}
	return false
}
