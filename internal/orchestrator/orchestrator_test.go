package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/scan"
)

func newTestOrchestrator(opts ...Option) *Orchestrator {
	return New(slog.Default(), opts...)
}

func srcConfig() *model.ConnectionConfig {
	return &model.ConnectionConfig{Protocol: model.ProtocolSFTP, Host: "src.example.com"}
}

func dstConfig() *model.ConnectionConfig {
	return &model.ConnectionConfig{Protocol: model.ProtocolSFTP, Host: "dst.example.com"}
}

func TestCreateAndGet(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NotEmpty(t, id)

	j, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, j.Status)
	assert.Equal(t, model.JobScan, j.Type)
	assert.Nil(t, j.CompletedAt)
	assert.Equal(t, "src.example.com", j.Source.Host)

	// Ids are unique across creations.
	id2 := o.Create(model.JobScan, srcConfig(), nil)
	assert.NotEqual(t, id, id2)
}

func TestGetUnknownJob(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.Get("nope")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestStatusTransitions(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)

	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(id, model.StatusCompleted))

	j, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt, "terminal transition must stamp completed_at")
}

func TestTerminalJobsRejectWrites(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(id, model.StatusCompleted))

	assert.ErrorIs(t, o.UpdateStatus(id, model.StatusRunning), model.ErrInvalidTransition)
	assert.ErrorIs(t, o.Cancel(id), model.ErrInvalidTransition)
}

func TestPauseOnlyForTransfers(t *testing.T) {
	o := newTestOrchestrator()

	scanID := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(scanID, model.StatusRunning))
	assert.ErrorIs(t, o.Pause(scanID), model.ErrInvalidTransition)

	xferID := o.Create(model.JobTransfer, srcConfig(), dstConfig())
	require.NoError(t, o.UpdateStatus(xferID, model.StatusRunning))
	require.NoError(t, o.Pause(xferID))
	j, _ := o.Get(xferID)
	assert.Equal(t, model.StatusPaused, j.Status)
	require.NoError(t, o.Resume(xferID))
	j, _ = o.Get(xferID)
	assert.Equal(t, model.StatusRunning, j.Status)
}

func TestResumeRequiresPaused(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobTransfer, srcConfig(), dstConfig())
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))
	assert.ErrorIs(t, o.Resume(id), model.ErrInvalidTransition)
}

func TestCancelNonTerminal(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)

	require.NoError(t, o.Cancel(id))
	j, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, j.Status)
	assert.NotNil(t, j.CompletedAt)
}

func TestDeleteOnlyTerminal(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))

	assert.ErrorIs(t, o.Delete(id), model.ErrInvalidTransition)

	require.NoError(t, o.UpdateStatus(id, model.StatusCompleted))
	require.NoError(t, o.Delete(id))
	_, err := o.Get(id)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestListAndListActive(t *testing.T) {
	o := newTestOrchestrator()
	a := o.Create(model.JobScan, srcConfig(), nil)
	b := o.Create(model.JobTransfer, srcConfig(), dstConfig())
	require.NoError(t, o.UpdateStatus(b, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(b, model.StatusCompleted))

	assert.Len(t, o.List(""), 2)
	assert.Len(t, o.List(model.StatusCompleted), 1)

	active := o.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, a, active[0].ID)
}

func TestCleanupRetention(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	o := newTestOrchestrator(WithClock(clock))

	old := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(old, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(old, model.StatusCompleted))

	stale := o.Create(model.JobScan, srcConfig(), nil) // stays running forever
	require.NoError(t, o.UpdateStatus(stale, model.StatusRunning))

	advance(23 * time.Hour)
	recent := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(recent, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(recent, model.StatusFailed))

	advance(2 * time.Hour) // old is now 25h past completion, recent 2h

	assert.Equal(t, 1, o.Cleanup())
	_, err := o.Get(old)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
	_, err = o.Get(recent)
	assert.NoError(t, err, "jobs inside the retention window are kept")

	advance(1000 * time.Hour)
	o.Cleanup()
	j, err := o.Get(stale)
	require.NoError(t, err, "non-terminal jobs are never cleaned up")
	assert.Equal(t, model.StatusRunning, j.Status)
}

// stubScanner returns a fixed result, optionally blocking until its
// context is cancelled.
type stubScanner struct {
	res        model.ScanResult
	emit       []model.ScanProgress
	waitCancel bool
	started    chan struct{}
}

func (s *stubScanner) Scan(ctx context.Context, _ model.ConnectionConfig, _ model.ScanLimits, _ model.ScanOptions, _ []model.ExclusionPattern, progress scan.ProgressFunc) model.ScanResult {
	if s.started != nil {
		close(s.started)
	}
	for _, p := range s.emit {
		if progress != nil {
			progress(p)
		}
	}
	if s.waitCancel {
		<-ctx.Done()
		res := s.res
		res.Truncated = true
		return res
	}
	return s.res
}

func waitStatus(t *testing.T, o *Orchestrator, id string, want model.JobStatus) model.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := o.Get(id)
		require.NoError(t, err)
		if j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := o.Get(id)
	t.Fatalf("job %s never reached %s (now %s)", id, want, j.Status)
	return model.Job{}
}

func TestStartScanCompletes(t *testing.T) {
	sc := &stubScanner{
		res:  model.ScanResult{Success: true, Statistics: model.Statistics{TotalFiles: 7}},
		emit: []model.ScanProgress{{Status: "scanning", FilesScanned: 3}},
	}
	o := newTestOrchestrator(WithScanner(sc))

	id, err := o.StartScan(*srcConfig(), model.ScanLimits{}, model.ScanOptions{}, nil)
	require.NoError(t, err)

	j := waitStatus(t, o, id, model.StatusCompleted)
	require.NotNil(t, j.ScanResult)
	assert.Equal(t, int64(7), j.ScanResult.Statistics.TotalFiles)
	assert.Empty(t, j.ErrorMessage)
	assert.NotNil(t, j.CompletedAt)
}

func TestStartScanFailure(t *testing.T) {
	sc := &stubScanner{res: model.ScanResult{Success: false, Error: "cannot connect", ErrorKind: model.ErrKindConnectionFailed}}
	o := newTestOrchestrator(WithScanner(sc))

	id, err := o.StartScan(*srcConfig(), model.ScanLimits{}, model.ScanOptions{}, nil)
	require.NoError(t, err)

	j := waitStatus(t, o, id, model.StatusFailed)
	assert.Equal(t, "cannot connect", j.ErrorMessage)
	assert.Nil(t, j.ScanResult, "failed jobs carry only the error message")
}

func TestStartScanCancellation(t *testing.T) {
	sc := &stubScanner{
		res:        model.ScanResult{Success: true},
		waitCancel: true,
		started:    make(chan struct{}),
	}
	o := newTestOrchestrator(WithScanner(sc))

	id, err := o.StartScan(*srcConfig(), model.ScanLimits{}, model.ScanOptions{}, nil)
	require.NoError(t, err)
	<-sc.started

	require.NoError(t, o.Cancel(id))
	j := waitStatus(t, o, id, model.StatusCancelled)
	assert.Equal(t, model.StatusCancelled, j.Status)
}

// stubExecutor records its inputs and returns a canned result.
type stubExecutor struct {
	res model.TransferResult
	err error
}

func (e *stubExecutor) Run(_ context.Context, _, _ model.ConnectionConfig, _ model.TransferOptions, progress func(model.TransferProgress), _ func() bool) (model.TransferResult, error) {
	if progress != nil {
		progress(model.TransferProgress{Status: "copying", FilesDone: 1})
	}
	return e.res, e.err
}

func TestStartTransferCompletes(t *testing.T) {
	exec := &stubExecutor{res: model.TransferResult{FilesTransferred: 4, BytesTransferred: 1024}}
	o := newTestOrchestrator(WithExecutor(model.MethodStreaming, exec))

	id, err := o.StartTransfer(model.MethodStreaming, *srcConfig(), *dstConfig(), model.TransferOptions{})
	require.NoError(t, err)

	j := waitStatus(t, o, id, model.StatusCompleted)
	require.NotNil(t, j.TransferResult)
	assert.Equal(t, int64(4), j.TransferResult.FilesTransferred)
}

func TestStartTransferFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("destination rejected writes")}
	o := newTestOrchestrator(WithExecutor(model.MethodStreaming, exec))

	id, err := o.StartTransfer(model.MethodStreaming, *srcConfig(), *dstConfig(), model.TransferOptions{})
	require.NoError(t, err)

	j := waitStatus(t, o, id, model.StatusFailed)
	assert.Equal(t, "destination rejected writes", j.ErrorMessage)
	assert.Nil(t, j.TransferResult, "failed jobs carry only the error message")
}

func TestStartTransferUnknownMethod(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.StartTransfer(model.MethodRsyncSSH, *srcConfig(), *dstConfig(), model.TransferOptions{})
	assert.Error(t, err)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))

	ch, unsubscribe, err := o.Subscribe(id)
	require.NoError(t, err)
	defer unsubscribe()

	o.UpdateScanProgress(id, model.ScanProgress{Status: "scanning", FilesScanned: 10})
	require.NoError(t, o.UpdateStatus(id, model.StatusCompleted))

	var kinds []model.EventKind
	timeout := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("timed out; got %v", kinds)
		}
	}
	assert.Equal(t, []model.EventKind{model.EventProgress, model.EventComplete}, kinds)
}

func TestSubscribeUnknownJob(t *testing.T) {
	o := newTestOrchestrator()
	_, _, err := o.Subscribe("nope")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestSlowSubscriberNeverBlocks(t *testing.T) {
	o := newTestOrchestrator()
	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))

	_, unsubscribe, err := o.Subscribe(id)
	require.NoError(t, err)
	defer unsubscribe()

	// Nobody drains the channel; publishing far past the buffer must
	// still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*10; i++ {
			o.UpdateScanProgress(id, model.ScanProgress{FilesScanned: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

// recordingHistory captures appended summaries.
type recordingHistory struct {
	mu   sync.Mutex
	sums []model.JobSummary
}

func (h *recordingHistory) Append(s model.JobSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sums = append(h.sums, s)
	return nil
}

func (h *recordingHistory) list() []model.JobSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.JobSummary(nil), h.sums...)
}

func TestHistoryAppendedOnTerminal(t *testing.T) {
	h := &recordingHistory{}
	o := newTestOrchestrator(WithHistory(h))

	id := o.Create(model.JobScan, srcConfig(), nil)
	require.NoError(t, o.UpdateStatus(id, model.StatusRunning))
	require.NoError(t, o.UpdateStatus(id, model.StatusCompleted))

	deadline := time.Now().Add(time.Second)
	for len(h.list()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sums := h.list()
	require.Len(t, sums, 1)
	assert.Equal(t, id, sums[0].JobID)
	assert.Equal(t, model.StatusCompleted, sums[0].Status)
	assert.Equal(t, "src.example.com", sums[0].SourceHost)
}

func TestRunStopsOnContext(t *testing.T) {
	o := newTestOrchestrator(WithCleanupInterval(10 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop when its context was cancelled")
	}
}
