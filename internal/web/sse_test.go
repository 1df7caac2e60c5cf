package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/orchestrator"
)

func testServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(log)
	return NewServer(0, log, orch, nil, nil), orch
}

func eventsSrc() *model.ConnectionConfig {
	return &model.ConnectionConfig{
		Protocol: model.ProtocolSFTP,
		Host:     "src.example.com",
		Username: "deploy",
		Password: "secret",
		RootPath: "/site",
	}
}

func TestEventsTerminalJobSendsComplete(t *testing.T) {
	s, orch := testServer(t)

	id := orch.Create(model.JobScan, eventsSrc(), nil)
	require.NoError(t, orch.UpdateStatus(id, model.StatusRunning))
	require.NoError(t, orch.UpdateStatus(id, model.StatusCompleted))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/events", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req, id)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: complete\n"), "first frame: %q", body)
	assert.Contains(t, body, `"kind":"complete"`)
	assert.Contains(t, body, `"status":"completed"`)
}

func TestEventsRunningJobSnapshotIsProgress(t *testing.T) {
	s, orch := testServer(t)

	id := orch.Create(model.JobScan, eventsSrc(), nil)
	require.NoError(t, orch.UpdateStatus(id, model.StatusRunning))
	orch.UpdateScanProgress(id, model.ScanProgress{Status: "scanning", FilesScanned: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the handler should still write the initial frame
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req, id)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: progress\n"), "first frame: %q", body)
	assert.Contains(t, body, `"kind":"progress"`)
	assert.Contains(t, body, `"files_scanned":5`)
}

func TestEventsUnknownJob(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope/events", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req, "nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
