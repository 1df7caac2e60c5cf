package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/portage/internal/model"
)

func summary(id string, completed time.Time) model.JobSummary {
	return model.JobSummary{
		JobID:       id,
		Type:        model.JobScan,
		Status:      model.StatusCompleted,
		SourceHost:  "src.example.com",
		CreatedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
		Duration:    time.Minute,
	}
}

func TestHistoryAppendAndRecent(t *testing.T) {
	h, err := Open(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.Append(summary("job-a", base)))
	require.NoError(t, h.Append(summary("job-b", base.Add(time.Hour))))
	require.NoError(t, h.Append(summary("job-c", base.Add(2*time.Hour))))

	got, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-c", got[0].JobID, "newest first")
	assert.Equal(t, "job-b", got[1].JobID)
	assert.Equal(t, model.StatusCompleted, got[0].Status)
	assert.Equal(t, time.Minute, got[0].Duration)
}

func TestHistoryRecentEmpty(t *testing.T) {
	h, err := Open(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	got, err := h.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryFailureRecorded(t *testing.T) {
	h, err := Open(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	s := summary("job-x", time.Now().UTC())
	s.Status = model.StatusFailed
	s.ErrorMessage = "cannot connect to host"
	require.NoError(t, h.Append(s))

	got, err := h.Recent(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Equal(t, "cannot connect to host", got[0].ErrorMessage)
}
