package scan

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/remote"
)

func testConfig() model.ConnectionConfig {
	return model.ConnectionConfig{
		Protocol: model.ProtocolSFTP,
		Host:     "source.example.com",
		Port:     22,
		Username: "deploy",
		Password: "secret",
		RootPath: "/site",
	}
}

func newTestScanner(client *remote.MemClient, dialErr error) *Scanner {
	return New(slog.Default(), WithDialer(remote.MemDialer(client, dialErr)))
}

func TestScanCountsFilesAndDirs(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/a.txt", make([]byte, 10))
	client.AddFile("/site/docs/b.txt", make([]byte, 20))
	client.AddFile("/site/docs/sub/c.txt", make([]byte, 30))

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(3), res.Statistics.TotalFiles)
	assert.Equal(t, int64(2), res.Statistics.TotalDirs)
	assert.Equal(t, int64(60), res.Statistics.TotalSize)
	assert.Equal(t, int64(0), res.Statistics.ExcludedCount)
	assert.False(t, res.Truncated)
	assert.Equal(t, int64(3), res.Statistics.ExtensionCounts[".txt"])
	assert.Equal(t, 3, res.Statistics.MaxDepth)
}

func TestScanRespectsMaxFiles(t *testing.T) {
	client := remote.NewMemClient()
	for i := 0; i < 50; i++ {
		client.AddFile("/site/f"+string(rune('a'+i%26))+string(rune('a'+i/26))+".dat", make([]byte, 1))
	}

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{MaxFiles: 10, MaxDepth: 5}, model.ScanOptions{}, nil, nil)

	require.True(t, res.Success)
	assert.LessOrEqual(t, res.Statistics.TotalFiles, int64(10))
	assert.True(t, res.Truncated)
	assert.Equal(t, model.ErrKindTruncatedScan, res.ErrorKind)
}

func TestScanExclusions(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/index.php", make([]byte, 100))
	client.AddFile("/site/debug.log", make([]byte, 500))
	client.AddFile("/site/cache/page.html", make([]byte, 200))

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, nil)

	require.True(t, res.Success)
	// Excluded entries still count toward the visited totals.
	assert.Equal(t, int64(3), res.Statistics.TotalFiles)
	assert.Equal(t, int64(800), res.Statistics.TotalSize)
	assert.Equal(t, int64(2), res.Statistics.ExcludedCount)
	assert.Equal(t, int64(700), res.Statistics.ExcludedSize)
	assert.Equal(t, int64(100), res.Statistics.TransferableSize())
	assert.LessOrEqual(t, res.Statistics.ExcludedSize, res.Statistics.TotalSize)
	assert.LessOrEqual(t, res.Statistics.ExcludedCount, res.Statistics.TotalFiles)
}

func TestScanCustomExclusion(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/video.mp4", make([]byte, 1000))
	client.AddFile("/site/page.html", make([]byte, 10))

	custom := []model.ExclusionPattern{
		{Pattern: "*.mp4", Reason: "media handled separately", Enabled: true},
	}
	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, custom, nil)

	require.True(t, res.Success)
	assert.Equal(t, int64(1), res.Statistics.ExcludedCount)
	assert.Equal(t, int64(1000), res.Statistics.ExcludedSize)
}

func TestScanSkipsUnreadableSubtree(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/ok.txt", make([]byte, 5))
	client.AddDir("/site/private")
	client.DeniedPaths = map[string]bool{"/site/private": true}

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, nil)

	require.True(t, res.Success, "permission denial mid-walk is not fatal")
	assert.Equal(t, int64(1), res.Statistics.TotalFiles)
	assert.Contains(t, res.Statistics.SkippedPaths, "/site/private")
}

func TestScanConnectFailureIsFatal(t *testing.T) {
	s := newTestScanner(nil, errors.New("connection refused"))
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, nil)

	require.False(t, res.Success)
	assert.Equal(t, model.ErrKindConnectionFailed, res.ErrorKind)
	assert.NotEmpty(t, res.Error)
}

func TestScanInvalidLimits(t *testing.T) {
	s := newTestScanner(remote.NewMemClient(), nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{MaxDepth: 5000}, model.ScanOptions{}, nil, nil)

	require.False(t, res.Success)
	assert.Equal(t, model.ErrKindValidation, res.ErrorKind)
}

func TestScanDetectsWordPress(t *testing.T) {
	client := remote.NewMemClient()
	wpConfig := `<?php
define( 'DB_NAME', 'wp_main' );
define( 'DB_USER', 'wp_user' );
define( 'DB_HOST', 'db.internal' );
$table_prefix = 'wp_';
`
	client.AddFile("/site/wp-config.php", []byte(wpConfig))
	client.AddFile("/site/wp-login.php", []byte("<?php"))
	client.AddFile("/site/wp-includes/version.php", []byte("<?php"))
	client.AddFile("/site/wp-admin/admin.php", []byte("<?php"))
	client.AddFile("/site/index.php", []byte("<?php"))

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{DetectCMS: true}, nil, nil)

	require.True(t, res.Success)
	require.True(t, res.CMS.Detected)
	assert.Equal(t, model.CMSWordPress, res.CMS.Type)
	assert.Greater(t, res.CMS.Confidence, 0.4)
	assert.LessOrEqual(t, res.CMS.Confidence, 1.0)
	require.NotNil(t, res.CMS.Database)
	assert.Equal(t, "wp_main", res.CMS.Database.Name)
	assert.Equal(t, "wp_user", res.CMS.Database.User)
	assert.Equal(t, "db.internal", res.CMS.Database.Host)
	assert.Equal(t, "wp_", res.CMS.Database.TablePrefix)
}

func TestScanNoCMSDetected(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/main.go", []byte("package main"))

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{DetectCMS: true}, nil, nil)

	require.True(t, res.Success)
	assert.False(t, res.CMS.Detected)
	assert.Equal(t, model.CMSNone, res.CMS.Type)
	assert.Zero(t, res.CMS.Confidence)
}

func TestScanCMSParseFailureDegrades(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/wp-config.php", []byte("garbage, no defines"))
	client.AddFile("/site/wp-login.php", []byte("<?php"))
	client.AddFile("/site/wp-includes/version.php", []byte("<?php"))

	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{DetectCMS: true}, nil, nil)

	require.True(t, res.Success)
	assert.True(t, res.CMS.Detected)
	assert.Nil(t, res.CMS.Database)
}

func TestScanProgressEmitted(t *testing.T) {
	client := remote.NewMemClient()
	for i := 0; i < 600; i++ {
		client.AddFile("/site/dir/f"+string(rune('0'+i%10))+string(rune('0'+(i/10)%10))+string(rune('0'+i/100))+".txt", make([]byte, 1))
	}

	var snaps []model.ScanProgress
	s := newTestScanner(client, nil)
	res := s.Scan(context.Background(), testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, func(p model.ScanProgress) {
		snaps = append(snaps, p)
	})

	require.True(t, res.Success)
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.Equal(t, "done", last.Status)
	assert.Equal(t, 100.0, last.PercentComplete)
	assert.Equal(t, res.Statistics.TotalFiles, last.FilesScanned)
}

func TestScanCancellation(t *testing.T) {
	client := remote.NewMemClient()
	client.AddFile("/site/a/x.txt", make([]byte, 1))
	client.AddFile("/site/b/y.txt", make([]byte, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(client, nil)
	res := s.Scan(ctx, testConfig(), model.ScanLimits{}, model.ScanOptions{}, nil, nil)

	// A cancelled walk still reports what it saw, flagged truncated.
	require.True(t, res.Success)
	assert.True(t, res.Truncated)
}

func TestTopFilesOrdering(t *testing.T) {
	top := newTopFiles(3)
	top.Add("/a", 10)
	top.Add("/b", 50)
	top.Add("/c", 30)
	top.Add("/d", 40)
	top.Add("/e", 5)

	list := top.List()
	require.Len(t, list, 3)
	assert.Equal(t, "/b", list[0].Path)
	assert.Equal(t, "/d", list[1].Path)
	assert.Equal(t, "/c", list[2].Path)
}
