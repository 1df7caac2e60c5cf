package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/portage/internal/model"
)

func probeWith(caps model.Capabilities, down, up float64) model.ProbeResult {
	return model.ProbeResult{
		Success:      true,
		Capabilities: caps,
		Performance: model.Performance{
			DownloadBytesPerSec: down,
			UploadBytesPerSec:   up,
		},
	}
}

func fullCaps() model.Capabilities {
	return model.Capabilities{
		CanRead: true, CanWrite: true, CanList: true,
		ShellAvailable: true, PassiveListing: true, MultiSession: true,
	}
}

func scanWith(total, excluded int64) model.ScanResult {
	return model.ScanResult{
		Success: true,
		Statistics: model.Statistics{
			TotalFiles: 100,
			TotalSize:  total,
			ExcludedSize: excluded,
		},
		CMS: model.CMSDetection{Type: model.CMSNone},
	}
}

func srcCfg() model.ConnectionConfig {
	return model.ConnectionConfig{Protocol: model.ProtocolSFTP, Host: "a.example.com", Username: "u", RootPath: "/src"}
}

func dstCfg() model.ConnectionConfig {
	return model.ConnectionConfig{Protocol: model.ProtocolSFTP, Host: "b.example.com", Username: "u", RootPath: "/dst"}
}

func TestPlanRecommendsHighestScore(t *testing.T) {
	src := probeWith(fullCaps(), 10<<20, 10<<20)
	dst := probeWith(fullCaps(), 10<<20, 10<<20)

	res := Plan(scanWith(1<<30, 0), src, dst, srcCfg(), dstCfg())

	require.NotEmpty(t, res.Strategies)
	require.NotNil(t, res.Recommended)
	for _, s := range res.Strategies {
		assert.LessOrEqual(t, s.Score, res.Recommended.Score,
			"recommended strategy must carry the maximum score")
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 100.0)
	}
	// Strategies are returned ranked.
	for i := 1; i < len(res.Strategies); i++ {
		assert.GreaterOrEqual(t, res.Strategies[i-1].Score, res.Strategies[i].Score)
	}
}

func TestPlanOmitsInfeasibleMethods(t *testing.T) {
	noShell := fullCaps()
	noShell.ShellAvailable = false
	src := probeWith(noShell, 5<<20, 5<<20)
	dst := probeWith(noShell, 5<<20, 5<<20)

	res := Plan(scanWith(1<<20, 0), src, dst, srcCfg(), dstCfg())

	methods := map[model.TransferMethod]bool{}
	for _, s := range res.Strategies {
		methods[s.Method] = true
	}
	assert.False(t, methods[model.MethodPeerCopy], "peer copy needs shell on both sides")
	assert.False(t, methods[model.MethodRsyncSSH], "rsync needs shell on both sides")
	assert.False(t, methods[model.MethodArchive], "archive streaming needs a source shell")
	assert.True(t, methods[model.MethodStreaming], "streaming copy is the universal fallback")
}

func TestPlanStreamingAlwaysFeasible(t *testing.T) {
	bare := model.Capabilities{CanRead: true, CanList: true}
	res := Plan(scanWith(1<<20, 0), probeWith(bare, 0, 0), probeWith(bare, 0, 0), srcCfg(), dstCfg())

	require.Len(t, res.Strategies, 1)
	assert.Equal(t, model.MethodStreaming, res.Strategies[0].Method)
	assert.Equal(t, model.MethodStreaming, res.Recommended.Method)
}

func TestPlanFailedProbe(t *testing.T) {
	failed := model.ProbeResult{Success: false}
	res := Plan(scanWith(1<<20, 0), failed, probeWith(fullCaps(), 1, 1), srcCfg(), dstCfg())

	assert.Empty(t, res.Strategies)
	assert.Nil(t, res.Recommended)
	assert.NotEmpty(t, res.Warnings)
}

func TestPlanTimeEstimateUsesTransferableBytes(t *testing.T) {
	// 100 MiB total, 60 MiB excluded, 1 MiB/s pipe.
	src := probeWith(fullCaps(), 1<<20, 1<<20)
	dst := probeWith(fullCaps(), 1<<20, 1<<20)

	res := Plan(scanWith(100<<20, 60<<20), src, dst, srcCfg(), dstCfg())

	require.NotNil(t, res.Recommended)
	// 40 MiB over at most 1 MiB/s: at least 40s for every method.
	for _, s := range res.Strategies {
		assert.GreaterOrEqual(t, s.EstimatedTime, 40*time.Second, string(s.Method))
	}
}

func TestPlanDeterministic(t *testing.T) {
	src := probeWith(fullCaps(), 3<<20, 2<<20)
	dst := probeWith(fullCaps(), 4<<20, 1<<20)
	scan := scanWith(5<<30, 1<<30)

	a := Plan(scan, src, dst, srcCfg(), dstCfg())
	b := Plan(scan, src, dst, srcCfg(), dstCfg())

	assert.Equal(t, a, b, "identical inputs must produce identical plans")
}

func TestPlanDatabaseWarning(t *testing.T) {
	scan := scanWith(1<<30, 0)
	scan.CMS = model.CMSDetection{
		Detected:   true,
		Type:       model.CMSWordPress,
		Confidence: 0.8,
		Database:   &model.DatabaseConfig{Name: "wp"},
	}

	res := Plan(scan, probeWith(fullCaps(), 1<<20, 1<<20), probeWith(fullCaps(), 1<<20, 1<<20), srcCfg(), dstCfg())

	assert.True(t, res.RequiresDatabase)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "database")
}

func TestPlanExcludedSizeWarning(t *testing.T) {
	res := Plan(scanWith(100<<20, 80<<20), probeWith(fullCaps(), 1<<20, 1<<20), probeWith(fullCaps(), 1<<20, 1<<20), srcCfg(), dstCfg())

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "exclusion rules") {
			found = true
		}
	}
	assert.True(t, found, "material exclusions must be surfaced as a warning")
}

func TestPlanCommandsRenderEndpoints(t *testing.T) {
	res := Plan(scanWith(1<<20, 0), probeWith(fullCaps(), 1<<20, 1<<20), probeWith(fullCaps(), 1<<20, 1<<20), srcCfg(), dstCfg())

	require.NotNil(t, res.Recommended)
	assert.Contains(t, res.Recommended.Command, "a.example.com")
	assert.Contains(t, res.Recommended.Command, "b.example.com")
}

func TestPlanTieBreakPrefersResume(t *testing.T) {
	a := model.TransferStrategy{Method: "x", Score: 50, CanResume: false}
	b := model.TransferStrategy{Method: "y", Score: 50, CanResume: true}
	assert.True(t, ranksBefore(b, a))
	assert.False(t, ranksBefore(a, b))

	// Same score and resumability: the faster estimate wins.
	c := model.TransferStrategy{Method: "c", Score: 50, CanResume: true, EstimatedTime: time.Minute}
	d := model.TransferStrategy{Method: "d", Score: 50, CanResume: true, EstimatedTime: time.Hour}
	assert.True(t, ranksBefore(c, d))
}
