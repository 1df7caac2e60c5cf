// Package scan walks a remote file tree through one connection,
// gathering statistics and heuristic signals. A single unreadable
// subtree is recorded and skipped; only a failure to establish the
// initial connection is fatal.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/remote"
)

const (
	defaultLoginTimeout = 10 * time.Second
	largestFilesKept    = 10
	progressInterval    = 500 * time.Millisecond
	progressEveryN      = 256
)

// ProgressFunc receives progress snapshots at a bounded cadence.
// PercentComplete is an estimate over an unknown total and may move
// backwards when the estimate is revised.
type ProgressFunc func(model.ScanProgress)

// Scanner walks remote trees. It holds no per-scan state; concurrent
// scans against different (or the same) endpoints run independently.
type Scanner struct {
	dial         remote.Dialer
	loginTimeout time.Duration
	log          *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDialer substitutes the session dialer (tests).
func WithDialer(d remote.Dialer) Option {
	return func(s *Scanner) { s.dial = d }
}

// New creates a Scanner with production defaults.
func New(log *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		dial:         remote.Connect,
		loginTimeout: defaultLoginTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dirEntry struct {
	path  string
	depth int
}

// Scan walks cfg.RootPath breadth-first, bounded by limits. The final
// result reports accurate statistics for everything visited even when
// a bound cut the traversal short.
func (s *Scanner) Scan(ctx context.Context, cfg model.ConnectionConfig, limits model.ScanLimits, opts model.ScanOptions, custom []model.ExclusionPattern, progress ProgressFunc) model.ScanResult {
	res := model.ScanResult{CMS: model.CMSDetection{Type: model.CMSNone}}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return scanFail(res, model.ErrKindValidation, err.Error())
	}
	if err := limits.Validate(); err != nil {
		return scanFail(res, model.ErrKindValidation, err.Error())
	}

	client, err := s.dial(ctx, cfg, s.loginTimeout)
	if err != nil {
		kind := model.ErrKindConnectionFailed
		if errors.Is(err, remote.ErrAuth) {
			kind = model.ErrKindAuthFailed
		}
		return scanFail(res, kind, "cannot connect to "+cfg.Addr()+": "+err.Error())
	}
	defer client.Close()

	w := &walker{
		scanner:  s,
		client:   client,
		root:     cfg.RootPath,
		limits:   limits,
		opts:     opts,
		exclude:  newMatcher(custom),
		top:      newTopFiles(largestFilesKept),
		detector: newCMSDetector(),
		progress: progress,
		stats: model.Statistics{
			ExtensionCounts: make(map[string]int64),
		},
	}
	w.run(ctx)

	res.Success = true
	res.Truncated = w.truncated
	if w.truncated {
		res.ErrorKind = model.ErrKindTruncatedScan
	}
	w.stats.LargestFiles = w.top.List()
	res.Statistics = w.stats
	res.Exclusions = w.exclude.Patterns()
	if opts.DetectCMS {
		res.CMS = w.detector.Result(ctx, client, cfg.RootPath)
	}
	s.emit(progress, w, "done")
	return res
}

// walker carries the mutable state of one traversal.
type walker struct {
	scanner  *Scanner
	client   remote.Client
	root     string
	limits   model.ScanLimits
	opts     model.ScanOptions
	exclude  *matcher
	top      *topFiles
	detector *cmsDetector
	progress ProgressFunc
	stats    model.Statistics

	queue       []dirEntry
	currentPath string
	truncated   bool
	entriesSeen int
	lastEmit    time.Time
}

func (w *walker) run(ctx context.Context) {
	w.queue = []dirEntry{{path: w.root, depth: 0}}

	for len(w.queue) > 0 {
		// Cooperative cancellation, checked once per directory.
		if ctx.Err() != nil {
			w.truncated = true
			return
		}
		if w.stats.TotalFiles >= int64(w.limits.MaxFiles) {
			w.truncated = true
			return
		}

		dir := w.queue[0]
		w.queue = w.queue[1:]
		w.currentPath = dir.path

		entries, err := w.client.List(ctx, dir.path)
		if err != nil {
			// Unreadable subtree: record and keep walking.
			w.scanner.log.Debug("skipping unreadable directory", "path", dir.path, "error", err)
			w.stats.SkippedPaths = append(w.stats.SkippedPaths, dir.path)
			continue
		}

		for _, e := range entries {
			if w.stats.TotalFiles >= int64(w.limits.MaxFiles) {
				w.truncated = true
				break
			}
			w.visit(e, dir.depth)
		}
	}
}

func (w *walker) visit(e remote.FileInfo, depth int) {
	if !w.opts.IncludeHidden && strings.HasPrefix(e.Name, ".") {
		return
	}
	if e.IsLink && !w.opts.FollowSymlinks {
		return
	}

	entryDepth := depth + 1
	if entryDepth > w.stats.MaxDepth {
		w.stats.MaxDepth = entryDepth
	}

	rel := strings.TrimPrefix(e.Path, strings.TrimSuffix(w.root, "/"))
	if w.opts.DetectCMS {
		w.detector.Observe(rel)
	}

	if e.IsDir {
		w.stats.TotalDirs++
		if entryDepth < w.limits.MaxDepth {
			w.queue = append(w.queue, dirEntry{path: e.Path, depth: entryDepth})
		} else {
			w.truncated = true
		}
	} else {
		w.stats.TotalFiles++
		w.stats.TotalSize += e.Size
		ext := strings.ToLower(path.Ext(e.Name))
		if ext == "" {
			ext = "(none)"
		}
		w.stats.ExtensionCounts[ext]++
		w.top.Add(e.Path, e.Size)

		if w.exclude.Match(rel) {
			w.stats.ExcludedCount++
			w.stats.ExcludedSize += e.Size
		}
	}

	w.entriesSeen++
	if w.entriesSeen%progressEveryN == 0 || time.Since(w.lastEmit) >= progressInterval {
		w.lastEmit = time.Now()
		w.scanner.emit(w.progress, w, "scanning")
	}
}

// emit pushes a progress snapshot. Percent is derived from how much of
// the directory queue has drained, so it can regress as new directories
// are discovered.
func (s *Scanner) emit(progress ProgressFunc, w *walker, status string) {
	if progress == nil {
		return
	}
	visited := w.stats.TotalFiles + w.stats.TotalDirs
	estimated := visited + int64(len(w.queue))*8
	percent := 100.0
	if status != "done" && estimated > 0 {
		percent = float64(visited) / float64(estimated) * 100
		if percent > 99 {
			percent = 99
		}
	}
	progress(model.ScanProgress{
		Status:          status,
		CurrentPath:     w.currentPath,
		FilesScanned:    w.stats.TotalFiles,
		DirsScanned:     w.stats.TotalDirs,
		TotalSize:       w.stats.TotalSize,
		PercentComplete: percent,
	})
}

func scanFail(res model.ScanResult, kind model.ErrorKind, msg string) model.ScanResult {
	res.Success = false
	res.ErrorKind = kind
	res.Error = msg
	return res
}
