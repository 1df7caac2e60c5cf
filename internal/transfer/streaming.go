package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/remote"
)

const (
	defaultLoginTimeout = 10 * time.Second
	pausePollInterval   = 250 * time.Millisecond
)

// Streaming copies every non-excluded file through the orchestrating
// host: read from the source session, write to the destination
// session. Slowest method, works with any protocol pair.
type Streaming struct {
	dial         remote.Dialer
	loginTimeout time.Duration
	pausePoll    time.Duration
	log          *slog.Logger
}

// StreamingOption configures a Streaming executor.
type StreamingOption func(*Streaming)

// WithDialer substitutes the session dialer (tests).
func WithDialer(d remote.Dialer) StreamingOption {
	return func(s *Streaming) { s.dial = d }
}

// WithPausePoll overrides the pause polling cadence (tests).
func WithPausePoll(d time.Duration) StreamingOption {
	return func(s *Streaming) { s.pausePoll = d }
}

// NewStreaming creates the streaming-copy executor.
func NewStreaming(log *slog.Logger, opts ...StreamingOption) *Streaming {
	s := &Streaming{
		dial:         remote.Connect,
		loginTimeout: defaultLoginTimeout,
		pausePoll:    pausePollInterval,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run enumerates the source tree, then copies file by file. A failed
// file is recorded and skipped; only connection loss or cancellation
// aborts the transfer.
func (s *Streaming) Run(ctx context.Context, src, dst model.ConnectionConfig, opts model.TransferOptions, progress func(model.TransferProgress), paused func() bool) (model.TransferResult, error) {
	var res model.TransferResult
	start := time.Now()

	src.Normalize()
	dst.Normalize()
	if err := src.Validate(); err != nil {
		return res, fmt.Errorf("source config: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return res, fmt.Errorf("destination config: %w", err)
	}

	srcClient, err := s.dial(ctx, src, s.loginTimeout)
	if err != nil {
		return res, fmt.Errorf("connect source %s: %w", src.Addr(), err)
	}
	defer srcClient.Close()

	dstClient, err := s.dial(ctx, dst, s.loginTimeout)
	if err != nil {
		return res, fmt.Errorf("connect destination %s: %w", dst.Addr(), err)
	}
	defer dstClient.Close()

	emit := func(p model.TransferProgress) {
		if progress != nil {
			progress(p)
		}
	}

	emit(model.TransferProgress{Status: "enumerating"})
	files, totalBytes, err := s.enumerate(ctx, srcClient, src.RootPath, opts.Exclusions)
	if err != nil {
		return res, err
	}

	if opts.DryRun {
		res.FilesTransferred = int64(len(files))
		for _, f := range files {
			res.BytesTransferred += f.Size
		}
		res.Duration = time.Since(start)
		emit(model.TransferProgress{Status: "done", FilesTotal: int64(len(files)), BytesTotal: totalBytes})
		return res, nil
	}

	made := map[string]bool{}
	for i, f := range files {
		if err := s.waitIfPaused(ctx, paused); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		rel := strings.TrimPrefix(f.Path, strings.TrimSuffix(src.RootPath, "/"))
		target := path.Join(dst.RootPath, rel)

		if err := s.copyFile(ctx, srcClient, dstClient, f.Path, target, made); err != nil {
			s.log.Warn("file copy failed", "path", f.Path, "error", err)
			res.FailedPaths = append(res.FailedPaths, f.Path)
		} else {
			res.FilesTransferred++
			res.BytesTransferred += f.Size
		}

		elapsed := time.Since(start).Seconds()
		var rate float64
		if elapsed > 0 {
			rate = float64(res.BytesTransferred) / elapsed
		}
		emit(model.TransferProgress{
			Status:         "copying",
			CurrentFile:    f.Path,
			FilesDone:      int64(i + 1),
			FilesTotal:     int64(len(files)),
			BytesDone:      res.BytesTransferred,
			BytesTotal:     totalBytes,
			BytesPerSecond: rate,
		})
	}

	res.Duration = time.Since(start)
	emit(model.TransferProgress{
		Status:     "done",
		FilesDone:  int64(len(files)),
		FilesTotal: int64(len(files)),
		BytesDone:  res.BytesTransferred,
		BytesTotal: totalBytes,
	})
	return res, nil
}

// enumerate walks the source tree breadth-first and returns the files
// to copy, excluded paths already filtered out.
func (s *Streaming) enumerate(ctx context.Context, client remote.Client, root string, exclusions []model.ExclusionPattern) ([]remote.FileInfo, int64, error) {
	var files []remote.FileInfo
	var total int64

	queue := []string{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := client.List(ctx, dir)
		if err != nil {
			return nil, 0, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsLink {
				continue
			}
			rel := strings.TrimPrefix(e.Path, strings.TrimSuffix(root, "/"))
			if excluded(rel, e.Name, exclusions) {
				continue
			}
			if e.IsDir {
				queue = append(queue, e.Path)
				continue
			}
			files = append(files, e)
			total += e.Size
		}
	}
	return files, total, nil
}

func (s *Streaming) copyFile(ctx context.Context, src, dst remote.Client, from, to string, made map[string]bool) error {
	dir := path.Dir(to)
	if !made[dir] {
		if err := dst.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		made[dir] = true
	}

	data, err := src.Read(ctx, from)
	if err != nil {
		return fmt.Errorf("read %s: %w", from, err)
	}
	if err := dst.Write(ctx, to, data); err != nil {
		return fmt.Errorf("write %s: %w", to, err)
	}
	return nil
}

// waitIfPaused blocks while the job is paused, waking to recheck the
// flag and the context.
func (s *Streaming) waitIfPaused(ctx context.Context, paused func() bool) error {
	for paused != nil && paused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pausePoll):
		}
	}
	return ctx.Err()
}

// excluded mirrors the scanner's pattern semantics: a pattern matches
// the slash-relative path or, when it has no separator, the bare name.
func excluded(rel, name string, patterns []model.ExclusionPattern) bool {
	rel = strings.TrimPrefix(rel, "/")
	for _, p := range patterns {
		if !p.Enabled {
			continue
		}
		if ok, err := doublestar.Match(p.Pattern, rel); err == nil && ok {
			return true
		}
		if !strings.Contains(p.Pattern, "/") {
			if ok, err := doublestar.Match(p.Pattern, name); err == nil && ok {
				return true
			}
		}
	}
	return false
}
