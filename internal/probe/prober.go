// Package probe empirically discovers what a remote endpoint is capable
// of: one dial, one login, a handful of read/write/list operations, then
// teardown. All failure modes are encoded in the result; Probe never
// returns an error.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path"
	"time"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/remote"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultLoginTimeout = 10 * time.Second
	payloadSize         = 100 * 1024
)

// Prober runs capability probes. Each call is self-contained: it opens
// its own session and holds nothing afterwards, so probes against
// different endpoints may run fully in parallel.
type Prober struct {
	dialTimeout  time.Duration
	loginTimeout time.Duration
	rawDial      func(addr string, timeout time.Duration) (net.Conn, error)
	dial         remote.Dialer
	log          *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithDialer substitutes the protocol session dialer (tests).
func WithDialer(d remote.Dialer) Option {
	return func(p *Prober) { p.dial = d }
}

// WithRawDialer substitutes the raw TCP dialer (tests).
func WithRawDialer(d func(addr string, timeout time.Duration) (net.Conn, error)) Option {
	return func(p *Prober) { p.rawDial = d }
}

// WithTimeouts overrides the dial and login timeouts.
func WithTimeouts(dial, login time.Duration) Option {
	return func(p *Prober) {
		if dial > 0 {
			p.dialTimeout = dial
		}
		if login > 0 {
			p.loginTimeout = login
		}
	}
}

// New creates a Prober with production defaults.
func New(log *slog.Logger, opts ...Option) *Prober {
	p := &Prober{
		dialTimeout:  defaultDialTimeout,
		loginTimeout: defaultLoginTimeout,
		rawDial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
		dial:         remote.Connect,
		log:          log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe tests one endpoint and reports capabilities and performance.
func (p *Prober) Probe(ctx context.Context, cfg model.ConnectionConfig) model.ProbeResult {
	res := model.ProbeResult{ProbedAt: time.Now()}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fail(res, model.ErrKindValidation, err.Error())
	}

	// Step 1: raw TCP dial, latency only.
	start := time.Now()
	conn, err := p.rawDial(cfg.Addr(), p.dialTimeout)
	res.Performance.Latency = time.Since(start)
	if err != nil {
		return fail(res, model.ErrKindConnectionFailed,
			fmt.Sprintf("cannot reach %s: %v", cfg.Addr(), err))
	}
	conn.Close()

	// Step 2: protocol handshake and login on a fresh timer.
	loginCtx, cancel := context.WithTimeout(ctx, p.loginTimeout)
	defer cancel()
	start = time.Now()
	client, err := p.dial(loginCtx, cfg, p.loginTimeout)
	res.Performance.ConnectionSetupTime = time.Since(start)
	if err != nil {
		if errors.Is(err, remote.ErrAuth) {
			return fail(res, model.ErrKindAuthFailed,
				fmt.Sprintf("login rejected for %s@%s: %v", cfg.Username, cfg.Host, err))
		}
		return fail(res, model.ErrKindHandshakeFailed,
			fmt.Sprintf("%s handshake with %s failed: %v", cfg.Protocol, cfg.Addr(), err))
	}
	defer client.Close()

	// Steps 3-6 against the live session.
	p.exercise(ctx, cfg, client, &res)

	res.Success = true
	res.Badges = buildBadges(res.Capabilities, res.Performance)
	return res
}

// exercise probes listing, write and throughput. Failures here only
// withhold capability flags; the probe itself still succeeds.
func (p *Prober) exercise(ctx context.Context, cfg model.ConnectionConfig, client remote.Client, res *model.ProbeResult) {
	caps := &res.Capabilities

	if _, err := client.List(ctx, cfg.RootPath); err == nil {
		caps.CanList = true
		caps.CanRead = true
	} else {
		p.log.Debug("probe list failed", "host", cfg.Host, "error", err)
	}

	// Timestamp in the marker name avoids collisions when several
	// probes target the same endpoint concurrently.
	marker := path.Join(cfg.RootPath, fmt.Sprintf(".portage-probe-%d", time.Now().UnixNano()))
	if err := client.Write(ctx, marker, []byte("portage probe marker")); err == nil {
		caps.CanWrite = true
		defer func() {
			if err := client.Delete(ctx, marker); err != nil {
				p.log.Warn("probe marker cleanup failed", "host", cfg.Host, "path", marker, "error", err)
			}
		}()
	} else {
		p.log.Debug("probe write failed", "host", cfg.Host, "error", err)
	}

	if caps.CanWrite {
		p.measureThroughput(ctx, cfg, client, &res.Performance)
	}

	feats := client.Features()
	caps.ShellAvailable = feats.Shell
	caps.PassiveListing = feats.PassiveListing
	caps.MultiSession = feats.MultiSession
	caps.Compression = feats.Compression
	caps.ServerVersion = feats.ServerVersion
}

// measureThroughput times a single 100 KiB round trip. The numbers are
// noisy point estimates; the planner treats them as rough heuristics.
func (p *Prober) measureThroughput(ctx context.Context, cfg model.ConnectionConfig, client remote.Client, perf *model.Performance) {
	sample := path.Join(cfg.RootPath, fmt.Sprintf(".portage-probe-tp-%d", time.Now().UnixNano()))
	payload := make([]byte, payloadSize)

	start := time.Now()
	if err := client.Write(ctx, sample, payload); err != nil {
		p.log.Debug("throughput write failed", "host", cfg.Host, "error", err)
		return
	}
	defer func() {
		if err := client.Delete(ctx, sample); err != nil {
			p.log.Warn("throughput sample cleanup failed", "host", cfg.Host, "path", sample, "error", err)
		}
	}()
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		perf.UploadBytesPerSec = payloadSize / elapsed
	}

	start = time.Now()
	if _, err := client.Read(ctx, sample); err != nil {
		p.log.Debug("throughput read failed", "host", cfg.Host, "error", err)
		return
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		perf.DownloadBytesPerSec = payloadSize / elapsed
	}
}

func fail(res model.ProbeResult, kind model.ErrorKind, msg string) model.ProbeResult {
	res.Success = false
	res.ErrorKind = kind
	res.Error = msg
	return res
}
