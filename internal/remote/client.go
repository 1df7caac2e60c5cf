// Package remote provides one client implementation per supported
// file-transfer protocol behind a single interface. The probe engine,
// scanner and transfer executors depend only on Client, never on a
// concrete protocol type.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/portage/internal/model"
)

// Sentinel errors adapters use to classify login failures. Everything
// else is treated as a handshake or transport failure.
var (
	ErrAuth       = errors.New("authentication rejected")
	ErrPermission = errors.New("permission denied")
)

// FileInfo describes one remote directory entry.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	IsDir   bool
	IsLink  bool
	ModTime time.Time
}

// Features are protocol-level capability hints an adapter can report
// after login. Absence of a feature is not an error.
type Features struct {
	Shell          bool
	PassiveListing bool
	MultiSession   bool
	Compression    []string
	ServerVersion  string
}

// Client is a live, logged-in session against one endpoint. Read and
// Write buffer whole files; fine for probe samples, CMS config files
// and the streaming-copy executor, which moves one file at a time.
type Client interface {
	List(ctx context.Context, path string) ([]FileInfo, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Features() Features
	Close() error
}

// Dialer opens a session for a config. The default dialer picks the
// adapter by protocol; tests substitute an in-memory implementation.
type Dialer func(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error)

// Connect logs in to the endpoint described by cfg using the adapter
// for its protocol. The timeout bounds the whole login handshake.
func Connect(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error) {
	switch cfg.Protocol {
	case model.ProtocolSFTP:
		return dialSFTP(ctx, cfg, timeout)
	case model.ProtocolSCP:
		return dialSCP(ctx, cfg, timeout)
	case model.ProtocolFTP, model.ProtocolFTPS:
		return dialFTP(ctx, cfg, timeout)
	default:
		return nil, fmt.Errorf("unknown protocol %q", cfg.Protocol)
	}
}
