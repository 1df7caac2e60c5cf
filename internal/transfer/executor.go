// Package transfer holds the in-process transfer executors. Only the
// universal streaming-copy method is implemented here; the other
// planned methods (rsync, peer copy, archive) are driven by external
// tooling and the registry simply has no entry for them.
package transfer

import (
	"context"

	"github.com/user/portage/internal/model"
)

// Executor runs one transfer between two endpoints. The progress
// callback may be invoked at high frequency; the paused callback is
// polled between files.
type Executor interface {
	Run(ctx context.Context, src, dst model.ConnectionConfig, opts model.TransferOptions, progress func(model.TransferProgress), paused func() bool) (model.TransferResult, error)
}

// Registry maps transfer methods to their executors.
type Registry map[model.TransferMethod]Executor

// Register adds or replaces the executor for a method.
func (r Registry) Register(m model.TransferMethod, e Executor) {
	r[m] = e
}

// Get returns the executor for a method, or nil.
func (r Registry) Get(m model.TransferMethod) Executor {
	return r[m]
}
