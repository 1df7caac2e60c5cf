package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/portage/internal/model"
)

// StartScan creates a scan job and launches its worker. The returned
// id is immediately queryable; the scan runs in the background.
func (o *Orchestrator) StartScan(cfg model.ConnectionConfig, limits model.ScanLimits, opts model.ScanOptions, custom []model.ExclusionPattern) (string, error) {
	if o.scanner == nil {
		return "", errors.New("no scanner configured")
	}

	id := o.Create(model.JobScan, &cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	o.bindCancel(id, cancel)

	if err := o.UpdateStatus(id, model.StatusRunning); err != nil {
		cancel()
		return "", err
	}

	go o.runScan(ctx, cancel, id, cfg, limits, opts, custom)
	return id, nil
}

func (o *Orchestrator) runScan(ctx context.Context, cancel context.CancelFunc, id string, cfg model.ConnectionConfig, limits model.ScanLimits, opts model.ScanOptions, custom []model.ExclusionPattern) {
	defer cancel()
	defer o.releaseCancel(id)

	o.Output(id, fmt.Sprintf("scanning %s://%s%s", cfg.Protocol, cfg.Host, cfg.RootPath))
	res := o.scanner.Scan(ctx, cfg, limits, opts, custom, func(p model.ScanProgress) {
		o.UpdateScanProgress(id, p)
	})

	if ctx.Err() != nil {
		// Cancel already moved the job to its terminal state; the
		// partial result is still worth keeping.
		_ = o.SetScanResult(id, res)
		return
	}

	if res.Success {
		_ = o.SetScanResult(id, res)
		o.finish(id, model.StatusCompleted)
	} else {
		_ = o.SetError(id, res.Error)
		o.finish(id, model.StatusFailed)
	}
}

// StartTransfer creates a transfer job and launches the executor
// registered for the chosen method.
func (o *Orchestrator) StartTransfer(method model.TransferMethod, src, dst model.ConnectionConfig, opts model.TransferOptions) (string, error) {
	exec, ok := o.executors[method]
	if !ok {
		return "", fmt.Errorf("no executor registered for method %q", method)
	}

	id := o.Create(model.JobTransfer, &src, &dst)
	ctx, cancel := context.WithCancel(context.Background())
	o.bindCancel(id, cancel)

	if err := o.UpdateStatus(id, model.StatusRunning); err != nil {
		cancel()
		return "", err
	}

	go o.runTransfer(ctx, cancel, id, exec, src, dst, opts)
	return id, nil
}

func (o *Orchestrator) runTransfer(ctx context.Context, cancel context.CancelFunc, id string, exec TransferRunner, src, dst model.ConnectionConfig, opts model.TransferOptions) {
	defer cancel()
	defer o.releaseCancel(id)

	o.Output(id, fmt.Sprintf("transferring %s://%s%s -> %s://%s%s",
		src.Protocol, src.Host, src.RootPath, dst.Protocol, dst.Host, dst.RootPath))

	res, err := exec.Run(ctx, src, dst, opts,
		func(p model.TransferProgress) { o.UpdateTransferProgress(id, p) },
		func() bool { return o.status(id) == model.StatusPaused })

	if ctx.Err() != nil {
		_ = o.SetTransferResult(id, res)
		return
	}

	if err != nil {
		_ = o.SetError(id, err.Error())
		o.finish(id, model.StatusFailed)
		return
	}
	_ = o.SetTransferResult(id, res)
	o.finish(id, model.StatusCompleted)
}

// finish moves a job to a terminal state, tolerating the race where
// Cancel got there first.
func (o *Orchestrator) finish(id string, status model.JobStatus) {
	if err := o.UpdateStatus(id, status); err != nil {
		o.log.Debug("terminal transition skipped", "job_id", id, "status", status, "error", err)
	}
}
