package plan

import (
	"fmt"

	"github.com/user/portage/internal/model"
)

// methodSpec is the static description of one transfer method: its
// feasibility predicate over the two probes, the fixed sub-scores used
// by the ranker and the efficiency factor applied to measured
// throughput when estimating time.
type methodSpec struct {
	Method           model.TransferMethod
	Feasible         func(src, dst model.ProbeResult) bool
	Resumability     float64
	Parallelism      float64
	Compatibility    float64
	Efficiency       float64
	CanResume        bool
	SupportsProgress bool
	Pros             []string
	Cons             []string
	Requirements     []string
	Command          func(src, dst model.ConnectionConfig) string
}

var methodSpecs = []methodSpec{
	{
		Method: model.MethodPeerCopy,
		Feasible: func(src, dst model.ProbeResult) bool {
			return src.Capabilities.PassiveListing && dst.Capabilities.PassiveListing &&
				src.Capabilities.ShellAvailable && dst.Capabilities.ShellAvailable
		},
		Resumability:     0.3,
		Parallelism:      0.5,
		Compatibility:    0.4,
		Efficiency:       0.95,
		CanResume:        false,
		SupportsProgress: false,
		Pros:             []string{"data moves directly between endpoints", "fastest when supported"},
		Cons:             []string{"rarely supported by hosting providers", "no resume after interruption"},
		Requirements:     []string{"passive-mode directory operations on both sides", "shell access on both sides"},
		Command: func(src, dst model.ConnectionConfig) string {
			return fmt.Sprintf("fxp-copy %s@%s:%s %s@%s:%s",
				src.Username, src.Host, src.RootPath, dst.Username, dst.Host, dst.RootPath)
		},
	},
	{
		Method: model.MethodRsyncSSH,
		Feasible: func(src, dst model.ProbeResult) bool {
			return src.Capabilities.ShellAvailable && dst.Capabilities.ShellAvailable
		},
		Resumability:     1.0,
		Parallelism:      0.4,
		Compatibility:    0.8,
		Efficiency:       0.85,
		CanResume:        true,
		SupportsProgress: true,
		Pros:             []string{"delta transfer and resume", "preserves permissions and timestamps"},
		Cons:             []string{"requires rsync binary on both hosts"},
		Requirements:     []string{"shell access on both sides"},
		Command: func(src, dst model.ConnectionConfig) string {
			return fmt.Sprintf("rsync -az --partial -e ssh %s@%s:%s/ %s@%s:%s/",
				src.Username, src.Host, src.RootPath, dst.Username, dst.Host, dst.RootPath)
		},
	},
	{
		Method: model.MethodMultiClient,
		Feasible: func(src, dst model.ProbeResult) bool {
			return src.Capabilities.MultiSession && dst.Capabilities.MultiSession &&
				src.Capabilities.CanList && dst.Capabilities.CanWrite
		},
		Resumability:     0.8,
		Parallelism:      1.0,
		Compatibility:    0.7,
		Efficiency:       0.75,
		CanResume:        true,
		SupportsProgress: true,
		Pros:             []string{"parallel connections hide per-file latency", "per-file resume"},
		Cons:             []string{"connection churn on servers with session limits"},
		Requirements:     []string{"multiple concurrent sessions on both sides"},
		Command: func(src, dst model.ConnectionConfig) string {
			return fmt.Sprintf("portage transfer --method multi_connection_client --workers 4 %s://%s%s %s://%s%s",
				src.Protocol, src.Host, src.RootPath, dst.Protocol, dst.Host, dst.RootPath)
		},
	},
	{
		Method: model.MethodArchive,
		Feasible: func(src, dst model.ProbeResult) bool {
			return src.Capabilities.ShellAvailable && dst.Capabilities.CanWrite
		},
		Resumability:     0.1,
		Parallelism:      0.2,
		Compatibility:    0.5,
		Efficiency:       0.9,
		CanResume:        false,
		SupportsProgress: false,
		Pros:             []string{"one stream, minimal per-file overhead", "compression on the wire"},
		Cons:             []string{"interruption restarts the whole archive", "needs scratch space"},
		Requirements:     []string{"shell access on the source"},
		Command: func(src, dst model.ConnectionConfig) string {
			return fmt.Sprintf("ssh %s@%s 'tar czf - -C %s .' | portage put %s://%s%s",
				src.Username, src.Host, src.RootPath, dst.Protocol, dst.Host, dst.RootPath)
		},
	},
	{
		// Universal fallback: feasible whenever both probes succeeded.
		Method: model.MethodStreaming,
		Feasible: func(src, dst model.ProbeResult) bool {
			return true
		},
		Resumability:     0.9,
		Parallelism:      0.3,
		Compatibility:    1.0,
		Efficiency:       0.6,
		CanResume:        true,
		SupportsProgress: true,
		Pros:             []string{"works with any protocol pair", "resumable file by file"},
		Cons:             []string{"every byte transits the orchestrating host", "slowest option"},
		Requirements:     nil,
		Command: func(src, dst model.ConnectionConfig) string {
			return fmt.Sprintf("portage transfer --method streaming_copy %s://%s%s %s://%s%s",
				src.Protocol, src.Host, src.RootPath, dst.Protocol, dst.Host, dst.RootPath)
		},
	},
}
