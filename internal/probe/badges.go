package probe

import (
	"fmt"

	"github.com/user/portage/internal/model"
)

// buildBadges renders capabilities and performance as short
// human-readable labels for display next to an endpoint.
func buildBadges(caps model.Capabilities, perf model.Performance) []string {
	var badges []string
	if caps.CanList {
		badges = append(badges, "listing")
	}
	if caps.CanRead {
		badges = append(badges, "read")
	}
	if caps.CanWrite {
		badges = append(badges, "write")
	}
	if caps.ShellAvailable {
		badges = append(badges, "shell")
	}
	if caps.PassiveListing {
		badges = append(badges, "passive-listing")
	}
	if caps.MultiSession {
		badges = append(badges, "multi-session")
	}
	for _, c := range caps.Compression {
		badges = append(badges, "compression:"+c)
	}
	if perf.Latency > 0 {
		badges = append(badges, fmt.Sprintf("latency %dms", perf.Latency.Milliseconds()))
	}
	if perf.DownloadBytesPerSec > 0 {
		badges = append(badges, fmt.Sprintf("download %s/s", humanBytes(perf.DownloadBytesPerSec)))
	}
	if perf.UploadBytesPerSec > 0 {
		badges = append(badges, fmt.Sprintf("upload %s/s", humanBytes(perf.UploadBytesPerSec)))
	}
	return badges
}

func humanBytes(n float64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", n/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", n/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", n/(1<<10))
	default:
		return fmt.Sprintf("%.0f B", n)
	}
}
