// Package plan turns a scan result and two probe results into a ranked
// list of transfer strategies. Plan is a pure function: no I/O, no
// randomness, identical inputs produce identical output.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/user/portage/internal/model"
)

// Scoring weights over the normalized sub-scores. They sum to 1; the
// combined score is scaled to [0,100].
const (
	weightThroughput    = 0.35
	weightResumability  = 0.25
	weightParallelism   = 0.20
	weightCompatibility = 0.20
)

// throughputCeiling normalizes measured throughput: anything at or
// above this single-sample estimate scores 1.0.
const throughputCeiling = 50 << 20 // 50 MiB/s

// floorBytesPerSec guards the time estimate when a probe produced no
// usable throughput sample.
const floorBytesPerSec = 64 << 10

// largeTransferBytes is the size above which a plan with no resumable
// strategy earns a warning.
const largeTransferBytes = 10 << 30

// materialExcludedFraction triggers the excluded-size warning.
const materialExcludedFraction = 0.25

// Plan ranks every feasible method for the endpoint pair. Infeasible
// methods are omitted entirely, never scored as zero. The configs are
// only used to render the transparency command strings.
func Plan(scan model.ScanResult, src, dst model.ProbeResult, srcCfg, dstCfg model.ConnectionConfig) model.PlanResult {
	var res model.PlanResult

	if !src.Success || !dst.Success {
		res.Warnings = append(res.Warnings, "one or both probes failed; no strategy can be planned")
		return res
	}

	transferable := scan.Statistics.TransferableSize()
	pipe := pipeThroughput(src, dst)

	for _, spec := range methodSpecs {
		if !spec.Feasible(src, dst) {
			continue
		}
		strat := buildStrategy(spec, srcCfg, dstCfg, transferable, pipe)
		res.Strategies = append(res.Strategies, strat)
	}

	sort.SliceStable(res.Strategies, func(i, j int) bool {
		return ranksBefore(res.Strategies[i], res.Strategies[j])
	})

	if len(res.Strategies) > 0 {
		rec := res.Strategies[0]
		res.Recommended = &rec
		res.EstimatedTotalTime = rec.EstimatedTime
	}

	res.RequiresDatabase = scan.CMS.Detected && scan.CMS.Database != nil
	res.Warnings = append(res.Warnings, buildWarnings(scan, res)...)
	return res
}

// ranksBefore orders strategies: higher score first, then resumable,
// then lower estimated time.
func ranksBefore(a, b model.TransferStrategy) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.CanResume != b.CanResume {
		return a.CanResume
	}
	return a.EstimatedTime < b.EstimatedTime
}

func buildStrategy(spec methodSpec, srcCfg, dstCfg model.ConnectionConfig, transferable int64, pipe float64) model.TransferStrategy {
	// Throughput sub-score uses the method-adjusted effective rate so
	// overhead-heavy methods rank below leaner ones on the same link.
	tpScore := pipe * spec.Efficiency / throughputCeiling
	if tpScore > 1 {
		tpScore = 1
	}
	score := (tpScore*weightThroughput +
		spec.Resumability*weightResumability +
		spec.Parallelism*weightParallelism +
		spec.Compatibility*weightCompatibility) * 100

	effective := pipe * spec.Efficiency
	if effective < floorBytesPerSec {
		effective = floorBytesPerSec
	}
	var estimate time.Duration
	if transferable > 0 {
		estimate = time.Duration(float64(transferable) / effective * float64(time.Second))
	}

	return model.TransferStrategy{
		Method:           spec.Method,
		Score:            score,
		EstimatedTime:    estimate,
		Pros:             spec.Pros,
		Cons:             spec.Cons,
		Requirements:     spec.Requirements,
		Command:          spec.Command(srcCfg, dstCfg),
		CanResume:        spec.CanResume,
		SupportsProgress: spec.SupportsProgress,
	}
}

// pipeThroughput is the bottleneck of reading from the source and
// writing to the destination, from the probes' single-sample numbers.
func pipeThroughput(src, dst model.ProbeResult) float64 {
	down := src.Performance.DownloadBytesPerSec
	up := dst.Performance.UploadBytesPerSec
	switch {
	case down <= 0 && up <= 0:
		return floorBytesPerSec
	case down <= 0:
		return up
	case up <= 0:
		return down
	case down < up:
		return down
	default:
		return up
	}
}

func buildWarnings(scan model.ScanResult, res model.PlanResult) []string {
	var warnings []string
	if res.RequiresDatabase {
		warnings = append(warnings, fmt.Sprintf(
			"%s database detected; the database must be migrated separately", scan.CMS.Type))
	}
	stats := scan.Statistics
	if stats.TotalSize > 0 && float64(stats.ExcludedSize)/float64(stats.TotalSize) > materialExcludedFraction {
		warnings = append(warnings, fmt.Sprintf(
			"exclusion rules drop %d of %d bytes; review the pattern list before transferring",
			stats.ExcludedSize, stats.TotalSize))
	}
	if stats.TransferableSize() > largeTransferBytes {
		resumable := false
		for _, s := range res.Strategies {
			if s.CanResume {
				resumable = true
				break
			}
		}
		if !resumable {
			warnings = append(warnings, "transfer exceeds 10 GiB and no available strategy supports resume")
		}
	}
	if scan.Truncated {
		warnings = append(warnings, "scan was truncated; size and time estimates are lower bounds")
	}
	return warnings
}
