package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/plan"
	"github.com/user/portage/internal/probe"
	"github.com/user/portage/internal/scan"
)

var (
	planSrcPassword string
	planSrcKey      string
	planDstPassword string
	planDstKey      string
	planDetectCMS   bool
	planJSON        bool
)

var planCmd = &cobra.Command{
	Use:   "plan <source-url> <dest-url>",
	Short: "Recommend a transfer strategy for an endpoint pair",
	Long: `Plan probes both endpoints, scans the source tree and ranks every
feasible transfer method by measured throughput, resumability,
parallelism and compatibility.

Examples:
  portage plan sftp://a@old-host/var/www sftp://b@new-host/var/www \
    --src-password one --dst-password two --detect-cms`,
	Args: cobra.ExactArgs(2),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planSrcPassword, "src-password", "", "Password for the source endpoint")
	planCmd.Flags().StringVar(&planSrcKey, "src-key", "", "SSH private key for the source endpoint")
	planCmd.Flags().StringVar(&planDstPassword, "dst-password", "", "Password for the destination endpoint")
	planCmd.Flags().StringVar(&planDstKey, "dst-key", "", "SSH private key for the destination endpoint")
	planCmd.Flags().BoolVar(&planDetectCMS, "detect-cms", true, "Detect a CMS during the source scan")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the full result as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	srcConn, err := parseEndpoint(args[0], planSrcPassword, planSrcKey)
	if err != nil {
		return err
	}
	dstConn, err := parseEndpoint(args[1], planDstPassword, planDstKey)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := probe.New(logger, probe.WithTimeouts(cfg.ProbeDialTimeout, cfg.ProbeLoginTimeout))

	fmt.Fprintln(os.Stderr, "probing source...")
	srcProbe := p.Probe(ctx, srcConn)
	fmt.Fprintln(os.Stderr, "probing destination...")
	dstProbe := p.Probe(ctx, dstConn)

	var scanRes model.ScanResult
	if srcProbe.Success {
		fmt.Fprintln(os.Stderr, "scanning source tree...")
		limits := model.ScanLimits{MaxDepth: cfg.ScanMaxDepth, MaxFiles: cfg.ScanMaxFiles}
		scanRes = scan.New(logger).Scan(ctx, srcConn, limits, model.ScanOptions{DetectCMS: planDetectCMS}, nil, nil)
	}

	res := plan.Plan(scanRes, srcProbe, dstProbe, srcConn, dstConn)

	if planJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Recommended == nil {
		fmt.Println("no feasible strategy")
		for _, w := range res.Warnings {
			fmt.Println("warning: " + w)
		}
		return nil
	}

	fmt.Printf("recommended: %s (score %.1f, est. %s)\n",
		res.Recommended.Method, res.Recommended.Score, res.Recommended.EstimatedTime)
	fmt.Println("  " + res.Recommended.Command)
	fmt.Println()
	fmt.Println("ranked strategies:")
	for _, s := range res.Strategies {
		fmt.Printf("  %-24s score %5.1f  est. %s\n", s.Method, s.Score, s.EstimatedTime)
	}
	for _, w := range res.Warnings {
		fmt.Println("warning: " + w)
	}
	return nil
}
