package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/scan"
)

var (
	scanPassword       string
	scanKeyPath        string
	scanMaxDepth       int
	scanMaxFiles       int
	scanDetectCMS      bool
	scanIncludeHidden  bool
	scanFollowSymlinks bool
	scanExcludes       []string
	scanJSON           bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <endpoint-url>",
	Short: "Scan a remote file tree",
	Long: `Scan walks a remote tree and reports file counts, sizes, extension
histograms, the largest files and what the default exclusion rules
would skip. With --detect-cms it also looks for WordPress, Joomla,
Drupal, Magento and PrestaShop signatures.

Examples:
  portage scan sftp://deploy@example.com/var/www --password secret --detect-cms
  portage scan ftp://user@host/site --password secret --exclude '*.mp4' --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanPassword, "password", "", "Password for the endpoint")
	scanCmd.Flags().StringVar(&scanKeyPath, "key", "", "Path to an SSH private key")
	scanCmd.Flags().IntVar(&scanMaxDepth, "max-depth", 0, "Maximum directory depth (default from config)")
	scanCmd.Flags().IntVar(&scanMaxFiles, "max-files", 0, "Maximum files to visit (default from config)")
	scanCmd.Flags().BoolVar(&scanDetectCMS, "detect-cms", false, "Detect a CMS and read its database config")
	scanCmd.Flags().BoolVar(&scanIncludeHidden, "include-hidden", false, "Include dotfiles")
	scanCmd.Flags().BoolVar(&scanFollowSymlinks, "follow-symlinks", false, "Follow symbolic links")
	scanCmd.Flags().StringSliceVar(&scanExcludes, "exclude", nil, "Extra exclusion patterns (repeatable)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the full result as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	conn, err := parseEndpoint(args[0], scanPassword, scanKeyPath)
	if err != nil {
		return err
	}

	limits := model.ScanLimits{MaxDepth: scanMaxDepth, MaxFiles: scanMaxFiles}
	if limits.MaxDepth == 0 {
		limits.MaxDepth = cfg.ScanMaxDepth
	}
	if limits.MaxFiles == 0 {
		limits.MaxFiles = cfg.ScanMaxFiles
	}
	opts := model.ScanOptions{
		DetectCMS:      scanDetectCMS,
		IncludeHidden:  scanIncludeHidden,
		FollowSymlinks: scanFollowSymlinks,
	}
	var custom []model.ExclusionPattern
	for _, p := range scanExcludes {
		custom = append(custom, model.ExclusionPattern{Pattern: p, Reason: "user supplied", Enabled: true})
	}

	s := scan.New(logger)
	res := s.Scan(cmd.Context(), conn, limits, opts, custom, func(p model.ScanProgress) {
		fmt.Fprintf(os.Stderr, "\r%-60s %d files, %d dirs", p.CurrentPath, p.FilesScanned, p.DirsScanned)
	})
	fmt.Fprintln(os.Stderr)

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !res.Success {
		fmt.Printf("scan failed (%s): %s\n", res.ErrorKind, res.Error)
		return nil
	}

	st := res.Statistics
	fmt.Printf("files: %d  dirs: %d  size: %d bytes (transferable %d)\n",
		st.TotalFiles, st.TotalDirs, st.TotalSize, st.TransferableSize())
	fmt.Printf("excluded: %d files, %d bytes\n", st.ExcludedCount, st.ExcludedSize)
	if res.Truncated {
		fmt.Println("warning: scan truncated by limits; numbers are lower bounds")
	}
	if res.CMS.Detected {
		fmt.Printf("cms: %s (confidence %.0f%%)\n", res.CMS.Type, res.CMS.Confidence*100)
		if res.CMS.Database != nil {
			fmt.Printf("database: %s on %s (migrate separately)\n", res.CMS.Database.Name, res.CMS.Database.Host)
		}
	}
	return nil
}
