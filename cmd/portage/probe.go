package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/portage/internal/probe"
)

var (
	probePassword string
	probeKeyPath  string
	probeJSON     bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <endpoint-url>",
	Short: "Probe an endpoint's capabilities and throughput",
	Long: `Probe connects to a remote endpoint, measures latency and login time,
exercises read/write/list operations and samples throughput with a
small payload.

Expected failures (unreachable host, rejected credentials) are
reported in the result, not as command errors.

Examples:
  portage probe sftp://deploy@example.com/var/www --password secret
  portage probe ftps://user@host:990/ --password secret --json`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probePassword, "password", "", "Password for the endpoint")
	probeCmd.Flags().StringVar(&probeKeyPath, "key", "", "Path to an SSH private key")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "Print the full result as JSON")
}

func runProbe(cmd *cobra.Command, args []string) error {
	conn, err := parseEndpoint(args[0], probePassword, probeKeyPath)
	if err != nil {
		return err
	}

	p := probe.New(logger, probe.WithTimeouts(cfg.ProbeDialTimeout, cfg.ProbeLoginTimeout))
	res := p.Probe(cmd.Context(), conn)

	if probeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !res.Success {
		fmt.Printf("probe failed (%s): %s\n", res.ErrorKind, res.Error)
		return nil
	}

	fmt.Printf("%s://%s probed in %s\n", conn.Protocol, conn.Addr(), res.Performance.ConnectionSetupTime)
	for _, b := range res.Badges {
		fmt.Println("  " + b)
	}
	return nil
}
