package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/util"
)

var (
	cfgFile string
	cfg     *util.Config
	logger  *slog.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "portage",
	Short: "Migration planning for remote file trees",
	Long: `Portage probes remote endpoints (SFTP, FTP, FTPS, SCP), scans their
file trees and recommends a transfer strategy for migrating a site
from one host to another:

- probe: measure what an endpoint actually supports
- scan:  walk the tree, gather statistics, detect a CMS
- plan:  rank feasible transfer methods for an endpoint pair
- serve: run the job API with background scans and transfers

Endpoints are written as URLs, e.g. sftp://deploy@host:22/var/www.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.portage/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Add subcommands
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(versionCmd)

	// Add shell completion
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	var err error
	cfg, err = util.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, _ = util.SetupLogger(cfg.LogFile, util.ParseLevel(cfg.LogLevel))
}

// parseEndpoint turns a URL like sftp://user@host:2222/var/www into a
// ConnectionConfig. Credentials are taken from flags, never from the
// URL, so they stay out of shell history.
func parseEndpoint(raw, password, keyPath string) (model.ConnectionConfig, error) {
	var conn model.ConnectionConfig

	u, err := url.Parse(raw)
	if err != nil {
		return conn, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	proto := model.Protocol(strings.ToLower(u.Scheme))
	switch proto {
	case model.ProtocolSFTP, model.ProtocolFTP, model.ProtocolFTPS, model.ProtocolSCP:
	default:
		return conn, fmt.Errorf("unsupported protocol %q (want sftp, ftp, ftps or scp)", u.Scheme)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return conn, fmt.Errorf("invalid port in %q: %w", raw, err)
		}
	}

	conn = model.ConnectionConfig{
		Protocol: proto,
		Host:     u.Hostname(),
		Port:     port,
		Username: u.User.Username(),
		Password: password,
		KeyPath:  keyPath,
		RootPath: u.Path,
	}
	conn.Normalize()
	return conn, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("portage version 1.0.0")
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for portage.

To load completions:

Bash:
  $ source <(portage completion bash)

Zsh:
  $ source <(portage completion zsh)

Fish:
  $ portage completion fish | source

PowerShell:
  PS> portage completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
