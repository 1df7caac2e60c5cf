package main

import (
	"github.com/spf13/cobra"

	"github.com/user/portage/internal/tui"
)

var uiAPIBase string

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal job dashboard",
	Long: `Launch an interactive terminal dashboard showing the jobs on a
running portage server, with live progress bars.

Use arrow keys to select a job, 'c' to cancel it, 'q' to quit.`,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&uiAPIBase, "api", "http://localhost:8080", "Base URL of the portage API")
}

func runUI(cmd *cobra.Command, args []string) error {
	app := tui.NewApp(uiAPIBase)
	return app.Run()
}
