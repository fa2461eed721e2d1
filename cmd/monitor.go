package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claudish/claudish/internal/monitor"
	"github.com/claudish/claudish/internal/process"
	"github.com/claudish/claudish/internal/server"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run in Monitor Mode only",
	Long:  `Pass every request straight through to the vendor endpoint, recording request/response fixtures, per the translator's Monitor Mode.`,
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetBool("log-file")
	setupLogging(verbose, logFile)

	vendorBaseURL := os.Getenv("CLAUDISH_BASE_URL")
	if vendorBaseURL == "" {
		vendorBaseURL = "https://api.anthropic.com"
	}

	m, err := monitor.New(vendorBaseURL, os.Getenv("ANTHROPIC_API_KEY"), baseDir, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	color.Green("Starting %s v%s in Monitor Mode (vendor: %s)...", AppName, Version, vendorBaseURL)

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	srv := server.NewMonitor(cfgMgr, m, logger)
	return srv.Start()
}
