package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claudish/claudish/internal/dispatcher"
	"github.com/claudish/claudish/internal/process"
	"github.com/claudish/claudish/internal/server"
	"github.com/claudish/claudish/internal/stream"
)

// defaultContextWindow is the context window SessionTokenTotals reports for
// the whole session; the dispatcher runs no context-window discovery probe,
// so nothing replaces it.
const defaultContextWindow = 8192

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the claudish service",
	Long:  `Start the Anchor-to-OpenAI translating proxy in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetBool("log-file")
	setupLogging(verbose, logFile)

	if err := ensureConfigExists(); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"reasoning_policy", cfg.ReasoningPolicy,
	)

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	d := dispatcher.New(logger, cfg.Port, defaultContextWindow, stream.ReasoningPolicy(cfg.ReasoningPolicy))
	defer d.Close(cfg.Port)

	srv := server.New(cfgMgr, d, logger)
	return srv.Start()
}
