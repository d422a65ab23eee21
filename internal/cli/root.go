// Package cli implements the bloodlens command-line tool.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/bloodlens/internal/config"
	"github.com/me/bloodlens/internal/logging"
)

var (
	flagServer    string
	flagConfig    string
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking BLOODLENS_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("BLOODLENS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the bloodlens CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bloodlens",
		Short: "BloodLens - AI-assisted blood report analysis",
		Long: "BloodLens extracts and analyzes blood test reports. Local commands use the\n" +
			"configured LLM and database directly; remote commands talk to a BloodLens server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, LoadToken(), logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "BloodLens server URL (or BLOODLENS_SERVER env)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the YAML application config")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Path to the SQLite database for local commands (default ~/.bloodlens/bloodlens.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newExtractCmd(),
		newAnalyzeCmd(),
		newUserCmd(),
		newLoginCmd(),
		newReportsCmd(),
		newReportCmd(),
	)

	return root
}

// loadConfig reads the application config named by --config, or the defaults.
func loadConfig() (config.Config, error) {
	return config.Load(flagConfig)
}
