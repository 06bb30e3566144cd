package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"media-grabber/internal/logging"
	"media-grabber/internal/startup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	stop()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "media-grabber",
		Short: "Download video, audio, clips and frames from online video links",
		Long: `media-grabber resolves an online video link, fetches one of its renditions
and hands it back as-is, as MP3 audio, as a short GIF clip, or as a PNG frame.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "media-grabber %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}

// loadCLIConfig loads the configuration for one-shot commands. Only warnings
// are logged unless LOG_LEVEL says otherwise, and nothing is written to stdout.
func loadCLIConfig(debug bool) (*startup.Config, error) {
	cfg, err := startup.Load(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	level := logging.LevelWarn
	if parsed, ok := logging.ParseLevel(cfg.LogLevel); ok {
		level = parsed
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.SetLevel(level)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("temp directory error: %w", err)
	}
	return cfg, nil
}
