package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hardtochooseaname/kg-lti/internal/config"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kg-lti",
	Short: "Knowledge graph explorer backend for LTI courses",
	Long: `kg-lti serves a Neo4j knowledge graph to a Cytoscape front-end.

It projects bounded subgraphs (initial view, keyword search, one-hop
expansion), accepts edits from instructors, and maps LMS launches onto
a student or editor view.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is called before any command runs. It resolves the config file,
// loads and validates the configuration, and installs the default logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "version" {
		return nil
	}

	path := configFile
	if path == "" {
		found, err := config.FindConfigFile("kg-lti.yaml", "config/kg-lti.yaml", "/etc/kg-lti/config.yaml")
		if err == nil {
			path = found
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Logging))
	if path != "" {
		slog.Debug("configuration loaded", "file", path)
	}
	return nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "kg-lti", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(versionCmd)
}

func closeDriver(closer func(context.Context) error) {
	if err := closer(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing Neo4j driver: %v\n", err)
	}
}
