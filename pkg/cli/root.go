package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/bizlog/pkg/cli/internal/output"
	"github.com/getmockd/bizlog/pkg/config"
	"github.com/getmockd/bizlog/pkg/logging"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// app holds the persistent flags shared by all subcommands.
type app struct {
	configPath string
	jsonOutput bool
	logLevel   string
	logFile    string

	closers []io.Closer
}

// NewRootCommand builds the bizlog command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bizlog",
		Short: "bizlog inspects and exercises business audit logging",
		Long: `bizlog renders audit message templates, diffs entity snapshots and
queries stored audit records, using the entities and operations declared
in a bizlog configuration file.

The configuration is read from --config, from $BIZLOG_CONFIG, or from
bizlog.yaml in the current directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file path")
	flags.BoolVar(&a.jsonOutput, "json", false, "Output command results in JSON format")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(
		newRenderCmd(a),
		newDiffCmd(a),
		newQueryCmd(a),
		newValidateCmd(a),
		newInitCmd(a),
		newSchemaCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	return cfg, nil
}

// logger logs to stderr as configured, and additionally as JSON to
// --log-file when set. Callers must defer a.close().
func (a *app) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	outputs := []logging.Config{cfg.LoggingConfig(cmd.ErrOrStderr())}
	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		outputs = append(outputs, logging.Config{
			Level:  logging.ParseLevel(cfg.Logging.Level),
			Format: logging.FormatJSON,
			Output: f,
		})
	}
	return logging.NewMulti(outputs...), nil
}

func (a *app) close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// print writes data as JSON when --json is set and calls textFn otherwise.
func (a *app) print(cmd *cobra.Command, data any, textFn func(w io.Writer)) error {
	if a.jsonOutput {
		return output.JSON(cmd.OutOrStdout(), data)
	}
	textFn(cmd.OutOrStdout())
	return nil
}
