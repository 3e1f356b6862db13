package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getmockd/bizlog/pkg/bizlog"
	"github.com/getmockd/bizlog/pkg/config"
	"github.com/getmockd/bizlog/pkg/logging"
	"github.com/getmockd/bizlog/pkg/record"
)

// ValidateOutput is the JSON output of the validate command.
type ValidateOutput struct {
	Valid      bool                     `json:"valid"`
	Errors     []config.ValidationError `json:"errors,omitempty"`
	Entities   []string                 `json:"entities,omitempty"`
	Operations []string                 `json:"operations,omitempty"`
	Lookups    []string                 `json:"lookups,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a bizlog configuration file",
		Long: `Validate a bizlog configuration file.

This command checks:
  - YAML or JSON syntax
  - Schema validation (required fields, valid values)
  - Reference integrity (operations reference declared entities)
  - Formatter names used by entity fields
  - Message templates and conditions of every operation`,
		Example: `  bizlog validate
  bizlog validate -c ./bizlog.yaml --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			out := ValidateOutput{}
			cfg, err := a.loadConfig()
			var l *bizlog.Logger
			if err == nil {
				l, err = bizlog.NewFromConfig(cfg, append(stubLookups(cfg),
					bizlog.WithSink(record.Discard), bizlog.WithLogger(logging.Nop()))...)
			}
			if err != nil {
				var result *config.ValidationResult
				if !errors.As(err, &result) {
					result = &config.ValidationResult{}
					result.AddError("", err.Error())
				}
				out.Errors = result.Errors
				_ = a.print(cmd, out, func(w io.Writer) {
					fmt.Fprintln(w, "Validation failed:")
					for _, e := range result.Errors {
						fmt.Fprintf(w, "  - %s\n", e.Error())
					}
				})
				return fmt.Errorf("validation failed with %d error(s)", len(result.Errors))
			}

			out.Valid = true
			out.Entities = l.Descriptors().Entities()
			out.Operations = l.Plans()
			out.Lookups = lookupNames(cfg)
			return a.print(cmd, out, func(w io.Writer) {
				fmt.Fprintln(w, "Configuration is valid.")
				if verbose {
					printSummary(w, cfg, out)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show a summary of the configuration")
	return cmd
}

func stubLookups(cfg *config.Config) []bizlog.Option {
	var opts []bizlog.Option
	for _, name := range lookupNames(cfg) {
		opts = append(opts, bizlog.WithLookup(name, stubLookup(name)))
	}
	return opts
}

func printSummary(w io.Writer, cfg *config.Config, out ValidateOutput) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration Summary")
	fmt.Fprintln(w, "---------------------")
	fmt.Fprintf(w, "Locale: %s\n", cfg.Style().Locale)
	backend := cfg.Store.Backend
	if backend == "" {
		backend = "memory"
	}
	fmt.Fprintf(w, "Store: %s\n", backend)
	if len(out.Entities) > 0 {
		fmt.Fprintln(w, "Entities:")
		for _, e := range out.Entities {
			fmt.Fprintf(w, "  - %s (%d fields)\n", e, len(cfg.Entities[e]))
		}
	}
	if len(out.Operations) > 0 {
		fmt.Fprintln(w, "Operations:")
		for _, op := range out.Operations {
			fmt.Fprintf(w, "  - %s\n", op)
		}
	}
	if len(out.Lookups) > 0 {
		fmt.Fprintln(w, "Lookups required from the host application:")
		for _, name := range out.Lookups {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
}
