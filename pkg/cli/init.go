package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/bizlog/pkg/cli/templates"
	"github.com/getmockd/bizlog/pkg/config"
)

// InitOutput is the JSON output of the init command.
type InitOutput struct {
	Path       string `json:"path"`
	Entities   int    `json:"entities"`
	Operations int    `json:"operations"`
}

func newInitCmd(a *app) *cobra.Command {
	var (
		outputPath string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter bizlog configuration file",
		Example: `  bizlog init
  bizlog init -o audit.json
  bizlog init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(outputPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", outputPath)
			}

			data := templates.Starter()
			cfg, err := config.ParseYAML(data)
			if err != nil {
				return fmt.Errorf("starter config: %w", err)
			}
			// JSON output is re-encoded; YAML keeps the commented template.
			if strings.EqualFold(filepath.Ext(outputPath), ".json") {
				if err := config.SaveToFile(outputPath, cfg); err != nil {
					return err
				}
			} else {
				if dir := filepath.Dir(outputPath); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("failed to create directory %s: %w", dir, err)
					}
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outputPath, err)
				}
			}

			out := InitOutput{Path: outputPath, Entities: len(cfg.Entities), Operations: len(cfg.Operations)}
			return a.print(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s with %d entity and %d operations.\n", outputPath, out.Entities, out.Operations)
				fmt.Fprintln(w)
				fmt.Fprintln(w, "Next steps:")
				fmt.Fprintf(w, "  bizlog validate -c %s --verbose\n", outputPath)
				fmt.Fprintf(w, "  bizlog diff -c %s --entity order --before old.json --after new.json\n", outputPath)
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "bizlog.yaml", "Output filename")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	return cmd
}
