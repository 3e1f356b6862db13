package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/bizlog/pkg/bizlog"
	"github.com/getmockd/bizlog/pkg/config"
	"github.com/getmockd/bizlog/pkg/expression"
	"github.com/getmockd/bizlog/pkg/record"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

// RenderOutput is the JSON output of the render command.
type RenderOutput struct {
	Template string `json:"template"`
	Result   string `json:"result"`
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		varsFile string
		sets     []string
	)
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a message template against variables",
		Example: `  bizlog render 'updated order {{ order.orderNo }}' --set order.orderNo=MT-1
  bizlog render '{{ upper(name) }}' --vars vars.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			l, err := a.openLogger(cmd)
			if err != nil {
				return err
			}

			vars, err := loadVars(varsFile, sets)
			if err != nil {
				return err
			}
			out, err := l.Evaluator().Execute(args[0], expression.Vars(vars))
			if err != nil {
				return err
			}
			return a.print(cmd, RenderOutput{Template: args[0], Result: out}, func(w io.Writer) {
				fmt.Fprintln(w, out)
			})
		},
	}
	cmd.Flags().StringVar(&varsFile, "vars", "", "YAML or JSON file with template variables")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a variable: name=value or a.b=value (repeatable)")
	return cmd
}

// openLogger builds a bizlog.Logger from the configuration without a
// store. Lookups named by the configuration are replaced by stubs that
// fail when called.
func (a *app) openLogger(cmd *cobra.Command) (*bizlog.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := a.logger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	opts := append(stubLookups(cfg), bizlog.WithSink(record.Discard), bizlog.WithLogger(log))
	return bizlog.NewFromConfig(cfg, opts...)
}

func lookupNames(cfg *config.Config) []string {
	var names []string
	seen := make(map[string]bool)
	for _, op := range cfg.Operations {
		for _, s := range []*config.SnapshotConfig{op.Before, op.After} {
			if s != nil && s.Lookup != "" && !seen[s.Lookup] {
				seen[s.Lookup] = true
				names = append(names, s.Lookup)
			}
		}
	}
	return names
}

func stubLookup(name string) func(context.Context, any) (snapshot.Snapshot, error) {
	return func(context.Context, any) (snapshot.Snapshot, error) {
		return nil, fmt.Errorf("lookup %q is provided by the host application", name)
	}
}

// loadVars reads the variables file and applies --set assignments on top.
func loadVars(path string, sets []string) (map[string]any, error) {
	vars := make(map[string]any)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read variables: %w", err)
		}
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("failed to parse variables: %w", err)
		}
		if vars == nil {
			vars = make(map[string]any)
		}
	}
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", s)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if err := setPath(vars, strings.Split(name, "."), value); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
	}
	return vars, nil
}

func setPath(m map[string]any, path []string, value any) error {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok {
			child := make(map[string]any)
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not an object", key)
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}
