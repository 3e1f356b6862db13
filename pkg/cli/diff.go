package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/getmockd/bizlog/pkg/cli/internal/output"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

// DiffOutput is the JSON output of the diff command.
type DiffOutput struct {
	Entity  string      `json:"entity"`
	Message string      `json:"message"`
	Changes diff.Result `json:"changes"`
}

func newDiffCmd(a *app) *cobra.Command {
	var (
		entity    string
		before    string
		after     string
		showTable bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff two JSON snapshots of a configured entity",
		Long: `Diff two JSON snapshots of an entity declared in the configuration.

Either snapshot may be omitted; a missing before is treated as a creation
and a missing after as a deletion.`,
		Example: `  bizlog diff --entity order --before old.json --after new.json
  bizlog diff --entity order --after new.json --table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if before == "" && after == "" {
				return fmt.Errorf("at least one of --before or --after is required")
			}
			l, err := a.openLogger(cmd)
			if err != nil {
				return err
			}
			table, err := l.Descriptors().Lookup(entity)
			if err != nil {
				return err
			}

			oldSnap, err := readSnapshot(before)
			if err != nil {
				return fmt.Errorf("before: %w", err)
			}
			newSnap, err := readSnapshot(after)
			if err != nil {
				return fmt.Errorf("after: %w", err)
			}

			result, err := l.Engine().Compute(oldSnap, newSnap, table)
			if err != nil {
				return err
			}
			out := DiffOutput{Entity: entity, Message: l.Engine().Render(result), Changes: result}
			return a.print(cmd, out, func(w io.Writer) {
				if showTable {
					printChanges(w, result)
					return
				}
				if out.Message == "" {
					fmt.Fprintln(w, "No changes")
					return
				}
				fmt.Fprintln(w, out.Message)
			})
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity name declared under entities")
	cmd.Flags().StringVar(&before, "before", "", "JSON file with the snapshot before the change")
	cmd.Flags().StringVar(&after, "after", "", "JSON file with the snapshot after the change")
	cmd.Flags().BoolVar(&showTable, "table", false, "List changes as a table instead of a message")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

// readSnapshot returns nil for an empty path so the engine sees an absent
// side.
func readSnapshot(path string) (snapshot.Snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := snapshot.FromJSON(data)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return m, nil
}

func printChanges(w io.Writer, result diff.Result) {
	if len(result) == 0 {
		fmt.Fprintln(w, "No changes")
		return
	}
	title := cases.Title(language.English)
	tw := output.Table(w)
	fmt.Fprintln(tw, "PATH\tLABEL\tKIND\tOLD\tNEW")
	for _, e := range result {
		oldV, newV := e.Old, e.New
		if e.Collection {
			oldV = "-" + strings.Join(e.Removed, ", -")
			newV = "+" + strings.Join(e.Added, ", +")
			if len(e.Removed) == 0 {
				oldV = ""
			}
			if len(e.Added) == 0 {
				newV = ""
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Path, e.Label, title.String(e.Kind.String()), oldV, newV)
	}
	_ = tw.Flush()
}
