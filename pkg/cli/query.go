package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/bizlog/pkg/cli/internal/output"
	"github.com/getmockd/bizlog/pkg/record"
	"github.com/getmockd/bizlog/pkg/store"
)

// QueryOutput is the JSON output of the query command.
type QueryOutput struct {
	Records []record.Record `json:"records"`
	Count   int             `json:"count"`
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		filter       store.Filter
		fail, passed bool
		since, until string
	)
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"logs"},
		Short:   "Query stored audit records",
		Long: `Query the audit records in the configured store, newest first.

--since and --until take an RFC 3339 timestamp or a duration relative to
now (for example 24h). --where takes a boolean expression over the record
fields id, bizNo, category, subType, action, operator, extra, fail and
createdAt.`,
		Example: `  bizlog query --biz-no MT0000011
  bizlog query --type ORDER --fail --since 24h
  bizlog query --where 'operator == "alice" && action contains "refund"' --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if fail && passed {
				return fmt.Errorf("--fail and --success are mutually exclusive")
			}
			if fail || passed {
				filter.Fail = &fail
			}
			now := time.Now()
			var err error
			if filter.Since, err = parseTime(since, now); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if filter.Until, err = parseTime(until, now); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			recs, err := st.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			log.Debug("queried records", "backend", cfg.Store.Backend, "count", len(recs))
			if recs == nil {
				recs = []record.Record{}
			}
			return a.print(cmd, QueryOutput{Records: recs, Count: len(recs)}, func(w io.Writer) {
				printRecords(w, recs)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.BizNo, "biz-no", "", "Filter by business number")
	f.StringVarP(&filter.Type, "type", "t", "", "Filter by record type")
	f.StringVar(&filter.SubType, "sub-type", "", "Filter by record sub-type")
	f.StringVar(&filter.Operator, "operator", "", "Filter by operator")
	f.BoolVar(&fail, "fail", false, "Only failed invocations")
	f.BoolVar(&passed, "success", false, "Only successful invocations")
	f.StringVar(&since, "since", "", "Only records at or after this time")
	f.StringVar(&until, "until", "", "Only records before this time")
	f.StringVarP(&filter.Where, "where", "w", "", "Boolean filter expression")
	f.IntVarP(&filter.Limit, "limit", "n", 50, "Maximum number of records (0 for all)")
	f.IntVar(&filter.Offset, "offset", 0, "Number of records to skip")
	return cmd
}

// parseTime accepts an RFC 3339 timestamp or a duration subtracted from now.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}

func printRecords(w io.Writer, recs []record.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "TIME\tBIZ NO\tTYPE\tOPERATOR\tSTATUS\tACTION")
	for _, r := range recs {
		status := "ok"
		if r.Fail {
			status = "FAIL"
		}
		typ := r.Type
		if r.SubType != "" {
			typ += "/" + r.SubType
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.BizNo, typ, r.Operator, status, truncate(r.Action, 80))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
