package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"domscout/internal/engine"
	"domscout/internal/store"
)

func runRuns(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer rs.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		run, err := rs.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		records, err := rs.Records(ctx, run.ID)
		if err != nil {
			return err
		}
		dispatches, err := rs.Dispatches(ctx, run.ID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			store.Run
			RecordList   []engine.Record  `json:"record_list"`
			DispatchList []store.Dispatch `json:"dispatch_list,omitempty"`
		}{run, records, dispatches})
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := rs.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tHOST\tRECORDS\tTIMERS\tERRORS\tDISPATCHES\tTARGET")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Host,
			r.Records, r.Timers, r.Errors, r.Dispatches, r.Target)
	}
	return tw.Flush()
}
