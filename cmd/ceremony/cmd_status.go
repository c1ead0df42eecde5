package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ceremony/internal/format"
	"ceremony/internal/ledger"
)

var statusFlags struct {
	limit int
	runID int64
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs, or the contributions of one run",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.IntVar(&statusFlags.limit, "limit", 10, "Number of runs to show (0 = all)")
	f.Int64Var(&statusFlags.runID, "run", 0, "Show per-contribution outcomes of this run")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	led, err := openLedger(cfg, false)
	if err != nil {
		return err
	}
	if led == nil {
		return errors.New("ledger disabled (ledger_path is empty)")
	}
	defer led.Close()

	out := cmd.OutOrStdout()
	if statusFlags.runID != 0 {
		run, err := led.GetRun(statusFlags.runID)
		if err != nil {
			return err
		}
		rows, err := led.ListContributions(run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Run #%d (%s, %s mode, %s policy) exit %d\n", run.ID, run.Command, run.ChainMode, run.Policy, run.ExitCode)
		fmt.Fprintln(out, contributionTable(rows))
		return nil
	}

	runs, err := led.ListRuns(statusFlags.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet. Run 'ceremony verify' first.")
		return nil
	}
	fmt.Fprintln(out, runTable(runs))
	return nil
}

func runTable(runs []*ledger.Run) string {
	tb := format.NewTable(tableMode())
	tb.Header("Run", "Command", "Started", "Took", "Verified", "Failed", "Errored", "Fetched", "Sync failed", "Exit")
	for _, r := range runs {
		took := "running"
		if r.Finished() {
			took = format.Duration(r.FinishedAt.Sub(r.StartedAt))
		}
		tb.Row(r.ID, r.Command, r.StartedAt.Local().Format("2006-01-02 15:04:05"), took,
			r.Verified, r.Failed, r.Errored, r.Fetched, r.SyncFailed, r.ExitCode)
	}
	return tb.String()
}

func contributionTable(rows []*ledger.Contribution) string {
	tb := format.NewTable(tableMode())
	tb.Header("#", "Contributor", "Anchor", "Status", "Kind", "Detail", "Checked", "Log")
	for _, c := range rows {
		detail := c.Failure
		if c.Error != "" {
			detail = format.Truncate(c.Error, 60)
		}
		tb.Row(fmt.Sprintf("%04d", c.Number), c.Contributor, c.Anchor,
			format.Status(c.Status == "verified", c.Status),
			c.FailedKind, detail, c.Invocations, c.LogPath)
	}
	return tb.String()
}
