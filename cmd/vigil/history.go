package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/app"
	"github.com/tphakala/vigil/internal/logger"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		ruleID string
		stats  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent alerts from the configured history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, err := root.load()
			if err != nil {
				return err
			}
			store, release, err := app.OpenHistory(settings, logger.NewNop())
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			if stats {
				printStatistics(out, store.GetStatistics())
				return nil
			}

			var alerts []alerting.Alert
			if ruleID != "" {
				alerts = store.GetAlertsByRule(ruleID, limit)
			} else {
				alerts = store.GetRecentAlerts(limit)
			}
			printAlerts(out, alerts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of alerts to show, 0 for all")
	cmd.Flags().StringVar(&ruleID, "rule", "", "only show alerts fired by this rule id")
	cmd.Flags().BoolVar(&stats, "stats", false, "print lifetime statistics instead of alerts")
	return cmd
}

func printAlerts(out io.Writer, alerts []alerting.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts recorded")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIGGERED\tSEVERITY\tRULE\tSTATUS\tMESSAGE")
	for i := range alerts {
		a := &alerts[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.TriggeredAt.Local().Format(time.DateTime), a.Severity, a.RuleName, a.Status, a.Message)
	}
	_ = tw.Flush()
}

func printStatistics(out io.Writer, s alerting.Statistics) {
	fmt.Fprintf(out, "total alerts: %d\n", s.TotalAlerts)
	printCounter(out, "by severity", s.BySeverity)
	printCounter(out, "by type", s.ByType)
	printCounter(out, "by rule", s.ByRule)
	printCounter(out, "by day", s.ByDay)
}

func printCounter(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	_ = tw.Flush()
}
