package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBills/pkg/forecast"
)

func newForecastCmd() *cobra.Command {
	var tag string
	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project upcoming bill payments",
	}
	forecastCmd.PersistentFlags().StringVarP(&tag, "tag", "t", "", "Only bills with this tag")

	monthCmd := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Bills due or to save for in a month (default: this month)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			month := a.now().In(a.loc).Format("2006-01")
			if len(args) == 1 {
				month = args[0]
			}
			return runForecastMonth(cmd, a, month, tag)
		},
	}

	var (
		start  string
		months int
	)
	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Monthly totals over several months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if start == "" {
				start = a.now().In(a.loc).Format("2006-01")
			}
			return runForecastRange(cmd, a, start, months, tag)
		},
	}
	rangeCmd.Flags().StringVarP(&start, "start", "s", "", "First month, YYYY-MM (default: this month)")
	rangeCmd.Flags().IntVarP(&months, "months", "n", 6, fmt.Sprintf("Number of months (1-%d)", forecast.MaxMonths))

	forecastCmd.AddCommand(monthCmd, rangeCmd)
	return forecastCmd
}

func runForecastMonth(cmd *cobra.Command, a *app, month, tag string) error {
	engine := forecast.NewEngine(a.store, a.store, a.log, a.loc)
	bills, err := engine.BillsForMonth(cmd.Context(), month, tag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(bills) == 0 {
		fmt.Fprintf(out, "Nothing due in %s.\n", month)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tFREQUENCY\tDUE\tSAVE\tNOTE")
	for _, fb := range bills {
		due, save, note := "", "", ""
		if fb.IsDue() {
			due = a.format(fb.DisplayAmount)
			if fb.Occurrences > 1 {
				note = fmt.Sprintf("%d payments", fb.Occurrences)
			}
		}
		if fb.AmortizationAmount != nil {
			save = a.format(*fb.AmortizationAmount)
			note = "next due " + fb.DueDate.In(a.loc).Format("2006-01-02")
		}
		if fb.IsEstimated {
			if note != "" {
				note += ", "
			}
			note += "estimated"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", fb.Title, fb.Frequency, due, save, note)
	}
	summary := forecast.CalculateSummary(bills)
	fmt.Fprintf(tw, "\t\t\t\t\n")
	fmt.Fprintf(tw, "TOTAL\t\t%s\t%s\t%s\n", a.format(summary.TotalDue), a.format(summary.TotalToSave), a.format(summary.GrandTotal))
	return tw.Flush()
}

func runForecastRange(cmd *cobra.Command, a *app, start string, months int, tag string) error {
	engine := forecast.NewEngine(a.store, a.store, a.log, a.loc)
	totals, err := engine.BillsForMonthRange(cmd.Context(), start, months, tag)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tDUE\tSAVE\tTOTAL")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.MonthLabel, a.format(t.TotalDue), a.format(t.TotalToSave), a.format(t.GrandTotal))
	}
	return tw.Flush()
}
