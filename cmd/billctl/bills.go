package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBills/pkg/ledger"
)

func newBillsCmd() *cobra.Command {
	billsCmd := &cobra.Command{
		Use:   "bills",
		Short: "Work with bills",
	}

	var (
		tag      string
		archived bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bills with their next due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runBillsList(cmd, a, tag, archived)
		},
	}
	listCmd.Flags().StringVarP(&tag, "tag", "t", "", "Only bills with this tag")
	listCmd.Flags().BoolVar(&archived, "archived", false, "Include archived bills")

	billsCmd.AddCommand(listCmd)
	return billsCmd
}

func runBillsList(cmd *cobra.Command, a *app, tag string, archived bool) error {
	l := ledger.NewLedger(a.store, a.log, a.now)
	bills, err := l.ListBills(cmd.Context(), tag, archived)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(bills) == 0 {
		fmt.Fprintln(out, "No bills found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tFREQUENCY\tDUE\tOWED\tSTATUS\tTAGS")
	for _, b := range bills {
		title := b.Title
		if b.IsAutoPay {
			title += " (auto)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			title,
			b.Frequency,
			b.DueDate.In(a.loc).Format("2006-01-02"),
			a.format(b.AmountDue),
			l.DueDateLabel(b),
			strings.Join(b.Tags, ","),
		)
	}
	return tw.Flush()
}
