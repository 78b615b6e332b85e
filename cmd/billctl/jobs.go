package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBills/pkg/notify"
	"github.com/mcclellann/fredBills/pkg/scheduler"
)

func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Scheduled job maintenance",
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bill check and auto-pay jobs once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runJobs(cmd, a)
		},
	}
	jobsCmd.AddCommand(runCmd)
	return jobsCmd
}

func runJobs(cmd *cobra.Command, a *app) error {
	var notifier scheduler.Notifier
	if a.cfg.SMTP.Enabled() {
		notifier = notify.NewSender(a.cfg.SMTP, a.log)
	}
	sched := scheduler.New(scheduler.Deps{
		Store:    a.store,
		Log:      a.log,
		Now:      a.now,
		Notifier: notifier,
	}, scheduler.Options{Location: a.loc})

	out := cmd.OutOrStdout()
	updated, err := sched.RunDailyBillCheck(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s: %w", scheduler.DailyBillCheckJob, err)
	}
	fmt.Fprintf(out, "%s: %d bill(s) updated\n", scheduler.DailyBillCheckJob, updated)

	result := sched.RunAutoPay(cmd.Context())
	fmt.Fprintf(out, "%s: %d paid, %d failed\n", scheduler.AutoPayJob, result.Processed, result.Failed)
	for _, id := range result.FailedIDs {
		fmt.Fprintf(out, "  failed: %s\n", id)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d auto-payment(s) failed", result.Failed)
	}
	return nil
}
