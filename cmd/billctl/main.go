package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBills/pkg/config"
	"github.com/mcclellann/fredBills/pkg/logging"
	"github.com/mcclellann/fredBills/pkg/money"
	"github.com/mcclellann/fredBills/pkg/store"
)

// app bundles what every command needs. Close releases the store.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	loc   *time.Location
	store *store.SQLStore
	now   func() time.Time
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN, store.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:   cfg,
		log:   logging.New(cfg.Log.Level),
		loc:   loc,
		store: s,
		now:   func() time.Time { return time.Now().In(loc) },
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) format(amount int64) string {
	return money.Format(amount, a.cfg.Currency.MinorDigits)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "billctl",
		Short:         "Household bills CLI",
		Long:          "Inspect bills, forecast upcoming months and run the scheduled jobs by hand.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBillsCmd(), newForecastCmd(), newJobsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
