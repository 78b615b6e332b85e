// Package scheduler runs the recurring bill jobs: refreshing bill statuses and
// paying auto-pay bills that have come due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/payment"
	"github.com/mcclellann/fredBills/pkg/recurrence"
	"github.com/mcclellann/fredBills/pkg/store"
)

const (
	DailyBillCheckJob = "daily-bill-check"
	AutoPayJob        = "auto-pay-processor"

	DefaultDailyBillCheckSpec = "0 0 * * *"
	DefaultAutoPaySpec        = "5 0 * * *"

	autoPayNote = "Auto-pay"
)

// Store is the part of store.Storage the jobs need.
type Store interface {
	store.BillReader
	store.BillWriter
}

// Notifier is told about auto-pay runs that had failures.
type Notifier interface {
	NotifyAutoPayFailures(ctx context.Context, result models.AutoPayResult) error
}

// Deps are the collaborators of a Scheduler. Now and Notifier are optional.
type Deps struct {
	Store    Store
	Log      *logrus.Logger
	Now      func() time.Time
	Notifier Notifier
}

// Options configure when jobs fire. Zero values select the defaults.
type Options struct {
	Location           *time.Location
	DailyBillCheckSpec string
	AutoPaySpec        string
}

// Scheduler owns a cron instance with the two bill jobs.
type Scheduler struct {
	store    Store
	log      *logrus.Logger
	now      func() time.Time
	notifier Notifier
	opts     Options

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

func New(deps Deps, opts Options) *Scheduler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DailyBillCheckSpec == "" {
		opts.DailyBillCheckSpec = DefaultDailyBillCheckSpec
	}
	if opts.AutoPaySpec == "" {
		opts.AutoPaySpec = DefaultAutoPaySpec
	}
	clock, loc := deps.Now, opts.Location
	return &Scheduler{
		store:    deps.Store,
		log:      deps.Log,
		now:      func() time.Time { return clock().In(loc) },
		notifier: deps.Notifier,
		opts:     opts,
	}
}

// Init registers the jobs and starts the cron. Calling it while running is a no-op.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.log.Debug("Scheduler already running")
		return nil
	}

	printf := cron.PrintfLogger(s.log)
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(printf), cron.Recover(printf)),
	)

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{DailyBillCheckJob, s.opts.DailyBillCheckSpec, s.dailyBillCheckJob},
		{AutoPayJob, s.opts.AutoPaySpec, s.autoPayJob},
	}
	entries := make(map[string]cron.EntryID, len(jobs))
	for _, job := range jobs {
		id, err := c.AddFunc(job.spec, job.run)
		if err != nil {
			return fmt.Errorf("failed to schedule %s with %q: %w", job.name, job.spec, err)
		}
		entries[job.name] = id
	}

	c.Start()
	s.cron = c
	s.entries = entries
	s.log.WithFields(logrus.Fields{
		"location":        s.opts.Location.String(),
		DailyBillCheckJob: s.opts.DailyBillCheckSpec,
		AutoPayJob:        s.opts.AutoPaySpec,
	}).Info("Scheduler started")
	return nil
}

// Shutdown stops the cron and removes its jobs, then waits for a running job
// to finish or ctx to end. Init may be called again afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	if c == nil {
		s.mu.Unlock()
		return nil
	}
	for _, id := range s.entries {
		c.Remove(id)
	}
	s.cron = nil
	s.entries = nil
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// JobCount reports the number of registered jobs; zero when stopped.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

func (s *Scheduler) dailyBillCheckJob() {
	start := time.Now()
	logger := s.log.WithField("job", DailyBillCheckJob)
	updated, err := s.RunDailyBillCheck(context.Background())
	if err != nil {
		logger.WithError(err).Error("Bill check finished with errors")
	}
	logger.WithFields(logrus.Fields{
		"updated":  updated,
		"duration": time.Since(start).String(),
	}).Info("Bill check complete")
}

func (s *Scheduler) autoPayJob() {
	start := time.Now()
	result := s.RunAutoPay(context.Background())
	s.log.WithFields(logrus.Fields{
		"job":       AutoPayJob,
		"processed": result.Processed,
		"failed":    result.Failed,
		"duration":  time.Since(start).String(),
	}).Info("Auto-pay complete")
}

// RunDailyBillCheck re-derives pending/overdue for every active unpaid bill and
// persists the ones that changed. A failed write does not stop the run.
func (s *Scheduler) RunDailyBillCheck(ctx context.Context) (int, error) {
	bills, err := s.store.ListActiveBills(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list bills: %w", err)
	}

	now := s.now()
	updated := 0
	var errs []error
	for _, bill := range bills {
		if bill.Status == models.BillStatusPaid {
			continue
		}
		status := recurrence.DeriveStatus(bill.DueDate, now)
		if status == bill.Status {
			continue
		}
		bill.Status = status
		bill.UpdatedAt = now
		if err := s.store.UpdateBill(ctx, bill); err != nil {
			errs = append(errs, fmt.Errorf("bill %s: %w", bill.ID, err))
			continue
		}
		updated++
	}
	return updated, errors.Join(errs...)
}

// RunAutoPay pays every active auto-pay bill that is due today or overdue.
// Each bill is settled on its own; one failing never affects the others.
func (s *Scheduler) RunAutoPay(ctx context.Context) models.AutoPayResult {
	result := models.AutoPayResult{FailedIDs: []uuid.UUID{}}
	logger := s.log.WithField("job", AutoPayJob)

	bills, err := s.store.ListActiveBills(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list bills")
		return result
	}

	now := s.now()
	for _, bill := range bills {
		if !eligibleForAutoPay(bill, now) {
			continue
		}
		if err := s.payBill(ctx, bill, now); err != nil {
			logger.WithError(err).WithField("bill_id", bill.ID).Error("Auto-pay failed")
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, bill.ID)
			continue
		}
		result.Processed++
	}

	if result.Failed > 0 && s.notifier != nil {
		if err := s.notifier.NotifyAutoPayFailures(ctx, result); err != nil {
			logger.WithError(err).Warn("Failed to send auto-pay failure notification")
		}
	}
	return result
}

func eligibleForAutoPay(bill *models.Bill, now time.Time) bool {
	if !bill.IsAutoPay || bill.IsArchived || bill.Status == models.BillStatusPaid {
		return false
	}
	return bill.Status == models.BillStatusOverdue || recurrence.DaysUntilDue(bill.DueDate, now) <= 0
}

func (s *Scheduler) payBill(ctx context.Context, bill *models.Bill, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	amount := payment.FullAmount(*bill)
	if amount == 0 {
		return s.settleCovered(ctx, bill, now)
	}
	res, err := payment.Process(*bill, amount, true, now)
	if err != nil {
		return err
	}
	res.Apply(bill)
	bill.UpdatedAt = now

	transaction := &models.Transaction{
		ID:        uuid.New(),
		BillID:    bill.ID,
		Amount:    amount,
		PaidAt:    now,
		Notes:     autoPayNote,
		IsAutoPay: true,
		CreatedAt: now,
	}
	if err := s.store.ApplyPayment(ctx, bill, transaction); err != nil {
		return fmt.Errorf("failed to store payment: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"job":      AutoPayJob,
		"bill_id":  bill.ID,
		"amount":   amount,
		"next_due": bill.DueDate.Format("2006-01-02"),
	}).Info("Auto-paid bill")
	return nil
}

// settleCovered closes a cycle that partial payments already paid off, so no
// second payment is recorded for it.
func (s *Scheduler) settleCovered(ctx context.Context, bill *models.Bill, now time.Time) error {
	res, err := payment.Settle(*bill, now)
	if err != nil {
		return err
	}
	res.Apply(bill)
	bill.UpdatedAt = now
	if err := s.store.ApplyPayment(ctx, bill, nil); err != nil {
		return fmt.Errorf("failed to store bill: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"job":      AutoPayJob,
		"bill_id":  bill.ID,
		"next_due": bill.DueDate.Format("2006-01-02"),
	}).Info("Bill already covered, cycle closed")
	return nil
}
