package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/fredBills/pkg/ledger"
	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/scheduler"
	"github.com/mcclellann/fredBills/pkg/store"
)

var fixedNow = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	t      *testing.T
	server *Server
	router http.Handler
}

func setupTestServer(t *testing.T) *testAPI {
	return setupTestServerAt(t, time.UTC, fixedNow)
}

func setupTestServerAt(t *testing.T, loc *time.Location, clock time.Time) *testAPI {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"), store.WithLocation(loc))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger, _ := test.NewNullLogger()
	now := func() time.Time { return clock }
	sched := scheduler.New(scheduler.Deps{Store: s, Log: logger, Now: now}, scheduler.Options{Location: loc})
	server := NewServer(s, sched, logger, loc, now)
	return &testAPI{t: t, server: server, router: server.Router()}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) createBill(body map[string]any) billResponse {
	a.t.Helper()
	rr := a.do("POST", "/bills", body)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	var bill billResponse
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), &bill))
	return bill
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestAPI_CreateAndGetBill(t *testing.T) {
	api := setupTestServer(t)

	created := api.createBill(map[string]any{
		"title":     "Internet",
		"amount":    6000,
		"due_date":  "2026-05-11",
		"frequency": "Monthly",
		"tags":      []string{"home"},
	})
	assert.Equal(t, models.FrequencyMonthly, created.Frequency)
	assert.Equal(t, int64(6000), created.AmountDue)
	assert.Equal(t, models.BillStatusPending, created.Status)
	assert.Equal(t, "Due tomorrow", created.DueLabel)

	rr := api.do("GET", "/bills/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	fetched := decode[billResponse](t, rr)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, []string{"home"}, fetched.Tags)
	assert.True(t, fetched.DueDate.Equal(time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)))
}

func TestAPI_BillErrors(t *testing.T) {
	api := setupTestServer(t)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"invalid_id", "GET", "/bills/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown_bill", "GET", "/bills/6f1c1d52-8d5e-4a53-9c0b-1b8f1f3c0a11", nil, http.StatusNotFound},
		{"unknown_frequency", "POST", "/bills", map[string]any{"title": "Gym", "amount": 100, "due_date": "2026-05-01", "frequency": "daily"}, http.StatusBadRequest},
		{"bad_date", "POST", "/bills", map[string]any{"title": "Gym", "amount": 100, "due_date": "05/01/2026", "frequency": "monthly"}, http.StatusBadRequest},
		{"missing_title", "POST", "/bills", map[string]any{"amount": 100, "due_date": "2026-05-01", "frequency": "monthly"}, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestAPI_RecordPaymentAdvancesDueDate(t *testing.T) {
	api := setupTestServer(t)
	bill := api.createBill(map[string]any{"title": "Rent", "amount": 150000, "due_date": "2026-05-01", "frequency": "monthly"})
	assert.Equal(t, models.BillStatusOverdue, bill.Status)

	rr := api.do("POST", "/bills/"+bill.ID.String()+"/payments", map[string]any{"amount": 150000, "notes": "May rent"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	receipt := decode[ledger.PaymentReceipt](t, rr)
	assert.False(t, receipt.Historical)
	assert.True(t, receipt.Bill.DueDate.Equal(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.BillStatusPending, receipt.Bill.Status)

	rr = api.do("GET", "/bills/"+bill.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	payments := decode[[]models.Transaction](t, rr)
	require.Len(t, payments, 1)
	assert.Equal(t, "May rent", payments[0].Notes)
}

func TestAPI_HistoricalPaymentKeepsDueDate(t *testing.T) {
	api := setupTestServer(t)
	bill := api.createBill(map[string]any{"title": "Rent", "amount": 150000, "due_date": "2026-05-20", "frequency": "monthly"})

	rr := api.do("POST", "/bills/"+bill.ID.String()+"/payments", map[string]any{"amount": 150000, "paid_at": "2026-03-20"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	receipt := decode[ledger.PaymentReceipt](t, rr)
	assert.True(t, receipt.Historical)
	assert.True(t, receipt.Bill.DueDate.Equal(bill.DueDate))
}

func TestAPI_PaymentConflicts(t *testing.T) {
	api := setupTestServer(t)
	once := api.createBill(map[string]any{"title": "Deposit", "amount": 50000, "due_date": "2026-05-15", "frequency": "once"})

	rr := api.do("POST", "/bills/"+once.ID.String()+"/skip", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do("POST", "/bills/"+once.ID.String()+"/payments", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do("POST", "/bills/"+once.ID.String()+"/payments", map[string]any{"amount": 50000})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.BillStatusPaid, decode[ledger.PaymentReceipt](t, rr).Bill.Status)

	rr = api.do("POST", "/bills/"+once.ID.String()+"/payments", map[string]any{"amount": 100})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_SkipAndArchive(t *testing.T) {
	api := setupTestServer(t)
	bill := api.createBill(map[string]any{"title": "Gym", "amount": 4000, "due_date": "2026-01-31", "frequency": "monthly"})

	rr := api.do("POST", "/bills/"+bill.ID.String()+"/skip", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	skipped := decode[billResponse](t, rr)
	assert.True(t, skipped.DueDate.Equal(time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)))

	rr = api.do("POST", "/bills/"+bill.ID.String()+"/archive", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[billResponse](t, rr).IsArchived)

	rr = api.do("GET", "/bills", nil)
	assert.Empty(t, decode[[]billResponse](t, rr))
	rr = api.do("GET", "/bills?archived=true", nil)
	assert.Len(t, decode[[]billResponse](t, rr), 1)

	rr = api.do("POST", "/bills/"+bill.ID.String()+"/payments", map[string]any{"amount": 4000})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_EditAndDeletePayment(t *testing.T) {
	api := setupTestServer(t)
	bill := api.createBill(map[string]any{"title": "Phone", "amount": 3000, "due_date": "2026-05-12", "frequency": "monthly"})

	rr := api.do("POST", "/bills/"+bill.ID.String()+"/payments", map[string]any{"amount": 3000})
	require.Equal(t, http.StatusCreated, rr.Code)
	receipt := decode[ledger.PaymentReceipt](t, rr)

	rr = api.do("PUT", "/payments/"+receipt.Transaction.ID.String(), map[string]any{"amount": 3100, "notes": "fee"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(3100), decode[models.Transaction](t, rr).Amount)

	rr = api.do("DELETE", "/payments/"+receipt.Transaction.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do("GET", "/bills/"+bill.ID.String(), nil)
	after := decode[billResponse](t, rr)
	assert.True(t, after.DueDate.Equal(receipt.Bill.DueDate), "deleting a payment leaves the bill alone")

	rr = api.do("DELETE", "/bills/"+bill.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do("GET", "/bills/"+bill.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Forecast(t *testing.T) {
	api := setupTestServer(t)
	api.createBill(map[string]any{"title": "Water", "amount": 60000, "due_date": "2026-08-15", "frequency": "quarterly"})
	api.createBill(map[string]any{"title": "Rent", "amount": 150000, "due_date": "2026-06-01", "frequency": "monthly"})

	rr := api.do("GET", "/forecast/2026-06", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	month := decode[forecastResponse](t, rr)
	assert.Len(t, month.Bills, 2)
	assert.Equal(t, models.ForecastSummary{TotalDue: 150000, TotalToSave: 20000, GrandTotal: 170000}, month.Summary)

	rr = api.do("GET", "/forecast/2026-08/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.ForecastSummary{TotalDue: 210000, GrandTotal: 210000}, decode[models.ForecastSummary](t, rr))

	rr = api.do("GET", "/forecast?start=2026-06&months=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	totals := decode[[]models.MonthlyForecastTotal](t, rr)
	require.Len(t, totals, 3)
	assert.Equal(t, "June 2026", totals[0].MonthLabel)

	rr = api.do("GET", "/forecast", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	totals = decode[[]models.MonthlyForecastTotal](t, rr)
	require.Len(t, totals, 12)
	assert.Equal(t, "2026-05", totals[0].Month)

	assert.Equal(t, http.StatusBadRequest, api.do("GET", "/forecast/2026-6", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do("GET", "/forecast?months=25", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do("GET", "/forecast?months=many", nil).Code)
}

func TestAPI_PaymentHistory(t *testing.T) {
	api := setupTestServer(t)
	bill := api.createBill(map[string]any{"title": "Phone", "amount": 3000, "due_date": "2026-05-12", "frequency": "monthly"})
	rr := api.do("POST", "/bills/"+bill.ID.String()+"/payments", map[string]any{"amount": 3000})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do("GET", "/history?months=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []models.MonthlyPaidTotal{
		{Month: "2026-03"},
		{Month: "2026-04"},
		{Month: "2026-05", Total: 3000, Count: 1},
	}, decode[[]models.MonthlyPaidTotal](t, rr))
}

func TestAPI_Jobs(t *testing.T) {
	api := setupTestServer(t)
	api.createBill(map[string]any{"title": "Phone", "amount": 3000, "due_date": "2026-05-10", "frequency": "monthly", "is_auto_pay": true})

	require.NoError(t, api.server.scheduler.Init())
	t.Cleanup(func() { api.server.scheduler.Shutdown(context.Background()) })

	rr := api.do("GET", "/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[map[string]any](t, rr)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, float64(2), status["job_count"])

	rr = api.do("POST", "/jobs/"+scheduler.AutoPayJob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[models.AutoPayResult](t, rr)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)

	rr = api.do("POST", "/jobs/"+scheduler.DailyBillCheckJob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]int{"updated": 0}, decode[map[string]int](t, rr))
}

func TestAPI_StatusUsesConfiguredTimezone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 10:00 in Tokyo on the due date, while UTC is already past midnight.
	api := setupTestServerAt(t, tokyo, time.Date(2026, time.May, 10, 1, 0, 0, 0, time.UTC))

	created := api.createBill(map[string]any{
		"title":     "Phone",
		"amount":    3000,
		"due_date":  "2026-05-10",
		"frequency": "monthly",
	})
	assert.Equal(t, models.BillStatusPending, created.Status)
	assert.Equal(t, "Due today", created.DueLabel)

	rr := api.do("GET", "/bills/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[billResponse](t, rr)
	assert.Equal(t, models.BillStatusPending, got.Status)
	assert.Equal(t, "Due today", got.DueLabel)
}
