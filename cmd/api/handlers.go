package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mcclellann/fredBills/pkg/forecast"
	"github.com/mcclellann/fredBills/pkg/ledger"
	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/payment"
	"github.com/mcclellann/fredBills/pkg/store"
)

const dateLayout = "2006-01-02"

var errBadRequest = errors.New("bad request")

type billRequest struct {
	Title      string   `json:"title"`
	Amount     int64    `json:"amount"` // minor units
	DueDate    string   `json:"due_date"`
	EndDate    string   `json:"end_date,omitempty"`
	Frequency  string   `json:"frequency"`
	IsAutoPay  bool     `json:"is_auto_pay"`
	IsVariable bool     `json:"is_variable"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type paymentRequest struct {
	Amount        int64  `json:"amount"`
	PaidAt        string `json:"paid_at,omitempty"`
	Notes         string `json:"notes,omitempty"`
	UpdateDueDate *bool  `json:"update_due_date,omitempty"` // defaults to true
}

type billResponse struct {
	*models.Bill
	DueLabel string `json:"due_label"`
}

type forecastResponse struct {
	Month   string                 `json:"month"`
	Bills   []models.ForecastBill  `json:"bills"`
	Summary models.ForecastSummary `json:"summary"`
}

// parseDate accepts a plain date in the server's location or an RFC 3339 timestamp.
func (s *Server) parseDate(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, value, s.loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", errBadRequest, value)
	}
	return t.In(s.loc), nil
}

func (s *Server) billInput(req billRequest) (ledger.BillInput, error) {
	in := ledger.BillInput{
		Title:      req.Title,
		Amount:     req.Amount,
		Frequency:  models.Frequency(req.Frequency),
		IsAutoPay:  req.IsAutoPay,
		IsVariable: req.IsVariable,
		Category:   req.Category,
		Tags:       req.Tags,
	}
	if f, err := models.ParseFrequency(req.Frequency); err == nil {
		in.Frequency = f
	}
	if req.DueDate != "" {
		due, err := s.parseDate(req.DueDate)
		if err != nil {
			return in, err
		}
		in.DueDate = due
	}
	if req.EndDate != "" {
		end, err := s.parseDate(req.EndDate)
		if err != nil {
			return in, err
		}
		in.EndDate = &end
	}
	return in, nil
}

func (s *Server) toResponse(bill *models.Bill) billResponse {
	return billResponse{Bill: bill, DueLabel: s.ledger.DueDateLabel(bill)}
}

func (s *Server) createBillHandler(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, err := s.billInput(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	bill, err := s.ledger.CreateBill(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toResponse(bill))
}

func (s *Server) getBillHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	bill, err := s.ledger.GetBill(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(bill))
}

func (s *Server) listBillsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	includeArchived, _ := strconv.ParseBool(query.Get("archived"))

	bills, err := s.ledger.ListBills(r.Context(), query.Get("tag"), includeArchived)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := make([]billResponse, 0, len(bills))
	for _, bill := range bills {
		resp = append(resp, s.toResponse(bill))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) updateBillHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	var req billRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, err := s.billInput(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	bill, err := s.ledger.UpdateBill(r.Context(), id, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(bill))
}

func (s *Server) archiveBillHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	req := struct {
		Archived *bool `json:"archived"`
	}{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	archived := req.Archived == nil || *req.Archived

	bill, err := s.ledger.ArchiveBill(r.Context(), id, archived)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(bill))
}

func (s *Server) deleteBillHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	if err := s.ledger.DeleteBill(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := ledger.PaymentInput{
		Amount:        req.Amount,
		Notes:         req.Notes,
		UpdateDueDate: req.UpdateDueDate == nil || *req.UpdateDueDate,
	}
	if req.PaidAt != "" {
		paidAt, err := s.parseDate(req.PaidAt)
		if err != nil {
			s.writeError(w, err)
			return
		}
		in.PaidAt = paidAt
	}

	receipt, err := s.ledger.RecordPayment(r.Context(), id, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) skipPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	bill, err := s.ledger.SkipPayment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(bill))
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bill")
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) updatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		var err error
		if paidAt, err = s.parseDate(req.PaidAt); err != nil {
			s.writeError(w, err)
			return
		}
	}

	transaction, err := s.ledger.UpdatePayment(r.Context(), id, req.Amount, paidAt, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transaction)
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	if err := s.ledger.DeletePayment(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forecastMonthHandler(w http.ResponseWriter, r *http.Request) {
	month := mux.Vars(r)["month"]
	bills, err := s.forecast.BillsForMonth(r.Context(), month, r.URL.Query().Get("tag"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bills == nil {
		bills = []models.ForecastBill{}
	}
	writeJSON(w, http.StatusOK, forecastResponse{
		Month:   month,
		Bills:   bills,
		Summary: forecast.CalculateSummary(bills),
	})
}

func (s *Server) forecastSummaryHandler(w http.ResponseWriter, r *http.Request) {
	bills, err := s.forecast.BillsForMonth(r.Context(), mux.Vars(r)["month"], r.URL.Query().Get("tag"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast.CalculateSummary(bills))
}

func (s *Server) forecastRangeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start := query.Get("start")
	if start == "" {
		start = s.now().In(s.loc).Format("2006-01")
	}
	months, err := intParam(query.Get("months"), 12)
	if err != nil {
		s.writeError(w, err)
		return
	}

	totals, err := s.forecast.BillsForMonthRange(r.Context(), start, months, query.Get("tag"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) paymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	months, err := intParam(query.Get("months"), 12)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if months < 1 || months > forecast.MaxMonths {
		s.writeError(w, forecast.ErrInvalidRange)
		return
	}

	var start time.Time
	if month := query.Get("start"); month != "" {
		if start, err = forecast.ParseMonth(month, s.loc); err != nil {
			s.writeError(w, err)
			return
		}
	} else {
		now := s.now().In(s.loc)
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, 1-months, 0)
	}

	history, err := s.ledger.PaymentHistory(r.Context(), start, months)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":   s.scheduler.IsRunning(),
		"job_count": s.scheduler.JobCount(),
	})
}

func (s *Server) runBillCheckHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := s.scheduler.RunDailyBillCheck(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) runAutoPayHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.RunAutoPay(r.Context()))
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidBill),
		errors.Is(err, models.ErrInvalidFrequency),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, forecast.ErrInvalidMonth),
		errors.Is(err, forecast.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrBillArchived),
		errors.Is(err, ledger.ErrBillPaid),
		errors.Is(err, payment.ErrCannotSkipOneTime):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request, kind string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s ID", kind), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func intParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errBadRequest, value)
	}
	return n, nil
}
