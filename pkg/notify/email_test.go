package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/fredBills/pkg/config"
	"github.com/mcclellann/fredBills/pkg/models"
)

func newTestSender(t *testing.T, send func(*email.Email, string, smtp.Auth) error) *Sender {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := NewSender(config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        "587",
		Username:    "bills",
		Password:    "secret",
		SenderEmail: "bills@example.com",
		NotifyEmail: "me@example.com",
	}, logger)
	s.now = func() time.Time { return time.Date(2026, time.May, 10, 0, 5, 0, 0, time.UTC) }
	s.send = send
	return s
}

func TestNotifyAutoPayFailures(t *testing.T) {
	failed := []uuid.UUID{uuid.New(), uuid.New()}
	var sent *email.Email
	var sentAddr string
	s := newTestSender(t, func(e *email.Email, addr string, auth smtp.Auth) error {
		sent, sentAddr = e, addr
		assert.NotNil(t, auth)
		return nil
	})

	err := s.NotifyAutoPayFailures(context.Background(), models.AutoPayResult{Processed: 3, Failed: 2, FailedIDs: failed})
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, "smtp.example.com:587", sentAddr)
	assert.Equal(t, "bills@example.com", sent.From)
	assert.Equal(t, []string{"me@example.com"}, sent.To)
	assert.Equal(t, "2 automatic bill payments failed", sent.Subject)
	body := string(sent.Text)
	assert.Contains(t, body, "2026-05-10 00:05")
	assert.Contains(t, body, "paid 3 bill(s) and could not pay 2")
	for _, id := range failed {
		assert.Contains(t, body, id.String())
	}
}

func TestNotifyAutoPayFailuresSendError(t *testing.T) {
	s := newTestSender(t, func(*email.Email, string, smtp.Auth) error {
		return errors.New("connection refused")
	})
	err := s.NotifyAutoPayFailures(context.Background(), models.AutoPayResult{Failed: 1, FailedIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorContains(t, err, "connection refused")
}

func TestSingleFailureSubject(t *testing.T) {
	s := newTestSender(t, nil)
	e := s.autoPayFailureEmail(models.AutoPayResult{Failed: 1})
	assert.Equal(t, "1 automatic bill payment failed", e.Subject)
}
