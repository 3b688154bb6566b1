package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movewell/physio-platform/pkg/logging"
)

type captureSender struct {
	sent []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func nyTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func TestSendBookingConfirmation(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, logging.New("error"))
	loc, _ := time.LoadLocation("America/New_York")

	svc.SendBookingConfirmation(context.Background(), BookingConfirmation{
		PatientEmail: "jordan@example.com",
		PatientName:  "Jordan",
		StartsAt:     nyTime(t, "2026-03-02 10:00"),
		EndsAt:       nyTime(t, "2026-03-02 10:30"),
		Location:     loc,
		ZoomJoinURL:  "https://zoom.us/j/123456",
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jordan@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Mar 2")
	assert.Contains(t, msg.Body, "Monday, March 2, 2026")
	assert.Contains(t, msg.Body, "https://zoom.us/j/123456")
}

func TestSendBookingConfirmation_NoZoomLink(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, logging.New("error"))

	svc.SendBookingConfirmation(context.Background(), BookingConfirmation{
		PatientEmail: "jordan@example.com",
		StartsAt:     nyTime(t, "2026-03-02 10:00"),
		EndsAt:       nyTime(t, "2026-03-02 10:30"),
	})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "does not have a video link")
	assert.Contains(t, sender.sent[0].Body, "Hi there,")
}

func TestSendBookingConfirmation_SwallowsErrors(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	svc := NewService(sender, logging.New("error"))

	svc.SendBookingConfirmation(context.Background(), BookingConfirmation{
		PatientEmail: "jordan@example.com",
		StartsAt:     nyTime(t, "2026-03-02 10:00"),
		EndsAt:       nyTime(t, "2026-03-02 10:30"),
	})
	// No panic, no error surfaced.
	require.Len(t, sender.sent, 1)
}

func TestSendBookingConfirmation_SkipsWithoutEmail(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, logging.New("error"))

	svc.SendBookingConfirmation(context.Background(), BookingConfirmation{})
	assert.Empty(t, sender.sent)
}

func TestStubEmailSender(t *testing.T) {
	s := NewStubEmailSender(logging.New("error"))
	err := s.Send(context.Background(), EmailMessage{To: "x@example.com", Subject: "hello"})
	assert.NoError(t, err)
}
