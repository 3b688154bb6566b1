package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/movewell/physio-platform/pkg/logging"
)

// BookingConfirmation carries the details rendered into the
// confirmation email sent after a session is booked.
type BookingConfirmation struct {
	PatientEmail string
	PatientName  string
	TherapistID  string
	StartsAt     time.Time
	EndsAt       time.Time
	Location     *time.Location
	ZoomJoinURL  string
}

// Service composes and sends booking notifications. Sends are
// best-effort: failures are logged and never surfaced to callers.
type Service struct {
	sender EmailSender
	logger *logging.Logger
}

func NewService(sender EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, logger: logger}
}

// SendBookingConfirmation emails the patient after a successful booking.
// A nil sender or send error is logged and swallowed.
func (s *Service) SendBookingConfirmation(ctx context.Context, c BookingConfirmation) {
	if s == nil || s.sender == nil {
		return
	}
	if c.PatientEmail == "" {
		return
	}

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	start := c.StartsAt.In(loc)
	end := c.EndsAt.In(loc)

	body := fmt.Sprintf(
		"Hi %s,\n\nYour physical therapy session is confirmed for %s from %s to %s.\n",
		displayName(c.PatientName),
		start.Format("Monday, January 2, 2006"),
		start.Format("3:04 PM"),
		end.Format("3:04 PM MST"),
	)
	if c.ZoomJoinURL != "" {
		body += fmt.Sprintf("\nJoin your telehealth session here: %s\n", c.ZoomJoinURL)
	} else {
		body += "\nThis session does not have a video link yet. One can be added later if needed.\n"
	}
	body += "\nIf you need to reschedule, please cancel at least 24 hours in advance.\n\n- MoveWell Physio"

	msg := EmailMessage{
		To:      c.PatientEmail,
		ToName:  c.PatientName,
		Subject: fmt.Sprintf("Session confirmed: %s", start.Format("Jan 2 at 3:04 PM")),
		Body:    body,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("booking confirmation email failed", "error", err, "to", c.PatientEmail)
	}
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
