package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/movewell/physio-platform/internal/authn"
	"github.com/movewell/physio-platform/internal/gcal"
	"github.com/movewell/physio-platform/internal/notify"
	"github.com/movewell/physio-platform/internal/observability/metrics"
	"github.com/movewell/physio-platform/internal/schedule"
	"github.com/movewell/physio-platform/internal/zoom"
	"github.com/movewell/physio-platform/pkg/logging"
)

var tracer = otel.Tracer("physio.internal.appointment")

// Calendar is the provisioned calendar surface the service drives.
// *gcal.Calendar satisfies it.
type Calendar interface {
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]gcal.Event, error)
	CreateEvent(ctx context.Context, params gcal.EventParams) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, eventID string, patch gcal.EventPatch) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, eventID string) (bool, error)
}

// CalendarProvider yields a ready-to-use calendar, provisioning one on
// first use.
type CalendarProvider interface {
	Provision(ctx context.Context) (Calendar, error)
}

// VideoGateway creates meetings. *zoom.Client satisfies it.
type VideoGateway interface {
	CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (*zoom.Meeting, error)
}

// Notifier sends booking confirmations. *notify.Service satisfies it.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, c notify.BookingConfirmation)
}

// BookingResult is the outcome of a successful booking.
type BookingResult struct {
	Appointment *Appointment `json:"appointment"`
	ZoomCreated bool         `json:"zoom_created"`
	Message     string       `json:"message"`
}

// Service orchestrates booking and lifecycle transitions across the
// calendar provider, the video provider and the appointment store.
type Service struct {
	repo      Repository
	calendars CalendarProvider
	video     VideoGateway
	engine    *schedule.Engine
	notifier  Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	calendars CalendarProvider,
	video VideoGateway,
	engine *schedule.Engine,
	notifier Notifier,
	m *metrics.BookingMetrics,
	logger *logging.Logger,
) *Service {
	if repo == nil {
		panic("appointment: repository required")
	}
	if calendars == nil {
		panic("appointment: calendar provider required")
	}
	if engine == nil {
		panic("appointment: schedule engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		calendars: calendars,
		video:     video,
		engine:    engine,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Availability returns open slots per business day for the next `days`
// days, starting at startFrom (defaults to now).
func (s *Service) Availability(ctx context.Context, days int, startFrom time.Time) ([]schedule.DaySlots, error) {
	ctx, span := tracer.Start(ctx, "appointment.availability")
	defer span.End()

	if days <= 0 {
		days = 5
	}
	if startFrom.IsZero() {
		startFrom = s.now()
	}

	cal, err := s.calendars.Provision(ctx)
	if err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		span.RecordError(err)
		return nil, fmt.Errorf("appointment: calendar unavailable: %w", err)
	}

	busy, err := s.fetchBusy(ctx, cal, startFrom, startFrom.AddDate(0, 0, days))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slots := s.engine.GenerateSlotsByDay(days, startFrom, busy)
	span.SetAttributes(attribute.Int("physio.days_with_slots", len(slots)))
	return slots, nil
}

// Book runs the booking saga: validate the slot against fresh busy data,
// create a meeting (best-effort), create the calendar event (fatal on
// failure), persist the appointment, and roll the event back if the
// store write fails.
func (s *Service) Book(ctx context.Context, caller authn.Identity, req BookingRequest) (*BookingResult, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(attribute.String("physio.user_id", caller.UserID))

	started := s.now()
	defer func() {
		s.metrics.ObserveSagaDuration(s.now().Sub(started).Seconds())
	}()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	cal, err := s.calendars.Provision(ctx)
	if err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, fmt.Errorf("appointment: calendar unavailable: %w", err)
	}

	start := req.Start
	busy, err := s.fetchBusy(ctx, cal, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	if err != nil {
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, err
	}

	if decision := s.engine.IsSlotAvailable(start, busy); !decision.OK {
		s.metrics.ObserveBooking("conflict")
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, decision.Reason)
	}

	autoConfirmed := s.engine.Rules().IsWithinBusinessHours(start)
	status := StatusPending
	if autoConfirmed {
		status = StatusConfirmed
	}

	duration := s.engine.DurationMinutes()
	end := start.Add(time.Duration(duration) * time.Minute)

	// Video call comes first so the calendar event can embed the link.
	// Failures here are non-fatal.
	var meeting *zoom.Meeting
	if s.video != nil {
		meeting, err = s.video.CreateMeeting(ctx, "Physical Therapy Session - "+req.PatientName, start, duration)
		if err != nil {
			s.metrics.ObserveProviderCall("zoom", "error")
			s.logger.Warn("zoom meeting creation failed, booking continues without a link",
				"error", err, "patient", req.PatientName)
			meeting = nil
		} else {
			s.metrics.ObserveProviderCall("zoom", "ok")
		}
	}

	// The read-validate-write sequence is not atomic against the remote
	// calendar, so re-validate on a fresh read just before committing.
	busy, err = s.fetchBusy(ctx, cal, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	if err != nil {
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, err
	}
	if decision := s.engine.IsSlotAvailable(start, busy); !decision.OK {
		s.metrics.ObserveBooking("conflict")
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, decision.Reason)
	}

	event, err := cal.CreateEvent(ctx, gcal.EventParams{
		Summary:     "Physical Therapy Session - " + req.PatientName,
		Description: s.eventDescription(caller, req, meeting),
		Location:    meetingLocation(meeting),
		Start:       start,
		End:         end,
	})
	if err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, fmt.Errorf("appointment: calendar event creation failed: %w", err)
	}
	s.metrics.ObserveProviderCall("gcal", "ok")

	appt := &Appointment{
		ID:                uuid.NewString(),
		UserID:            caller.UserID,
		PatientName:       req.PatientName,
		PatientEmail:      req.PatientEmail,
		PatientPhone:      req.PatientPhone,
		StartsAt:          start,
		EndsAt:            end,
		DurationMinutes:   duration,
		CalendarEventID:   event.ID,
		CalendarEventLink: event.HTMLLink,
		Status:            status,
		AutoConfirmed:     autoConfirmed,
		Notes:             req.Notes,
		CreatedAt:         s.now(),
		UpdatedAt:         s.now(),
	}
	if autoConfirmed {
		now := s.now()
		appt.ConfirmedAt = &now
		appt.ConfirmedBy = "system"
	}
	if meeting != nil {
		appt.MeetingID = meeting.ID
		appt.MeetingURL = meeting.JoinURL
		appt.MeetingPasscode = meeting.Passcode
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		s.compensate(ctx, cal, event.ID)
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, fmt.Errorf("appointment: store write failed: %w", err)
	}

	s.metrics.ObserveBooking(string(status))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"user_id", caller.UserID,
		"starts_at", start,
		"status", status,
		"zoom_created", meeting != nil,
	)

	if s.notifier != nil {
		s.notifier.SendBookingConfirmation(ctx, notify.BookingConfirmation{
			PatientEmail: req.PatientEmail,
			PatientName:  req.PatientName,
			StartsAt:     start,
			EndsAt:       end,
			Location:     s.engine.Rules().Location,
			ZoomJoinURL:  appt.MeetingURL,
		})
	}

	return &BookingResult{
		Appointment: appt,
		ZoomCreated: meeting != nil,
		Message:     bookingMessage(status, meeting != nil),
	}, nil
}

// compensate deletes the calendar event created earlier in the saga.
// Attempted exactly once on a fresh context so a cancelled request
// cannot skip it.
func (s *Service) compensate(ctx context.Context, cal Calendar, eventID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := cal.DeleteEvent(cleanupCtx, eventID); err != nil {
		s.metrics.ObserveCompensation("failure")
		s.logger.Error("compensating calendar delete failed, orphaned event left behind",
			"event_id", eventID, "error", err)
		return
	}
	s.metrics.ObserveCompensation("success")
	s.logger.Info("calendar event rolled back after store failure", "event_id", eventID)
}

func (s *Service) fetchBusy(ctx context.Context, cal Calendar, start, end time.Time) ([]schedule.BusyInterval, error) {
	events, err := cal.ListEventsBetween(ctx, start, end)
	if err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		return nil, fmt.Errorf("appointment: busy lookup failed: %w", err)
	}
	s.metrics.ObserveProviderCall("gcal", "ok")

	busy := make([]schedule.BusyInterval, 0, len(events))
	for _, ev := range events {
		evStart, evEnd := ev.Start.Time(), ev.End.Time()
		if evStart.IsZero() || evEnd.IsZero() {
			continue // all-day or malformed events don't block slots
		}
		busy = append(busy, schedule.BusyInterval{
			Start:      evStart,
			End:        evEnd,
			ExternalID: ev.ID,
			Label:      ev.Summary,
		})
	}
	return busy, nil
}

func (s *Service) eventDescription(caller authn.Identity, req BookingRequest, meeting *zoom.Meeting) string {
	desc := "Patient: " + req.PatientName
	if req.Notes != "" {
		desc += "\nNotes: " + req.Notes
	}
	if meeting != nil {
		desc += "\n\nJoin Zoom: " + meeting.JoinURL
		if meeting.Passcode != "" {
			desc += "\nPasscode: " + meeting.Passcode
		}
	}
	tags := map[string]string{
		gcal.TagType:    "physio_session",
		gcal.TagPatient: req.PatientName,
		gcal.TagPhone:   req.PatientPhone,
		gcal.TagUserID:  caller.UserID,
	}
	return desc + "\n\n" + gcal.BuildTagBlock(tags)
}

func meetingLocation(meeting *zoom.Meeting) string {
	if meeting == nil {
		return ""
	}
	return meeting.JoinURL
}

func bookingMessage(status Status, zoomCreated bool) string {
	switch {
	case status == StatusConfirmed && zoomCreated:
		return "Your session is confirmed. The Zoom link is in your calendar invite."
	case status == StatusConfirmed:
		return "Your session is confirmed, but no Zoom link yet. One will be added before your session."
	case zoomCreated:
		return "Your session request is pending confirmation. The Zoom link is ready for when it is confirmed."
	default:
		return "Your session request is pending confirmation, and no Zoom link yet."
	}
}

// Act applies a lifecycle action to an appointment after enforcing role
// and ownership rules and the state machine.
func (s *Service) Act(ctx context.Context, caller authn.Identity, req ActionRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.act")
	defer span.End()
	span.SetAttributes(
		attribute.String("physio.action", string(req.Action)),
		attribute.String("physio.appointment_id", req.AppointmentID),
	)

	appt, err := s.repo.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if ElevatedOnly(req.Action) {
		if !caller.Elevated() {
			return nil, ErrForbidden
		}
	} else if !caller.Elevated() && !appt.OwnedBy(caller) {
		return nil, ErrForbidden
	}

	if !CanTransition(appt.Status, req.Action) {
		return nil, fmt.Errorf("%w: cannot %s an appointment in state %s",
			ErrInvalidTransition, req.Action, appt.Status)
	}

	switch req.Action {
	case ActionConfirm:
		now := s.now()
		appt.Status = StatusConfirmed
		appt.ConfirmedAt = &now
		appt.ConfirmedBy = caller.UserID
		if req.PTNotes != "" {
			appt.PTNotes = req.PTNotes
		}
		s.updateEventDetails(ctx, appt)

	case ActionCancel:
		appt.Status = StatusCancelled
		appt.CancellationReason = req.CancellationReason
		s.deleteEvent(ctx, appt)

	case ActionComplete:
		appt.Status = StatusCompleted
		if req.PTNotes != "" {
			appt.PTNotes = req.PTNotes
		}

	case ActionNoShow:
		appt.Status = StatusNoShow
		if req.PTNotes != "" {
			appt.PTNotes = req.PTNotes
		}

	case ActionAddZoom:
		appt.MeetingID = req.MeetingID
		appt.MeetingURL = req.MeetingURL
		appt.MeetingPasscode = req.MeetingPasscode
		s.updateEventDetails(ctx, appt)

	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, req.Action)
	}

	appt.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment transitioned",
		"appointment_id", appt.ID,
		"action", req.Action,
		"status", appt.Status,
		"by", caller.UserID,
	)
	return appt, nil
}

// updateEventDetails pushes final meeting details onto the calendar
// event. The record is the source of truth, so provider failures here
// are logged, not fatal.
func (s *Service) updateEventDetails(ctx context.Context, appt *Appointment) {
	if appt.CalendarEventID == "" {
		return
	}
	cal, err := s.calendars.Provision(ctx)
	if err != nil {
		s.logger.Warn("calendar unavailable for event update", "error", err, "appointment_id", appt.ID)
		return
	}

	summary := "Physical Therapy Session - " + appt.PatientName
	desc := "Patient: " + appt.PatientName
	if appt.MeetingURL != "" {
		desc += "\n\nJoin Zoom: " + appt.MeetingURL
		if appt.MeetingPasscode != "" {
			desc += "\nPasscode: " + appt.MeetingPasscode
		}
	}
	desc += "\n\n" + gcal.BuildTagBlock(map[string]string{
		gcal.TagType:    "physio_session",
		gcal.TagPatient: appt.PatientName,
		gcal.TagPhone:   appt.PatientPhone,
		gcal.TagUserID:  appt.UserID,
	})
	location := appt.MeetingURL

	if _, err := cal.UpdateEvent(ctx, appt.CalendarEventID, gcal.EventPatch{
		Summary:     &summary,
		Description: &desc,
		Location:    &location,
	}); err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		s.logger.Warn("calendar event update failed", "error", err, "event_id", appt.CalendarEventID)
		return
	}
	s.metrics.ObserveProviderCall("gcal", "ok")
}

// deleteEvent removes the calendar event on cancellation. Already-gone
// counts as success; other provider errors are logged and the
// cancellation proceeds.
func (s *Service) deleteEvent(ctx context.Context, appt *Appointment) {
	if appt.CalendarEventID == "" {
		return
	}
	cal, err := s.calendars.Provision(ctx)
	if err != nil {
		s.logger.Warn("calendar unavailable for event delete", "error", err, "appointment_id", appt.ID)
		return
	}
	if _, err := cal.DeleteEvent(ctx, appt.CalendarEventID); err != nil {
		s.metrics.ObserveProviderCall("gcal", "error")
		s.logger.Warn("calendar event delete failed on cancellation", "error", err, "event_id", appt.CalendarEventID)
		return
	}
	s.metrics.ObserveProviderCall("gcal", "ok")
}

// Get loads one appointment, enforcing ownership for ordinary callers.
func (s *Service) Get(ctx context.Context, caller authn.Identity, id string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Elevated() && !appt.OwnedBy(caller) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// List returns appointments visible to the caller. Elevated callers see
// every row; ordinary callers only their own.
func (s *Service) List(ctx context.Context, caller authn.Identity, filter ListFilter) ([]*Appointment, error) {
	if !caller.Elevated() {
		filter.UserID = caller.UserID
	}
	return s.repo.List(ctx, filter)
}
