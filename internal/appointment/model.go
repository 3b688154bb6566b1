package appointment

import (
	"strings"
	"time"

	"github.com/movewell/physio-platform/internal/authn"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Action is a lifecycle transition requested by a caller.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
	ActionAddZoom  Action = "add_zoom"
)

// transitions maps each action to its permitted source states. Cancelled,
// completed and no_show are terminal: no action lists them as a source.
var transitions = map[Action][]Status{
	ActionConfirm:  {StatusPending},
	ActionCancel:   {StatusPending, StatusConfirmed},
	ActionComplete: {StatusConfirmed},
	ActionNoShow:   {StatusConfirmed},
}

// targets maps each status-changing action to its destination state.
var targets = map[Action]Status{
	ActionConfirm:  StatusConfirmed,
	ActionCancel:   StatusCancelled,
	ActionComplete: StatusCompleted,
	ActionNoShow:   StatusNoShow,
}

// CanTransition reports whether the action is valid from the given state.
// ActionAddZoom never changes status and is allowed from any non-terminal
// state.
func CanTransition(from Status, action Action) bool {
	if action == ActionAddZoom {
		return from == StatusPending || from == StatusConfirmed
	}
	sources, ok := transitions[action]
	if !ok {
		return false
	}
	for _, s := range sources {
		if s == from {
			return true
		}
	}
	return false
}

// ElevatedOnly reports whether the action requires the elevated role.
// Cancel is also open to the appointment's own creator.
func ElevatedOnly(action Action) bool {
	return action != ActionCancel
}

// Appointment is the durable booking record. Rows are never deleted;
// cancellation is a status change.
type Appointment struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	PatientName        string     `json:"patient_name"`
	PatientEmail       string     `json:"patient_email,omitempty"`
	PatientPhone       string     `json:"patient_phone,omitempty"`
	StartsAt           time.Time  `json:"starts_at"`
	EndsAt             time.Time  `json:"ends_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	CalendarEventID    string     `json:"calendar_event_id,omitempty"`
	CalendarEventLink  string     `json:"calendar_event_link,omitempty"`
	MeetingID          string     `json:"meeting_id,omitempty"`
	MeetingURL         string     `json:"meeting_url,omitempty"`
	MeetingPasscode    string     `json:"meeting_passcode,omitempty"`
	Status             Status     `json:"status"`
	AutoConfirmed      bool       `json:"auto_confirmed"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy        string     `json:"confirmed_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	PTNotes            string     `json:"pt_notes,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// OwnedBy reports whether the identity created this appointment.
func (a *Appointment) OwnedBy(id authn.Identity) bool {
	return a.UserID != "" && a.UserID == id.UserID
}

// BookingRequest is the inbound payload for booking a session.
type BookingRequest struct {
	Start        time.Time `json:"start"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email,omitempty"`
	PatientPhone string    `json:"patient_phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// Validate checks the request's required fields.
func (r *BookingRequest) Validate() error {
	if r.Start.IsZero() {
		return ErrInvalidStart
	}
	if strings.TrimSpace(r.PatientName) == "" {
		return ErrMissingPatientName
	}
	if r.PatientEmail == "" && r.PatientPhone == "" {
		return ErrMissingContact
	}
	return nil
}

// ActionRequest is the inbound payload for a lifecycle action.
type ActionRequest struct {
	Action             Action `json:"action"`
	AppointmentID      string `json:"appointment_id"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	PTNotes            string `json:"pt_notes,omitempty"`
	MeetingID          string `json:"meeting_id,omitempty"`
	MeetingURL         string `json:"meeting_url,omitempty"`
	MeetingPasscode    string `json:"meeting_passcode,omitempty"`
}
