package appointment

import "errors"

var (
	// ErrSlotUnavailable is returned when the requested start time fails
	// availability validation. The wrapping error carries the reason.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrForbidden is returned when the caller's role or ownership does
	// not permit the requested action.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned for a lifecycle action whose
	// source state does not allow it.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStart is returned when the booking start time is missing
	// or malformed.
	ErrInvalidStart = errors.New("start time is required")

	// ErrMissingPatientName is returned when the booking has no patient name.
	ErrMissingPatientName = errors.New("patient name is required")

	// ErrMissingContact is returned when both email and phone are missing.
	ErrMissingContact = errors.New("either email or phone is required")
)
