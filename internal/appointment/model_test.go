package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		want   bool
	}{
		{StatusPending, ActionConfirm, true},
		{StatusPending, ActionCancel, true},
		{StatusPending, ActionComplete, false},
		{StatusPending, ActionNoShow, false},
		{StatusConfirmed, ActionConfirm, false},
		{StatusConfirmed, ActionCancel, true},
		{StatusConfirmed, ActionComplete, true},
		{StatusConfirmed, ActionNoShow, true},
		{StatusCancelled, ActionConfirm, false},
		{StatusCancelled, ActionCancel, false},
		{StatusCompleted, ActionCancel, false},
		{StatusNoShow, ActionComplete, false},
		{StatusPending, ActionAddZoom, true},
		{StatusConfirmed, ActionAddZoom, true},
		{StatusCancelled, ActionAddZoom, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.action),
			"from=%s action=%s", tc.from, tc.action)
	}
}

func TestElevatedOnly(t *testing.T) {
	assert.True(t, ElevatedOnly(ActionConfirm))
	assert.True(t, ElevatedOnly(ActionComplete))
	assert.True(t, ElevatedOnly(ActionNoShow))
	assert.True(t, ElevatedOnly(ActionAddZoom))
	assert.False(t, ElevatedOnly(ActionCancel))
}

func TestBookingRequestValidate(t *testing.T) {
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	valid := BookingRequest{Start: start, PatientName: "Jordan", PatientEmail: "j@example.com"}
	assert.NoError(t, valid.Validate())

	phoneOnly := BookingRequest{Start: start, PatientName: "Jordan", PatientPhone: "+15550100"}
	assert.NoError(t, phoneOnly.Validate())

	noStart := BookingRequest{PatientName: "Jordan", PatientEmail: "j@example.com"}
	assert.ErrorIs(t, noStart.Validate(), ErrInvalidStart)

	noName := BookingRequest{Start: start, PatientEmail: "j@example.com"}
	assert.ErrorIs(t, noName.Validate(), ErrMissingPatientName)

	blankName := BookingRequest{Start: start, PatientName: "   ", PatientEmail: "j@example.com"}
	assert.ErrorIs(t, blankName.Validate(), ErrMissingPatientName)

	noContact := BookingRequest{Start: start, PatientName: "Jordan"}
	assert.ErrorIs(t, noContact.Validate(), ErrMissingContact)
}
