package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movewell/physio-platform/internal/authn"
	"github.com/movewell/physio-platform/internal/gcal"
	"github.com/movewell/physio-platform/internal/notify"
	"github.com/movewell/physio-platform/internal/schedule"
	"github.com/movewell/physio-platform/internal/zoom"
	"github.com/movewell/physio-platform/pkg/logging"
)

type fakeCalendar struct {
	events       []gcal.Event
	listErr      error
	listCalls    int
	created      []gcal.EventParams
	createErr    error
	updated      []gcal.EventPatch
	updateErr    error
	deleted      []string
	deleteErr    error
	onSecondList []gcal.Event
}

func (f *fakeCalendar) ListEventsBetween(ctx context.Context, start, end time.Time) ([]gcal.Event, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listCalls > 1 && f.onSecondList != nil {
		return f.onSecondList, nil
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, params gcal.EventParams) (*gcal.Event, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	return &gcal.Event{
		ID:       "evt-1",
		HTMLLink: "https://calendar.google.com/event?eid=evt-1",
		Summary:  params.Summary,
	}, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, eventID string, patch gcal.EventPatch) (*gcal.Event, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, patch)
	return &gcal.Event{ID: eventID}, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return true, nil
}

type fakeProvider struct {
	cal *fakeCalendar
	err error
}

func (f *fakeProvider) Provision(ctx context.Context) (Calendar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cal, nil
}

type fakeVideo struct {
	meeting *zoom.Meeting
	err     error
	calls   int
}

func (f *fakeVideo) CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (*zoom.Meeting, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.meeting, nil
}

type captureNotifier struct {
	sent []notify.BookingConfirmation
}

func (c *captureNotifier) SendBookingConfirmation(ctx context.Context, conf notify.BookingConfirmation) {
	c.sent = append(c.sent, conf)
}

type failingRepo struct {
	*InMemoryRepository
	createErr error
}

func (f *failingRepo) Create(ctx context.Context, appt *Appointment) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.InMemoryRepository.Create(ctx, appt)
}

func nyLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// monday10 is a Monday at 10:00 Eastern, inside business hours.
func monday10(t *testing.T) time.Time {
	return time.Date(2026, 3, 2, 10, 0, 0, 0, nyLoc(t))
}

func newTestService(t *testing.T, repo Repository, cal *fakeCalendar, video VideoGateway, notifier Notifier) *Service {
	t.Helper()
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	engine := schedule.NewEngine(schedule.DefaultRules(nyLoc(t)), 30, 5, 15)
	svc := NewService(repo, &fakeProvider{cal: cal}, video, engine, notifier, nil, logging.New("error"))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func busyAt(start time.Time, durationMinutes int) []gcal.Event {
	return []gcal.Event{{
		ID:    "busy-1",
		Start: gcal.EventTime{DateTime: start.Format(time.RFC3339)},
		End:   gcal.EventTime{DateTime: start.Add(time.Duration(durationMinutes) * time.Minute).Format(time.RFC3339)},
	}}
}

func patientIdentity() authn.Identity {
	return authn.Identity{UserID: "user-1", Role: authn.RolePatient}
}

func ptIdentity() authn.Identity {
	return authn.Identity{UserID: "pt-1", Role: authn.RolePT}
}

func validRequest(t *testing.T) BookingRequest {
	return BookingRequest{
		Start:        monday10(t),
		PatientName:  "Jordan Lee",
		PatientEmail: "jordan@example.com",
		PatientPhone: "+15550100",
	}
}

func TestBook_Success(t *testing.T) {
	cal := &fakeCalendar{}
	video := &fakeVideo{meeting: &zoom.Meeting{ID: "987", JoinURL: "https://zoom.us/j/987", Passcode: "abc"}}
	notifier := &captureNotifier{}
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, cal, video, notifier)

	result, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.NoError(t, err)

	appt := result.Appointment
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.True(t, appt.AutoConfirmed)
	assert.NotNil(t, appt.ConfirmedAt)
	assert.Equal(t, "system", appt.ConfirmedBy)
	assert.Equal(t, "evt-1", appt.CalendarEventID)
	assert.NotEmpty(t, appt.CalendarEventLink)
	assert.Equal(t, "987", appt.MeetingID)
	assert.Equal(t, "https://zoom.us/j/987", appt.MeetingURL)
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.True(t, result.ZoomCreated)
	assert.Contains(t, result.Message, "confirmed")
	assert.NotContains(t, result.Message, "no Zoom link")

	// Event embeds the join link and the tag block.
	require.Len(t, cal.created, 1)
	assert.Contains(t, cal.created[0].Description, "https://zoom.us/j/987")
	assert.Contains(t, cal.created[0].Description, "PATIENT=Jordan Lee")
	assert.Contains(t, cal.created[0].Description, "USER_ID=user-1")
	assert.Equal(t, "https://zoom.us/j/987", cal.created[0].Location)

	// Persisted and notified.
	stored, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "jordan@example.com", notifier.sent[0].PatientEmail)
}

func TestBook_ZoomFailureIsNonFatal(t *testing.T) {
	cal := &fakeCalendar{}
	video := &fakeVideo{err: zoom.ErrMeetingFailed}
	svc := newTestService(t, nil, cal, video, nil)

	result, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.NoError(t, err)

	assert.False(t, result.ZoomCreated)
	assert.Empty(t, result.Appointment.MeetingURL)
	assert.Contains(t, result.Message, "no Zoom link")
	require.Len(t, cal.created, 1)
	assert.NotContains(t, cal.created[0].Description, "zoom.us")
	assert.Empty(t, cal.created[0].Location)
}

func TestBook_NoVideoGateway(t *testing.T) {
	cal := &fakeCalendar{}
	svc := newTestService(t, nil, cal, nil, nil)

	result, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.NoError(t, err)
	assert.False(t, result.ZoomCreated)
}

func TestBook_SlotConflict(t *testing.T) {
	start := monday10(t)
	cal := &fakeCalendar{events: []gcal.Event{{
		ID:    "busy-1",
		Start: gcal.EventTime{DateTime: start.Format(time.RFC3339)},
		End:   gcal.EventTime{DateTime: start.Add(30 * time.Minute).Format(time.RFC3339)},
	}}}
	video := &fakeVideo{}
	svc := newTestService(t, nil, cal, video, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "conflicts with an existing session")
	// Conflict detected before any provider writes.
	assert.Zero(t, video.calls)
	assert.Empty(t, cal.created)
}

func TestBook_OutsideBusinessHours(t *testing.T) {
	cal := &fakeCalendar{}
	svc := newTestService(t, nil, cal, nil, nil)

	req := validRequest(t)
	req.Start = time.Date(2026, 3, 7, 10, 0, 0, 0, nyLoc(t)) // Saturday
	_, err := svc.Book(context.Background(), patientIdentity(), req)
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "outside business hours")
}

func TestBook_OffGridStart(t *testing.T) {
	cal := &fakeCalendar{}
	svc := newTestService(t, nil, cal, nil, nil)

	req := validRequest(t)
	req.Start = req.Start.Add(7 * time.Minute)
	_, err := svc.Book(context.Background(), patientIdentity(), req)
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "15-minute grid")
}

func TestBook_RevalidationCatchesRace(t *testing.T) {
	start := monday10(t)
	// Calendar is clear on the first read but a competing booking lands
	// before the second read.
	cal := &fakeCalendar{
		onSecondList: []gcal.Event{{
			ID:    "race-1",
			Start: gcal.EventTime{DateTime: start.Format(time.RFC3339)},
			End:   gcal.EventTime{DateTime: start.Add(30 * time.Minute).Format(time.RFC3339)},
		}},
	}
	video := &fakeVideo{meeting: &zoom.Meeting{ID: "1", JoinURL: "https://zoom.us/j/1"}}
	svc := newTestService(t, nil, cal, video, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Empty(t, cal.created)
	assert.Equal(t, 2, cal.listCalls)
}

func TestBook_CalendarCreateIsFatal(t *testing.T) {
	cal := &fakeCalendar{createErr: errors.New("boom")}
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, cal, nil, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotUnavailable)

	// Nothing persisted.
	appts, err := repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestBook_StoreFailureCompensates(t *testing.T) {
	cal := &fakeCalendar{}
	repo := &failingRepo{InMemoryRepository: NewInMemoryRepository(), createErr: errors.New("db down")}
	svc := newTestService(t, repo, cal, nil, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store write failed")

	// The calendar event was rolled back.
	require.Len(t, cal.deleted, 1)
	assert.Equal(t, "evt-1", cal.deleted[0])
}

func TestBook_CompensationFailureStillFails(t *testing.T) {
	cal := &fakeCalendar{deleteErr: errors.New("provider down")}
	repo := &failingRepo{InMemoryRepository: NewInMemoryRepository(), createErr: errors.New("db down")}
	svc := newTestService(t, repo, cal, nil, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store write failed")
}

func TestBook_ProvisionFailure(t *testing.T) {
	engine := schedule.NewEngine(schedule.DefaultRules(nyLoc(t)), 30, 5, 15)
	svc := NewService(NewInMemoryRepository(), &fakeProvider{err: errors.New("no calendar access")},
		nil, engine, nil, nil, logging.New("error"))

	_, err := svc.Book(context.Background(), patientIdentity(), validRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar unavailable")
}

func TestBook_ValidationError(t *testing.T) {
	svc := newTestService(t, nil, &fakeCalendar{}, nil, nil)

	_, err := svc.Book(context.Background(), patientIdentity(), BookingRequest{})
	require.ErrorIs(t, err, ErrInvalidStart)
}

func TestAvailability(t *testing.T) {
	start := monday10(t)
	cal := &fakeCalendar{events: []gcal.Event{{
		ID:    "busy-1",
		Start: gcal.EventTime{DateTime: start.Format(time.RFC3339)},
		End:   gcal.EventTime{DateTime: start.Add(30 * time.Minute).Format(time.RFC3339)},
	}}}
	svc := newTestService(t, nil, cal, nil, nil)

	days, err := svc.Availability(context.Background(), 1, start.Truncate(24*time.Hour).Add(14*time.Hour)) // Monday 09:00 ET
	require.NoError(t, err)
	require.NotEmpty(t, days)

	for _, d := range days {
		for _, slot := range d.Slots {
			// 10:00 and the buffered tail are blocked.
			assert.NotEqual(t, start, slot.Start)
		}
	}
}

func seedAppointment(t *testing.T, repo Repository, status Status) *Appointment {
	t.Helper()
	appt := &Appointment{
		ID:              "appt-1",
		UserID:          "user-1",
		PatientName:     "Jordan Lee",
		PatientPhone:    "+15550100",
		StartsAt:        monday10(t),
		EndsAt:          monday10(t).Add(30 * time.Minute),
		DurationMinutes: 30,
		CalendarEventID: "evt-1",
		Status:          status,
	}
	require.NoError(t, repo.Create(context.Background(), appt))
	return appt
}

func TestAct_Confirm(t *testing.T) {
	repo := NewInMemoryRepository()
	cal := &fakeCalendar{}
	svc := newTestService(t, repo, cal, nil, nil)
	seedAppointment(t, repo, StatusPending)

	appt, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
		Action:        ActionConfirm,
		AppointmentID: "appt-1",
		PTNotes:       "cleared for telehealth",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.NotNil(t, appt.ConfirmedAt)
	assert.Equal(t, "pt-1", appt.ConfirmedBy)
	assert.Equal(t, "cleared for telehealth", appt.PTNotes)
	// Calendar event got the final details.
	require.Len(t, cal.updated, 1)
}

func TestAct_ConfirmRequiresElevatedRole(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)
	seedAppointment(t, repo, StatusPending)

	_, err := svc.Act(context.Background(), patientIdentity(), ActionRequest{
		Action:        ActionConfirm,
		AppointmentID: "appt-1",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAct_CancelByOwner(t *testing.T) {
	repo := NewInMemoryRepository()
	cal := &fakeCalendar{}
	svc := newTestService(t, repo, cal, nil, nil)
	seedAppointment(t, repo, StatusConfirmed)

	appt, err := svc.Act(context.Background(), patientIdentity(), ActionRequest{
		Action:             ActionCancel,
		AppointmentID:      "appt-1",
		CancellationReason: "schedule conflict",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	assert.Equal(t, "schedule conflict", appt.CancellationReason)
	assert.Equal(t, []string{"evt-1"}, cal.deleted)
}

func TestAct_CancelByStrangerForbidden(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)
	seedAppointment(t, repo, StatusConfirmed)

	stranger := authn.Identity{UserID: "user-2", Role: authn.RolePatient}
	_, err := svc.Act(context.Background(), stranger, ActionRequest{
		Action:        ActionCancel,
		AppointmentID: "appt-1",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAct_CancelAlreadyGoneEventSucceeds(t *testing.T) {
	repo := NewInMemoryRepository()
	// DeleteEvent returning an error is logged, not fatal.
	cal := &fakeCalendar{deleteErr: errors.New("gone")}
	svc := newTestService(t, repo, cal, nil, nil)
	seedAppointment(t, repo, StatusConfirmed)

	appt, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
		Action:        ActionCancel,
		AppointmentID: "appt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
}

func TestAct_CompleteAndNoShow(t *testing.T) {
	for _, tc := range []struct {
		action Action
		want   Status
	}{
		{ActionComplete, StatusCompleted},
		{ActionNoShow, StatusNoShow},
	} {
		repo := NewInMemoryRepository()
		svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)
		seedAppointment(t, repo, StatusConfirmed)

		appt, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
			Action:        tc.action,
			AppointmentID: "appt-1",
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, appt.Status)
	}
}

func TestAct_InvalidTransition(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)
	seedAppointment(t, repo, StatusCancelled)

	_, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
		Action:        ActionComplete,
		AppointmentID: "appt-1",
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAct_AddZoom(t *testing.T) {
	repo := NewInMemoryRepository()
	cal := &fakeCalendar{}
	svc := newTestService(t, repo, cal, nil, nil)
	seedAppointment(t, repo, StatusConfirmed)

	appt, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
		Action:          ActionAddZoom,
		AppointmentID:   "appt-1",
		MeetingID:       "555",
		MeetingURL:      "https://zoom.us/j/555",
		MeetingPasscode: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, "https://zoom.us/j/555", appt.MeetingURL)
	require.Len(t, cal.updated, 1)
	require.NotNil(t, cal.updated[0].Location)
	assert.Equal(t, "https://zoom.us/j/555", *cal.updated[0].Location)
}

func TestAct_NotFound(t *testing.T) {
	svc := newTestService(t, nil, &fakeCalendar{}, nil, nil)

	_, err := svc.Act(context.Background(), ptIdentity(), ActionRequest{
		Action:        ActionCancel,
		AppointmentID: "missing",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_RoleScoping(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)

	mine := seedAppointment(t, repo, StatusConfirmed)
	other := &Appointment{
		ID:       "appt-2",
		UserID:   "user-2",
		StartsAt: monday10(t).Add(time.Hour),
		Status:   StatusConfirmed,
	}
	require.NoError(t, repo.Create(context.Background(), other))

	own, err := svc.List(context.Background(), patientIdentity(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	all, err := svc.List(context.Background(), ptIdentity(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGet_OwnershipEnforced(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(t, repo, &fakeCalendar{}, nil, nil)
	seedAppointment(t, repo, StatusConfirmed)

	_, err := svc.Get(context.Background(), patientIdentity(), "appt-1")
	require.NoError(t, err)

	stranger := authn.Identity{UserID: "user-2", Role: authn.RolePatient}
	_, err = svc.Get(context.Background(), stranger, "appt-1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(context.Background(), ptIdentity(), "appt-1")
	assert.NoError(t, err)
}
