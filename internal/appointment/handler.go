package appointment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/movewell/physio-platform/internal/authn"
	"github.com/movewell/physio-platform/internal/schedule"
	"github.com/movewell/physio-platform/pkg/logging"
)

// Handler handles HTTP requests for availability, booking and lifecycle
// actions.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the appointment endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/availability", h.GetAvailability)
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.Book)
		r.Get("/", h.ListAppointments)
		r.Get("/{appointmentID}", h.GetAppointment)
		r.Post("/{appointmentID}/actions", h.Act)
	})
}

type availabilityResponse struct {
	OK   bool                `json:"ok"`
	Days []schedule.DaySlots `json:"days"`
}

// GetAvailability handles GET /availability?days=N&start_from=RFC3339.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	days := 5
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 31 {
			days = n
		}
	}
	var startFrom time.Time
	if v := r.URL.Query().Get("start_from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "start_from must be RFC3339")
			return
		}
		startFrom = ts
	}

	slots, err := h.svc.Availability(r.Context(), days, startFrom)
	if err != nil {
		h.logger.Error("availability query failed", "error", err)
		writeError(w, http.StatusBadGateway, "calendar provider unavailable")
		return
	}
	if slots == nil {
		slots = []schedule.DaySlots{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{OK: true, Days: slots})
}

type bookResponse struct {
	OK          bool         `json:"ok"`
	Appointment *Appointment `json:"appointment"`
	ZoomCreated bool         `json:"zoom_created"`
	Message     string       `json:"message"`
}

// Book handles POST /appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Book(r.Context(), caller, req)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{
		OK:          true,
		Appointment: result.Appointment,
		ZoomCreated: result.ZoomCreated,
		Message:     result.Message,
	})
}

func (h *Handler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStart),
		errors.Is(err, ErrMissingPatientName),
		errors.Is(err, ErrMissingContact):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("booking failed", "error", err)
		writeError(w, http.StatusBadGateway, "booking failed, please try again")
	}
}

type actionResponse struct {
	OK          bool         `json:"ok"`
	Appointment *Appointment `json:"appointment"`
}

// Act handles POST /appointments/{appointmentID}/actions.
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	caller, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AppointmentID = chi.URLParam(r, "appointmentID")

	appt, err := h.svc.Act(r.Context(), caller, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "appointment not found")
		case errors.Is(err, ErrForbidden):
			writeError(w, http.StatusForbidden, "not allowed")
		case errors.Is(err, ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("lifecycle action failed", "error", err, "action", req.Action)
			writeError(w, http.StatusInternalServerError, "action failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, actionResponse{OK: true, Appointment: appt})
}

// GetAppointment handles GET /appointments/{appointmentID}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	caller, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	appt, err := h.svc.Get(r.Context(), caller, chi.URLParam(r, "appointmentID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "appointment not found")
		case errors.Is(err, ErrForbidden):
			writeError(w, http.StatusForbidden, "not allowed")
		default:
			h.logger.Error("appointment fetch failed", "error", err)
			writeError(w, http.StatusInternalServerError, "fetch failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true, Appointment: appt})
}

type listResponse struct {
	OK           bool           `json:"ok"`
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

// ListAppointments handles GET /appointments?status=&upcoming=&limit=.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	caller, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var filter ListFilter
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = Status(v)
	}
	if v := r.URL.Query().Get("upcoming"); v == "true" || v == "1" {
		filter.UpcomingAfter = time.Now()
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.svc.List(r.Context(), caller, filter)
	if err != nil {
		h.logger.Error("appointment list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, listResponse{OK: true, Appointments: appts, Count: len(appts)})
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: msg})
}
