package gcal

import (
	"fmt"
	"time"
)

// Event mirrors the calendar provider's event resource, limited to the
// fields the engine reads and writes.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// EventTime is the provider's dateTime wrapper.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time parses the wrapped RFC3339 instant. Zero time on parse failure.
func (et EventTime) Time() time.Time {
	t, err := time.Parse(time.RFC3339, et.DateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EventParams describes a new event to create.
type EventParams struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// EventPatch carries a partial event update. Nil fields are left untouched.
type EventPatch struct {
	Summary     *string `json:"summary,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
}

type eventList struct {
	Items []Event `json:"items"`
}

type calendarResource struct {
	ID       string `json:"id,omitempty"`
	Summary  string `json:"summary"`
	TimeZone string `json:"timeZone,omitempty"`
}

type aclRule struct {
	Role  string   `json:"role"`
	Scope aclScope `json:"scope"`
}

type aclScope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// APIError is a non-2xx response from the calendar provider, carrying the
// provider's error body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("gcal: status %d: %s", e.StatusCode, body)
}
