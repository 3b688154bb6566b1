// Package gcal is a typed client over the Google Calendar REST API,
// authenticated through a service-account JWT-bearer token exchange. Event
// operations live on a Calendar handle returned by Client.Provision, so a
// caller cannot touch events without the bootstrap having run.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/movewell/physio-platform/pkg/logging"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// SettingsStore persists the provisioned calendar id across restarts.
type SettingsStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// ClientConfig configures the calendar client.
type ClientConfig struct {
	BaseURL      string // override for tests
	CalendarID   string // statically configured id, e.g. "primary"
	OwnerEmail   string // human owner a self-provisioned calendar is shared with
	Timezone     string // IANA name used for created calendars and events
	CalendarName string // summary for a self-provisioned calendar
	HTTPClient   *http.Client
}

// Client performs authenticated calendar API calls.
type Client struct {
	baseURL      string
	calendarID   string
	ownerEmail   string
	timezone     string
	calendarName string
	tokens       TokenSource
	settings     SettingsStore
	httpClient   *http.Client
	logger       *logging.Logger

	mu  sync.Mutex
	cal *Calendar
}

// NewClient creates a calendar client. Provision must be called before any
// event operation.
func NewClient(cfg ClientConfig, tokens TokenSource, settings SettingsStore, logger *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = "Consultations"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		calendarID:   cfg.CalendarID,
		ownerEmail:   cfg.OwnerEmail,
		timezone:     cfg.Timezone,
		calendarName: cfg.CalendarName,
		tokens:       tokens,
		settings:     settings,
		httpClient:   cfg.HTTPClient,
		logger:       logger,
	}
}

// Calendar is a ready-to-use handle over one provisioned calendar resource.
type Calendar struct {
	client *Client
	ID     string
}

// ListEventsBetween returns events overlapping [start, end], expanded and
// ordered by start time.
func (cal *Calendar) ListEventsBetween(ctx context.Context, start, end time.Time) ([]Event, error) {
	params := url.Values{
		"timeMin":      {start.UTC().Format(time.RFC3339)},
		"timeMax":      {end.UTC().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {"250"},
	}
	var list eventList
	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(cal.ID), params.Encode())
	if err := cal.client.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// CreateEvent creates a timed event on the calendar.
func (cal *Calendar) CreateEvent(ctx context.Context, params EventParams) (*Event, error) {
	body := Event{
		Summary:     params.Summary,
		Description: params.Description,
		Location:    params.Location,
		Start:       EventTime{DateTime: params.Start.Format(time.RFC3339), TimeZone: cal.client.timezone},
		End:         EventTime{DateTime: params.End.Format(time.RFC3339), TimeZone: cal.client.timezone},
	}
	var created Event
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(cal.ID))
	if err := cal.client.do(ctx, http.MethodPost, path, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateEvent applies a partial update to an event.
func (cal *Calendar) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*Event, error) {
	var updated Event
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(eventID))
	if err := cal.client.do(ctx, http.MethodPatch, path, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent removes an event. An already-absent event returns (false, nil).
func (cal *Calendar) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(eventID))
	err := cal.client.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetEvent fetches an event, returning nil for a missing one.
func (cal *Calendar) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var ev Event
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(eventID))
	if err := cal.client.do(ctx, http.MethodGet, path, nil, &ev); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	// Cancelled events are tombstones, treat them as absent.
	if ev.Status == "cancelled" {
		return nil, nil
	}
	return &ev, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gcal: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("gcal: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcal: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gcal: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gcal: unmarshal response: %w", err)
		}
	}
	return nil
}
