package gcal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/movewell/physio-platform/internal/settings"
)

// Provision guarantees a usable calendar resource and returns a handle to
// it. The result is memoized for the process lifetime; a failed bootstrap is
// not cached, so a later call retries.
//
// Order of preference: a previously persisted calendar id, then the
// statically configured one. When neither is readable, a new calendar is
// created under the service account's own identity, shared with the
// configured owner (best-effort), and its id persisted for subsequent runs.
func (c *Client) Provision(ctx context.Context) (*Calendar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cal != nil {
		return c.cal, nil
	}

	calendarID := c.calendarID
	if c.settings != nil {
		persisted, err := c.settings.Get(ctx, settings.KeyCalendarID)
		if err != nil {
			return nil, fmt.Errorf("gcal: read persisted calendar id: %w", err)
		}
		if persisted != "" && persisted != calendarID {
			c.logger.Info("using previously provisioned calendar", "calendar_id", persisted)
			calendarID = persisted
		}
	}

	if calendarID != "" {
		if err := c.probe(ctx, calendarID); err == nil {
			c.cal = &Calendar{client: c, ID: calendarID}
			return c.cal, nil
		} else {
			c.logger.Warn("calendar not accessible, provisioning a new one",
				"calendar_id", calendarID, "error", err)
		}
	}

	created, err := c.createCalendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcal: cannot create calendar (share the configured calendar with the service account, or grant it permission to create calendars): %w", err)
	}
	c.logger.Info("provisioned new calendar", "calendar_id", created)

	if c.ownerEmail != "" {
		if err := c.shareCalendar(ctx, created, c.ownerEmail); err != nil {
			// Sharing is a convenience for the human owner, not a requirement.
			c.logger.Warn("failed to share provisioned calendar", "owner", c.ownerEmail, "error", err)
		}
	}

	if c.settings != nil {
		if err := c.settings.Set(ctx, settings.KeyCalendarID, created); err != nil {
			c.logger.Warn("failed to persist provisioned calendar id", "error", err)
		}
	}

	c.cal = &Calendar{client: c, ID: created}
	return c.cal, nil
}

// probe performs the cheapest possible authenticated read against a calendar.
func (c *Client) probe(ctx context.Context, calendarID string) error {
	now := time.Now().UTC()
	params := url.Values{
		"timeMin":    {now.Format(time.RFC3339)},
		"timeMax":    {now.Add(24 * time.Hour).Format(time.RFC3339)},
		"maxResults": {"1"},
	}
	var list eventList
	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(calendarID), params.Encode())
	return c.do(ctx, http.MethodGet, path, nil, &list)
}

func (c *Client) createCalendar(ctx context.Context) (string, error) {
	body := calendarResource{
		Summary:  c.calendarName,
		TimeZone: c.timezone,
	}
	var created calendarResource
	if err := c.do(ctx, http.MethodPost, "/calendars", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("gcal: calendar create returned empty id")
	}
	return created.ID, nil
}

func (c *Client) shareCalendar(ctx context.Context, calendarID, email string) error {
	rule := aclRule{
		Role:  "owner",
		Scope: aclScope{Type: "user", Value: email},
	}
	path := fmt.Sprintf("/calendars/%s/acl", url.PathEscape(calendarID))
	return c.do(ctx, http.MethodPost, path, rule, nil)
}
