// Package zoom creates scheduled meetings through Zoom's server-to-server
// OAuth flow. Meeting creation is always best-effort from the booking
// orchestrator's perspective: every failure here is catchable and non-fatal.
package zoom

import (
	"bytes"
	"context"
	"encoding/base64"
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

const (
	defaultTokenURL = "https://zoom.us/oauth/token"
	defaultAPIURL   = "https://api.zoom.us/v2"

	// Cached tokens are renewed this long before their declared expiry.
	tokenSafetyMargin = 60 * time.Second

	// Zoom's documented default when expires_in is absent.
	defaultExpirySeconds = 3600
)

var (
	// ErrCredentials marks a failed token exchange.
	ErrCredentials = errors.New("credential exchange failed")
	// ErrMeetingFailed marks any meeting-creation failure; callers treat it
	// as a degraded booking, not an aborted one.
	ErrMeetingFailed = errors.New("meeting creation failed")
)

// Meeting is a created Zoom meeting.
type Meeting struct {
	ID       string
	JoinURL  string
	Passcode string
}

// Config configures the Zoom client.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	TokenURL     string // override for tests
	APIURL       string // override for tests
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Client performs authenticated Zoom API calls with a cached, auto-renewing
// access token obtained through the account-level client-credentials grant.
type Client struct {
	accountID    string
	clientID     string
	clientSecret string
	tokenURL     string
	apiURL       string
	httpClient   *http.Client
	now          func() time.Time
	logger       *logging.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClient creates a Zoom client in the no-token state.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accountID:    cfg.AccountID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     strings.TrimSuffix(cfg.TokenURL, "/"),
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		httpClient:   cfg.HTTPClient,
		now:          cfg.Now,
		logger:       logger,
	}
}

type meetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"` // 2 = scheduled meeting
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	WaitingRoom    bool `json:"waiting_room"`
	JoinBeforeHost bool `json:"join_before_host"`
	ApprovalType   int  `json:"approval_type"` // 0 = automatically approve
	MuteUponEntry  bool `json:"mute_upon_entry"`
}

type meetingResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
}

// CreateMeeting schedules a meeting with waiting room, auto-approval, and
// mute-on-entry defaults.
func (c *Client) CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (*Meeting, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(meetingRequest{
		Topic:     topic,
		Type:      2,
		StartTime: start.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  durationMinutes,
		Timezone:  "UTC",
		Settings: meetingSettings{
			WaitingRoom:    true,
			JoinBeforeHost: false,
			ApprovalType:   0,
			MuteUponEntry:  true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("zoom: marshal meeting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/users/me/meetings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("zoom: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoom: %w: %v", ErrMeetingFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("zoom: read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("zoom: %w: status %d: %s", ErrMeetingFailed, resp.StatusCode, msg)
	}

	var mr meetingResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("zoom: parse meeting response: %w", err)
	}

	return &Meeting{
		ID:       fmt.Sprintf("%d", mr.ID),
		JoinURL:  mr.JoinURL,
		Passcode: mr.Password,
	}, nil
}

// accessToken returns the cached token or performs the account-credentials
// exchange when it is absent or inside the safety margin.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-tokenSafetyMargin)) {
		return c.token, nil
	}

	if c.accountID == "" || c.clientID == "" || c.clientSecret == "" {
		return "", fmt.Errorf("zoom: %w: missing credentials", ErrCredentials)
	}

	params := url.Values{
		"grant_type": {"account_credentials"},
		"account_id": {c.accountID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("zoom: create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoom: %w: %v", ErrCredentials, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("zoom: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return "", fmt.Errorf("zoom: %w: status %d: %s", ErrCredentials, resp.StatusCode, msg)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("zoom: parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("zoom: %w: empty access token", ErrCredentials)
	}
	if tokenResp.ExpiresIn <= 0 {
		tokenResp.ExpiresIn = defaultExpirySeconds
	}

	c.token = tokenResp.AccessToken
	c.expiry = c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.logger.Debug("zoom access token refreshed", "expires_in", tokenResp.ExpiresIn)
	return c.token, nil
}
