package gcal

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/movewell/physio-platform/pkg/logging"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	calendarScope   = "https://www.googleapis.com/auth/calendar"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Cached tokens are renewed this long before their declared expiry.
	tokenSafetyMargin = 60 * time.Second
)

// ErrCredentials marks a failed token exchange with the provider.
var ErrCredentials = errors.New("credential exchange failed")

// TokenSource yields a live bearer token for calendar API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CredentialsConfig configures the service-account credential manager.
type CredentialsConfig struct {
	Email         string // service account email (JWT issuer)
	PrivateKeyPEM string // RSA private key in PEM form
	TokenURL      string // override for tests; defaults to Google's endpoint
	HTTPClient    *http.Client
	Now           func() time.Time
}

// Credentials holds a cached, auto-renewing access token obtained through
// the Google service-account JWT-bearer flow.
type Credentials struct {
	email      string
	key        *rsa.PrivateKey
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time
	logger     *logging.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewCredentials parses the service-account key and returns a credential
// manager in the no-token state.
func NewCredentials(cfg CredentialsConfig, logger *logging.Logger) (*Credentials, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, fmt.Errorf("gcal: service account email is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("gcal: parse service account key: %w", err)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
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
	return &Credentials{
		email:      cfg.Email,
		key:        key,
		tokenURL:   cfg.TokenURL,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		logger:     logger,
	}, nil
}

// Token returns the cached access token, performing a fresh JWT-bearer
// exchange when none is cached or the cached one is inside the safety margin.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-tokenSafetyMargin)) {
		return c.token, nil
	}

	token, expiresIn, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiry = c.now().Add(time.Duration(expiresIn) * time.Second)
	c.logger.Debug("google access token refreshed", "expires_in", expiresIn)
	return c.token, nil
}

func (c *Credentials) exchange(ctx context.Context) (string, int, error) {
	assertion, err := c.signAssertion()
	if err != nil {
		return "", 0, fmt.Errorf("gcal: sign assertion: %w", err)
	}

	data := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("gcal: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("gcal: %w: %v", ErrCredentials, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("gcal: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return "", 0, fmt.Errorf("gcal: %w: status %d: %s", ErrCredentials, resp.StatusCode, msg)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, fmt.Errorf("gcal: parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("gcal: %w: empty access token", ErrCredentials)
	}
	if tokenResp.ExpiresIn <= 0 {
		tokenResp.ExpiresIn = 3600
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

// signAssertion builds the RS256-signed JWT the token endpoint expects.
func (c *Credentials) signAssertion() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss":   c.email,
		"scope": calendarScope,
		"aud":   c.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
}
