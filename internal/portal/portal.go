// Package portal is a minimal authenticated session against an inverter
// monitoring portal. It logs in with a form post, keeps the session cookie
// and reads the plant power status as JSON.
package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/source"
)

const (
	loginPath  = "/login"
	statusPath = "/status"
)

const (
	ErrLogin     = errors.ErrorCode("portal_login_failed")
	ErrStatus    = errors.ErrorCode("portal_status_failed")
	ErrResponse  = errors.ErrorCode("portal_bad_response")
	ErrTransport = errors.ErrTransport
)

type Config struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
}

// Client implements source.PortalSession.
type Client struct {
	cfg      Config
	http     *http.Client
	mu       sync.Mutex
	loggedIn bool
}

type statusResponse struct {
	CurrentPowerKW *float64 `json:"current_power_kw"`
	EnergyKWh      *float64 `json:"energy_kwh"`
}

func New(cfg Config) (*Client, error) {
	errFactory := errors.New()

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errFactory.WithMessage(errors.ErrMissingConfig, "portal credentials are required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	hc := &http.Client{Jar: jar}
	if cfg.Client != nil {
		hc.Transport = cfg.Client.Transport
		hc.Timeout = cfg.Client.Timeout
	}

	return &Client{cfg: cfg, http: hc}, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// Login starts a new session.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	errFactory := errors.New()

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(loginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return errFactory.Wrap(ErrLogin, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrTransport, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.loggedIn = false
		return errFactory.WithData(ErrLogin, resp.StatusCode)
	}

	c.loggedIn = true
	logger.Debug().Str("portal", c.cfg.BaseURL).Msg("Portal session established")

	return nil
}

// PowerStatus returns the current plant output, logging in first when no
// session exists and once more if the session has expired.
func (c *Client) PowerStatus(ctx context.Context) (source.PowerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			return source.PowerStatus{}, err
		}
	}

	status, err := c.fetchStatus(ctx)
	if errors.HasCode(err, errors.ErrUnavailable) {
		logger.Debug().Msg("Portal session expired, logging in again")
		if err := c.login(ctx); err != nil {
			return source.PowerStatus{}, err
		}
		status, err = c.fetchStatus(ctx)
	}

	return status, err
}

func (c *Client) fetchStatus(ctx context.Context) (source.PowerStatus, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(statusPath), nil)
	if err != nil {
		return source.PowerStatus{}, errFactory.Wrap(ErrStatus, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return source.PowerStatus{}, errFactory.Wrap(ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.loggedIn = false
		return source.PowerStatus{}, errFactory.WithData(errors.ErrUnavailable, "session expired")
	case resp.StatusCode != http.StatusOK:
		return source.PowerStatus{}, errFactory.WithData(ErrStatus, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return source.PowerStatus{}, errFactory.Wrap(ErrResponse, err)
	}
	if body.CurrentPowerKW == nil || body.EnergyKWh == nil {
		return source.PowerStatus{}, errFactory.WithMessage(ErrResponse, "status lacks current_power_kw or energy_kwh")
	}

	return source.PowerStatus{
		CurrentPowerKW: *body.CurrentPowerKW,
		EnergyKWh:      *body.EnergyKWh,
	}, nil
}
