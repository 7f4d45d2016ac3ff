// Package recaptcha verifies Google reCAPTCHA responses submitted with public forms.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
)

// DefaultEndpoint is Google's verification endpoint.
const DefaultEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// FormField is the form field the widget posts its token in.
const FormField = "g-recaptcha-response"

// Verifier checks a client-side challenge response.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) error
}

// Config holds verifier settings.
type Config struct {
	SecretKey string
	MinScore  float64
	Timeout   time.Duration
	Endpoint  string
}

// Client verifies responses against the reCAPTCHA API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// New returns a Client. Without a secret key every response is accepted, which keeps local
// development usable without Google credentials.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Enabled reports whether responses are actually checked.
func (c *Client) Enabled() bool {
	return c.cfg.SecretKey != ""
}

// Verify returns a VALIDATION error when the response is missing, rejected, or scored below the
// configured minimum. Transport failures are INTERNAL.
func (c *Client) Verify(ctx context.Context, response, remoteIP string) error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(response) == "" {
		return errors.Validation("please complete the captcha")
	}

	form := url.Values{
		"secret":   {c.cfg.SecretKey},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Internal("failed to build captcha request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Internal("captcha verification unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Internal("captcha verification unavailable", fmt.Errorf("siteverify status %d", resp.StatusCode))
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Internal("captcha verification unavailable", err)
	}

	if !result.Success {
		c.log.Info("captcha rejected", zap.Strings("error_codes", result.ErrorCodes))
		return errors.Validation("captcha verification failed")
	}
	// v2 responses carry no score.
	if result.Score != nil && *result.Score < c.cfg.MinScore {
		c.log.Info("captcha score too low", zap.Float64("score", *result.Score), zap.String("action", result.Action))
		return errors.Validation("captcha verification failed")
	}
	return nil
}
