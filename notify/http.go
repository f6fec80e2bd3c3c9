package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"golang.org/x/time/rate"
)

var ErrUnknownKind = errors.New("notify: unknown mail kind")

// HTTPConfig configures an HTTPMailer.
type HTTPConfig struct {
	// BaseURL of the provider API; messages are posted to BaseURL + "/emails".
	BaseURL string
	APIKey  string
	From    string
	// LinkBase is the page that receives the token, e.g.
	// "https://app.example.com/verify". The token and email are appended as
	// query parameters.
	VerifyLinkBase string
	ResetLinkBase  string

	// RatePerSecond and Burst throttle outbound sends. Zero disables the
	// throttle.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

type HTTPMailer struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPMailer(cfg HTTPConfig) (*HTTPMailer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("notify: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("notify: APIKey is required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: From is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	m := &HTTPMailer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return m, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

var bodyTemplate = template.Must(template.New("mail").Parse(
	`<p>Hello {{.Name}},</p><p>{{.Lead}}</p><p><a href="{{.Link}}">{{.Action}}</a></p><p>This link expires at {{.Expires}}.</p>`,
))

type bodyData struct {
	Name    string
	Lead    string
	Link    string
	Action  string
	Expires string
}

func (m *HTTPMailer) render(msg authflow.MailMessage) (sendRequest, error) {
	var (
		subject string
		data    bodyData
		base    string
	)
	switch msg.Kind {
	case authflow.MailVerifyEmail:
		subject = "Verify your email"
		data.Lead = "Please confirm your email address."
		data.Action = "Verify email"
		base = m.cfg.VerifyLinkBase
	case authflow.MailPasswordReset:
		subject = "Reset your password"
		data.Lead = "A password reset was requested for your account."
		data.Action = "Choose a new password"
		base = m.cfg.ResetLinkBase
	default:
		return sendRequest{}, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}

	data.Name = msg.DisplayName
	if data.Name == "" {
		data.Name = msg.To
	}
	data.Expires = msg.ExpiresAt.UTC().Format(time.RFC1123)
	data.Link = tokenLink(base, msg.To, msg.Token)

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return sendRequest{}, err
	}
	return sendRequest{
		From:    m.cfg.From,
		To:      []string{msg.To},
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}

func tokenLink(base, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	if strings.Contains(base, "?") {
		return base + "&" + q.Encode()
	}
	return base + "?" + q.Encode()
}

// Send renders msg and posts it. It waits on the throttle, so a cancelled ctx
// returns before any request is made.
func (m *HTTPMailer) Send(ctx context.Context, msg authflow.MailMessage) error {
	body, err := m.render(msg)
	if err != nil {
		return err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify: throttle: %w", err)
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
