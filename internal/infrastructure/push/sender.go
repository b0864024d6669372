package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"DigestScheduler/internal/config"
	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
)

// Sender delivers notifications through an FCM-style HTTP v1 gateway.
type Sender struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.PushSender = (*Sender)(nil)

// NewSender wires the gateway endpoint and an outbound rate limit.
func NewSender(cfg config.PushConfig) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Sender{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
	}
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type message struct {
	Token        string            `json:"token"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// Send posts msg to the device identified by token. Tokens the gateway
// reports as unknown are marked with domain.ErrDestinationInvalid.
func (s *Sender) Send(ctx context.Context, token string, msg domain.PushMessage) error {
	if s.endpoint == "" {
		return errors.New("push sender misconfigured")
	}
	if strings.TrimSpace(token) == "" {
		return errors.Mark(errors.New("empty device token"), domain.ErrDestinationInvalid)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for send slot")
	}

	data := map[string]string{"report_ref": msg.ReportRef}
	if msg.AudioRef != "" {
		data["audio_ref"] = msg.AudioRef
	}
	body, err := json.Marshal(map[string]message{"message": {
		Token:        token,
		Notification: notification{Title: msg.Title, Body: msg.Body},
		Data:         data,
	}})
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = errors.Newf("push gateway error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	if invalidDestination(resp.StatusCode, string(detail)) {
		return errors.Mark(err, domain.ErrDestinationInvalid)
	}
	return err
}

func invalidDestination(status int, detail string) bool {
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return true
	case http.StatusBadRequest:
		return strings.Contains(detail, "registration token")
	}
	return strings.Contains(detail, "UNREGISTERED")
}
