package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrNoRecipient = errors.New("recipient missing or malformed")

type ChatSender interface {
	Send(ctx context.Context, phone string, text string) error
	ProviderID() string
}

// WebhookSender posts chat messages to a WhatsApp gateway.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "whatsapp-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, phone string, text string) error {
	if s.url == "" {
		return errors.New("chat webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{
		"to":   phone,
		"body": text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopChatSender struct{}

func (NoopChatSender) ProviderID() string {
	return "noop"
}

func (NoopChatSender) Send(context.Context, string, string) error {
	return nil
}

// NormalizePhone keeps digits only and adds the Brazilian country code to
// local numbers (10 or 11 digits). It returns "" when too few digits remain.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	switch {
	case len(digits) < 10:
		return ""
	case len(digits) <= 11:
		return "55" + digits
	}
	return digits
}
