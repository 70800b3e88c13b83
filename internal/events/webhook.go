package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	SignatureHeader = "X-Gcdisk-Signature"
	TimestampHeader = "X-Gcdisk-Timestamp"
	EventHeader     = "X-Gcdisk-Event"
	DeliveryHeader  = "X-Gcdisk-Delivery"
)

type WebhookConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Secret   string        `yaml:"secret"`
	Timeout  time.Duration `yaml:"timeout"`
	Events   []string      `yaml:"events"`
}

// WebhookSink POSTs each event as JSON. With a secret, the body is signed
// together with the delivery timestamp.
type WebhookSink struct {
	Endpoint string
	Secret   string
	Client   *http.Client
	now      func() time.Time
}

// NewWebhookSink returns nil when the sink is disabled.
func NewWebhookSink(c WebhookConfig) *WebhookSink {
	if !c.Enabled || c.Endpoint == "" {
		return nil
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{Endpoint: c.Endpoint, Secret: c.Secret, Client: &http.Client{Timeout: timeout}}
}

// Sign returns the signature of body sent at unix time ts.
func Sign(secret string, ts int64, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether sig is the signature of body sent at ts.
func Verify(secret, sig string, ts int64, body []byte) bool {
	return hmac.Equal([]byte(sig), []byte(Sign(secret, ts, body)))
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Emit(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(data))
	if err != nil {
		return Permanent(err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ts := now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, e.Name)
	req.Header.Set(DeliveryHeader, e.ID)
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	if s.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.Secret, ts, data))
	}
	cli := s.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	switch code := resp.StatusCode; {
	case code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("webhook %s: %s", e.Name, resp.Status)
	default:
		// the receiver rejected the event, sending it again will not help
		return Permanent(fmt.Errorf("webhook %s: %s", e.Name, resp.Status))
	}
}
