// Package webhook tells an external receiver when a capability of a
// snapshot settles. Deliveries are HMAC-signed and retried with backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
)

const EventCapabilitySettled = "capability.settled"

const (
	HeaderSignature = "X-Pixelsuffix-Signature"
	HeaderTimestamp = "X-Pixelsuffix-Timestamp"
	HeaderEvent     = "X-Pixelsuffix-Event"
	HeaderDelivery  = "X-Pixelsuffix-Delivery"
)

// Sources name the process that settled a capability.
const (
	SourceAPI    = "api"
	SourceWorker = "worker"
)

// ErrRejected marks a delivery the receiver refused with a 4xx status that
// retrying cannot change.
var ErrRejected = errors.New("webhook rejected by receiver")

// CapabilitySettled is the body of a capability.settled delivery.
// DeliveryID is stable per snapshot and capability, so receivers can drop
// duplicates from concurrent probers.
type CapabilitySettled struct {
	Event       string                `json:"event"`
	DeliveryID  string                `json:"delivery_id"`
	Capability  capability.Capability `json:"capability"`
	Supported   bool                  `json:"supported"`
	StorageName string                `json:"storage_name"`
	Source      string                `json:"source"`
	SettledAt   time.Time             `json:"settled_at"`
}

type Config struct {
	URL            string
	SigningSecret  string
	StorageName    string
	Source         string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Notifier struct {
	httpClient     *http.Client
	url            string
	signingSecret  string
	storageName    string
	source         string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

func NewNotifier(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Notifier{
		httpClient:     &http.Client{Timeout: timeout},
		url:            strings.TrimSpace(cfg.URL),
		signingSecret:  cfg.SigningSecret,
		storageName:    cfg.StorageName,
		source:         cfg.Source,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: initialBackoff,
		maxBackoff:     max(cfg.MaxBackoff, initialBackoff),
		now:            time.Now,
	}
}

// Enabled reports whether a receiver URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// CapabilitySettled delivers the settled value of c. It is a no-op when the
// notifier is not enabled.
func (n *Notifier) CapabilitySettled(ctx context.Context, c capability.Capability, supported bool) error {
	if !n.Enabled() {
		return nil
	}

	event := CapabilitySettled{
		Event:       EventCapabilitySettled,
		DeliveryID:  n.storageName + ":" + string(c),
		Capability:  c,
		Supported:   supported,
		StorageName: n.storageName,
		Source:      n.source,
		SettledAt:   n.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Event, err)
	}
	return n.deliver(ctx, event.Event, event.DeliveryID, body)
}

func (n *Notifier) deliver(ctx context.Context, event, deliveryID string, body []byte) error {
	timestamp := strconv.FormatInt(n.now().UTC().Unix(), 10)
	signature := Sign(n.signingSecret, timestamp, body)

	backoff := n.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", event, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderEvent, event)
		req.Header.Set(HeaderDelivery, deliveryID)

		lastErr = n.attempt(req)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrRejected) {
			return fmt.Errorf("deliver %s %s: %w", event, deliveryID, lastErr)
		}
		if attempt == n.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, n.maxBackoff)
	}

	return fmt.Errorf("deliver %s %s: gave up after %d attempts: %w", event, deliveryID, n.maxAttempts, lastErr)
}

func (n *Notifier) attempt(req *http.Request) error {
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return fmt.Errorf("receiver returned status=%d", code)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: status=%d", ErrRejected, code)
	default:
		return fmt.Errorf("receiver returned status=%d", code)
	}
}

// Sign returns the signature header value for body: HMAC-SHA256 over
// "{timestamp}.{body}".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
