// Package notify delivers build milestone events to configured webhook
// endpoints.
//
// Events are posted as JSON with an HMAC-SHA256 signature header when a
// signing secret is configured. Delivery is best effort: failures are
// logged and never propagated to the build flow, and each endpoint gets
// up to 3 attempts. This is the one outbound path allowed to retry;
// calls to the Architect Service never are.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/pkg/contracts"
)

// ── Event types ─────────────────────────────────────────────

// EventType describes what happened.
type EventType string

const (
	EventBuildCompleted EventType = "build_completed"
	EventBuildFailed    EventType = "build_failed"
	EventAgentPersisted EventType = "agent_persisted"
)

// Event is the notification payload. It maps 1:1 to contracts.NotificationEvent.
type Event = contracts.NotificationEvent

// NewEvent creates an Event with the given type and fields.
func NewEvent(eventType EventType, buildID, agentID, userEmail string, payload map[string]interface{}) Event {
	return Event{
		Type:      string(eventType),
		BuildID:   buildID,
		AgentID:   agentID,
		UserEmail: userEmail,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ── Service ──────────────────────────────────────────────────

// Channel is one webhook endpoint.
type Channel struct {
	URL    string
	Secret string
}

// Service fans build events out to webhook channels.
type Service struct {
	client   *http.Client
	channels []Channel
}

// NewService creates a notification service posting to the given URLs,
// all signed with the same secret. An empty secret disables signing.
func NewService(urls []string, secret string) *Service {
	svc := &Service{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		svc.channels = append(svc.channels, Channel{URL: u, Secret: secret})
	}
	return svc
}

// Channels returns the number of configured endpoints.
func (s *Service) Channels() int {
	return len(s.channels)
}

// Notify posts the event to every configured channel concurrently and
// waits for delivery to settle. Failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, event Event) {
	if len(s.channels) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range s.channels {
		ch := s.channels[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.send(ctx, ch, event); err != nil {
				log.Warn().Err(err).Str("url", ch.URL).Str("event", event.Type).Msg("Webhook notification failed")
				return
			}
			log.Info().Str("url", ch.URL).Str("event", event.Type).Str("build", event.BuildID).Msg("Webhook notification dispatched")
		}()
	}
	wg.Wait()
}

// send posts the event as JSON to one channel with optional HMAC
// signing, retrying up to 3 attempts with backoff. A fresh request is
// built per attempt since the body reader is consumed by each send.
func (s *Service) send(ctx context.Context, ch Channel, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "UL-Gateway/1.0")
		req.Header.Set("X-UL-Event", event.Type)

		if ch.Secret != "" {
			mac := hmac.New(sha256.New, []byte(ch.Secret))
			mac.Write(body)
			sig := hex.EncodeToString(mac.Sum(nil))
			req.Header.Set("X-UL-Signature", "sha256="+sig)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, ch.URL)
	}
	return fmt.Errorf("webhook failed after 3 attempts: %w", lastErr)
}
