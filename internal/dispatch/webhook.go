package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"coinline/internal/config"
	"coinline/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink posts activity entries to configured HTTP endpoints. Every hook
// has its own circuit breaker so a dead endpoint stops being called for a
// while instead of slowing each dispatch down.
type WebhookSink struct {
	hooks []*hookTarget
	log   logrus.FieldLogger
}

type hookTarget struct {
	cfg     config.Webhook
	filter  eventFilter
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewWebhookSink returns nil when no hook is enabled.
func NewWebhookSink(hooks []config.Webhook, log logrus.FieldLogger) *WebhookSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &WebhookSink{log: log}
	for i, h := range hooks {
		if !h.Enabled || strings.TrimSpace(h.URL) == "" {
			continue
		}
		timeout := defaultWebhookTimeout
		if h.TimeoutSeconds > 0 {
			timeout = time.Duration(h.TimeoutSeconds) * time.Second
		}
		name := fmt.Sprintf("webhook-%d", i)
		s.hooks = append(s.hooks, &hookTarget{
			cfg:    h,
			filter: newEventFilter(h.Events),
			client: &http.Client{Timeout: timeout},
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        name,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 3
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.WithField("sink", name).Infof("circuit breaker %s -> %s", from, to)
				},
			}),
		})
	}
	if len(s.hooks) == 0 {
		return nil
	}
	return s
}

type webhookEvent struct {
	DeliveryID string               `json:"delivery_id"`
	Type       string               `json:"type"`
	Activity   domain.ActivityEntry `json:"activity"`
}

// Record delivers e to every hook subscribed to its type. All hooks are tried;
// the returned error joins the failures.
func (s *WebhookSink) Record(ctx context.Context, e domain.ActivityEntry) error {
	var failures []string
	for _, h := range s.hooks {
		if !h.filter.match(e.Type) {
			continue
		}
		_, err := h.breaker.Execute(func() (any, error) {
			return nil, h.post(ctx, e)
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", h.cfg.URL, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("webhook delivery failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func (h *hookTarget) post(ctx context.Context, e domain.ActivityEntry) error {
	body := webhookEvent{DeliveryID: uuid.NewString(), Type: e.Type, Activity: e}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Coinline-Event", e.Type)
	req.Header.Set("X-Coinline-Delivery", body.DeliveryID)
	req.Header.Set("X-Coinline-Project", e.ProjectID)
	if strings.TrimSpace(h.cfg.Secret) != "" {
		req.Header.Set("X-Coinline-Secret", h.cfg.Secret)
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
