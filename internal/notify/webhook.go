package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khatapp/backend-khata/internal/cache"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/obs"
	"github.com/khatapp/backend-khata/internal/resilience"
)

// Delivery status values tracked per endpoint/event pair.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryDead      = "dead"
)

// Enqueuer hands delivery tasks to the background worker.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, endpointID, eventID string) error
}

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher coordinates webhook scheduling and delivery. Retry pacing lives
// in the queue; HTTP.MaxAttempts stays at one so the breaker and timeout are
// the only per-call policies.
type Dispatcher struct {
	Store       Store
	HTTP        resilience.HTTPClient
	Enqueuer    Enqueuer
	Cache       *cache.Cache
	MaxAttempts int
	Enabled     bool
	Replay      ReplayProtector
	ReplayTTL   time.Duration
}

// activeEndpoints lists a company's active endpoints through the cache.
func (d *Dispatcher) activeEndpoints(ctx context.Context, companyID string) ([]db.WebhookEndpoint, error) {
	key := cache.EndpointsKey(companyID)
	var endpoints []db.WebhookEndpoint
	if hit, err := d.Cache.GetJSON(ctx, key, &endpoints); err == nil && hit {
		return endpoints, nil
	}
	id, err := uuid.Parse(companyID)
	if err != nil {
		return nil, err
	}
	endpoints, err = d.Store.ListActiveWebhookEndpoints(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = d.Cache.SetJSON(ctx, key, endpoints)
	return endpoints, nil
}

// Schedule enqueues deliveries for every active endpoint of the event's company.
func (d *Dispatcher) Schedule(ctx context.Context, event db.DomainEvent) error {
	if d == nil || !d.Enabled || d.Store == nil || d.Enqueuer == nil {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.activeEndpoints(ctx, event.CompanyID.String())
	if err != nil {
		return err
	}
	var joined error
	for _, ep := range endpoints {
		delivery := db.WebhookDelivery{
			EndpointID: ep.ID,
			EventID:    event.ID,
			Status:     DeliveryPending,
		}
		if err := d.Store.UpsertWebhookDelivery(ctx, &delivery); err != nil {
			joined = errors.Join(joined, fmt.Errorf("track delivery for %s: %w", ep.ID, err))
			continue
		}
		if err := d.Enqueuer.EnqueueDelivery(ctx, ep.ID.String(), event.ID.String()); err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.ID, err))
		}
	}
	return joined
}

// Deliver performs one delivery attempt and records the outcome. attempt is
// zero based. A non-nil error signals the worker to retry.
func (d *Dispatcher) Deliver(ctx context.Context, endpoint db.WebhookEndpoint, event db.DomainEvent, attempt int) error {
	start := time.Now()
	status, body, err := d.attempt(ctx, endpoint, event)
	if err == nil && status >= 200 && status < 300 {
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		}
		if obs.WebhookAttemptLatency != nil {
			obs.WebhookAttemptLatency.WithLabelValues("delivered").Observe(obs.DurationMillis(time.Since(start)))
		}
		return d.Store.UpsertWebhookDelivery(ctx, &db.WebhookDelivery{
			EndpointID: endpoint.ID,
			EventID:    event.ID,
			Status:     DeliveryDelivered,
			Attempts:   attempt + 1,
		})
	}

	reason := fmt.Sprintf("status=%d err=%v body=%s", status, err, truncate(body, 200))
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	if attempt+1 >= maxAttempts {
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("dead").Inc()
		}
		if obs.WebhookAttemptLatency != nil {
			obs.WebhookAttemptLatency.WithLabelValues("dead").Observe(obs.DurationMillis(time.Since(start)))
		}
		// Terminal: swallow the error so the worker stops retrying.
		return d.Store.UpsertWebhookDelivery(ctx, &db.WebhookDelivery{
			EndpointID: endpoint.ID,
			EventID:    event.ID,
			Status:     DeliveryDead,
			Attempts:   attempt + 1,
			LastError:  reason,
		})
	}

	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
	}
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues("failed").Observe(obs.DurationMillis(time.Since(start)))
	}
	if trackErr := d.Store.UpsertWebhookDelivery(ctx, &db.WebhookDelivery{
		EndpointID: endpoint.ID,
		EventID:    event.ID,
		Status:     DeliveryFailed,
		Attempts:   attempt + 1,
		LastError:  reason,
	}); trackErr != nil {
		return errors.Join(trackErr, fmt.Errorf("delivery failed: %s", reason))
	}
	return fmt.Errorf("delivery failed: %s", reason)
}

func (d *Dispatcher) attempt(ctx context.Context, ep db.WebhookEndpoint, ev db.DomainEvent) (int, string, error) {
	if d.HTTP.Client == nil {
		d.HTTP.Client = HTTPClient(5 * time.Second)
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID.String()),
		attribute.String("webhook.topic", ev.Topic),
	)
	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	occurred := ev.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    ev.ID.String(),
		Topic:      ev.Topic,
		Data:       json.RawMessage(ev.Payload),
		OccurredAt: occurred,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	ts := time.Now().Unix()
	if d.Replay != nil && d.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", ep.ID, ev.ID)
		ok, err := d.Replay.Acquire(ctx, key, d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, "replay-suppressed", nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "khata-api-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID.String())
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, ev.ID.String(), body))
	resp, err := d.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(responseBody), nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ComputeSignature calculates the webhook signature for the provided payload.
// The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint
// secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(&http.Transport{}),
	}
}

// ResilientHTTP wraps the webhook client with a shared circuit breaker. Retry
// pacing stays in the queue, so the wrapper performs a single attempt.
func ResilientHTTP(timeout time.Duration) resilience.HTTPClient {
	return resilience.HTTPClient{
		Client:      HTTPClient(timeout),
		Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("webhooks"),
		MaxAttempts: 1,
	}
}
