package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/khatapp/backend-khata/internal/lock"
)

// TypeWebhookDelivery is the asynq task type for webhook deliveries.
const TypeWebhookDelivery = "webhook:deliver"

type deliveryPayload struct {
	EndpointID string `json:"endpoint_id"`
	EventID    string `json:"event_id"`
}

// AsynqEnqueuer enqueues delivery tasks on an asynq client.
type AsynqEnqueuer struct {
	Client      *asynq.Client
	MaxAttempts int
	Timeout     time.Duration
}

// EnqueueDelivery implements Enqueuer.
func (e AsynqEnqueuer) EnqueueDelivery(ctx context.Context, endpointID, eventID string) error {
	if e.Client == nil {
		return errors.New("notify: asynq client not configured")
	}
	payload, err := json.Marshal(deliveryPayload{EndpointID: endpointID, EventID: eventID})
	if err != nil {
		return err
	}
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	task := asynq.NewTask(TypeWebhookDelivery, payload)
	opts := []asynq.Option{
		asynq.MaxRetry(maxAttempts - 1),
		asynq.Timeout(timeout),
		asynq.TaskID(fmt.Sprintf("wh:%s:%s", endpointID, eventID)),
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	return nil
}

// DeliveryWorker executes webhook delivery tasks under a distributed lock so
// concurrent workers never double-send the same delivery.
type DeliveryWorker struct {
	Dispatcher *Dispatcher
	Locker     lock.Locker
	LockTTL    time.Duration
}

// ProcessTask implements asynq.Handler for TypeWebhookDelivery tasks.
func (w DeliveryWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if w.Dispatcher == nil || w.Dispatcher.Store == nil {
		return errors.New("webhook worker: dispatcher not configured")
	}
	var payload deliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode delivery payload: %w", asynq.SkipRetry)
	}
	endpointID, err := uuid.Parse(payload.EndpointID)
	if err != nil {
		return fmt.Errorf("bad endpoint id: %w", asynq.SkipRetry)
	}
	eventID, err := uuid.Parse(payload.EventID)
	if err != nil {
		return fmt.Errorf("bad event id: %w", asynq.SkipRetry)
	}

	attempt, _ := asynq.GetRetryCount(ctx)
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := fmt.Sprintf("lock:delivery:%s:%s", endpointID, eventID)
	return w.Locker.WithLock(ctx, key, ttl, func(ctx context.Context) error {
		event, err := w.Dispatcher.Store.GetDomainEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}
		endpoint, err := w.Dispatcher.Store.GetWebhookEndpoint(ctx, event.CompanyID, endpointID)
		if err != nil {
			return fmt.Errorf("load endpoint: %w", err)
		}
		return w.Dispatcher.Deliver(ctx, *endpoint, *event, attempt)
	})
}
