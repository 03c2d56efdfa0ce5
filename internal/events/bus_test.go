package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/events"
)

type stubStore struct {
	last db.DomainEvent
}

func (s *stubStore) CreateDomainEvent(_ context.Context, e *db.DomainEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.last = *e
	return nil
}

type captureScheduler struct {
	events []db.DomainEvent
}

func (c *captureScheduler) Schedule(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureNotifier struct {
	events []db.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	companyID := uuid.New()
	aggregate := uuid.New()
	payload := map[string]any{"invoiceId": "INV-000001"}
	event, err := bus.Emit(context.Background(), companyID, events.TopicInvoiceFinalized, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicInvoiceFinalized, store.last.Topic)
	require.Equal(t, companyID, store.last.CompanyID)
	require.JSONEq(t, `{"invoiceId":"INV-000001"}`, string(store.last.Payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "INV-000001", decoded["invoiceId"])
}

func TestEmitRejectsBadInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), uuid.New(), " ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicInvoicePaid, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicInvoicePaid, uuid.New(), "{not json")
	require.Error(t, err)
}

func TestEmitJoinsHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := events.Bus{
		Store:     &stubStore{},
		Notifiers: []events.Notifier{&captureNotifier{err: boom}},
	}

	event, err := bus.Emit(context.Background(), uuid.New(), events.TopicInvoicePaid, uuid.New(), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	// Persistence still happened.
	require.NotEqual(t, uuid.Nil, event.ID)
}
