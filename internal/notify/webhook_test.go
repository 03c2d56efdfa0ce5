package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/db"
)

type memStore struct {
	endpoints  map[uuid.UUID]db.WebhookEndpoint
	events     map[uuid.UUID]db.DomainEvent
	deliveries map[string]db.WebhookDelivery
}

func newMemStore() *memStore {
	return &memStore{
		endpoints:  map[uuid.UUID]db.WebhookEndpoint{},
		events:     map[uuid.UUID]db.DomainEvent{},
		deliveries: map[string]db.WebhookDelivery{},
	}
}

func (m *memStore) ListActiveWebhookEndpoints(_ context.Context, companyID uuid.UUID) ([]db.WebhookEndpoint, error) {
	var out []db.WebhookEndpoint
	for _, ep := range m.endpoints {
		if ep.CompanyID == companyID && ep.Active {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (m *memStore) GetWebhookEndpoint(_ context.Context, companyID, id uuid.UUID) (*db.WebhookEndpoint, error) {
	ep, ok := m.endpoints[id]
	if !ok || ep.CompanyID != companyID {
		return nil, db.ErrNotFound
	}
	return &ep, nil
}

func (m *memStore) CreateWebhookEndpoint(_ context.Context, ep *db.WebhookEndpoint) error {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	m.endpoints[ep.ID] = *ep
	return nil
}

func (m *memStore) DeleteWebhookEndpoint(_ context.Context, companyID, id uuid.UUID) error {
	ep, ok := m.endpoints[id]
	if !ok || ep.CompanyID != companyID {
		return db.ErrNotFound
	}
	delete(m.endpoints, id)
	return nil
}

func (m *memStore) GetDomainEvent(_ context.Context, id uuid.UUID) (*db.DomainEvent, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &ev, nil
}

func (m *memStore) UpsertWebhookDelivery(_ context.Context, d *db.WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.deliveries[d.EndpointID.String()+"/"+d.EventID.String()] = *d
	return nil
}

func (m *memStore) GetWebhookDelivery(_ context.Context, endpointID, eventID uuid.UUID) (*db.WebhookDelivery, error) {
	d, ok := m.deliveries[endpointID.String()+"/"+eventID.String()]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &d, nil
}

type memEnqueuer struct {
	enqueued [][2]string
}

func (m *memEnqueuer) EnqueueDelivery(_ context.Context, endpointID, eventID string) error {
	m.enqueued = append(m.enqueued, [2]string{endpointID, eventID})
	return nil
}

func TestComputeSignatureDeterministic(t *testing.T) {
	sig1 := ComputeSignature("whsec_abc", 1700000000, "evt-1", []byte(`{"a":1}`))
	sig2 := ComputeSignature("whsec_abc", 1700000000, "evt-1", []byte(`{"a":1}`))
	if sig1 != sig2 {
		t.Fatal("signature must be deterministic")
	}
	if sig1 == ComputeSignature("whsec_other", 1700000000, "evt-1", []byte(`{"a":1}`)) {
		t.Fatal("different secrets must produce different signatures")
	}
	if len(sig1) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(sig1))
	}
}

func TestScheduleTracksAndEnqueues(t *testing.T) {
	store := newMemStore()
	enq := &memEnqueuer{}
	companyID := uuid.New()
	ep := db.WebhookEndpoint{ID: uuid.New(), CompanyID: companyID, URL: "https://example.com/hook", Secret: "s", Active: true}
	store.endpoints[ep.ID] = ep
	inactive := db.WebhookEndpoint{ID: uuid.New(), CompanyID: companyID, URL: "https://example.com/off", Secret: "s", Active: false}
	store.endpoints[inactive.ID] = inactive

	d := &Dispatcher{Store: store, Enqueuer: enq, Enabled: true}
	event := db.DomainEvent{ID: uuid.New(), CompanyID: companyID, Topic: "invoice.finalized", Payload: []byte(`{}`)}
	if err := d.Schedule(context.Background(), event); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(enq.enqueued) != 1 {
		t.Fatalf("expected one enqueued delivery, got %d", len(enq.enqueued))
	}
	if got, _ := store.GetWebhookDelivery(context.Background(), ep.ID, event.ID); got.Status != DeliveryPending {
		t.Fatalf("expected pending delivery record, got %+v", got)
	}
}

func TestDeliverSignsAndMarksDelivered(t *testing.T) {
	var gotSig, gotEventID string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotEventID = r.Header.Get("X-Event-ID")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := newMemStore()
	companyID := uuid.New()
	ep := db.WebhookEndpoint{ID: uuid.New(), CompanyID: companyID, URL: server.URL, Secret: "whsec_test", Active: true}
	event := db.DomainEvent{
		ID: uuid.New(), CompanyID: companyID, Topic: "invoice.paid",
		Payload: []byte(`{"invoiceId":"INV-000007"}`), CreatedAt: time.Now(),
	}

	// httptest servers listen on 127.0.0.1 so the http scheme passes validation.
	d := &Dispatcher{Store: store, Enabled: true, MaxAttempts: 3}
	if err := d.Deliver(context.Background(), ep, event, 0); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if gotSig == "" || gotEventID != event.ID.String() {
		t.Fatalf("missing delivery headers: sig=%q event=%q", gotSig, gotEventID)
	}
	var envelope struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Topic != "invoice.paid" {
		t.Fatalf("unexpected topic %q", envelope.Topic)
	}

	delivery, err := store.GetWebhookDelivery(context.Background(), ep.ID, event.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if delivery.Status != DeliveryDelivered || delivery.Attempts != 1 {
		t.Fatalf("unexpected delivery record %+v", delivery)
	}
}

func TestDeliverDeadLettersAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newMemStore()
	companyID := uuid.New()
	ep := db.WebhookEndpoint{ID: uuid.New(), CompanyID: companyID, URL: server.URL, Secret: "s", Active: true}
	event := db.DomainEvent{ID: uuid.New(), CompanyID: companyID, Topic: "invoice.paid", Payload: []byte(`{}`)}

	d := &Dispatcher{Store: store, Enabled: true, MaxAttempts: 2}

	// First attempt fails and asks for a retry.
	if err := d.Deliver(context.Background(), ep, event, 0); err == nil {
		t.Fatal("expected retryable error on first failure")
	}
	// Final attempt dead-letters without error so retries stop.
	if err := d.Deliver(context.Background(), ep, event, 1); err != nil {
		t.Fatalf("expected terminal attempt to swallow error, got %v", err)
	}
	delivery, err := store.GetWebhookDelivery(context.Background(), ep.ID, event.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if delivery.Status != DeliveryDead || delivery.Attempts != 2 {
		t.Fatalf("unexpected delivery record %+v", delivery)
	}
}

func TestValidateURLRejectsRemoteHTTP(t *testing.T) {
	if err := validateURL("http://example.com/hook"); err == nil {
		t.Fatal("expected plain http to a remote host to be rejected")
	}
	if err := validateURL("https://example.com/hook"); err != nil {
		t.Fatalf("https should pass: %v", err)
	}
	if err := validateURL("http://127.0.0.1:9000/hook"); err != nil {
		t.Fatalf("localhost http should pass: %v", err)
	}
}
