package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/tenant"
)

type memStore struct {
	warehouses map[uuid.UUID]db.Warehouse
	levels     map[string]float64
}

func newMemStore() *memStore {
	return &memStore{warehouses: map[uuid.UUID]db.Warehouse{}, levels: map[string]float64{}}
}

func levelKey(warehouseID *uuid.UUID, sku string) string {
	if warehouseID == nil {
		return "default/" + sku
	}
	return warehouseID.String() + "/" + sku
}

func (m *memStore) CreateWarehouse(_ context.Context, w *db.Warehouse) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	for _, existing := range m.warehouses {
		if existing.CompanyID == w.CompanyID && existing.Code == w.Code {
			return db.ErrDuplicate
		}
	}
	m.warehouses[w.ID] = *w
	return nil
}

func (m *memStore) GetWarehouse(_ context.Context, companyID, id uuid.UUID) (*db.Warehouse, error) {
	w, ok := m.warehouses[id]
	if !ok || w.CompanyID != companyID {
		return nil, db.ErrNotFound
	}
	return &w, nil
}

func (m *memStore) ListWarehouses(_ context.Context, companyID uuid.UUID) ([]db.Warehouse, error) {
	var out []db.Warehouse
	for _, w := range m.warehouses {
		if w.CompanyID == companyID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) UpdateWarehouse(_ context.Context, w *db.Warehouse) error {
	if _, ok := m.warehouses[w.ID]; !ok {
		return db.ErrNotFound
	}
	m.warehouses[w.ID] = *w
	return nil
}

func (m *memStore) GetStockLevels(_ context.Context, companyID uuid.UUID, sku string) ([]db.StockLevel, error) {
	var out []db.StockLevel
	for key, qty := range m.levels {
		if !strings.HasSuffix(key, "/"+sku) {
			continue
		}
		lvl := db.StockLevel{CompanyID: companyID, SKU: sku, Quantity: qty}
		if !strings.HasPrefix(key, "default/") {
			id := uuid.MustParse(strings.SplitN(key, "/", 2)[0])
			lvl.WarehouseID = &id
		}
		out = append(out, lvl)
	}
	return out, nil
}

func (m *memStore) AdjustStock(_ context.Context, _ uuid.UUID, warehouseID *uuid.UUID, sku string, delta float64) error {
	m.levels[levelKey(warehouseID, sku)] += delta
	return nil
}

func newRouter(store Store) (chi.Router, uuid.UUID) {
	companyID := uuid.New()
	h := &Handler{Store: store, Validate: validator.New()}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenant.WithCompany(req.Context(), companyID.String())))
		})
	})
	r.Route("/api/v1", h.Routes)
	return r, companyID
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateWarehouseAndDuplicateCode(t *testing.T) {
	store := newMemStore()
	r, _ := newRouter(store)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/warehouses", `{"name":"Pune Central","code":"pun","priority":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Code != "PUN" {
		t.Fatalf("expected code upper-cased, got %q", resp.Data.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/warehouses", `{"name":"Pune Annex","code":"PUN","priority":2}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate code, got %d", rec.Code)
	}
}

func TestAdjustAndReadStock(t *testing.T) {
	store := newMemStore()
	r, companyID := newRouter(store)

	wh := db.Warehouse{ID: uuid.New(), CompanyID: companyID, Name: "Nashik", Code: "NSK", Priority: 1}
	store.warehouses[wh.ID] = wh

	rec := doJSON(t, r, http.MethodPost, "/api/v1/stock/adjustments",
		`{"warehouse_id":"`+wh.ID.String()+`","sku":"WIDGET","delta":25}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("adjust: %d: %s", rec.Code, rec.Body.String())
	}
	// Default location stock uses no warehouse id.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/stock/adjustments", `{"sku":"WIDGET","delta":-5}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("adjust default: %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/stock/WIDGET", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("levels: %d", rec.Code)
	}
	var resp struct {
		Data []struct {
			WarehouseID string  `json:"warehouse_id"`
			Quantity    float64 `json:"quantity"`
		} `json:"data"`
		Meta struct {
			Total float64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected two stock rows, got %d", len(resp.Data))
	}
	if resp.Meta.Total != 20 {
		t.Fatalf("expected total 20, got %v", resp.Meta.Total)
	}
}

func TestAdjustStockValidation(t *testing.T) {
	store := newMemStore()
	r, _ := newRouter(store)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"zero delta", `{"sku":"WIDGET","delta":0}`, http.StatusBadRequest},
		{"missing sku", `{"delta":5}`, http.StatusBadRequest},
		{"bad warehouse id", `{"warehouse_id":"nope","sku":"WIDGET","delta":5}`, http.StatusBadRequest},
		{"unknown warehouse", `{"warehouse_id":"` + uuid.NewString() + `","sku":"WIDGET","delta":5}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/stock/adjustments", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
