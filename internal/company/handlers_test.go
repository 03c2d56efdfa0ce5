package company

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/db"
)

type memStore struct {
	companies map[uuid.UUID]db.Company
}

func (m *memStore) CreateCompany(_ context.Context, c *db.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	for _, existing := range m.companies {
		if existing.Slug == c.Slug {
			return db.ErrDuplicate
		}
	}
	m.companies[c.ID] = *c
	return nil
}

func (m *memStore) GetCompany(_ context.Context, id uuid.UUID) (*db.Company, error) {
	c, ok := m.companies[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpdateCompany(_ context.Context, c *db.Company) error {
	if _, ok := m.companies[c.ID]; !ok {
		return db.ErrNotFound
	}
	m.companies[c.ID] = *c
	return nil
}

func postCompany(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreateCompanyDerivesState(t *testing.T) {
	store := &memStore{companies: map[uuid.UUID]db.Company{}}
	h := &Handler{Store: store, Validate: validator.New()}

	rec := postCompany(t, h, `{"slug":"acme","name":"Acme Traders","gstin":"27AAPFU0939F1ZV"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			StateCode string `json:"state_code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.StateCode != "27" {
		t.Fatalf("expected state 27, got %q", resp.Data.StateCode)
	}
}

func TestCreateCompanyValidation(t *testing.T) {
	store := &memStore{companies: map[uuid.UUID]db.Company{}}
	h := &Handler{Store: store, Validate: validator.New()}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad slug", `{"slug":"Bad Slug!","name":"Acme"}`, http.StatusBadRequest},
		{"bad gstin", `{"slug":"acme","name":"Acme","gstin":"27AAPFU0939F1ZW"}`, http.StatusBadRequest},
		{"state contradicts gstin", `{"slug":"acme","name":"Acme","gstin":"27AAPFU0939F1ZV","state_code":"29"}`, http.StatusBadRequest},
		{"missing name", `{"slug":"acme"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCompany(t, h, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	if rec := postCompany(t, h, `{"slug":"dup","name":"First"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}
	if rec := postCompany(t, h, `{"slug":"dup","name":"Second"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate slug, got %d", rec.Code)
	}
}
