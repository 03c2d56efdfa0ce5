package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolvePrefersHeader(t *testing.T) {
	r := NewResolver("", "khata.app", "")
	req := httptest.NewRequest(http.MethodGet, "http://acme.khata.app/api/v1/invoices", nil)
	req.Header.Set("X-Company-ID", "sharma-traders")
	if got := r.Resolve(req); got != "sharma-traders" {
		t.Fatalf("expected header to win, got %q", got)
	}
}

func TestResolveSubdomain(t *testing.T) {
	r := NewResolver("", "khata.app", "")
	cases := []struct {
		host string
		want string
	}{
		{"acme.khata.app", "acme"},
		{"acme.khata.app:8080", "acme"},
		{"khata.app", ""},
		{"other.example.com", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://placeholder/", nil)
		req.Host = tc.host
		if got := r.Resolve(req); got != tc.want {
			t.Fatalf("host %q: want %q got %q", tc.host, tc.want, got)
		}
	}
}

func TestResolveIgnoresHostWithoutRootDomain(t *testing.T) {
	r := NewResolver("", "", "")
	for _, host := range []string{"localhost", "localhost:8080", "api.internal"} {
		req := httptest.NewRequest(http.MethodGet, "http://placeholder/", nil)
		req.Host = host
		if got := r.Resolve(req); got != "" {
			t.Fatalf("host %q: expected no company without a root domain, got %q", host, got)
		}
	}
}

func TestMiddlewareInjectsCompany(t *testing.T) {
	r := NewResolver("", "", "default-co")
	var seen string
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = FromContext(req.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "default-co" {
		t.Fatalf("expected default company fallback, got %q", seen)
	}
}

func TestRequireRejectsMissingScope(t *testing.T) {
	handler := Require(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("handler should not run without company scope")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPrefixKey(t *testing.T) {
	if got := PrefixKey("acme", "invoice:1"); got != "acme:invoice:1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := PrefixKey("", "invoice:1"); got != "invoice:1" {
		t.Fatalf("unexpected key %q", got)
	}
}
