package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/khatapp/backend-khata/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func readyStatus(t *testing.T, handler health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rr.Code, status
}

func TestLiveAlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestReadyWithHealthyDependencies(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{}, DBTimeout: 50 * time.Millisecond, RedisTimeout: 50 * time.Millisecond}
	code, status := readyStatus(t, handler)
	if code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if status["db"] != "ok" || status["redis"] != "ok" {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	cases := []struct {
		name    string
		checker stubChecker
		degrade string
	}{
		{"db down", stubChecker{dbErr: errors.New("db down")}, "db"},
		{"redis down", stubChecker{redisErr: errors.New("redis down")}, "redis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := health.Handler{Checker: tc.checker, DBTimeout: 10 * time.Millisecond, RedisTimeout: 10 * time.Millisecond}
			code, status := readyStatus(t, handler)
			if code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503 got %d", code)
			}
			if status[tc.degrade] == "ok" {
				t.Fatalf("expected %s to report its error, got %#v", tc.degrade, status)
			}
		})
	}
}
