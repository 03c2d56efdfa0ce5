package audit

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
)

// HTTPRecorder records mutating HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// Middleware audits every non-read request passing through it. Reads are
// skipped; the trail covers mutations only.
func (r HTTPRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.Service == nil || !r.Service.Enabled || isReadMethod(req.Method) {
			next.ServeHTTP(w, req)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, req)

		if err := r.Service.Record(req.Context(), r.actor(req), "", "", "", req, recorder.Status(), nil); err != nil && r.OnError != nil {
			r.OnError(err)
		}
	})
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (r HTTPRecorder) actor(req *http.Request) Actor {
	if raw, ok := common.UserID(req.Context()); ok && raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return Actor{Kind: ActorKindUser, UserID: &id}
		}
	}
	return Actor{Kind: ActorKindAnonymous}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
