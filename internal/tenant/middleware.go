package tenant

import (
	"net"
	"net/http"
	"strings"

	"github.com/khatapp/backend-khata/internal/common"
)

// Resolver resolves company identifiers from HTTP requests using either headers or subdomains.
type Resolver struct {
	HeaderName     string
	RootDomain     string
	DefaultCompany string
}

// NewResolver returns a resolver configured with the provided header name,
// root domain, and default company slug. If headerName is empty,
// "X-Company-ID" is used.
func NewResolver(headerName, rootDomain, defaultCompany string) *Resolver {
	if headerName == "" {
		headerName = "X-Company-ID"
	}
	return &Resolver{
		HeaderName:     headerName,
		RootDomain:     strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultCompany: strings.TrimSpace(defaultCompany),
	}
}

// Middleware resolves the company from the request and injects it into the
// context passed downstream.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		companyID := r.Resolve(req)
		if companyID == "" {
			companyID = r.DefaultCompany
		}
		if companyID != "" {
			ctx := WithCompany(req.Context(), companyID)
			req = req.WithContext(ctx)
		}
		next.ServeHTTP(w, req)
	})
}

// Require rejects requests that carry no resolvable company scope.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			common.WriteError(w, common.BadRequest("company scope is required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Resolve attempts to find the company identifier from the configured header
// or the request subdomain.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if companyID := strings.TrimSpace(req.Header.Get(r.HeaderName)); companyID != "" {
		return companyID
	}

	host := hostWithoutPort(req.Host)
	if host == "" {
		return ""
	}
	return strings.TrimSpace(r.subdomainFromHost(host))
}

// subdomainFromHost extracts the company slug from the host. Subdomain
// resolution only applies under a configured root domain; without one any
// host label would masquerade as a slug and shadow the default company.
func (r *Resolver) subdomainFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.RootDomain == "" {
		return ""
	}
	if host == r.RootDomain {
		return ""
	}
	suffix := "." + r.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(host, suffix), ".")
	return parts[0]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 {
			host := hostport[1:idx]
			if host != "" {
				return host
			}
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}
