package tenant

import (
	"context"
	"strings"
)

type contextKey string

const companyContextKey contextKey = "company.id"

// WithCompany stores the company identifier inside the context.
func WithCompany(ctx context.Context, companyID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, companyContextKey, companyID)
}

// FromContext extracts the company identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	companyID, ok := ctx.Value(companyContextKey).(string)
	if !ok {
		return "", false
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return "", false
	}
	return companyID, true
}

// PrefixKey creates a namespaced cache/queue key per company slug or id.
func PrefixKey(companySlugOrID, key string) string {
	if companySlugOrID == "" {
		return key
	}
	return companySlugOrID + ":" + key
}
