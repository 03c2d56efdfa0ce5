package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern records the matched chi route pattern so the metrics
// middleware can label by template rather than raw path, which would
// explode cardinality on ids.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the recorded route pattern, or "" when
// the request never matched a route.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(routePatternKey{}).(string)
	return pattern
}
