package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "obs.request_id"
	actorTypeKey ctxKey = "obs.actor_type"
	actorIDKey   ctxKey = "obs.actor_id"
	clientIPKey  ctxKey = "obs.client_ip"
)

// Keys under which HTTP handlers leave license details on the gin context for
// the request logger and tracer.
const (
	GinKeyRequestID      = "request_id"
	GinKeyLicenseDomain  = "license_domain"
	GinKeyLicenseOutcome = "license_outcome"
)

const (
	ActorTypeAdmin   = "admin"
	ActorTypeClient  = "client"
	ActorTypeSystem  = "system"
	ActorTypeWebhook = "webhook"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActor records who is acting on the request, e.g. an admin token name.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, strings.TrimSpace(ip))
}

func ClientIPFromContext(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
