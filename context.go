package identity

import (
	"context"
	"strings"
)

// DefaultTenantID scopes ledger keys and audit events when the caller sets
// no tenant.
const DefaultTenantID = "0"

type ctxKey int

const (
	clientIPKey ctxKey = iota
	tenantIDKey
)

// WithClientIP attaches the caller's IP address to ctx for throttling and
// audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, strings.TrimSpace(ip))
}

// WithTenantID scopes every ledger key and audit event of calls made with ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, strings.TrimSpace(tenantID))
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

func tenantIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if id, _ := ctx.Value(tenantIDKey).(string); id != "" {
			return id
		}
	}
	return DefaultTenantID
}
