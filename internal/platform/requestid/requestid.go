package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request id on outbound registry calls.
const Header = "X-Request-Id"

type ctxKey struct{}

func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithContext attaches id to ctx.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(id))
}

// FromContext returns the id stored in ctx, generating a fresh one when absent.
func FromContext(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
			return id
		}
	}
	return New()
}
