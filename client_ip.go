package session

import (
	"context"
	"strings"

	"github.com/goliatone/go-router"
)

type clientIPKey struct{}

// WithClientIP stores the requesting client's address on the context so
// audit and activity records keep it across collaborator boundaries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP, or
// an empty string when the caller recorded none.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ClientIP extracts the requester's address from proxy headers, falling
// back to the transport peer when no proxy is in front.
func ClientIP(c router.Context) string {
	if xf := c.Header("X-Forwarded-For"); xf != "" {
		// the left-most entry is the originating client
		if i := strings.IndexByte(xf, ','); i >= 0 {
			return strings.TrimSpace(xf[:i])
		}
		return strings.TrimSpace(xf)
	}

	if xr := c.Header("X-Real-IP"); xr != "" {
		return strings.TrimSpace(xr)
	}

	if peer, ok := c.(interface{ IP() string }); ok {
		return peer.IP()
	}
	return ""
}
