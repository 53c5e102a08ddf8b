package session_test

import (
	"context"
	"testing"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
)

func TestClientIP_ForwardedFor(t *testing.T) {
	ctx := new(MockContext)
	ctx.On("Header", "X-Forwarded-For").Return("203.0.113.9, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", session.ClientIP(ctx))
}

func TestClientIP_RealIP(t *testing.T) {
	ctx := new(MockContext)
	ctx.On("Header", "X-Forwarded-For").Return("")
	ctx.On("Header", "X-Real-IP").Return(" 198.51.100.7 ")

	assert.Equal(t, "198.51.100.7", session.ClientIP(ctx))
}

func TestClientIP_NoHeaders(t *testing.T) {
	ctx := new(MockContext)
	ctx.On("Header", "X-Forwarded-For").Return("")
	ctx.On("Header", "X-Real-IP").Return("")

	assert.Equal(t, "", session.ClientIP(ctx))
}

func TestClientIPContext(t *testing.T) {
	ctx := session.WithClientIP(context.Background(), "203.0.113.9")
	assert.Equal(t, "203.0.113.9", session.ClientIPFromContext(ctx))

	// an empty ip leaves the context untouched
	assert.Equal(t, "", session.ClientIPFromContext(session.WithClientIP(context.Background(), "")))
	assert.Equal(t, "", session.ClientIPFromContext(context.Background()))
}
