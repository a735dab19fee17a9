package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger_AddsContextFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req_1")
	ctx = WithUserID(ctx, "1")
	cl.LogRequest(ctx, "GET", "/api/v1/streams", 200, 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req_1", fields["request_id"])
		assert.Equal(t, "1", fields["user_id"])
		assert.Equal(t, int64(200), fields["status_code"])
	}
	assert.Equal(t, "req_1", RequestIDFrom(ctx))
}

func TestNew_FallsBackOnUnknownLevel(t *testing.T) {
	l := New("loud", "json")
	assert.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
