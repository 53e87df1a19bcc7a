package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithActorRole(ctx, "agent")
	log.Error(ctx, "payout failed", errors.New("insufficient funds"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "agent", entry["actor_role"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "insufficient funds", entry["error"])

	frames, ok := entry["stack"].([]any)
	require.True(t, ok, "stack should be a list")
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0], "TestErrorCarriesContextFieldsAndStack")
}

func TestFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	parent := log.WithUserID(context.Background(), "u-1")
	_ = log.WithShipment(parent, "ship-1", "")
	log.Info(parent, "parent only")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "u-1", entry["user_id"])
	assert.NotContains(t, entry, "shipment_id")
}

func TestWithShipmentOmitsEmptyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	log.Info(log.WithShipment(context.Background(), "ship-1", ""), "created")
	entry := decodeEntry(t, buf)
	assert.Equal(t, "ship-1", entry["shipment_id"])
	assert.NotContains(t, entry, "order_id")

	buf.Reset()
	log.Info(log.WithShipment(context.Background(), "ship-2", "order-9"), "created")
	assert.Equal(t, "order-9", decodeEntry(t, buf)["order_id"])
}

func TestWithFieldsAndNilContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "cron", Output: buf})

	//nolint:staticcheck // nil context is tolerated
	ctx := log.WithFields(nil, map[string]any{"job": "ledger-export", "attempt": 2})
	log.Info(ctx, "tick")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "ledger-export", entry["job"])
	assert.EqualValues(t, 2, entry["attempt"])
}

func TestWarnStackToggle(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		buf := &bytes.Buffer{}
		log := New(Options{ServiceName: "api", Output: buf, WarnStack: enabled})
		log.Warn(context.Background(), "slow query")
		_, has := decodeEntry(t, buf)["stack"]
		assert.Equal(t, enabled, has)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})
	log.Debug(context.Background(), "quiet")
	assert.Zero(t, buf.Len())

	quiet := New(Options{ServiceName: "api", Level: "fatal", Output: buf})
	quiet.Error(context.Background(), "dropped", errors.New("x"))
	assert.Zero(t, buf.Len())

	unknown := New(Options{ServiceName: "api", Level: "verbose", Output: buf})
	unknown.Debug(context.Background(), "still quiet")
	assert.Zero(t, buf.Len())
	unknown.Info(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: "Console", Output: buf})
	log.Info(context.Background(), "hello")
	assert.NotEqual(t, byte('{'), bytes.TrimSpace(buf.Bytes())[0])
	assert.Contains(t, buf.String(), "hello")
}
