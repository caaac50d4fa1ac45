package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/consent/internal/consent/audit"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

func TestLogAction(t *testing.T) {
	at := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	log := audit.New(&buf, "consent").WithClock(func() time.Time { return at })

	ctx := slogx.WithRequestID(context.Background(), "req-123")
	ctx = httpx.ContextWithClaims(ctx, jwtx.NewClaims("u-solo", "", nil, time.Minute, at))

	err := log.LogAction(ctx, service.ActionPolicyDeclined, service.DeclineEvent{
		PolicyID: "terms", UserID: "u-solo", Reason: "later", DeclinedAt: at,
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "audit", entry["type"])
	require.Equal(t, "policy_declined", entry["event"])
	require.Equal(t, "2025-01-10T12:00:00Z", entry["ts"])
	require.Equal(t, "req-123", entry["request_id"])
	require.Equal(t, "u-solo", entry["user_id"])
	require.NotContains(t, entry, "time")

	fields, ok := entry["fields"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "terms", fields["policyId"])
	require.Equal(t, "later", fields["reason"])
}

func TestLogActionRequiresAction(t *testing.T) {
	var buf bytes.Buffer
	log := audit.New(&buf, "consent")

	require.ErrorIs(t, log.LogAction(context.Background(), "  ", nil), audit.ErrEmptyAction)
	require.Zero(t, buf.Len())

	require.NoError(t, log.LogAction(context.Background(), "ping", nil))
	require.NotContains(t, buf.String(), "request_id")
	require.NotContains(t, buf.String(), "fields")
}
