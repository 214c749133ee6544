package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:         AlertTypeUnhealthy,
		Subscription: "dex-monitor",
		Title:        "Subscription unhealthy",
		Message:      "5 consecutive batch failures",
		Fields: map[string]string{
			"watermark": "36000000",
			"error":     "ledger service unavailable",
		},
	}
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func TestMultiAlerter_Send_AllChannels(t *testing.T) {
	slackSrv, slackReceived := countingServer(t, http.StatusOK)
	webhookSrv, webhookReceived := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(webhookSrv.URL))
	require.NoError(t, multi.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(1), slackReceived.Load())
	assert.Equal(t, int32(1), webhookReceived.Load())
	assert.Equal(t, 2, multi.Len())
}

func TestMultiAlerter_NoChannels(t *testing.T) {
	multi := NewMultiAlerter(time.Hour, testLogger())
	assert.NoError(t, multi.Send(context.Background(), testAlert()))
}

func TestMultiAlerter_Cooldown(t *testing.T) {
	srv, received := countingServer(t, http.StatusOK)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	multi := NewMultiAlerter(30*time.Minute, testLogger(), NewWebhookAlerter(srv.URL))
	multi.now = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), received.Load(), "repeat within cooldown is suppressed")

	other := testAlert()
	other.Subscription = "other"
	require.NoError(t, multi.Send(context.Background(), other))
	assert.Equal(t, int32(2), received.Load(), "cooldown is per subscription")

	recovery := testAlert()
	recovery.Type = AlertTypeRecovery
	require.NoError(t, multi.Send(context.Background(), recovery))
	assert.Equal(t, int32(3), received.Load(), "cooldown is per type")

	now = now.Add(31 * time.Minute)
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(4), received.Load(), "sent again after cooldown")
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	failSrv, _ := countingServer(t, http.StatusInternalServerError)
	goodSrv, goodReceived := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	assert.ErrorContains(t, err, "webhook returned status 500")
	assert.Equal(t, int32(1), goodReceived.Load())
}

func captureServer(t *testing.T) (*httptest.Server, *[]byte) {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		body = b
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestSlackAlerter_PayloadFormat(t *testing.T) {
	srv, body := captureServer(t)

	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(*body, &payload))
	text := payload["text"]
	assert.True(t, strings.HasPrefix(text, ":warning: *[UNHEALTHY]* dex-monitor: Subscription unhealthy"), text)
	assert.Contains(t, text, "5 consecutive batch failures")
	// Fields are listed in key order.
	assert.Less(t, strings.Index(text, "*error*"), strings.Index(text, "*watermark*"))
}

func TestSlackAlerter_Emoji(t *testing.T) {
	testCases := []struct {
		alertType AlertType
		emoji     string
	}{
		{AlertTypeUnhealthy, ":warning:"},
		{AlertTypeRecovery, ":white_check_mark:"},
		{AlertTypeFailed, ":rotating_light:"},
		{AlertTypeSkipped, ":fast_forward:"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.alertType), func(t *testing.T) {
			srv, body := captureServer(t)
			require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), Alert{Type: tc.alertType, Subscription: "s", Title: "t", Message: "m"}))

			var p map[string]string
			require.NoError(t, json.Unmarshal(*body, &p))
			assert.True(t, strings.HasPrefix(p["text"], tc.emoji), p["text"])
		})
	}
}

func TestWebhookAlerter_PayloadFormat(t *testing.T) {
	srv, body := captureServer(t)

	beforeSend := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, NewWebhookAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(*body, &payload))
	assert.Equal(t, "UNHEALTHY", payload["type"])
	assert.Equal(t, "dex-monitor", payload["subscription"])
	assert.Equal(t, "Subscription unhealthy", payload["title"])
	assert.Equal(t, "5 consecutive batch failures", payload["message"])

	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "36000000", fields["watermark"])

	ts, err := time.Parse(time.RFC3339, payload["time"].(string))
	require.NoError(t, err)
	assert.False(t, ts.Before(beforeSend))
}
