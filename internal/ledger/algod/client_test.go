package algod

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(handler func(*http.Request) (*http.Response, error)) *Client {
	client := NewClient("http://algod.local/", "secret", 0, slog.Default())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(handler),
	}
	return client
}

func httpResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestTip(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/status", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Algo-API-Token"))
		return httpResponse(http.StatusOK, []byte(`{"last-round":36000500,"time-since-last-round":1200}`)), nil
	})

	tip, err := client.Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Round(36_000_500), tip)
}

func TestWaitForRoundAfter(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/status/wait-for-block-after/100", r.URL.Path)
		return httpResponse(http.StatusOK, []byte(`{"last-round":101}`)), nil
	})

	last, err := client.WaitForRoundAfter(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, model.Round(101), last)
}

func TestRound_DecodesMsgpackBlock(t *testing.T) {
	block := testBlock(t)
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/blocks/36000500", r.URL.Path)
		assert.Equal(t, "msgpack", r.URL.Query().Get("format"))
		return httpResponse(http.StatusOK, block), nil
	})

	txns, err := client.Round(context.Background(), 36_000_500)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, model.TxTypeApplicationCall, txns[1].Type)
}

func TestRound_FutureRoundIsNotYetFinalized(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if strings.HasPrefix(r.URL.Path, "/v2/blocks/") {
			return httpResponse(http.StatusNotFound, []byte(`{"message":"ledger does not have entry"}`)), nil
		}
		return httpResponse(http.StatusOK, []byte(`{"last-round":100}`)), nil
	})

	_, err := client.Round(context.Background(), 101)
	assert.ErrorIs(t, err, ledger.ErrNotYetFinalized)
	assert.False(t, errors.Is(err, ledger.ErrNotFound))
}

func TestRound_PrunedRoundIsNotFound(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if strings.HasPrefix(r.URL.Path, "/v2/blocks/") {
			return httpResponse(http.StatusNotFound, []byte(`{"message":"ledger does not have entry"}`)), nil
		}
		return httpResponse(http.StatusOK, []byte(`{"last-round":100}`)), nil
	})

	_, err := client.Round(context.Background(), 5)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRound_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"throttled", http.StatusTooManyRequests, ledger.ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ledger.ErrUnavailable},
		{"service unavailable", http.StatusServiceUnavailable, ledger.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(func(*http.Request) (*http.Response, error) {
				return httpResponse(tt.status, []byte("upstream down")), nil
			})
			_, err := client.Round(context.Background(), 1)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorContains(t, err, "upstream down")
		})
	}
}

func TestRound_BadRequestIsTerminal(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusUnauthorized, []byte("invalid token")), nil
	})
	_, err := client.Round(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, ledger.IsTransient(err))
}

func TestGet_TransportErrorIsUnavailable(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := client.Tip(context.Background())
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestGet_CancelledContext(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Tip(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ledger.ErrUnavailable))
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("https://mainnet-api.algonode.cloud/", "", 0, slog.Default())
	assert.Equal(t, "https://mainnet-api.algonode.cloud", c.baseURL)
}
