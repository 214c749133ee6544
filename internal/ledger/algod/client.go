package algod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
)

const (
	tokenHeader        = "X-Algo-API-Token"
	maxErrorBodyBytes  = 512
	defaultHTTPTimeout = 30 * time.Second
)

// Client reads rounds from an algod REST endpoint. It implements ledger.Node.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

var _ ledger.Node = (*Client)(nil)

// NewClient returns a client for baseURL. timeout bounds each request except
// the wait-for-block long poll, which is bounded by its context.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger.With("component", "algod"),
	}
}

func (c *Client) Tip(ctx context.Context) (model.Round, error) {
	st, err := c.status(ctx, "/v2/status", c.httpClient)
	if err != nil {
		return 0, fmt.Errorf("algod status: %w", err)
	}
	return model.Round(st.LastRound), nil
}

func (c *Client) WaitForRoundAfter(ctx context.Context, round model.Round) (model.Round, error) {
	// Long poll: the node holds the request for up to a minute, so the
	// per-request client timeout does not apply.
	longPoll := &http.Client{Transport: c.httpClient.Transport}
	st, err := c.status(ctx, fmt.Sprintf("/v2/status/wait-for-block-after/%d", round), longPoll)
	if err != nil {
		return 0, fmt.Errorf("algod wait for block after %d: %w", round, err)
	}
	return model.Round(st.LastRound), nil
}

func (c *Client) Round(ctx context.Context, round model.Round) ([]model.Transaction, error) {
	body, err := c.get(ctx, fmt.Sprintf("/v2/blocks/%d?format=msgpack", round), c.httpClient)
	if errors.Is(err, ledger.ErrNotFound) {
		// algod answers 404 both for pruned and for future rounds.
		if tip, tipErr := c.Tip(ctx); tipErr == nil && round > tip {
			return nil, fmt.Errorf("algod block %d (last round %d): %w", round, tip, ledger.ErrNotYetFinalized)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("algod block %d: %w", round, err)
	}

	txns, err := DecodeBlock(body)
	if err != nil {
		return nil, fmt.Errorf("algod block %d: %w", round, err)
	}
	return txns, nil
}

type nodeStatus struct {
	LastRound uint64 `json:"last-round"`
}

func (c *Client) status(ctx context.Context, path string, hc *http.Client) (*nodeStatus, error) {
	body, err := c.get(ctx, path, hc)
	if err != nil {
		return nil, err
	}
	var st nodeStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &st, nil
}

func (c *Client) get(ctx context.Context, path string, hc *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("http request: %v: %w", err, ledger.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, ledger.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func statusError(code int, body []byte) error {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	msg := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("http status %d: %s: %w", code, msg, ledger.ErrNotFound)
	case code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("http status %d: %s: %w", code, msg, ledger.ErrUnavailable)
	default:
		return fmt.Errorf("http status %d: %s", code, msg)
	}
}
