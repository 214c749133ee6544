package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
)

const (
	tokenHeader        = "X-Indexer-API-Token"
	maxErrorBodyBytes  = 512
	defaultHTTPTimeout = 30 * time.Second
)

// Client searches an indexer REST endpoint. It implements ledger.Index.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

var _ ledger.Index = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger.With("component", "indexer"),
	}
}

// SearchTransactions returns one page of root transactions matching q. When
// an inner transaction matches, the indexer returns its root transaction.
func (c *Client) SearchTransactions(ctx context.Context, q ledger.Query, next string) (*ledger.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transactions?"+encodeQuery(q, next).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("indexer search: %v: %w", err, ledger.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer search: read response: %v: %w", err, ledger.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer search: %w", statusError(resp.StatusCode, body))
	}

	var out transactionsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("indexer search: unmarshal response: %w", err)
	}

	page := &ledger.Page{
		Transactions: make([]model.Transaction, 0, len(out.Transactions)),
		CurrentRound: model.Round(out.CurrentRound),
	}
	// The indexer keeps returning a next-token on the last page; an empty
	// page ends pagination.
	if len(out.Transactions) > 0 {
		page.NextToken = out.NextToken
	}
	for i := range out.Transactions {
		page.Transactions = append(page.Transactions, convert(&out.Transactions[i]))
	}
	return page, nil
}

func encodeQuery(q ledger.Query, next string) url.Values {
	v := url.Values{}
	if q.MinRound > 0 {
		v.Set("min-round", strconv.FormatUint(uint64(q.MinRound), 10))
	}
	if q.MaxRound > 0 {
		v.Set("max-round", strconv.FormatUint(uint64(q.MaxRound), 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if next != "" {
		v.Set("next", next)
	}
	if q.Type != "" {
		v.Set("tx-type", string(q.Type))
	}
	if q.ApplicationID > 0 {
		v.Set("application-id", strconv.FormatUint(q.ApplicationID, 10))
	}
	if q.AssetID > 0 {
		v.Set("asset-id", strconv.FormatUint(q.AssetID, 10))
	}
	// currency-greater-than is exclusive and means microAlgos unless an
	// asset id is given, so it only applies to payments or a fixed asset.
	if q.MinAmount != nil && *q.MinAmount > 0 && (q.Type == model.TxTypePayment || q.AssetID > 0) {
		v.Set("currency-greater-than", strconv.FormatUint(*q.MinAmount-1, 10))
	}
	return v
}

func statusError(code int, body []byte) error {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	msg := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusBadRequest:
		return fmt.Errorf("http status %d: %s: %w", code, msg, ledger.ErrInvalidQuery)
	case code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("http status %d: %s: %w", code, msg, ledger.ErrUnavailable)
	default:
		return fmt.Errorf("http status %d: %s", code, msg)
	}
}

func convert(t *transaction) model.Transaction {
	tx := convertOne(t, t.ID, model.Round(t.ConfirmedRound), t.IntraRoundOffset)
	n := 0
	attachInner(&tx, t, t.ID, &n)
	return tx
}

// attachInner mirrors the node client's "<root>/inner/<n>" pre-order IDs so
// both fetch strategies deliver identical transactions.
func attachInner(parent *model.Transaction, t *transaction, rootID string, n *int) {
	if len(t.InnerTxns) == 0 {
		return
	}
	parent.InnerTxns = make([]model.Transaction, 0, len(t.InnerTxns))
	for i := range t.InnerTxns {
		*n++
		child := convertOne(&t.InnerTxns[i], fmt.Sprintf("%s/inner/%d", rootID, *n), parent.ConfirmedRound, parent.IntraRoundOffset)
		attachInner(&child, &t.InnerTxns[i], rootID, n)
		parent.InnerTxns = append(parent.InnerTxns, child)
	}
}

func convertOne(t *transaction, id string, round model.Round, offset uint64) model.Transaction {
	tx := model.Transaction{
		ID:               id,
		Sender:           t.Sender,
		ConfirmedRound:   round,
		IntraRoundOffset: offset,
		Type:             model.TxType(t.TxType),
		Fee:              t.Fee,
		Note:             t.Note,
	}
	if p := t.PaymentTransaction; p != nil {
		tx.Payment = &model.PaymentFields{
			Receiver:         p.Receiver,
			Amount:           p.Amount,
			CloseRemainderTo: p.CloseRemainderTo,
		}
	}
	if a := t.AssetTransferTransaction; a != nil {
		tx.AssetTransfer = &model.AssetTransferFields{
			AssetID:  a.AssetID,
			Receiver: a.Receiver,
			Amount:   a.Amount,
			CloseTo:  a.CloseTo,
		}
	}
	if a := t.ApplicationTransaction; a != nil {
		tx.ApplicationCall = &model.ApplicationCallFields{
			ApplicationID: a.ApplicationID,
			Args:          a.ApplicationArgs,
			OnCompletion:  model.OnCompletion(a.OnCompletion),
		}
	}
	return tx
}
