package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/event"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

func u64(v uint64) *uint64 { return &v }

func strp(s string) *string { return &s }

func payment(id string, amount uint64) model.Transaction {
	return model.Transaction{ID: id, Type: model.TxTypePayment, Payment: &model.PaymentFields{Amount: amount}}
}

func assetTransfer(id string, asset, amount uint64) model.Transaction {
	return model.Transaction{ID: id, Type: model.TxTypeAssetTransfer, AssetTransfer: &model.AssetTransferFields{AssetID: asset, Amount: amount}}
}

func appCall(id string, app uint64, inner ...model.Transaction) model.Transaction {
	return model.Transaction{
		ID:              id,
		Type:            model.TxTypeApplicationCall,
		ApplicationCall: &model.ApplicationCallFields{ApplicationID: app, OnCompletion: model.OnCompletionNoOp},
		InnerTxns:       inner,
	}
}

func mustFilters(t *testing.T, filters ...model.NamedFilter) *model.FilterSet {
	t.Helper()
	fs, err := model.NewFilterSet(filters)
	require.NoError(t, err)
	return fs
}

func TestMatches_InnerTransactionRecursion(t *testing.T) {
	root := appCall("root", 1002541853,
		appCall("root/inner/1", 99,
			assetTransfer("root/inner/2", 31566704, 2_000_000),
		),
	)
	filter := model.Filter{Type: model.TxTypeAssetTransfer, AssetID: []uint64{31566704}, MinAmount: u64(1_000_000)}

	assert.True(t, Matches(&root, filter))
	assert.False(t, Matches(&root, model.Filter{Type: model.TxTypeAssetTransfer, AssetID: []uint64{312769}}))
}

func TestMatches_EmptyFilterMatchesEverything(t *testing.T) {
	txns := []model.Transaction{
		payment("a", 0),
		assetTransfer("b", 1, 1),
		appCall("c", 5),
		{ID: "d", Type: model.TxTypeKeyRegistration},
		{ID: "e", Type: "unknown-future-type"},
	}
	for i := range txns {
		assert.True(t, Matches(&txns[i], model.Filter{}), txns[i].ID)
	}
}

func TestMatches_EmptyIDListIsUnrestricted(t *testing.T) {
	call := appCall("a", 123456)
	assert.True(t, Matches(&call, model.Filter{Type: model.TxTypeApplicationCall, ApplicationID: []uint64{}}))
	assert.True(t, Matches(&call, model.Filter{Type: model.TxTypeApplicationCall}))
	assert.False(t, Matches(&call, model.Filter{Type: model.TxTypeApplicationCall, ApplicationID: []uint64{1}}))
}

func TestMatches_NotePrefix(t *testing.T) {
	testCases := []struct {
		name   string
		note   []byte
		prefix string
		want   bool
	}{
		{"exact prefix", []byte("tinyman-pool-swap-v2"), "tinyman", true},
		{"case sensitive", []byte("Tinyman swap"), "tinyman", false},
		{"shorter note", []byte("tiny"), "tinyman", false},
		{"empty note", nil, "tinyman", false},
		{"empty prefix", []byte("anything"), "", true},
		{"invalid utf8", []byte{0x74, 0x69, 0xff, 0xfe}, "ti", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx := payment("a", 1)
			tx.Note = tc.note
			assert.Equal(t, tc.want, Matches(&tx, model.Filter{NotePrefix: strp(tc.prefix)}))
		})
	}
}

func TestMatches_MinAmountBoundary(t *testing.T) {
	filter := model.Filter{Type: model.TxTypePayment, MinAmount: u64(10_000_000)}

	below := payment("below", 9_999_999)
	equal := payment("equal", 10_000_000)
	above := payment("above", 10_000_001)
	assert.False(t, Matches(&below, filter))
	assert.True(t, Matches(&equal, filter))
	assert.True(t, Matches(&above, filter))

	noAmount := appCall("call", 1)
	assert.False(t, Matches(&noAmount, model.Filter{MinAmount: u64(0)}))
}

func TestMatches_AssetAllowList(t *testing.T) {
	filter := model.Filter{Type: model.TxTypeAssetTransfer, AssetID: []uint64{31566704, 312769}}
	usdc := assetTransfer("a", 31566704, 1)
	other := assetTransfer("b", 386192725, 1)
	pay := payment("c", 1)
	assert.True(t, Matches(&usdc, filter))
	assert.False(t, Matches(&other, filter))
	assert.False(t, Matches(&pay, model.Filter{AssetID: []uint64{31566704}}))
}

func batch() []event.RoundContents {
	return []event.RoundContents{
		{Round: 100, Transactions: []model.Transaction{
			payment("p1", 20_000_000),
			appCall("c1", 1002541853,
				assetTransfer("c1/inner/1", 31566704, 2_000_000),
				assetTransfer("c1/inner/2", 31566704, 3_000_000),
			),
		}},
		{Round: 101},
		{Round: 102, Transactions: []model.Transaction{
			assetTransfer("x1", 312769, 5_000_000),
			payment("p2", 5),
		}},
	}
}

func filterSet(t *testing.T) *model.FilterSet {
	return mustFilters(t,
		model.NamedFilter{Name: "tinyman_app_calls", Filter: model.Filter{Type: model.TxTypeApplicationCall, ApplicationID: []uint64{1002541853, 350338509}}},
		model.NamedFilter{Name: "major_asset_transfers", Filter: model.Filter{Type: model.TxTypeAssetTransfer, AssetID: []uint64{31566704, 312769}, MinAmount: u64(1_000_000)}},
		model.NamedFilter{Name: "algo_transfers", Filter: model.Filter{Type: model.TxTypePayment, MinAmount: u64(10_000_000)}},
		model.NamedFilter{Name: "nothing", Filter: model.Filter{Type: model.TxTypeStateProof}},
		model.NamedFilter{Name: "all_transactions", Filter: model.Filter{}},
	)
}

func ids(txns []*model.Transaction) []string {
	out := make([]string, len(txns))
	for i, tx := range txns {
		out[i] = tx.ID
	}
	return out
}

func TestMatch_BucketsInRegistrationAndLedgerOrder(t *testing.T) {
	m := New(filterSet(t), 1, slog.Default())
	ms, err := m.Match(context.Background(), batch())
	require.NoError(t, err)

	assert.Equal(t, model.Round(100), ms.FromRound)
	assert.Equal(t, model.Round(102), ms.ToRound)
	require.Len(t, ms.Buckets, 5)
	assert.Equal(t, "tinyman_app_calls", ms.Buckets[0].Filter)
	assert.Equal(t, "all_transactions", ms.Buckets[4].Filter)

	assert.Equal(t, []string{"c1"}, ids(ms.Get("tinyman_app_calls")))
	// c1 is listed once although two of its inner transfers match.
	assert.Equal(t, []string{"c1", "x1"}, ids(ms.Get("major_asset_transfers")))
	assert.Equal(t, []string{"p1"}, ids(ms.Get("algo_transfers")))
	assert.Empty(t, ms.Get("nothing"))
	assert.Equal(t, []string{"p1", "c1", "x1", "p2"}, ids(ms.Get("all_transactions")))
	assert.Equal(t, 8, ms.Total())
}

func TestMatch_ReplayIsIdempotent(t *testing.T) {
	m := New(filterSet(t), 1, slog.Default())
	rounds := batch()

	first, err := m.Match(context.Background(), rounds)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), rounds)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatch_WorkersDoNotChangeResult(t *testing.T) {
	rounds := batch()
	sequential, err := New(filterSet(t), 1, slog.Default()).Match(context.Background(), rounds)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			parallel, err := New(filterSet(t), workers, slog.Default()).Match(context.Background(), rounds)
			require.NoError(t, err)
			assert.Equal(t, sequential, parallel)
		})
	}
}

func TestMatch_EmptyFilterMatchesAllFiveInRound(t *testing.T) {
	round := event.RoundContents{Round: 7}
	for i := 0; i < 5; i++ {
		round.Transactions = append(round.Transactions, payment(fmt.Sprintf("t%d", i), uint64(i)))
	}
	m := New(mustFilters(t, model.NamedFilter{Name: "all", Filter: model.Filter{}}), 1, slog.Default())
	ms, err := m.Match(context.Background(), []event.RoundContents{round})
	require.NoError(t, err)
	assert.Len(t, ms.Get("all"), 5)
}

func TestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(filterSet(t), 2, slog.Default()).Match(ctx, batch())
	assert.ErrorIs(t, err, context.Canceled)
}
