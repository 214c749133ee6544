package algod

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

var onCompletionNames = []model.OnCompletion{
	model.OnCompletionNoOp,
	model.OnCompletionOptIn,
	model.OnCompletionCloseOut,
	model.OnCompletionClearState,
	model.OnCompletionUpdate,
	model.OnCompletionDeleteApp,
}

// DecodeBlock converts a msgpack block response into root transactions in
// block order with their inner transactions nested.
func DecodeBlock(body []byte) ([]model.Transaction, error) {
	var resp blockResponse
	if err := msgpack.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	b := &resp.Block
	round := model.Round(b.Round)

	txns := make([]model.Transaction, 0, len(b.Txns))
	for i := range b.Txns {
		stib := &b.Txns[i]

		var raw map[string]interface{}
		if err := msgpack.Unmarshal(stib.Txn, &raw); err != nil {
			return nil, fmt.Errorf("decode txn %d: %w", i, err)
		}
		// Blocks strip genesis fields from transactions; the hash covers them.
		if stib.HasGenesisID {
			raw["gen"] = b.GenesisID
		}
		if stib.HasGenesisHash {
			raw["gh"] = b.GenesisHash
		}
		id, err := TxID(raw)
		if err != nil {
			return nil, fmt.Errorf("txid %d: %w", i, err)
		}

		tx, err := convert(stib, id, round, uint64(i))
		if err != nil {
			return nil, fmt.Errorf("txn %s: %w", id, err)
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

func convert(stib *signedTxnInBlock, id string, round model.Round, offset uint64) (model.Transaction, error) {
	tx, err := convertOne(stib, id, round, offset)
	if err != nil {
		return model.Transaction{}, err
	}
	n := 0
	if err := attachInner(&tx, stib, id, &n); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

// attachInner numbers inner transactions in pre-order from 1, giving each
// the ID "<root>/inner/<n>".
func attachInner(parent *model.Transaction, stib *signedTxnInBlock, rootID string, n *int) error {
	if stib.EvalDelta == nil || len(stib.EvalDelta.InnerTxns) == 0 {
		return nil
	}
	parent.InnerTxns = make([]model.Transaction, 0, len(stib.EvalDelta.InnerTxns))
	for i := range stib.EvalDelta.InnerTxns {
		inner := &stib.EvalDelta.InnerTxns[i]
		*n++
		child, err := convertOne(inner, fmt.Sprintf("%s/inner/%d", rootID, *n), parent.ConfirmedRound, parent.IntraRoundOffset)
		if err != nil {
			return err
		}
		if err := attachInner(&child, inner, rootID, n); err != nil {
			return err
		}
		parent.InnerTxns = append(parent.InnerTxns, child)
	}
	return nil
}

func convertOne(stib *signedTxnInBlock, id string, round model.Round, offset uint64) (model.Transaction, error) {
	var f txnFields
	if err := msgpack.Unmarshal(stib.Txn, &f); err != nil {
		return model.Transaction{}, fmt.Errorf("decode fields: %w", err)
	}

	tx := model.Transaction{
		ID:               id,
		Sender:           EncodeAddress(f.Sender),
		ConfirmedRound:   round,
		IntraRoundOffset: offset,
		Type:             model.TxType(f.Type),
		Fee:              f.Fee,
		Note:             f.Note,
	}
	switch tx.Type {
	case model.TxTypePayment:
		tx.Payment = &model.PaymentFields{
			Receiver:         EncodeAddress(f.Receiver),
			Amount:           f.Amount,
			CloseRemainderTo: EncodeAddress(f.CloseRemainderTo),
		}
	case model.TxTypeAssetTransfer:
		tx.AssetTransfer = &model.AssetTransferFields{
			AssetID:  f.XferAsset,
			Receiver: EncodeAddress(f.AssetReceiver),
			Amount:   f.AssetAmount,
			CloseTo:  EncodeAddress(f.AssetCloseTo),
		}
	case model.TxTypeApplicationCall:
		oc := model.OnCompletion(fmt.Sprintf("unknown(%d)", f.OnCompletion))
		if f.OnCompletion < uint64(len(onCompletionNames)) {
			oc = onCompletionNames[f.OnCompletion]
		}
		tx.ApplicationCall = &model.ApplicationCallFields{
			ApplicationID: f.ApplicationID,
			Args:          f.ApplicationArgs,
			OnCompletion:  oc,
		}
	}
	return tx, nil
}
