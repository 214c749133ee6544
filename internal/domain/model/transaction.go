package model

// Round identifies a finalized ledger block.
type Round uint64

type TxType string

const (
	TxTypePayment         TxType = "pay"
	TxTypeAssetTransfer   TxType = "axfer"
	TxTypeApplicationCall TxType = "appl"
	TxTypeKeyRegistration TxType = "keyreg"
	TxTypeAssetConfig     TxType = "acfg"
	TxTypeAssetFreeze     TxType = "afrz"
	TxTypeStateProof      TxType = "stpf"
	TxTypeHeartbeat       TxType = "hb"
)

func (t TxType) String() string {
	return string(t)
}

// Known reports whether t is one of the ledger's transaction type tags.
func (t TxType) Known() bool {
	switch t {
	case TxTypePayment, TxTypeAssetTransfer, TxTypeApplicationCall, TxTypeKeyRegistration,
		TxTypeAssetConfig, TxTypeAssetFreeze, TxTypeStateProof, TxTypeHeartbeat:
		return true
	}
	return false
}

type OnCompletion string

const (
	OnCompletionNoOp       OnCompletion = "noop"
	OnCompletionOptIn      OnCompletion = "optin"
	OnCompletionCloseOut   OnCompletion = "closeout"
	OnCompletionClearState OnCompletion = "clear"
	OnCompletionUpdate     OnCompletion = "update"
	OnCompletionDeleteApp  OnCompletion = "delete"
)

type PaymentFields struct {
	Receiver         string
	Amount           uint64
	CloseRemainderTo string
}

type AssetTransferFields struct {
	AssetID  uint64
	Receiver string
	Amount   uint64
	CloseTo  string
}

type ApplicationCallFields struct {
	ApplicationID uint64
	Args          [][]byte
	OnCompletion  OnCompletion
}

// Transaction is a confirmed ledger transaction. Inner transactions share the
// shape of their parent and are ordered as executed. Values are read-only once
// fetched.
type Transaction struct {
	ID               string
	Sender           string
	ConfirmedRound   Round
	IntraRoundOffset uint64
	Type             TxType
	Fee              uint64

	Payment         *PaymentFields
	AssetTransfer   *AssetTransferFields
	ApplicationCall *ApplicationCallFields

	Note      []byte
	InnerTxns []Transaction
}

// Amount returns the transferred amount for payments and asset transfers.
func (t *Transaction) Amount() (uint64, bool) {
	switch {
	case t.Payment != nil:
		return t.Payment.Amount, true
	case t.AssetTransfer != nil:
		return t.AssetTransfer.Amount, true
	}
	return 0, false
}

func (t *Transaction) AssetID() (uint64, bool) {
	if t.AssetTransfer == nil {
		return 0, false
	}
	return t.AssetTransfer.AssetID, true
}

func (t *Transaction) ApplicationID() (uint64, bool) {
	if t.ApplicationCall == nil {
		return 0, false
	}
	return t.ApplicationCall.ApplicationID, true
}

// Walk visits t and then its inner transactions in pre-order. It stops as
// soon as fn returns false and reports whether the walk ran to completion.
func (t *Transaction) Walk(fn func(*Transaction) bool) bool {
	if !fn(t) {
		return false
	}
	for i := range t.InnerTxns {
		if !t.InnerTxns[i].Walk(fn) {
			return false
		}
	}
	return true
}
