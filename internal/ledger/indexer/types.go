package indexer

// JSON shapes of GET /v2/transactions.

type transactionsResponse struct {
	CurrentRound uint64        `json:"current-round"`
	NextToken    string        `json:"next-token"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID               string `json:"id"`
	Sender           string `json:"sender"`
	ConfirmedRound   uint64 `json:"confirmed-round"`
	IntraRoundOffset uint64 `json:"intra-round-offset"`
	TxType           string `json:"tx-type"`
	Fee              uint64 `json:"fee"`
	Note             []byte `json:"note"`

	PaymentTransaction       *paymentTransaction       `json:"payment-transaction"`
	AssetTransferTransaction *assetTransferTransaction `json:"asset-transfer-transaction"`
	ApplicationTransaction   *applicationTransaction   `json:"application-transaction"`

	InnerTxns []transaction `json:"inner-txns"`
}

type paymentTransaction struct {
	Receiver         string `json:"receiver"`
	Amount           uint64 `json:"amount"`
	CloseRemainderTo string `json:"close-remainder-to"`
}

type assetTransferTransaction struct {
	AssetID  uint64 `json:"asset-id"`
	Amount   uint64 `json:"amount"`
	Receiver string `json:"receiver"`
	CloseTo  string `json:"close-to"`
}

type applicationTransaction struct {
	ApplicationID   uint64   `json:"application-id"`
	OnCompletion    string   `json:"on-completion"`
	ApplicationArgs [][]byte `json:"application-args"`
}
