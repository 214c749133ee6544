package algod

import "github.com/vmihailenco/msgpack/v5"

// Wire shapes of the msgpack block endpoint. Only the fields the monitor
// reads are declared; unknown fields are skipped by the decoder.

type blockResponse struct {
	Block blockBody `msgpack:"block"`
}

type blockBody struct {
	Round       uint64             `msgpack:"rnd"`
	GenesisID   string             `msgpack:"gen"`
	GenesisHash []byte             `msgpack:"gh"`
	Timestamp   int64              `msgpack:"ts"`
	Txns        []signedTxnInBlock `msgpack:"txns"`
}

// signedTxnInBlock doubles as SignedTxnWithAD for inner transactions, which
// never carry the hgi/hgh flags.
type signedTxnInBlock struct {
	Txn            msgpack.RawMessage `msgpack:"txn"`
	HasGenesisID   bool               `msgpack:"hgi"`
	HasGenesisHash bool               `msgpack:"hgh"`
	EvalDelta      *evalDelta         `msgpack:"dt"`
}

type evalDelta struct {
	Logs      [][]byte           `msgpack:"lg"`
	InnerTxns []signedTxnInBlock `msgpack:"itx"`
}

type txnFields struct {
	Type        string `msgpack:"type"`
	Sender      []byte `msgpack:"snd"`
	Fee         uint64 `msgpack:"fee"`
	Note        []byte `msgpack:"note"`
	GenesisID   string `msgpack:"gen"`
	GenesisHash []byte `msgpack:"gh"`

	Receiver         []byte `msgpack:"rcv"`
	Amount           uint64 `msgpack:"amt"`
	CloseRemainderTo []byte `msgpack:"close"`

	XferAsset     uint64 `msgpack:"xaid"`
	AssetAmount   uint64 `msgpack:"aamt"`
	AssetReceiver []byte `msgpack:"arcv"`
	AssetCloseTo  []byte `msgpack:"aclose"`

	ApplicationID   uint64   `msgpack:"apid"`
	OnCompletion    uint64   `msgpack:"apan"`
	ApplicationArgs [][]byte `msgpack:"apaa"`
}
