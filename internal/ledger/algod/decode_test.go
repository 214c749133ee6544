package algod

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

var (
	testGenesisID   = "mainnet-v1.0"
	testGenesisHash = bytes.Repeat([]byte{0x42}, 32)
	senderKey       = bytes.Repeat([]byte{0x01}, 32)
	receiverKey     = bytes.Repeat([]byte{0x02}, 32)
)

func payTxn() map[string]interface{} {
	return map[string]interface{}{
		"type": "pay",
		"snd":  senderKey,
		"rcv":  receiverKey,
		"amt":  uint64(25_000_000),
		"fee":  uint64(1000),
		"fv":   uint64(36_000_000),
		"lv":   uint64(36_001_000),
		"note": []byte("tinyman-pool-swap-v2"),
	}
}

func dexCallTxn() map[string]interface{} {
	return map[string]interface{}{
		"type": "appl",
		"snd":  senderKey,
		"apid": uint64(1002541853),
		"apan": uint64(0),
		"apaa": []interface{}{[]byte("swap"), []byte("fixed-input")},
		"fee":  uint64(2000),
		"fv":   uint64(36_000_000),
		"lv":   uint64(36_001_000),
	}
}

func testBlock(t *testing.T) []byte {
	t.Helper()
	block := map[string]interface{}{
		"block": map[string]interface{}{
			"rnd": uint64(36_000_500),
			"gen": testGenesisID,
			"gh":  testGenesisHash,
			"ts":  int64(1_700_000_000),
			"txns": []interface{}{
				map[string]interface{}{"txn": payTxn(), "hgi": true, "hgh": true},
				map[string]interface{}{
					"txn": dexCallTxn(),
					"hgh": true,
					"dt": map[string]interface{}{
						"itx": []interface{}{
							map[string]interface{}{
								"txn": map[string]interface{}{
									"type": "axfer",
									"snd":  receiverKey,
									"xaid": uint64(31566704),
									"aamt": uint64(2_000_000),
									"arcv": senderKey,
								},
								"dt": map[string]interface{}{
									"itx": []interface{}{
										map[string]interface{}{
											"txn": map[string]interface{}{
												"type": "pay",
												"snd":  receiverKey,
												"rcv":  senderKey,
												"amt":  uint64(5),
											},
										},
									},
								},
							},
							map[string]interface{}{
								"txn": map[string]interface{}{
									"type": "pay",
									"snd":  receiverKey,
									"rcv":  senderKey,
									"amt":  uint64(7),
								},
							},
						},
					},
				},
			},
		},
		"cert": map[string]interface{}{"rnd": uint64(36_000_500)},
	}
	body, err := msgpack.Marshal(block)
	require.NoError(t, err)
	return body
}

func TestDecodeBlock(t *testing.T) {
	txns, err := DecodeBlock(testBlock(t))
	require.NoError(t, err)
	require.Len(t, txns, 2)

	pay := txns[0]
	withGenesis := payTxn()
	withGenesis["gen"] = testGenesisID
	withGenesis["gh"] = testGenesisHash
	wantID, err := TxID(withGenesis)
	require.NoError(t, err)

	assert.Equal(t, wantID, pay.ID)
	assert.Equal(t, model.TxTypePayment, pay.Type)
	assert.Equal(t, model.Round(36_000_500), pay.ConfirmedRound)
	assert.Equal(t, uint64(0), pay.IntraRoundOffset)
	assert.Equal(t, EncodeAddress(senderKey), pay.Sender)
	require.NotNil(t, pay.Payment)
	assert.Equal(t, uint64(25_000_000), pay.Payment.Amount)
	assert.Equal(t, EncodeAddress(receiverKey), pay.Payment.Receiver)
	assert.Empty(t, pay.Payment.CloseRemainderTo)
	assert.Equal(t, []byte("tinyman-pool-swap-v2"), pay.Note)
	assert.Equal(t, uint64(1000), pay.Fee)

	call := txns[1]
	callRaw := dexCallTxn()
	callRaw["gh"] = testGenesisHash
	wantCallID, err := TxID(callRaw)
	require.NoError(t, err)
	assert.Equal(t, wantCallID, call.ID)
	assert.Equal(t, uint64(1), call.IntraRoundOffset)
	require.NotNil(t, call.ApplicationCall)
	assert.Equal(t, uint64(1002541853), call.ApplicationCall.ApplicationID)
	assert.Equal(t, model.OnCompletionNoOp, call.ApplicationCall.OnCompletion)
	assert.Equal(t, [][]byte{[]byte("swap"), []byte("fixed-input")}, call.ApplicationCall.Args)

	require.Len(t, call.InnerTxns, 2)
	axfer := call.InnerTxns[0]
	assert.Equal(t, call.ID+"/inner/1", axfer.ID)
	assert.Equal(t, model.TxTypeAssetTransfer, axfer.Type)
	assert.Equal(t, call.ConfirmedRound, axfer.ConfirmedRound)
	assert.Equal(t, call.IntraRoundOffset, axfer.IntraRoundOffset)
	require.NotNil(t, axfer.AssetTransfer)
	assert.Equal(t, uint64(31566704), axfer.AssetTransfer.AssetID)
	assert.Equal(t, uint64(2_000_000), axfer.AssetTransfer.Amount)

	require.Len(t, axfer.InnerTxns, 1)
	assert.Equal(t, call.ID+"/inner/2", axfer.InnerTxns[0].ID)
	assert.Equal(t, uint64(5), axfer.InnerTxns[0].Payment.Amount)

	assert.Equal(t, call.ID+"/inner/3", call.InnerTxns[1].ID)
	assert.Equal(t, uint64(7), call.InnerTxns[1].Payment.Amount)
}

func TestDecodeBlock_EmptyRound(t *testing.T) {
	body, err := msgpack.Marshal(map[string]interface{}{
		"block": map[string]interface{}{"rnd": uint64(9), "gen": testGenesisID},
	})
	require.NoError(t, err)

	txns, err := DecodeBlock(body)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestDecodeBlock_Garbage(t *testing.T) {
	_, err := DecodeBlock([]byte{0xc1, 0x00})
	assert.Error(t, err)
}

func TestConvertOne_UnknownOnCompletion(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]interface{}{"type": "appl", "apid": uint64(3), "apan": uint64(9)})
	require.NoError(t, err)

	tx, err := convertOne(&signedTxnInBlock{Txn: raw}, "id", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, model.OnCompletion("unknown(9)"), tx.ApplicationCall.OnCompletion)
}
