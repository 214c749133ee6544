package algod

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddress_ZeroKey(t *testing.T) {
	addr := EncodeAddress(make([]byte, 32))
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ", addr)
	assert.Empty(t, EncodeAddress(nil))
}

func TestDecodeAddress_RoundTrip(t *testing.T) {
	pk := bytes.Repeat([]byte{0xab}, 32)
	addr := EncodeAddress(pk)
	assert.Len(t, addr, 58)

	got, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, pk, got)
}

func TestDecodeAddress_Rejects(t *testing.T) {
	_, err := DecodeAddress("not-base32!")
	assert.Error(t, err)

	_, err = DecodeAddress("AAAA")
	assert.Error(t, err)

	// Flip a payload character so the checksum no longer matches.
	addr := []byte(EncodeAddress(make([]byte, 32)))
	addr[0] = 'B'
	_, err = DecodeAddress(string(addr))
	assert.ErrorContains(t, err, "checksum")
}

func TestTxID_Deterministic(t *testing.T) {
	txn := map[string]interface{}{
		"type": "pay",
		"snd":  bytes.Repeat([]byte{1}, 32),
		"rcv":  bytes.Repeat([]byte{2}, 32),
		"amt":  uint64(1_000_000),
		"fee":  uint64(1000),
		"fv":   uint64(100),
		"lv":   uint64(1100),
	}
	id1, err := TxID(txn)
	require.NoError(t, err)
	assert.Len(t, id1, 52)

	// Integer width and map iteration order do not affect the hash.
	same := map[string]interface{}{}
	for k, v := range txn {
		same[k] = v
	}
	same["fee"] = int64(1000)
	id2, err := TxID(same)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	same["gen"] = "mainnet-v1.0"
	id3, err := TxID(same)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}
