package algod

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	checksumLen  = 4
	txIDPrefix   = "TX"
	publicKeyLen = 32
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAddress renders a 32-byte public key as a checksummed address.
// Empty input yields "".
func EncodeAddress(pk []byte) string {
	if len(pk) == 0 {
		return ""
	}
	sum := sha512.Sum512_256(pk)
	buf := make([]byte, 0, len(pk)+checksumLen)
	buf = append(buf, pk...)
	buf = append(buf, sum[len(sum)-checksumLen:]...)
	return b32.EncodeToString(buf)
}

// DecodeAddress is the inverse of EncodeAddress and verifies the checksum.
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := b32.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != publicKeyLen+checksumLen {
		return nil, fmt.Errorf("decode address: length %d", len(raw))
	}
	pk := raw[:publicKeyLen]
	sum := sha512.Sum512_256(pk)
	if !bytes.Equal(sum[len(sum)-checksumLen:], raw[publicKeyLen:]) {
		return nil, fmt.Errorf("decode address: checksum mismatch")
	}
	return pk, nil
}

// TxID hashes the canonical msgpack encoding of a transaction map.
func TxID(txn map[string]interface{}) (string, error) {
	enc, err := canonicalEncode(txn)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	buf := make([]byte, 0, len(txIDPrefix)+len(enc))
	buf = append(buf, txIDPrefix...)
	buf = append(buf, enc...)
	sum := sha512.Sum512_256(buf)
	return b32.EncodeToString(sum[:]), nil
}

// canonicalEncode writes sorted map keys and minimal-width integers, the
// encoding the ledger hashes.
func canonicalEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
