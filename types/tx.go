// Package types models the Namada transaction envelope and the payloads
// carried by known transaction kinds. Envelopes and payloads are
// Borsh-encoded on chain; decoding uses the same codec.
package types

import (
	"crypto/sha256"

	"github.com/near/borsh-go"

	"github.com/Zondax/namadexer/errs"
)

// TxType discriminates the transaction envelope variants.
type TxType uint8

const (
	TxRaw TxType = iota
	TxWrapper
	TxDecrypted
	TxProtocol
)

func (t TxType) String() string {
	switch t {
	case TxRaw:
		return "Raw"
	case TxWrapper:
		return "Wrapper"
	case TxDecrypted:
		return "Decrypted"
	case TxProtocol:
		return "Protocol"
	default:
		return "Unknown"
	}
}

// Fee is the wrapper fee triple.
type Fee struct {
	AmountPerGasUnit string
	Token            string
}

// Header is the transaction envelope header. CodeHash identifies the wasm
// program the transaction runs; it is resolved to a kind name through the
// checksums registry.
type Header struct {
	ChainID   string
	Timestamp string
	CodeHash  [32]byte
	DataHash  [32]byte
	MemoHash  [32]byte
	TxType    TxType
	Fee       Fee
	GasLimit  uint64
}

// Tx is a decoded transaction envelope. Data and Memo are the raw section
// bytes; an empty Data means the envelope carries no payload.
type Tx struct {
	Header Header
	Data   []byte
	Memo   []byte
}

// DecodeTx parses a raw transaction blob into its envelope.
func DecodeTx(raw []byte) (*Tx, error) {
	var tx Tx
	if err := borsh.Deserialize(&tx, raw); err != nil {
		return nil, errs.E(errs.InvalidTxData, "envelope: %v", err)
	}
	return &tx, nil
}

// Encode serializes the envelope. The inverse of DecodeTx; fixtures and
// tests rely on the round trip.
func (t *Tx) Encode() ([]byte, error) {
	out, err := borsh.Serialize(*t)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidTxData, err)
	}
	return out, nil
}

// HeaderHash is the canonical id of the transaction: sha256 over the
// Borsh-serialized header.
func (t *Tx) HeaderHash() []byte {
	return hashHeader(t.Header)
}

// RawHash is the header hash with the envelope re-stamped as Raw. The
// chain identifies a decrypted inner transaction by this hash, not by the
// Decrypted-typed one, so end-block events and the transactions table key
// on it.
func (t *Tx) RawHash() []byte {
	h := t.Header
	h.TxType = TxRaw
	return hashHeader(h)
}

func hashHeader(h Header) []byte {
	enc, err := borsh.Serialize(h)
	if err != nil {
		// Header contains only fixed, serializable fields; this cannot
		// fail once the envelope decoded.
		panic(err)
	}
	sum := sha256.Sum256(enc)
	return sum[:]
}
