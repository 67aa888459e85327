// Package utxo assembles fund, claim and refund transactions for HTLC
// outputs on script-based chains.
//
// Builders never fetch chain state. The caller supplies the spendable
// outputs, the current height and the fee rate, and broadcasts the result.
// Preimage correctness and timelock maturity are left to the network.
package utxo

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/swapkit/pkg/helpers"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

// Transaction errors
var (
	ErrNoOutputs         = errors.New("no spendable outputs")
	ErrDuplicateOutput   = errors.New("duplicate spendable output")
	ErrInvalidTxID       = errors.New("invalid transaction ID")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDustOutput        = errors.New("output below dust limit")
	ErrMissingKey        = errors.New("signing key required")
)

// DefaultDustLimit is the smallest output the builders will create.
const DefaultDustLimit = uint64(546)

// Output is a spendable output supplied by the caller.
type Output struct {
	TxID   string `json:"txId" yaml:"tx_id"`
	Index  uint32 `json:"index" yaml:"index"`
	Amount uint64 `json:"amount" yaml:"amount"` // base units
}

func (o Output) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// outpoints validates outputs and converts them to wire outpoints.
// Each outpoint may appear only once.
func outpoints(outputs []Output) ([]wire.OutPoint, uint64, error) {
	if len(outputs) == 0 {
		return nil, 0, ErrNoOutputs
	}

	seen := make(map[wire.OutPoint]struct{}, len(outputs))
	result := make([]wire.OutPoint, 0, len(outputs))
	var total uint64
	for _, o := range outputs {
		hash, err := chainhash.NewHashFromStr(helpers.TrimHex(o.TxID))
		if err != nil || len(helpers.TrimHex(o.TxID)) != chainhash.MaxHashStringSize {
			return nil, 0, fmt.Errorf("%w: %s", ErrInvalidTxID, o.TxID)
		}
		op := wire.OutPoint{Hash: *hash, Index: o.Index}
		if _, dup := seen[op]; dup {
			return nil, 0, fmt.Errorf("%w: %s", ErrDuplicateOutput, o)
		}
		seen[op] = struct{}{}
		result = append(result, op)
		total += o.Amount
	}
	return result, total, nil
}

// sortOutputs sorts outputs by amount in descending order (largest first).
func sortOutputs(outputs []Output) []Output {
	sorted := make([]Output, len(outputs))
	copy(sorted, outputs)
	// Insertion sort keeps equal amounts in caller order.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Amount > sorted[j-1].Amount; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

// Transaction is an assembled, signed transaction.
type Transaction struct {
	Tx    *wire.MsgTx
	Fee   uint64
	VSize int64
}

// Hex returns the serialized transaction as hex.
func (t *Transaction) Hex() string {
	var buf bytes.Buffer
	buf.Grow(t.Tx.SerializeSize())
	_ = t.Tx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

// TxID returns the transaction hash.
func (t *Transaction) TxID() string {
	return t.Tx.TxHash().String()
}

// DeserializeTx parses a hex-encoded transaction.
func DeserializeTx(hexStr string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(helpers.TrimHex(hexStr))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}

// Builder assembles transactions for one chain.
type Builder struct {
	params    *chaincfg.Params
	dustLimit uint64
	log       *logging.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDustLimit overrides DefaultDustLimit.
func WithDustLimit(limit uint64) BuilderOption {
	return func(b *Builder) {
		b.dustLimit = limit
	}
}

// WithLogger sets the builder logger.
func WithLogger(log *logging.Logger) BuilderOption {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBuilder creates a builder for the given chain parameters.
func NewBuilder(params *chaincfg.Params, opts ...BuilderOption) *Builder {
	b := &Builder{
		params:    params,
		dustLimit: DefaultDustLimit,
		log:       logging.GetDefault().Component("utxo"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Params returns the chain parameters of the builder.
func (b *Builder) Params() *chaincfg.Params {
	return b.params
}

// DustLimit returns the configured dust limit.
func (b *Builder) DustLimit() uint64 {
	return b.dustLimit
}
