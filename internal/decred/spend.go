package decred

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"

	"github.com/klingon-exchange/swapkit/internal/utxo"
	"github.com/klingon-exchange/swapkit/pkg/helpers"
)

// Spend errors
var (
	ErrNoOutputs         = errors.New("no spendable outputs")
	ErrDuplicateOutput   = errors.New("duplicate spendable output")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDustOutput        = errors.New("output below dust limit")
)

// DefaultDustLimit is the smallest output the client will create, in atoms.
const DefaultDustLimit = uint64(6030)

// Largest DER signature plus the sighash byte.
const dummySigLen = 73

// Transaction is an assembled, signed Decred transaction.
type Transaction struct {
	Tx   *wire.MsgTx
	Fee  uint64
	Size int
}

// Hex returns the serialized transaction as hex.
func (t *Transaction) Hex() string {
	raw, _ := t.Tx.Bytes()
	return hex.EncodeToString(raw)
}

// TxID returns the transaction hash.
func (t *Transaction) TxID() string {
	return t.Tx.TxHash().String()
}

// Claim spends the contract outputs to the server address by revealing the
// payment preimage. The preimage is not checked against the contract hash;
// a wrong one yields a transaction the network rejects.
func (c *Client) Claim(contract *Contract, outputs []utxo.Output, preimage []byte, feeRate uint64) (*Transaction, error) {
	if contract.ServerPubKeyHash != c.serverPKH {
		return nil, fmt.Errorf("%w: contract is locked to a different server key", ErrInvalidKey)
	}
	_, pkScript := c.serverAddr.PaymentScript()

	unlock := func(sig []byte) ([]byte, error) {
		b := txscript.NewScriptBuilder()
		b.AddData(sig)
		b.AddData(c.serverPubKey)
		b.AddData(preimage)
		b.AddOp(txscript.OP_TRUE)
		b.AddData(contract.Script)
		return b.Script()
	}
	tx, err := c.spend(contract, outputs, pkScript, feeRate, 0, wire.MaxTxInSequenceNum, c.serverKey, unlock)
	if err != nil {
		return nil, err
	}
	c.log.Debug("built claim transaction", "txid", tx.TxID(), "fee", tx.Fee)
	return tx, nil
}

// Refund returns the contract outputs to dest once the lock time has
// passed. clientKeyHex must hash to the contract's client key hash.
func (c *Client) Refund(contract *Contract, outputs []utxo.Output, dest string, feeRate uint64, clientKeyHex string) (*Transaction, error) {
	key, err := parsePrivateKey(clientKeyHex)
	if err != nil {
		return nil, err
	}
	pub := key.PubKey().SerializeCompressed()
	if !bytes.Equal(stdaddr.Hash160(pub), contract.ClientPubKeyHash[:]) {
		return nil, fmt.Errorf("%w: key does not match contract refund hash", ErrInvalidKey)
	}
	destAddr, err := stdaddr.DecodeAddress(dest, c.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	_, pkScript := destAddr.PaymentScript()

	unlock := func(sig []byte) ([]byte, error) {
		b := txscript.NewScriptBuilder()
		b.AddData(sig)
		b.AddData(pub)
		b.AddOp(txscript.OP_FALSE)
		b.AddData(contract.Script)
		return b.Script()
	}
	tx, err := c.spend(contract, outputs, pkScript, feeRate, contract.LockTime, wire.MaxTxInSequenceNum-1, key, unlock)
	if err != nil {
		return nil, err
	}
	c.log.Debug("built refund transaction", "txid", tx.TxID(), "fee", tx.Fee, "lock_time", contract.LockTime)
	return tx, nil
}

func (c *Client) spend(contract *Contract, outputs []utxo.Output, pkScript []byte, feeRate uint64,
	lockTime, sequence uint32, key *secp256k1.PrivateKey, unlock func(sig []byte) ([]byte, error)) (*Transaction, error) {

	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	tx := wire.NewMsgTx()
	tx.LockTime = lockTime
	seen := make(map[wire.OutPoint]struct{}, len(outputs))
	var total uint64
	for _, o := range outputs {
		hash, err := chainhash.NewHashFromStr(helpers.TrimHex(o.TxID))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", utxo.ErrInvalidTxID, o.TxID)
		}
		prev := wire.NewOutPoint(hash, o.Index, wire.TxTreeRegular)
		if _, dup := seen[*prev]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOutput, o)
		}
		seen[*prev] = struct{}{}

		in := wire.NewTxIn(prev, int64(o.Amount), nil)
		in.Sequence = sequence
		tx.AddTxIn(in)
		total += o.Amount
	}
	tx.AddTxOut(wire.NewTxOut(0, pkScript))

	// Size with placeholder signatures.
	for i := range tx.TxIn {
		sigScript, err := unlock(make([]byte, dummySigLen))
		if err != nil {
			return nil, fmt.Errorf("failed to build signature script: %w", err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	size := tx.SerializeSize()
	fee := uint64(size) * feeRate
	if total <= fee {
		return nil, fmt.Errorf("%w: have %d, fee %d", ErrInsufficientFunds, total, fee)
	}
	value := total - fee
	if value < c.dustLimit {
		return nil, fmt.Errorf("%w: %d < %d", ErrDustOutput, value, c.dustLimit)
	}
	tx.TxOut[0].Value = int64(value)

	for i := range tx.TxIn {
		hash, err := txscript.CalcSignatureHash(contract.Script, txscript.SigHashAll, tx, i, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to compute signature hash: %w", err)
		}
		sig := append(ecdsa.Sign(key, hash).Serialize(), byte(txscript.SigHashAll))
		sigScript, err := unlock(sig)
		if err != nil {
			return nil, fmt.Errorf("failed to build signature script: %w", err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	return &Transaction{Tx: tx, Fee: fee, Size: size}, nil
}
