package utxo

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/script"
	"github.com/klingon-exchange/swapkit/internal/timelock"
)

// ErrAdminRefundDisabled is returned for an admin refund against a
// contract compiled without a refund hash.
var ErrAdminRefundDisabled = errors.New("contract has no admin refund path")

// Contract is a compiled HTLC bound to the output scheme it is funded under.
type Contract struct {
	RedeemScript   []byte
	Paths          int
	Scheme         address.Scheme
	Address        string
	OutputScript   []byte
	WitnessProgram []byte
	Timelock       *timelock.Encoded
}

// NewContract derives the funding address of a compiled script.
func NewContract(compiled *script.Compiled, scheme address.Scheme, params *chaincfg.Params) (*Contract, error) {
	if !scheme.IsScriptScheme() {
		return nil, fmt.Errorf("%w: %q is not a script scheme", address.ErrInvalidAddress, scheme)
	}
	enc, err := address.EncodeScript(compiled.Script, scheme, params)
	if err != nil {
		return nil, err
	}
	return &Contract{
		RedeemScript:   compiled.Script,
		Paths:          compiled.Paths,
		Scheme:         scheme,
		Address:        enc.Address,
		OutputScript:   enc.OutputScript,
		WitnessProgram: enc.WitnessProgram,
		Timelock:       compiled.Timelock,
	}, nil
}

// SpendParams contains parameters for claiming or refunding HTLC outputs.
type SpendParams struct {
	// Outputs locked to the contract address.
	Outputs []Output

	DestAddress   string
	CurrentHeight uint32

	// Fee rate in sat/vB
	FeeRate uint64

	// Key signs every input: the claimer key for claims, the refunder key
	// for refunds.
	Key *btcec.PrivateKey

	// Secret is the payment preimage (claim only).
	Secret []byte

	// PubKey is the refunder public key pushed on refund. Defaults to the
	// compressed public key of Key.
	PubKey []byte

	// RefundSecret selects the admin refund branch when set.
	RefundSecret []byte
}

// spendPath describes the transaction fields and unlocking stack of one
// branch of the redeem script.
type spendPath struct {
	name     string
	version  int32
	sequence uint32
	lockTime uint32
	items    func(sig []byte) [][]byte
}

// Claim spends contract outputs through the payment branch. The unlocking
// stack is {sig, secret}; the script's own hash check selects the branch.
func (b *Builder) Claim(c *Contract, p SpendParams) (*Transaction, error) {
	if len(p.Secret) == 0 {
		return nil, fmt.Errorf("secret required for claim")
	}
	secret := append([]byte{}, p.Secret...)

	return b.spend(c, p, spendPath{
		name:     "claim",
		version:  wire.TxVersion,
		sequence: wire.MaxTxInSequenceNum - 1,
		lockTime: p.CurrentHeight,
		items: func(sig []byte) [][]byte {
			return [][]byte{sig, secret}
		},
	})
}

// Refund spends contract outputs back to the refunder.
//
// Without a refund secret the unlocking stack is {sig, pubkey} and the
// transaction carries the timelock: relative locks use version 2 and the
// BIP68 sequence, absolute locks use nLockTime with a non-final sequence.
// With a refund secret the stack is {sig, pubkey, refundSecret} and the
// timelock is not required.
func (b *Builder) Refund(c *Contract, p SpendParams) (*Transaction, error) {
	if p.Key == nil {
		return nil, ErrMissingKey
	}
	pubKey := p.PubKey
	if len(pubKey) == 0 {
		pubKey = p.Key.PubKey().SerializeCompressed()
	}
	pubKey = append([]byte{}, pubKey...)

	if len(p.RefundSecret) > 0 {
		if c.Paths != 3 {
			return nil, ErrAdminRefundDisabled
		}
		refundSecret := append([]byte{}, p.RefundSecret...)
		return b.spend(c, p, spendPath{
			name:     "admin refund",
			version:  wire.TxVersion,
			sequence: wire.MaxTxInSequenceNum - 1,
			lockTime: p.CurrentHeight,
			items: func(sig []byte) [][]byte {
				return [][]byte{sig, pubKey, refundSecret}
			},
		})
	}

	return b.spend(c, p, spendPath{
		name:     "refund",
		version:  c.Timelock.TxVersion(),
		sequence: c.Timelock.Sequence(),
		lockTime: c.Timelock.LockTime(p.CurrentHeight),
		items: func(sig []byte) [][]byte {
			return [][]byte{sig, pubKey}
		},
	})
}

func (b *Builder) spend(c *Contract, p SpendParams, path spendPath) (*Transaction, error) {
	if p.Key == nil {
		return nil, ErrMissingKey
	}
	ops, total, err := outpoints(p.Outputs)
	if err != nil {
		return nil, err
	}
	destScript, err := address.OutputScript(p.DestAddress, b.params)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}

	tx := wire.NewMsgTx(path.version)
	tx.LockTime = path.lockTime
	for i := range ops {
		txIn := wire.NewTxIn(&ops[i], nil, nil)
		txIn.Sequence = path.sequence
		tx.AddTxIn(txIn)
	}
	tx.AddTxOut(wire.NewTxOut(0, destScript))

	vsize, err := estimateVSize(tx, func(t *wire.MsgTx) error {
		for _, in := range t.TxIn {
			if err := setUnlock(in, c.Scheme, path.items(dummySig), c.RedeemScript); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fee := uint64(vsize) * p.FeeRate
	if total <= fee {
		return nil, fmt.Errorf("%w: outputs %d <= fee %d", ErrInsufficientFunds, total, fee)
	}
	value := total - fee
	if value < b.dustLimit {
		return nil, fmt.Errorf("%w: %s output %d < %d", ErrDustOutput, path.name, value, b.dustLimit)
	}
	tx.TxOut[0].Value = int64(value)

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, o := range p.Outputs {
		fetcher.AddPrevOut(ops[i], wire.NewTxOut(int64(o.Amount), c.OutputScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, o := range p.Outputs {
		hash, err := sigHash(tx, i, c.Scheme, c.RedeemScript, sigHashes, int64(o.Amount))
		if err != nil {
			return nil, fmt.Errorf("failed to compute sighash for input %d: %w", i, err)
		}
		if err := setUnlock(tx.TxIn[i], c.Scheme, path.items(sign(p.Key, hash)), c.RedeemScript); err != nil {
			return nil, err
		}
	}

	b.log.Debug("built "+path.name+" transaction", "txid", tx.TxHash(), "scheme", c.Scheme,
		"inputs", len(ops), "locktime", tx.LockTime, "vsize", vsize, "fee", fee)
	return &Transaction{Tx: tx, Fee: fee, VSize: vsize}, nil
}
