package utxo

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/swapkit/internal/address"
)

// FundParams contains parameters for creating a funding transaction.
type FundParams struct {
	// Outputs owned by FunderKey, all of type InputType.
	Outputs []Output

	// Amount locked in the swap output.
	Amount uint64

	FunderKey *btcec.PrivateKey

	// InputType is address.P2PKH or address.P2WPKH. Change goes back to
	// the funder under the same type.
	InputType address.Scheme

	// SwapOutput is the output script of the HTLC address.
	SwapOutput []byte

	// Fee rate in sat/vB
	FeeRate uint64
}

// Fund selects funder outputs largest-first until they cover the amount
// plus fee, then builds and signs a transaction paying the swap output
// first and change second. Change at or below the dust limit is left to
// the fee.
func (b *Builder) Fund(p FundParams) (*Transaction, error) {
	if p.FunderKey == nil {
		return nil, ErrMissingKey
	}
	if p.InputType != address.P2PKH && p.InputType != address.P2WPKH {
		return nil, fmt.Errorf("funding inputs must be p2pkh or p2wpkh, got %q", p.InputType)
	}
	if len(p.SwapOutput) == 0 {
		return nil, fmt.Errorf("swap output script required")
	}
	if p.Amount < b.dustLimit {
		return nil, fmt.Errorf("%w: swap amount %d < %d", ErrDustOutput, p.Amount, b.dustLimit)
	}
	if _, _, err := outpoints(p.Outputs); err != nil {
		return nil, err
	}

	pubKey := p.FunderKey.PubKey().SerializeCompressed()
	funderScript, err := address.PayToPubKeyHash(btcutil.Hash160(pubKey), p.InputType)
	if err != nil {
		return nil, err
	}

	var selected []Output
	var need uint64
	for _, o := range sortOutputs(p.Outputs) {
		selected = append(selected, o)

		tx, fee, vsize, ok, err := b.assembleFunding(selected, p, funderScript, pubKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			need = p.Amount + fee
			continue
		}

		if err := b.signFunding(tx, selected, p, funderScript, pubKey); err != nil {
			return nil, err
		}
		b.log.Debug("built funding transaction", "txid", tx.TxHash(), "inputs", len(selected),
			"outputs", len(tx.TxOut), "vsize", vsize, "fee", fee)
		return &Transaction{Tx: tx, Fee: fee, VSize: vsize}, nil
	}

	var have uint64
	for _, o := range p.Outputs {
		have += o.Amount
	}
	return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, need, have)
}

// assembleFunding builds the unsigned funding transaction for a candidate
// input set. ok is false when the inputs do not cover amount plus fee, in
// which case fee is the fee of the change-less transaction.
func (b *Builder) assembleFunding(selected []Output, p FundParams, funderScript, pubKey []byte) (
	tx *wire.MsgTx, fee uint64, vsize int64, ok bool, err error) {

	ops, total, err := outpoints(selected)
	if err != nil {
		return nil, 0, 0, false, err
	}

	tx = wire.NewMsgTx(wire.TxVersion)
	for i := range ops {
		txIn := wire.NewTxIn(&ops[i], nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2 // Enable RBF
		tx.AddTxIn(txIn)
	}
	tx.AddTxOut(wire.NewTxOut(int64(p.Amount), p.SwapOutput))

	fill := func(t *wire.MsgTx) error {
		for _, in := range t.TxIn {
			if err := setUnlock(in, p.InputType, [][]byte{dummySig, pubKey}, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// With change.
	tx.AddTxOut(wire.NewTxOut(0, funderScript))
	vsize, err = estimateVSize(tx, fill)
	if err != nil {
		return nil, 0, 0, false, err
	}
	fee = uint64(vsize) * p.FeeRate
	if total >= p.Amount+fee && total-p.Amount-fee > b.dustLimit {
		tx.TxOut[1].Value = int64(total - p.Amount - fee)
		return tx, fee, vsize, true, nil
	}

	// Without change; any remainder goes to the fee.
	tx.TxOut = tx.TxOut[:1]
	vsize, err = estimateVSize(tx, fill)
	if err != nil {
		return nil, 0, 0, false, err
	}
	fee = uint64(vsize) * p.FeeRate
	if total < p.Amount+fee {
		return nil, fee, vsize, false, nil
	}
	return tx, total - p.Amount, vsize, true, nil
}

func (b *Builder) signFunding(tx *wire.MsgTx, selected []Output, p FundParams, funderScript, pubKey []byte) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, o := range selected {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(int64(o.Amount), funderScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, o := range selected {
		hash, err := sigHash(tx, i, p.InputType, funderScript, sigHashes, int64(o.Amount))
		if err != nil {
			return fmt.Errorf("failed to compute sighash for input %d: %w", i, err)
		}
		sig := sign(p.FunderKey, hash)
		if err := setUnlock(tx.TxIn[i], p.InputType, [][]byte{sig, pubKey}, nil); err != nil {
			return err
		}
	}
	return nil
}
