package utxo

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/script"
)

// dummySigLen is a worst-case DER signature (72 bytes) plus the sighash byte.
const dummySigLen = 73

var dummySig = make([]byte, dummySigLen)

// setUnlock places the unlocking stack items on an input spent under scheme.
// For script schemes the redeem script is appended as the final item.
func setUnlock(in *wire.TxIn, scheme address.Scheme, items [][]byte, redeemScript []byte) error {
	stack := make([][]byte, 0, len(items)+1)
	stack = append(stack, items...)
	if scheme.IsScriptScheme() {
		stack = append(stack, redeemScript)
	}

	switch scheme {
	case address.P2PKH, address.P2SH:
		sigScript, err := pushes(stack)
		if err != nil {
			return err
		}
		in.SignatureScript = sigScript
		in.Witness = nil

	case address.P2WPKH, address.P2WSH:
		in.SignatureScript = nil
		in.Witness = wire.TxWitness(stack)

	case address.P2SHP2WSH:
		sigScript, err := pushes([][]byte{address.WitnessScriptProgram(redeemScript)})
		if err != nil {
			return err
		}
		in.SignatureScript = sigScript
		in.Witness = wire.TxWitness(stack)

	default:
		return fmt.Errorf("unsupported input scheme %q", scheme)
	}
	return nil
}

// pushes serializes items as a push-only signature script.
func pushes(items [][]byte) ([]byte, error) {
	s := make(script.Script, len(items))
	for i, item := range items {
		s[i] = script.Push(item)
	}
	return script.Normalize(s).Serialize()
}

// sigHash computes the SIGHASH_ALL digest for input idx. subscript is the
// previous output script for key-hash inputs and the redeem script for
// script inputs.
func sigHash(tx *wire.MsgTx, idx int, scheme address.Scheme, subscript []byte,
	sigHashes *txscript.TxSigHashes, amount int64) ([]byte, error) {

	if scheme.IsWitness() {
		return txscript.CalcWitnessSigHash(subscript, sigHashes, txscript.SigHashAll, tx, idx, amount)
	}
	return txscript.CalcSignatureHash(subscript, txscript.SigHashAll, tx, idx)
}

// sign produces a DER signature with the SIGHASH_ALL byte appended.
func sign(key *btcec.PrivateKey, hash []byte) []byte {
	sig := btcecdsa.Sign(key, hash)
	return append(sig.Serialize(), byte(txscript.SigHashAll))
}

// estimateVSize returns the virtual size of tx once fill has placed
// worst-case unlocking data on a copy of it.
func estimateVSize(tx *wire.MsgTx, fill func(*wire.MsgTx) error) (int64, error) {
	sized := tx.Copy()
	if err := fill(sized); err != nil {
		return 0, err
	}
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(sized))
	return (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor, nil
}
