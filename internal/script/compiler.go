package script

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/timelock"
	"github.com/klingon-exchange/swapkit/pkg/helpers"
)

// Input errors
var (
	ErrInvalidPublicKey = errors.New("invalid claimer public key")
	ErrInvalidHash      = errors.New("invalid hash")
)

// CompileError wraps any failure while assembling a redeem script.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return "script compile failed: " + e.Err.Error()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Args are the caller-supplied parameters of a UTXO HTLC, fixed at fund time.
type Args struct {
	ClaimerPublicKey string            `json:"claimerPublicKey" yaml:"claimer_public_key"` // hex, 33-byte compressed
	PaymentHash      string            `json:"paymentHash" yaml:"payment_hash"`            // hex, sha256(secret)
	RefundAddress    string            `json:"refundAddress" yaml:"refund_address"`
	RefundHash       string            `json:"refundHash,omitempty" yaml:"refund_hash,omitempty"` // hex, enables admin refund
	Timelock         timelock.Timelock `json:"timelock" yaml:"timelock"`
}

// HasAdminRefund reports whether the args select the 3-path template.
func (a Args) HasAdminRefund() bool {
	return a.RefundHash != ""
}

// Compiled is an assembled redeem script and the values embedded in it.
type Compiled struct {
	Script []byte
	Paths  int // 2 or 3

	ClaimerPubKey     []byte
	PaymentCommitment []byte // ripemd160(paymentHash)
	RefundCommitment  []byte // ripemd160(refundHash), nil for 2-path
	RefundPubKeyHash  []byte
	Timelock          *timelock.Encoded
}

// Hex returns the script as a hex string.
func (c *Compiled) Hex() string {
	return hex.EncodeToString(c.Script)
}

// Compile assembles the redeem script for args.
//
// 2-path template (no refund hash):
//
//	OP_DUP OP_HASH160 <ripemd160(paymentHash)> OP_EQUAL
//	OP_IF
//	    OP_DROP <claimerPubKey>
//	OP_ELSE
//	    <lock> OP_CHECKSEQUENCEVERIFY|OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <refundPubKeyHash> OP_EQUALVERIFY
//	OP_ENDIF
//	OP_CHECKSIG
//
// 3-path template (refund hash present):
//
//	OP_DUP OP_HASH160 <ripemd160(paymentHash)> OP_EQUAL
//	OP_IF
//	    OP_DROP <claimerPubKey>
//	OP_ELSE
//	    OP_DUP OP_HASH160 <ripemd160(refundHash)> OP_EQUAL
//	    OP_NOTIF
//	        <lock> OP_CHECKSEQUENCEVERIFY|OP_CHECKLOCKTIMEVERIFY
//	    OP_ENDIF
//	    OP_DROP
//	    OP_DUP OP_HASH160 <refundPubKeyHash> OP_EQUALVERIFY
//	OP_ENDIF
//	OP_CHECKSIG
//
// The scripts check HASH160(secret), which equals ripemd160(paymentHash)
// exactly when sha256(secret) == paymentHash.
func Compile(args Args, params *chaincfg.Params) (*Compiled, error) {
	// The timelock is encoded first so range errors surface before assembly.
	lock, err := timelock.Encode(args.Timelock)
	if err != nil {
		return nil, &CompileError{Err: err}
	}

	claimer, err := decodePubKey(args.ClaimerPublicKey)
	if err != nil {
		return nil, &CompileError{Err: err}
	}

	paymentHash, err := decodeHash("payment hash", args.PaymentHash)
	if err != nil {
		return nil, &CompileError{Err: err}
	}

	refundPKH, err := address.Decode(args.RefundAddress, params)
	if err != nil {
		return nil, &CompileError{Err: err}
	}

	compiled := &Compiled{
		Paths:             2,
		ClaimerPubKey:     claimer,
		PaymentCommitment: ripemd(paymentHash),
		RefundPubKeyHash:  refundPKH,
		Timelock:          lock,
	}

	if args.HasAdminRefund() {
		refundHash, err := decodeHash("refund hash", args.RefundHash)
		if err != nil {
			return nil, &CompileError{Err: err}
		}
		compiled.Paths = 3
		compiled.RefundCommitment = ripemd(refundHash)
	}

	raw, err := Normalize(compiled.Elements()).Serialize()
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	compiled.Script = raw
	return compiled, nil
}

// Elements returns the un-normalized element sequence of the template.
// The lock value is always emitted as a push; Normalize turns small
// values into numeric opcodes.
func (c *Compiled) Elements() Script {
	s := Script{
		Op(txscript.OP_DUP),
		Op(txscript.OP_HASH160),
		Push(c.PaymentCommitment),
		Op(txscript.OP_EQUAL),
		Op(txscript.OP_IF),
		Op(txscript.OP_DROP),
		Push(c.ClaimerPubKey),
		Op(txscript.OP_ELSE),
	}

	if c.RefundCommitment == nil {
		s = append(s,
			Push(c.Timelock.ScriptNum),
			Op(c.Timelock.VerifyOp),
			Op(txscript.OP_DROP),
		)
	} else {
		s = append(s,
			Op(txscript.OP_DUP),
			Op(txscript.OP_HASH160),
			Push(c.RefundCommitment),
			Op(txscript.OP_EQUAL),
			Op(txscript.OP_NOTIF),
			Push(c.Timelock.ScriptNum),
			Op(c.Timelock.VerifyOp),
			Op(txscript.OP_ENDIF),
			Op(txscript.OP_DROP),
		)
	}

	return append(s,
		Op(txscript.OP_DUP),
		Op(txscript.OP_HASH160),
		Push(c.RefundPubKeyHash),
		Op(txscript.OP_EQUALVERIFY),
		Op(txscript.OP_ENDIF),
		Op(txscript.OP_CHECKSIG),
	)
}

func decodePubKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(helpers.TrimHex(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: must be %d bytes (compressed), got %d",
			ErrInvalidPublicKey, btcec.PubKeyBytesLenCompressed, len(raw))
	}
	if _, err := btcec.ParsePubKey(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return raw, nil
}

func decodeHash(name, s string) ([]byte, error) {
	raw, err := hex.DecodeString(helpers.TrimHex(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHash, name, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: %s must be 32 bytes, got %d", ErrInvalidHash, name, len(raw))
	}
	return raw, nil
}

func ripemd(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
