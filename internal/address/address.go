// Package address decodes chain addresses into the raw hashes HTLC scripts
// commit to, and encodes redeem scripts into funding addresses.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// ErrInvalidAddress is returned when an address decodes under no supported scheme.
var ErrInvalidAddress = errors.New("invalid address")

// Scheme is an output script template.
type Scheme string

const (
	P2PKH     Scheme = "p2pkh"      // Legacy pubkey hash
	P2WPKH    Scheme = "p2wpkh"     // Native SegWit pubkey hash
	P2SH      Scheme = "p2sh"       // Legacy script hash
	P2SHP2WSH Scheme = "p2sh-p2wsh" // Nested SegWit script hash
	P2WSH     Scheme = "p2wsh"      // Native SegWit script hash
)

// IsScriptScheme reports whether the scheme pays to a script.
func (s Scheme) IsScriptScheme() bool {
	return s == P2SH || s == P2SHP2WSH || s == P2WSH
}

// IsWitness reports whether spending the scheme uses witness data.
func (s Scheme) IsWitness() bool {
	return s == P2WPKH || s == P2SHP2WSH || s == P2WSH
}

// ParseScheme parses a scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch scheme := Scheme(s); scheme {
	case P2PKH, P2WPKH, P2SH, P2SHP2WSH, P2WSH:
		return scheme, nil
	default:
		return "", fmt.Errorf("unknown address scheme %q", s)
	}
}

// Encoded is an address together with the output script it stands for.
type Encoded struct {
	Scheme       Scheme
	Address      string
	OutputScript []byte

	// WitnessProgram is the v0 witness program (OP_0 <hash>) for witness
	// schemes, nil otherwise. For P2SH-P2WSH it is the script the P2SH
	// address commits to.
	WitnessProgram []byte
}

// Decode returns the 20-byte public key hash an address commits to.
//
// Legacy base58check decoding is attempted first and must carry the
// network's P2PKH version; then segwit bech32 decoding with the network's
// HRP and a v0 20-byte program. The first success wins.
func Decode(addr string, params *chaincfg.Params) ([]byte, error) {
	if hash, ok := decodeLegacy(addr, params); ok {
		return hash, nil
	}
	if hash, ok := decodeSegwit(addr, params); ok {
		return hash, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
}

func decodeLegacy(addr string, params *chaincfg.Params) ([]byte, bool) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, false
	}
	if version != params.PubKeyHashAddrID || len(payload) != 20 {
		return nil, false
	}
	return payload, true
}

func decodeSegwit(addr string, params *chaincfg.Params) ([]byte, bool) {
	version, program, err := decodeWitness(addr, params)
	if err != nil || version != 0 || len(program) != 20 {
		return nil, false
	}
	return program, true
}

// decodeWitness decodes a bech32 v0 segwit address for the network HRP.
// btcutil.DecodeAddress only recognises registered HRPs, so the
// decoding is done here for cloned networks such as Litecoin.
func decodeWitness(addr string, params *chaincfg.Params) (byte, []byte, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return 0, nil, err
	}
	if hrp != params.Bech32HRPSegwit {
		return 0, nil, fmt.Errorf("hrp %q does not match network %q", hrp, params.Bech32HRPSegwit)
	}
	if len(data) < 1 {
		return 0, nil, errors.New("empty witness data")
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return 0, nil, err
	}
	return data[0], program, nil
}

// EncodeScript derives the funding address of a redeem script under the
// given script scheme.
func EncodeScript(redeemScript []byte, scheme Scheme, params *chaincfg.Params) (*Encoded, error) {
	switch scheme {
	case P2SH:
		addr, err := btcutil.NewAddressScriptHash(redeemScript, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create P2SH address: %w", err)
		}
		return fromAddress(scheme, addr, nil)

	case P2WSH:
		scriptHash := sha256.Sum256(redeemScript)
		addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
		if err != nil {
			return nil, fmt.Errorf("failed to create P2WSH address: %w", err)
		}
		return fromAddress(scheme, addr, nil)

	case P2SHP2WSH:
		program := WitnessScriptProgram(redeemScript)
		addr, err := btcutil.NewAddressScriptHash(program, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create P2SH-P2WSH address: %w", err)
		}
		return fromAddress(scheme, addr, program)

	default:
		return nil, fmt.Errorf("%w: %q is not a script scheme", ErrInvalidAddress, scheme)
	}
}

// EncodePubKeyHash encodes a 20-byte public key hash as a P2PKH or P2WPKH address.
func EncodePubKeyHash(hash []byte, scheme Scheme, params *chaincfg.Params) (*Encoded, error) {
	switch scheme {
	case P2PKH:
		addr, err := btcutil.NewAddressPubKeyHash(hash, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create P2PKH address: %w", err)
		}
		return fromAddress(scheme, addr, nil)

	case P2WPKH:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create P2WPKH address: %w", err)
		}
		return fromAddress(scheme, addr, nil)

	default:
		return nil, fmt.Errorf("%w: %q is not a pubkey hash scheme", ErrInvalidAddress, scheme)
	}
}

func fromAddress(scheme Scheme, addr btcutil.Address, program []byte) (*Encoded, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create output script: %w", err)
	}
	if program == nil && scheme.IsWitness() {
		program = script
	}
	return &Encoded{
		Scheme:         scheme,
		Address:        addr.EncodeAddress(),
		OutputScript:   script,
		WitnessProgram: program,
	}, nil
}

// WitnessScriptProgram returns the v0 witness program for a script:
// OP_0 <sha256(script)>.
func WitnessScriptProgram(script []byte) []byte {
	scriptHash := sha256.Sum256(script)
	return append([]byte{txscript.OP_0, txscript.OP_DATA_32}, scriptHash[:]...)
}

// OutputScript converts any supported destination address into its
// scriptPubKey: P2PKH, P2SH, P2WPKH or P2WSH.
func OutputScript(addr string, params *chaincfg.Params) ([]byte, error) {
	if payload, version, err := base58.CheckDecode(addr); err == nil && len(payload) == 20 {
		switch version {
		case params.PubKeyHashAddrID:
			return payToPubKeyHash(payload), nil
		case params.ScriptHashAddrID:
			return payToScriptHash(payload), nil
		}
	}

	version, program, err := decodeWitness(addr, params)
	if err == nil && version == 0 && (len(program) == 20 || len(program) == 32) {
		script := make([]byte, 0, 2+len(program))
		script = append(script, txscript.OP_0, byte(len(program)))
		return append(script, program...), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
}

// PayToPubKeyHash returns the P2PKH or P2WPKH output script for a key hash.
func PayToPubKeyHash(hash []byte, scheme Scheme) ([]byte, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("pubkey hash must be 20 bytes, got %d", len(hash))
	}
	switch scheme {
	case P2PKH:
		return payToPubKeyHash(hash), nil
	case P2WPKH:
		return append([]byte{txscript.OP_0, txscript.OP_DATA_20}, hash...), nil
	default:
		return nil, fmt.Errorf("%w: %q is not a pubkey hash scheme", ErrInvalidAddress, scheme)
	}
}

func payToPubKeyHash(hash []byte) []byte {
	script := []byte{txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20}
	script = append(script, hash...)
	return append(script, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)
}

func payToScriptHash(hash []byte) []byte {
	script := []byte{txscript.OP_HASH160, txscript.OP_DATA_20}
	script = append(script, hash...)
	return append(script, txscript.OP_EQUAL)
}
