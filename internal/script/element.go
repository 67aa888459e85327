// Package script assembles the claim/refund HTLC redeem scripts.
//
// Scripts are built as a sequence of typed elements (an opcode or a data
// push), passed through an explicit normalization pass that rewrites
// small-integer pushes to their dedicated opcodes, and then serialized with
// minimal push encodings.
package script

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Element is a single script element: an opcode or a data push.
type Element struct {
	push bool
	op   byte
	data []byte
}

// Op returns an opcode element.
func Op(op byte) Element {
	return Element{op: op}
}

// Push returns a data push element. The data is copied.
func Push(data []byte) Element {
	return Element{push: true, data: append([]byte{}, data...)}
}

// IsPush reports whether the element is a data push.
func (e Element) IsPush() bool {
	return e.push
}

// Opcode returns the opcode of an opcode element.
func (e Element) Opcode() byte {
	return e.op
}

// Data returns the bytes of a push element.
func (e Element) Data() []byte {
	return e.data
}

// Equal reports whether two elements are identical.
func (e Element) Equal(o Element) bool {
	if e.push != o.push {
		return false
	}
	if !e.push {
		return e.op == o.op
	}
	return string(e.data) == string(o.data)
}

func (e Element) String() string {
	if e.push {
		return fmt.Sprintf("<%x>", e.data)
	}
	raw, err := Script{e}.Serialize()
	if err != nil {
		return fmt.Sprintf("OP_UNKNOWN_%d", e.op)
	}
	disasm, err := txscript.DisasmString(raw)
	if err != nil {
		return fmt.Sprintf("OP_UNKNOWN_%d", e.op)
	}
	return disasm
}

// Script is an ordered sequence of elements.
type Script []Element

// Serialize encodes the elements with minimal push opcodes. Elements are
// emitted as given; Normalize must run first for small-integer pushes to
// become numeric opcodes.
func (s Script) Serialize() ([]byte, error) {
	var out []byte
	for i, e := range s {
		if !e.push {
			out = append(out, e.op)
			continue
		}

		n := len(e.data)
		if n > txscript.MaxScriptElementSize {
			return nil, fmt.Errorf("element %d: push of %d bytes exceeds %d", i, n, txscript.MaxScriptElementSize)
		}
		switch {
		case n == 0:
			out = append(out, txscript.OP_0)
		case n < txscript.OP_PUSHDATA1:
			out = append(out, byte(n))
		case n <= 0xff:
			out = append(out, txscript.OP_PUSHDATA1, byte(n))
		default:
			var l [2]byte
			binary.LittleEndian.PutUint16(l[:], uint16(n))
			out = append(out, txscript.OP_PUSHDATA2, l[0], l[1])
		}
		out = append(out, e.data...)
	}

	if len(out) > txscript.MaxScriptSize {
		return nil, fmt.Errorf("script of %d bytes exceeds %d", len(out), txscript.MaxScriptSize)
	}
	return out, nil
}

// Disasm returns the human-readable form of the script.
func (s Script) Disasm() string {
	raw, err := s.Serialize()
	if err != nil {
		return "[invalid script]"
	}
	disasm, _ := txscript.DisasmString(raw)
	return disasm
}

// Normalize rewrites pushes that consensus requires as numeric opcodes:
// an empty push becomes OP_0, a single byte 0x01..0x10 becomes OP_1..OP_16
// and 0x81 becomes OP_1NEGATE. All other elements are kept. Normalize is
// idempotent.
func Normalize(s Script) Script {
	out := make(Script, len(s))
	for i, e := range s {
		out[i] = normalizeElement(e)
	}
	return out
}

func normalizeElement(e Element) Element {
	if !e.push {
		return e
	}
	switch {
	case len(e.data) == 0:
		return Op(txscript.OP_0)
	case len(e.data) == 1 && e.data[0] >= 1 && e.data[0] <= 16:
		return Op(txscript.OP_1 + e.data[0] - 1)
	case len(e.data) == 1 && e.data[0] == 0x81:
		return Op(txscript.OP_1NEGATE)
	default:
		return e
	}
}

// Parse decompiles raw script bytes into elements. Data-carrying opcodes
// (OP_DATA_1 through OP_PUSHDATA4) become pushes and everything else,
// including OP_0 and OP_1..OP_16, becomes an opcode element.
func Parse(raw []byte) (Script, error) {
	var s Script
	tokenizer := txscript.MakeScriptTokenizer(0, raw)
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		if op >= txscript.OP_DATA_1 && op <= txscript.OP_PUSHDATA4 {
			s = append(s, Push(tokenizer.Data()))
			continue
		}
		s = append(s, Op(op))
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return s, nil
}

// Canonicalize runs raw bytes through parse, normalize and serialize.
func Canonicalize(raw []byte) ([]byte, error) {
	s, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(s).Serialize()
}
