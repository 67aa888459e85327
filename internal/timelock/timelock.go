// Package timelock encodes logical HTLC timelocks into the lock values and
// verification opcodes of Bitcoin-family scripts.
//
// Relative locks follow BIP68/BIP112 (nSequence + OP_CHECKSEQUENCEVERIFY),
// absolute locks follow BIP65 (nLockTime + OP_CHECKLOCKTIMEVERIFY).
package timelock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Timelock errors
var (
	ErrUnsupportedTimelock    = errors.New("unsupported timelock kind")
	ErrRelativeLockOutOfRange = errors.New("relative timelock out of range")
	ErrInvalidTimelock        = errors.New("invalid timelock")
)

// Kind selects between relative and absolute locks.
type Kind string

const (
	Relative Kind = "RELATIVE"
	Absolute Kind = "ABSOLUTE"
)

// Unit is the unit a timelock value is expressed in.
type Unit string

const (
	Blocks  Unit = "blocks"
	Seconds Unit = "seconds"
)

const (
	// MaxRelativeValue is the largest value of the 16-bit BIP68 lock field.
	MaxRelativeValue = 0xFFFF

	// SecondsGranularity is the BIP68 time-based unit (2^9 seconds).
	SecondsGranularity = 1 << wire.SequenceLockTimeGranularity

	// MaxAbsoluteValue is the largest nLockTime.
	MaxAbsoluteValue = 0xFFFFFFFF

	// lockTimeThreshold separates block heights from unix timestamps.
	lockTimeThreshold uint64 = txscript.LockTimeThreshold
)

// Timelock is the logical lock requested by the funder.
type Timelock struct {
	Kind  Kind   `json:"type" yaml:"type"`
	Value uint64 `json:"value" yaml:"value"`                   // blockDelay, blockHeight or seconds
	Unit  Unit   `json:"unit,omitempty" yaml:"unit,omitempty"` // defaults to blocks
}

// RelativeBlocks returns a relative lock of n blocks.
func RelativeBlocks(n uint64) Timelock {
	return Timelock{Kind: Relative, Value: n, Unit: Blocks}
}

// AbsoluteHeight returns an absolute lock at block height h.
func AbsoluteHeight(h uint64) Timelock {
	return Timelock{Kind: Absolute, Value: h, Unit: Blocks}
}

// AbsoluteTime returns an absolute lock at unix timestamp ts.
func AbsoluteTime(ts uint64) Timelock {
	return Timelock{Kind: Absolute, Value: ts, Unit: Seconds}
}

// ParseKind accepts the kind names used by callers ("relative", "ABSOLUTE", ...).
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(s)) {
	case Relative:
		return Relative, nil
	case Absolute:
		return Absolute, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTimelock, s)
	}
}

// Encoded is a timelock ready for embedding in a script.
type Encoded struct {
	Kind Kind
	Unit Unit

	// Value is the consensus lock value: the BIP68 sequence value for
	// relative locks, the nLockTime threshold for absolute locks.
	Value uint32

	// ScriptNum is the minimal script-number encoding of Value.
	ScriptNum []byte

	// VerifyOp is OP_CHECKSEQUENCEVERIFY or OP_CHECKLOCKTIMEVERIFY.
	VerifyOp byte
}

// Encode converts a logical timelock into its script representation.
// Relative values are range-checked here, before any script assembly.
func Encode(tl Timelock) (*Encoded, error) {
	unit := tl.Unit
	if unit == "" {
		unit = Blocks
	}
	if unit != Blocks && unit != Seconds {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidTimelock, tl.Unit)
	}

	switch tl.Kind {
	case Relative:
		value, err := encodeRelative(tl.Value, unit)
		if err != nil {
			return nil, err
		}
		return &Encoded{
			Kind:      Relative,
			Unit:      unit,
			Value:     value,
			ScriptNum: ScriptNum(int64(value)),
			VerifyOp:  txscript.OP_CHECKSEQUENCEVERIFY,
		}, nil

	case Absolute:
		value, err := encodeAbsolute(tl.Value, unit)
		if err != nil {
			return nil, err
		}
		return &Encoded{
			Kind:      Absolute,
			Unit:      unit,
			Value:     value,
			ScriptNum: ScriptNum(int64(value)),
			VerifyOp:  txscript.OP_CHECKLOCKTIMEVERIFY,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTimelock, tl.Kind)
	}
}

func encodeRelative(v uint64, unit Unit) (uint32, error) {
	if unit == Seconds {
		if v%SecondsGranularity != 0 {
			return 0, fmt.Errorf("%w: relative seconds must be a multiple of %d, got %d",
				ErrInvalidTimelock, SecondsGranularity, v)
		}
		units := v / SecondsGranularity
		if units > MaxRelativeValue {
			return 0, fmt.Errorf("%w: %d seconds exceeds %d", ErrRelativeLockOutOfRange,
				v, uint64(MaxRelativeValue)*SecondsGranularity)
		}
		return uint32(units) | wire.SequenceLockTimeIsSeconds, nil
	}

	if v > MaxRelativeValue {
		return 0, fmt.Errorf("%w: %d blocks exceeds %d", ErrRelativeLockOutOfRange, v, MaxRelativeValue)
	}
	return uint32(v), nil
}

func encodeAbsolute(v uint64, unit Unit) (uint32, error) {
	if unit == Seconds {
		if v < lockTimeThreshold || v > MaxAbsoluteValue {
			return 0, fmt.Errorf("%w: timestamp %d outside [%d, %d]", ErrInvalidTimelock,
				v, lockTimeThreshold, uint64(MaxAbsoluteValue))
		}
		return uint32(v), nil
	}

	if v == 0 || v >= lockTimeThreshold {
		return 0, fmt.Errorf("%w: block height %d outside [1, %d)", ErrInvalidTimelock,
			v, lockTimeThreshold)
	}
	return uint32(v), nil
}

// Sequence returns the nSequence a refund input must carry.
// Absolute locks need a non-final sequence so nLockTime is enforced.
func (e *Encoded) Sequence() uint32 {
	if e.Kind == Relative {
		return e.Value
	}
	return wire.MaxTxInSequenceNum - 1
}

// LockTime returns the nLockTime for a refund transaction. Height-based and
// relative locks use currentHeight, so a refund built before the lock height
// is rejected by the network. Timestamp locks use the lock itself.
func (e *Encoded) LockTime(currentHeight uint32) uint32 {
	if e.Kind == Absolute && e.Unit == Seconds {
		return e.Value
	}
	return currentHeight
}

// TxVersion returns the minimum transaction version for the refund path.
func (e *Encoded) TxVersion() int32 {
	if e.Kind == Relative {
		return 2
	}
	return wire.TxVersion
}

// ScriptNum returns the minimal little-endian sign-magnitude encoding of n
// used by script numeric operands.
func ScriptNum(n int64) []byte {
	if n == 0 {
		return nil
	}

	negative := n < 0
	if negative {
		n = -n
	}

	var result []byte
	for n > 0 {
		result = append(result, byte(n&0xff))
		n >>= 8
	}

	// The top bit carries the sign, so add a byte when it is already taken.
	if result[len(result)-1]&0x80 != 0 {
		extra := byte(0x00)
		if negative {
			extra = 0x80
		}
		result = append(result, extra)
	} else if negative {
		result[len(result)-1] |= 0x80
	}

	return result
}
