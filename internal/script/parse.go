package script

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/swapkit/internal/timelock"
)

// ErrUnknownTemplate is returned when a script matches neither HTLC template.
var ErrUnknownTemplate = errors.New("script does not match an HTLC template")

// Details are the values recovered from a compiled HTLC script.
type Details struct {
	Paths             int
	ClaimerPubKey     []byte
	PaymentCommitment []byte
	RefundCommitment  []byte
	RefundPubKeyHash  []byte
	Timelock          timelock.Timelock
}

// ExtractDetails parses a redeem script produced by Compile and returns the
// values it commits to. It lets a counterparty audit a script before funding.
func ExtractDetails(raw []byte) (*Details, error) {
	s, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	m := &matcher{s: s}
	d := &Details{Paths: 2}

	m.ops(txscript.OP_DUP, txscript.OP_HASH160)
	d.PaymentCommitment = m.push(20, "payment commitment")
	m.ops(txscript.OP_EQUAL, txscript.OP_IF, txscript.OP_DROP)
	d.ClaimerPubKey = m.push(33, "claimer pubkey")
	m.ops(txscript.OP_ELSE)

	var lockValue int64
	var verifyOp byte
	if m.peekOp(txscript.OP_DUP) {
		d.Paths = 3
		m.ops(txscript.OP_DUP, txscript.OP_HASH160)
		d.RefundCommitment = m.push(20, "refund commitment")
		m.ops(txscript.OP_EQUAL, txscript.OP_NOTIF)
		lockValue = m.number("timelock")
		verifyOp = m.verifyOp()
		m.ops(txscript.OP_ENDIF, txscript.OP_DROP)
	} else {
		lockValue = m.number("timelock")
		verifyOp = m.verifyOp()
		m.ops(txscript.OP_DROP)
	}

	m.ops(txscript.OP_DUP, txscript.OP_HASH160)
	d.RefundPubKeyHash = m.push(20, "refund pubkey hash")
	m.ops(txscript.OP_EQUALVERIFY, txscript.OP_ENDIF, txscript.OP_CHECKSIG)

	if m.err == nil && m.pos != len(s) {
		m.fail("trailing elements")
	}
	if m.err != nil {
		return nil, m.err
	}

	if lockValue <= 0 || lockValue > timelock.MaxAbsoluteValue {
		return nil, fmt.Errorf("%w: timelock %d", ErrUnknownTemplate, lockValue)
	}
	d.Timelock = decodeLock(uint32(lockValue), verifyOp)
	return d, nil
}

func decodeLock(v uint32, verifyOp byte) timelock.Timelock {
	if verifyOp == txscript.OP_CHECKSEQUENCEVERIFY {
		if v&wire.SequenceLockTimeIsSeconds != 0 {
			units := uint64(v & wire.SequenceLockTimeMask)
			return timelock.Timelock{Kind: timelock.Relative, Value: units * timelock.SecondsGranularity, Unit: timelock.Seconds}
		}
		return timelock.RelativeBlocks(uint64(v & wire.SequenceLockTimeMask))
	}
	if v >= txscript.LockTimeThreshold {
		return timelock.AbsoluteTime(uint64(v))
	}
	return timelock.AbsoluteHeight(uint64(v))
}

// matcher walks a script, recording the first mismatch.
type matcher struct {
	s   Script
	pos int
	err error
}

func (m *matcher) fail(format string, args ...interface{}) {
	if m.err == nil {
		m.err = fmt.Errorf("%w: element %d: %s", ErrUnknownTemplate, m.pos, fmt.Sprintf(format, args...))
	}
}

func (m *matcher) next() (Element, bool) {
	if m.err != nil {
		return Element{}, false
	}
	if m.pos >= len(m.s) {
		m.fail("unexpected end of script")
		return Element{}, false
	}
	e := m.s[m.pos]
	m.pos++
	return e, true
}

func (m *matcher) peekOp(op byte) bool {
	return m.err == nil && m.pos < len(m.s) && !m.s[m.pos].IsPush() && m.s[m.pos].Opcode() == op
}

func (m *matcher) ops(ops ...byte) {
	for _, op := range ops {
		e, ok := m.next()
		if !ok {
			return
		}
		if !e.Equal(Op(op)) {
			m.pos--
			m.fail("expected %s, got %s", Op(op), e)
			return
		}
	}
}

func (m *matcher) push(size int, name string) []byte {
	e, ok := m.next()
	if !ok {
		return nil
	}
	if !e.IsPush() || len(e.Data()) != size {
		m.pos--
		m.fail("expected %d-byte %s, got %s", size, name, e)
		return nil
	}
	return e.Data()
}

func (m *matcher) number(name string) int64 {
	e, ok := m.next()
	if !ok {
		return 0
	}
	if !e.IsPush() {
		if txscript.IsSmallInt(e.Opcode()) {
			return int64(txscript.AsSmallInt(e.Opcode()))
		}
		m.pos--
		m.fail("expected %s, got %s", name, e)
		return 0
	}
	data := e.Data()
	if len(data) > 5 {
		m.pos--
		m.fail("%s of %d bytes", name, len(data))
		return 0
	}
	return decodeScriptNum(data)
}

func (m *matcher) verifyOp() byte {
	e, ok := m.next()
	if !ok {
		return 0
	}
	if e.IsPush() || (e.Opcode() != txscript.OP_CHECKSEQUENCEVERIFY && e.Opcode() != txscript.OP_CHECKLOCKTIMEVERIFY) {
		m.pos--
		m.fail("expected lock verification opcode, got %s", e)
		return 0
	}
	return e.Opcode()
}

// decodeScriptNum is the inverse of timelock.ScriptNum.
func decodeScriptNum(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}
	var v int64
	for i, b := range data {
		v |= int64(b) << (8 * uint(i))
	}
	if data[len(data)-1]&0x80 != 0 {
		v &= ^(int64(0x80) << (8 * uint(len(data)-1)))
		return -v
	}
	return v
}
