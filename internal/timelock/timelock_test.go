package timelock

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		tl        Timelock
		wantValue uint32
		wantOp    byte
		wantErr   error
	}{
		{"relative 10 blocks", RelativeBlocks(10), 10, txscript.OP_CHECKSEQUENCEVERIFY, nil},
		{"relative max", RelativeBlocks(0xFFFF), 0xFFFF, txscript.OP_CHECKSEQUENCEVERIFY, nil},
		{"relative overflow", RelativeBlocks(0x10000), 0, 0, ErrRelativeLockOutOfRange},
		{"relative zero", RelativeBlocks(0), 0, txscript.OP_CHECKSEQUENCEVERIFY, nil},
		{"relative zero seconds", Timelock{Kind: Relative, Value: 0, Unit: Seconds},
			wire.SequenceLockTimeIsSeconds, txscript.OP_CHECKSEQUENCEVERIFY, nil},
		{"relative 1024 seconds", Timelock{Kind: Relative, Value: 1024, Unit: Seconds},
			2 | wire.SequenceLockTimeIsSeconds, txscript.OP_CHECKSEQUENCEVERIFY, nil},
		{"relative seconds not multiple", Timelock{Kind: Relative, Value: 1000, Unit: Seconds}, 0, 0, ErrInvalidTimelock},
		{"relative seconds overflow", Timelock{Kind: Relative, Value: 0x10000 * 512, Unit: Seconds}, 0, 0, ErrRelativeLockOutOfRange},
		{"absolute height", AbsoluteHeight(500), 500, txscript.OP_CHECKLOCKTIMEVERIFY, nil},
		{"absolute height is timestamp", AbsoluteHeight(500000000), 0, 0, ErrInvalidTimelock},
		{"absolute time", AbsoluteTime(1545950303), 1545950303, txscript.OP_CHECKLOCKTIMEVERIFY, nil},
		{"absolute time too small", AbsoluteTime(1000), 0, 0, ErrInvalidTimelock},
		{"unknown kind", Timelock{Kind: "SOMETIMES", Value: 5}, 0, 0, ErrUnsupportedTimelock},
		{"unknown unit", Timelock{Kind: Relative, Value: 5, Unit: "fortnights"}, 0, 0, ErrInvalidTimelock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encode(tt.tl)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Encode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode() unexpected error: %v", err)
			}
			if enc.Value != tt.wantValue {
				t.Errorf("Value = %#x, want %#x", enc.Value, tt.wantValue)
			}
			if enc.VerifyOp != tt.wantOp {
				t.Errorf("VerifyOp = %#x, want %#x", enc.VerifyOp, tt.wantOp)
			}
		})
	}
}

func TestScriptNum(t *testing.T) {
	tests := []struct {
		n    int64
		want []byte
	}{
		{0, nil},
		{1, []byte{0x01}},
		{-1, []byte{0x81}},
		{16, []byte{0x10}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{-128, []byte{0x80, 0x80}},
		{255, []byte{0xff, 0x00}},
		{500, []byte{0xf4, 0x01}},
		{0xFFFF, []byte{0xff, 0xff, 0x00}},
		{0x400002, []byte{0x02, 0x00, 0x40}},
		{1545950303, []byte{0x5f, 0x54, 0x25, 0x5c}},
	}

	for _, tt := range tests {
		if got := ScriptNum(tt.n); !bytes.Equal(got, tt.want) {
			t.Errorf("ScriptNum(%d) = %x, want %x", tt.n, got, tt.want)
		}
	}
}

func TestScriptNumMatchesBuilder(t *testing.T) {
	// The script builder emits the same minimal encoding for non-small ints.
	for _, n := range []int64{17, 500, 0xFFFF, 0x400002, 1545950303} {
		script, err := txscript.NewScriptBuilder().AddInt64(n).Script()
		if err != nil {
			t.Fatalf("AddInt64(%d): %v", n, err)
		}
		want, _ := txscript.NewScriptBuilder().AddData(ScriptNum(n)).Script()
		if !bytes.Equal(script, want) {
			t.Errorf("n=%d: builder %x, ScriptNum push %x", n, script, want)
		}
	}
}

func TestRefundTxFields(t *testing.T) {
	rel, err := Encode(RelativeBlocks(144))
	if err != nil {
		t.Fatal(err)
	}
	if rel.Sequence() != 144 {
		t.Errorf("relative Sequence() = %d, want 144", rel.Sequence())
	}
	if rel.TxVersion() != 2 {
		t.Errorf("relative TxVersion() = %d, want 2", rel.TxVersion())
	}
	if rel.LockTime(800) != 800 {
		t.Errorf("relative LockTime() = %d, want 800", rel.LockTime(800))
	}

	abs, err := Encode(AbsoluteHeight(500))
	if err != nil {
		t.Fatal(err)
	}
	if abs.Sequence() == wire.MaxTxInSequenceNum {
		t.Error("absolute Sequence() must not be final")
	}
	if abs.LockTime(400) != 400 {
		t.Errorf("absolute LockTime(400) = %d, want 400", abs.LockTime(400))
	}

	ts, err := Encode(AbsoluteTime(1545950303))
	if err != nil {
		t.Fatal(err)
	}
	if ts.LockTime(400) != 1545950303 {
		t.Errorf("timestamp LockTime() = %d, want 1545950303", ts.LockTime(400))
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("relative"); err != nil || k != Relative {
		t.Errorf("ParseKind(relative) = %v, %v", k, err)
	}
	if k, err := ParseKind("ABSOLUTE"); err != nil || k != Absolute {
		t.Errorf("ParseKind(ABSOLUTE) = %v, %v", k, err)
	}
	if _, err := ParseKind("bip9"); !errors.Is(err, ErrUnsupportedTimelock) {
		t.Errorf("ParseKind(bip9) error = %v, want ErrUnsupportedTimelock", err)
	}
}
