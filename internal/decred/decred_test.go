package decred

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"

	"github.com/klingon-exchange/swapkit/internal/chain"
	"github.com/klingon-exchange/swapkit/internal/testutil"
	"github.com/klingon-exchange/swapkit/internal/timelock"
	"github.com/klingon-exchange/swapkit/internal/utxo"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

const (
	serverKeyHex = "9cf492dcd4a1724470181fcfeff833710eec58fd6a4e926a8b760266dfde9659"
	clientKeyHex = "f91b705c29978d7f5472201129f3edac61da67e4e2ec9dde1f6b989582321dbf"
	preimageHex  = "c104ac676ab0b9005222043de34195f6666d92382e1e161eac7c9358f6eddeb0"
	secretHash   = "685db6a78d5af37aae9cb7531ffc034444a562c774e54a73201cc17d7388fcbd"
	fixedLock    = uint32(1545950303)
)

func clientAddress(t *testing.T, params *chaincfg.Params) string {
	t.Helper()
	raw, _ := hex.DecodeString(clientKeyHex)
	pub := secp256k1.PrivKeyFromBytes(raw).PubKey().SerializeCompressed()
	addr, err := pubKeyHashAddress(pub, params)
	if err != nil {
		t.Fatalf("client address: %v", err)
	}
	return addr.String()
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	c, err := New(serverKeyHex, chaincfg.TestNet3Params(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func preimage(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(preimageHex)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func pushes(t *testing.T, sigScript []byte) ([][]byte, []byte) {
	t.Helper()
	var data [][]byte
	var ops []byte
	tok := txscript.MakeScriptTokenizer(0, sigScript)
	for tok.Next() {
		ops = append(ops, tok.Opcode())
		data = append(data, tok.Data())
	}
	if err := tok.Err(); err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	return data, ops
}

func TestChainParams(t *testing.T) {
	for _, subnet := range chain.Subnets(chain.Decred) {
		if _, err := ChainParams(subnet); err != nil {
			t.Errorf("ChainParams(%s): %v", subnet, err)
		}
	}
	if _, err := ChainParams("regtest"); err == nil {
		t.Error("ChainParams(regtest) succeeded")
	}
}

func TestNewInvalidKey(t *testing.T) {
	for _, key := range []string{"", "zz", "abcd"} {
		if _, err := New(key, chaincfg.TestNet3Params()); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("New(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestFund(t *testing.T) {
	params := chaincfg.TestNet3Params()
	now := time.Unix(1_700_000_000, 0)
	c := newTestClient(t, WithClock(func() time.Time { return now }), WithLockDuration(time.Hour))

	if !strings.HasPrefix(c.ServerAddress(), "Ts") {
		t.Errorf("server address %s is not a testnet P2PKH address", c.ServerAddress())
	}

	contract, err := c.Fund(secretHash, clientAddress(t, params))
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if contract.LockTime != uint32(now.Add(time.Hour).Unix()) {
		t.Errorf("lock time = %d", contract.LockTime)
	}
	if !strings.HasPrefix(contract.Address, "Tc") {
		t.Errorf("fund address %s is not a testnet P2SH address", contract.Address)
	}
	if hex.EncodeToString(contract.SecretHash[:]) != secretHash {
		t.Errorf("secret hash = %x", contract.SecretHash)
	}
	if contract.Refundable(now) || !contract.Refundable(now.Add(time.Hour)) {
		t.Error("Refundable does not follow the lock time")
	}

	again, err := c.FundUntil(secretHash, clientAddress(t, params), contract.LockTime)
	if err != nil {
		t.Fatalf("FundUntil: %v", err)
	}
	if again.Address != contract.Address || !bytes.Equal(again.Script, contract.Script) {
		t.Error("fund address is not deterministic")
	}
}

func TestFundGoldenAddress(t *testing.T) {
	params := chaincfg.TestNet3Params()
	c := newTestClient(t)
	contract, err := c.FundUntil(secretHash, clientAddress(t, params), fixedLock)
	if err != nil {
		t.Fatalf("FundUntil: %v", err)
	}
	if contract.Address != "TcsX4QyWV9GsWSHAWkJSJ6aUm1BxBB2tHxg" {
		t.Errorf("fund address = %s", contract.Address)
	}
	if !bytes.Equal(contract.ServerPubKeyHash[:], stdaddr.Hash160(c.ServerPubKey())) {
		t.Error("contract is not locked to the server key hash")
	}
}

func TestFundHexPrefixes(t *testing.T) {
	params := chaincfg.TestNet3Params()
	c := newTestClient(t)
	want := fundedContract(t, c)
	for _, hash := range []string{"0x" + secretHash, "0X" + strings.ToUpper(secretHash)} {
		got, err := c.FundUntil(hash, clientAddress(t, params), fixedLock)
		if err != nil {
			t.Fatalf("FundUntil(%s): %v", hash, err)
		}
		if got.Address != want.Address {
			t.Errorf("FundUntil(%s) address = %s, want %s", hash, got.Address, want.Address)
		}
	}
	if _, err := New("0X"+serverKeyHex, params, WithLogger(logging.Discard())); err != nil {
		t.Errorf("New(0X key): %v", err)
	}
}

func TestParseContract(t *testing.T) {
	params := chaincfg.TestNet3Params()
	c := newTestClient(t)
	contract, err := c.FundUntil(secretHash, clientAddress(t, params), fixedLock)
	if err != nil {
		t.Fatalf("FundUntil: %v", err)
	}

	parsed, err := ParseContract(contract.Script, params)
	if err != nil {
		t.Fatalf("ParseContract: %v", err)
	}
	if parsed.Address != contract.Address || parsed.LockTime != fixedLock {
		t.Errorf("parsed = %+v", parsed)
	}
	if parsed.ClientPubKeyHash != contract.ClientPubKeyHash || parsed.SecretHash != contract.SecretHash {
		t.Error("parsed hashes differ")
	}
	if !bytes.Equal(parsed.ServerPubKeyHash[:], stdaddr.Hash160(c.ServerPubKey())) {
		t.Error("parsed server key hash differs")
	}

	if _, err := ParseContract([]byte{txscript.OP_TRUE}, params); !errors.Is(err, ErrUnknownContract) {
		t.Errorf("ParseContract(OP_TRUE) error = %v, want ErrUnknownContract", err)
	}
	tampered := append([]byte(nil), contract.Script...)
	tampered[len(tampered)-2] = txscript.OP_EQUAL
	if _, err := ParseContract(tampered, params); !errors.Is(err, ErrUnknownContract) {
		t.Errorf("ParseContract(tampered) error = %v, want ErrUnknownContract", err)
	}
}

func TestFundErrors(t *testing.T) {
	params := chaincfg.TestNet3Params()
	c := newTestClient(t)
	client := clientAddress(t, params)

	p2sh, err := stdaddr.NewAddressScriptHashV0([]byte{txscript.OP_TRUE}, params)
	if err != nil {
		t.Fatal(err)
	}
	mainnet := clientAddress(t, chaincfg.MainNetParams())

	tests := []struct {
		name     string
		hash     string
		address  string
		lockTime uint32
		want     error
	}{
		{"short hash", "abcd", client, fixedLock, ErrInvalidHash},
		{"bad hex", "zz", client, fixedLock, ErrInvalidHash},
		{"garbage address", secretHash, "notanaddress", fixedLock, ErrInvalidAddress},
		{"wrong network", secretHash, mainnet, fixedLock, ErrInvalidAddress},
		{"script address", secretHash, p2sh.String(), fixedLock, ErrInvalidAddress},
		{"height lock", secretHash, client, 500, timelock.ErrInvalidTimelock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.FundUntil(tt.hash, tt.address, tt.lockTime); !errors.Is(err, tt.want) {
				t.Errorf("FundUntil() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func fundedContract(t *testing.T, c *Client) *Contract {
	t.Helper()
	contract, err := c.FundUntil(secretHash, clientAddress(t, c.Params()), fixedLock)
	if err != nil {
		t.Fatalf("FundUntil: %v", err)
	}
	return contract
}

func TestClaim(t *testing.T) {
	c := newTestClient(t)
	contract := fundedContract(t, c)
	outputs := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: 100_000_000}}

	tx, err := c.Claim(contract, outputs, preimage(t), 10)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if tx.Tx.LockTime != 0 || tx.Tx.TxIn[0].Sequence != wire.MaxTxInSequenceNum {
		t.Errorf("claim locktime/sequence = %d/%d", tx.Tx.LockTime, tx.Tx.TxIn[0].Sequence)
	}
	if tx.Fee != uint64(tx.Size)*10 {
		t.Errorf("fee = %d, want %d", tx.Fee, tx.Size*10)
	}
	if got := uint64(tx.Tx.TxOut[0].Value); got != 100_000_000-tx.Fee {
		t.Errorf("output value = %d", got)
	}
	if tx.Tx.TxIn[0].ValueIn != 100_000_000 {
		t.Errorf("value in = %d", tx.Tx.TxIn[0].ValueIn)
	}

	serverAddr, _ := stdaddr.DecodeAddress(c.ServerAddress(), c.Params())
	_, want := serverAddr.PaymentScript()
	if !bytes.Equal(tx.Tx.TxOut[0].PkScript, want) {
		t.Error("claim does not pay the server address")
	}

	data, ops := pushes(t, tx.Tx.TxIn[0].SignatureScript)
	if len(ops) != 5 {
		t.Fatalf("sigScript has %d elements, want 5", len(ops))
	}
	if !bytes.Equal(data[1], c.ServerPubKey()) {
		t.Errorf("pubkey push = %x", data[1])
	}
	if !bytes.Equal(data[2], preimage(t)) {
		t.Errorf("preimage push = %x", data[2])
	}
	if ops[3] != txscript.OP_TRUE {
		t.Errorf("branch selector = %#x, want OP_TRUE", ops[3])
	}
	if !bytes.Equal(data[4], contract.Script) {
		t.Error("last push is not the contract script")
	}
	if data[0][len(data[0])-1] != byte(txscript.SigHashAll) {
		t.Error("signature missing SigHashAll byte")
	}
	if tx.Hex() == "" || len(tx.TxID()) != 64 {
		t.Errorf("hex/txid = %q/%q", tx.Hex(), tx.TxID())
	}
}

func TestRefund(t *testing.T) {
	c := newTestClient(t)
	contract := fundedContract(t, c)
	outputs := []utxo.Output{
		{TxID: testutil.FakeTxID(1), Index: 0, Amount: 60_000_000},
		{TxID: testutil.FakeTxID(2), Index: 1, Amount: 40_000_000},
	}
	dest := clientAddress(t, c.Params())

	tx, err := c.Refund(contract, outputs, dest, 10, clientKeyHex)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if tx.Tx.LockTime != fixedLock {
		t.Errorf("locktime = %d, want %d", tx.Tx.LockTime, fixedLock)
	}
	for i, in := range tx.Tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum-1 {
			t.Errorf("input %d sequence = %d", i, in.Sequence)
		}
		data, ops := pushes(t, in.SignatureScript)
		if len(ops) != 4 || ops[2] != txscript.OP_FALSE {
			t.Fatalf("input %d sigScript ops = %x", i, ops)
		}
		if !bytes.Equal(stdaddr.Hash160(data[1]), contract.ClientPubKeyHash[:]) {
			t.Errorf("input %d pubkey does not match refund hash", i)
		}
	}
	if got := uint64(tx.Tx.TxOut[0].Value); got != 100_000_000-tx.Fee {
		t.Errorf("output value = %d", got)
	}
}

func TestSpendErrors(t *testing.T) {
	c := newTestClient(t)
	contract := fundedContract(t, c)
	dest := clientAddress(t, c.Params())
	one := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: 100_000}}

	sized, err := c.Claim(contract, one, preimage(t), 1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	fee := uint64(sized.Size) * 10
	exact := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: fee}}
	dust := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: fee + DefaultDustLimit - 1}}

	if _, err := c.Claim(contract, nil, preimage(t), 1); !errors.Is(err, ErrNoOutputs) {
		t.Errorf("Claim(no outputs) error = %v, want ErrNoOutputs", err)
	}
	if _, err := c.Claim(contract, append(one, one[0]), preimage(t), 1); !errors.Is(err, ErrDuplicateOutput) {
		t.Errorf("Claim(duplicate) error = %v, want ErrDuplicateOutput", err)
	}
	if _, err := c.Claim(contract, exact, preimage(t), 10); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Claim(high fee) error = %v, want ErrInsufficientFunds", err)
	}
	if _, err := c.Claim(contract, dust, preimage(t), 10); !errors.Is(err, ErrDustOutput) {
		t.Errorf("Claim(dust) error = %v, want ErrDustOutput", err)
	}
	other, err := New(clientKeyHex, c.Params(), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Claim(contract, one, preimage(t), 1); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Claim(other server) error = %v, want ErrInvalidKey", err)
	}
	if _, err := c.Refund(contract, one, dest, 1, serverKeyHex); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Refund(server key) error = %v, want ErrInvalidKey", err)
	}
	if _, err := c.Refund(contract, one, "bogus", 1, clientKeyHex); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Refund(bad dest) error = %v, want ErrInvalidAddress", err)
	}
	bad := []utxo.Output{{TxID: "xyz", Index: 0, Amount: 100_000}}
	if _, err := c.Claim(contract, bad, preimage(t), 1); !errors.Is(err, utxo.ErrInvalidTxID) {
		t.Errorf("Claim(bad txid) error = %v, want ErrInvalidTxID", err)
	}
}

// execute runs input 0 of tx against the P2SH output of contract.
func execute(t *testing.T, contract *Contract, params *chaincfg.Params, tx *wire.MsgTx) error {
	t.Helper()
	addr, err := stdaddr.DecodeAddress(contract.Address, params)
	if err != nil {
		t.Fatal(err)
	}
	version, pkScript := addr.PaymentScript()
	flags := txscript.ScriptVerifyCheckLockTimeVerify | txscript.ScriptVerifySHA256 | txscript.ScriptVerifyCleanStack
	vm, err := txscript.NewEngine(pkScript, tx, 0, flags, version, nil)
	if err != nil {
		return err
	}
	return vm.Execute()
}

func TestClaimExecutes(t *testing.T) {
	c := newTestClient(t)
	contract := fundedContract(t, c)
	outputs := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: 100_000_000}}

	tests := []struct {
		name     string
		preimage []byte
		want     error
	}{
		{"valid preimage", preimage(t), nil},
		{"wrong preimage", []byte("not the preimage"), txscript.ErrEqualVerify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := c.Claim(contract, outputs, tt.preimage, 10)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			err = execute(t, contract, c.Params(), tx.Tx)
			if tt.want == nil && err != nil {
				t.Errorf("Execute() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Execute() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRefundExecutes(t *testing.T) {
	c := newTestClient(t)
	contract := fundedContract(t, c)
	outputs := []utxo.Output{{TxID: testutil.FakeTxID(1), Index: 0, Amount: 100_000_000}}

	tx, err := c.Refund(contract, outputs, clientAddress(t, c.Params()), 10, clientKeyHex)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if err := execute(t, contract, c.Params(), tx.Tx); err != nil {
		t.Errorf("Execute() error = %v", err)
	}

	early := tx.Tx.Copy()
	early.LockTime = contract.LockTime - 1
	if err := execute(t, contract, c.Params(), early); !errors.Is(err, txscript.ErrUnsatisfiedLockTime) {
		t.Errorf("Execute(early) error = %v, want ErrUnsatisfiedLockTime", err)
	}
}
