package evm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

const hardhatKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testOrderID  = uuid.MustParse("6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b")
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testToken    = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	testSecret   = bytes.Repeat([]byte{0x11}, 32)
	testRefund   = bytes.Repeat([]byte{0x22}, 32)
)

func hashHex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// fakeBackend answers contract calls from canned outputs and records
// submitted transactions. Methods it does not override panic.
type fakeBackend struct {
	Backend

	outputs map[[4]byte][]byte
	logs    []types.Log
	status  uint64
	sent    []*types.Transaction
	query   ethereum.FilterQuery
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{outputs: make(map[[4]byte][]byte), status: types.ReceiptStatusSuccessful}
}

func (f *fakeBackend) setOutput(t *testing.T, parsed *abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m := parsed.Methods[method]
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	f.outputs[[4]byte(m.ID)] = out
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if len(call.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	out, ok := f.outputs[[4]byte(call.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(7), GasUsed: 21000}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.query = q
	return f.logs, nil
}

func etherArgs() Args {
	return Args{
		OrderID:     testOrderID,
		PaymentHash: hashHex(testSecret),
		Amount:      big.NewInt(1_000_000_000_000_000_000),
		Contract:    testContract,
	}
}

func newTestClient(t *testing.T, args Args, backend Backend) *Client {
	t.Helper()
	c, err := New(args, backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func testTransactor(t *testing.T) *bind.TransactOpts {
	t.Helper()
	opts, err := NewTransactor(hardhatKey, big.NewInt(1337))
	if err != nil {
		t.Fatalf("NewTransactor: %v", err)
	}
	opts.GasPrice = big.NewInt(1_000_000_000)
	opts.GasLimit = 200_000
	opts.Nonce = big.NewInt(0)
	return opts
}

func unpackCall(t *testing.T, parsed *abi.ABI, method string, data []byte) []interface{} {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	if !bytes.Equal(data[:4], m.ID) {
		t.Fatalf("selector = %x, want %x (%s)", data[:4], m.ID, method)
	}
	vals, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack %s: %v", method, err)
	}
	return vals
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Args)
		want   error
	}{
		{"missing contract", func(a *Args) { a.Contract = common.Address{} }, ErrMissingContract},
		{"zero amount", func(a *Args) { a.Amount = big.NewInt(0) }, ErrInvalidAmount},
		{"negative amount", func(a *Args) { a.Amount = big.NewInt(-1) }, ErrInvalidAmount},
		{"short payment hash", func(a *Args) { a.PaymentHash = "abcd" }, ErrInvalidHash},
		{"bad payment hash", func(a *Args) { a.PaymentHash = "zz" }, ErrInvalidHash},
		{"bad refund hash", func(a *Args) { a.RefundHash = "0x1234" }, ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := etherArgs()
			tt.mutate(&args)
			if _, err := New(args, newFakeBackend()); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnsignedEtherFund(t *testing.T) {
	args := etherArgs()
	c := newTestClient(t, args, newFakeBackend())

	res, err := c.Fund(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if res.Call == nil || res.Tx != nil {
		t.Fatalf("expected unsigned call only, got %+v", res)
	}
	if res.Call.To != testContract {
		t.Errorf("to = %s, want %s", res.Call.To, testContract)
	}
	if res.Call.Value.Cmp(args.Amount) != 0 {
		t.Errorf("value = %s, want %s", res.Call.Value, args.Amount)
	}

	vals := unpackCall(t, c.ABI(), methodFund, res.Call.Data)
	if got := vals[0].([16]byte); got != orderKey(testOrderID) {
		t.Errorf("order key = %x", got)
	}
	wantHash := sha256.Sum256(testSecret)
	if got := vals[1].([32]byte); got != wantHash {
		t.Errorf("payment hash = %x, want %x", got, wantHash)
	}
}

func TestUnsignedERC20Fund(t *testing.T) {
	args := etherArgs()
	args.Token = testToken
	args.Amount = big.NewInt(5_000_000)
	args.RefundHash = "0x" + hashHex(testRefund)
	c := newTestClient(t, args, newFakeBackend())

	res, err := c.FundWithAdminRefundEnabled(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("FundWithAdminRefundEnabled: %v", err)
	}
	if res.Call.Value.Sign() != 0 {
		t.Errorf("token fund carries value %s", res.Call.Value)
	}

	vals := unpackCall(t, c.ABI(), methodFundWithAdminRefund, res.Call.Data)
	if got := vals[1].(common.Address); got != testToken {
		t.Errorf("token = %s, want %s", got, testToken)
	}
	if got := vals[2].(*big.Int); got.Cmp(args.Amount) != 0 {
		t.Errorf("amount = %s, want %s", got, args.Amount)
	}
	wantRefund := sha256.Sum256(testRefund)
	if got := vals[4].([32]byte); got != wantRefund {
		t.Errorf("refund hash = %x, want %x", got, wantRefund)
	}

	approve, err := c.Approve(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approve.Call.To != testToken {
		t.Errorf("approve sent to %s, want token", approve.Call.To)
	}
	tokenABI, _ := ERC20MetaData.GetAbi()
	avals := unpackCall(t, tokenABI, methodApprove, approve.Call.Data)
	if got := avals[0].(common.Address); got != testContract {
		t.Errorf("spender = %s, want swap contract", got)
	}
}

func TestClaimAndAdminRefundCalldata(t *testing.T) {
	args := etherArgs()
	args.RefundHash = hashHex(testRefund)
	c := newTestClient(t, args, newFakeBackend())

	claim, err := c.Claim(context.Background(), testSecret, false, nil)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	vals := unpackCall(t, c.ABI(), methodClaim, claim.Call.Data)
	if got := vals[1].([32]byte); !bytes.Equal(got[:], testSecret) {
		t.Errorf("preimage = %x", got)
	}

	admin, err := c.AdminRefund(context.Background(), testRefund, false, nil)
	if err != nil {
		t.Fatalf("AdminRefund: %v", err)
	}
	vals = unpackCall(t, c.ABI(), methodAdminRefund, admin.Call.Data)
	if got := vals[1].([32]byte); !bytes.Equal(got[:], testRefund) {
		t.Errorf("refund preimage = %x", got)
	}

	refund, err := c.Refund(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	unpackCall(t, c.ABI(), methodRefund, refund.Call.Data)

	delay, err := c.SetRefundDelay(context.Background(), 24*time.Hour, false, nil)
	if err != nil {
		t.Fatalf("SetRefundDelay: %v", err)
	}
	vals = unpackCall(t, c.ABI(), methodSetRefundDelay, delay.Call.Data)
	if got := vals[0].(*big.Int); got.Int64() != 86400 {
		t.Errorf("delay = %s, want 86400", got)
	}
}

func TestCallErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, etherArgs(), newFakeBackend())

	if _, err := c.Claim(ctx, []byte("short"), false, nil); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("Claim(short) error = %v, want ErrInvalidSecret", err)
	}
	if _, err := c.FundWithAdminRefundEnabled(ctx, false, nil); !errors.Is(err, ErrAdminRefundDisabled) {
		t.Errorf("FundWithAdminRefundEnabled error = %v, want ErrAdminRefundDisabled", err)
	}
	if _, err := c.AdminRefund(ctx, testRefund, false, nil); !errors.Is(err, ErrAdminRefundDisabled) {
		t.Errorf("AdminRefund error = %v, want ErrAdminRefundDisabled", err)
	}
	if _, err := c.Approve(ctx, false, nil); !errors.Is(err, ErrNotERC20) {
		t.Errorf("Approve error = %v, want ErrNotERC20", err)
	}
	if _, err := c.Fund(ctx, true, nil); !errors.Is(err, ErrMissingTransactor) {
		t.Errorf("Fund(broadcast, nil opts) error = %v, want ErrMissingTransactor", err)
	}
	if _, err := c.SetRefundDelay(ctx, time.Millisecond, false, nil); err == nil {
		t.Error("SetRefundDelay(1ms) succeeded")
	}
}

func TestBroadcast(t *testing.T) {
	backend := newFakeBackend()
	args := etherArgs()
	c := newTestClient(t, args, backend)
	opts := testTransactor(t)

	res, err := c.Fund(context.Background(), true, opts)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if res.Tx == nil || res.Receipt == nil {
		t.Fatalf("broadcast result missing tx or receipt: %+v", res)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(backend.sent))
	}
	tx := backend.sent[0]
	if *tx.To() != testContract {
		t.Errorf("tx to = %s", tx.To())
	}
	if tx.Value().Cmp(args.Amount) != 0 {
		t.Errorf("tx value = %s, want %s", tx.Value(), args.Amount)
	}
	unpackCall(t, c.ABI(), methodFund, tx.Data())
}

func TestBroadcastReverted(t *testing.T) {
	backend := newFakeBackend()
	backend.status = types.ReceiptStatusFailed
	c := newTestClient(t, etherArgs(), backend)

	res, err := c.Refund(context.Background(), true, testTransactor(t))
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("Refund error = %v, want ErrReverted", err)
	}
	if res == nil || res.Receipt == nil {
		t.Error("reverted call should still return the receipt")
	}
}

func TestOrderRead(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, etherArgs(), backend)

	ph := sha256.Sum256(testSecret)
	funder := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	claimer := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	backend.setOutput(t, c.ABI(), methodOrders,
		uint8(OrderStateFunded), ph, [32]byte{}, big.NewInt(42), funder, claimer, big.NewInt(1_700_000_000))
	backend.setOutput(t, c.ABI(), methodRefundDelay, big.NewInt(3600))

	order, err := c.Order(context.Background())
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if order.State != OrderStateFunded {
		t.Errorf("state = %s, want funded", order.State)
	}
	if order.PaymentHash != ph || order.HasAdminRefund() {
		t.Errorf("hashes = %x / %x", order.PaymentHash, order.RefundHash)
	}
	if order.Amount.Int64() != 42 || order.Funder != funder || order.Claimer != claimer {
		t.Errorf("order = %+v", order)
	}
	if order.FundedAt.Unix() != 1_700_000_000 {
		t.Errorf("fundedAt = %v", order.FundedAt)
	}

	delay, err := c.RefundDelay(context.Background())
	if err != nil {
		t.Fatalf("RefundDelay: %v", err)
	}
	if delay != time.Hour {
		t.Errorf("delay = %s, want 1h", delay)
	}
	if got := order.RefundableAt(delay); got.Unix() != 1_700_003_600 {
		t.Errorf("refundable at %v", got)
	}
}

func testLog(t *testing.T, parsed *abi.ABI, name string, id uuid.UUID, block uint64, index uint, extraTopics []interface{}, data ...interface{}) types.Log {
	t.Helper()
	ev := parsed.Events[name]
	query := [][]interface{}{{orderKey(id)}}
	for _, topic := range extraTopics {
		query = append(query, []interface{}{topic})
	}
	topics, err := abi.MakeTopics(query...)
	if err != nil {
		t.Fatalf("MakeTopics: %v", err)
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	l := types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ev.ID},
		Data:        packed,
		BlockNumber: block,
		Index:       index,
	}
	for _, tp := range topics {
		l.Topics = append(l.Topics, tp[0])
	}
	return l
}

func TestHistory(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, etherArgs(), backend)
	parsed := c.ABI()

	funder := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	ph := sha256.Sum256(testSecret)
	var preimage [32]byte
	copy(preimage[:], testSecret)

	other := testLog(t, parsed, eventOrderRefunded, uuid.New(), 12, 0, nil)
	removed := testLog(t, parsed, eventOrderRefunded, testOrderID, 11, 0, nil)
	removed.Removed = true
	backend.logs = []types.Log{
		testLog(t, parsed, eventOrderClaimed, testOrderID, 20, 1, nil, preimage),
		other,
		removed,
		testLog(t, parsed, eventOrderFunded, testOrderID, 10, 3, []interface{}{funder}, big.NewInt(42), ph, [32]byte{}),
	}

	to := uint64(100)
	events, err := c.History(context.Background(), 5, &to)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if backend.query.FromBlock.Uint64() != 5 || backend.query.ToBlock.Uint64() != 100 {
		t.Errorf("query range = %v..%v", backend.query.FromBlock, backend.query.ToBlock)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Name != eventOrderFunded || events[1].Name != eventOrderClaimed {
		t.Fatalf("events out of order: %s, %s", events[0].Name, events[1].Name)
	}
	if events[0].Funder != funder || events[0].Amount.Int64() != 42 || events[0].PaymentHash != ph {
		t.Errorf("funded event = %+v", events[0])
	}
	if events[1].Preimage != preimage {
		t.Errorf("claim preimage = %x", events[1].Preimage)
	}

	state, err := ReplayOrder(events)
	if err != nil {
		t.Fatalf("ReplayOrder: %v", err)
	}
	if state != OrderStateClaimed {
		t.Errorf("state = %s, want claimed", state)
	}
}

func TestReplayOrder(t *testing.T) {
	ev := func(s OrderState, block uint64) Event { return Event{State: s, BlockNumber: block} }

	tests := []struct {
		name    string
		events  []Event
		want    OrderState
		wantErr bool
	}{
		{"empty", nil, OrderStateNone, false},
		{"funded", []Event{ev(OrderStateFunded, 1)}, OrderStateFunded, false},
		{"refunded", []Event{ev(OrderStateFunded, 1), ev(OrderStateRefunded, 9)}, OrderStateRefunded, false},
		{"admin refunded", []Event{ev(OrderStateFunded, 1), ev(OrderStateAdminRefunded, 2)}, OrderStateAdminRefunded, false},
		{"claim before fund", []Event{ev(OrderStateClaimed, 1)}, OrderStateNone, true},
		{"double fund", []Event{ev(OrderStateFunded, 1), ev(OrderStateFunded, 2)}, OrderStateFunded, true},
		{"refund after claim", []Event{ev(OrderStateFunded, 1), ev(OrderStateClaimed, 2), ev(OrderStateRefunded, 3)}, OrderStateClaimed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReplayOrder(tt.events)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReplayOrder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
			if got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOrderStateTerminal(t *testing.T) {
	for _, s := range []OrderState{OrderStateClaimed, OrderStateRefunded, OrderStateAdminRefunded} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.CanTransition(OrderStateFunded) {
			t.Errorf("%s -> funded allowed", s)
		}
	}
	if OrderStateFunded.IsTerminal() || OrderStateNone.IsTerminal() {
		t.Error("non-terminal state reported terminal")
	}
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey(hardhatKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if got := AddressFromPrivateKey(key); got != want {
		t.Errorf("address = %s, want %s", got, want)
	}
	if _, err := ParsePrivateKey("nothex"); err == nil {
		t.Error("ParsePrivateKey(nothex) succeeded")
	}
}

func TestDial(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, "ftp://localhost:8545"); err == nil {
		t.Error("Dial(ftp) succeeded")
	}

	p, err := Dial(ctx, "http://127.0.0.1:8545")
	if err != nil {
		t.Fatalf("Dial(http): %v", err)
	}
	defer p.Close()
	if p.URL() != "http://127.0.0.1:8545" || p.Client() == nil {
		t.Errorf("provider = %+v", p)
	}
}

func TestNewHexPrefixes(t *testing.T) {
	want := sha256.Sum256(testSecret)
	for _, prefix := range []string{"", "0x", "0X"} {
		args := etherArgs()
		args.PaymentHash = prefix + hashHex(testSecret)
		c := newTestClient(t, args, newFakeBackend())
		if c.paymentHash != want {
			t.Errorf("prefix %q: payment hash = %x", prefix, c.paymentHash)
		}
	}
}

func TestNoAmount(t *testing.T) {
	ctx := context.Background()
	args := etherArgs()
	args.Amount = nil
	args.RefundHash = hashHex(testRefund)
	c := newTestClient(t, args, newFakeBackend())

	if _, err := c.Fund(ctx, false, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Fund() error = %v, want ErrInvalidAmount", err)
	}
	if _, err := c.FundWithAdminRefundEnabled(ctx, false, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("FundWithAdminRefundEnabled() error = %v, want ErrInvalidAmount", err)
	}
	if _, err := c.Claim(ctx, testSecret, false, nil); err != nil {
		t.Errorf("Claim() error = %v", err)
	}
	if _, err := c.Refund(ctx, false, nil); err != nil {
		t.Errorf("Refund() error = %v", err)
	}

	erc := etherArgs()
	erc.Amount = nil
	erc.Token = testToken
	tc := newTestClient(t, erc, newFakeBackend())
	if _, err := tc.Approve(ctx, false, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Approve() error = %v, want ErrInvalidAmount", err)
	}
}
