// Package evm provides the client for the EtherSwap and ERC20Swap HTLC
// contracts.
//
// Every state-changing call can either be returned as an unsigned call
// payload for external signing, or signed with the caller's transactor,
// submitted and awaited. The contracts enforce the swap invariants; only
// the shape of the inputs is checked here.
package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/klingon-exchange/swapkit/pkg/helpers"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

// Client errors
var (
	ErrInvalidHash         = errors.New("invalid hash")
	ErrInvalidSecret       = errors.New("secret must be 32 bytes")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMissingContract     = errors.New("contract address required")
	ErrMissingTransactor   = errors.New("transactor required to broadcast")
	ErrAdminRefundDisabled = errors.New("order has no refund hash")
	ErrNotERC20            = errors.New("not an ERC20 swap")
	ErrReverted            = errors.New("transaction reverted")
)

// DefaultReceiptTimeout bounds how long a broadcast call waits to be mined.
const DefaultReceiptTimeout = 2 * time.Minute

// Backend is the chain access the client needs: contract calls, transaction
// submission, log filtering and receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Args are the fund-time parameters of an EVM swap order.
type Args struct {
	OrderID     uuid.UUID      `json:"orderId" yaml:"order_id"`
	PaymentHash string         `json:"paymentHash" yaml:"payment_hash"`                   // hex, 32 bytes
	RefundHash  string         `json:"refundHash,omitempty" yaml:"refund_hash,omitempty"` // hex, enables admin refund
	Amount      *big.Int       `json:"amount" yaml:"amount"`                              // wei or token base units, fund and approve only
	Contract    common.Address `json:"contract" yaml:"contract"`                          // EtherSwap or ERC20Swap
	Token       common.Address `json:"token,omitempty" yaml:"token,omitempty"`            // zero for native ether
}

// IsERC20 reports whether the order swaps a token.
func (a Args) IsERC20() bool {
	return a.Token != (common.Address{})
}

// UnsignedCall is a contract call payload for external signing.
type UnsignedCall struct {
	From  common.Address `json:"from,omitempty"`
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`
}

// DataHex returns the calldata as 0x-prefixed hex.
func (c *UnsignedCall) DataHex() string {
	return "0x" + hex.EncodeToString(c.Data)
}

// Result is the outcome of a state-changing call. Exactly one of Call or
// Tx is set, depending on the broadcast flag.
type Result struct {
	Call    *UnsignedCall
	Tx      *types.Transaction
	Receipt *types.Receipt
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithReceiptTimeout overrides DefaultReceiptTimeout.
func WithReceiptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.receiptTimeout = d
		}
	}
}

// Client drives one swap order on an EtherSwap or ERC20Swap contract.
type Client struct {
	args        Args
	paymentHash [32]byte
	refundHash  [32]byte
	hasRefund   bool

	backend  Backend
	abi      *abi.ABI
	tokenABI *abi.ABI
	contract *bind.BoundContract
	token    *bind.BoundContract

	receiptTimeout time.Duration
	log            *logging.Logger
}

// New validates args and binds the matching swap contract.
func New(args Args, backend Backend, opts ...Option) (*Client, error) {
	if args.Contract == (common.Address{}) {
		return nil, ErrMissingContract
	}
	if args.Amount != nil && args.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	paymentHash, err := parseHash32(args.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("payment hash: %w", err)
	}

	c := &Client{
		args:           args,
		paymentHash:    paymentHash,
		backend:        backend,
		receiptTimeout: DefaultReceiptTimeout,
		log:            logging.GetDefault().Component("evm"),
	}
	if args.RefundHash != "" {
		if c.refundHash, err = parseHash32(args.RefundHash); err != nil {
			return nil, fmt.Errorf("refund hash: %w", err)
		}
		c.hasRefund = true
	}
	for _, opt := range opts {
		opt(c)
	}

	meta := EtherSwapMetaData
	if args.IsERC20() {
		meta = ERC20SwapMetaData
	}
	if c.abi, err = meta.GetAbi(); err != nil {
		return nil, fmt.Errorf("failed to parse swap ABI: %w", err)
	}
	c.contract = bind.NewBoundContract(args.Contract, *c.abi, backend, backend, backend)

	if args.IsERC20() {
		if c.tokenABI, err = ERC20MetaData.GetAbi(); err != nil {
			return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
		}
		c.token = bind.NewBoundContract(args.Token, *c.tokenABI, backend, backend, backend)
	}
	return c, nil
}

// Args returns the order arguments.
func (c *Client) Args() Args {
	return c.args
}

// SupportsAdminRefund reports whether a refund hash was supplied.
func (c *Client) SupportsAdminRefund() bool {
	return c.hasRefund
}

// ABI returns the parsed swap contract ABI.
func (c *Client) ABI() *abi.ABI {
	return c.abi
}

// Fund locks the order amount with the payment hash.
func (c *Client) Fund(ctx context.Context, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	if c.args.Amount == nil {
		return nil, ErrInvalidAmount
	}
	id := orderKey(c.args.OrderID)
	if c.args.IsERC20() {
		return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts,
			methodFund, id, c.args.Token, c.args.Amount, c.paymentHash)
	}
	return c.call(ctx, c.contract, c.args.Contract, c.args.Amount, broadcast, opts,
		methodFund, id, c.paymentHash)
}

// FundWithAdminRefundEnabled locks the order amount with both the payment
// hash and the refund hash.
func (c *Client) FundWithAdminRefundEnabled(ctx context.Context, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	if !c.hasRefund {
		return nil, ErrAdminRefundDisabled
	}
	if c.args.Amount == nil {
		return nil, ErrInvalidAmount
	}
	id := orderKey(c.args.OrderID)
	if c.args.IsERC20() {
		return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts,
			methodFundWithAdminRefund, id, c.args.Token, c.args.Amount, c.paymentHash, c.refundHash)
	}
	return c.call(ctx, c.contract, c.args.Contract, c.args.Amount, broadcast, opts,
		methodFundWithAdminRefund, id, c.paymentHash, c.refundHash)
}

// Claim reveals the payment preimage.
func (c *Client) Claim(ctx context.Context, secret []byte, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	preimage, err := secret32(secret)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts,
		methodClaim, orderKey(c.args.OrderID), preimage)
}

// Refund returns the funds to the funder once the refund delay has passed.
func (c *Client) Refund(ctx context.Context, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts,
		methodRefund, orderKey(c.args.OrderID))
}

// AdminRefund returns the funds immediately given the refund preimage.
func (c *Client) AdminRefund(ctx context.Context, secret []byte, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	if !c.hasRefund {
		return nil, ErrAdminRefundDisabled
	}
	preimage, err := secret32(secret)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts,
		methodAdminRefund, orderKey(c.args.OrderID), preimage)
}

// SetRefundDelay changes the contract refund delay. Operator only.
func (c *Client) SetRefundDelay(ctx context.Context, delay time.Duration, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	if delay < time.Second {
		return nil, fmt.Errorf("refund delay must be at least one second, got %s", delay)
	}
	seconds := big.NewInt(int64(delay / time.Second))
	return c.call(ctx, c.contract, c.args.Contract, nil, broadcast, opts, methodSetRefundDelay, seconds)
}

// Approve allows the swap contract to pull the order amount of tokens.
func (c *Client) Approve(ctx context.Context, broadcast bool, opts *bind.TransactOpts) (*Result, error) {
	if c.token == nil {
		return nil, ErrNotERC20
	}
	if c.args.Amount == nil {
		return nil, ErrInvalidAmount
	}
	return c.call(ctx, c.token, c.args.Token, nil, broadcast, opts,
		methodApprove, c.args.Contract, c.args.Amount)
}

// Allowance returns the tokens owner has approved to the swap contract.
func (c *Client) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if c.token == nil {
		return nil, ErrNotERC20
	}
	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, methodAllowance, owner, c.args.Contract); err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// RefundDelay returns the contract refund delay.
func (c *Client) RefundDelay(ctx context.Context) (time.Duration, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodRefundDelay); err != nil {
		return 0, fmt.Errorf("failed to get refund delay: %w", err)
	}
	seconds := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return time.Duration(seconds.Int64()) * time.Second, nil
}

// Order reads the on-chain order record.
func (c *Client) Order(ctx context.Context) (*Order, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodOrders, orderKey(c.args.OrderID)); err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("unexpected orders() result of %d values", len(out))
	}

	fundedAt := *abi.ConvertType(out[6], new(*big.Int)).(**big.Int)
	order := &Order{
		ID:          c.args.OrderID,
		State:       OrderState(*abi.ConvertType(out[0], new(uint8)).(*uint8)),
		PaymentHash: *abi.ConvertType(out[1], new([32]byte)).(*[32]byte),
		RefundHash:  *abi.ConvertType(out[2], new([32]byte)).(*[32]byte),
		Amount:      *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Funder:      *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		Claimer:     *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
	}
	if fundedAt.Sign() > 0 {
		order.FundedAt = time.Unix(fundedAt.Int64(), 0).UTC()
	}
	return order, nil
}

// call packs method and either returns the payload or submits it.
func (c *Client) call(ctx context.Context, contract *bind.BoundContract, to common.Address, value *big.Int,
	broadcast bool, opts *bind.TransactOpts, method string, params ...interface{}) (*Result, error) {

	if value == nil {
		value = new(big.Int)
	}

	if !broadcast {
		data, err := c.pack(contract, to, method, params...)
		if err != nil {
			return nil, err
		}
		call := &UnsignedCall{To: to, Data: data, Value: new(big.Int).Set(value)}
		if opts != nil {
			call.From = opts.From
		}
		return &Result{Call: call}, nil
	}

	if opts == nil || opts.Signer == nil {
		return nil, ErrMissingTransactor
	}
	txOpts := *opts
	txOpts.Context = ctx
	txOpts.Value = value

	tx, err := contract.Transact(&txOpts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", method, err)
	}
	c.log.Debug("submitted contract call", "method", method, "order", c.args.OrderID, "tx", tx.Hash())

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &Result{Tx: tx, Receipt: receipt}, fmt.Errorf("%w: %s in tx %s", ErrReverted, method, tx.Hash())
	}
	c.log.Debug("contract call mined", "method", method, "tx", tx.Hash(), "block", receipt.BlockNumber, "gas", receipt.GasUsed)
	return &Result{Tx: tx, Receipt: receipt}, nil
}

func (c *Client) pack(contract *bind.BoundContract, to common.Address, method string, params ...interface{}) ([]byte, error) {
	parsed := c.abi
	if contract == c.token {
		parsed = c.tokenABI
	}
	data, err := parsed.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s for %s: %w", method, to, err)
	}
	return data, nil
}

// EstimateGas estimates the gas of an unsigned call.
func (c *Client) EstimateGas(ctx context.Context, call *UnsignedCall) (uint64, error) {
	to := call.To
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  call.From,
		To:    &to,
		Value: call.Value,
		Data:  call.Data,
	})
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(helpers.TrimHex(s))
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%w: must be 32 bytes, got %d", ErrInvalidHash, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func secret32(secret []byte) ([32]byte, error) {
	var out [32]byte
	if len(secret) != 32 {
		return out, fmt.Errorf("%w: got %d", ErrInvalidSecret, len(secret))
	}
	copy(out[:], secret)
	return out, nil
}
