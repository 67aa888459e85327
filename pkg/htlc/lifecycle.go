package htlc

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/klingon-exchange/swapkit/internal/decred"
	"github.com/klingon-exchange/swapkit/internal/evm"
	"github.com/klingon-exchange/swapkit/internal/utxo"
)

// ErrAdminRefundUnsupported is returned by AdminRefund on a contract with
// no refund-secret branch.
var ErrAdminRefundUnsupported = errors.New("contract has no admin refund path")

// Request carries the inputs of one lifecycle step. Each model reads only
// the fields it needs.
type Request struct {
	// Script-based chains.
	Outputs       []Output
	Amount        uint64 // fund only
	InputType     Scheme // fund only
	DestAddress   string
	CurrentHeight uint32
	FeeRate       uint64
	Key           *btcec.PrivateKey
	PubKey        []byte

	// Secret is the payment preimage for claims and the refund preimage
	// for admin refunds.
	Secret []byte

	// Decred. Fund derives Contract from SecretHash and ClientAddress;
	// claim and refund spend it. ClientKey is the hex refund key.
	SecretHash    string
	ClientAddress string
	LockTime      uint32
	Contract      *decred.Contract
	ClientKey     string

	// EVM.
	Broadcast  bool
	Transactor *bind.TransactOpts
}

// Result is the outcome of one lifecycle step. Exactly one field is set.
type Result struct {
	Utxo   *utxo.Transaction
	Evm    *evm.Result
	Decred *decred.Transaction

	// DecredContract is set by a Decred fund.
	DecredContract *decred.Contract
}

// TxID returns the transaction id of the step, or "" for unsigned EVM calls
// and Decred funds.
func (r *Result) TxID() string {
	switch {
	case r.Utxo != nil:
		return r.Utxo.TxID()
	case r.Decred != nil:
		return r.Decred.TxID()
	case r.Evm != nil && r.Evm.Tx != nil:
		return r.Evm.Tx.Hash().Hex()
	default:
		return ""
	}
}

// Lifecycle drives a contract through fund, claim and refund regardless of
// the chain model behind it.
type Lifecycle interface {
	Fund(ctx context.Context, req Request) (*Result, error)
	Claim(ctx context.Context, req Request) (*Result, error)
	Refund(ctx context.Context, req Request) (*Result, error)
	AdminRefund(ctx context.Context, req Request) (*Result, error)
	SupportsAdminRefund() bool
}

// Lifecycle returns the model-independent view of h.
func (h *HTLC) Lifecycle() Lifecycle {
	switch {
	case h.utxo != nil:
		return utxoLifecycle{h.utxo}
	case h.evm != nil:
		return evmLifecycle{h.evm}
	default:
		return decredLifecycle{h.decred}
	}
}

type utxoLifecycle struct {
	h *utxo.HTLC
}

func (l utxoLifecycle) spendParams(req Request) utxo.SpendParams {
	return utxo.SpendParams{
		Outputs:       req.Outputs,
		DestAddress:   req.DestAddress,
		CurrentHeight: req.CurrentHeight,
		FeeRate:       req.FeeRate,
		Key:           req.Key,
		PubKey:        req.PubKey,
	}
}

func (l utxoLifecycle) Fund(_ context.Context, req Request) (*Result, error) {
	tx, err := l.h.Fund(utxo.FundParams{
		Outputs:   req.Outputs,
		Amount:    req.Amount,
		FunderKey: req.Key,
		InputType: req.InputType,
		FeeRate:   req.FeeRate,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Utxo: tx}, nil
}

func (l utxoLifecycle) Claim(_ context.Context, req Request) (*Result, error) {
	p := l.spendParams(req)
	p.Secret = req.Secret
	tx, err := l.h.Claim(p)
	if err != nil {
		return nil, err
	}
	return &Result{Utxo: tx}, nil
}

func (l utxoLifecycle) Refund(_ context.Context, req Request) (*Result, error) {
	tx, err := l.h.Refund(l.spendParams(req))
	if err != nil {
		return nil, err
	}
	return &Result{Utxo: tx}, nil
}

func (l utxoLifecycle) AdminRefund(_ context.Context, req Request) (*Result, error) {
	if !l.h.SupportsAdminRefund() {
		return nil, ErrAdminRefundUnsupported
	}
	p := l.spendParams(req)
	p.RefundSecret = req.Secret
	tx, err := l.h.AdminRefund(p)
	if err != nil {
		return nil, err
	}
	return &Result{Utxo: tx}, nil
}

func (l utxoLifecycle) SupportsAdminRefund() bool {
	return l.h.SupportsAdminRefund()
}

type evmLifecycle struct {
	c *evm.Client
}

func evmResult(res *evm.Result, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	return &Result{Evm: res}, nil
}

// Fund uses the admin-refund variant when the order carries a refund hash.
func (l evmLifecycle) Fund(ctx context.Context, req Request) (*Result, error) {
	if l.c.SupportsAdminRefund() {
		return evmResult(l.c.FundWithAdminRefundEnabled(ctx, req.Broadcast, req.Transactor))
	}
	return evmResult(l.c.Fund(ctx, req.Broadcast, req.Transactor))
}

func (l evmLifecycle) Claim(ctx context.Context, req Request) (*Result, error) {
	return evmResult(l.c.Claim(ctx, req.Secret, req.Broadcast, req.Transactor))
}

func (l evmLifecycle) Refund(ctx context.Context, req Request) (*Result, error) {
	return evmResult(l.c.Refund(ctx, req.Broadcast, req.Transactor))
}

func (l evmLifecycle) AdminRefund(ctx context.Context, req Request) (*Result, error) {
	if !l.c.SupportsAdminRefund() {
		return nil, ErrAdminRefundUnsupported
	}
	return evmResult(l.c.AdminRefund(ctx, req.Secret, req.Broadcast, req.Transactor))
}

func (l evmLifecycle) SupportsAdminRefund() bool {
	return l.c.SupportsAdminRefund()
}

type decredLifecycle struct {
	c *decred.Client
}

// Fund derives the funding contract. LockTime of zero uses the configured
// lock duration.
func (l decredLifecycle) Fund(_ context.Context, req Request) (*Result, error) {
	var (
		contract *decred.Contract
		err      error
	)
	if req.LockTime > 0 {
		contract, err = l.c.FundUntil(req.SecretHash, req.ClientAddress, req.LockTime)
	} else {
		contract, err = l.c.Fund(req.SecretHash, req.ClientAddress)
	}
	if err != nil {
		return nil, err
	}
	return &Result{DecredContract: contract}, nil
}

func (l decredLifecycle) Claim(_ context.Context, req Request) (*Result, error) {
	if req.Contract == nil {
		return nil, fmt.Errorf("%w: decred claim needs a contract", ErrMissingArgs)
	}
	tx, err := l.c.Claim(req.Contract, req.Outputs, req.Secret, req.FeeRate)
	if err != nil {
		return nil, err
	}
	return &Result{Decred: tx}, nil
}

func (l decredLifecycle) Refund(_ context.Context, req Request) (*Result, error) {
	if req.Contract == nil {
		return nil, fmt.Errorf("%w: decred refund needs a contract", ErrMissingArgs)
	}
	tx, err := l.c.Refund(req.Contract, req.Outputs, req.DestAddress, req.FeeRate, req.ClientKey)
	if err != nil {
		return nil, err
	}
	return &Result{Decred: tx}, nil
}

func (decredLifecycle) AdminRefund(context.Context, Request) (*Result, error) {
	return nil, ErrAdminRefundUnsupported
}

func (decredLifecycle) SupportsAdminRefund() bool {
	return false
}
