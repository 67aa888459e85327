// Package htlc is the entry point for building hashed timelock contracts on
// any supported chain.
//
// Construct resolves the HTLC model from the (network, subnet) pair and
// returns a tagged union holding exactly one model client:
//
//	h, err := htlc.Construct("bitcoin", "testnet", htlc.Args{
//		Utxo: &htlc.UtxoArgs{Args: scriptArgs},
//	})
//	if err != nil {
//		return err
//	}
//	tx, err := h.Utxo().Claim(params)
//
// Lifecycle drives fund, claim and refund through one interface for
// callers that do not care which model is behind the chain.
//
// The caller picks the model by the chain it names, never by which args
// section it fills in. A section for another model is ignored.
package htlc

import (
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/chain"
	"github.com/klingon-exchange/swapkit/internal/config"
	"github.com/klingon-exchange/swapkit/internal/decred"
	"github.com/klingon-exchange/swapkit/internal/evm"
	"github.com/klingon-exchange/swapkit/internal/script"
	"github.com/klingon-exchange/swapkit/internal/timelock"
	"github.com/klingon-exchange/swapkit/internal/utxo"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

// Model is the HTLC construction model of a chain.
type Model = chain.Model

const (
	ModelUtxo   = chain.ModelUtxo
	ModelEvm    = chain.ModelEvm
	ModelDecred = chain.ModelDecred
)

// Re-exported argument and result types.
type (
	ScriptArgs   = script.Args
	OrderArgs    = evm.Args
	Timelock     = timelock.Timelock
	Scheme       = address.Scheme
	Output       = utxo.Output
	FundParams   = utxo.FundParams
	SpendParams  = utxo.SpendParams
	Transaction  = utxo.Transaction
	UnsignedCall = evm.UnsignedCall
	CallResult   = evm.Result
	OrderState   = evm.OrderState
)

// Errors
var (
	ErrUnsupportedNetwork = chain.ErrUnsupportedNetwork
	ErrMissingArgs        = errors.New("missing arguments for chain model")

	ErrInvalidAddress         = address.ErrInvalidAddress
	ErrUnsupportedTimelock    = timelock.ErrUnsupportedTimelock
	ErrRelativeLockOutOfRange = timelock.ErrRelativeLockOutOfRange
	ErrInsufficientFunds      = utxo.ErrInsufficientFunds
	ErrReverted               = evm.ErrReverted
)

// CompileError is returned when a redeem script cannot be assembled.
type CompileError = script.CompileError

// UtxoArgs configure a script-based HTLC.
type UtxoArgs struct {
	script.Args

	// Scheme of the swap output; empty selects P2SH-P2WSH.
	Scheme    address.Scheme
	DustLimit uint64
}

// EvmArgs configure a swap contract order.
type EvmArgs struct {
	evm.Args

	Backend        evm.Backend
	ReceiptTimeout time.Duration
}

// DecredArgs configure the Decred swap client.
type DecredArgs struct {
	ServerKey    string // hex private key of the claiming server
	LockDuration time.Duration
	DustLimit    uint64
}

// Args holds one optional section per model. Only the section matching
// the resolved model is read.
type Args struct {
	Utxo   *UtxoArgs
	Evm    *EvmArgs
	Decred *DecredArgs

	Logger *logging.Logger
}

// ApplyConfig fills unset tunables in every present section from cfg.
func (a *Args) ApplyConfig(cfg *config.Config) {
	if a.Utxo != nil {
		if a.Utxo.Scheme == "" {
			a.Utxo.Scheme = cfg.Utxo.Scheme
		}
		if a.Utxo.DustLimit == 0 {
			a.Utxo.DustLimit = cfg.Utxo.DustLimit
		}
	}
	if a.Evm != nil && a.Evm.ReceiptTimeout == 0 {
		a.Evm.ReceiptTimeout = cfg.EVM.ReceiptTimeout
	}
	if a.Decred != nil {
		if a.Decred.LockDuration == 0 {
			a.Decred.LockDuration = cfg.Decred.LockDuration
		}
		if a.Decred.DustLimit == 0 {
			a.Decred.DustLimit = cfg.Decred.DustLimit
		}
	}
}

// HTLC is a constructed contract for one chain. Exactly one of the model
// accessors returns non-nil.
type HTLC struct {
	params *chain.Params

	utxo   *utxo.HTLC
	evm    *evm.Client
	decred *decred.Client
}

// Construct builds the HTLC client for the given chain.
func Construct(network, subnet string, args Args) (*HTLC, error) {
	params, err := chain.Lookup(chain.Network(network), chain.Subnet(subnet))
	if err != nil {
		return nil, err
	}

	log := args.Logger
	if log == nil {
		log = logging.GetDefault()
	}
	h := &HTLC{params: params}

	switch params.Model {
	case chain.ModelUtxo:
		if args.Utxo == nil {
			return nil, fmt.Errorf("%w: %s needs utxo args", ErrMissingArgs, params.Key())
		}
		opts := []utxo.BuilderOption{utxo.WithLogger(log.Component("utxo"))}
		if args.Utxo.DustLimit > 0 {
			opts = append(opts, utxo.WithDustLimit(args.Utxo.DustLimit))
		}
		h.utxo, err = utxo.New(args.Utxo.Args, params.ChainConfig(), args.Utxo.Scheme, opts...)

	case chain.ModelEvm:
		if args.Evm == nil {
			return nil, fmt.Errorf("%w: %s needs evm args", ErrMissingArgs, params.Key())
		}
		opts := []evm.Option{evm.WithLogger(log.Component("evm"))}
		if args.Evm.ReceiptTimeout > 0 {
			opts = append(opts, evm.WithReceiptTimeout(args.Evm.ReceiptTimeout))
		}
		h.evm, err = evm.New(args.Evm.Args, args.Evm.Backend, opts...)

	case chain.ModelDecred:
		if args.Decred == nil {
			return nil, fmt.Errorf("%w: %s needs decred args", ErrMissingArgs, params.Key())
		}
		dcrParams, perr := decred.ChainParams(params.Subnet)
		if perr != nil {
			return nil, perr
		}
		opts := []decred.Option{decred.WithLogger(log.Component("decred"))}
		if args.Decred.LockDuration > 0 {
			opts = append(opts, decred.WithLockDuration(args.Decred.LockDuration))
		}
		if args.Decred.DustLimit > 0 {
			opts = append(opts, decred.WithDustLimit(args.Decred.DustLimit))
		}
		h.decred, err = decred.New(args.Decred.ServerKey, dcrParams, opts...)

	default:
		return nil, fmt.Errorf("%w: %s has no htlc model", ErrUnsupportedNetwork, params.Key())
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Model returns the construction model in use.
func (h *HTLC) Model() Model {
	return h.params.Model
}

// Chain returns the resolved chain parameters.
func (h *HTLC) Chain() *chain.Params {
	return h.params
}

// Utxo returns the script-based client, or nil.
func (h *HTLC) Utxo() *utxo.HTLC {
	return h.utxo
}

// Evm returns the swap contract client, or nil.
func (h *HTLC) Evm() *evm.Client {
	return h.evm
}

// Decred returns the Decred client, or nil.
func (h *HTLC) Decred() *decred.Client {
	return h.decred
}

// SupportsAdminRefund reports whether the contract has a refund-secret
// branch. Decred contracts never do.
func (h *HTLC) SupportsAdminRefund() bool {
	switch {
	case h.utxo != nil:
		return h.utxo.SupportsAdminRefund()
	case h.evm != nil:
		return h.evm.SupportsAdminRefund()
	default:
		return false
	}
}
