package utxo

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/script"
	"github.com/klingon-exchange/swapkit/internal/timelock"
)

// DefaultScheme is the swap output scheme used when none is configured.
const DefaultScheme = address.P2SHP2WSH

// HTLC is a UTXO-model swap: one compiled contract whose outputs are
// funded, claimed and refunded through a Builder.
type HTLC struct {
	args     script.Args
	compiled *script.Compiled
	contract *Contract
	builder  *Builder
}

// Details describes a compiled HTLC and its funding addresses.
type Details struct {
	Script    string                    `json:"script"`
	Paths     int                       `json:"paths"`
	Scheme    address.Scheme            `json:"scheme"`
	Address   string                    `json:"address"`
	Addresses map[address.Scheme]string `json:"addresses"`
	Timelock  timelock.Timelock         `json:"timelock"`
}

// New compiles the HTLC script for args and binds it to the given swap
// output scheme. An empty scheme selects DefaultScheme.
func New(args script.Args, params *chaincfg.Params, scheme address.Scheme, opts ...BuilderOption) (*HTLC, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}

	compiled, err := script.Compile(args, params)
	if err != nil {
		return nil, err
	}
	contract, err := NewContract(compiled, scheme, params)
	if err != nil {
		return nil, err
	}

	h := &HTLC{
		args:     args,
		compiled: compiled,
		contract: contract,
		builder:  NewBuilder(params, opts...),
	}
	h.builder.log.Debug("compiled htlc", "paths", compiled.Paths, "scheme", scheme,
		"address", contract.Address, "script", compiled.Hex())
	return h, nil
}

// Args returns the arguments the HTLC was compiled from.
func (h *HTLC) Args() script.Args {
	return h.args
}

// Compiled returns the compiled script.
func (h *HTLC) Compiled() *script.Compiled {
	return h.compiled
}

// Contract returns the contract bound to the configured scheme.
func (h *HTLC) Contract() *Contract {
	return h.contract
}

// Builder returns the transaction builder.
func (h *HTLC) Builder() *Builder {
	return h.builder
}

// Address returns the funding address under the configured scheme.
func (h *HTLC) Address() string {
	return h.contract.Address
}

// ScriptHex returns the redeem script as hex.
func (h *HTLC) ScriptHex() string {
	return hex.EncodeToString(h.compiled.Script)
}

// SupportsAdminRefund reports whether the script has the admin refund branch.
func (h *HTLC) SupportsAdminRefund() bool {
	return h.compiled.Paths == 3
}

// Details returns the script and its address under every script scheme.
func (h *HTLC) Details() (*Details, error) {
	d := &Details{
		Script:    h.ScriptHex(),
		Paths:     h.compiled.Paths,
		Scheme:    h.contract.Scheme,
		Address:   h.contract.Address,
		Addresses: make(map[address.Scheme]string, 3),
		Timelock:  h.args.Timelock,
	}
	if d.Timelock.Unit == "" {
		d.Timelock.Unit = timelock.Blocks
	}
	for _, scheme := range []address.Scheme{address.P2SH, address.P2SHP2WSH, address.P2WSH} {
		enc, err := address.EncodeScript(h.compiled.Script, scheme, h.builder.params)
		if err != nil {
			return nil, err
		}
		d.Addresses[scheme] = enc.Address
	}
	return d, nil
}

// Fund builds the funding transaction. SwapOutput defaults to the
// contract output script.
func (h *HTLC) Fund(p FundParams) (*Transaction, error) {
	if len(p.SwapOutput) == 0 {
		p.SwapOutput = h.contract.OutputScript
	}
	return h.builder.Fund(p)
}

// Claim builds the claim transaction.
func (h *HTLC) Claim(p SpendParams) (*Transaction, error) {
	return h.builder.Claim(h.contract, p)
}

// Refund builds the timelocked refund transaction. Any refund secret in p
// is ignored; use AdminRefund for that branch.
func (h *HTLC) Refund(p SpendParams) (*Transaction, error) {
	p.RefundSecret = nil
	return h.builder.Refund(h.contract, p)
}

// AdminRefund builds a refund through the refund-hash branch.
func (h *HTLC) AdminRefund(p SpendParams) (*Transaction, error) {
	if !h.SupportsAdminRefund() {
		return nil, ErrAdminRefundDisabled
	}
	if len(p.RefundSecret) == 0 {
		return nil, fmt.Errorf("refund secret required for admin refund")
	}
	return h.builder.Refund(h.contract, p)
}
