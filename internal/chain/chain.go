// Package chain defines the (network, subnet) pairs the swap engine can
// construct HTLCs for, and the parameters each pair carries.
// All chain-specific values are hardcoded here - no external configuration needed.
package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"
)

// ErrUnsupportedNetwork is returned when a (network, subnet) pair is not registered.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Network identifies a blockchain family member.
type Network string

const (
	Bitcoin  Network = "bitcoin"
	Litecoin Network = "litecoin"
	Ethereum Network = "ethereum"
	Decred   Network = "decred"
)

// Subnet identifies a deployment of a network (mainnet, testnet, ...).
type Subnet string

const (
	Mainnet       Subnet = "mainnet"
	Testnet       Subnet = "testnet"
	Simnet        Subnet = "simnet"
	Regtest       Subnet = "regtest"
	Sepolia       Subnet = "sepolia"
	GanacheSimnet Subnet = "ganache_simnet"
)

// Model is the HTLC construction model used on a network.
type Model string

const (
	ModelUtxo   Model = "utxo"   // script-based outputs (BTC, LTC)
	ModelEvm    Model = "evm"    // persistent swap contract
	ModelDecred Model = "decred" // P2SH fund address with CLTV refund
)

// Params contains all parameters for a (network, subnet) pair.
type Params struct {
	// Identity
	Network  Network
	Subnet   Subnet
	Symbol   string // BTC, LTC, ETH, DCR
	Name     string
	Model    Model
	Decimals uint8

	// Address encoding (UTXO model)
	PubKeyHashAddrID byte   // Address prefix for P2PKH
	ScriptHashAddrID byte   // Address prefix for P2SH
	Bech32HRP        string // Bech32 human-readable prefix
	WIF              byte   // Private key prefix
	HDPrivateKeyID   [4]byte
	HDPublicKeyID    [4]byte
	SupportsSegWit   bool

	// EVM params
	ChainID uint64

	// base is the btcd network these params are derived from.
	base *chaincfg.Params
}

// Key returns the "network/subnet" identifier of the pair.
func (p *Params) Key() string {
	return string(p.Network) + "/" + string(p.Subnet)
}

// IsUtxo reports whether the pair uses script-based outputs.
func (p *Params) IsUtxo() bool {
	return p.Model == ModelUtxo
}

// ChainConfig returns btcd chaincfg params for script and address work.
// Returns nil for networks that are not part of the Bitcoin family.
//
// Networks that btcd knows natively are returned as is. Others (Litecoin)
// are cloned from their base network with the prefixes overridden, so the
// returned value is never registered with chaincfg.
func (p *Params) ChainConfig() *chaincfg.Params {
	if p.base == nil {
		return nil
	}
	if p.base.PubKeyHashAddrID == p.PubKeyHashAddrID &&
		p.base.ScriptHashAddrID == p.ScriptHashAddrID &&
		p.base.Bech32HRPSegwit == p.Bech32HRP {
		return p.base
	}

	cfg := *p.base
	cfg.Name = string(p.Network) + "-" + string(p.Subnet)
	cfg.PubKeyHashAddrID = p.PubKeyHashAddrID
	cfg.ScriptHashAddrID = p.ScriptHashAddrID
	cfg.Bech32HRPSegwit = p.Bech32HRP
	cfg.PrivateKeyID = p.WIF
	cfg.HDPrivateKeyID = p.HDPrivateKeyID
	cfg.HDPublicKeyID = p.HDPublicKeyID
	return &cfg
}

// registry maps network -> subnet -> params.
var registry = make(map[Network]map[Subnet]*Params)

// Register adds chain params to the registry.
func Register(params *Params) {
	if registry[params.Network] == nil {
		registry[params.Network] = make(map[Subnet]*Params)
	}
	registry[params.Network][params.Subnet] = params
}

// Get returns chain params for a network and subnet.
func Get(network Network, subnet Subnet) (*Params, bool) {
	subnets, ok := registry[network]
	if !ok {
		return nil, false
	}
	params, ok := subnets[subnet]
	return params, ok
}

// Lookup is Get with an error for unknown pairs.
func Lookup(network Network, subnet Subnet) (*Params, error) {
	params, ok := Get(network, subnet)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedNetwork, network, subnet)
	}
	return params, nil
}

// Subnets returns the registered subnets of a network in sorted order.
func Subnets(network Network) []Subnet {
	subnets := make([]Subnet, 0, len(registry[network]))
	for subnet := range registry[network] {
		subnets = append(subnets, subnet)
	}
	sort.Slice(subnets, func(i, j int) bool { return subnets[i] < subnets[j] })
	return subnets
}

// List returns every registered pair, ordered by key.
func List() []*Params {
	var all []*Params
	for _, subnets := range registry {
		for _, params := range subnets {
			all = append(all, params)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })
	return all
}

// ListByModel returns every registered pair using the given model.
func ListByModel(model Model) []*Params {
	var out []*Params
	for _, params := range List() {
		if params.Model == model {
			out = append(out, params)
		}
	}
	return out
}

// GetByChainID returns EVM params for a chain ID.
func GetByChainID(chainID uint64) (*Params, bool) {
	for _, params := range ListByModel(ModelEvm) {
		if params.ChainID == chainID {
			return params, true
		}
	}
	return nil, false
}

// fromChaincfg fills the address prefixes of p from a btcd network.
func fromChaincfg(p *Params, base *chaincfg.Params) *Params {
	p.PubKeyHashAddrID = base.PubKeyHashAddrID
	p.ScriptHashAddrID = base.ScriptHashAddrID
	p.Bech32HRP = base.Bech32HRPSegwit
	p.WIF = base.PrivateKeyID
	p.HDPrivateKeyID = base.HDPrivateKeyID
	p.HDPublicKeyID = base.HDPublicKeyID
	p.base = base
	return p
}
