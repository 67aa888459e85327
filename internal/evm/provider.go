package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/swapkit/pkg/helpers"
)

// Provider is a connected JSON-RPC endpoint.
type Provider struct {
	url    string
	client *ethclient.Client
}

// Dial connects to an http(s) or ws(s) JSON-RPC endpoint.
func Dial(ctx context.Context, rawURL string) (*Provider, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc url: %w", err)
	}

	var opts []rpc.ClientOption
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "ws", "wss":
		opts = append(opts, rpc.WithWebsocketDialer(websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}))
	default:
		return nil, fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}

	rc, err := rpc.DialOptions(ctx, rawURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &Provider{url: rawURL, client: ethclient.NewClient(rc)}, nil
}

// Client returns the underlying client, usable as a Backend.
func (p *Provider) Client() *ethclient.Client {
	return p.client
}

// URL returns the endpoint the provider was dialed with.
func (p *Provider) URL() string {
	return p.url
}

// ChainID queries the endpoint chain ID.
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return id, nil
}

// Close closes the underlying RPC connection.
func (p *Provider) Close() {
	p.client.Close()
}

// NewTransactor builds signing options for a hex private key.
func NewTransactor(hexKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// ParsePrivateKey parses a hex-encoded private key, with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(helpers.TrimHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// AddressFromPrivateKey derives the address of a private key.
func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
