// Package decred implements the Decred swap variant: the server derives a
// P2SH funding address from the payment hash and its own key, and the client
// can take the funds back once an absolute lock time has passed.
//
// There is no admin refund branch. The contract script is
//
//	OP_IF
//	    OP_SHA256 <secretHash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <serverPKH> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ELSE
//	    <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <clientPKH> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ENDIF
package decred

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"

	"github.com/klingon-exchange/swapkit/internal/chain"
	"github.com/klingon-exchange/swapkit/internal/timelock"
	"github.com/klingon-exchange/swapkit/pkg/helpers"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

// Decred errors
var (
	ErrInvalidKey      = errors.New("invalid private key")
	ErrInvalidHash     = errors.New("secret hash must be 32 bytes")
	ErrInvalidAddress  = errors.New("invalid decred address")
	ErrUnknownContract = errors.New("script is not a decred swap contract")
)

// DefaultLockDuration is how long the client must wait to refund.
const DefaultLockDuration = 48 * time.Hour

// ChainParams returns dcrd's parameters for subnet.
func ChainParams(subnet chain.Subnet) (*chaincfg.Params, error) {
	switch subnet {
	case chain.Mainnet:
		return chaincfg.MainNetParams(), nil
	case chain.Testnet:
		return chaincfg.TestNet3Params(), nil
	case chain.Simnet:
		return chaincfg.SimNetParams(), nil
	default:
		return nil, fmt.Errorf("unknown decred subnet %q", subnet)
	}
}

// Contract is a derived funding contract.
type Contract struct {
	Script           []byte
	Address          string
	SecretHash       [32]byte
	ServerPubKeyHash [20]byte
	ClientPubKeyHash [20]byte
	LockTime         uint32
}

// ScriptHex returns the contract script as hex.
func (c *Contract) ScriptHex() string {
	return hex.EncodeToString(c.Script)
}

// Option configures a Client.
type Option func(*Client)

// WithLockDuration overrides DefaultLockDuration.
func WithLockDuration(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.lockDuration = d
		}
	}
}

// WithClock sets the time source used to derive lock times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDustLimit overrides DefaultDustLimit.
func WithDustLimit(limit uint64) Option {
	return func(c *Client) {
		c.dustLimit = limit
	}
}

// Client derives and spends Decred swap contracts for one server key.
type Client struct {
	params       *chaincfg.Params
	serverKey    *secp256k1.PrivateKey
	serverPubKey []byte
	serverPKH    [20]byte
	serverAddr   stdaddr.Address

	lockDuration time.Duration
	dustLimit    uint64
	now          func() time.Time
	log          *logging.Logger
}

// New creates a client from the server's hex private key.
func New(serverKeyHex string, params *chaincfg.Params, opts ...Option) (*Client, error) {
	key, err := parsePrivateKey(serverKeyHex)
	if err != nil {
		return nil, err
	}
	pub := key.PubKey().SerializeCompressed()
	addr, err := pubKeyHashAddress(pub, params)
	if err != nil {
		return nil, err
	}

	c := &Client{
		params:       params,
		serverKey:    key,
		serverPubKey: pub,
		serverAddr:   addr,
		lockDuration: DefaultLockDuration,
		dustLimit:    DefaultDustLimit,
		now:          time.Now,
		log:          logging.GetDefault().Component("decred"),
	}
	copy(c.serverPKH[:], stdaddr.Hash160(pub))
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Params returns the chain parameters.
func (c *Client) Params() *chaincfg.Params {
	return c.params
}

// ServerAddress returns the P2PKH address claims pay to.
func (c *Client) ServerAddress() string {
	return c.serverAddr.String()
}

// ServerPubKey returns the compressed server public key.
func (c *Client) ServerPubKey() []byte {
	return c.serverPubKey
}

// Fund derives the funding contract for secretHash, refundable to
// clientRefundAddress after the configured lock duration.
func (c *Client) Fund(secretHash, clientRefundAddress string) (*Contract, error) {
	lockTime := c.now().Add(c.lockDuration).Unix()
	return c.FundUntil(secretHash, clientRefundAddress, uint32(lockTime))
}

// FundUntil derives the funding contract with an explicit unix lock time.
func (c *Client) FundUntil(secretHash, clientRefundAddress string, lockTime uint32) (*Contract, error) {
	if _, err := timelock.Encode(timelock.AbsoluteTime(uint64(lockTime))); err != nil {
		return nil, err
	}
	hash, err := parseSecretHash(secretHash)
	if err != nil {
		return nil, err
	}
	clientPKH, err := decodePubKeyHash(clientRefundAddress, c.params)
	if err != nil {
		return nil, err
	}

	contract, err := buildContract(hash, c.serverPKH, clientPKH, lockTime)
	if err != nil {
		return nil, err
	}
	addr, err := stdaddr.NewAddressScriptHashV0(contract, c.params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive fund address: %w", err)
	}

	c.log.Debug("derived fund address", "address", addr, "lock_time", lockTime)
	return &Contract{
		Script:           contract,
		Address:          addr.String(),
		SecretHash:       hash,
		ServerPubKeyHash: c.serverPKH,
		ClientPubKeyHash: clientPKH,
		LockTime:         lockTime,
	}, nil
}

// Refundable reports whether the contract lock time has passed at t.
func (c *Contract) Refundable(t time.Time) bool {
	return t.Unix() >= int64(c.LockTime)
}

func buildContract(secretHash [32]byte, serverPKH, clientPKH [20]byte, lockTime uint32) ([]byte, error) {
	b := txscript.NewScriptBuilder()

	b.AddOp(txscript.OP_IF)
	{
		b.AddOp(txscript.OP_SHA256)
		b.AddData(secretHash[:])
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(serverPKH[:])
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_CHECKSIG)
	}
	b.AddOp(txscript.OP_ELSE)
	{
		b.AddInt64(int64(lockTime))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(clientPKH[:])
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_CHECKSIG)
	}
	b.AddOp(txscript.OP_ENDIF)

	return b.Script()
}

// ParseContract recovers the contract fields from its script.
func ParseContract(script []byte, params *chaincfg.Params) (*Contract, error) {
	const scriptVersion = 0
	var pushes [][]byte
	var ops []byte

	tokenizer := txscript.MakeScriptTokenizer(scriptVersion, script)
	for tokenizer.Next() {
		ops = append(ops, tokenizer.Opcode())
		if data := tokenizer.Data(); data != nil {
			pushes = append(pushes, data)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownContract, err)
	}

	// Push sizes: secret hash, server hash, lock time, client hash.
	if len(ops) != 19 || len(pushes) != 4 ||
		len(pushes[0]) != 32 || len(pushes[1]) != 20 || len(pushes[3]) != 20 {
		return nil, ErrUnknownContract
	}
	lockTime, err := decodeLockTime(pushes[2])
	if err != nil {
		return nil, err
	}

	c := &Contract{LockTime: lockTime}
	copy(c.SecretHash[:], pushes[0])
	copy(c.ServerPubKeyHash[:], pushes[1])
	copy(c.ClientPubKeyHash[:], pushes[3])

	rebuilt, err := buildContract(c.SecretHash, c.ServerPubKeyHash, c.ClientPubKeyHash, c.LockTime)
	if err != nil || !bytes.Equal(rebuilt, script) {
		return nil, ErrUnknownContract
	}
	c.Script = rebuilt

	addr, err := stdaddr.NewAddressScriptHashV0(rebuilt, params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive fund address: %w", err)
	}
	c.Address = addr.String()
	return c, nil
}

// decodeLockTime reads a minimally encoded little-endian script number.
func decodeLockTime(data []byte) (uint32, error) {
	if len(data) == 0 || len(data) > 5 {
		return 0, fmt.Errorf("%w: lock time push of %d bytes", ErrUnknownContract, len(data))
	}
	var v int64
	for i, b := range data {
		v |= int64(b) << (8 * i)
	}
	if data[len(data)-1]&0x80 != 0 {
		return 0, fmt.Errorf("%w: negative lock time", ErrUnknownContract)
	}
	if v > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: lock time %d overflows", ErrUnknownContract, v)
	}
	return uint32(v), nil
}

func parsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(helpers.TrimHex(s))
	if err != nil || len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, ErrInvalidKey
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

func parseSecretHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(helpers.TrimHex(s))
	if err != nil || len(raw) != 32 {
		return out, ErrInvalidHash
	}
	copy(out[:], raw)
	return out, nil
}

func pubKeyHashAddress(pub []byte, params *chaincfg.Params) (stdaddr.Address, error) {
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(stdaddr.Hash160(pub), params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}
	return addr, nil
}

func decodePubKeyHash(addr string, params *chaincfg.Params) ([20]byte, error) {
	var out [20]byte
	decoded, err := stdaddr.DecodeAddress(addr, params)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	pkh, ok := decoded.(*stdaddr.AddressPubKeyHashEcdsaSecp256k1V0)
	if !ok {
		return out, fmt.Errorf("%w: %s is not a pubkey hash address", ErrInvalidAddress, addr)
	}
	copy(out[:], pkh.Hash160()[:])
	return out, nil
}
