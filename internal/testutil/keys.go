// Package testutil provides deterministic key material for tests.
//
// Keys are derived from the BIP39 test mnemonic along m/44'/1'/0'/0/index,
// so every test run signs with the same keys and golden values stay stable.
package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// Mnemonic is the well-known all-"abandon" BIP39 test mnemonic.
const Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Roles used across tests.
const (
	Funder   uint32 = 0
	Claimer  uint32 = 1
	Refunder uint32 = 2
	Server   uint32 = 3
	Client   uint32 = 4
)

// Key derives the private key at m/44'/1'/0'/0/index.
func Key(t testing.TB, index uint32) *btcec.PrivateKey {
	t.Helper()

	key, err := DeriveKey(index)
	if err != nil {
		t.Fatalf("derive test key %d: %v", index, err)
	}
	return key
}

// DeriveKey derives the private key at m/44'/1'/0'/0/index without a test handle.
func DeriveKey(index uint32) (*btcec.PrivateKey, error) {
	seed := bip39.NewSeed(Mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.SimNetParams)
	if err != nil {
		return nil, err
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 1,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	for _, i := range path {
		master, err = master.Derive(i)
		if err != nil {
			return nil, err
		}
	}
	return master.ECPrivKey()
}

// PubKeyHex returns the hex compressed public key of a test key.
func PubKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(key.PubKey().SerializeCompressed())
}

// PubKeyHash returns HASH160 of the compressed public key.
func PubKeyHash(key *btcec.PrivateKey) []byte {
	return btcutil.Hash160(key.PubKey().SerializeCompressed())
}

// P2PKHAddress returns the legacy address of a test key on params.
func P2PKHAddress(t testing.TB, key *btcec.PrivateKey, params *chaincfg.Params) string {
	t.Helper()

	addr, err := btcutil.NewAddressPubKeyHash(PubKeyHash(key), params)
	if err != nil {
		t.Fatalf("p2pkh address: %v", err)
	}
	return addr.EncodeAddress()
}

// P2WPKHAddress returns the native segwit address of a test key on params.
func P2WPKHAddress(t testing.TB, key *btcec.PrivateKey, params *chaincfg.Params) string {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(PubKeyHash(key), params)
	if err != nil {
		t.Fatalf("p2wpkh address: %v", err)
	}
	return addr.EncodeAddress()
}

// FakeTxID returns a deterministic 32-byte transaction id for outpoint n.
func FakeTxID(n byte) string {
	var id [32]byte
	for i := range id {
		id[i] = n
	}
	id[0] = n + 1
	return hex.EncodeToString(id[:])
}
