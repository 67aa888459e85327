package chain

import "github.com/btcsuite/btcd/chaincfg"

func init() {
	// Litecoin Mainnet
	Register(&Params{
		Network:  Litecoin,
		Subnet:   Mainnet,
		Symbol:   "LTC",
		Name:     "Litecoin",
		Model:    ModelUtxo,
		Decimals: 8,

		PubKeyHashAddrID: 0x30, // L...
		ScriptHashAddrID: 0x32, // M...
		Bech32HRP:        "ltc",
		WIF:              0xB0,

		// BIP32 HD key prefixes (Ltpv/Ltub)
		HDPrivateKeyID: [4]byte{0x01, 0x9d, 0x9c, 0xfe},
		HDPublicKeyID:  [4]byte{0x01, 0x9d, 0xa4, 0x62},

		SupportsSegWit: true,
		base:           &chaincfg.MainNetParams,
	})

	// Litecoin Testnet
	Register(&Params{
		Network:  Litecoin,
		Subnet:   Testnet,
		Symbol:   "LTC",
		Name:     "Litecoin Testnet",
		Model:    ModelUtxo,
		Decimals: 8,

		PubKeyHashAddrID: 0x6F, // m or n
		ScriptHashAddrID: 0x3A, // Q...
		Bech32HRP:        "tltc",
		WIF:              0xEF,

		// BIP32 HD key prefixes (ttpv/ttub)
		HDPrivateKeyID: [4]byte{0x04, 0x36, 0xef, 0x7d},
		HDPublicKeyID:  [4]byte{0x04, 0x36, 0xf6, 0xe1},

		SupportsSegWit: true,
		base:           &chaincfg.TestNet3Params,
	})
}
