package chain

import "github.com/btcsuite/btcd/chaincfg"

func init() {
	// Bitcoin mainnet, testnet3, simnet and regtest map 1:1 onto btcd networks.
	for subnet, base := range map[Subnet]*chaincfg.Params{
		Mainnet: &chaincfg.MainNetParams,
		Testnet: &chaincfg.TestNet3Params,
		Simnet:  &chaincfg.SimNetParams,
		Regtest: &chaincfg.RegressionNetParams,
	} {
		name := "Bitcoin"
		if subnet != Mainnet {
			name += " " + string(subnet)
		}
		Register(fromChaincfg(&Params{
			Network:        Bitcoin,
			Subnet:         subnet,
			Symbol:         "BTC",
			Name:           name,
			Model:          ModelUtxo,
			Decimals:       8,
			SupportsSegWit: true,
		}, base))
	}
}
