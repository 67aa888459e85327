package chain

func init() {
	// Decred address and script parameters come from dcrd's chaincfg;
	// see internal/decred.
	for subnet, name := range map[Subnet]string{
		Mainnet: "Decred",
		Testnet: "Decred Testnet",
		Simnet:  "Decred Simnet",
	} {
		Register(&Params{
			Network:  Decred,
			Subnet:   subnet,
			Symbol:   "DCR",
			Name:     name,
			Model:    ModelDecred,
			Decimals: 8,
		})
	}
}
