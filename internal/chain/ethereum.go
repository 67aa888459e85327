package chain

func init() {
	// Ethereum Mainnet
	Register(&Params{
		Network:  Ethereum,
		Subnet:   Mainnet,
		Symbol:   "ETH",
		Name:     "Ethereum",
		Model:    ModelEvm,
		Decimals: 18,
		ChainID:  1,
	})

	// Ethereum Sepolia
	Register(&Params{
		Network:  Ethereum,
		Subnet:   Sepolia,
		Symbol:   "ETH",
		Name:     "Ethereum Sepolia",
		Model:    ModelEvm,
		Decimals: 18,
		ChainID:  11155111,
	})

	// Local ganache chain used by the integration environment
	Register(&Params{
		Network:  Ethereum,
		Subnet:   GanacheSimnet,
		Symbol:   "ETH",
		Name:     "Ganache Simnet",
		Model:    ModelEvm,
		Decimals: 18,
		ChainID:  1337,
	})
}
