package chain

import (
	"sort"
	"strings"
)

// TokenInfo describes an ERC20 asset that can be locked in the ERC20 swap contract.
type TokenInfo struct {
	Symbol   string
	Name     string
	Decimals uint8
	Address  string // Contract address on this chain
	ChainID  uint64
}

// tokenRegistry maps chainID -> symbol -> TokenInfo
var tokenRegistry = make(map[uint64]map[string]*TokenInfo)

func init() {
	// Ethereum Mainnet (chainID 1)
	registerToken(&TokenInfo{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", ChainID: 1})
	registerToken(&TokenInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", ChainID: 1})
	registerToken(&TokenInfo{Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", ChainID: 1})
	registerToken(&TokenInfo{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", ChainID: 1})

	// Ethereum Sepolia (chainID 11155111)
	registerToken(&TokenInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", ChainID: 11155111})

	// Ganache simnet (chainID 1337): deterministic first deployment of the test token
	registerToken(&TokenInfo{Symbol: "TST", Name: "Test Token", Decimals: 18, Address: "0xCfEB869F69431e42cdB54A4F4f105C19C080A601", ChainID: 1337})
}

func registerToken(token *TokenInfo) {
	if tokenRegistry[token.ChainID] == nil {
		tokenRegistry[token.ChainID] = make(map[string]*TokenInfo)
	}
	tokenRegistry[token.ChainID][token.Symbol] = token
}

// GetToken returns token info for a symbol on a specific chain.
// Symbols are matched case-insensitively. Returns nil if not registered.
func GetToken(chainID uint64, symbol string) *TokenInfo {
	if tokens, ok := tokenRegistry[chainID]; ok {
		return tokens[strings.ToUpper(symbol)]
	}
	return nil
}

// ListTokens returns all registered tokens for a chain, sorted by symbol.
func ListTokens(chainID uint64) []*TokenInfo {
	tokens := tokenRegistry[chainID]
	result := make([]*TokenInfo, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, token)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}
