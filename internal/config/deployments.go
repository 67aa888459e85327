package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotDeployed is returned when no swap contract is known for a subnet.
var ErrNotDeployed = errors.New("swap contracts not deployed")

// ContractAddresses are the swap contract deployments on one EVM subnet.
type ContractAddresses struct {
	EtherSwap common.Address
	ERC20Swap common.Address
}

// deployments maps "network/subnet" to the built-in swap contract addresses.
// Ganache addresses are the deterministic deployments of the integration
// environment (test token first, then EtherSwap, then ERC20Swap).
var deployments = map[string]ContractAddresses{
	"ethereum/ganache_simnet": {
		EtherSwap: common.HexToAddress("0x254dffcd3277C0b1660F6d42EFbB754edaBAbC2B"),
		ERC20Swap: common.HexToAddress("0xC89Ce4735882C9F0f0FE26686c53074E09B0D550"),
	},
	"ethereum/sepolia": {},
	"ethereum/mainnet": {},
}

// ContractAddresses returns the swap contract addresses for an EVM subnet,
// with any file overrides applied. Either address may be zero when only
// one contract is deployed; both zero is ErrNotDeployed.
func (c *Config) ContractAddresses(network, subnet string) (*ContractAddresses, error) {
	key := network + "/" + subnet
	addrs, known := deployments[key]

	if sc := c.EVMSubnet(network, subnet); sc != nil {
		if sc.EtherSwap != "" {
			if !common.IsHexAddress(sc.EtherSwap) {
				return nil, fmt.Errorf("invalid ether_swap address %q for %s", sc.EtherSwap, key)
			}
			addrs.EtherSwap = common.HexToAddress(sc.EtherSwap)
		}
		if sc.ERC20Swap != "" {
			if !common.IsHexAddress(sc.ERC20Swap) {
				return nil, fmt.Errorf("invalid erc20_swap address %q for %s", sc.ERC20Swap, key)
			}
			addrs.ERC20Swap = common.HexToAddress(sc.ERC20Swap)
		}
		known = true
	}

	if !known || (addrs.EtherSwap == (common.Address{}) && addrs.ERC20Swap == (common.Address{})) {
		return nil, fmt.Errorf("%w on %s", ErrNotDeployed, key)
	}
	return &addrs, nil
}

// SwapContract picks the contract for an asset: ERC20Swap when token is
// set, EtherSwap otherwise.
func (a *ContractAddresses) SwapContract(token common.Address) (common.Address, error) {
	if token != (common.Address{}) {
		if a.ERC20Swap == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: no ERC20Swap", ErrNotDeployed)
		}
		return a.ERC20Swap, nil
	}
	if a.EtherSwap == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no EtherSwap", ErrNotDeployed)
	}
	return a.EtherSwap, nil
}
