package evm

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// Contract method and event names.
const (
	methodFund                = "fund"
	methodFundWithAdminRefund = "fundWithAdminRefundEnabled"
	methodClaim               = "claim"
	methodRefund              = "refund"
	methodAdminRefund         = "adminRefund"
	methodSetRefundDelay      = "setRefundDelay"
	methodRefundDelay         = "refundDelay"
	methodOrders              = "orders"
	methodApprove             = "approve"
	methodAllowance           = "allowance"
	eventOrderFunded          = "OrderFunded"
	eventOrderClaimed         = "OrderClaimed"
	eventOrderRefunded        = "OrderRefunded"
	eventOrderAdminRefunded   = "OrderAdminRefunded"
)

// Entries shared by EtherSwap and ERC20Swap.
const swapCommonABI = `
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"preimage","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"orderUUID","type":"bytes16"}],"outputs":[]},
	{"type":"function","name":"adminRefund","stateMutability":"nonpayable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"refundPreimage","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"setRefundDelay","stateMutability":"nonpayable","inputs":[{"name":"delay","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"refundDelay","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"orders","stateMutability":"view","inputs":[{"name":"","type":"bytes16"}],"outputs":[
		{"name":"state","type":"uint8"},
		{"name":"paymentHash","type":"bytes32"},
		{"name":"refundHash","type":"bytes32"},
		{"name":"amount","type":"uint256"},
		{"name":"funder","type":"address"},
		{"name":"claimer","type":"address"},
		{"name":"fundedAt","type":"uint256"}
	]},
	{"type":"event","name":"OrderFunded","anonymous":false,"inputs":[
		{"name":"orderUUID","type":"bytes16","indexed":true},
		{"name":"funder","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"paymentHash","type":"bytes32","indexed":false},
		{"name":"refundHash","type":"bytes32","indexed":false}
	]},
	{"type":"event","name":"OrderClaimed","anonymous":false,"inputs":[
		{"name":"orderUUID","type":"bytes16","indexed":true},
		{"name":"preimage","type":"bytes32","indexed":false}
	]},
	{"type":"event","name":"OrderRefunded","anonymous":false,"inputs":[
		{"name":"orderUUID","type":"bytes16","indexed":true}
	]},
	{"type":"event","name":"OrderAdminRefunded","anonymous":false,"inputs":[
		{"name":"orderUUID","type":"bytes16","indexed":true},
		{"name":"refundPreimage","type":"bytes32","indexed":false}
	]}`

// EtherSwapMetaData contains the ABI of the native-asset swap contract.
var EtherSwapMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"fund","stateMutability":"payable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"paymentHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"fundWithAdminRefundEnabled","stateMutability":"payable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"paymentHash","type":"bytes32"},{"name":"refundHash","type":"bytes32"}],"outputs":[]},` +
		swapCommonABI + `]`,
}

// ERC20SwapMetaData contains the ABI of the token swap contract. Funding
// pulls the tokens with transferFrom, so an approval must precede it.
var ERC20SwapMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"fund","stateMutability":"nonpayable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"paymentHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"fundWithAdminRefundEnabled","stateMutability":"nonpayable","inputs":[{"name":"orderUUID","type":"bytes16"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"paymentHash","type":"bytes32"},{"name":"refundHash","type":"bytes32"}],"outputs":[]},` +
		swapCommonABI + `]`,
}

// ERC20MetaData contains the subset of the ERC20 ABI used for approvals.
var ERC20MetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`,
}
