package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/klingon-exchange/swapkit/internal/chain"
	"github.com/klingon-exchange/swapkit/internal/decred"
	"github.com/klingon-exchange/swapkit/internal/evm"
	"github.com/klingon-exchange/swapkit/internal/script"
	"github.com/klingon-exchange/swapkit/internal/storage"
	"github.com/klingon-exchange/swapkit/internal/timelock"
	"github.com/klingon-exchange/swapkit/pkg/helpers"
	"github.com/klingon-exchange/swapkit/pkg/htlc"
)

func runCompile(e *env, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	var (
		network     = fs.String("network", "bitcoin", "Network (bitcoin, litecoin)")
		subnet      = fs.String("subnet", "testnet", "Subnet")
		claimer     = fs.String("claimer", "", "Claimer compressed public key (hex)")
		paymentHash = fs.String("payment-hash", "", "SHA-256 of the payment secret (hex)")
		refundAddr  = fs.String("refund-address", "", "Refund address (P2PKH or P2WPKH)")
		refundHash  = fs.String("refund-hash", "", "SHA-256 of the refund secret (hex), enables admin refund")
		lockType    = fs.String("lock-type", "RELATIVE", "Timelock type (RELATIVE, ABSOLUTE)")
		lockValue   = fs.Uint64("lock-value", 144, "Block delay, block height or seconds")
		lockUnit    = fs.String("lock-unit", "blocks", "Timelock unit (blocks, seconds)")
		scheme      = fs.String("scheme", "", "Swap output scheme (p2sh, p2sh-p2wsh, p2wsh), overrides config")
		save        = fs.Bool("save", false, "Store the contract details")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind, err := timelock.ParseKind(*lockType)
	if err != nil {
		return err
	}
	ua := &htlc.UtxoArgs{
		Args: script.Args{
			ClaimerPublicKey: *claimer,
			PaymentHash:      *paymentHash,
			RefundAddress:    *refundAddr,
			RefundHash:       *refundHash,
			Timelock:         timelock.Timelock{Kind: kind, Value: *lockValue, Unit: timelock.Unit(*lockUnit)},
		},
		Scheme: htlc.Scheme(*scheme),
	}
	hargs := htlc.Args{Utxo: ua, Logger: e.log}
	hargs.ApplyConfig(e.cfg)

	h, err := htlc.Construct(*network, *subnet, hargs)
	if err != nil {
		return err
	}
	if h.Model() != htlc.ModelUtxo {
		return fmt.Errorf("%s/%s is not a script-based chain", *network, *subnet)
	}
	details, err := h.Utxo().Details()
	if err != nil {
		return err
	}

	if *save {
		store, err := e.openStore()
		if err != nil {
			return err
		}
		err = store.SaveDetails(&storage.Details{
			PaymentHash:   *paymentHash,
			Network:       *network,
			Subnet:        *subnet,
			Model:         string(htlc.ModelUtxo),
			RefundHash:    *refundHash,
			Address:       details.Address,
			Script:        details.Script,
			Scheme:        string(details.Scheme),
			TimelockKind:  string(details.Timelock.Kind),
			TimelockValue: details.Timelock.Value,
			TimelockUnit:  string(details.Timelock.Unit),
		})
		if err != nil {
			return err
		}
		e.log.Info("Contract details stored", "payment_hash", *paymentHash, "address", details.Address)
	}
	return printJSON(details)
}

func runInspect(e *env, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	scriptHex := fs.String("script", "", "Redeem script (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw, err := helpers.HexToBytes(*scriptHex)
	if err != nil {
		return fmt.Errorf("invalid script hex: %w", err)
	}
	d, err := script.ExtractDetails(raw)
	if err != nil {
		return err
	}
	parsed, err := script.Parse(raw)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"paths":             d.Paths,
		"claimerPublicKey":  hex.EncodeToString(d.ClaimerPubKey),
		"paymentCommitment": hex.EncodeToString(d.PaymentCommitment),
		"refundPubKeyHash":  hex.EncodeToString(d.RefundPubKeyHash),
		"timelock":          d.Timelock,
		"disasm":            parsed.Disasm(),
	}
	if d.RefundCommitment != nil {
		out["refundCommitment"] = hex.EncodeToString(d.RefundCommitment)
	}
	return printJSON(out)
}

// evmFlags are the order arguments shared by the EVM commands.
type evmFlags struct {
	subnet      *string
	orderID     *string
	paymentHash *string
	refundHash  *string
	amount      *string
	decimals    *uint
	token       *string
	rpcURL      *string

	// resolved by orderArgs
	assetDecimals uint8
}

func addEVMFlags(fs *flag.FlagSet) *evmFlags {
	return &evmFlags{
		subnet:      fs.String("subnet", string(chain.GanacheSimnet), "Ethereum subnet"),
		orderID:     fs.String("order-id", "", "Order UUID (generated when empty)"),
		paymentHash: fs.String("payment-hash", "", "SHA-256 of the payment secret (hex)"),
		refundHash:  fs.String("refund-hash", "", "SHA-256 of the refund secret (hex)"),
		amount:      fs.String("amount", "", "Order amount as a decimal, needed by fund and approve"),
		decimals:    fs.Uint("decimals", 18, "Asset decimals, ignored for known token symbols"),
		token:       fs.String("token", "", "ERC20 token address or symbol (empty for ether)"),
		rpcURL:      fs.String("rpc", "", "JSON-RPC endpoint, overrides config"),
	}
}

func (f *evmFlags) orderArgs(e *env) (evm.Args, error) {
	var a evm.Args

	id := uuid.New()
	if *f.orderID != "" {
		parsed, err := uuid.Parse(*f.orderID)
		if err != nil {
			return a, fmt.Errorf("invalid order id: %w", err)
		}
		id = parsed
	}

	params, err := chain.Lookup(chain.Ethereum, chain.Subnet(*f.subnet))
	if err != nil {
		return a, err
	}

	decimals := uint8(*f.decimals)
	var token common.Address
	switch {
	case *f.token == "":
	case common.IsHexAddress(*f.token):
		token = common.HexToAddress(*f.token)
	default:
		info := chain.GetToken(params.ChainID, *f.token)
		if info == nil {
			return a, fmt.Errorf("unknown token %q on %s", *f.token, params.Key())
		}
		token = common.HexToAddress(info.Address)
		decimals = info.Decimals
	}

	var amount *big.Int
	if *f.amount != "" {
		if amount, err = helpers.ParseUnits(*f.amount, decimals); err != nil {
			return a, err
		}
	}
	f.assetDecimals = decimals

	addrs, err := e.cfg.ContractAddresses(string(chain.Ethereum), *f.subnet)
	if err != nil {
		return a, err
	}
	contract, err := addrs.SwapContract(token)
	if err != nil {
		return a, err
	}

	return evm.Args{
		OrderID:     id,
		PaymentHash: *f.paymentHash,
		RefundHash:  *f.refundHash,
		Amount:      amount,
		Contract:    contract,
		Token:       token,
	}, nil
}

func (f *evmFlags) dial(ctx context.Context, e *env) (*evm.Provider, error) {
	url := *f.rpcURL
	if url == "" {
		if sc := e.cfg.EVMSubnet(string(chain.Ethereum), *f.subnet); sc != nil {
			url = sc.RPCURL
		}
	}
	if url == "" {
		return nil, fmt.Errorf("no rpc url configured for ethereum/%s", *f.subnet)
	}
	return evm.Dial(ctx, url)
}

func runEVMCall(e *env, args []string) error {
	fs := flag.NewFlagSet("evm-call", flag.ContinueOnError)
	f := addEVMFlags(fs)
	var (
		method = fs.String("method", "fund", "fund, fund-admin, approve, claim, refund, admin-refund")
		secret = fs.String("secret", "", "Payment or refund preimage (hex) for claim and admin-refund")
		key    = fs.String("key", "", "Private key (hex); when set the call is signed and broadcast")
		save   = fs.Bool("save", false, "Store the order details after a fund call")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	oa, err := f.orderArgs(e)
	if err != nil {
		return err
	}

	ctx := context.Background()
	hargs := htlc.Args{Evm: &htlc.EvmArgs{Args: oa}, Logger: e.log}
	var opts *bind.TransactOpts
	broadcast := *key != ""
	if broadcast {
		provider, err := f.dial(ctx, e)
		if err != nil {
			return err
		}
		defer provider.Close()

		chainID, err := provider.ChainID(ctx)
		if err != nil {
			return err
		}
		if opts, err = evm.NewTransactor(*key, chainID); err != nil {
			return err
		}
		hargs.Evm.Backend = provider.Client()
	}
	hargs.ApplyConfig(e.cfg)

	h, err := htlc.Construct(string(chain.Ethereum), *f.subnet, hargs)
	if err != nil {
		return err
	}
	client := h.Evm()

	var preimage []byte
	if *secret != "" {
		if preimage, err = helpers.HexToBytes(*secret); err != nil {
			return fmt.Errorf("invalid secret: %w", err)
		}
	}

	var res *evm.Result
	switch *method {
	case "fund":
		res, err = client.Fund(ctx, broadcast, opts)
	case "fund-admin":
		res, err = client.FundWithAdminRefundEnabled(ctx, broadcast, opts)
	case "approve":
		res, err = client.Approve(ctx, broadcast, opts)
	case "claim":
		res, err = client.Claim(ctx, preimage, broadcast, opts)
	case "refund":
		res, err = client.Refund(ctx, broadcast, opts)
	case "admin-refund":
		res, err = client.AdminRefund(ctx, preimage, broadcast, opts)
	default:
		return fmt.Errorf("unknown method %q", *method)
	}
	if err != nil {
		return err
	}

	if broadcast {
		if err := recordSpend(e, *method, oa.PaymentHash, res.Tx.Hash().Hex(), preimage); err != nil {
			return err
		}
	}

	if *save && (*method == "fund" || *method == "fund-admin") {
		store, err := e.openStore()
		if err != nil {
			return err
		}
		err = store.SaveDetails(&storage.Details{
			PaymentHash: oa.PaymentHash,
			Network:     string(chain.Ethereum),
			Subnet:      *f.subnet,
			Model:       string(htlc.ModelEvm),
			RefundHash:  oa.RefundHash,
			Address:     oa.Contract.Hex(),
			OrderID:     oa.OrderID.String(),
		})
		if err != nil {
			return err
		}
	}

	if res.Call != nil {
		return printJSON(map[string]interface{}{
			"orderId": oa.OrderID,
			"from":    res.Call.From,
			"to":      res.Call.To,
			"data":    res.Call.DataHex(),
			"value":   res.Call.Value.String(),
		})
	}
	return printJSON(map[string]interface{}{
		"orderId": oa.OrderID,
		"tx":      res.Tx.Hash(),
		"block":   res.Receipt.BlockNumber,
		"gasUsed": res.Receipt.GasUsed,
	})
}

// spendPaths maps the evm-call methods that consume an order to the path
// they take.
var spendPaths = map[string]storage.SpendPath{
	"claim":        storage.SpendClaim,
	"refund":       storage.SpendRefund,
	"admin-refund": storage.SpendAdminRefund,
}

// recordSpend stores how a broadcast call consumed the order. Other methods
// and orders without stored details are skipped.
func recordSpend(e *env, method, paymentHash, txID string, secret []byte) error {
	path, ok := spendPaths[method]
	if !ok {
		return nil
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	sp := &storage.Spend{PaymentHash: paymentHash, Path: path, TxID: txID}
	if len(secret) > 0 {
		sp.Secret = hex.EncodeToString(secret)
	}
	err = store.RecordSpend(sp)
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Debug("No stored details, spend not recorded", "payment_hash", paymentHash)
		return nil
	}
	if err != nil {
		return err
	}
	e.log.Info("Spend recorded", "payment_hash", paymentHash, "path", path, "tx", txID)
	return nil
}

func runEVMStatus(e *env, args []string) error {
	fs := flag.NewFlagSet("evm-status", flag.ContinueOnError)
	f := addEVMFlags(fs)
	fromBlock := fs.Uint64("from-block", 0, "First block to scan for order events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *f.orderID == "" {
		return errors.New("order-id required")
	}

	oa, err := f.orderArgs(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	provider, err := f.dial(ctx, e)
	if err != nil {
		return err
	}
	defer provider.Close()

	client, err := evm.New(oa, provider.Client(), evm.WithLogger(e.log.Component("evm")))
	if err != nil {
		return err
	}

	order, err := client.Order(ctx)
	if err != nil {
		return err
	}
	events, err := client.History(ctx, *fromBlock, nil)
	if err != nil {
		return err
	}
	replayed, err := evm.ReplayOrder(events)
	if err != nil {
		return err
	}

	history := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		history = append(history, map[string]interface{}{
			"state": ev.State.String(),
			"block": ev.BlockNumber,
			"tx":    ev.TxHash,
		})
	}
	return printJSON(map[string]interface{}{
		"orderId":  order.ID,
		"state":    order.State.String(),
		"replayed": replayed.String(),
		"amount":   helpers.FormatUnits(order.Amount, f.assetDecimals),
		"funder":   order.Funder,
		"claimer":  order.Claimer,
		"fundedAt": order.FundedAt,
		"history":  history,
	})
}

func runDecredFund(e *env, args []string) error {
	fs := flag.NewFlagSet("decred-fund", flag.ContinueOnError)
	var (
		subnet     = fs.String("subnet", "testnet", "Decred subnet")
		serverKey  = fs.String("server-key", "", "Server private key (hex)")
		secretHash = fs.String("secret-hash", "", "SHA-256 of the secret (hex)")
		refundAddr = fs.String("refund-address", "", "Client refund address (P2PKH)")
		lockTime   = fs.Uint("lock-time", 0, "Refund unix time (default: now + configured duration)")
		save       = fs.Bool("save", false, "Store the contract details")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	hargs := htlc.Args{Decred: &htlc.DecredArgs{ServerKey: *serverKey}, Logger: e.log}
	hargs.ApplyConfig(e.cfg)

	h, err := htlc.Construct(string(chain.Decred), *subnet, hargs)
	if err != nil {
		return err
	}
	client := h.Decred()

	var c *decred.Contract
	if *lockTime > 0 {
		c, err = client.FundUntil(*secretHash, *refundAddr, uint32(*lockTime))
	} else {
		c, err = client.Fund(*secretHash, *refundAddr)
	}
	if err != nil {
		return err
	}

	if *save {
		store, err := e.openStore()
		if err != nil {
			return err
		}
		err = store.SaveDetails(&storage.Details{
			PaymentHash:   *secretHash,
			Network:       string(chain.Decred),
			Subnet:        *subnet,
			Model:         string(htlc.ModelDecred),
			Address:       c.Address,
			Script:        c.ScriptHex(),
			TimelockKind:  string(timelock.Absolute),
			TimelockValue: uint64(c.LockTime),
			TimelockUnit:  string(timelock.Seconds),
		})
		if err != nil {
			return err
		}
	}

	return printJSON(map[string]interface{}{
		"address":       c.Address,
		"script":        c.ScriptHex(),
		"serverAddress": client.ServerAddress(),
		"lockTime":      c.LockTime,
		"refundableAt":  time.Unix(int64(c.LockTime), 0).UTC(),
	})
}

func runList(e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var (
		network = fs.String("network", "", "Filter by network")
		subnet  = fs.String("subnet", "", "Filter by subnet")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	list, err := store.ListDetails(*network, *subnet)
	if err != nil {
		return err
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, d := range list {
		entry := map[string]interface{}{
			"paymentHash": d.PaymentHash,
			"chain":       d.Network + "/" + d.Subnet,
			"model":       d.Model,
			"address":     d.Address,
			"createdAt":   d.CreatedAt,
		}
		if d.OrderID != "" {
			entry["orderId"] = d.OrderID
		}
		if sp, err := store.GetSpend(d.PaymentHash); err == nil {
			entry["spent"] = map[string]interface{}{"path": sp.Path, "tx": sp.TxID}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		out = append(out, entry)
	}
	return printJSON(out)
}
