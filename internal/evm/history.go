package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// Raw event layouts, field names as produced by the ABI decoder.
type (
	orderFundedLog struct {
		OrderUUID   [16]byte
		Funder      common.Address
		Amount      *big.Int
		PaymentHash [32]byte
		RefundHash  [32]byte
	}
	orderClaimedLog struct {
		OrderUUID [16]byte
		Preimage  [32]byte
	}
	orderRefundedLog struct {
		OrderUUID [16]byte
	}
	orderAdminRefundedLog struct {
		OrderUUID      [16]byte
		RefundPreimage [32]byte
	}
)

// History returns the order's contract events between fromBlock and
// toBlock (nil for latest), ordered by block and log index.
func (c *Client) History(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]Event, error) {
	eventIDs := make([]common.Hash, 0, 4)
	for _, name := range []string{eventOrderFunded, eventOrderClaimed, eventOrderRefunded, eventOrderAdminRefunded} {
		eventIDs = append(eventIDs, c.abi.Events[name].ID)
	}
	orderTopics, err := abi.MakeTopics([]interface{}{orderKey(c.args.OrderID)})
	if err != nil {
		return nil, fmt.Errorf("failed to build order topic: %w", err)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.args.Contract},
		Topics:    [][]common.Hash{eventIDs, orderTopics[0]},
	}
	if toBlock != nil {
		query.ToBlock = new(big.Int).SetUint64(*toBlock)
	}

	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter order events: %w", err)
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := c.decodeEvent(l)
		if err != nil {
			return nil, err
		}
		if ev.OrderID != c.args.OrderID {
			continue
		}
		events = append(events, *ev)
	}
	sortEvents(events)
	return events, nil
}

// State replays the order's event history into its current state.
func (c *Client) State(ctx context.Context, fromBlock uint64) (OrderState, error) {
	events, err := c.History(ctx, fromBlock, nil)
	if err != nil {
		return OrderStateNone, err
	}
	return ReplayOrder(events)
}

func (c *Client) decodeEvent(l types.Log) (*Event, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics", l.TxHash, l.Index)
	}
	ev := &Event{BlockNumber: l.BlockNumber, TxHash: l.TxHash, Index: l.Index}

	switch l.Topics[0] {
	case c.abi.Events[eventOrderFunded].ID:
		var out orderFundedLog
		if err := c.contract.UnpackLog(&out, eventOrderFunded, l); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", eventOrderFunded, err)
		}
		ev.Name, ev.State, ev.OrderID = eventOrderFunded, OrderStateFunded, uuid.UUID(out.OrderUUID)
		ev.Funder, ev.Amount = out.Funder, out.Amount
		ev.PaymentHash, ev.RefundHash = out.PaymentHash, out.RefundHash

	case c.abi.Events[eventOrderClaimed].ID:
		var out orderClaimedLog
		if err := c.contract.UnpackLog(&out, eventOrderClaimed, l); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", eventOrderClaimed, err)
		}
		ev.Name, ev.State, ev.OrderID = eventOrderClaimed, OrderStateClaimed, uuid.UUID(out.OrderUUID)
		ev.Preimage = out.Preimage

	case c.abi.Events[eventOrderRefunded].ID:
		var out orderRefundedLog
		if err := c.contract.UnpackLog(&out, eventOrderRefunded, l); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", eventOrderRefunded, err)
		}
		ev.Name, ev.State, ev.OrderID = eventOrderRefunded, OrderStateRefunded, uuid.UUID(out.OrderUUID)

	case c.abi.Events[eventOrderAdminRefunded].ID:
		var out orderAdminRefundedLog
		if err := c.contract.UnpackLog(&out, eventOrderAdminRefunded, l); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", eventOrderAdminRefunded, err)
		}
		ev.Name, ev.State, ev.OrderID = eventOrderAdminRefunded, OrderStateAdminRefunded, uuid.UUID(out.OrderUUID)
		ev.Preimage = out.RefundPreimage

	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0])
	}
	return ev, nil
}
