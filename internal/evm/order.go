package evm

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when an event history moves an order
// out of a terminal state or skips funding.
var ErrInvalidTransition = errors.New("invalid order state transition")

// OrderState is the on-chain state of a swap order.
type OrderState uint8

const (
	OrderStateNone          OrderState = 0
	OrderStateFunded        OrderState = 1
	OrderStateClaimed       OrderState = 2
	OrderStateRefunded      OrderState = 3
	OrderStateAdminRefunded OrderState = 4
)

func (s OrderState) String() string {
	switch s {
	case OrderStateNone:
		return "none"
	case OrderStateFunded:
		return "funded"
	case OrderStateClaimed:
		return "claimed"
	case OrderStateRefunded:
		return "refunded"
	case OrderStateAdminRefunded:
		return "admin_refunded"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateClaimed || s == OrderStateRefunded || s == OrderStateAdminRefunded
}

// CanTransition reports whether the contract allows moving from s to next.
// Funding is possible only from none, and every terminal state is reachable
// only from funded.
func (s OrderState) CanTransition(next OrderState) bool {
	switch next {
	case OrderStateFunded:
		return s == OrderStateNone
	case OrderStateClaimed, OrderStateRefunded, OrderStateAdminRefunded:
		return s == OrderStateFunded
	default:
		return false
	}
}

// Order is the on-chain record of a swap order.
type Order struct {
	ID          uuid.UUID
	State       OrderState
	PaymentHash [32]byte
	RefundHash  [32]byte // zero when admin refund is disabled
	Amount      *big.Int
	Funder      common.Address
	Claimer     common.Address
	FundedAt    time.Time
}

// HasAdminRefund reports whether the order was funded with a refund hash.
func (o *Order) HasAdminRefund() bool {
	return o.RefundHash != [32]byte{}
}

// RefundableAt returns the earliest time a timed refund is accepted.
func (o *Order) RefundableAt(delay time.Duration) time.Time {
	return o.FundedAt.Add(delay)
}

// Event is a decoded swap contract event.
type Event struct {
	Name        string
	State       OrderState // state the event moves the order into
	OrderID     uuid.UUID
	Funder      common.Address
	Amount      *big.Int
	PaymentHash [32]byte
	RefundHash  [32]byte
	Preimage    [32]byte // claim preimage or admin refund preimage
	BlockNumber uint64
	TxHash      common.Hash
	Index       uint
}

// sortEvents orders events by block and log index.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].Index < events[j].Index
	})
}

// ReplayOrder folds an ordered event history into the resulting state,
// rejecting any non-monotone transition.
func ReplayOrder(events []Event) (OrderState, error) {
	state := OrderStateNone
	for _, ev := range events {
		if !state.CanTransition(ev.State) {
			return state, fmt.Errorf("%w: %s -> %s at block %d", ErrInvalidTransition, state, ev.State, ev.BlockNumber)
		}
		state = ev.State
	}
	return state, nil
}

// orderKey converts an order UUID into the contract's bytes16 key.
func orderKey(id uuid.UUID) [16]byte {
	return [16]byte(id)
}
