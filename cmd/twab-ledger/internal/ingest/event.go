package ingest

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

type EventType string

const (
	EventTypeMint     EventType = "mint"
	EventTypeBurn     EventType = "burn"
	EventTypeTransfer EventType = "transfer"
	EventTypeDelegate EventType = "delegate"
	// EventTypeBalance sets the balance of To to Amount.
	EventTypeBalance EventType = "balance"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is one line of an ingestion stream. From and To are used as:
//
//	mint      To receives Amount
//	burn      From loses Amount
//	transfer  From sends Amount to To
//	delegate  From delegates to To (the zero address removes the delegation)
//	balance   To now holds Amount
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp uint32         `json:"timestamp"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    string         `json:"amount,omitempty"`
}

func (e Event) amount() (*uint256.Int, error) {
	if e.Amount == "" {
		return nil, errors.Errorf("%s event without amount", e.Type)
	}
	amount, err := uint256.FromDecimal(e.Amount)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", e.Amount)
	}
	return amount, nil
}

// Apply runs the event against ledger as a single transition.
func (e Event) Apply(ledger *twab.Ledger) error {
	if e.Type == EventTypeDelegate {
		return ledger.SetDelegate(e.From, e.To, e.Timestamp)
	}
	amount, err := e.amount()
	if err != nil {
		return err
	}
	switch e.Type {
	case EventTypeMint:
		return ledger.Mint(e.To, amount, e.Timestamp)
	case EventTypeBurn:
		return ledger.Burn(e.From, amount, e.Timestamp)
	case EventTypeTransfer:
		return ledger.Transfer(e.From, e.To, amount, e.Timestamp)
	case EventTypeBalance:
		return ledger.RecordBalanceChange(e.To, amount, e.Timestamp)
	default:
		return errors.Wrapf(ErrUnknownEventType, "%q", e.Type)
	}
}
