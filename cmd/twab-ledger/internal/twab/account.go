package twab

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
)

// AccountID identifies a history: either a holder address or the total supply.
type AccountID struct {
	address common.Address
	total   bool
}

// TotalSupply is the pseudo-account tracking the sum of all delegated balances.
var TotalSupply = AccountID{total: true}

// Holder returns the id of the account of address.
func Holder(address common.Address) AccountID {
	return AccountID{address: address}
}

// IsTotalSupply reports whether id is the total supply pseudo-account.
func (id AccountID) IsTotalSupply() bool {
	return id.total
}

// Address returns the holder address; the zero address for the total supply.
func (id AccountID) Address() common.Address {
	return id.address
}

const totalSupplyName = "total-supply"

func (id AccountID) String() string {
	if id.total {
		return totalSupplyName
	}
	return id.address.Hex()
}

// ParseAccountID parses the String form of an account id.
func ParseAccountID(s string) (AccountID, error) {
	if s == totalSupplyName {
		return TotalSupply, nil
	}
	if !common.IsHexAddress(s) {
		return AccountID{}, errors.Errorf("invalid account id %q", s)
	}
	return Holder(common.HexToAddress(s)), nil
}

// Observation is a checkpoint of the accumulated balance × seconds of an account.
type Observation struct {
	CumulativeWeight uint256.Int
	Timestamp        uint32
}

// AccountState is the current position of an account.
type AccountState struct {
	// Balance is the amount held by the account itself.
	Balance uint256.Int
	// DelegateBalance is the amount delegated to the account; it drives the observations.
	DelegateBalance      uint256.Int
	NextObservationIndex uint32
	Cardinality          uint32
}

// Account is the state of an account together with its observation ring.
type Account struct {
	State        AccountState
	Observations []Observation
	// staged holds the slots written by a pending transition. They shadow
	// Observations until apply.
	staged map[uint32]Observation
}

func newAccount(capacity uint32) *Account {
	return &Account{Observations: make([]Observation, capacity)}
}

// stage returns a view of the account for a transition. The view shares the
// ring and records its writes on the side.
func (a *Account) stage() *Account {
	return &Account{State: a.State, Observations: a.Observations, staged: map[uint32]Observation{}}
}

// apply writes the staged slots into the ring.
func (a *Account) apply() {
	for slot, observation := range a.staged {
		a.Observations[slot] = observation
	}
	a.staged = nil
}

func (a *Account) slot(i uint32) Observation {
	if observation, ok := a.staged[i]; ok {
		return observation
	}
	return a.Observations[i]
}

func (a *Account) meta() ringbuffer.Metadata {
	return ringbuffer.Metadata{
		NextIndex:   a.State.NextObservationIndex,
		Cardinality: a.State.Cardinality,
		Capacity:    uint32(len(a.Observations)),
	}
}

// at returns the i-th retained observation, 0 being the oldest.
func (a *Account) at(i uint32) Observation {
	return a.slot(a.meta().At(i))
}

func (a *Account) newest() Observation {
	return a.slot(a.meta().NewestIndex())
}

func (a *Account) oldest() Observation {
	return a.slot(a.meta().OldestIndex())
}

// history returns the retained observations from oldest to newest.
func (a *Account) history() []Observation {
	result := make([]Observation, 0, a.State.Cardinality)
	for i := uint32(0); i < a.State.Cardinality; i++ {
		result = append(result, a.at(i))
	}
	return result
}

// checkpoint accrues the weight of the current delegate balance up to now.
// It returns false when an observation at now already exists.
func (a *Account) checkpoint(now uint32) bool {
	meta := a.meta()
	observation := Observation{Timestamp: now}
	if meta.IsInitialized() {
		newest := a.newest()
		if newest.Timestamp == now {
			return false
		}
		observation.CumulativeWeight = accrue(newest, &a.State.DelegateBalance, now)
	}
	slot := meta.NextIndex
	if a.staged != nil {
		a.staged[slot] = observation
	} else {
		a.Observations[slot] = observation
	}
	next := meta.Advance()
	a.State.NextObservationIndex = next.NextIndex
	a.State.Cardinality = next.Cardinality
	return true
}

// accrue extends from by holding balance until t. Weights wrap at 2^256,
// only their differences are meaningful.
func accrue(from Observation, balance *uint256.Int, t uint32) uint256.Int {
	var weight uint256.Int
	weight.Mul(balance, uint256.NewInt(uint64(elapsed(from.Timestamp, t))))
	weight.Add(&weight, &from.CumulativeWeight)
	return weight
}

// bracket returns the observations immediately at-or-before and after t.
// It requires oldest <= t < newest.
func (a *Account) bracket(t, now uint32) (Observation, Observation) {
	lo, hi := uint32(0), a.State.Cardinality-1
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if lte(a.at(mid).Timestamp, t, now) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return a.at(lo), a.at(hi)
}

// heldBalance returns the balance held between two consecutive observations.
func heldBalance(before, after Observation) *uint256.Int {
	var balance uint256.Int
	balance.Sub(&after.CumulativeWeight, &before.CumulativeWeight)
	return balance.Div(&balance, uint256.NewInt(uint64(elapsed(before.Timestamp, after.Timestamp))))
}

// balanceAt returns the delegate balance held at t.
func (a *Account) balanceAt(t, now uint32) *uint256.Int {
	t = clamp(t, now)
	if a.State.Cardinality == 0 {
		return new(uint256.Int)
	}
	if !lt(t, a.newest().Timestamp, now) {
		return new(uint256.Int).Set(&a.State.DelegateBalance)
	}
	if lt(t, a.oldest().Timestamp, now) {
		return new(uint256.Int)
	}
	return heldBalance(a.bracket(t, now))
}

// weightAt returns the cumulative weight at t, which must not be in the future.
func (a *Account) weightAt(t, now uint32) uint256.Int {
	newest := a.newest()
	if !lt(t, newest.Timestamp, now) {
		return accrue(newest, &a.State.DelegateBalance, t)
	}
	oldest := a.oldest()
	if lte(t, oldest.Timestamp, now) {
		return oldest.CumulativeWeight
	}
	before, after := a.bracket(t, now)
	if before.Timestamp == t {
		return before.CumulativeWeight
	}
	return accrue(before, heldBalance(before, after), t)
}

// averageBalanceBetween returns the time weighted average delegate balance
// over [start, end).
func (a *Account) averageBalanceBetween(start, end, now uint32) (*uint256.Int, error) {
	if !lt(start, end, now) {
		return nil, errors.Wrapf(ErrInvalidRange, "window [%d, %d)", start, end)
	}
	start, end = clamp(start, now), clamp(end, now)
	if start == end || a.State.Cardinality == 0 {
		return new(uint256.Int), nil
	}
	endWeight := a.weightAt(end, now)
	startWeight := a.weightAt(start, now)
	var average uint256.Int
	average.Sub(&endWeight, &startWeight)
	return average.Div(&average, uint256.NewInt(uint64(elapsed(start, end)))), nil
}
