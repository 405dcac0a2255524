package twab

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"
)

// AccountUpdate is the new state of an account and the observation slots
// written during a transition.
type AccountUpdate struct {
	ID    AccountID
	State AccountState
	Slots map[uint32]Observation
}

// ChangeSet describes everything a transition changed.
type ChangeSet struct {
	Timestamp   uint32
	Accounts    []AccountUpdate
	Delegations map[common.Address]common.Address
}

// IsEmpty reports whether the transition changed nothing.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Accounts) == 0 && len(c.Delegations) == 0
}

// arena owns every account and delegation of a ledger.
type arena struct {
	capacity  uint32
	accounts  map[AccountID]*Account
	delegates map[common.Address]common.Address
}

func newArena(capacity uint32) arena {
	return arena{
		capacity:  capacity,
		accounts:  map[AccountID]*Account{},
		delegates: map[common.Address]common.Address{},
	}
}

func (a *arena) account(id AccountID) (*Account, bool) {
	account, ok := a.accounts[id]
	return account, ok
}

func (a *arena) delegateOf(holder common.Address) common.Address {
	if delegate, ok := a.delegates[holder]; ok {
		return delegate
	}
	return holder
}

func (a *arena) newWriteTx(now uint32) *writeTx {
	return &writeTx{
		now:              now,
		parent:           a,
		pendingAccounts:  map[AccountID]*Account{},
		pendingDelegates: map[common.Address]common.Address{},
	}
}

// writeTx stages a transition over views of the accounts it touches. Only
// the account states and the written slots are copied. Nothing is visible in
// the parent arena until commit.
type writeTx struct {
	now              uint32
	parent           *arena
	order            []AccountID
	pendingAccounts  map[AccountID]*Account
	pendingDelegates map[common.Address]common.Address
	appended         int
	compacted        int
}

func (w *writeTx) account(id AccountID) *Account {
	if account, ok := w.pendingAccounts[id]; ok {
		return account
	}
	var account *Account
	if existing, ok := w.parent.account(id); ok {
		account = existing.stage()
	} else {
		account = newAccount(w.parent.capacity).stage()
	}
	w.pendingAccounts[id] = account
	w.order = append(w.order, id)
	return account
}

// balanceOf reads the balance of holder without staging its account.
func (w *writeTx) balanceOf(holder common.Address) uint256.Int {
	if account, ok := w.pendingAccounts[Holder(holder)]; ok {
		return account.State.Balance
	}
	if account, ok := w.parent.account(Holder(holder)); ok {
		return account.State.Balance
	}
	return uint256.Int{}
}

func (w *writeTx) delegateOf(holder common.Address) common.Address {
	if delegate, ok := w.pendingDelegates[holder]; ok {
		return delegate
	}
	return w.parent.delegateOf(holder)
}

func (w *writeTx) setDelegate(holder, delegate common.Address) {
	w.pendingDelegates[holder] = delegate
}

// adjustDelegateBalance checkpoints id and then replaces sub by add in its
// delegate balance.
func (w *writeTx) adjustDelegateBalance(id AccountID, sub, add *uint256.Int) error {
	account := w.account(id)
	if account.checkpoint(w.now) {
		w.appended++
	} else {
		w.compacted++
	}
	balance := &account.State.DelegateBalance
	if _, underflow := balance.SubOverflow(balance, sub); underflow {
		return errors.Errorf("delegate balance of %s is below %s", id, sub.Dec())
	}
	if _, overflow := balance.AddOverflow(balance, add); overflow {
		return errors.Wrapf(ErrBalanceOverflow, "delegate balance of %s", id)
	}
	return nil
}

func (w *writeTx) changes() ChangeSet {
	changes := ChangeSet{Timestamp: w.now}
	for _, id := range w.order {
		account := w.pendingAccounts[id]
		update := AccountUpdate{ID: id, State: account.State, Slots: make(map[uint32]Observation, len(account.staged))}
		for slot, observation := range account.staged {
			update.Slots[slot] = observation
		}
		changes.Accounts = append(changes.Accounts, update)
	}
	if len(w.pendingDelegates) > 0 {
		changes.Delegations = make(map[common.Address]common.Address, len(w.pendingDelegates))
		for holder, delegate := range w.pendingDelegates {
			changes.Delegations[holder] = delegate
		}
	}
	return changes
}

func (w *writeTx) commit() {
	for id, account := range w.pendingAccounts {
		account.apply()
		w.parent.accounts[id] = account
	}
	for holder, delegate := range w.pendingDelegates {
		w.parent.delegates[holder] = delegate
	}
}
