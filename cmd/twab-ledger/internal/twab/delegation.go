package twab

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DelegateOf returns the account holder's stake is credited to. Holders who
// never delegated are their own delegate.
func (l *Ledger) DelegateOf(holder common.Address) common.Address {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.arena.delegateOf(holder)
}

// SetDelegate moves the stake of holder to delegate. Delegating to the zero
// address removes the stake from every history, total supply included,
// until it is delegated again.
func (l *Ledger) SetDelegate(holder, delegate common.Address, now uint32) error {
	return l.update("delegate", now, func(tx *writeTx) error {
		return tx.delegate(holder, delegate)
	})
}

func (w *writeTx) delegate(holder, delegate common.Address) error {
	current := w.delegateOf(holder)
	if current == delegate {
		return nil
	}
	w.setDelegate(holder, delegate)

	balance := w.balanceOf(holder)
	if balance.IsZero() {
		return nil
	}
	zero := new(uint256.Int)
	var none common.Address
	if current != none {
		if err := w.adjustDelegateBalance(Holder(current), &balance, zero); err != nil {
			return err
		}
	}
	if delegate != none {
		if err := w.adjustDelegateBalance(Holder(delegate), zero, &balance); err != nil {
			return err
		}
	}
	switch {
	case current == none:
		return w.adjustDelegateBalance(TotalSupply, zero, &balance)
	case delegate == none:
		return w.adjustDelegateBalance(TotalSupply, &balance, zero)
	}
	return nil
}
