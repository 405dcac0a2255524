package twab

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"
)

// BalanceAt returns the balance delegated to holder at t. Times after now
// answer the current balance.
func (l *Ledger) BalanceAt(holder common.Address, t uint32) *uint256.Int {
	return l.balanceAt(Holder(holder), t)
}

// TotalSupplyAt returns the delegated total supply at t.
func (l *Ledger) TotalSupplyAt(t uint32) *uint256.Int {
	return l.balanceAt(TotalSupply, t)
}

// BalancesAt returns the balance delegated to holder at every timestamp.
func (l *Ledger) BalancesAt(holder common.Address, timestamps []uint32) ([]*uint256.Int, error) {
	return l.balancesAt(Holder(holder), timestamps)
}

// TotalSuppliesAt returns the delegated total supply at every timestamp.
func (l *Ledger) TotalSuppliesAt(timestamps []uint32) ([]*uint256.Int, error) {
	return l.balancesAt(TotalSupply, timestamps)
}

// AverageBalanceBetween returns the average balance delegated to holder
// over [start, end).
func (l *Ledger) AverageBalanceBetween(holder common.Address, start, end uint32) (*uint256.Int, error) {
	return l.averageBalanceBetween(Holder(holder), start, end)
}

// AverageTotalSupplyBetween returns the average delegated total supply over [start, end).
func (l *Ledger) AverageTotalSupplyBetween(start, end uint32) (*uint256.Int, error) {
	return l.averageBalanceBetween(TotalSupply, start, end)
}

// AverageBalancesBetween returns the average balance delegated to holder
// over every [starts[i], ends[i]).
func (l *Ledger) AverageBalancesBetween(holder common.Address, starts, ends []uint32) ([]*uint256.Int, error) {
	return l.averageBalancesBetween(Holder(holder), starts, ends)
}

// AverageTotalSuppliesBetween returns the average delegated total supply
// over every [starts[i], ends[i]).
func (l *Ledger) AverageTotalSuppliesBetween(starts, ends []uint32) ([]*uint256.Int, error) {
	return l.averageBalancesBetween(TotalSupply, starts, ends)
}

func (l *Ledger) balanceAt(id AccountID, t uint32) *uint256.Int {
	defer l.metrics.observeQuery("balance_at", time.Now())
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.lookup(id).balanceAt(t, l.now())
}

func (l *Ledger) balancesAt(id AccountID, timestamps []uint32) ([]*uint256.Int, error) {
	if len(timestamps) > l.maxBatchLength {
		return nil, errors.Wrapf(ErrWrongArrayLength, "%d timestamps exceeds maximum %d", len(timestamps), l.maxBatchLength)
	}
	defer l.metrics.observeQuery("balances_at", time.Now())
	l.lock.RLock()
	defer l.lock.RUnlock()
	account, now := l.lookup(id), l.now()
	result := make([]*uint256.Int, len(timestamps))
	for i, t := range timestamps {
		result[i] = account.balanceAt(t, now)
	}
	return result, nil
}

func (l *Ledger) averageBalanceBetween(id AccountID, start, end uint32) (*uint256.Int, error) {
	defer l.metrics.observeQuery("average_balance_between", time.Now())
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.lookup(id).averageBalanceBetween(start, end, l.now())
}

func (l *Ledger) averageBalancesBetween(id AccountID, starts, ends []uint32) ([]*uint256.Int, error) {
	if len(starts) != len(ends) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d start times and %d end times", len(starts), len(ends))
	}
	if len(starts) > l.maxBatchLength {
		return nil, errors.Wrapf(ErrWrongArrayLength, "%d windows exceeds maximum %d", len(starts), l.maxBatchLength)
	}
	defer l.metrics.observeQuery("average_balances_between", time.Now())
	l.lock.RLock()
	defer l.lock.RUnlock()
	account, now := l.lookup(id), l.now()
	result := make([]*uint256.Int, len(starts))
	for i := range starts {
		average, err := account.averageBalanceBetween(starts[i], ends[i], now)
		if err != nil {
			return nil, errors.Wrapf(err, "window %d", i)
		}
		result[i] = average
	}
	return result, nil
}
