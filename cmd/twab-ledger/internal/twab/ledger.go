package twab

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/support/errors"
	"github.com/stellar/go/support/log"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
)

const (
	// DefaultCardinality is the default number of observations retained per account.
	DefaultCardinality = 32
	// MaxCardinality bounds the number of observations retained per account.
	MaxCardinality = 65535
	// DefaultMaxBatchLength is the default cap of batch queries.
	DefaultMaxBatchLength = 256
)

// CommitHook is called with the changes of a transition before they become
// visible. Returning an error discards the transition.
type CommitHook func(changes ChangeSet) error

type Config struct {
	Logger *log.Entry
	// Cardinality is the capacity of every observation ring.
	Cardinality uint32
	// MaxBatchLength caps the number of timestamps of batch queries.
	MaxBatchLength int
	// Clock supplies the current time of read queries, SystemClock by default.
	Clock Clock
	// MetricsNamespace and MetricsRegistry are optional.
	MetricsNamespace string
	MetricsRegistry  prometheus.Registerer
}

// Ledger records the time weighted balance history of every account and of
// the total supply. Writes are serialized; each one is applied atomically.
type Ledger struct {
	lock           sync.RWMutex
	arena          arena
	latest         uint32
	hasLatest      bool
	logger         *log.Entry
	clock          Clock
	maxBatchLength int
	commitHook     CommitHook
	metrics        *metrics
}

func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Cardinality < 2 || cfg.Cardinality > MaxCardinality {
		return nil, errors.Errorf("observation cardinality must be between 2 and %d, got %d", MaxCardinality, cfg.Cardinality)
	}
	if cfg.MaxBatchLength <= 0 {
		cfg.MaxBatchLength = DefaultMaxBatchLength
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	return &Ledger{
		arena:          newArena(cfg.Cardinality),
		logger:         cfg.Logger,
		clock:          cfg.Clock,
		maxBatchLength: cfg.MaxBatchLength,
		metrics:        newMetrics(cfg.MetricsNamespace, cfg.MetricsRegistry),
	}, nil
}

// SetCommitHook installs the hook used to persist transitions.
func (l *Ledger) SetCommitHook(hook CommitHook) {
	l.lock.Lock()
	l.commitHook = hook
	l.lock.Unlock()
}

// Cardinality returns the capacity of the observation rings.
func (l *Ledger) Cardinality() uint32 {
	return l.arena.capacity
}

// LatestTimestamp returns the time of the latest transition, if any.
func (l *Ledger) LatestTimestamp() (uint32, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.latest, l.hasLatest
}

// Snapshot is the complete state of a ledger.
type Snapshot struct {
	LatestTimestamp uint32
	Accounts        []AccountUpdate
	Delegations     map[common.Address]common.Address
}

// Restore replaces the ledger contents with a previously committed state.
// Every account lists all of its retained slots.
func (l *Ledger) Restore(snapshot Snapshot) error {
	restored := newArena(l.arena.capacity)
	for _, update := range snapshot.Accounts {
		if update.State.Cardinality > restored.capacity || update.State.NextObservationIndex >= restored.capacity {
			return errors.Errorf("account %s does not fit observation cardinality %d", update.ID, restored.capacity)
		}
		account := newAccount(restored.capacity)
		account.State = update.State
		for slot, observation := range update.Slots {
			if slot >= restored.capacity {
				return errors.Errorf("account %s has observation slot %d out of range", update.ID, slot)
			}
			account.Observations[slot] = observation
		}
		restored.accounts[update.ID] = account
	}
	for holder, delegate := range snapshot.Delegations {
		restored.delegates[holder] = delegate
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	l.arena = restored
	l.latest = snapshot.LatestTimestamp
	l.hasLatest = len(snapshot.Accounts) > 0 || len(snapshot.Delegations) > 0
	return nil
}

// update runs apply as a single transition at now.
func (l *Ledger) update(op string, now uint32, apply func(tx *writeTx) error) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.hasLatest && lt(now, l.latest, now) {
		return errors.Wrapf(ErrStaleTimestamp, "%s at %d, latest change at %d", op, now, l.latest)
	}
	tx := l.arena.newWriteTx(now)
	if err := apply(tx); err != nil {
		return err
	}
	changes := tx.changes()
	if changes.IsEmpty() {
		return nil
	}
	if l.commitHook != nil {
		if err := l.commitHook(changes); err != nil {
			return errors.Wrapf(err, "could not commit %s", op)
		}
	}
	tx.commit()
	l.latest = now
	l.hasLatest = true
	l.metrics.observe(op, tx)
	l.logger.WithField("op", op).
		WithField("timestamp", now).
		WithField("accounts", len(changes.Accounts)).
		Debug("applied transition")
	return nil
}

// RecordBalanceChange sets the balance of holder, crediting or debiting the
// difference to its delegate and to the total supply.
func (l *Ledger) RecordBalanceChange(holder common.Address, newBalance *uint256.Int, now uint32) error {
	return l.update("balance_change", now, func(tx *writeTx) error {
		return tx.setBalance(holder, newBalance)
	})
}

// Mint credits amount to holder.
func (l *Ledger) Mint(holder common.Address, amount *uint256.Int, now uint32) error {
	if holder == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "cannot mint to the zero address")
	}
	return l.update("mint", now, func(tx *writeTx) error {
		return tx.credit(holder, amount)
	})
}

// Burn debits amount from holder.
func (l *Ledger) Burn(holder common.Address, amount *uint256.Int, now uint32) error {
	if holder == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "cannot burn from the zero address")
	}
	return l.update("burn", now, func(tx *writeTx) error {
		return tx.debit(holder, amount)
	})
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int, now uint32) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "cannot transfer from or to the zero address")
	}
	return l.update("transfer", now, func(tx *writeTx) error {
		if from == to {
			balance := tx.balanceOf(from)
			if balance.Lt(amount) {
				return errors.Wrapf(ErrInsufficientBalance, "%s holds %s, cannot transfer %s", from.Hex(), balance.Dec(), amount.Dec())
			}
			return nil
		}
		if err := tx.debit(from, amount); err != nil {
			return err
		}
		return tx.credit(to, amount)
	})
}

func (w *writeTx) credit(holder common.Address, amount *uint256.Int) error {
	balance := w.balanceOf(holder)
	var next uint256.Int
	if _, overflow := next.AddOverflow(&balance, amount); overflow {
		return errors.Wrapf(ErrBalanceOverflow, "crediting %s to %s", amount.Dec(), holder.Hex())
	}
	return w.setBalance(holder, &next)
}

func (w *writeTx) debit(holder common.Address, amount *uint256.Int) error {
	balance := w.balanceOf(holder)
	if balance.Lt(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "%s holds %s, cannot debit %s", holder.Hex(), balance.Dec(), amount.Dec())
	}
	var next uint256.Int
	next.Sub(&balance, amount)
	return w.setBalance(holder, &next)
}

// setBalance updates the balance of holder and routes the difference to its
// delegate and to the total supply.
func (w *writeTx) setBalance(holder common.Address, newBalance *uint256.Int) error {
	if holder == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "cannot record a balance for the zero address")
	}
	account := w.account(Holder(holder))
	previous := account.State.Balance
	if previous.Eq(newBalance) {
		return nil
	}
	account.State.Balance.Set(newBalance)

	total := w.account(TotalSupply)
	if _, underflow := total.State.Balance.SubOverflow(&total.State.Balance, &previous); underflow {
		return errors.Errorf("total supply is below the balance %s of %s", previous.Dec(), holder.Hex())
	}
	if _, overflow := total.State.Balance.AddOverflow(&total.State.Balance, newBalance); overflow {
		return errors.Wrap(ErrBalanceOverflow, "total supply")
	}

	delegate := w.delegateOf(holder)
	if delegate == (common.Address{}) {
		return nil
	}
	if err := w.adjustDelegateBalance(Holder(delegate), &previous, newBalance); err != nil {
		return err
	}
	return w.adjustDelegateBalance(TotalSupply, &previous, newBalance)
}

func (l *Ledger) now() uint32 {
	now := l.clock.Now()
	// never answer as of a time before the latest recorded change
	if l.hasLatest && lt(now, l.latest, now) {
		return l.latest
	}
	return now
}

func (l *Ledger) lookup(id AccountID) *Account {
	if account, ok := l.arena.account(id); ok {
		return account
	}
	return newAccount(0)
}

// BalanceOf returns the balance held by holder itself.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return new(uint256.Int).Set(&l.lookup(Holder(holder)).State.Balance)
}

// DelegateBalanceOf returns the balance currently delegated to id.
func (l *Ledger) DelegateBalanceOf(id AccountID) *uint256.Int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return new(uint256.Int).Set(&l.lookup(id).State.DelegateBalance)
}

// TotalSupply returns the sum of all balances, delegated or not.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return new(uint256.Int).Set(&l.lookup(TotalSupply).State.Balance)
}

// Account returns the state of id and its retained observations, oldest first.
func (l *Ledger) Account(id AccountID) (AccountState, []Observation) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	account := l.lookup(id)
	return account.State, account.history()
}

// NewestObservation returns the newest observation of id, if any.
func (l *Ledger) NewestObservation(id AccountID) (Observation, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	account := l.lookup(id)
	if account.State.Cardinality == 0 {
		return Observation{}, false
	}
	return account.newest(), true
}

// OldestObservation returns the oldest retained observation of id, if any.
func (l *Ledger) OldestObservation(id AccountID) (Observation, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	account := l.lookup(id)
	if account.State.Cardinality == 0 {
		return Observation{}, false
	}
	return account.oldest(), true
}

// ObservationMetadata returns the ring position of id.
func (l *Ledger) ObservationMetadata(id AccountID) ringbuffer.Metadata {
	l.lock.RLock()
	defer l.lock.RUnlock()
	meta := l.lookup(id).meta()
	meta.Capacity = l.arena.capacity
	return meta
}
