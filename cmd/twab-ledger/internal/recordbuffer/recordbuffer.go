package recordbuffer

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stellar/go/support/errors"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
)

// DefaultMaxRangeLength bounds the number of ids accepted by GetRange.
const DefaultMaxRangeLength = 256

var (
	// ErrWrongArrayLength is returned when a range query asks for too many ids.
	ErrWrongArrayLength = errors.New("wrong array length")
	// ErrUnauthorizedPublisher is returned when pushing from an address other than the publisher.
	ErrUnauthorizedPublisher = errors.New("caller is not the publisher")
	// ErrIDMismatch is returned when a record is pushed under an id other than its own.
	ErrIDMismatch = errors.New("record id does not match the pushed id")
)

// Entry is a record together with its id and the slot it is stored in.
type Entry[T any] struct {
	Slot   uint32
	ID     uint32
	Record T
}

// CommitHook is called with the new metadata and the entry being written
// before a push becomes visible. Returning an error aborts the push.
type CommitHook[T any] func(meta ringbuffer.Metadata, entry Entry[T]) error

type validator interface {
	Validate() error
}

// identified records carry their own id, which must be the id they are
// pushed under.
type identified interface {
	RecordID() uint32
}

// Buffer is a circular buffer of records keyed by contiguous ids. Once full,
// every push evicts the oldest record.
type Buffer[T any] struct {
	lock           sync.RWMutex
	meta           ringbuffer.Metadata
	records        []Entry[T]
	publisher      common.Address
	maxRangeLength int
	commitHook     CommitHook[T]
}

// New creates an empty buffer holding at most capacity records which only
// publisher can push to.
func New[T any](capacity uint32, publisher common.Address, maxRangeLength int) (*Buffer[T], error) {
	meta, err := ringbuffer.New(capacity)
	if err != nil {
		return nil, err
	}
	if maxRangeLength <= 0 {
		maxRangeLength = DefaultMaxRangeLength
	}
	return &Buffer[T]{
		meta:           meta,
		records:        make([]Entry[T], capacity),
		publisher:      publisher,
		maxRangeLength: maxRangeLength,
	}, nil
}

// SetCommitHook installs the hook used to persist pushes.
func (b *Buffer[T]) SetCommitHook(hook CommitHook[T]) {
	b.lock.Lock()
	b.commitHook = hook
	b.lock.Unlock()
}

// Restore replaces the buffer contents with previously committed state.
func (b *Buffer[T]) Restore(meta ringbuffer.Metadata, entries []Entry[T]) error {
	if meta.Capacity != b.meta.Capacity {
		return errors.Errorf("stored capacity %d differs from configured capacity %d", meta.Capacity, b.meta.Capacity)
	}
	if meta.Cardinality > meta.Capacity || meta.NextIndex >= meta.Capacity {
		return errors.Errorf("stored position (next index %d, cardinality %d) does not fit capacity %d",
			meta.NextIndex, meta.Cardinality, meta.Capacity)
	}
	if meta.Cardinality > 0 && meta.LastID < meta.Cardinality {
		return errors.Errorf("last id %d is below cardinality %d", meta.LastID, meta.Cardinality)
	}
	records := make([]Entry[T], meta.Capacity)
	for _, entry := range entries {
		if entry.Slot >= meta.Capacity {
			return errors.Errorf("slot %d out of range for capacity %d", entry.Slot, meta.Capacity)
		}
		records[entry.Slot] = entry
	}
	for i := uint32(0); i < meta.Cardinality; i++ {
		id := meta.OldestID() + i
		if records[meta.At(i)].ID != id {
			return errors.Errorf("missing record %d", id)
		}
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.meta = meta
	b.records = records
	return nil
}

// Push appends a record. id must follow the newest id and caller must be
// the publisher. Records carrying their own id must be pushed under it.
func (b *Buffer[T]) Push(caller common.Address, id uint32, record T) error {
	if caller != b.publisher {
		return errors.Wrapf(ErrUnauthorizedPublisher, "%s cannot push record %d", caller.Hex(), id)
	}
	if r, ok := any(record).(identified); ok && r.RecordID() != id {
		return errors.Wrapf(ErrIDMismatch, "record %d pushed as %d", r.RecordID(), id)
	}
	if v, ok := any(record).(validator); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrapf(err, "invalid record %d", id)
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	next, err := b.meta.Push(id)
	if err != nil {
		return err
	}
	entry := Entry[T]{Slot: b.meta.NextIndex, ID: id, Record: record}
	if b.commitHook != nil {
		if err := b.commitHook(next, entry); err != nil {
			return errors.Wrapf(err, "could not commit record %d", id)
		}
	}
	b.records[entry.Slot] = entry
	b.meta = next
	return nil
}

// Get returns the record with the given id.
func (b *Buffer[T]) Get(id uint32) (T, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.get(id)
}

func (b *Buffer[T]) get(id uint32) (T, error) {
	slot, err := b.meta.IndexOf(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return b.records[slot].Record, nil
}

// GetRange returns the records with the given ids, in the same order.
func (b *Buffer[T]) GetRange(ids []uint32) ([]T, error) {
	if len(ids) > b.maxRangeLength {
		return nil, errors.Wrapf(ErrWrongArrayLength, "%d ids exceeds maximum %d", len(ids), b.maxRangeLength)
	}
	b.lock.RLock()
	defer b.lock.RUnlock()

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		record, err := b.get(id)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

// GetOldest returns the oldest retained record.
func (b *Buffer[T]) GetOldest() (Entry[T], error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if !b.meta.IsInitialized() {
		return Entry[T]{}, errors.Wrap(ringbuffer.ErrFutureID, "buffer is empty")
	}
	return b.records[b.meta.OldestIndex()], nil
}

// GetNewest returns the newest record.
func (b *Buffer[T]) GetNewest() (Entry[T], error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if !b.meta.IsInitialized() {
		return Entry[T]{}, errors.Wrap(ringbuffer.ErrFutureID, "buffer is empty")
	}
	return b.records[b.meta.NewestIndex()], nil
}

// Count returns the number of retained records.
func (b *Buffer[T]) Count() uint32 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.meta.Cardinality
}

// Metadata returns a copy of the buffer position.
func (b *Buffer[T]) Metadata() ringbuffer.Metadata {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.meta
}

// Publisher returns the only address allowed to push.
func (b *Buffer[T]) Publisher() common.Address {
	return b.publisher
}
