package ringbuffer

import (
	"fmt"
	"math"

	"github.com/stellar/go/support/errors"
)

var (
	// ErrNonContiguousID is returned when pushing an id which doesn't follow the last pushed id.
	ErrNonContiguousID = errors.New("id is not contiguous")
	// ErrFutureID is returned when looking up an id which hasn't been pushed yet.
	ErrFutureID = errors.New("id has not been pushed yet")
	// ErrExpiredID is returned when looking up an id which was evicted by newer entries.
	ErrExpiredID = errors.New("id has expired")
)

// Metadata tracks a circular buffer of fixed capacity whose entries are
// keyed by a contiguous sequence of ids.
type Metadata struct {
	// NextIndex is the slot the next entry will be written to.
	NextIndex uint32
	// LastID is the id of the newest entry (meaningless while Cardinality is 0).
	LastID uint32
	// Cardinality is the number of retained entries, never above Capacity.
	Cardinality uint32
	// Capacity is the fixed number of slots.
	Capacity uint32
}

// New creates the metadata of an empty buffer with the given capacity.
func New(capacity uint32) (Metadata, error) {
	if capacity == 0 {
		return Metadata{}, errors.New("capacity must be positive")
	}
	return Metadata{Capacity: capacity}, nil
}

// IsInitialized reports whether at least one entry was pushed.
func (m Metadata) IsInitialized() bool {
	return m.Cardinality > 0
}

// Advance returns the metadata after writing an entry at NextIndex,
// without touching LastID.
func (m Metadata) Advance() Metadata {
	m.NextIndex = NextIndex(m.NextIndex, m.Capacity)
	if m.Cardinality < m.Capacity {
		m.Cardinality++
	}
	return m
}

// Push returns the metadata after appending newID, which must follow LastID.
// The entry itself belongs in slot m.NextIndex.
func (m Metadata) Push(newID uint32) (Metadata, error) {
	if m.LastID == math.MaxUint32 || newID != m.LastID+1 {
		return m, errors.Wrapf(ErrNonContiguousID, "expected id %d but received %d", uint64(m.LastID)+1, newID)
	}
	next := m.Advance()
	next.LastID = newID
	return next, nil
}

// IndexOf returns the slot holding id.
func (m Metadata) IndexOf(id uint32) (uint32, error) {
	if !m.IsInitialized() || id > m.LastID {
		return 0, errors.Wrapf(ErrFutureID, "id %d is after the last id %d", id, m.LastID)
	}
	offset := m.LastID - id
	if offset >= m.Cardinality {
		return 0, errors.Wrapf(ErrExpiredID, "id %d is before the oldest id %d", id, m.OldestID())
	}
	return Offset(m.NewestIndex(), offset, m.Capacity), nil
}

// OldestID returns the id of the oldest retained entry.
func (m Metadata) OldestID() uint32 {
	if !m.IsInitialized() {
		return 0
	}
	return m.LastID - (m.Cardinality - 1)
}

// NewestIndex returns the slot of the newest entry.
func (m Metadata) NewestIndex() uint32 {
	return NewestIndex(m.NextIndex, m.Capacity)
}

// OldestIndex returns the slot of the oldest retained entry. Until the
// buffer is full this is slot 0, afterwards it is the slot about to be
// overwritten.
func (m Metadata) OldestIndex() uint32 {
	return Offset(m.NextIndex, m.Cardinality, m.Capacity)
}

// At returns the slot of the i-th retained entry, 0 being the oldest.
func (m Metadata) At(i uint32) uint32 {
	if i >= m.Cardinality {
		panic(fmt.Sprintf("index out of range [%d] with cardinality %d", i, m.Cardinality))
	}
	return Wrap(uint64(m.OldestIndex())+uint64(i), m.Capacity)
}

// Wrap maps an unbounded index onto the slots of a buffer.
func Wrap(index uint64, capacity uint32) uint32 {
	return uint32(index % uint64(capacity))
}

// NextIndex returns the slot following index.
func NextIndex(index, capacity uint32) uint32 {
	return Wrap(uint64(index)+1, capacity)
}

// NewestIndex returns the slot written right before nextIndex.
func NewestIndex(nextIndex, capacity uint32) uint32 {
	return Offset(nextIndex, 1, capacity)
}

// Offset returns the slot amount positions before index.
func Offset(index, amount, capacity uint32) uint32 {
	return Wrap(uint64(index)+uint64(capacity)-uint64(amount%capacity), capacity)
}
