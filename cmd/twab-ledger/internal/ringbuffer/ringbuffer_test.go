package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAll(t *testing.T, m Metadata, ids ...uint32) Metadata {
	var err error
	for _, id := range ids {
		m, err = m.Push(id)
		require.NoError(t, err)
	}
	return m
}

func TestNewRequiresCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	m, err := New(3)
	require.NoError(t, err)
	assert.False(t, m.IsInitialized())
	assert.Equal(t, Metadata{Capacity: 3}, m)
}

func TestPush(t *testing.T) {
	m, err := New(3)
	require.NoError(t, err)

	m, err = m.Push(1)
	require.NoError(t, err)
	assert.True(t, m.IsInitialized())
	assert.Equal(t, Metadata{NextIndex: 1, LastID: 1, Cardinality: 1, Capacity: 3}, m)

	// ids must follow the last one
	for _, id := range []uint32{0, 1, 3, 10} {
		_, err = m.Push(id)
		require.ErrorIs(t, err, ErrNonContiguousID, "id %d", id)
	}
	// failed pushes don't modify anything
	assert.Equal(t, Metadata{NextIndex: 1, LastID: 1, Cardinality: 1, Capacity: 3}, m)

	m = pushAll(t, m, 2, 3)
	assert.Equal(t, Metadata{NextIndex: 0, LastID: 3, Cardinality: 3, Capacity: 3}, m)

	// full buffer, cardinality stays at capacity
	m = pushAll(t, m, 4)
	assert.Equal(t, Metadata{NextIndex: 1, LastID: 4, Cardinality: 3, Capacity: 3}, m)
}

func TestFirstPushMustStartAtOne(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)
	_, err = m.Push(5)
	require.ErrorIs(t, err, ErrNonContiguousID)
}

func TestIndexOf(t *testing.T) {
	m, err := New(3)
	require.NoError(t, err)

	_, err = m.IndexOf(1)
	require.ErrorIs(t, err, ErrFutureID)

	m = pushAll(t, m, 1, 2)
	index, err := m.IndexOf(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), index)
	index, err = m.IndexOf(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), index)
	_, err = m.IndexOf(3)
	require.ErrorIs(t, err, ErrFutureID)

	m = pushAll(t, m, 3, 4, 5)
	_, err = m.IndexOf(1)
	require.ErrorIs(t, err, ErrExpiredID)
	_, err = m.IndexOf(2)
	require.ErrorIs(t, err, ErrExpiredID)
	_, err = m.IndexOf(6)
	require.ErrorIs(t, err, ErrFutureID)

	// ids 3, 4, 5 live in slots 2, 0, 1
	for id, expected := range map[uint32]uint32{3: 2, 4: 0, 5: 1} {
		index, err = m.IndexOf(id)
		require.NoError(t, err)
		assert.Equal(t, expected, index, "id %d", id)
	}
	assert.Equal(t, uint32(3), m.OldestID())
	assert.Equal(t, uint32(2), m.OldestIndex())
	assert.Equal(t, uint32(1), m.NewestIndex())
}

func TestAt(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)
	m = pushAll(t, m, 1, 2, 3)
	assert.Equal(t, uint32(0), m.At(0))
	assert.Equal(t, uint32(2), m.At(2))
	require.Panics(t, func() { m.At(3) })

	m = pushAll(t, m, 4, 5, 6)
	// oldest is id 3 in slot 2
	assert.Equal(t, []uint32{2, 3, 0, 1}, []uint32{m.At(0), m.At(1), m.At(2), m.At(3)})
}

func TestIndexArithmetic(t *testing.T) {
	assert.Equal(t, uint32(0), NextIndex(4, 5))
	assert.Equal(t, uint32(4), NewestIndex(0, 5))
	assert.Equal(t, uint32(2), NewestIndex(3, 5))
	assert.Equal(t, uint32(3), Offset(1, 3, 5))
	assert.Equal(t, uint32(1), Offset(1, 5, 5))
	assert.Equal(t, uint32(2), Wrap(17, 5))
	assert.Equal(t, uint32(0), NextIndex(0, 1))
}
