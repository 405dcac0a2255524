package db

import (
	"context"
	"path"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mattn/go-sqlite3"
	"github.com/stellar/go/support/db"
	"github.com/stellar/go/support/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/recordbuffer"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const T = uint32(1_700_000_000)

func NewTestDB(tb testing.TB) *db.Session {
	tmp := tb.TempDir()
	dbPath := path.Join(tmp, "db.sqlite")
	db, err := OpenSQLiteDB(dbPath)
	require.NoError(tb, err)
	var ver []string
	assert.NoError(tb, db.SelectRaw(context.Background(), &ver, "SELECT sqlite_version()"))
	tb.Logf("using sqlite version: %v", ver)
	tb.Cleanup(func() {
		assert.NoError(tb, db.Close())
	})
	return db
}

func newPersistedLedger(t *testing.T, session db.SessionInterface, cardinality uint32) *twab.Ledger {
	ledger, err := twab.NewLedger(twab.Config{
		Cardinality: cardinality,
		Clock:       twab.ClockFunc(func() uint32 { return T + 1000 }),
	})
	require.NoError(t, err)
	rw := NewReadWriter(session)
	ledger.SetCommitHook(func(changes twab.ChangeSet) error {
		return Update(context.Background(), rw, 3, func(tx WriteTx) error {
			return WriteChangeSet(tx, changes)
		})
	})
	return ledger
}

func TestEmptyDB(t *testing.T) {
	session := NewTestDB(t)
	rw := NewReadWriter(session)
	_, err := rw.GetLatestTimestamp(context.Background())
	assert.Equal(t, ErrEmptyDB, err)
	_, err = rw.GetObservationCardinality(context.Background())
	assert.Equal(t, ErrEmptyDB, err)

	snapshot, err := NewAccountReader(session.DB).GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Accounts)
	assert.Empty(t, snapshot.Delegations)

	_, _, found, err := GetRecordBuffer[recordbuffer.Draw](context.Background(), session, "draws")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMetadata(t *testing.T) {
	session := NewTestDB(t)
	rw := NewReadWriter(session)
	require.NoError(t, Update(context.Background(), rw, 0, func(tx WriteTx) error {
		return tx.SetObservationCardinality(32)
	}))
	cardinality, err := rw.GetObservationCardinality(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(32), cardinality)

	// a failing transaction is rolled back
	err = Update(context.Background(), rw, 0, func(tx WriteTx) error {
		require.NoError(t, tx.SetObservationCardinality(64))
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")
	cardinality, err = rw.GetObservationCardinality(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(32), cardinality)
}

func TestLedgerRoundTrip(t *testing.T) {
	session := NewTestDB(t)
	source := newPersistedLedger(t, session, 3)
	require.NoError(t, source.Mint(alice, uint256.NewInt(100), T))
	require.NoError(t, source.Mint(bob, uint256.NewInt(10), T+5))
	require.NoError(t, source.SetDelegate(bob, alice, T+10))
	require.NoError(t, source.Transfer(alice, bob, uint256.NewInt(40), T+20))
	require.NoError(t, source.Mint(alice, new(uint256.Int).Lsh(uint256.NewInt(1), 200), T+30))
	require.NoError(t, source.SetDelegate(alice, common.Address{}, T+40))

	latest, err := NewReadWriter(session).GetLatestTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, T+40, latest)

	snapshot, err := NewAccountReader(session.DB).GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, T+40, snapshot.LatestTimestamp)
	assert.Equal(t, map[common.Address]common.Address{bob: alice, alice: {}}, snapshot.Delegations)

	restored, err := twab.NewLedger(twab.Config{
		Cardinality: 3,
		Clock:       twab.ClockFunc(func() uint32 { return T + 1000 }),
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snapshot))

	for _, id := range []twab.AccountID{twab.Holder(alice), twab.Holder(bob), twab.TotalSupply} {
		expectedState, expectedObservations := source.Account(id)
		state, observations := restored.Account(id)
		assert.Equal(t, expectedState, state, id.String())
		assert.Equal(t, expectedObservations, observations, id.String())
	}
	for _, holder := range []common.Address{alice, bob} {
		assert.Equal(t, source.DelegateOf(holder), restored.DelegateOf(holder))
		expected, err := source.AverageBalanceBetween(holder, T, T+100)
		require.NoError(t, err)
		actual, err := restored.AverageBalanceBetween(holder, T, T+100)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
	assert.Equal(t, source.TotalSupply(), restored.TotalSupply())
}

func TestRecordBufferRoundTrip(t *testing.T) {
	session := NewTestDB(t)
	rw := NewReadWriter(session)
	publisher := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	buffer, err := recordbuffer.New[recordbuffer.Draw](3, publisher, 0)
	require.NoError(t, err)
	buffer.SetCommitHook(func(meta ringbuffer.Metadata, entry recordbuffer.Entry[recordbuffer.Draw]) error {
		return Update(context.Background(), rw, 0, func(tx WriteTx) error {
			return WriteRecord(tx, "draws", meta, entry)
		})
	})
	for id := uint32(1); id <= 5; id++ {
		require.NoError(t, buffer.Push(publisher, id, recordbuffer.Draw{
			DrawID:              id,
			WinningRandomNumber: *uint256.NewInt(uint64(id) * 7),
			Timestamp:           uint64(T + id),
		}))
	}

	meta, entries, found, err := GetRecordBuffer[recordbuffer.Draw](context.Background(), session, "draws")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, buffer.Metadata(), meta)
	require.Len(t, entries, 3)
	assert.Equal(t, []uint32{4, 5, 3}, []uint32{entries[0].ID, entries[1].ID, entries[2].ID})

	restored, err := recordbuffer.New[recordbuffer.Draw](3, publisher, 0)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(meta, entries))
	oldest, err := restored.GetOldest()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), oldest.ID)
	draw, err := restored.Get(5)
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(35), draw.WinningRandomNumber)
}

type busyReadWriter struct {
	ReadWriter
	failures int
	attempts int
}

func (b *busyReadWriter) NewTx(ctx context.Context) (WriteTx, error) {
	b.attempts++
	if b.attempts <= b.failures {
		return nil, sqlite3.Error{Code: sqlite3.ErrBusy}
	}
	return b.ReadWriter.NewTx(ctx)
}

func TestUpdateRetriesBusyDatabase(t *testing.T) {
	session := NewTestDB(t)
	rw := &busyReadWriter{ReadWriter: NewReadWriter(session), failures: 2}
	require.NoError(t, Update(context.Background(), rw, 3, func(tx WriteTx) error {
		return tx.SetLatestTimestamp(T)
	}))
	assert.Equal(t, 3, rw.attempts)

	rw = &busyReadWriter{ReadWriter: NewReadWriter(session), failures: 5}
	err := Update(context.Background(), rw, 2, func(tx WriteTx) error {
		return tx.SetLatestTimestamp(T)
	})
	require.Error(t, err)
	assert.True(t, isBusy(err))
	assert.Equal(t, 3, rw.attempts)

	// other errors are not retried
	rw = &busyReadWriter{ReadWriter: NewReadWriter(session)}
	require.Error(t, Update(context.Background(), rw, 5, func(tx WriteTx) error {
		return errors.New("boom")
	}))
	assert.Equal(t, 1, rw.attempts)
	assert.False(t, isBusy(errors.New("database is locked")))
	assert.True(t, isBusy(errors.Wrap(sqlite3.Error{Code: sqlite3.ErrLocked}, "commit")))
}
