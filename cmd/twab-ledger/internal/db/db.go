package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/stellar/go/support/db"
	"github.com/stellar/go/support/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrEmptyDB = errors.New("DB is empty")

const (
	metaTableName                 = "metadata"
	latestTimestampMetaKey        = "LatestTimestamp"
	observationCardinalityMetaKey = "ObservationCardinality"
)

type ReadWriter interface {
	NewTx(ctx context.Context) (WriteTx, error)
	GetLatestTimestamp(ctx context.Context) (uint32, error)
	GetObservationCardinality(ctx context.Context) (uint32, error)
}

type WriteTx interface {
	AccountWriter() AccountWriter
	RecordWriter() RecordWriter
	SetLatestTimestamp(timestamp uint32) error
	SetObservationCardinality(cardinality uint32) error
	Commit() error
	Rollback() error
}

// sqliteDSNOptions puts the database in WAL mode with synchronous=NORMAL.
// Automatic checkpoints are off: every committed write tx truncates the WAL.
const sqliteDSNOptions = "_journal_mode=WAL&_wal_autocheckpoint=0&_synchronous=NORMAL"

// OpenSQLiteDB opens (creating it if needed) the database at dbFilePath and
// brings its schema up to date.
func OpenSQLiteDB(dbFilePath string) (*db.Session, error) {
	session, err := db.Open("sqlite3", "file:"+dbFilePath+"?"+sqliteDSNOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", dbFilePath)
	}
	if err := migrateUp(session.DB.DB); err != nil {
		_ = session.Close()
		return nil, errors.Wrap(err, "could not run migrations")
	}
	return session, nil
}

func metaQuery(key string) sq.SelectBuilder {
	return sq.Select("value").From(metaTableName).Where(sq.Eq{"key": key})
}

func parseMetaUint32(key string, results []string) (uint32, error) {
	switch len(results) {
	case 0:
		return 0, ErrEmptyDB
	case 1:
		// expected length on an initialized DB
	default:
		return 0, fmt.Errorf("multiple entries (%d) for key %q in table %q", len(results), key, metaTableName)
	}
	value, err := strconv.ParseUint(results[0], 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(value), nil
}

func getMetaUint32(ctx context.Context, q db.SessionInterface, key string) (uint32, error) {
	var results []string
	if err := q.Select(ctx, &results, metaQuery(key)); err != nil {
		return 0, err
	}
	return parseMetaUint32(key, results)
}

type readWriter struct {
	db db.SessionInterface
}

// NewReadWriter constructs a new ReadWriter instance persisting ledger
// transitions and record buffer pushes.
func NewReadWriter(db db.SessionInterface) ReadWriter {
	return &readWriter{db: db}
}

func (rw *readWriter) GetLatestTimestamp(ctx context.Context) (uint32, error) {
	return getMetaUint32(ctx, rw.db, latestTimestampMetaKey)
}

func (rw *readWriter) GetObservationCardinality(ctx context.Context) (uint32, error) {
	return getMetaUint32(ctx, rw.db, observationCardinalityMetaKey)
}

func (rw *readWriter) NewTx(ctx context.Context) (WriteTx, error) {
	txSession := rw.db.Clone()
	if err := txSession.Begin(ctx); err != nil {
		return nil, err
	}
	stmtCache := sq.NewStmtCache(txSession.GetTx())
	db := rw.db
	return writeTx{
		postCommit: func() error {
			_, err := db.ExecRaw(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
			return err
		},
		tx:            txSession,
		stmtCache:     stmtCache,
		accountWriter: accountWriter{stmtCache: stmtCache},
		recordWriter:  recordWriter{stmtCache: stmtCache},
	}, nil
}

type writeTx struct {
	postCommit    func() error
	tx            db.SessionInterface
	stmtCache     *sq.StmtCache
	accountWriter accountWriter
	recordWriter  recordWriter
}

func (w writeTx) AccountWriter() AccountWriter {
	return w.accountWriter
}

func (w writeTx) RecordWriter() RecordWriter {
	return w.recordWriter
}

func (w writeTx) setMeta(key string, value uint32) error {
	_, err := sq.Replace(metaTableName).RunWith(w.stmtCache).
		Values(key, strconv.FormatUint(uint64(value), 10)).Exec()
	return err
}

func (w writeTx) SetLatestTimestamp(timestamp uint32) error {
	return w.setMeta(latestTimestampMetaKey, timestamp)
}

func (w writeTx) SetObservationCardinality(cardinality uint32) error {
	return w.setMeta(observationCardinalityMetaKey, cardinality)
}

func (w writeTx) Commit() error {
	if err := w.tx.Commit(); err != nil {
		return err
	}
	return w.postCommit()
}

// errNotInTx is what the session returns when the tx is already finished.
const errNotInTx = "not in transaction"

// Rollback is a no-op after Commit, so it can always be deferred.
func (w writeTx) Rollback() error {
	err := w.tx.Rollback()
	if err != nil && err.Error() == errNotInTx {
		return nil
	}
	return err
}

func migrateUp(conn *sql.DB) error {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations",
	}
	_, err := migrate.Exec(conn, "sqlite3", source, migrate.Up)
	return err
}
