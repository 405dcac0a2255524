package db

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/stellar/go/support/db"
	"github.com/stellar/go/support/errors"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/recordbuffer"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
)

const (
	recordBuffersTableName = "record_buffers"
	recordsTableName       = "records"
)

type RecordWriter interface {
	UpsertBuffer(name string, meta ringbuffer.Metadata) error
	UpsertRecord(name string, slot, id uint32, record []byte) error
}

type recordBufferRow struct {
	Name        string `db:"name"`
	NextIndex   uint32 `db:"next_index"`
	LastID      uint32 `db:"last_id"`
	Cardinality uint32 `db:"cardinality"`
	Capacity    uint32 `db:"capacity"`
}

type recordRow struct {
	Slot   uint32 `db:"slot"`
	ID     uint32 `db:"id"`
	Record string `db:"record"`
}

type recordWriter struct {
	stmtCache *sq.StmtCache
}

func (w recordWriter) UpsertBuffer(name string, meta ringbuffer.Metadata) error {
	_, err := sq.StatementBuilder.RunWith(w.stmtCache).
		Replace(recordBuffersTableName).
		Values(name, meta.NextIndex, meta.LastID, meta.Cardinality, meta.Capacity).
		Exec()
	return err
}

func (w recordWriter) UpsertRecord(name string, slot, id uint32, record []byte) error {
	_, err := sq.StatementBuilder.RunWith(w.stmtCache).
		Replace(recordsTableName).
		Values(name, slot, id, string(record)).
		Exec()
	return err
}

// WriteRecord stages a record buffer push in tx.
func WriteRecord[T any](tx WriteTx, name string, meta ringbuffer.Metadata, entry recordbuffer.Entry[T]) error {
	encoded, err := json.Marshal(entry.Record)
	if err != nil {
		return errors.Wrapf(err, "could not encode record %d of %s", entry.ID, name)
	}
	writer := tx.RecordWriter()
	if err := writer.UpsertRecord(name, entry.Slot, entry.ID, encoded); err != nil {
		return errors.Wrapf(err, "could not write record %d of %s", entry.ID, name)
	}
	return writer.UpsertBuffer(name, meta)
}

// GetRecordBuffer loads the position and retained records of the named
// buffer. It returns false when nothing was ever pushed to it.
func GetRecordBuffer[T any](ctx context.Context, q db.SessionInterface, name string) (ringbuffer.Metadata, []recordbuffer.Entry[T], bool, error) {
	var buffers []recordBufferRow
	sql := sq.Select("name", "next_index", "last_id", "cardinality", "capacity").
		From(recordBuffersTableName).Where(sq.Eq{"name": name})
	if err := q.Select(ctx, &buffers, sql); err != nil {
		return ringbuffer.Metadata{}, nil, false, err
	}
	if len(buffers) == 0 {
		return ringbuffer.Metadata{}, nil, false, nil
	}
	meta := ringbuffer.Metadata{
		NextIndex:   buffers[0].NextIndex,
		LastID:      buffers[0].LastID,
		Cardinality: buffers[0].Cardinality,
		Capacity:    buffers[0].Capacity,
	}

	var rows []recordRow
	sql = sq.Select("slot", "id", "record").
		From(recordsTableName).Where(sq.Eq{"buffer": name}).OrderBy("slot asc")
	if err := q.Select(ctx, &rows, sql); err != nil {
		return meta, nil, false, err
	}
	entries := make([]recordbuffer.Entry[T], 0, len(rows))
	for _, row := range rows {
		var record T
		if err := json.Unmarshal([]byte(row.Record), &record); err != nil {
			return meta, nil, false, errors.Wrapf(err, "could not decode record %d of %s", row.ID, name)
		}
		entries = append(entries, recordbuffer.Entry[T]{Slot: row.Slot, ID: row.ID, Record: record})
	}
	return meta, entries, true, nil
}
