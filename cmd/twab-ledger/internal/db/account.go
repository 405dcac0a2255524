package db

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/stellar/go/support/errors"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

const (
	accountsTableName     = "accounts"
	observationsTableName = "observations"
	delegationsTableName  = "delegations"
)

type AccountReader interface {
	GetSnapshot(ctx context.Context) (twab.Snapshot, error)
}

type AccountWriter interface {
	UpsertAccount(id twab.AccountID, state twab.AccountState) error
	UpsertObservation(id twab.AccountID, slot uint32, observation twab.Observation) error
	UpsertDelegation(holder, delegate common.Address) error
}

type accountRow struct {
	ID                   string `db:"id"`
	Balance              []byte `db:"balance"`
	DelegateBalance      []byte `db:"delegate_balance"`
	NextObservationIndex uint32 `db:"next_observation_index"`
	Cardinality          uint32 `db:"cardinality"`
}

type observationRow struct {
	AccountID        string `db:"account_id"`
	Slot             uint32 `db:"slot"`
	CumulativeWeight []byte `db:"cumulative_weight"`
	Timestamp        uint32 `db:"timestamp"`
}

type delegationRow struct {
	Holder   string `db:"holder"`
	Delegate string `db:"delegate"`
}

func encodeUint256(v *uint256.Int) []byte {
	encoded := v.Bytes32()
	return encoded[:]
}

func decodeUint256(b []byte) (uint256.Int, error) {
	var v uint256.Int
	if len(b) > 32 {
		return v, errors.Errorf("%d bytes do not fit 256 bits", len(b))
	}
	v.SetBytes(b)
	return v, nil
}

type accountReader struct {
	db *sqlx.DB
}

func NewAccountReader(db *sqlx.DB) AccountReader {
	return accountReader{db: db}
}

func selectContext(ctx context.Context, tx *sqlx.Tx, dest interface{}, query sq.Sqlizer) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	return tx.SelectContext(ctx, dest, sqlStr, args...)
}

// GetSnapshot loads every account, observation and delegation within a single
// read transaction.
func (r accountReader) GetSnapshot(ctx context.Context) (twab.Snapshot, error) {
	snapshot := twab.Snapshot{Delegations: map[common.Address]common.Address{}}
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return snapshot, err
	}
	// Since it's a read-only transaction, we don't
	// care whether we commit it or roll it back as long as we close it
	defer func() {
		_ = tx.Rollback()
	}()

	var values []string
	if err := selectContext(ctx, tx, &values, metaQuery(latestTimestampMetaKey)); err != nil {
		return snapshot, err
	}
	latest, err := parseMetaUint32(latestTimestampMetaKey, values)
	switch {
	case err == ErrEmptyDB:
		return snapshot, nil
	case err != nil:
		return snapshot, err
	}
	snapshot.LatestTimestamp = latest

	var accounts []accountRow
	query := sq.Select("id", "balance", "delegate_balance", "next_observation_index", "cardinality").
		From(accountsTableName).OrderBy("id asc")
	if err := selectContext(ctx, tx, &accounts, query); err != nil {
		return snapshot, err
	}
	positions := make(map[twab.AccountID]int, len(accounts))
	for _, row := range accounts {
		id, err := twab.ParseAccountID(row.ID)
		if err != nil {
			return snapshot, err
		}
		balance, err := decodeUint256(row.Balance)
		if err != nil {
			return snapshot, errors.Wrapf(err, "balance of %s", row.ID)
		}
		delegateBalance, err := decodeUint256(row.DelegateBalance)
		if err != nil {
			return snapshot, errors.Wrapf(err, "delegate balance of %s", row.ID)
		}
		positions[id] = len(snapshot.Accounts)
		snapshot.Accounts = append(snapshot.Accounts, twab.AccountUpdate{
			ID: id,
			State: twab.AccountState{
				Balance:              balance,
				DelegateBalance:      delegateBalance,
				NextObservationIndex: row.NextObservationIndex,
				Cardinality:          row.Cardinality,
			},
			Slots: map[uint32]twab.Observation{},
		})
	}

	var observations []observationRow
	query = sq.Select("account_id", "slot", "cumulative_weight", "timestamp").
		From(observationsTableName).OrderBy("account_id asc", "slot asc")
	if err := selectContext(ctx, tx, &observations, query); err != nil {
		return snapshot, err
	}
	for _, row := range observations {
		id, err := twab.ParseAccountID(row.AccountID)
		if err != nil {
			return snapshot, err
		}
		position, ok := positions[id]
		if !ok {
			return snapshot, errors.Errorf("observation of unknown account %s", row.AccountID)
		}
		weight, err := decodeUint256(row.CumulativeWeight)
		if err != nil {
			return snapshot, errors.Wrapf(err, "observation %d of %s", row.Slot, row.AccountID)
		}
		snapshot.Accounts[position].Slots[row.Slot] = twab.Observation{CumulativeWeight: weight, Timestamp: row.Timestamp}
	}

	var delegations []delegationRow
	query = sq.Select("holder", "delegate").From(delegationsTableName)
	if err := selectContext(ctx, tx, &delegations, query); err != nil {
		return snapshot, err
	}
	for _, row := range delegations {
		if !common.IsHexAddress(row.Holder) || !common.IsHexAddress(row.Delegate) {
			return snapshot, errors.Errorf("invalid delegation %s -> %s", row.Holder, row.Delegate)
		}
		snapshot.Delegations[common.HexToAddress(row.Holder)] = common.HexToAddress(row.Delegate)
	}
	return snapshot, nil
}

type accountWriter struct {
	stmtCache *sq.StmtCache
}

func (w accountWriter) UpsertAccount(id twab.AccountID, state twab.AccountState) error {
	_, err := sq.StatementBuilder.RunWith(w.stmtCache).
		Replace(accountsTableName).
		Values(
			id.String(),
			encodeUint256(&state.Balance),
			encodeUint256(&state.DelegateBalance),
			state.NextObservationIndex,
			state.Cardinality,
		).
		Exec()
	return err
}

func (w accountWriter) UpsertObservation(id twab.AccountID, slot uint32, observation twab.Observation) error {
	_, err := sq.StatementBuilder.RunWith(w.stmtCache).
		Replace(observationsTableName).
		Values(id.String(), slot, encodeUint256(&observation.CumulativeWeight), observation.Timestamp).
		Exec()
	return err
}

func (w accountWriter) UpsertDelegation(holder, delegate common.Address) error {
	_, err := sq.StatementBuilder.RunWith(w.stmtCache).
		Replace(delegationsTableName).
		Values(holder.Hex(), delegate.Hex()).
		Exec()
	return err
}

// WriteChangeSet stages a ledger transition in tx.
func WriteChangeSet(tx WriteTx, changes twab.ChangeSet) error {
	writer := tx.AccountWriter()
	for _, update := range changes.Accounts {
		if err := writer.UpsertAccount(update.ID, update.State); err != nil {
			return errors.Wrapf(err, "could not write account %s", update.ID)
		}
		for slot, observation := range update.Slots {
			if err := writer.UpsertObservation(update.ID, slot, observation); err != nil {
				return errors.Wrapf(err, "could not write observation %d of %s", slot, update.ID)
			}
		}
	}
	for holder, delegate := range changes.Delegations {
		if err := writer.UpsertDelegation(holder, delegate); err != nil {
			return errors.Wrapf(err, "could not write delegation of %s", holder.Hex())
		}
	}
	return tx.SetLatestTimestamp(changes.Timestamp)
}
