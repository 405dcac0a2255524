package engine

import (
	"context"
	"io"
	"time"

	dbsession "github.com/stellar/go/support/db"
	"github.com/stellar/go/support/errors"
	supportlog "github.com/stellar/go/support/log"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/config"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/db"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ingest"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/metrics"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/recordbuffer"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/ringbuffer"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
)

const (
	DrawsBufferName              = "draws"
	PrizeDistributionsBufferName = "prize_distributions"

	defaultStartupTimeout = 30 * time.Second
)

type Engine struct {
	cfg                *config.Config
	logger             *supportlog.Entry
	registry           *metrics.Registry
	db                 dbsession.SessionInterface
	rw                 db.ReadWriter
	ledger             *twab.Ledger
	draws              *recordbuffer.Buffer[recordbuffer.Draw]
	prizeDistributions *recordbuffer.Buffer[recordbuffer.PrizeDistribution]
	ingestService      *ingest.Service
	accountReader      db.AccountReader
}

func (e *Engine) Logger() *supportlog.Entry {
	return e.logger
}

func (e *Engine) Registry() *metrics.Registry {
	return e.registry
}

func (e *Engine) Ledger() *twab.Ledger {
	return e.ledger
}

func (e *Engine) Draws() *recordbuffer.Buffer[recordbuffer.Draw] {
	return e.draws
}

func (e *Engine) PrizeDistributions() *recordbuffer.Buffer[recordbuffer.PrizeDistribution] {
	return e.prizeDistributions
}

// Ingest replays a stream of balance events through the ledger.
func (e *Engine) Ingest(ctx context.Context, r io.Reader) (ingest.Stats, error) {
	return e.ingestService.Ingest(ctx, r)
}

// Close writes the metrics textfile, if one is configured, and closes the
// database.
func (e *Engine) Close() error {
	var err error
	if e.cfg.MetricsTextfilePath != "" {
		if localErr := e.registry.WriteTextfile(e.cfg.MetricsTextfilePath); localErr != nil {
			e.logger.WithError(localErr).Error("could not write metrics textfile")
			err = localErr
		}
	}
	if localErr := e.db.Close(); localErr != nil {
		err = localErr
	}
	return err
}

func newLogger(cfg *config.Config) *supportlog.Entry {
	logger := supportlog.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.UseJSONFormatter()
	}
	return logger
}

// MustNew is New, exiting the process on failure.
func MustNew(cfg *config.Config, clock twab.Clock) *Engine {
	e, err := New(cfg, clock)
	if err != nil {
		newLogger(cfg).WithError(err).Fatal("could not start the twab ledger")
	}
	return e
}

// New opens the database at cfg.SQLiteDBPath and loads the ledger and the
// record buffers from it. Every later transition is persisted before it
// becomes visible. clock drives read queries; nil means the system clock.
func New(cfg *config.Config, clock twab.Clock) (*Engine, error) {
	logger := newLogger(cfg)
	registry := metrics.MakeRegistry()
	registry.InstrumentLogger(logger)

	session, err := db.OpenSQLiteDB(cfg.SQLiteDBPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	dbConn := dbsession.RegisterMetrics(session, registry.Namespace(), "db", registry.PrometheusRegistry)

	e := &Engine{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		db:            dbConn,
		rw:            db.NewReadWriter(dbConn),
		accountReader: db.NewAccountReader(session.DB),
	}
	if err := e.load(clock); err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(clock twab.Clock) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStartupTimeout)
	defer cancel()

	if err := e.checkObservationCardinality(ctx); err != nil {
		return err
	}

	ledger, err := twab.NewLedger(twab.Config{
		Logger:           e.logger.WithField("subservice", "twab"),
		Cardinality:      e.cfg.ObservationCardinality,
		MaxBatchLength:   int(e.cfg.MaxBatchLength),
		Clock:            clock,
		MetricsNamespace: e.registry.Namespace(),
		MetricsRegistry:  e.registry.PrometheusRegistry,
	})
	if err != nil {
		return err
	}
	snapshot, err := e.accountReader.GetSnapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load the ledger from the database")
	}
	if err := ledger.Restore(snapshot); err != nil {
		return errors.Wrap(err, "could not restore the ledger")
	}
	ledger.SetCommitHook(func(changes twab.ChangeSet) error {
		return db.Update(context.Background(), e.rw, uint64(e.cfg.DBBusyRetries), func(tx db.WriteTx) error {
			return db.WriteChangeSet(tx, changes)
		})
	})
	e.ledger = ledger
	e.logger.WithField("accounts", len(snapshot.Accounts)).
		WithField("latestTimestamp", snapshot.LatestTimestamp).
		Debug("loaded ledger")

	e.draws, err = openRecordBuffer[recordbuffer.Draw](ctx, e, DrawsBufferName, e.cfg.DrawBufferCardinality)
	if err != nil {
		return err
	}
	e.prizeDistributions, err = openRecordBuffer[recordbuffer.PrizeDistribution](ctx, e, PrizeDistributionsBufferName, e.cfg.PrizeDistributionBufferCardinality)
	if err != nil {
		return err
	}

	e.ingestService = ingest.NewService(ingest.Config{
		Logger:           e.logger.WithField("subservice", "ingest"),
		Ledger:           ledger,
		Timeout:          e.cfg.IngestionTimeout,
		MetricsNamespace: e.registry.Namespace(),
		MetricsRegistry:  e.registry.PrometheusRegistry,
	})
	return nil
}

// checkObservationCardinality records the configured cardinality in an empty
// database, and refuses to start on a database created with another one.
func (e *Engine) checkObservationCardinality(ctx context.Context) error {
	stored, err := e.rw.GetObservationCardinality(ctx)
	switch {
	case err == db.ErrEmptyDB:
		return db.Update(ctx, e.rw, uint64(e.cfg.DBBusyRetries), func(tx db.WriteTx) error {
			return tx.SetObservationCardinality(e.cfg.ObservationCardinality)
		})
	case err != nil:
		return errors.Wrap(err, "could not read the observation cardinality")
	case stored != e.cfg.ObservationCardinality:
		return errors.Errorf(
			"the database was created with an observation cardinality of %d, %d is configured",
			stored, e.cfg.ObservationCardinality,
		)
	}
	return nil
}

func openRecordBuffer[T any](ctx context.Context, e *Engine, name string, capacity uint32) (*recordbuffer.Buffer[T], error) {
	buffer, err := recordbuffer.New[T](capacity, e.cfg.Publisher, int(e.cfg.MaxRecordRangeLength))
	if err != nil {
		return nil, errors.Wrapf(err, "could not create the %s buffer", name)
	}
	meta, entries, found, err := db.GetRecordBuffer[T](ctx, e.db, name)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load the %s buffer", name)
	}
	if found {
		if err := buffer.Restore(meta, entries); err != nil {
			return nil, errors.Wrapf(err, "could not restore the %s buffer", name)
		}
	}
	buffer.SetCommitHook(func(meta ringbuffer.Metadata, entry recordbuffer.Entry[T]) error {
		return db.Update(context.Background(), e.rw, uint64(e.cfg.DBBusyRetries), func(tx db.WriteTx) error {
			return db.WriteRecord(tx, name, meta, entry)
		})
	})
	e.logger.WithField("buffer", name).
		WithField("count", buffer.Count()).
		Debug("loaded record buffer")
	return buffer, nil
}
