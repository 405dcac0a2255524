package ingest

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/support/errors"
	"github.com/stellar/go/support/log"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/util"
)

const (
	eventsBufferSize           = 64
	ingestionProgressLogPeriod = 10000
)

type Config struct {
	Logger  *log.Entry
	Ledger  *twab.Ledger
	Timeout time.Duration

	MetricsNamespace string
	MetricsRegistry  prometheus.Registerer
}

// Service replays streams of balance events through a ledger.
type Service struct {
	logger  *log.Entry
	ledger  *twab.Ledger
	timeout time.Duration

	ingestionDurationMetric *prometheus.SummaryVec
	latestTimestampMetric   prometheus.Gauge
	eventStatsMetric        *prometheus.CounterVec
	decoderPanicsMetric     prometheus.Counter
}

// Stats summarizes a stream ingestion.
type Stats struct {
	Events          int
	ByType          map[EventType]int
	LatestTimestamp uint32
}

func NewService(cfg Config) *Service {
	// ingestionDurationMetric measures the latency of applying a single event
	ingestionDurationMetric := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: cfg.MetricsNamespace, Subsystem: "ingest", Name: "event_ingestion_duration_seconds",
		Help:       "event ingestion durations, sliding window = 10m",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	},
		[]string{"type"},
	)
	// latestTimestampMetric is the timestamp of the latest ingested event
	latestTimestampMetric := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.MetricsNamespace, Subsystem: "ingest", Name: "latest_timestamp",
		Help: "timestamp of the latest event ingested by this instance",
	})
	eventStatsMetric := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.MetricsNamespace, Subsystem: "ingest", Name: "events_total",
			Help: "counters of ingested events, by type",
		},
		[]string{"type"},
	)
	decoderPanicsMetric := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.MetricsNamespace, Subsystem: "ingest", Name: "decoder_panics_total",
		Help: "number of panics recovered while decoding event streams",
	})
	if cfg.MetricsRegistry != nil {
		cfg.MetricsRegistry.MustRegister(ingestionDurationMetric, latestTimestampMetric, eventStatsMetric, decoderPanicsMetric)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New()
	}

	return &Service{
		logger:                  logger,
		ledger:                  cfg.Ledger,
		timeout:                 cfg.Timeout,
		ingestionDurationMetric: ingestionDurationMetric,
		latestTimestampMetric:   latestTimestampMetric,
		eventStatsMetric:        eventStatsMetric,
		decoderPanicsMetric:     decoderPanicsMetric,
	}
}

type decodedEvent struct {
	event Event
	index int
}

// Ingest decodes a stream of JSON events and applies them in order, one
// transition per event. It stops at the first event that fails; every event
// before it stays applied.
func (s *Service) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan decodedEvent, eventsBufferSize)
	decodeErr := make(chan error, 1)
	panicGroup := util.RecoverablePanicGroup.
		Log(s.logger).
		Counter(s.decoderPanicsMetric).
		OnPanic(func(err *util.PanicError) {
			decodeErr <- err
			close(events)
		})
	panicGroup.Go(func() {
		decodeErr <- s.decode(ctx, r, events)
		close(events)
	})

	stats := Stats{ByType: map[EventType]int{}}
	for decoded := range events {
		if err := s.apply(decoded.event); err != nil {
			cancel()
			// drain, so the decoder can exit
			for range events {
			}
			return stats, errors.Wrapf(err, "could not ingest event %d (%s at %d)", decoded.index, decoded.event.Type, decoded.event.Timestamp)
		}
		stats.Events++
		stats.ByType[decoded.event.Type]++
		stats.LatestTimestamp = decoded.event.Timestamp
		if stats.Events%ingestionProgressLogPeriod == 0 {
			s.logger.Infof("ingested %d events, latest timestamp %d", stats.Events, stats.LatestTimestamp)
		}
	}
	if err := <-decodeErr; err != nil {
		return stats, err
	}
	s.logger.WithField("events", stats.Events).
		WithField("latestTimestamp", stats.LatestTimestamp).
		Info("finished ingesting events")
	return stats, nil
}

func (s *Service) decode(ctx context.Context, r io.Reader, events chan<- decodedEvent) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	for index := 0; ; index++ {
		var event Event
		if err := decoder.Decode(&event); err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "could not decode event %d", index)
		}
		select {
		case events <- decodedEvent{event: event, index: index}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) apply(event Event) error {
	startTime := time.Now()
	if err := event.Apply(s.ledger); err != nil {
		return err
	}
	s.ingestionDurationMetric.With(prometheus.Labels{"type": string(event.Type)}).
		Observe(time.Since(startTime).Seconds())
	s.eventStatsMetric.With(prometheus.Labels{"type": string(event.Type)}).Inc()
	s.latestTimestampMetric.Set(float64(event.Timestamp))
	return nil
}
