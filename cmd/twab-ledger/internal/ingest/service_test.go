package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/twab"
	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/util"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

const T = uint32(1_000_000)

func newTestService(t *testing.T) (*Service, *twab.Ledger, *prometheus.Registry) {
	ledger, err := twab.NewLedger(twab.Config{
		Cardinality: 8,
		Clock:       twab.ClockFunc(func() uint32 { return T + 100 }),
	})
	require.NoError(t, err)
	registry := prometheus.NewRegistry()
	service := NewService(Config{
		Ledger:           ledger,
		MetricsNamespace: "test",
		MetricsRegistry:  registry,
	})
	return service, ledger, registry
}

func eventLine(eventType EventType, timestamp uint32, from, to common.Address, amount string) string {
	return fmt.Sprintf(`{"type":%q,"timestamp":%d,"from":%q,"to":%q,"amount":%q}`+"\n",
		eventType, timestamp, from.Hex(), to.Hex(), amount)
}

func TestIngestStream(t *testing.T) {
	service, ledger, registry := newTestService(t)
	var zero common.Address
	stream := eventLine(EventTypeMint, T, zero, alice, "1000") +
		eventLine(EventTypeTransfer, T+10, alice, bob, "400") +
		`{"type":"delegate","timestamp":1000020,"from":"` + bob.Hex() + `","to":"` + carol.Hex() + `"}` + "\n" +
		eventLine(EventTypeBurn, T+30, alice, zero, "100") +
		eventLine(EventTypeBalance, T+40, zero, carol, "50")

	stats, err := service.Ingest(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Events)
	assert.Equal(t, T+40, stats.LatestTimestamp)
	for _, eventType := range []EventType{EventTypeMint, EventTypeTransfer, EventTypeDelegate, EventTypeBurn, EventTypeBalance} {
		assert.Equal(t, 1, stats.ByType[eventType], eventType)
	}

	assert.Equal(t, uint256.NewInt(500), ledger.BalanceOf(alice))
	assert.Equal(t, uint256.NewInt(400), ledger.BalanceOf(bob))
	assert.Equal(t, uint256.NewInt(50), ledger.BalanceOf(carol))
	assert.Equal(t, uint256.NewInt(450), ledger.DelegateBalanceOf(twab.Holder(carol)))
	assert.Equal(t, uint256.NewInt(950), ledger.TotalSupply())
	assert.Equal(t, carol, ledger.DelegateOf(bob))

	families, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if family.GetName() != "test_ingest_events_total" {
			continue
		}
		found = true
		assert.Len(t, family.GetMetric(), 5)
		for _, metric := range family.GetMetric() {
			assert.Equal(t, 1.0, metric.GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestIngestStopsAtStaleEvent(t *testing.T) {
	service, ledger, _ := newTestService(t)
	var zero common.Address
	stream := eventLine(EventTypeMint, T+10, zero, alice, "10") +
		eventLine(EventTypeMint, T, zero, alice, "20") +
		eventLine(EventTypeMint, T+20, zero, alice, "30")

	stats, err := service.Ingest(context.Background(), strings.NewReader(stream))
	require.Error(t, err)
	assert.ErrorIs(t, err, twab.ErrStaleTimestamp)
	assert.Contains(t, err.Error(), "event 1")
	assert.Equal(t, 1, stats.Events)
	assert.Equal(t, uint256.NewInt(10), ledger.BalanceOf(alice))
}

func TestIngestInvalidEvents(t *testing.T) {
	var zero common.Address
	mint := eventLine(EventTypeMint, T, zero, alice, "10")
	for _, scenario := range []struct {
		name   string
		stream string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "malformed json",
			stream: mint + `{"type":"mint",` + "\n",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "could not decode event 1")
			},
		},
		{
			name:   "unknown field",
			stream: mint + `{"type":"mint","timestamp":1000001,"holder":"0x01","amount":"1"}` + "\n",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "could not decode event 1")
			},
		},
		{
			name:   "unknown type",
			stream: mint + eventLine("airdrop", T+1, zero, alice, "1"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnknownEventType)
			},
		},
		{
			name:   "missing amount",
			stream: mint + eventLine(EventTypeTransfer, T+1, alice, bob, ""),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "without amount")
			},
		},
		{
			name:   "burn too much",
			stream: mint + eventLine(EventTypeBurn, T+1, alice, zero, "11"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, twab.ErrInsufficientBalance)
			},
		},
	} {
		t.Run(scenario.name, func(t *testing.T) {
			service, ledger, _ := newTestService(t)
			stats, err := service.Ingest(context.Background(), strings.NewReader(scenario.stream))
			require.Error(t, err)
			scenario.check(t, err)
			assert.Equal(t, 1, stats.Events)
			assert.Equal(t, uint256.NewInt(10), ledger.BalanceOf(alice))
		})
	}
}

type panickingReader struct{}

func (panickingReader) Read([]byte) (int, error) {
	panic("unreadable")
}

func TestIngestRecoversDecoderPanic(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.Ingest(context.Background(), panickingReader{})
	require.Error(t, err)
	var panicErr *util.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "unreadable", panicErr.Value)
}
