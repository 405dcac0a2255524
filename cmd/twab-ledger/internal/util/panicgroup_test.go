package util

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestTrivialPanicGroup(t *testing.T) {
	ch := make(chan int)

	panicGroup := panicGroup{}
	panicGroup.Go(func() { ch <- 1 })

	<-ch
}

type TestLogsCounter struct {
	entry             *log.Entry
	mu                sync.Mutex
	writtenLogEntries [logrus.TraceLevel + 1]int
}

func makeTestLogCounter() *TestLogsCounter {
	out := &TestLogsCounter{
		entry: log.New(),
	}
	out.entry.AddHook(out)
	out.entry.SetLevel(logrus.DebugLevel)
	return out
}
func (te *TestLogsCounter) Entry() *log.Entry {
	return te.entry
}
func (te *TestLogsCounter) Levels() []logrus.Level {
	return logrus.AllLevels
}
func (te *TestLogsCounter) Fire(e *logrus.Entry) error {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.writtenLogEntries[e.Level]++
	return nil
}
func (te *TestLogsCounter) GetLevel(level logrus.Level) int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.writtenLogEntries[level]
}

func PanicingFunctionA(w *int) {
	*w = 0
}

func IndirectPanicingFunctionB() {
	PanicingFunctionA(nil)
}

func IndirectPanicingFunctionC() {
	IndirectPanicingFunctionB()
}

func TestRecoverablePanicGroup(t *testing.T) {
	logCounter := makeTestLogCounter()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "panics_total"})
	panics := make(chan *PanicError, 1)

	RecoverablePanicGroup.
		Log(logCounter.Entry()).
		Counter(counter).
		OnPanic(func(err *PanicError) { panics <- err }).
		Go(IndirectPanicingFunctionC)

	err := <-panics
	assert.Contains(t, err.Function, "IndirectPanicingFunctionC")
	assert.Contains(t, err.Error(), "nil pointer dereference")
	require.NotEmpty(t, err.CallStack)
	assert.Equal(t, len(err.CallStack), logCounter.GetLevel(logrus.WarnLevel))

	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestPanicGroupOptionsDoNotLeak(t *testing.T) {
	logger := log.New()
	_ = RecoverablePanicGroup.Log(logger)
	assert.Nil(t, RecoverablePanicGroup.log)
	assert.False(t, RecoverablePanicGroup.exitProcessOnPanic)
	assert.True(t, UnrecoverablePanicGroup.exitProcessOnPanic)
}
