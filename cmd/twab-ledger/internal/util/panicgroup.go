package util

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/support/log"
)

// UnrecoverablePanicGroup prints the panic to stderr and exits the process.
var UnrecoverablePanicGroup = panicGroup{
	logPanicsToStdErr:  true,
	exitProcessOnPanic: true,
}

// RecoverablePanicGroup keeps the process alive.
var RecoverablePanicGroup = panicGroup{
	logPanicsToStdErr:  false,
	exitProcessOnPanic: false,
}

// PanicError is handed to the OnPanic callback of a recoverable group.
type PanicError struct {
	Value     any
	Function  string
	CallStack []string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Function, e.Value)
}

type panicGroup struct {
	log                *log.Entry
	logPanicsToStdErr  bool
	exitProcessOnPanic bool
	panicsCounter      prometheus.Counter
	onPanic            func(*PanicError)
}

func (pg *panicGroup) Log(log *log.Entry) *panicGroup {
	out := *pg
	out.log = log
	return &out
}

func (pg *panicGroup) Counter(counter prometheus.Counter) *panicGroup {
	out := *pg
	out.panicsCounter = counter
	return &out
}

// OnPanic registers a callback run, in the panicking goroutine, once the panic
// has been logged and counted. It is not called when the group exits the process.
func (pg *panicGroup) OnPanic(fn func(*PanicError)) *panicGroup {
	out := *pg
	out.onPanic = fn
	return &out
}

// Go runs fn in a new goroutine. A panic in fn is logged, counted and then
// either terminates the process or is handed to the OnPanic callback.
func (pg *panicGroup) Go(fn func()) {
	go func() {
		defer func() {
			if value := recover(); value != nil {
				pg.handle(fn, value)
			}
		}()
		fn()
	}()
}

func (pg *panicGroup) handle(fn func(), value any) {
	perr := &PanicError{
		Value:    value,
		Function: runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name(),
	}
	perr.CallStack = panicStack(perr, "(*panicGroup).Go")

	for _, line := range perr.CallStack {
		if pg.log != nil {
			pg.log.Warn(line)
		}
		if pg.logPanicsToStdErr {
			fmt.Fprintln(os.Stderr, line)
		}
	}
	if pg.panicsCounter != nil {
		pg.panicsCounter.Inc()
	}

	switch {
	case pg.exitProcessOnPanic:
		os.Exit(1)
	case pg.onPanic != nil:
		pg.onPanic(perr)
	}
}

// debugStackHeader is the number of fields debug.Stack prints for the
// goroutine header and its own frames.
const debugStackHeader = 10

// panicStack renders the panic followed by the stack frames of the panicking
// goroutine, down to the first frame mentioning stopAt.
func panicStack(perr *PanicError, stopAt string) []string {
	lines := []string{fmt.Sprintf("%v when calling %v", perr.Value, perr.Function)}
	fields := strings.FieldsFunc(string(debug.Stack()), func(r rune) bool {
		return r == '\n' || r == '\t'
	})
	if len(fields) <= debugStackHeader {
		return lines
	}
	for _, field := range fields[debugStackHeader:] {
		lines = append(lines, field)
		if strings.Contains(field, stopAt) {
			break
		}
	}
	return lines
}
