// Package instrumented wraps funcs adapted by the bluebird promisify layer
// for debugging, tracing and logging of their invocations.
package instrumented

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vnovick/bluebird"
)

// InstrumentationHandlerFunc is the signature of a func that can be used as
// an invocation handler. It is called with an invocation info every time an
// instrumented adapted func is invoked.
type InstrumentationHandlerFunc func(invocation *Invocation)

// Invocation is a container for information relevant to a given adapted
// func invocation.
type Invocation struct {
	// UUID is a unique string that is automatically generated for every
	// invocation of an instrumented func to keep track of it.
	UUID string

	// Name is the name of the adapted func that was invoked.
	Name string

	// Args holds the argument values the adapted func was invoked with.
	Args []bluebird.Value

	// Promise is the promise returned by the invocation. It is strongly
	// advised against manipulating the promise (e.g. calling Then or Await)
	// inside an invocation handler as this may cause weird side effects or
	// even deadlocks. This is only exposed to be able to inspect the
	// promise for debugging or tracing.
	Promise *bluebird.Promise

	// CallerInfo contains info about the callsite of the invocation.
	CallerInfo CallerInfo

	// StartTime holds the time the adapted func was called at.
	StartTime time.Time

	// EndTime holds the time at which the adapted func returned its
	// promise. Note that the underlying operation usually settles the
	// promise later.
	EndTime time.Time
}

// CallerInfo contains information about a call site.
type CallerInfo struct {
	// File in which the call happened.
	File string

	// Func contains the name of the func surrounding the call site.
	Func string

	// Line number of the call site.
	Line int
}

func getCallerInfo(skipFrames int) CallerInfo {
	pc, file, line, _ := runtime.Caller(skipFrames)

	return CallerInfo{
		File: file,
		Func: runtime.FuncForPC(pc).Name(),
		Line: line,
	}
}

var defaultInstrumentation = NewInstrumentation()

// Instrumentation is a factory for instrumented adapted funcs. It holds
// references to handlers that are invoked for every call of a func wrapped
// by it. Its Promisifier method plugs the instrumentation into
// bluebird.PromisifyAll.
type Instrumentation struct {
	sync.RWMutex
	handlers []InstrumentationHandlerFunc
}

// NewInstrumentation creates a new instrumentation with given handler
// funcs. If no handler funcs are provided, wrapping funcs with it returns
// them unchanged.
func NewInstrumentation(handlers ...InstrumentationHandlerFunc) *Instrumentation {
	return &Instrumentation{
		handlers: handlers,
	}
}

// AddHandlers adds handler funcs to the instrumentation. Newly added
// handlers also receive invocations of funcs previously wrapped by this
// instrumentation.
func (i *Instrumentation) AddHandlers(handlers ...InstrumentationHandlerFunc) {
	i.Lock()
	defer i.Unlock()

	i.handlers = append(i.handlers, handlers...)
}

// RemoveHandlers removes all handlers from the instrumentation. Funcs
// wrapped earlier stay wrapped but dispatch to nobody until handlers are
// added again.
func (i *Instrumentation) RemoveHandlers() {
	i.Lock()
	defer i.Unlock()

	i.handlers = nil
}

// Handlers returns the handlers configured for i. This method is
// thread-safe.
func (i *Instrumentation) Handlers() []InstrumentationHandlerFunc {
	i.RLock()
	defer i.RUnlock()

	handlers := i.handlers
	return handlers
}

// Promisifier returns a promisifier that installs instrumented adapted
// funcs during bulk promisification.
func (i *Instrumentation) Promisifier() bluebird.PromisifierFunc {
	return func(_ *bluebird.Func, defaultPromisifier func() *bluebird.Func) *bluebird.Func {
		return i.Wrap(defaultPromisifier())
	}
}

// Wrap instruments an adapted func. If the instrumentation has no handlers
// configured at wrap time, the original func is returned without wrapping
// it, so the instrumented promisifier can stay plugged in in production
// code without adding overhead.
func (i *Instrumentation) Wrap(fn *bluebird.Func) *bluebird.Func {
	if len(i.Handlers()) == 0 {
		return fn
	}

	return bluebird.NewFunc(fn.Name(), func(this bluebird.Value, args []bluebird.Value) bluebird.Value {
		callerInfo := getCallerInfo(3)
		startTime := time.Now()

		result := fn.Call(this, args...)

		invocation := &Invocation{
			UUID:       uuid.New().String(),
			Name:       fn.Name(),
			Args:       args,
			CallerInfo: callerInfo,
			StartTime:  startTime,
			EndTime:    time.Now(),
		}

		if promise, ok := result.(*bluebird.Promise); ok {
			invocation.Promise = promise
		}

		for _, handler := range i.Handlers() {
			handler(invocation)
		}

		return result
	})
}

// Promisifier returns a promisifier backed by the default instrumentation.
func Promisifier() bluebird.PromisifierFunc {
	return defaultInstrumentation.Promisifier()
}

// Wrap instruments an adapted func using the default instrumentation.
func Wrap(fn *bluebird.Func) *bluebird.Func {
	return defaultInstrumentation.Wrap(fn)
}

// AddInstrumentationHandlers adds handlers to the default instrumentation.
func AddInstrumentationHandlers(handlers ...InstrumentationHandlerFunc) {
	defaultInstrumentation.AddHandlers(handlers...)
}

// RemoveInstrumentationHandlers removes all handlers from the default
// instrumentation. After calling this function, funcs newly wrapped by this
// package will not be instrumented.
func RemoveInstrumentationHandlers() {
	defaultInstrumentation.RemoveHandlers()
}
