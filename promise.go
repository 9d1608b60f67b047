package bluebird

import (
	"fmt"
	"sync"
)

// State describes the resolution state of a promise.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

// Value describes the value of a fulfilled promise.
type Value interface{}

// OnFulfilledFunc is used in promise fulfillment handlers.
type OnFulfilledFunc func(val Value) Value

// OnRejectedFunc is used in promise rejection handlers.
type OnRejectedFunc func(err error) error

// ResolveFunc is passed as the first argument to an ExecutorFunc and may be
// called to fulfill the promise with a value.
type ResolveFunc func(val Value)

// RejectFunc is passed as the second argument to an ExecutorFunc and may be
// called to reject the promise with an error.
type RejectFunc func(err error)

// ExecutorFunc is passed to New in order to expose ResolveFunc and RejectFunc
// to the application logic that decides about fulfillment or rejection of a
// promise. Calling neither of the two leaves the promise pending forever.
type ExecutorFunc func(resolve ResolveFunc, reject RejectFunc)

// A Promise represents the eventual completion (or failure) of an
// asynchronous operation, and its resulting value.
type Promise struct {
	mu sync.Mutex

	value Value
	err   error

	fulfillCallbacks []OnFulfilledFunc
	rejectCallbacks  []OnRejectedFunc

	state State

	// settling marks the promise as claimed by a settlement call while its
	// callbacks still drain outside the lock, so a concurrent resolve or
	// reject bails out instead of settling a second time.
	settling bool

	done chan struct{}
}

func newPromise() *Promise {
	return &Promise{
		done:             make(chan struct{}),
		fulfillCallbacks: make([]OnFulfilledFunc, 0),
		rejectCallbacks:  make([]OnRejectedFunc, 0),
	}
}

// New creates a new promise and starts executor in a separate goroutine. A
// nil executor produces a promise that stays pending until it is settled by
// other means.
func New(executor ExecutorFunc) *Promise {
	p := newPromise()

	if executor != nil {
		go func() {
			defer handlePanic(p)
			executor(p.resolve, p.reject)
		}()
	}

	return p
}

// newPending creates a pending promise together with the funcs that settle
// it. This is what the completion callbacks built by the promisify layer
// close over.
func newPending() (*Promise, ResolveFunc, RejectFunc) {
	p := newPromise()
	return p, p.resolve, p.reject
}

func (p *Promise) resolve(val Value) {
	p.mu.Lock()

	if p.state != Pending || p.settling {
		p.mu.Unlock()
		return
	}

	p.settling = true
	p.value = val

	for len(p.fulfillCallbacks) > 0 {
		cb := p.fulfillCallbacks[0]
		p.fulfillCallbacks = p.fulfillCallbacks[1:]
		p.mu.Unlock()

		val := cb(p.value)
		if err, ok := val.(error); ok {
			p.mu.Lock()
			p.settling = false
			p.mu.Unlock()

			p.reject(err)
			return
		}

		p.mu.Lock()
		p.value = val
	}

	p.state = Fulfilled

	p.mu.Unlock()
	close(p.done)
}

func (p *Promise) reject(err error) {
	p.mu.Lock()

	if p.state != Pending || p.settling {
		p.mu.Unlock()
		return
	}

	p.settling = true
	p.err = err

	for len(p.rejectCallbacks) > 0 {
		cb := p.rejectCallbacks[0]
		p.rejectCallbacks = p.rejectCallbacks[1:]
		p.mu.Unlock()

		p.err = cb(p.err)

		p.mu.Lock()
	}

	p.state = Rejected

	p.mu.Unlock()
	close(p.done)
}

func handlePanic(promise *Promise) {
	err := recover()
	if err != nil {
		promise.reject(fmt.Errorf("panic while resolving promise: %v", err))
	}
}

// Await blocks until the promise is settled and returns its value or error.
func (p *Promise) Await() (Value, error) {
	<-p.done

	return p.value, p.err
}

// State returns the current resolution state of the promise.
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Then attaches a fulfillment handler and optionally a rejection handler to
// the promise. Handlers attached to a pending promise transform the value it
// eventually settles with. On an already settled promise the handler is
// invoked immediately.
func (p *Promise) Then(onFulfilled OnFulfilledFunc, onRejected ...OnRejectedFunc) *Promise {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Pending:
		if onFulfilled != nil {
			p.fulfillCallbacks = append(p.fulfillCallbacks, onFulfilled)
		}

		if len(onRejected) > 0 && onRejected[0] != nil {
			p.rejectCallbacks = append(p.rejectCallbacks, onRejected[0])
		}
	case Fulfilled:
		if onFulfilled != nil {
			return Resolve(onFulfilled(p.value))
		}
	case Rejected:
		if len(onRejected) > 0 && onRejected[0] != nil {
			return Reject(onRejected[0](p.err))
		}
	}

	return p
}

// Catch attaches a rejection handler to the promise.
func (p *Promise) Catch(onRejected OnRejectedFunc) *Promise {
	return p.Then(nil, onRejected)
}

// Resolve returns a promise fulfilled with val. If val already is a promise
// it is returned as is.
func Resolve(val Value) *Promise {
	if p, ok := val.(*Promise); ok {
		return p
	}

	p := newPromise()
	p.resolve(val)

	return p
}

// Reject returns a promise rejected with err.
func Reject(err error) *Promise {
	p := newPromise()
	p.reject(err)

	return p
}
