package bluebird

// dynamicThis is the receiver sentinel meaning "bind to whatever the adapted
// func is invoked through".
type thisSentinel struct{}

var dynamicThis = &thisSentinel{}

// PromisifyOptions configure Promisify.
type PromisifyOptions struct {
	// Context fixes the receiver every invocation of the adapted func runs
	// under. Leaving it nil binds each invocation to the receiver the
	// adapted func is invoked through.
	Context Value

	// MultiArgs resolves the promise with the ordered slice of all success
	// values passed to the completion callback instead of just the first.
	MultiArgs bool
}

// Promisify adapts a func following the error-first completion callback
// convention into a func returning a promise. Calling the adapted func
// immediately invokes fn with the given arguments plus an appended
// completion callback and returns a pending promise that the callback
// settles.
//
// A panic raised by fn during that invocation propagates to the caller of
// the adapted func; it is not captured into the promise.
func Promisify(fn *Func, options ...PromisifyOptions) *Func {
	if fn.promisified {
		panic("cannot promisify a func that is already promisified")
	}

	var opts PromisifyOptions
	if len(options) > 0 {
		opts = options[0]
	}

	receiver := Value(dynamicThis)
	if opts.Context != nil {
		receiver = opts.Context
	}

	return makePromisified(fn, fn.Name(), receiver, "", opts.MultiArgs)
}

// makePromisified builds the marked adapted func. A non-empty lookupName
// makes every call re-read the func currently bound to that name on the
// active receiver instead of using fn, so overrides installed after
// adaptation keep taking effect.
func makePromisified(fn *Func, name string, receiver Value, lookupName string, multiArgs bool) *Func {
	g := NewFunc(name, func(this Value, args []Value) Value {
		recv := receiver
		if recv == Value(dynamicThis) {
			recv = this
		}

		target := fn
		if lookupName != "" {
			if o := objectOf(this); o != nil {
				if current, ok := o.Get(lookupName).(*Func); ok {
					target = current
				}
			}
		}

		promise, resolve, reject := newPending()

		callArgs := make([]Value, 0, len(args)+1)
		callArgs = append(callArgs, args...)
		callArgs = append(callArgs, nodeback(resolve, reject, multiArgs))

		target.Call(recv, callArgs...)

		return promise
	})

	g.promisified = true

	return g
}

// nodeback builds the error-first completion callback that settles the
// promise behind resolve and reject.
func nodeback(resolve ResolveFunc, reject RejectFunc, multiArgs bool) *Func {
	return NewFunc("", func(_ Value, args []Value) Value {
		if len(args) > 0 {
			if err, ok := args[0].(error); ok && err != nil {
				reject(err)
				return nil
			}
		}

		var values []Value
		if len(args) > 0 {
			values = args[1:]
		}

		if !multiArgs {
			var val Value
			if len(values) > 0 {
				val = values[0]
			}

			resolve(val)
			return nil
		}

		// Route the values through All so that promise-valued elements
		// settle before the aggregate resolves, in callback order.
		elems := make([]*Promise, len(values))
		for i, v := range values {
			elems[i] = Resolve(v)
		}

		All(elems...).Then(func(val Value) Value {
			resolve(val)
			return val
		}, func(err error) error {
			reject(err)
			return err
		})

		return nil
	})
}
