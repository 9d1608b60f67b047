package bluebird

// CallFunc is the Go body of a dynamic func. It receives the value the func
// was invoked through and the call arguments.
type CallFunc func(this Value, args []Value) Value

// A Func is an invocable dynamic value. Its embedded object holds the static
// properties of the func; the capability set shared by instances created
// from it lives on its prototype object.
type Func struct {
	Object

	name   string
	source string
	call   CallFunc

	prototype *Object

	// promisified tags funcs produced by the promisify layer so they are
	// never adapted twice.
	promisified bool
}

// NewFunc creates a func with the given name and body. The fresh prototype
// object carries the usual constructor back-reference.
func NewFunc(name string, call CallFunc) *Func {
	f := &Func{
		Object: makeObject(FunctionRoot),
		name:   name,
		call:   call,
	}

	f.prototype = NewObject(nil)
	f.prototype.Set("constructor", f)

	return f
}

// Name returns the name the func was created with.
func (f *Func) Name() string {
	return f.name
}

// Source returns the textual definition attached to the func, if any.
func (f *Func) Source() string {
	return f.source
}

// SetSource attaches a textual definition to the func. The bulk converter
// inspects it for self-field assignments when classifying constructors.
func (f *Func) SetSource(source string) {
	f.source = source
}

// Prototype returns the capability set shared by instances of the func.
func (f *Func) Prototype() *Object {
	return f.prototype
}

// Call invokes the func with the given receiver and arguments. A func with
// a nil body returns nil.
func (f *Func) Call(this Value, args ...Value) Value {
	if f.call == nil {
		return nil
	}

	return f.call(this, args)
}

// New creates an instance chaining to the prototype of f and runs the func
// body on it constructor-style.
func (f *Func) New(args ...Value) *Object {
	instance := NewObject(f.prototype)
	f.Call(instance, args...)

	return instance
}

// Inherit re-parents both the capability set and the static properties of f
// onto parent, so instances of f see the methods of parent and f itself
// sees its statics.
func (f *Func) Inherit(parent *Func) {
	f.prototype.proto = parent.prototype
	f.Object.proto = &parent.Object
}

// IsPromisified reports whether v is a func produced by Promisify or
// PromisifyAll.
func IsPromisified(v Value) bool {
	f, ok := v.(*Func)
	return ok && f.promisified
}
