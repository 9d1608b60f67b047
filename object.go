package bluebird

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GetterFunc is the backing func of an accessor property. It is invoked with
// the object the property was read through.
type GetterFunc func(receiver *Object) Value

// SetterFunc is the backing func of a writable accessor property.
type SetterFunc func(receiver *Object, val Value)

// property is an own-property descriptor. It either holds a plain data value
// or is an accessor backed by getter/setter funcs.
type property struct {
	value  Value
	getter GetterFunc
	setter SetterFunc
}

func (p *property) accessor() bool {
	return p.getter != nil || p.setter != nil
}

// An Object is a dynamic value: a table of named own properties plus a link
// to a prototype object that is consulted for names the object does not
// define itself. Own properties preserve insertion order on enumeration.
//
// Objects are not safe for concurrent mutation. Like the promises of this
// package they are meant to be assembled by a single goroutine and shared
// read-only afterwards.
type Object struct {
	proto *Object
	props *orderedmap.OrderedMap[string, *property]

	// ownNamesFunc optionally replaces own-name enumeration for exotic
	// objects. A panicking hook makes property discovery on this object
	// return the names collected so far.
	ownNamesFunc func() []string
}

// The three foundational prototypes. Objects created with NewObject(nil)
// chain to ObjectRoot, funcs chain to FunctionRoot. Property discovery never
// walks past any of them, so properties installed here stay untouched by
// bulk promisification.
var (
	ObjectRoot   = newRootObject()
	FunctionRoot = newRootObject()
	ArrayRoot    = newRootObject()
)

func newRootObject() *Object {
	return &Object{props: orderedmap.New[string, *property]()}
}

func init() {
	FunctionRoot.proto = ObjectRoot
	ArrayRoot.proto = ObjectRoot
}

func makeObject(proto *Object) Object {
	return Object{
		proto: proto,
		props: orderedmap.New[string, *property](),
	}
}

// NewObject creates an empty object chaining to proto. A nil proto links the
// object to ObjectRoot.
func NewObject(proto *Object) *Object {
	if proto == nil {
		proto = ObjectRoot
	}

	o := makeObject(proto)
	return &o
}

// Proto returns the prototype of the object, or nil for a root.
func (o *Object) Proto() *Object {
	return o.proto
}

// Set defines or overwrites the own data property name with val.
func (o *Object) Set(name string, val Value) {
	o.props.Set(name, &property{value: val})
}

// SetAccessor defines or overwrites the own property name as an accessor
// backed by get and set. Either func may be nil.
func (o *Object) SetAccessor(name string, get GetterFunc, set SetterFunc) {
	o.props.Set(name, &property{getter: get, setter: set})
}

// SetOwnNamesFunc replaces own-name enumeration of the object with hook.
// Passing nil restores the default enumeration.
func (o *Object) SetOwnNamesFunc(hook func() []string) {
	o.ownNamesFunc = hook
}

func (o *Object) own(name string) (*property, bool) {
	return o.props.Get(name)
}

// Get looks name up on the object and then along its prototype chain,
// returning the first value found. Accessor properties are read through
// their getter, invoked with the object the lookup started at. Get returns
// nil for names that resolve nowhere.
func (o *Object) Get(name string) Value {
	for link := o; link != nil; link = link.proto {
		prop, ok := link.own(name)
		if !ok {
			continue
		}

		if prop.accessor() {
			if prop.getter == nil {
				return nil
			}

			return prop.getter(o)
		}

		return prop.value
	}

	return nil
}

// Put assigns val to name. An accessor found along the prototype chain is
// written through its setter; otherwise an own data property is created on
// the object itself.
func (o *Object) Put(name string, val Value) {
	for link := o; link != nil; link = link.proto {
		prop, ok := link.own(name)
		if !ok {
			continue
		}

		if prop.accessor() {
			if prop.setter != nil {
				prop.setter(o, val)
			}

			return
		}

		break
	}

	o.Set(name, val)
}

// Has reports whether name resolves on the object or its prototype chain.
func (o *Object) Has(name string) bool {
	for link := o; link != nil; link = link.proto {
		if _, ok := link.own(name); ok {
			return true
		}
	}

	return false
}

// HasOwn reports whether name is an own property of the object.
func (o *Object) HasOwn(name string) bool {
	_, ok := o.own(name)
	return ok
}

// Delete removes the own property name and reports whether it was present.
func (o *Object) Delete(name string) bool {
	_, ok := o.props.Delete(name)
	return ok
}

// OwnNames returns the names of all own properties, accessors included, in
// insertion order.
func (o *Object) OwnNames() []string {
	if o.ownNamesFunc != nil {
		return o.ownNamesFunc()
	}

	names := make([]string, 0, o.props.Len())
	for pair := o.props.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}

	return names
}

// Invoke resolves name on the object and calls it with the object as the
// receiver. It panics if the name does not resolve to a func.
func (o *Object) Invoke(name string, args ...Value) Value {
	fn, ok := o.Get(name).(*Func)
	if !ok {
		panic(fmt.Sprintf("%s is not a function", name))
	}

	return fn.Call(o, args...)
}

// objectOf extracts the property table behind a value. Funcs expose their
// own (static) properties.
func objectOf(v Value) *Object {
	switch t := v.(type) {
	case *Object:
		return t
	case *Func:
		return &t.Object
	default:
		return nil
	}
}
