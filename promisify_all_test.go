package bluebird

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoMethod builds a callback-style func that immediately reports reply.
func echoMethod(name string, reply Value) *Func {
	return NewFunc(name, func(this Value, args []Value) Value {
		cb := args[len(args)-1].(*Func)
		cb.Call(nil, nil, reply)

		return nil
	})
}

func awaitValue(t *testing.T, v Value) Value {
	t.Helper()

	p, ok := v.(*Promise)
	require.True(t, ok, "expected a promise, got %#v", v)

	val, err := awaitWithTimeout(t, p, 2*time.Second)
	require.NoError(t, err)

	return val
}

func TestPromisifyAll(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))
	obj.Set("write", echoMethod("write", "ok"))

	ret := PromisifyAll(obj)

	require.Same(t, obj, ret, "PromisifyAll must return its target")

	require.True(t, obj.HasOwn("readAsync"))
	require.True(t, obj.HasOwn("writeAsync"))
	assert.True(t, IsPromisified(obj.Get("readAsync")))
	assert.False(t, IsPromisified(obj.Get("read")))

	assert.Equal(t, "data", awaitValue(t, obj.Invoke("readAsync")))
	assert.Equal(t, "ok", awaitValue(t, obj.Invoke("writeAsync")))
}

func TestPromisifyAll_RejectingMethod(t *testing.T) {
	boom := errors.New("boom")

	obj := NewObject(nil)
	obj.Set("fail", NewFunc("fail", func(this Value, args []Value) Value {
		args[len(args)-1].(*Func).Call(nil, boom)
		return nil
	}))

	PromisifyAll(obj)

	p := obj.Invoke("failAsync").(*Promise)

	_, err := awaitWithTimeout(t, p, 2*time.Second)
	assert.Equal(t, boom, err)
}

func TestPromisifyAll_MultiArgs(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("stat", NewFunc("stat", func(this Value, args []Value) Value {
		args[len(args)-1].(*Func).Call(nil, nil, 1, 2, 3)
		return nil
	}))

	PromisifyAll(obj, PromisifyAllOptions{MultiArgs: true})

	assert.Equal(t, []Value{1, 2, 3}, awaitValue(t, obj.Invoke("statAsync")))
}

func TestPromisifyAll_InvalidSuffix(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))

	assert.Panics(t, func() {
		PromisifyAll(obj, PromisifyAllOptions{Suffix: "1bad"})
	})

	// The configuration error fired before any mutation.
	assert.Equal(t, []string{"read"}, obj.OwnNames())
}

func TestPromisifyAll_InvalidTarget(t *testing.T) {
	assert.Panics(t, func() {
		PromisifyAll("not an object")
	})
}

func TestPromisifyAll_CustomSuffix(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj, PromisifyAllOptions{Suffix: "Promised"})

	require.True(t, obj.HasOwn("readPromised"))
	assert.Equal(t, "data", awaitValue(t, obj.Invoke("readPromised")))
}

func TestPromisifyAll_Idempotent(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))
	obj.Set("write", echoMethod("write", "ok"))

	PromisifyAll(obj)

	names := obj.OwnNames()
	readAsync := obj.Get("readAsync")

	PromisifyAll(obj)

	assert.Equal(t, names, obj.OwnNames(), "second run must not install anything")
	assert.Same(t, readAsync, obj.Get("readAsync"), "second run must not rebuild adapted funcs")
}

func TestPromisifyAll_Shadowing(t *testing.T) {
	base := NewObject(nil)
	base.Set("m", echoMethod("m", "base"))

	derived := NewObject(base)
	derived.Set("m", echoMethod("m", "derived"))

	PromisifyAll(derived)

	require.True(t, derived.HasOwn("mAsync"))
	assert.False(t, base.HasOwn("mAsync"), "the base link must not be touched")

	assert.Equal(t, "derived", awaitValue(t, derived.Invoke("mAsync")))
}

func TestPromisifyAll_InheritedMethod(t *testing.T) {
	base := NewObject(nil)
	base.Set("m", echoMethod("m", "base"))

	derived := NewObject(base)

	PromisifyAll(derived)

	// The adapter is installed on the object being converted, not on the
	// link the method was found at.
	require.True(t, derived.HasOwn("mAsync"))
	assert.False(t, base.HasOwn("mAsync"))

	assert.Equal(t, "base", awaitValue(t, derived.Invoke("mAsync")))
}

func TestPromisifyAll_SkipsUnderscoreAndConstructor(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("_private", echoMethod("_private", "hidden"))
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj)

	assert.False(t, obj.HasOwn("_privateAsync"))
	assert.True(t, obj.HasOwn("readAsync"))
}

func TestPromisifyAll_SkipsNonFuncs(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("size", 42)
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj)

	assert.False(t, obj.HasOwn("sizeAsync"))
	assert.True(t, obj.HasOwn("readAsync"))
}

func TestPromisifyAll_SkipsAccessors(t *testing.T) {
	obj := NewObject(nil)
	obj.SetAccessor("lazy", func(receiver *Object) Value {
		return echoMethod("lazy", "computed")
	}, nil)
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj)

	assert.False(t, obj.HasOwn("lazyAsync"), "accessors are never candidates")
	assert.True(t, obj.HasOwn("readAsync"))
}

func TestPromisifyAll_AccessorSiblingBlocksConversion(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))
	obj.SetAccessor("readAsync", func(receiver *Object) Value { return nil }, nil)

	PromisifyAll(obj)

	// An accessor at the suffixed name counts as an already adapted
	// sibling, so "read" stays untouched.
	prop, ok := obj.own("readAsync")
	require.True(t, ok)
	assert.True(t, prop.accessor())
}

func TestPromisifyAll_FilterIsAuthoritative(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("_secret", echoMethod("_secret", "shh"))
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj, PromisifyAllOptions{
		Filter: func(name string, fn Value, target Value, passesDefaultFilter bool) bool {
			switch name {
			case "_secret":
				// Approve a name the default filter rejects.
				return true
			case "read":
				// Veto a name the default filter approves.
				return false
			default:
				return passesDefaultFilter
			}
		},
	})

	assert.True(t, obj.HasOwn("_secretAsync"))
	assert.False(t, obj.HasOwn("readAsync"))
}

func TestPromisifyAll_CustomPromisifier(t *testing.T) {
	calls := 0

	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj, PromisifyAllOptions{
		Promisifier: func(fn *Func, defaultPromisifier func() *Func) *Func {
			adapted := defaultPromisifier()

			return NewFunc(adapted.Name(), func(this Value, args []Value) Value {
				calls++
				return adapted.Call(this, args...)
			})
		},
	})

	require.True(t, obj.HasOwn("readAsync"))
	assert.True(t, IsPromisified(obj.Get("readAsync")), "installed funcs carry the marker even when built by a custom promisifier")

	assert.Equal(t, "data", awaitValue(t, obj.Invoke("readAsync")))
	assert.Equal(t, 1, calls)
}

func TestPromisifyAll_ClassRecursion(t *testing.T) {
	store := NewFunc("Store", nil)
	store.Prototype().Set("get", echoMethod("get", "value"))
	store.Prototype().Set("put", echoMethod("put", "stored"))
	store.Set("connect", echoMethod("connect", "connected"))

	plain := echoMethod("plain", "plain")

	obj := NewObject(nil)
	obj.Set("Store", store)
	obj.Set("plain", plain)

	PromisifyAll(obj)

	// Instance methods and statics of the class were adapted.
	require.True(t, store.Prototype().HasOwn("getAsync"))
	require.True(t, store.Prototype().HasOwn("putAsync"))
	require.True(t, store.HasOwn("connectAsync"))

	// A plain utility func is adapted but never recursed into.
	assert.True(t, obj.HasOwn("plainAsync"))
	assert.Equal(t, []string{"constructor"}, plain.Prototype().OwnNames())

	inst := NewObject(store.Prototype())

	assert.Equal(t, "value", awaitValue(t, inst.Invoke("getAsync")))
	assert.Equal(t, "connected", awaitValue(t, store.Invoke("connectAsync")))
}

func TestPromisifyAll_NestedClassRecursion(t *testing.T) {
	cursor := NewFunc("Cursor", nil)
	cursor.Prototype().Set("fetch", echoMethod("fetch", "row"))
	cursor.Prototype().Set("close", echoMethod("close", "closed"))

	pool := NewFunc("Pool", nil)
	pool.Prototype().Set("acquire", echoMethod("acquire", "conn"))

	outer := NewFunc("Outer", nil)
	outer.Prototype().Set("open", echoMethod("open", "opened"))
	outer.Prototype().Set("Cursor", cursor)
	outer.Set("Pool", pool)

	obj := NewObject(nil)
	obj.Set("Outer", outer)

	PromisifyAll(obj)

	require.True(t, outer.Prototype().HasOwn("openAsync"))

	// Constructors reachable through another constructor's capability set or
	// statics get their own members adapted too.
	require.True(t, cursor.Prototype().HasOwn("fetchAsync"))
	require.True(t, cursor.Prototype().HasOwn("closeAsync"))
	require.True(t, pool.Prototype().HasOwn("acquireAsync"))

	inst := NewObject(cursor.Prototype())

	assert.Equal(t, "row", awaitValue(t, inst.Invoke("fetchAsync")))
}

func TestPromisifyAll_ClassRecursionIdempotent(t *testing.T) {
	store := NewFunc("Store", nil)
	store.Prototype().Set("get", echoMethod("get", "value"))
	store.Prototype().Set("put", echoMethod("put", "stored"))

	obj := NewObject(nil)
	obj.Set("Store", store)

	PromisifyAll(obj)

	names := store.Prototype().OwnNames()

	PromisifyAll(obj)

	assert.Equal(t, names, store.Prototype().OwnNames())
}

func TestPromisifyAll_OverrideAfterConversion(t *testing.T) {
	base := NewFunc("Base", nil)
	base.Prototype().Set("fetch", echoMethod("fetch", "base"))
	base.Prototype().Set("close", echoMethod("close", "closed"))

	obj := NewObject(nil)
	obj.Set("Base", base)

	PromisifyAll(obj)

	require.True(t, base.Prototype().HasOwn("fetchAsync"))

	// The subclass overrides fetch after the conversion already happened.
	sub := NewFunc("Sub", nil)
	sub.Inherit(base)
	sub.Prototype().Set("fetch", echoMethod("fetch", "sub"))

	inst := NewObject(sub.Prototype())

	// The inherited adapter must dispatch to the override, not to the func
	// captured at installation time.
	assert.Equal(t, "sub", awaitValue(t, inst.Invoke("fetchAsync")))

	// Instances of the base class are unaffected.
	baseInst := NewObject(base.Prototype())
	assert.Equal(t, "base", awaitValue(t, baseInst.Invoke("fetchAsync")))
}

func TestPromisifyAll_StopsAtRoots(t *testing.T) {
	ObjectRoot.Set("builtin", echoMethod("builtin", "root"))
	defer ObjectRoot.Delete("builtin")

	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))

	PromisifyAll(obj)

	assert.True(t, obj.HasOwn("readAsync"))
	assert.False(t, obj.HasOwn("builtinAsync"))
	assert.False(t, ObjectRoot.HasOwn("builtinAsync"))
}

func TestInheritedDataKeys(t *testing.T) {
	base := NewObject(nil)
	base.Set("a", 1)
	base.Set("b", 2)

	derived := NewObject(base)
	derived.Set("c", 3)
	derived.Set("a", 4)
	derived.SetAccessor("b", func(receiver *Object) Value { return nil }, nil)

	// Closest link wins and the accessor on the derived object shadows the
	// data property of the same name on the base link.
	assert.Equal(t, []string{"c", "a"}, inheritedDataKeys(derived))
}

func TestInheritedDataKeys_EnumerationFailure(t *testing.T) {
	base := NewObject(nil)
	base.Set("a", 1)
	base.SetOwnNamesFunc(func() []string {
		panic("enumeration refused")
	})

	derived := NewObject(base)
	derived.Set("b", 2)

	// The failing link aborts the walk, keeping what was collected so far.
	assert.Equal(t, []string{"b"}, inheritedDataKeys(derived))
}

func TestIsClass(t *testing.T) {
	plain := NewFunc("plain", nil)
	assert.False(t, isClass(plain), "a fresh func only carries the constructor marker")

	withMethod := NewFunc("WithMethod", nil)
	withMethod.Prototype().Set("m", NewFunc("m", nil))
	assert.True(t, isClass(withMethod))

	viaSource := NewFunc("ViaSource", nil)
	viaSource.SetSource("function ViaSource() { this.count = 0 }")
	assert.False(t, isClass(viaSource), "a this-assignment alone is not enough")

	viaSource.Set("helper", NewFunc("helper", nil))
	assert.True(t, isClass(viaSource), "this-assignment plus a static makes a class")

	assert.False(t, isClass(42))
	assert.False(t, isClass(nil))

	exotic := NewFunc("Exotic", nil)
	exotic.Prototype().SetOwnNamesFunc(func() []string {
		panic("no introspection")
	})
	assert.False(t, isClass(exotic), "inspection failures degrade to not-class-like")
}

func TestHasPromisified(t *testing.T) {
	obj := NewObject(nil)
	obj.Set("read", echoMethod("read", "data"))

	assert.False(t, hasPromisified(obj, "read", "Async"))

	obj.Set("readAsync", echoMethod("readAsync", "plain sibling"))
	assert.False(t, hasPromisified(obj, "read", "Async"), "an unmarked sibling does not count")

	marked := Promisify(echoMethod("read", "data"))
	obj.Set("readAsync", marked)
	assert.True(t, hasPromisified(obj, "read", "Async"))
}
