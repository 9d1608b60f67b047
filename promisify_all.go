package bluebird

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	identifierPattern     = regexp.MustCompile(`^[A-Za-z$_][A-Za-z$_0-9]*$`)
	thisAssignmentPattern = regexp.MustCompile(`this\s*\.\s*[A-Za-z$_][A-Za-z$_0-9]*\s*=`)
)

// DefaultSuffix is appended to the key of every func adapted by
// PromisifyAll unless overridden via PromisifyAllOptions.
const DefaultSuffix = "Async"

// FilterFunc decides whether the func bound to name on target gets adapted
// during bulk promisification. passesDefaultFilter carries the verdict of
// the default filter; the return value of a FilterFunc is authoritative.
type FilterFunc func(name string, fn Value, target Value, passesDefaultFilter bool) bool

// PromisifierFunc replaces the construction of adapted funcs during bulk
// promisification. It receives the original func and a thunk producing the
// default adapted func, and returns the func to install.
type PromisifierFunc func(fn *Func, defaultPromisifier func() *Func) *Func

// PromisifyAllOptions configure PromisifyAll.
type PromisifyAllOptions struct {
	// Context is accepted for API compatibility with Promisify but is not
	// forwarded into adapter construction: funcs adapted in bulk are always
	// bound to the receiver they are invoked through.
	Context Value

	// MultiArgs resolves promises with the ordered slice of all success
	// values passed to the completion callback instead of just the first.
	MultiArgs bool

	// Suffix is appended to each adapted key. It must be a valid
	// identifier. Defaults to DefaultSuffix.
	Suffix string

	// Filter optionally overrides the default eligibility verdict per key.
	Filter FilterFunc

	// Promisifier optionally replaces the construction of adapted funcs.
	Promisifier PromisifierFunc
}

func isIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func defaultFilter(name string) bool {
	return isIdentifier(name) &&
		!strings.HasPrefix(name, "_") &&
		name != "constructor"
}

func isExcludedRoot(o *Object) bool {
	return o == ObjectRoot || o == FunctionRoot || o == ArrayRoot
}

// inheritedDataKeys walks the prototype chain of obj and collects the names
// of all data properties reachable on it, closest link winning. The walk
// stops at the foundational roots. Accessor names shadow deeper data
// properties without ever becoming candidates themselves. A panicking
// enumeration hook aborts the walk, yielding the names collected so far.
func inheritedDataKeys(obj *Object) []string {
	visited := make(map[string]bool)
	ret := make([]string, 0)

	for link := obj; link != nil && !isExcludedRoot(link); link = link.proto {
		names, ok := ownNamesSafe(link)
		if !ok {
			return ret
		}

		for _, name := range names {
			if visited[name] {
				continue
			}
			visited[name] = true

			prop, ok := link.own(name)
			if ok && !prop.accessor() {
				ret = append(ret, name)
			}
		}
	}

	return ret
}

func ownNamesSafe(o *Object) (names []string, ok bool) {
	defer func() {
		if recover() != nil {
			names, ok = nil, false
		}
	}()

	return o.OwnNames(), true
}

// isClass reports whether v is a constructor-style func whose instance
// methods and statics deserve adaptation of their own, rather than a plain
// utility func. Any panic during inspection means "not a class".
func isClass(v Value) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	fn, ok := v.(*Func)
	if !ok {
		return false
	}

	var protoNames []string
	if fn.prototype != nil {
		protoNames = fn.prototype.OwnNames()
	}

	hasMethods := len(protoNames) > 1
	hasMethodsOtherThanConstructor := len(protoNames) > 0 &&
		!(len(protoNames) == 1 && protoNames[0] == "constructor")
	hasThisAssignmentAndStatics := thisAssignmentPattern.MatchString(fn.source) &&
		len(fn.OwnNames()) > 0

	return hasMethods || hasMethodsOtherThanConstructor || hasThisAssignmentAndStatics
}

// hasPromisified reports whether name+suffix already resolves to an adapted
// sibling on obj. An accessor at that name unconditionally counts as one.
func hasPromisified(obj *Object, name, suffix string) bool {
	for link := obj; link != nil; link = link.proto {
		prop, ok := link.own(name + suffix)
		if !ok {
			continue
		}

		if prop.accessor() {
			return true
		}

		return IsPromisified(prop.value)
	}

	return false
}

type methodPair struct {
	key string
	fn  *Func
}

func promisifiableMethods(obj *Object, suffix string, filter FilterFunc) []methodPair {
	keys := inheritedDataKeys(obj)
	ret := make([]methodPair, 0, len(keys))

	for _, key := range keys {
		value := obj.Get(key)

		fn, ok := value.(*Func)
		if !ok || fn.promisified || hasPromisified(obj, key, suffix) {
			continue
		}

		verdict := defaultFilter(key)
		if filter != nil {
			verdict = filter(key, value, obj, verdict)
		}

		if verdict {
			ret = append(ret, methodPair{key: key, fn: fn})
		}
	}

	return ret
}

func promisifyAllOn(obj *Object, opts PromisifyAllOptions) {
	for _, m := range promisifiableMethods(obj, opts.Suffix, opts.Filter) {
		m := m
		promisifiedKey := m.key + opts.Suffix

		makeDefault := func() *Func {
			return makePromisified(m.fn, promisifiedKey, dynamicThis, m.key, opts.MultiArgs)
		}

		var installed *Func
		if opts.Promisifier != nil {
			installed = opts.Promisifier(m.fn, makeDefault)
		} else {
			installed = makeDefault()
		}

		if installed == nil {
			continue
		}

		// Funcs installed by the bulk converter always carry the marker,
		// also when a custom promisifier built them.
		installed.promisified = true

		obj.Set(promisifiedKey, installed)
	}
}

// promisifyAllRecursive converts obj after first descending into every
// constructor-style value reachable on it, so instance methods and statics
// of nested constructors get adapted too.
func promisifyAllRecursive(obj *Object, opts PromisifyAllOptions) {
	for _, key := range inheritedDataKeys(obj) {
		value := obj.Get(key)

		if key == "constructor" || !isClass(value) {
			continue
		}

		// The caller-supplied Context is deliberately not forwarded here:
		// class members are bound to whatever receiver they are invoked
		// through.
		cls := value.(*Func)
		promisifyAllRecursive(cls.prototype, opts)
		promisifyAllRecursive(&cls.Object, opts)
	}

	promisifyAllOn(obj, opts)
}

// PromisifyAll adapts every eligible callback-style func reachable through
// the prototype chain of target, installing the adapted counterpart under
// the original key plus the configured suffix. Property values classified
// as constructors get their capability set and their statics adapted too,
// recursively, so constructors nested inside other constructors are
// converted as well. target is mutated in place and returned.
//
// PromisifyAll panics if target is neither an object nor a func, or if the
// suffix is not a valid identifier; no mutation has happened at that point.
// Repeated invocation with the same suffix is idempotent.
func PromisifyAll(target Value, options ...PromisifyAllOptions) Value {
	var opts PromisifyAllOptions
	if len(options) > 0 {
		opts = options[0]
	}

	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}

	obj := objectOf(target)
	if obj == nil {
		panic("the target of promisifyAll must be an object or a function")
	}

	if !isIdentifier(opts.Suffix) {
		panic(fmt.Sprintf("suffix %q must be a valid identifier", opts.Suffix))
	}

	promisifyAllRecursive(obj, opts)

	return target
}
