// Package bluebird provides JavaScript-style promises together with
// adapters that convert funcs following the error-first completion callback
// convention into funcs returning a promise.
//
// Promisify adapts a single func. PromisifyAll walks the prototype chain of
// a dynamic object, adapts every eligible callback-style func reachable on
// it and installs the adapted counterpart next to the original under a name
// suffix, recursing into constructor-style values so their instance methods
// and statics get adapted too.
package bluebird
