// Package event hosts the dispatch subpackage shared by the provider
// session event loop and the editor RPC layer: generic sync/async
// handler execution with panic recovery, used wherever a component
// needs to fan an occurrence out to multiple listeners without taking
// a direct dependency on them.
package event
