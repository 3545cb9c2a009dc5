// Package na implements the Network Abstraction transport layer: a pluggable,
// polling-driven engine that owns a completion queue, coordinates multi-thread
// progress on a single context, and dispatches completed operations to user
// callbacks.
//
// A process initializes exactly one [Class] per transport it uses, derives one
// or more [Context] from it, and drives each context with a progress/trigger
// loop running on any goroutine. Plugins (see [ClassPlugin] and friends) never
// touch a context's queues directly; they report completion through
// [Context.CompletionAdd].
package na
