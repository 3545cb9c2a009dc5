package hg

import (
	"fmt"

	"github.com/mercury-hpc/mercury-go/na"
)

// MoreDataAcquireCallback is invoked when an incoming request or response
// carries the MoreData flag: the payload did not fit the eager buffer and
// the upper layer must fetch the remainder out-of-band (typically an RDMA
// bulk transfer keyed off the handle). done must be invoked exactly once,
// synchronously or later, to unblock the handle's completion.
type MoreDataAcquireCallback func(h *Handle, done func(status na.Status))

// Class wraps an na.Class with the RPC registry and more-data hooks that
// turn a bare transport into something that can serve and issue RPCs.
// Class is immutable after construction except for the registry itself and
// the more-data hooks, mirroring na.Class's own "immutable except attached
// data" contract (§3).
type Class struct {
	na  *na.Class
	rpc *registry

	moreDataAcquire MoreDataAcquireCallback
	moreDataRelease func(*Handle)
}

// NewClass wraps an already-initialized na.Class. The caller retains
// ownership of naClass and must Finalize it after this Class is done with
// it (Class.Finalize does that for the common case of single ownership).
func NewClass(naClass *na.Class) *Class {
	return &Class{na: naClass, rpc: newRegistry()}
}

// NAClass exposes the underlying transport class for callers that need to
// drop down to raw NA operations (address lookup, mem registration).
func (c *Class) NAClass() *na.Class { return c.na }

// Finalize tears down the underlying na.Class.
func (c *Class) Finalize() error { return c.na.Finalize() }

// Register inserts or replaces the server callback for id.
func (c *Class) Register(id uint64, cb ServerCallback) { c.rpc.Register(id, cb) }

// Deregister removes id from the registry. The caller must ensure no
// in-flight handle still references id (§5).
func (c *Class) Deregister(id uint64) { c.rpc.Deregister(id) }

// Registered reports whether id currently has a registered callback.
func (c *Class) Registered(id uint64) bool { return c.rpc.Registered(id) }

// RegisterData attaches per-id user data retrievable via Handle.RPCData.
func (c *Class) RegisterData(id uint64, data any, free func(any)) {
	c.rpc.RegisterData(id, data, free)
}

// SetMoreDataCallback installs the class-wide more-data acquire/release
// hooks used whenever a handle's header carries FlagMoreData (§4.4).
func (c *Class) SetMoreDataCallback(acquire MoreDataAcquireCallback, release func(*Handle)) {
	c.moreDataAcquire = acquire
	c.moreDataRelease = release
}

// inputEagerSize is class_get_input_eager_size: the payload budget left for
// the caller after the request header and the plugin's own unexpected
// header are reserved out of the plugin's maximum unexpected message size.
func (c *Class) inputEagerSize() uint64 {
	return saturatingSub(c.na.MsgMaxUnexpectedSize(), requestHeaderSize+c.na.MsgUnexpectedHeaderSize())
}

// outputEagerSize is class_get_output_eager_size, the response-side analog.
func (c *Class) outputEagerSize() uint64 {
	return saturatingSub(c.na.MsgMaxExpectedSize(), responseHeaderSize+c.na.MsgExpectedHeaderSize())
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// InputEagerSize and OutputEagerSize are the exported forms of
// class_get_input_eager_size / class_get_output_eager_size (§4.4).
func (c *Class) InputEagerSize() uint64  { return c.inputEagerSize() }
func (c *Class) OutputEagerSize() uint64 { return c.outputEagerSize() }

func (c *Class) lookupServerCallback(id uint64) (ServerCallback, error) {
	e, ok := c.rpc.lookup(id)
	if !ok || e.cb == nil {
		return nil, fmt.Errorf("hg: rpc id %d not registered: %w", id, na.NoMatch)
	}
	return e.cb, nil
}
