package na

import "sync/atomic"

// Address is an opaque peer reference. It is created by lookup, by Self, or
// by Dup, and must be freed exactly once by the party that receives it as a
// new owning reference; Free is idempotent on a nil Address.
//
// Duplication is a refcount bump, not a deep copy (original_source's
// NA_Addr_dup is O(1); see SPEC_FULL.md §12), so Dup/Free are cheap enough to use
// freely whenever a handle's lifetime might outlive the address it was
// created with.
type Address struct {
	class   *Class
	peer    any // plugin-private peer representation
	refs    atomic.Int32
	removed atomic.Bool
}

func newAddress(cls *Class, peer any) *Address {
	a := &Address{class: cls, peer: peer}
	a.refs.Store(1)
	return a
}

// NewAddress mints a fresh, single-reference Address wrapping peer, the
// plugin-private representation a driver's AddrLookup/AddrSelf resolved.
// It exists for ClassPlugin implementations outside this package (na/natcp,
// in particular) that have no other way to produce an *Address: the type's
// own fields are unexported, so a driver cannot build one by hand.
func NewAddress(peer any) *Address {
	return newAddress(nil, peer)
}

// Peer exposes the plugin-private representation so a ClassPlugin
// implementation can recover its own address type from an *Address handed
// back to it by Class/Context calls.
func (a *Address) Peer() any {
	if a == nil {
		return nil
	}
	return a.peer
}

// Dup returns a new owning reference to the same peer, incrementing the
// refcount. The caller must Free it independently of the original.
func (a *Address) Dup() *Address {
	if a == nil {
		return nil
	}
	a.refs.Add(1)
	return a
}

// Free releases one owning reference. It is idempotent on a nil Address and
// safe to call exactly once per reference obtained from lookup, Self, or Dup.
func (a *Address) Free() {
	if a == nil {
		return
	}
	a.refs.Add(-1)
}

// SetRemove marks the peer as presumed dead so the plugin can drop any
// cached connection state for it. It does not free the Address itself.
func (a *Address) SetRemove() {
	if a == nil {
		return
	}
	a.removed.Store(true)
}

// Removed reports whether SetRemove was called on this address.
func (a *Address) Removed() bool {
	return a != nil && a.removed.Load()
}
