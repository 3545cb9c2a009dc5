package na

// MemHandle is an opaque plugin object representing a registered memory
// region used as a bulk transfer source or sink. Its lifecycle is entirely
// plugin-delegated: create, register, optionally publish/unpublish, then
// deregister and free.
type MemHandle struct {
	plugin any
}

// Plugin exposes the plugin-private representation, mirroring
// Address.Peer: a driver recovers its own handle type from a MemHandle
// passed back into its vtable methods.
func (h MemHandle) Plugin() any { return h.plugin }

// IsZero reports whether h is the zero value (no plugin object attached).
func (h MemHandle) IsZero() bool { return h.plugin == nil }
