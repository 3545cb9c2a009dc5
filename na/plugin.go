package na

import "context"

// ClassPlugin is the vtable a transport driver must satisfy to be usable as
// an NA class backend. Required methods have no default; optional methods
// live in separate interfaces (OptionalClassPlugin, MemPlugin and the others
// below) that a driver may leave unimplemented, checked with a type
// assertion at the call site, to mean "unsupported."
//
// Dispatch happens exactly once per public Class/Context call; hot paths
// (GetInput/GetOutput, the progress fast-path completion-queue check) read
// plain fields instead of going through this interface.
type ClassPlugin interface {
	// CheckProtocol reports whether this plugin drives the given protocol
	// token (the part of an info string after any "class+" prefix and
	// before "://").
	CheckProtocol(protocol string) bool

	// Initialize sets up plugin-private state for a new Class. listen
	// requests that the plugin accept incoming connections/messages.
	Initialize(ctx context.Context, opts InitOptions) error

	// Finalize tears down plugin-private state. Errors propagate verbatim.
	Finalize() error

	// ContextCreate sets up plugin-private per-context state; Class.NewContext
	// always calls it. A plugin that doesn't need per-context state returns
	// nil. There is no matching destroy hook.
	ContextCreate(ctx *Context) (PluginContext, error)

	// UnexpectedSend submits buf as an unexpected message to dest and
	// reports completion through ctx.CompletionAdd with the returned op id.
	UnexpectedSend(ctx *Context, dest *Address, buf []byte, cb CompletionCallback, arg any) (OpID, Status)
	// UnexpectedRecvPost pre-posts a receive slot for an unexpected
	// message. On completion the plugin must call cb with the decoded
	// source address and the number of bytes received.
	UnexpectedRecvPost(ctx *Context, buf []byte, cb UnexpectedRecvCallback) (OpID, Status)
	// ExpectedSend submits buf as an expected (reply) message to dest.
	ExpectedSend(ctx *Context, dest *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status)
	// ExpectedRecvPost pre-posts a receive slot matched by tag.
	ExpectedRecvPost(ctx *Context, src *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status)

	// Cancel requests cancellation of op. The plugin must still enqueue a
	// completion record for op, with status Canceled, no later than the
	// next Progress call; never synchronously.
	Cancel(ctx *Context, op OpID) Status

	// Progress drives plugin-internal I/O for up to budget. It returns
	// Success if at least one operation completed, Timeout otherwise.
	Progress(ctx *Context, pctx PluginContext, budget float64) Status

	// AddrLookup resolves name asynchronously; completion is reported via
	// cb with the resolved Address (or an error status).
	AddrLookup(ctx context.Context, name string, cb AddrLookupCallback)
	// AddrSelf returns this class's own address.
	AddrSelf() (*Address, error)
	// AddrToString renders addr the way the plugin's wire format does,
	// without any "class+" prefix (Class.AddrToString adds that).
	AddrToString(addr *Address) (string, error)

	// MsgMaxUnexpectedSize and MsgMaxExpectedSize report the plugin's
	// maximum total wire message size for unexpected/expected sends,
	// including whatever header bytes MsgUnexpectedHeaderSize /
	// MsgExpectedHeaderSize reserve at the front of it.
	MsgMaxUnexpectedSize() uint64
	MsgMaxExpectedSize() uint64
	// MsgUnexpectedHeaderSize and MsgExpectedHeaderSize report how many
	// bytes at the front of a message buffer the plugin reserves for its
	// own framing, before the caller's header/payload begins.
	MsgUnexpectedHeaderSize() uint64
	MsgExpectedHeaderSize() uint64
}

// OptionalClassPlugin groups vtable members the spec marks optional. A driver
// implements the subset it needs; Class falls back to documented defaults
// (§4.3) for anything left unimplemented, detected via a type assertion
// against this interface (or its single-method siblings below).
type OptionalClassPlugin interface {
	Cleanup()
}

// MemPlugin is the optional vtable for registered bulk-transfer memory
// regions. A driver without real RDMA-style registration may omit this
// entirely; Class then refuses MemHandle operations with NotSupported-shaped
// PermissionError.
type MemPlugin interface {
	MemHandleCreate(buf []byte) (MemHandle, Status)
	MemHandleFree(h MemHandle) Status
	MemRegister(h MemHandle) Status
	MemDeregister(h MemHandle) Status
	MemPublish(h MemHandle) Status
	MemUnpublish(h MemHandle) Status
	MemSerialize(h MemHandle) ([]byte, Status)
	MemDeserialize(buf []byte) (MemHandle, Status)
}

// SyncAddrLookupPlugin is the optional vtable backing Class.AddrLookup2, the
// blocking counterpart of the async AddrLookup (§4.3's addr_lookup2). A
// plugin that has no blocking resolution path simply doesn't implement this;
// Class.AddrLookup2 then reports ProtocolError rather than silently
// returning a zero address, the stricter of the two behaviors the spec
// allows (see DESIGN.md).
type SyncAddrLookupPlugin interface {
	AddrLookup2(name string) (*Address, Status)
}

// AddrSerializerPlugin is the optional vtable for rendering an Address to
// and from a portable byte form (§4.3's addr_serialize/addr_deserialize), the
// address-side counterpart of MemPlugin's MemSerialize/MemDeserialize. A
// driver without one refuses the operation with PermissionError, the same
// shape memPlugin's absence produces.
type AddrSerializerPlugin interface {
	AddrSerialize(addr *Address) ([]byte, Status)
	AddrDeserialize(buf []byte) (*Address, Status)
}

// PluginContext is opaque plugin-private per-context state, returned by
// ClassPlugin.ContextCreate and handed back unchanged on every subsequent
// call into the plugin for that context.
type PluginContext any

// InitOptions carries the arguments to ClassPlugin.Initialize.
type InitOptions struct {
	Listen bool
	Host   string
}

// CompletionCallback is invoked by the context's trigger loop once a
// plugin-reported completion for a send/receive operation is dequeued. Its
// integer return is the caller's own completion-handler result, threaded
// back out through Trigger's optional results slice (§4.2).
type CompletionCallback func(arg any, status Status) int

// UnexpectedRecvCallback additionally reports the decoded peer address and
// payload length, since an unexpected receive's source isn't known until
// the message arrives.
type UnexpectedRecvCallback func(arg any, src *Address, n int, status Status)

// AddrLookupCallback reports the outcome of an asynchronous AddrLookup.
type AddrLookupCallback func(addr *Address, status Status)
