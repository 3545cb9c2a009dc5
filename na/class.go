package na

import (
	"context"
	"fmt"
)

// ProgressMode selects how a class's contexts behave when their completion
// queues are empty and Progress is asked to wait: NoBlock returns Timeout
// immediately (the caller owns the polling loop, e.g. because it multiplexes
// several contexts itself), Blocking lets Progress actually sleep up to the
// requested budget.
type ProgressMode int

const (
	Blocking ProgressMode = iota
	NoBlock
)

// Class is an initialized transport instance bound to exactly one plugin
// (§3). All public NA operations are methods on Class or on a value it
// produced (Context, Address, MemHandle); there is no free-floating package
// state besides the plugin registry and the operation id counter.
type Class struct {
	info         Info
	plugin       ClassPlugin
	progressMode ProgressMode
	selfAddr     *Address
}

// Initialize selects a plugin for infoString per §4.1's selection rule,
// constructs and initializes it, and returns the bound Class. listen
// requests that the plugin accept incoming connections.
func Initialize(infoString string, listen bool) (*Class, error) {
	return InitializeMode(infoString, listen, Blocking)
}

// InitializeMode is Initialize with an explicit ProgressMode; NoBlock is for
// callers that drive several contexts from one thread and never want a
// single context's Progress call to sleep past an empty queue.
func InitializeMode(infoString string, listen bool, mode ProgressMode) (*Class, error) {
	info, status := ParseInfo(infoString)
	if !status.OK() {
		return nil, fmt.Errorf("na: %w", status)
	}

	desc, err := selectPlugin(info)
	if err != nil {
		return nil, err
	}

	plugin := desc.NewFunc()
	opts := InitOptions{Listen: listen, Host: info.Host}
	if err := plugin.Initialize(context.Background(), opts); err != nil {
		return nil, fmt.Errorf("na: initializing plugin %q: %w", desc.Name, err)
	}

	cls := &Class{info: info, plugin: plugin, progressMode: mode}

	if self, err := plugin.AddrSelf(); err == nil {
		cls.selfAddr = self
	}

	return cls, nil
}

// Finalize tears down the plugin instance. It does not touch the process
// registry; see Cleanup for that.
func (cls *Class) Finalize() error {
	return cls.plugin.Finalize()
}

// Protocol reports the protocol token this class was initialized with.
func (cls *Class) Protocol() string { return cls.info.Protocol }

// ProgressMode reports the mode contexts derived from this class use.
func (cls *Class) ProgressMode() ProgressMode { return cls.progressMode }

// AddrSelf returns this class's own address, the one a peer would use to
// address this process.
func (cls *Class) AddrSelf() (*Address, error) {
	if cls.selfAddr != nil {
		return cls.selfAddr.Dup(), nil
	}
	return cls.plugin.AddrSelf()
}

// AddrLookup resolves name, an address string without any leading
// "class+" prefix (callers use StripClassPrefix first if they carry one),
// asynchronously. cb is invoked from whatever goroutine the plugin completes
// the lookup on — not necessarily from inside a Progress call, since lookup
// has no associated Context (§4.3's documented departure from the
// operation/completion-queue pattern used everywhere else).
func (cls *Class) AddrLookup(ctx context.Context, name string, cb AddrLookupCallback) {
	cls.plugin.AddrLookup(ctx, StripClassPrefix(name), cb)
}

// AddrLookup2 is AddrLookup's synchronous counterpart (§4.3): it blocks the
// calling goroutine until resolution finishes rather than reporting through
// a callback. Not every plugin offers a blocking resolution path; one that
// doesn't gets a ProtocolError here instead of a silently unset address.
func (cls *Class) AddrLookup2(name string) (*Address, Status) {
	sp, ok := cls.plugin.(SyncAddrLookupPlugin)
	if !ok {
		return nil, ProtocolError
	}
	return sp.AddrLookup2(StripClassPrefix(name))
}

// AddrDup returns a new owning reference to addr's peer.
func (cls *Class) AddrDup(addr *Address) *Address { return addr.Dup() }

// AddrFree releases one owning reference to addr.
func (cls *Class) AddrFree(addr *Address) { addr.Free() }

// AddrSetRemove marks addr's peer as presumed dead.
func (cls *Class) AddrSetRemove(addr *Address) { addr.SetRemove() }

// AddrToString renders addr as "<class>+<plugin-rendering>", reattaching the
// class prefix the plugin itself never sees.
func (cls *Class) AddrToString(addr *Address) (string, error) {
	s, err := cls.plugin.AddrToString(addr)
	if err != nil {
		return "", err
	}
	return cls.info.Class + "+" + s, nil
}

// MsgMaxUnexpectedSize and MsgMaxExpectedSize report the plugin's maximum
// total message size for unexpected/expected sends, including the header
// bytes MsgUnexpectedHeaderSize/MsgExpectedHeaderSize reserve.
func (cls *Class) MsgMaxUnexpectedSize() uint64 { return cls.plugin.MsgMaxUnexpectedSize() }
func (cls *Class) MsgMaxExpectedSize() uint64   { return cls.plugin.MsgMaxExpectedSize() }

// MsgUnexpectedHeaderSize and MsgExpectedHeaderSize report how many leading
// bytes of a message buffer the plugin reserves for its own framing.
func (cls *Class) MsgUnexpectedHeaderSize() uint64 { return cls.plugin.MsgUnexpectedHeaderSize() }
func (cls *Class) MsgExpectedHeaderSize() uint64   { return cls.plugin.MsgExpectedHeaderSize() }

// MsgBufAlloc returns a buffer of size n sized for use as an unexpected or
// expected message payload, with room left for the plugin's header. Drivers
// without special alignment needs get a plain make([]byte, n) here; one that
// needs pinned or page-aligned memory would satisfy this itself via a
// MemPlugin-shaped allocator (not currently exercised by na/natcp).
func (cls *Class) MsgBufAlloc(n uint64) []byte { return make([]byte, n) }

// --- memory registration, delegated entirely to an optional MemPlugin ---

func (cls *Class) memPlugin() (MemPlugin, Status) {
	mp, ok := cls.plugin.(MemPlugin)
	if !ok {
		return nil, PermissionError
	}
	return mp, Success
}

func (cls *Class) MemHandleCreate(buf []byte) (MemHandle, Status) {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return MemHandle{}, st
	}
	return mp.MemHandleCreate(buf)
}

func (cls *Class) MemHandleFree(h MemHandle) Status {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return st
	}
	return mp.MemHandleFree(h)
}

func (cls *Class) MemRegister(h MemHandle) Status {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return st
	}
	return mp.MemRegister(h)
}

func (cls *Class) MemDeregister(h MemHandle) Status {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return st
	}
	return mp.MemDeregister(h)
}

func (cls *Class) MemPublish(h MemHandle) Status {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return st
	}
	return mp.MemPublish(h)
}

func (cls *Class) MemUnpublish(h MemHandle) Status {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return st
	}
	return mp.MemUnpublish(h)
}

func (cls *Class) MemSerialize(h MemHandle) ([]byte, Status) {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return nil, st
	}
	return mp.MemSerialize(h)
}

func (cls *Class) MemDeserialize(buf []byte) (MemHandle, Status) {
	mp, st := cls.memPlugin()
	if !st.OK() {
		return MemHandle{}, st
	}
	return mp.MemDeserialize(buf)
}

// --- address serialization, delegated entirely to an optional AddrSerializerPlugin ---

func (cls *Class) addrSerializer() (AddrSerializerPlugin, Status) {
	sp, ok := cls.plugin.(AddrSerializerPlugin)
	if !ok {
		return nil, PermissionError
	}
	return sp, Success
}

// AddrSerialize renders addr to a portable byte form the same or a later
// process can hand to AddrDeserialize to recover an equivalent address.
func (cls *Class) AddrSerialize(addr *Address) ([]byte, Status) {
	sp, st := cls.addrSerializer()
	if !st.OK() {
		return nil, st
	}
	return sp.AddrSerialize(addr)
}

// AddrDeserialize recovers an Address from bytes produced by AddrSerialize.
func (cls *Class) AddrDeserialize(buf []byte) (*Address, Status) {
	sp, st := cls.addrSerializer()
	if !st.OK() {
		return nil, st
	}
	return sp.AddrDeserialize(buf)
}

// OpCreate allocates a fresh operation id for a caller that wants to reserve
// the id before issuing the send/receive that will use it.
func (cls *Class) OpCreate() OpID { return newOpID() }

// Cleanup runs the plugin's optional static Cleanup hook directly, for a
// caller holding a single Class rather than driving the whole process
// teardown (the package-level Cleanup iterates every registered plugin).
func (cls *Class) Cleanup() {
	if oc, ok := cls.plugin.(OptionalClassPlugin); ok {
		oc.Cleanup()
	}
}
