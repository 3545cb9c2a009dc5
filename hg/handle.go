package hg

import (
	"fmt"
	"sync/atomic"

	"github.com/mercury-hpc/mercury-go/na"
)

// HandleState is the handle lifecycle state machine from §4.4:
//
//	CREATED -- forward --> POSTED -- plugin-complete --> COMPLETED -- reset --> CREATED
//
// DESTROYED is terminal and only reachable once the refcount drops to zero.
type HandleState int

const (
	StateCreated HandleState = iota
	StatePosted
	StateCompleted
	StateDestroyed
)

func (s HandleState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePosted:
		return "posted"
	case StateCompleted:
		return "completed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Handle is a send/receive pair plus metadata bound to (class, context,
// peer address, rpc id, target context id): the eager input/output buffers
// a caller fills and reads, carried refcount, attached user data, and
// lifecycle state (§3, §4.4).
type Handle struct {
	class     *Class
	ctx       *Context
	addr      *na.Address
	rpcID     uint64
	targetCtx uint8
	cookie    uint64

	state HandleState
	refs  atomic.Int32

	rawIn  []byte
	rawOut []byte

	userData     any
	userDataFree func(any)

	noResponse bool
	incoming   bool // true for a handle the core built from an inbound request

	opID na.OpID

	moreDataDone     func(na.Status)
	moreDataAcquired bool

	// inLen is the actual payload length of a received request, as opposed
	// to the input buffer's full eager capacity; -1 means "not yet known",
	// i.e. this handle is still being filled in by the caller rather than
	// read from the wire.
	inLen int
}

// Create allocates a handle bound to (ctx, addr, id): eager input/output
// buffers sized to the plugin's unexpected/expected maxima, each with its
// header prefix reserved, refcount fixed at 1. An unknown id is not an
// error here, and Forward does not check it either: an id the server has
// not registered comes back as a response carrying NoMatch.
func (c *Context) Create(addr *na.Address, id uint64) (*Handle, na.Status) {
	cls := c.class
	h := &Handle{
		class: cls,
		ctx:   c,
		addr:  addr,
		rpcID: id,
		state: StateCreated,
		inLen: -1,
	}
	h.refs.Store(1)

	inTotal := cls.na.MsgUnexpectedHeaderSize() + requestHeaderSize + cls.inputEagerSize()
	outTotal := cls.na.MsgExpectedHeaderSize() + responseHeaderSize + cls.outputEagerSize()
	h.rawIn = cls.na.MsgBufAlloc(inTotal)
	h.rawOut = cls.na.MsgBufAlloc(outTotal)

	return h, na.Success
}

// Destroy decrements the handle's refcount, freeing it once it reaches
// zero. Idempotent on a nil handle.
func (h *Handle) Destroy() na.Status {
	if h == nil {
		return na.Success
	}
	if h.refs.Add(-1) > 0 {
		return na.Success
	}
	if h.moreDataAcquired && h.class.moreDataRelease != nil {
		h.class.moreDataRelease(h)
	}
	if h.userDataFree != nil {
		h.userDataFree(h.userData)
	}
	h.userData, h.userDataFree = nil, nil
	h.state = StateDestroyed
	h.addr = nil
	h.rawIn, h.rawOut = nil, nil
	return na.Success
}

// RefIncr increments the handle's refcount for caller-controlled sharing.
func (h *Handle) RefIncr() { h.refs.Add(1) }

// RefGet reports the current refcount.
func (h *Handle) RefGet() int32 { return h.refs.Load() }

// Reset is legal only when no operation is in flight (state is Created or
// Completed, never Posted); it mutates the peer address and rpc id without
// releasing the eager buffers, the pooling primitive the state machine
// exists to support.
func (h *Handle) Reset(addr *na.Address, id uint64) na.Status {
	if h.state == StatePosted {
		return na.InvalidParam
	}
	h.addr = addr
	h.rpcID = id
	h.cookie = 0
	h.noResponse = false
	h.inLen = -1
	h.state = StateCreated
	return na.Success
}

// Cancel requests cancellation of the handle's in-flight operation,
// delegating to the plugin via the stored operation id (§4.4). The plugin
// still guarantees a completion record, with status Canceled, no later than
// its next Progress call; the handle only reaches StateCompleted (and
// becomes eligible for Reset) once that completion is triggered.
func (h *Handle) Cancel() na.Status { return h.ctx.na.Cancel(h.opID) }

// SetTargetID records the destination context id so the server routes the
// request to the correct sibling context.
func (h *Handle) SetTargetID(id uint8) { h.targetCtx = id }

// TargetID returns the handle's destination context id.
func (h *Handle) TargetID() uint8 { return h.targetCtx }

// State reports the handle's current lifecycle state.
func (h *Handle) State() HandleState { return h.state }

// Addr returns the handle's peer address, borrowed (not a new reference).
func (h *Handle) Addr() *na.Address { return h.addr }

// RPCID returns the handle's rpc identifier.
func (h *Handle) RPCID() uint64 { return h.rpcID }

// SetUserData attaches opaque user data to the handle, freed on destroy.
func (h *Handle) SetUserData(data any, free func(any)) {
	h.userData = data
	h.userDataFree = free
}

// UserData returns the handle's attached user data, if any.
func (h *Handle) UserData() any { return h.userData }

// RPCData returns the per-rpc-id user data attached via Class.RegisterData,
// retrievable from inside a server callback.
func (h *Handle) RPCData() any { return h.class.rpc.data(h.rpcID) }

// GetInput returns the slice of the input buffer visible to the caller,
// i.e. with both the plugin's unexpected header and the request header
// skipped (§4.4's buffer exposure rule). For a handle built from an
// incoming request it is trimmed to the payload length actually received,
// not the full eager capacity.
func (h *Handle) GetInput() []byte {
	off := h.class.na.MsgUnexpectedHeaderSize() + requestHeaderSize
	buf := sliceFrom(h.rawIn, off)
	if h.inLen < 0 || h.inLen >= len(buf) {
		return buf
	}
	return buf[:h.inLen]
}

// GetOutput returns the slice of the output buffer visible to the caller,
// symmetric to GetInput using the plugin's expected header and the
// response header.
func (h *Handle) GetOutput() []byte {
	off := h.class.na.MsgExpectedHeaderSize() + responseHeaderSize
	return sliceFrom(h.rawOut, off)
}

func sliceFrom(buf []byte, off uint64) []byte {
	if off >= uint64(len(buf)) {
		return nil
	}
	return buf[off:]
}

func (h *Handle) setNoResponse(v bool) { h.noResponse = v }

func (h *Handle) validateCreated() error {
	if h.state != StateCreated {
		return fmt.Errorf("hg: handle in state %s, want %s: %w", h.state, StateCreated, na.InvalidParam)
	}
	return nil
}
