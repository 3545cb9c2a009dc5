package hg

import (
	"github.com/mercury-hpc/mercury-go/na"
)

// ForwardCallback receives the handle and the final completion status once
// a forward (and, unless NoResponse was set, its matching response) has
// finished.
type ForwardCallback func(h *Handle, status na.Status)

type forwardCallState struct {
	h          *Handle
	cb         ForwardCallback
	noResponse bool
}

// Forward serialises the request header into h's reserved input prefix,
// submits the unexpected send, and — unless FlagNoResponse is set —
// pre-posts the matching expected receive for the response (§4.4). cb fires
// once with the final status: the send's own failure, or (when a response
// is expected) the decoded response status after any more-data fetch
// completes.
func (h *Handle) Forward(cb ForwardCallback, flags Flag, payloadSize int) (na.OpID, na.Status) {
	if err := h.validateCreated(); err != nil {
		return 0, na.InvalidParam
	}
	if uint64(payloadSize) > h.class.inputEagerSize() {
		return 0, na.InvalidParam
	}

	noResponse := flags&FlagNoResponse != 0
	h.setNoResponse(noResponse)
	h.cookie = newCookie()

	hdr := requestHeader{rpcID: h.rpcID, flags: flags, targetCtx: h.targetCtx, cookie: h.cookie}
	unexpectedHdrSize := h.class.na.MsgUnexpectedHeaderSize()
	if err := hdr.encode(sliceFrom(h.rawIn, unexpectedHdrSize)); err != nil {
		return 0, na.SizeError
	}

	wireLen := unexpectedHdrSize + requestHeaderSize + uint64(payloadSize)
	if wireLen > uint64(len(h.rawIn)) {
		return 0, na.SizeError
	}

	state := &forwardCallState{h: h, cb: cb, noResponse: noResponse}

	if !noResponse {
		if _, st := h.ctx.na.ExpectedRecvPost(h.addr, h.cookie, h.rawOut, responseCompletion, state); !st.OK() {
			return 0, st
		}
	}

	op, st := h.ctx.na.UnexpectedSend(h.addr, h.rawIn[:wireLen], sendCompletion, state)
	if !st.OK() {
		return op, st
	}
	h.opID = op
	h.state = StatePosted
	return op, na.Success
}

func sendCompletion(arg any, status na.Status) int {
	st := arg.(*forwardCallState)
	if status != na.Success {
		st.h.state = StateCompleted
		st.cb(st.h, status)
		return 0
	}
	if st.noResponse {
		st.h.state = StateCompleted
		st.cb(st.h, na.Success)
	}
	// response expected: the matching ExpectedRecvPost completion
	// (responseCompletion) fires the user callback instead.
	return 0
}

func responseCompletion(arg any, status na.Status) int {
	st := arg.(*forwardCallState)
	h := st.h

	finish := func(s na.Status) {
		h.moreDataDone = nil
		h.state = StateCompleted
		st.cb(h, s)
	}

	if status != na.Success {
		finish(status)
		return 0
	}

	resp, err := decodeResponseHeader(h.rawOut)
	if err != nil {
		finish(na.ProtocolError)
		return 0
	}
	if resp.cookie != h.cookie {
		finish(na.ProtocolError)
		return 0
	}

	if resp.flags&FlagMoreData != 0 && h.class.moreDataAcquire != nil {
		h.moreDataDone = finish
		h.moreDataAcquired = true
		h.class.moreDataAcquire(h, finish)
		return 0
	}

	finish(na.Status(resp.status))
	return 0
}
