package hg

import (
	"github.com/mercury-hpc/mercury-go/na"
)

// RespondCallback receives the handle and the send completion status for a
// response.
type RespondCallback func(h *Handle, status na.Status)

type respondCallState struct {
	h  *Handle
	cb RespondCallback
}

// Respond serialises the response header into h's reserved output prefix
// and sends an expected reply. Illegal on a handle whose request carried
// FlagNoResponse.
func (h *Handle) Respond(cb RespondCallback, flags Flag, payloadSize int) (na.OpID, na.Status) {
	if h.noResponse {
		return 0, na.InvalidParam
	}
	if uint64(payloadSize) > h.class.outputEagerSize() {
		return 0, na.InvalidParam
	}
	return h.sendResponse(cb, flags, payloadSize, na.Success)
}

// respondError is used internally by Post's dispatch loop to send an
// empty response carrying status, so the client's completion still fires:
// NoMatch when a request's rpc id has no registered server callback (§7),
// ProtocolError when the server callback returns an error, and the failing
// status when a more-data acquire does not succeed.
func (h *Handle) respondError(status na.Status) {
	h.sendResponse(nil, 0, 0, status)
}

func (h *Handle) sendResponse(cb RespondCallback, flags Flag, payloadSize int, status na.Status) (na.OpID, na.Status) {
	hdr := responseHeader{rpcID: h.rpcID, flags: flags, cookie: h.cookie, status: int32(status)}
	expectedHdrSize := h.class.na.MsgExpectedHeaderSize()
	if err := hdr.encode(sliceFrom(h.rawOut, expectedHdrSize)); err != nil {
		return 0, na.SizeError
	}

	wireLen := expectedHdrSize + responseHeaderSize + uint64(payloadSize)
	if wireLen > uint64(len(h.rawOut)) {
		return 0, na.SizeError
	}

	state := &respondCallState{h: h, cb: cb}
	op, st := h.ctx.na.ExpectedSend(h.addr, h.cookie, h.rawOut[:wireLen], respondCompletion, state)
	if !st.OK() {
		return op, st
	}
	h.opID = op
	return op, na.Success
}

func respondCompletion(arg any, status na.Status) int {
	st := arg.(*respondCallState)
	if st.cb != nil {
		st.cb(st.h, status)
	}
	return 0
}
