package hg

import (
	"github.com/mercury-hpc/mercury-go/na"
)

// HandleCreateHook lets an upper layer attach per-handle user state (via
// Handle.SetUserData) before the server callback sees an incoming handle
// (§4.5).
type HandleCreateHook func(h *Handle)

// SetHandleCreateHook installs hook, replacing any previously installed one.
func (c *Context) SetHandleCreateHook(hook HandleCreateHook) { c.handleCreateHook = hook }

// Post asks the plugin to post requestCount unexpected-receive slots. On
// every completion the core extracts the rpc id from the decoded header,
// looks up the registered server callback, builds an incoming handle
// (running the handle-create hook first, if set), invokes the callback,
// and — if repost is true — posts a fresh slot to replace the one just
// consumed (§4.5).
func (c *Context) Post(requestCount int, repost bool) na.Status {
	for i := 0; i < requestCount; i++ {
		if st := c.postOne(repost); !st.OK() {
			return st
		}
	}
	return na.Success
}

func (c *Context) postOne(repost bool) na.Status {
	cls := c.class
	total := cls.na.MsgUnexpectedHeaderSize() + requestHeaderSize + cls.inputEagerSize()
	buf := cls.na.MsgBufAlloc(total)

	_, st := c.na.UnexpectedRecvPost(buf, func(_ any, src *na.Address, n int, status na.Status) {
		c.dispatch(buf, n, src, status)
		if repost {
			c.postOne(repost)
		}
	})
	return st
}

func (c *Context) dispatch(buf []byte, n int, src *na.Address, status na.Status) {
	cls := c.class
	if status != na.Success {
		return
	}

	hdrSize := cls.na.MsgUnexpectedHeaderSize()
	reqHdr, err := decodeRequestHeader(sliceFrom(buf, hdrSize))
	if err != nil {
		return
	}

	payloadLen := n - int(hdrSize+requestHeaderSize)
	if payloadLen < 0 {
		payloadLen = 0
	}

	h := &Handle{
		class:     cls,
		ctx:       c,
		addr:      src,
		rpcID:     reqHdr.rpcID,
		targetCtx: reqHdr.targetCtx,
		cookie:    reqHdr.cookie,
		state:     StateCompleted,
		incoming:  true,
		rawIn:     buf,
		inLen:     payloadLen,
	}
	h.refs.Store(1)
	h.setNoResponse(reqHdr.flags&FlagNoResponse != 0)

	outTotal := cls.na.MsgExpectedHeaderSize() + responseHeaderSize + cls.outputEagerSize()
	h.rawOut = cls.na.MsgBufAlloc(outTotal)

	if c.handleCreateHook != nil {
		c.handleCreateHook(h)
	}

	dispatchFn := func() {
		serverCB, lookupErr := cls.lookupServerCallback(reqHdr.rpcID)
		if lookupErr != nil {
			if !h.noResponse {
				h.respondError(na.NoMatch)
			}
			return
		}
		if cbErr := serverCB(h); cbErr != nil && !h.noResponse {
			h.respondError(na.ProtocolError)
		}
	}

	if reqHdr.flags&FlagMoreData != 0 && cls.moreDataAcquire != nil {
		h.moreDataAcquired = true
		h.class.moreDataAcquire(h, func(status na.Status) {
			if !status.OK() {
				if !h.noResponse {
					h.respondError(status)
				}
				return
			}
			dispatchFn()
		})
		return
	}

	dispatchFn()
}
