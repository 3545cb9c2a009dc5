package na

// UnexpectedSend submits buf to dest as an unexpected message: the peer has
// not pre-posted a matching receive for it, so the plugin's header must
// carry enough addressing information for the peer to match it against
// whatever receive slot it eventually posts (§4.3).
func (c *Context) UnexpectedSend(dest *Address, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return c.owner.plugin.UnexpectedSend(c, dest, buf, cb, arg)
}

// UnexpectedRecvPost pre-posts a receive slot for the next unexpected
// message to arrive on this context, from any source.
func (c *Context) UnexpectedRecvPost(buf []byte, cb UnexpectedRecvCallback) (OpID, Status) {
	return c.owner.plugin.UnexpectedRecvPost(c, buf, cb)
}

// ExpectedSend submits buf to dest as an expected message, matched at the
// peer by tag against a receive the peer already posted.
func (c *Context) ExpectedSend(dest *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return c.owner.plugin.ExpectedSend(c, dest, tag, buf, cb, arg)
}

// ExpectedRecvPost pre-posts a receive slot matched by tag against src.
func (c *Context) ExpectedRecvPost(src *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return c.owner.plugin.ExpectedRecvPost(c, src, tag, buf, cb, arg)
}

// Cancel requests cancellation of op. Per the ClassPlugin.Cancel contract,
// a completion record with status Canceled is still guaranteed, delivered
// no later than the next Progress call.
func (c *Context) Cancel(op OpID) Status {
	return c.owner.plugin.Cancel(c, op)
}
