package na

import "sync/atomic"

// OpID is the opaque token returned by the send and receive-post calls, and
// so by forward and respond; it is the sole legal subject of Cancel.
type OpID uint64

var opIDSeq atomic.Uint64

// newOpID hands out a process-wide unique, non-zero operation id. Plugins
// that manage their own op-id scheme internally are free to ignore this and
// return their own values from the vtable calls that produce an OpID.
func newOpID() OpID {
	return OpID(opIDSeq.Add(1))
}
