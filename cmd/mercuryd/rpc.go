package main

import (
	log "github.com/go-pkgz/lgr"

	"github.com/mercury-hpc/mercury-go/hg"
	"github.com/mercury-hpc/mercury-go/na"
)

// echoRPCID is the one demo RPC this daemon serves: it responds with
// whatever payload it was forwarded, the same role hg/loopback_test.go's
// inline echo callback plays for tests, here wired up for a real listener.
const echoRPCID = 1

// registerDemoRPCs installs the echo RPC and logs every forward/respond to
// trace, one line each, the wire-trace rotated log SPEC_FULL.md §11 calls
// for.
func registerDemoRPCs(cls *hg.Class, trace log.L) {
	cls.Register(echoRPCID, func(h *hg.Handle) error {
		in := h.GetInput()
		trace.Logf("[INFO] recv rpc=%d from=%v bytes=%d", h.RPCID(), h.Addr(), len(in))

		out := h.GetOutput()
		n := copy(out, in)

		_, status := h.Respond(func(rh *hg.Handle, status na.Status) {
			trace.Logf("[INFO] respond rpc=%d status=%v", rh.RPCID(), status)
			rh.Destroy()
		}, 0, n)
		if !status.OK() {
			trace.Logf("[WARN] respond rpc=%d failed to post: %v", h.RPCID(), status)
		}
		return nil
	})
}
