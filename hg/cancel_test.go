package hg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercury-hpc/mercury-go/na"
)

// cancelFabric backs cancelPlugin: unlike loopbackPlugin (hg/loopback_test.go),
// which resolves every send synchronously inside the call itself, ops posted
// here stay pending until Cancel is called against them or the next Progress
// call completes them, letting tests observe the cancel-before-completion
// window property 13 requires.
type cancelFabric struct {
	mu      sync.Mutex
	nextOp  uint64
	pending map[na.OpID]cancelPending
}

type cancelPending struct {
	ctx *na.Context
	cb  na.CompletionCallback
	arg any
}

func newCancelFabric() *cancelFabric {
	return &cancelFabric{pending: make(map[na.OpID]cancelPending)}
}

func init() {
	na.RegisterPlugin(na.Descriptor{
		Name:    "cancelfake",
		NewFunc: func() na.ClassPlugin { return &cancelPlugin{fabric: newCancelFabric()} },
	})
}

// cancelPlugin is a na.ClassPlugin used only by this package's Cancel test.
type cancelPlugin struct {
	fabric *cancelFabric
}

func (p *cancelPlugin) CheckProtocol(protocol string) bool { return protocol == "cancelfake" }

func (p *cancelPlugin) Initialize(ctx context.Context, opts na.InitOptions) error { return nil }
func (p *cancelPlugin) Finalize() error                                         { return nil }

func (p *cancelPlugin) ContextCreate(ctx *na.Context) (na.PluginContext, error) { return nil, nil }

func (p *cancelPlugin) post(ctx *na.Context, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	p.fabric.mu.Lock()
	p.fabric.nextOp++
	op := na.OpID(p.fabric.nextOp)
	p.fabric.pending[op] = cancelPending{ctx: ctx, cb: cb, arg: arg}
	p.fabric.mu.Unlock()
	return op, na.Success
}

func (p *cancelPlugin) UnexpectedSend(ctx *na.Context, dest *na.Address, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	return p.post(ctx, cb, arg)
}

func (p *cancelPlugin) UnexpectedRecvPost(ctx *na.Context, buf []byte, cb na.UnexpectedRecvCallback) (na.OpID, na.Status) {
	return 0, na.Success
}

func (p *cancelPlugin) ExpectedSend(ctx *na.Context, dest *na.Address, tag uint64, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	return p.post(ctx, cb, arg)
}

func (p *cancelPlugin) ExpectedRecvPost(ctx *na.Context, src *na.Address, tag uint64, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	return p.post(ctx, cb, arg)
}

// Cancel is the one method this fixture exists to exercise: it looks the op
// up, and if it's still pending, delivers its completion with status
// Canceled right away rather than leaving it stranded.
func (p *cancelPlugin) Cancel(ctx *na.Context, op na.OpID) na.Status {
	p.fabric.mu.Lock()
	pending, ok := p.fabric.pending[op]
	delete(p.fabric.pending, op)
	p.fabric.mu.Unlock()
	if !ok {
		return na.Success
	}
	pending.ctx.CompletionAdd(pending.cb, pending.arg, na.Canceled, nil)
	return na.Success
}

// Progress completes every op still pending with status Success.
func (p *cancelPlugin) Progress(ctx *na.Context, pctx na.PluginContext, budget float64) na.Status {
	p.fabric.mu.Lock()
	pending := p.fabric.pending
	p.fabric.pending = make(map[na.OpID]cancelPending)
	p.fabric.mu.Unlock()
	if len(pending) == 0 {
		return na.Timeout
	}
	for _, op := range pending {
		op.ctx.CompletionAdd(op.cb, op.arg, na.Success, nil)
	}
	return na.Success
}

func (p *cancelPlugin) AddrLookup(ctx context.Context, name string, cb na.AddrLookupCallback) {
	cb(na.NewTestAddress(nil), na.Success)
}
func (p *cancelPlugin) AddrSelf() (*na.Address, error) { return na.NewTestAddress(nil), nil }
func (p *cancelPlugin) AddrToString(addr *na.Address) (string, error) {
	return "cancelfake", nil
}

func (p *cancelPlugin) MsgMaxUnexpectedSize() uint64    { return 4096 }
func (p *cancelPlugin) MsgMaxExpectedSize() uint64      { return 4096 }
func (p *cancelPlugin) MsgUnexpectedHeaderSize() uint64 { return 0 }
func (p *cancelPlugin) MsgExpectedHeaderSize() uint64   { return 0 }

// TestHandle_cancelForward exercises property 13: cancelling a forward
// before its completion yields a Canceled completion, and a subsequent
// forward on the same (reset) handle succeeds.
func TestHandle_cancelForward(t *testing.T) {
	naCls, err := na.InitializeMode("cancelfake+cancelfake://", false, na.Blocking)
	require.NoError(t, err)

	cls := NewClass(naCls)
	ctx, status := cls.NewContext(na.ContextOptions{})
	require.True(t, status.OK())

	addr := na.NewTestAddress(nil)
	handle, status := ctx.Create(addr, echoRPCID)
	require.True(t, status.OK())

	payload := []byte("cancel me")
	copy(handle.GetInput(), payload)

	var gotStatus na.Status
	done := make(chan struct{})
	_, status = handle.Forward(func(h *Handle, s na.Status) {
		gotStatus = s
		close(done)
	}, FlagNoResponse, len(payload))
	require.True(t, status.OK())
	require.Equal(t, StatePosted, handle.State())

	require.True(t, handle.Cancel().OK())

	ctx.NAContext().Trigger(1, 2000, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forward callback never fired after cancel")
	}
	assert.Equal(t, na.Canceled, gotStatus)
	assert.Equal(t, StateCompleted, handle.State())

	require.True(t, handle.Reset(addr, echoRPCID).OK())
	assert.Equal(t, StateCreated, handle.State())

	// the reset handle forwards again, this time running to completion
	// rather than being canceled.
	copy(handle.GetInput(), payload)
	var secondStatus na.Status
	secondDone := make(chan struct{})
	_, status = handle.Forward(func(h *Handle, s na.Status) {
		secondStatus = s
		close(secondDone)
	}, FlagNoResponse, len(payload))
	require.True(t, status.OK())

	ctx.NAContext().Progress(0)
	ctx.NAContext().Trigger(1, 2000, nil)
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second forward never completed")
	}
	assert.True(t, secondStatus.OK())
}
