package hg

import (
	"context"
	"sync"

	"github.com/mercury-hpc/mercury-go/na"
)

// loopbackFabric is a tiny in-process "network" used only by this package's
// tests: it lets two na.Class/Context pairs exchange unexpected and expected
// messages without any real socket, so hg's forward/respond/post plumbing
// can be exercised end to end.
type loopbackFabric struct {
	mu       sync.Mutex
	byHost   map[string]*na.Context
	unexpPos map[*na.Context][]*unexpSlot
	unexpMsg map[*na.Context][]*unexpMsg
	expected map[*na.Context]map[uint64]*expSlot
}

type unexpSlot struct {
	buf []byte
	cb  na.UnexpectedRecvCallback
}

type unexpMsg struct {
	buf    []byte
	src    *na.Address
	status na.Status
}

type expSlot struct {
	buf []byte
	cb  na.CompletionCallback
	arg any
}

var sharedFabric = newLoopbackFabric()

func init() {
	na.RegisterPlugin(na.Descriptor{
		Name:    "loop",
		NewFunc: func() na.ClassPlugin { return &loopbackPlugin{fabric: sharedFabric} },
	})
}

func newLoopbackFabric() *loopbackFabric {
	return &loopbackFabric{
		byHost:   make(map[string]*na.Context),
		unexpPos: make(map[*na.Context][]*unexpSlot),
		unexpMsg: make(map[*na.Context][]*unexpMsg),
		expected: make(map[*na.Context]map[uint64]*expSlot),
	}
}

func (f *loopbackFabric) register(host string, ctx *na.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHost[host] = ctx
}

func (f *loopbackFabric) lookup(host string) (*na.Context, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx, ok := f.byHost[host]
	return ctx, ok
}

func (f *loopbackFabric) postUnexpected(target *na.Context, buf []byte, cb na.UnexpectedRecvCallback) {
	f.mu.Lock()
	if msgs := f.unexpMsg[target]; len(msgs) > 0 {
		m := msgs[0]
		f.unexpMsg[target] = msgs[1:]
		f.mu.Unlock()
		n := copy(buf, m.buf)
		cb(nil, m.src, n, m.status)
		return
	}
	f.unexpPos[target] = append(f.unexpPos[target], &unexpSlot{buf: buf, cb: cb})
	f.mu.Unlock()
}

func (f *loopbackFabric) sendUnexpected(target *na.Context, src *na.Address, buf []byte) {
	f.mu.Lock()
	if slots := f.unexpPos[target]; len(slots) > 0 {
		s := slots[0]
		f.unexpPos[target] = slots[1:]
		f.mu.Unlock()
		n := copy(s.buf, buf)
		s.cb(nil, src, n, na.Success)
		return
	}
	f.unexpMsg[target] = append(f.unexpMsg[target], &unexpMsg{buf: append([]byte(nil), buf...), src: src, status: na.Success})
	f.mu.Unlock()
}

func (f *loopbackFabric) postExpected(target *na.Context, tag uint64, buf []byte, cb na.CompletionCallback, arg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.expected[target]
	if !ok {
		m = make(map[uint64]*expSlot)
		f.expected[target] = m
	}
	m[tag] = &expSlot{buf: buf, cb: cb, arg: arg}
}

func (f *loopbackFabric) sendExpected(target *na.Context, tag uint64, buf []byte) (matched bool) {
	f.mu.Lock()
	m := f.expected[target]
	var slot *expSlot
	if m != nil {
		slot = m[tag]
		delete(m, tag)
	}
	f.mu.Unlock()
	if slot == nil {
		return false
	}
	copy(slot.buf, buf)
	slot.cb(slot.arg, na.Success)
	return true
}

// loopbackPlugin is a na.ClassPlugin backed by a shared loopbackFabric.
type loopbackPlugin struct {
	fabric *loopbackFabric
	host   string
}

func (p *loopbackPlugin) CheckProtocol(protocol string) bool { return protocol == "loop" }

func (p *loopbackPlugin) Initialize(ctx context.Context, opts na.InitOptions) error {
	p.host = opts.Host
	return nil
}
func (p *loopbackPlugin) Finalize() error { return nil }

func (p *loopbackPlugin) ContextCreate(ctx *na.Context) (na.PluginContext, error) {
	if p.host != "" {
		p.fabric.register(p.host, ctx)
	}
	return nil, nil
}

func (p *loopbackPlugin) UnexpectedSend(ctx *na.Context, dest *na.Address, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	target := dest.Peer().(*na.Context)
	self, _ := p.AddrSelf()
	p.fabric.sendUnexpected(target, self, buf)
	ctx.CompletionAdd(cb, arg, na.Success, nil)
	return 0, na.Success
}

func (p *loopbackPlugin) UnexpectedRecvPost(ctx *na.Context, buf []byte, cb na.UnexpectedRecvCallback) (na.OpID, na.Status) {
	p.fabric.postUnexpected(ctx, buf, func(_ any, src *na.Address, n int, status na.Status) {
		ctx.CompletionAdd(func(any, na.Status) int {
			cb(nil, src, n, status)
			return 0
		}, nil, status, nil)
	})
	return 0, na.Success
}

func (p *loopbackPlugin) ExpectedSend(ctx *na.Context, dest *na.Address, tag uint64, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	target := dest.Peer().(*na.Context)
	matched := p.fabric.sendExpected(target, tag, buf)
	status := na.Success
	if !matched {
		status = na.NoMatch
	}
	ctx.CompletionAdd(cb, arg, status, nil)
	return 0, na.Success
}

func (p *loopbackPlugin) ExpectedRecvPost(ctx *na.Context, src *na.Address, tag uint64, buf []byte, cb na.CompletionCallback, arg any) (na.OpID, na.Status) {
	p.fabric.postExpected(ctx, tag, buf, func(a any, status na.Status) int {
		ctx.CompletionAdd(cb, a, status, nil)
		return 0
	}, arg)
	return 0, na.Success
}

func (p *loopbackPlugin) Cancel(ctx *na.Context, op na.OpID) na.Status { return na.Success }

func (p *loopbackPlugin) Progress(ctx *na.Context, pctx na.PluginContext, budget float64) na.Status {
	return na.Timeout
}

func (p *loopbackPlugin) AddrLookup(ctx context.Context, name string, cb na.AddrLookupCallback) {
	target, ok := p.fabric.lookup(name)
	if !ok {
		cb(nil, na.NoMatch)
		return
	}
	cb(na.NewTestAddress(target), na.Success)
}

func (p *loopbackPlugin) AddrSelf() (*na.Address, error) {
	target, ok := p.fabric.lookup(p.host)
	if !ok {
		return na.NewTestAddress(nil), nil
	}
	return na.NewTestAddress(target), nil
}

func (p *loopbackPlugin) AddrToString(addr *na.Address) (string, error) { return p.host, nil }

func (p *loopbackPlugin) MsgMaxUnexpectedSize() uint64    { return 4096 }
func (p *loopbackPlugin) MsgMaxExpectedSize() uint64      { return 4096 }
func (p *loopbackPlugin) MsgUnexpectedHeaderSize() uint64 { return 0 }
func (p *loopbackPlugin) MsgExpectedHeaderSize() uint64   { return 0 }
