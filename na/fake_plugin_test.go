package na

import (
	"context"
	"time"
)

// fakePlugin is a minimal ClassPlugin used by this package's own tests. It
// never actually moves bytes: Progress just sleeps out its budget and
// reports Timeout, since every test that needs a real completion pushes one
// directly via Context.CompletionAdd.
type fakePlugin struct {
	protocol     string
	progressCall func()
}

func (p *fakePlugin) CheckProtocol(protocol string) bool { return protocol == p.protocol }

func (p *fakePlugin) Initialize(ctx context.Context, opts InitOptions) error { return nil }
func (p *fakePlugin) Finalize() error                                       { return nil }

func (p *fakePlugin) ContextCreate(ctx *Context) (PluginContext, error) { return nil, nil }

func (p *fakePlugin) UnexpectedSend(ctx *Context, dest *Address, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return newOpID(), Success
}
func (p *fakePlugin) UnexpectedRecvPost(ctx *Context, buf []byte, cb UnexpectedRecvCallback) (OpID, Status) {
	return newOpID(), Success
}
func (p *fakePlugin) ExpectedSend(ctx *Context, dest *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return newOpID(), Success
}
func (p *fakePlugin) ExpectedRecvPost(ctx *Context, src *Address, tag uint64, buf []byte, cb CompletionCallback, arg any) (OpID, Status) {
	return newOpID(), Success
}

func (p *fakePlugin) Cancel(ctx *Context, op OpID) Status { return Success }

func (p *fakePlugin) Progress(ctx *Context, pctx PluginContext, budget float64) Status {
	if p.progressCall != nil {
		p.progressCall()
	}
	if budget > 0 {
		time.Sleep(time.Duration(budget * float64(time.Second)))
	}
	return Timeout
}

func (p *fakePlugin) AddrLookup(ctx context.Context, name string, cb AddrLookupCallback) {
	cb(newAddress(nil, name), Success)
}
func (p *fakePlugin) AddrSelf() (*Address, error) { return newAddress(nil, "self"), nil }
func (p *fakePlugin) AddrToString(addr *Address) (string, error) {
	return addr.Peer().(string), nil
}

func (p *fakePlugin) MsgMaxUnexpectedSize() uint64    { return 4096 }
func (p *fakePlugin) MsgMaxExpectedSize() uint64      { return 4096 }
func (p *fakePlugin) MsgUnexpectedHeaderSize() uint64 { return 16 }
func (p *fakePlugin) MsgExpectedHeaderSize() uint64   { return 16 }

func newFakeClass(protocol string) *Class {
	p := &fakePlugin{protocol: protocol}
	return &Class{info: Info{Protocol: protocol}, plugin: p, progressMode: Blocking}
}
