package na

import (
	"sync"
	"sync/atomic"
	"time"
)

// completionQueueCapacity is the fixed capacity of the bounded lock-free
// completion queue (§3). Overflow spills into the mutex-protected backfill
// list.
const completionQueueCapacity = 1024

// progress coordinator bit layout: bit 31 is the "someone is inside
// plugin.Progress" lock, the low 31 bits count threads currently inside
// Progress (whether waiting or holding the lock).
const (
	progressLockBit    uint32 = 1 << 31
	progressWaiterMask uint32 = progressLockBit - 1
)

// completionRecord is an entry pushed by a plugin when an operation
// finishes. The completion queue does not own it; it lives for exactly one
// trip from CompletionAdd to Trigger.
type completionRecord struct {
	cb         CompletionCallback
	arg        any
	status     Status
	pluginDone func()
}

// Context is a polling domain: one progress/trigger loop runs on a context,
// though progress and trigger may each be called concurrently from many
// goroutines (§5). It owns the completion queue, the progress coordinator,
// and the trigger wait machinery described in §4.2.
type Context struct {
	owner     *Class
	pluginCtx PluginContext
	id        uint8
	hasID     bool

	queue        chan *completionRecord
	backfillMu   sync.Mutex
	backfill     []*completionRecord
	overflows    atomic.Uint64
	triggerTotal atomic.Uint64

	triggerWaiters   atomic.Int32
	completionSignal *broadcaster

	progressWord   atomic.Uint32
	progressSignal *broadcaster

	// inPlugin instruments testable property 5 (only one thread executes
	// inside plugin.Progress per context at any instant).
	inPlugin atomic.Int32

	userDataMu   sync.Mutex
	userData     any
	userDataFree func(any)

	destroyed atomic.Bool
}

// ContextOptions configures a new Context.
type ContextOptions struct {
	// ID, when HasID is true, is a 0-255 routing id upper layers use to
	// address one of several sibling contexts of the same class (§3).
	ID    uint8
	HasID bool
}

// NewContext creates a context bound to cls, delegating plugin-private
// per-context setup to the plugin's ContextCreate hook.
func (cls *Class) NewContext(opts ContextOptions) (*Context, Status) {
	ctx := &Context{
		owner:            cls,
		id:               opts.ID,
		hasID:            opts.HasID,
		queue:            make(chan *completionRecord, completionQueueCapacity),
		completionSignal: newBroadcaster(),
		progressSignal:   newBroadcaster(),
	}
	pctx, err := cls.plugin.ContextCreate(ctx)
	if err != nil {
		return nil, ProtocolError
	}
	ctx.pluginCtx = pctx
	return ctx, Success
}

// ID reports the context's routing id and whether one was assigned.
func (c *Context) ID() (id uint8, ok bool) { return c.id, c.hasID }

// Class returns the owning class. Contexts hold a non-owning back-reference;
// classes keep no reverse list of their contexts (§9).
func (c *Context) Class() *Class { return c.owner }

// SetUserData attaches an opaque user data pointer with a free hook invoked
// on Destroy.
func (c *Context) SetUserData(data any, free func(any)) {
	c.userDataMu.Lock()
	defer c.userDataMu.Unlock()
	c.userData = data
	c.userDataFree = free
}

// UserData returns the attached user data, or nil if none was set.
func (c *Context) UserData() any {
	c.userDataMu.Lock()
	defer c.userDataMu.Unlock()
	return c.userData
}

// Destroy releases the context. It refuses to proceed while a completion is
// still undelivered (scenario D, §8): the caller must trigger everything
// first.
func (c *Context) Destroy() Status {
	if c.destroyed.Swap(true) {
		return Success
	}
	if c.queueLen() > 0 {
		c.destroyed.Store(false)
		return ProtocolError
	}
	c.userDataMu.Lock()
	if c.userDataFree != nil {
		c.userDataFree(c.userData)
		c.userData, c.userDataFree = nil, nil
	}
	c.userDataMu.Unlock()
	return Success
}

func (c *Context) queueLen() int {
	n := len(c.queue)
	c.backfillMu.Lock()
	n += len(c.backfill)
	c.backfillMu.Unlock()
	return n
}

// CompletionAdd is the sole entry point plugins use to report a finished
// operation (§4.2 enqueue contract). A single attempt is made to push into
// the bounded queue; on overflow the record goes to the backfill list. If
// any thread is currently sleeping in Trigger, it is woken.
func (c *Context) CompletionAdd(cb CompletionCallback, arg any, status Status, pluginDone func()) {
	rec := &completionRecord{cb: cb, arg: arg, status: status, pluginDone: pluginDone}
	select {
	case c.queue <- rec:
	default:
		c.backfillMu.Lock()
		c.backfill = append(c.backfill, rec)
		c.backfillMu.Unlock()
		c.overflows.Add(1)
	}
	if c.triggerWaiters.Load() > 0 {
		c.completionSignal.signal()
	}
}

func (c *Context) dequeueOne() (*completionRecord, bool) {
	select {
	case rec := <-c.queue:
		return rec, true
	default:
	}
	c.backfillMu.Lock()
	defer c.backfillMu.Unlock()
	if len(c.backfill) == 0 {
		return nil, false
	}
	rec := c.backfill[0]
	c.backfill = c.backfill[1:]
	return rec, true
}

// tryAcquireProgressLock attempts to set the lock bit without disturbing the
// waiter count, returning true if this goroutine now holds it.
func tryAcquireProgressLock(word *atomic.Uint32) bool {
	for {
		cur := word.Load()
		if cur&progressLockBit != 0 {
			return false
		}
		if word.CompareAndSwap(cur, cur|progressLockBit) {
			return true
		}
	}
}

func addProgressWaiter(word *atomic.Uint32, delta int32) {
	for {
		cur := word.Load()
		waiters := cur & progressWaiterMask
		next := (uint32(int32(waiters)+delta) & progressWaiterMask) | (cur & progressLockBit)
		if word.CompareAndSwap(cur, next) {
			return
		}
	}
}

// releaseProgressLock is the fused "clear lock bit, decrement waiter count"
// CAS described in §4.2 step 6: no waiter is missed because both changes
// land in the same compare-and-swap.
func releaseProgressLock(word *atomic.Uint32) (remaining uint32) {
	for {
		cur := word.Load()
		waiters := cur & progressWaiterMask
		next := waiters - 1 // clears the lock bit implicitly: no progressLockBit in next
		if word.CompareAndSwap(cur, next) {
			return next & progressWaiterMask
		}
	}
}

// Progress drives the plugin for up to timeoutMs milliseconds, following
// the discipline in §4.2: only one goroutine at a time actually calls into
// the plugin, but any number may call Progress concurrently.
func (c *Context) Progress(timeoutMs int) Status {
	budget := time.Duration(timeoutMs) * time.Millisecond
	if c.owner.progressMode == NoBlock {
		budget = 0
	}
	deadline := time.Now().Add(budget)

	addProgressWaiter(&c.progressWord, 1)
	for {
		if tryAcquireProgressLock(&c.progressWord) {
			break
		}
		remaining := time.Until(deadline)
		if budget <= 0 || remaining <= 0 {
			addProgressWaiter(&c.progressWord, -1)
			return Timeout
		}
		if !c.progressSignal.wait(remaining) {
			addProgressWaiter(&c.progressWord, -1)
			return Timeout
		}
		// woken: re-measure and retry acquiring the lock (step 2 again)
	}

	defer func() {
		if remaining := releaseProgressLock(&c.progressWord); remaining > 0 {
			c.progressSignal.signal()
		}
	}()

	if c.queueLen() > 0 {
		return Success
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	c.inPlugin.Add(1)
	status := c.owner.plugin.Progress(c, c.pluginCtx, remaining.Seconds())
	c.inPlugin.Add(-1)
	return status
}

// progressConcurrency reports how many goroutines are currently inside the
// plugin's Progress call; used by tests verifying property 5 (never > 1).
func (c *Context) progressConcurrency() int32 { return c.inPlugin.Load() }

// PollTryWait reports whether it looks safe to park on the transport's
// underlying descriptor without missing work: progress mode must be
// blocking, both completion queues empty, and (if the plugin exposes the
// hint) no pending unexpected receive that would be lost by sleeping. It is
// advisory only.
func (c *Context) PollTryWait() bool {
	if c.owner.progressMode != Blocking {
		return false
	}
	if c.queueLen() > 0 {
		return false
	}
	if hinter, ok := c.owner.plugin.(interface {
		HasPendingUnexpected(*Context) bool
	}); ok {
		return !hinter.HasPendingUnexpected(c)
	}
	return true
}

// Trigger dequeues up to maxCount completion records and invokes their user
// then plugin callbacks (§4.2 trigger contract). If results is non-nil, each
// user callback's integer return is captured at the corresponding index.
// timeoutMs is, deliberately, re-applied in full on every sleep iteration
// rather than decremented (§9 open question, preserved as documented quirk).
func (c *Context) Trigger(maxCount int, timeoutMs int, results []int) (actual int, status Status) {
	triggeredThisCall := false
	for {
		for actual < maxCount {
			rec, ok := c.dequeueOne()
			if !ok {
				break
			}
			ret := rec.cb(rec.arg, rec.status)
			if results != nil && actual < len(results) {
				results[actual] = ret
			}
			if rec.pluginDone != nil {
				rec.pluginDone()
			}
			c.triggerTotal.Add(1)
			actual++
			triggeredThisCall = true
		}
		if actual >= maxCount {
			return actual, Success
		}
		if triggeredThisCall {
			return actual, Success
		}
		if timeoutMs <= 0 {
			return actual, Timeout
		}
		c.triggerWaiters.Add(1)
		woke := c.completionSignal.wait(time.Duration(timeoutMs) * time.Millisecond)
		c.triggerWaiters.Add(-1)
		if !woke {
			return actual, Timeout
		}
		// woken: loop back and drain whatever arrived
	}
}
