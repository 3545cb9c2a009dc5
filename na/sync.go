package na

import (
	"sync"
	"time"
)

// broadcaster is a channel-based, timeout-capable stand-in for a
// condition variable. sync.Cond has no timed wait, and na's progress and
// trigger contracts both need one (§4.2, §9: "may replace the bit layout
// with a cleaner primitive ... a mutex+condvar pair"). Closing a channel
// wakes every current waiter at once; swapping in a fresh channel after
// each signal avoids missing a waiter that arrives between signals.
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

// wait blocks until the next signal or until timeout elapses, whichever
// comes first. timeout <= 0 means "poll once, don't block."
func (b *broadcaster) wait(timeout time.Duration) (woke bool) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// signal wakes every goroutine currently in wait.
func (b *broadcaster) signal() {
	b.mu.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.mu.Unlock()
}
