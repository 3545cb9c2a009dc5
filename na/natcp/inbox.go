package natcp

import (
	"sync"

	"github.com/mercury-hpc/mercury-go/na"
)

// inbox matches arriving frames against posted receive slots, the same
// "whichever shows up second completes the match" pattern hg's loopback test
// fixture uses, now driven by real frames off a socket instead of a direct
// function call.
type inbox struct {
	mu sync.Mutex

	unexpSlots   []*unexpSlot
	unexpPending []*unexpMsg

	expSlots   map[uint64]*expSlot
	expPending map[uint64][]byte
}

type unexpSlot struct {
	buf  []byte
	done func(src *na.Address, n int, status na.Status)
}

type unexpMsg struct {
	src     *na.Address
	payload []byte
}

type expSlot struct {
	buf  []byte
	done func(status na.Status)
}

func newInbox() *inbox {
	return &inbox{
		expSlots:   make(map[uint64]*expSlot),
		expPending: make(map[uint64][]byte),
	}
}

func (ib *inbox) postUnexpected(buf []byte, done func(src *na.Address, n int, status na.Status)) {
	ib.mu.Lock()
	if len(ib.unexpPending) > 0 {
		m := ib.unexpPending[0]
		ib.unexpPending = ib.unexpPending[1:]
		ib.mu.Unlock()
		n := copy(buf, m.payload)
		done(m.src, n, na.Success)
		return
	}
	ib.unexpSlots = append(ib.unexpSlots, &unexpSlot{buf: buf, done: done})
	ib.mu.Unlock()
}

func (ib *inbox) deliverUnexpected(src *na.Address, payload []byte) {
	ib.mu.Lock()
	if len(ib.unexpSlots) > 0 {
		s := ib.unexpSlots[0]
		ib.unexpSlots = ib.unexpSlots[1:]
		ib.mu.Unlock()
		n := copy(s.buf, payload)
		s.done(src, n, na.Success)
		return
	}
	ib.unexpPending = append(ib.unexpPending, &unexpMsg{src: src, payload: payload})
	ib.mu.Unlock()
}

func (ib *inbox) postExpected(tag uint64, buf []byte, done func(status na.Status)) {
	ib.mu.Lock()
	if payload, ok := ib.expPending[tag]; ok {
		delete(ib.expPending, tag)
		ib.mu.Unlock()
		copy(buf, payload)
		done(na.Success)
		return
	}
	ib.expSlots[tag] = &expSlot{buf: buf, done: done}
	ib.mu.Unlock()
}

func (ib *inbox) deliverExpected(tag uint64, payload []byte) {
	ib.mu.Lock()
	if s, ok := ib.expSlots[tag]; ok {
		delete(ib.expSlots, tag)
		ib.mu.Unlock()
		copy(s.buf, payload)
		s.done(na.Success)
		return
	}
	ib.expPending[tag] = payload
	ib.mu.Unlock()
}
