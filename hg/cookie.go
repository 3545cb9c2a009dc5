package hg

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// newCookie hands out a token used to match a response to the forward that
// produced it: the first 8 bytes of a fresh random UUID, the same span/cookie
// idiom used throughout the retrieved example pack, rather than a sequence
// counter. A zero result (astronomically unlikely) is retried so the cookie
// stays usable as a "not yet assigned" sentinel elsewhere.
func newCookie() uint64 {
	for {
		id := uuid.New()
		if c := binary.BigEndian.Uint64(id[:8]); c != 0 {
			return c
		}
	}
}
