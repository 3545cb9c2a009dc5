// Package natcp is the one concrete na.ClassPlugin driver shipped with this
// repository: a TCP transport, framed with a small length-prefixed header of
// its own, used to exercise NA/HG-Core end to end over real sockets in tests
// and by the demo daemon (SPEC_FULL.md §6.1 — supporting, not core).
package natcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// frameKind distinguishes an unexpected message from an expected (tagged)
// one on the wire, since both travel over the same connection.
type frameKind byte

const (
	frameUnexpected frameKind = iota
	frameExpected
)

// frameHeaderSize is kind(1) + tag(8) + length(4).
const frameHeaderSize = 13

// writeFrame writes one frame to conn: kind, tag (zero for unexpected),
// payload length, then payload. A single conn is written to by at most one
// goroutine at a time — callers hold the owning wireConn's mutex.
func writeFrame(conn net.Conn, kind frameKind, tag uint64, payload []byte) error {
	hdr := make([]byte, frameHeaderSize)
	hdr[0] = byte(kind)
	binary.BigEndian.PutUint64(hdr[1:9], tag)
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(payload)))

	if _, err := conn.Write(hdr); err != nil {
		return fmt.Errorf("natcp: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("natcp: write frame payload: %w", err)
	}
	return nil
}

// readFrame blocks until one full frame arrives on r.
func readFrame(r io.Reader) (kind frameKind, tag uint64, payload []byte, err error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, 0, nil, err
	}
	kind = frameKind(hdr[0])
	tag = binary.BigEndian.Uint64(hdr[1:9])
	length := binary.BigEndian.Uint32(hdr[9:13])

	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, 0, nil, err
		}
	}
	return kind, tag, payload, nil
}
