// Package hg implements the Mercury core (HG-Core): the RPC handle state
// machine and message framing layered on top of na. It owns registration of
// RPC identifiers, creation/reset/reuse of handles, forwarding and
// responding, and the eager/more-data threshold — everything a caller needs
// to issue and serve RPCs without touching an na.Class directly.
package hg

import (
	"encoding/binary"
	"fmt"
)

// Flag bits carried in the request header.
type Flag uint8

const (
	// FlagMoreData marks a request or response whose payload did not fit the
	// eager buffer; the receiver must run the more-data acquire callback.
	FlagMoreData Flag = 1 << iota
	// FlagNoResponse marks a request the server must not respond to; calling
	// Respond on such a handle is illegal.
	FlagNoResponse
)

// requestHeaderSize is the wire size of a request header: 8-byte rpc id,
// 1-byte flags, 1-byte target context id, 8-byte cookie, with 6 bytes of
// padding to keep the payload that follows 8-byte aligned.
const requestHeaderSize = 24

// responseHeaderSize is the wire size of a response header: 8-byte rpc id,
// 1-byte flags, 4-byte status, 8-byte cookie, with 3 bytes of padding. It
// carries no target context id.
const responseHeaderSize = 24

// RequestHeaderSize reports the stable wire size of a request header, so
// upper layers sizing their own buffers never have to hardcode it.
func RequestHeaderSize() uint64 { return requestHeaderSize }

// ResponseHeaderSize reports the stable wire size of a response header.
func ResponseHeaderSize() uint64 { return responseHeaderSize }

// requestHeader is the framing the core prepends to every forward.
type requestHeader struct {
	rpcID     uint64
	flags     Flag
	targetCtx uint8
	cookie    uint64
}

func (h requestHeader) encode(buf []byte) error {
	if len(buf) < requestHeaderSize {
		return fmt.Errorf("hg: request header buffer too small: have %d want %d", len(buf), requestHeaderSize)
	}
	binary.BigEndian.PutUint64(buf[0:8], h.rpcID)
	buf[8] = byte(h.flags)
	buf[9] = h.targetCtx
	binary.BigEndian.PutUint64(buf[16:24], h.cookie)
	return nil
}

func decodeRequestHeader(buf []byte) (requestHeader, error) {
	if len(buf) < requestHeaderSize {
		return requestHeader{}, fmt.Errorf("hg: request header buffer too small: have %d want %d", len(buf), requestHeaderSize)
	}
	return requestHeader{
		rpcID:     binary.BigEndian.Uint64(buf[0:8]),
		flags:     Flag(buf[8]),
		targetCtx: buf[9],
		cookie:    binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// responseHeader carries requestHeader's rpc id, flags and cookie plus the
// server's return status; the target context id is not echoed back.
type responseHeader struct {
	rpcID  uint64
	flags  Flag
	cookie uint64
	status int32
}

func (h responseHeader) encode(buf []byte) error {
	if len(buf) < responseHeaderSize {
		return fmt.Errorf("hg: response header buffer too small: have %d want %d", len(buf), responseHeaderSize)
	}
	binary.BigEndian.PutUint64(buf[0:8], h.rpcID)
	buf[8] = byte(h.flags)
	binary.BigEndian.PutUint64(buf[16:24], h.cookie)
	binary.BigEndian.PutUint32(buf[8+1:8+1+4], uint32(h.status))
	return nil
}

func decodeResponseHeader(buf []byte) (responseHeader, error) {
	if len(buf) < responseHeaderSize {
		return responseHeader{}, fmt.Errorf("hg: response header buffer too small: have %d want %d", len(buf), responseHeaderSize)
	}
	return responseHeader{
		rpcID:  binary.BigEndian.Uint64(buf[0:8]),
		flags:  Flag(buf[8]),
		cookie: binary.BigEndian.Uint64(buf[16:24]),
		status: int32(binary.BigEndian.Uint32(buf[8+1 : 8+1+4])),
	}, nil
}
