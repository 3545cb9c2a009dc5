package hg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercury-hpc/mercury-go/na"
)

func TestRequestHeader_encodeDecodeRoundTrip(t *testing.T) {
	in := requestHeader{rpcID: 0xdeadbeef, flags: FlagMoreData, targetCtx: 7, cookie: 0x1234567890}
	buf := make([]byte, requestHeaderSize)
	require.NoError(t, in.encode(buf))

	out, err := decodeRequestHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRequestHeader_encodeTooSmall(t *testing.T) {
	var h requestHeader
	err := h.encode(make([]byte, requestHeaderSize-1))
	assert.Error(t, err)
}

func TestRequestHeader_decodeTooSmall(t *testing.T) {
	_, err := decodeRequestHeader(make([]byte, requestHeaderSize-1))
	assert.Error(t, err)
}

func TestResponseHeader_encodeDecodeRoundTrip(t *testing.T) {
	in := responseHeader{rpcID: 42, flags: FlagNoResponse, cookie: 99, status: int32(na.ProtocolError)}
	buf := make([]byte, responseHeaderSize)
	require.NoError(t, in.encode(buf))

	out, err := decodeResponseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestResponseHeader_fieldsDoNotOverlap(t *testing.T) {
	h := responseHeader{rpcID: 1, flags: 0, cookie: 2, status: -7}
	buf := make([]byte, responseHeaderSize)
	require.NoError(t, h.encode(buf))

	h.status = 123
	buf2 := make([]byte, responseHeaderSize)
	require.NoError(t, h.encode(buf2))

	// only the status bytes (index 9..13) should differ between the two encodings.
	for i := range buf {
		if i >= 9 && i < 13 {
			continue
		}
		assert.Equal(t, buf[i], buf2[i], "byte %d should be unaffected by status change", i)
	}
}

func TestResponseHeader_decodeTooSmall(t *testing.T) {
	_, err := decodeResponseHeader(make([]byte, responseHeaderSize-1))
	assert.Error(t, err)
}

func TestRequestHeaderSize_exported(t *testing.T) {
	assert.Equal(t, uint64(requestHeaderSize), RequestHeaderSize())
	assert.Equal(t, uint64(responseHeaderSize), ResponseHeaderSize())
}
