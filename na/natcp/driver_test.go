package natcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercury-hpc/mercury-go/na"
)

func newServerClientPair(t *testing.T) (server, client *na.Class, serverCtx, clientCtx *na.Context) {
	t.Helper()

	server, err := na.InitializeMode("tcp+tcp://127.0.0.1:0", true, na.Blocking)
	require.NoError(t, err)
	client, err = na.InitializeMode("tcp+tcp://", false, na.Blocking)
	require.NoError(t, err)

	serverCtx, status := server.NewContext(na.ContextOptions{})
	require.True(t, status.OK())
	clientCtx, status = client.NewContext(na.ContextOptions{})
	require.True(t, status.OK())

	return server, client, serverCtx, clientCtx
}

func lookupAddr(t *testing.T, client *na.Class, name string) *na.Address {
	t.Helper()
	var addr *na.Address
	var status na.Status
	done := make(chan struct{})
	client.AddrLookup(context.Background(), name, func(a *na.Address, s na.Status) {
		addr, status = a, s
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("addr lookup timed out")
	}
	require.True(t, status.OK())
	return addr
}

func TestDriver_unexpectedSendRecvRoundTrip(t *testing.T) {
	server, client, serverCtx, clientCtx := newServerClientPair(t)
	defer func() { _ = server.Finalize() }()
	defer func() { _ = client.Finalize() }()

	self, err := server.AddrSelf()
	require.NoError(t, err)
	selfStr, err := server.AddrToString(self)
	require.NoError(t, err)
	// strip the "tcp+" class prefix AddrToString adds back, AddrLookup wants
	// the bare plugin-facing form.
	peer := na.StripClassPrefix(selfStr)
	addr := lookupAddr(t, client, peer)

	recvBuf := make([]byte, 64)
	var gotN int
	var gotStatus na.Status
	recvDone := make(chan struct{})
	_, status := serverCtx.UnexpectedRecvPost(recvBuf, func(_ any, _ *na.Address, n int, s na.Status) {
		gotN, gotStatus = n, s
		close(recvDone)
	})
	require.True(t, status.OK())

	payload := []byte("hello over tcp")
	sendDone := make(chan struct{})
	var sendStatus na.Status
	_, status = clientCtx.UnexpectedSend(addr, payload, func(_ any, s na.Status) int {
		sendStatus = s
		close(sendDone)
		return 0
	}, nil)
	require.True(t, status.OK())

	clientCtx.Trigger(1, 2000, nil)
	<-sendDone
	assert.True(t, sendStatus.OK())

	serverCtx.Trigger(1, 2000, nil)
	<-recvDone
	assert.True(t, gotStatus.OK())
	assert.Equal(t, payload, recvBuf[:gotN])
}

// TestDriver_addrSerializeRoundTrip exercises property 7 from the acceptance
// table: AddrSerialize followed by AddrDeserialize yields an address equal
// (by its rendered wire form) to the original.
func TestDriver_addrSerializeRoundTrip(t *testing.T) {
	server, _, _, _ := newServerClientPair(t)
	defer func() { _ = server.Finalize() }()

	self, err := server.AddrSelf()
	require.NoError(t, err)

	buf, status := server.AddrSerialize(self)
	require.True(t, status.OK())
	require.NotEmpty(t, buf)

	restored, status := server.AddrDeserialize(buf)
	require.True(t, status.OK())

	wantStr, err := server.AddrToString(self)
	require.NoError(t, err)
	gotStr, err := server.AddrToString(restored)
	require.NoError(t, err)
	assert.Equal(t, wantStr, gotStr)
}

func TestDriver_addrLookupUnknownHostIsNoMatch(t *testing.T) {
	_, client, _, _ := newServerClientPair(t)
	defer func() { _ = client.Finalize() }()

	var status na.Status
	done := make(chan struct{})
	client.AddrLookup(context.Background(), "this-host-does-not-resolve.invalid:1234", func(_ *na.Address, s na.Status) {
		status = s
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lookup timed out")
	}
	assert.Equal(t, na.NoMatch, status)
}
