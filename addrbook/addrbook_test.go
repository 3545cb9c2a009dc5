package addrbook_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercury-hpc/mercury-go/addrbook"
	"github.com/mercury-hpc/mercury-go/na"
	_ "github.com/mercury-hpc/mercury-go/na/natcp"
)

func newTestClass(t *testing.T) *na.Class {
	t.Helper()
	cls, err := na.Initialize("tcp+tcp://127.0.0.1:0", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cls.Finalize() })
	return cls
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.yaml")
	content := "peers:\n  - name: alpha\n    addr: 127.0.0.1:4001\n  - name: beta\n    addr: 127.0.0.1:4002\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := addrbook.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "alpha", cfg.Peers[0].Name)
	assert.Equal(t, "127.0.0.1:4001", cfg.Peers[0].Addr)
	assert.Equal(t, "beta", cfg.Peers[1].Name)
}

func TestLoadFile_missing(t *testing.T) {
	_, err := addrbook.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBook_resolveAllAndLookup(t *testing.T) {
	cls := newTestClass(t)
	book := addrbook.New(cls, []addrbook.PeerConfig{
		{Name: "alpha", Addr: "127.0.0.1:4001"},
		{Name: "beta", Addr: "127.0.0.1:4002"},
	}, time.Hour, 2, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, book.ResolveAll(ctx))

	addr, ok := book.Lookup("alpha")
	require.True(t, ok)
	defer addr.Free()
	assert.Equal(t, "127.0.0.1:4001", addr.Peer())

	_, ok = book.Lookup("unknown")
	assert.False(t, ok)
}

func TestBook_run_untilCanceled(t *testing.T) {
	cls := newTestClass(t)
	book := addrbook.New(cls, []addrbook.PeerConfig{
		{Name: "alpha", Addr: "127.0.0.1:4001"},
	}, 10*time.Millisecond, 2, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := book.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	addr, ok := book.Lookup("alpha")
	require.True(t, ok)
	addr.Free()
}
