// Package addrbook maintains a statically configured list of known RPC peers,
// resolving and periodically re-resolving each one's na.Address the way
// provider.Static/provider.File turn a config list into live routing state,
// generalized here from "routing rule" to "known RPC peer" (SPEC_FULL.md §11).
package addrbook

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"gopkg.in/yaml.v3"

	"github.com/mercury-hpc/mercury-go/na"
)

// PeerConfig is one entry of the YAML peer list.
type PeerConfig struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

// Config is the top-level YAML document: a flat list of peers.
type Config struct {
	Peers []PeerConfig `yaml:"peers"`
}

// LoadFile reads and parses a YAML peer list from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("addrbook: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("addrbook: parse %s: %w", path, err)
	}
	return cfg, nil
}

type entry struct {
	name     string
	addr     string
	resolved *na.Address
	lastErr  error
}

// Book resolves a static list of named peers against a na.Class and keeps
// them re-resolved on an interval, the same "check on a timer, update the
// live table" shape provider.File uses for its on-disk rule list.
type Book struct {
	cls      *na.Class
	interval time.Duration
	retries  int
	delay    time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
}

// New builds a Book for peers against cls. interval is how often each peer
// is re-resolved in the background once Run starts; retries/delay bound the
// repeater.NewDefault retry applied to each individual lookup, mirroring
// lib.Plugin.Do's reproxy-registration retry.
func New(cls *na.Class, peers []PeerConfig, interval time.Duration, retries int, delay time.Duration) *Book {
	entries := make(map[string]*entry, len(peers))
	for _, p := range peers {
		entries[p.Name] = &entry{name: p.Name, addr: p.Addr}
	}
	return &Book{cls: cls, interval: interval, retries: retries, delay: delay, entries: entries}
}

// Lookup returns the last successfully resolved address for name, if any.
// The returned Address is a fresh owning reference (Dup'd) that the caller
// must Free.
func (b *Book) Lookup(name string) (*na.Address, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[name]
	if !ok || e.resolved == nil {
		return nil, false
	}
	return e.resolved.Dup(), true
}

// AddPeer inserts or replaces a peer at runtime (the management server's
// registration endpoint uses this to admit a peer that was not in the
// static YAML list). It does not resolve the peer; the next Run tick, or an
// explicit ResolveOne, does that.
func (b *Book) AddPeer(name, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[name]; ok {
		e.addr = addr
		return
	}
	b.entries[name] = &entry{name: name, addr: addr}
}

// ResolveOne resolves a single named peer immediately, retrying per the
// Book's configured policy. It is exported for callers (the management
// server's registration endpoint, in particular) that want a fresh peer
// usable right away rather than waiting for the next background tick.
func (b *Book) ResolveOne(ctx context.Context, name string) error {
	return b.resolveOne(ctx, name)
}

// Peers returns the configured peer names.
func (b *Book) Peers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.entries))
	for n := range b.entries {
		names = append(names, n)
	}
	return names
}

// ResolveAll resolves every configured peer once, synchronously, returning
// the first error encountered (after attempting the rest) so a caller can
// decide whether to proceed with a partially resolved book.
func (b *Book) ResolveAll(ctx context.Context) error {
	var firstErr error
	for _, name := range b.Peers() {
		if err := b.resolveOne(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Book) resolveOne(ctx context.Context, name string) error {
	b.mu.RLock()
	e, ok := b.entries[name]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("addrbook: unknown peer %q", name)
	}

	err := repeater.NewDefault(b.retries, b.delay).Do(ctx, func() error {
		addr, lookupErr := b.lookupSync(ctx, e.addr)
		if lookupErr != nil {
			return lookupErr
		}
		b.mu.Lock()
		if e.resolved != nil {
			e.resolved.Free()
		}
		e.resolved = addr
		e.lastErr = nil
		b.mu.Unlock()
		return nil
	})
	if err != nil {
		b.mu.Lock()
		e.lastErr = err
		b.mu.Unlock()
		log.Printf("[WARN] addrbook: resolve %s (%s): %v", name, e.addr, err)
	}
	return err
}

func (b *Book) lookupSync(ctx context.Context, addr string) (*na.Address, error) {
	type result struct {
		addr   *na.Address
		status na.Status
	}
	done := make(chan result, 1)
	b.cls.AddrLookup(ctx, addr, func(a *na.Address, s na.Status) {
		done <- result{a, s}
	})

	select {
	case r := <-done:
		if !r.status.OK() {
			return nil, r.status
		}
		return r.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run resolves every peer once, then re-resolves the whole book every
// interval until ctx is done. Blocking call, meant to run in its own
// goroutine on the caller side, the same shape as discovery.Service.Run.
func (b *Book) Run(ctx context.Context) error {
	if err := b.ResolveAll(ctx); err != nil {
		log.Printf("[WARN] addrbook: initial resolution incomplete: %v", err)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, name := range b.Peers() {
				if err := b.resolveOne(ctx, name); err != nil {
					continue
				}
			}
		}
	}
}
