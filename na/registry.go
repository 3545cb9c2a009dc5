package na

import (
	"fmt"
	"sync"
)

// Descriptor is a single plugin's entry in the process-wide registry: its
// name (used for explicit "class+" selection) and a factory producing a
// fresh, uninitialized ClassPlugin instance.
type Descriptor struct {
	Name    string
	NewFunc func() ClassPlugin
	Cleanup func() // optional, process-wide static cleanup hook
}

// registry holds an ordered, immutable-after-init list of plugin
// descriptors, the way the teacher's discovery.Service holds an ordered list
// of providers: selection walks the list in registration order and the order
// is part of the contract (shared-memory-first when compiled in).
var (
	registryMu sync.RWMutex
	registry   []Descriptor
)

// RegisterPlugin adds desc to the process-wide registry. Call this from an
// init() in the driver package (see na/natcp) so the table is fully built
// before any Initialize call; the table is treated as immutable afterward.
func RegisterPlugin(desc Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, desc)
}

// selectPlugin implements the §4.1 selection rule: an explicit class name
// must match exactly; otherwise the first descriptor whose CheckProtocol
// accepts the protocol wins. No match is ProtocolError.
func selectPlugin(info Info) (Descriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if info.Class != "" {
		for _, d := range registry {
			if d.Name == info.Class {
				return d, nil
			}
		}
		return Descriptor{}, fmt.Errorf("na: no plugin registered for class %q: %w", info.Class, ProtocolError)
	}

	for _, d := range registry {
		p := d.NewFunc()
		if p.CheckProtocol(info.Protocol) {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("na: no plugin accepts protocol %q: %w", info.Protocol, ProtocolError)
}

// Cleanup is the process-wide teardown entry point: it invokes every
// registered plugin's static Cleanup hook, best-effort, mirroring NA_Cleanup
// looping over the original's plugin table (see SPEC_FULL.md §12).
func Cleanup() {
	registryMu.RLock()
	descs := make([]Descriptor, len(registry))
	copy(descs, registry)
	registryMu.RUnlock()

	for _, d := range descs {
		if d.Cleanup != nil {
			d.Cleanup()
		}
	}
}

// registeredPlugins is a test/introspection helper reporting the names
// currently in the registry, in registration order.
func registeredPlugins() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, len(registry))
	for i, d := range registry {
		names[i] = d.Name
	}
	return names
}
