package listener

import (
	"sync"

	nano "github.com/nanopay/nanogate/pkg"
)

// RegistryHooks are the side effects membership changes drive: the
// per-address pollers and the websocket subscription. All hooks run
// outside the registry lock and may be nil.
type RegistryHooks struct {
	StartStream func()                      // first address arrived
	StopStream  func()                      // last address removed
	StreamAdd   func(address string)        // incremental subscribe update
	StreamDel   func(address string)        // incremental unsubscribe update
	StartPoller func(addr nano.WatchedAddress)
	StopPoller  func(address string)
}

// Registry is the authoritative set of ledger accounts currently of
// interest. It is in-memory only; on restart it is rebuilt from open
// invoices and configured merchant wallets. The websocket connection
// exists only while the set is non-empty.
type Registry struct {
	hooks RegistryHooks

	mu      sync.Mutex
	entries map[string]nano.WatchedAddress
}

func NewRegistry(hooks RegistryHooks) *Registry {
	return &Registry{
		hooks:   hooks,
		entries: make(map[string]nano.WatchedAddress),
	}
}

// Add inserts an address into the watch set. Returns false without
// side effects if it was already present. The first address starts the
// stream connection; later ones send an incremental update.
func (r *Registry) Add(addr nano.WatchedAddress) bool {
	if addr.Address == "" {
		return false
	}

	r.mu.Lock()
	if _, exists := r.entries[addr.Address]; exists {
		r.mu.Unlock()
		return false
	}
	r.entries[addr.Address] = addr
	first := len(r.entries) == 1
	r.mu.Unlock()

	if r.hooks.StartPoller != nil {
		r.hooks.StartPoller(addr)
	}
	if first {
		if r.hooks.StartStream != nil {
			r.hooks.StartStream()
		}
	} else if r.hooks.StreamAdd != nil {
		r.hooks.StreamAdd(addr.Address)
	}
	return true
}

// Remove takes an address out of the watch set. Returns false if it
// was not present. Removing the last address tears the stream down.
func (r *Registry) Remove(address string) bool {
	r.mu.Lock()
	if _, exists := r.entries[address]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, address)
	empty := len(r.entries) == 0
	r.mu.Unlock()

	if r.hooks.StopPoller != nil {
		r.hooks.StopPoller(address)
	}
	if empty {
		if r.hooks.StopStream != nil {
			r.hooks.StopStream()
		}
	} else if r.hooks.StreamDel != nil {
		r.hooks.StreamDel(address)
	}
	return true
}

// Lookup returns the watch entry for an address.
func (r *Registry) Lookup(address string) (nano.WatchedAddress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[address]
	return e, ok
}

// Snapshot returns a point-in-time copy for iteration outside the
// lock. Callers never see the live set.
func (r *Registry) Snapshot() []nano.WatchedAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]nano.WatchedAddress, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Addresses returns just the account identifiers, for subscribe frames.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for a := range r.entries {
		out = append(out, a)
	}
	return out
}

func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
