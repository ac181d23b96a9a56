// factory.go - Registry factory with verifiable provenance.
//
// Every registry instance is deployed through a Factory, which derives the
// instance address from its own id and a creation counter and records the
// creation in an origin list. A registry is trusted only through
// Factory.Created, never by address alone.

package registry

import (
	"math/big"
	"sync"
	"time"

	"sealedbid/internal/auction"
)

// CreationRecord is one entry of the factory's verifiable-origin list.
type CreationRecord struct {
	Address   *big.Int  `json:"address"`
	Index     uint64    `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// Factory deploys fresh, immutable registries and answers provenance
// queries in O(1).
type Factory struct {
	id *big.Int

	mu      sync.RWMutex
	index   uint64
	created map[string]*Registry
	origin  []CreationRecord
}

// NewFactory creates a factory with a random id. All registries it deploys
// carry addresses derived from that id.
func NewFactory() *Factory {
	return &Factory{
		id:      auction.RandomIdentity(),
		created: make(map[string]*Registry),
	}
}

// Create deploys a new registry. The instance address is
// MiMC(factoryID, index), so two factories never collide and an address
// cannot be forged without the creation being recorded here.
func (f *Factory) Create() *Registry {
	f.mu.Lock()
	defer f.mu.Unlock()

	addr := auction.HashFields(f.id, new(big.Int).SetUint64(f.index))
	r := newRegistry(addr)
	f.created[addr.String()] = r
	f.origin = append(f.origin, CreationRecord{
		Address:   new(big.Int).Set(addr),
		Index:     f.index,
		CreatedAt: time.Now(),
	})
	f.index++
	return r
}

// Created answers "was this registry deployed by this factory".
func (f *Factory) Created(addr *big.Int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.created[addr.String()]
	return ok
}

// Get returns the registry instance at an address, if this factory
// deployed it.
func (f *Factory) Get(addr *big.Int) (*Registry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.created[addr.String()]
	return r, ok
}

// Origin returns a copy of the creation records, oldest first.
func (f *Factory) Origin() []CreationRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]CreationRecord, len(f.origin))
	copy(out, f.origin)
	return out
}

// ForgeRegistry builds a registry outside any factory. It exists so tests
// can exercise the provenance rejection path; nothing in the protocol
// trusts its output.
func ForgeRegistry(addr *big.Int) *Registry {
	return newRegistry(addr)
}
