// registry.go - Per-auction commitment registry.
//
// A Registry holds at most SlotCount commitments, exactly one per bidder
// identity, write-once. Unused slots read back as the registry's null
// commitment so the clearing circuit never special-cases emptiness.
//
// NOTE: the internal mutex stands in for the host ledger's transaction
// ordering; there is no privileged path that writes on behalf of another
// identity.

package registry

import (
	"errors"
	"math/big"
	"sync"

	"sealedbid/internal/auction"
)

// SlotCount is the fixed registry capacity. It must match the clearing
// circuit's compile-time slot count.
const SlotCount = 8

var (
	ErrAlreadyCommitted = errors.New("identity has already committed")
	ErrRegistryFull     = errors.New("registry is at capacity")
	ErrRegistryClosed   = errors.New("registry is closed")
	ErrNoCommitment     = errors.New("identity has no commitment")
	ErrNoCommitments    = errors.New("registry closed with zero commitments")
)

// Commitment is one write-once registry slot.
type Commitment struct {
	Hash      *big.Int
	Committer *big.Int
}

// Registry is a single auction instance's commitment store. Created only by
// a Factory; immutable once written; lifetime is one auction.
type Registry struct {
	addr   *big.Int
	nullCm *big.Int

	mu         sync.RWMutex
	slots      []Commitment
	byIdentity map[string]int
	closed     bool
}

func newRegistry(addr *big.Int) *Registry {
	return &Registry{
		addr:       addr,
		nullCm:     auction.NullCommitment(addr),
		slots:      make([]Commitment, 0, SlotCount),
		byIdentity: make(map[string]int, SlotCount),
	}
}

// Address returns the registry's instance address.
func (r *Registry) Address() *big.Int {
	return new(big.Int).Set(r.addr)
}

// NullCommitment returns the padding commitment for unused slots.
func (r *Registry) NullCommitment() *big.Int {
	return new(big.Int).Set(r.nullCm)
}

// Commit writes a commitment hash into the caller identity's own slot.
// It fails if the identity already committed, the registry is full, or the
// registry is closed. There are no retry semantics: a rejected commit leaves
// the registry unchanged.
func (r *Registry) Commit(identity, hash *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	key := identity.String()
	if _, ok := r.byIdentity[key]; ok {
		return ErrAlreadyCommitted
	}
	if len(r.slots) >= SlotCount {
		return ErrRegistryFull
	}
	r.byIdentity[key] = len(r.slots)
	r.slots = append(r.slots, Commitment{
		Hash:      new(big.Int).Set(hash),
		Committer: new(big.Int).Set(identity),
	})
	return nil
}

// Read returns the commitment hash stored for an identity.
func (r *Registry) Read(identity *big.Int) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byIdentity[identity.String()]
	if !ok {
		return nil, ErrNoCommitment
	}
	return new(big.Int).Set(r.slots[i].Hash), nil
}

// Slot returns the slot index assigned to an identity.
func (r *Registry) Slot(identity *big.Int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byIdentity[identity.String()]
	if !ok {
		return 0, ErrNoCommitment
	}
	return i, nil
}

// SlotCommitments returns all SlotCount commitment hashes in slot order,
// with unused slots padded by the null commitment.
func (r *Registry) SlotCommitments() [SlotCount]*big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out [SlotCount]*big.Int
	for i := 0; i < SlotCount; i++ {
		if i < len(r.slots) {
			out[i] = new(big.Int).Set(r.slots[i].Hash)
		} else {
			out[i] = new(big.Int).Set(r.nullCm)
		}
	}
	return out
}

// Len returns the number of filled slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Close freezes the registry. Closing twice is harmless. A close with zero
// commitments returns ErrNoCommitments: the auction is terminal-failed and
// nothing downstream can run.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if len(r.slots) == 0 {
		return ErrNoCommitments
	}
	return nil
}

// Closed reports whether the registry no longer accepts commitments.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
