// verifier.go - On-chain-style settlement of clearing attestations.
//
// Submit is the trust boundary of the whole protocol: everything upstream of
// it (reveal collection, sorting, proving) is untrusted auctioneer code. The
// checks here run in a fixed order so a rejected attestation leaves no
// partial state.

package settlement

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"sealedbid/internal/clearing"
	"sealedbid/internal/registry"
)

var (
	// ErrUnknownRegistry is returned for attestations over registries this
	// factory never created.
	ErrUnknownRegistry = errors.New("settlement: registry not created by this factory")
	// ErrAlreadySettled is returned when a registry's clearing was settled
	// before; one registry settles at most once.
	ErrAlreadySettled = errors.New("settlement: registry already settled")
	// ErrRegistryOpen is returned when the registry's commit phase has not
	// closed yet.
	ErrRegistryOpen = errors.New("settlement: registry still open")
	// ErrStaleCommitments is returned when the attestation's commitment set
	// does not match the registry's live slots.
	ErrStaleCommitments = errors.New("settlement: attestation commitments do not match registry")
	// ErrInvalidProof is returned when the Groth16 proof does not verify
	// against the attested public inputs.
	ErrInvalidProof = errors.New("settlement: proof verification failed")
	// ErrWinnerMismatch is returned when the attestation's winner list does
	// not agree with its winner bits or the registry's slot assignments.
	ErrWinnerMismatch = errors.New("settlement: winner list inconsistent with attestation")
)

// Verifier settles clearing attestations against the registries of one
// factory. It holds the replay ledger: each registry settles at most once.
type Verifier struct {
	factory *registry.Factory
	vk      groth16.VerifyingKey
	engine  Engine

	mu      sync.Mutex
	settled map[string]bool
}

// NewVerifier builds a verifier over one factory's registries. Fills for
// accepted attestations execute through engine.
func NewVerifier(factory *registry.Factory, vk groth16.VerifyingKey, engine Engine) *Verifier {
	return &Verifier{
		factory: factory,
		vk:      vk,
		engine:  engine,
		settled: make(map[string]bool),
	}
}

// Settled reports whether the registry at addr has been settled.
func (v *Verifier) Settled(addr *big.Int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settled[addr.String()]
}

// Submit verifies a clearing attestation and, if every check passes,
// executes its fills and marks the registry settled.
//
// The check order is fixed: provenance, replay, phase, live-commitment
// binding, proof, winner consistency. No state changes before the last check
// passes.
func (v *Verifier) Submit(att *clearing.Attestation) error {
	// Settlement is serial, like the chain it models.
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(att.Proof) == 0 {
		return clearing.ErrMissingProof
	}

	// 1. Provenance: only registries this factory created settle here.
	reg, ok := v.factory.Get(att.RegistryAddress)
	if !ok || !v.factory.Created(att.RegistryAddress) {
		return ErrUnknownRegistry
	}

	// 2. Replay: one settlement per registry, ever.
	addrKey := att.RegistryAddress.String()
	if v.settled[addrKey] {
		return ErrAlreadySettled
	}

	// 3. Phase: commitments must be final.
	if !reg.Closed() {
		return ErrRegistryOpen
	}

	// 4. Live-commitment binding: the proof must speak about the slots as
	// they are on-chain now, not a snapshot.
	live := reg.SlotCommitments()
	for i, cm := range att.Commitments {
		if cm == nil || cm.Cmp(live[i]) != 0 {
			return fmt.Errorf("%w: slot %d", ErrStaleCommitments, i)
		}
	}

	// 5. Proof.
	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(att.Proof)); err != nil {
		return fmt.Errorf("%w: cannot unmarshal proof", ErrInvalidProof)
	}
	pub, err := att.PublicWitness()
	if err != nil {
		return fmt.Errorf("%w: cannot build public witness", ErrInvalidProof)
	}
	if err := groth16.Verify(proof, v.vk, pub); err != nil {
		return ErrInvalidProof
	}

	// 6. Winner consistency: the disclosed winner list must be exactly the
	// set bits, and each identity must own the slot it claims.
	if len(att.Winners) != att.NumWinners {
		return ErrWinnerMismatch
	}
	claimed := make(map[int]bool, len(att.Winners))
	for _, w := range att.Winners {
		if w.Slot < 0 || w.Slot >= clearing.SlotCount || !att.WinnerBits[w.Slot] || claimed[w.Slot] {
			return ErrWinnerMismatch
		}
		slot, err := reg.Slot(w.Identity)
		if err != nil || slot != w.Slot {
			return ErrWinnerMismatch
		}
		claimed[w.Slot] = true
	}
	for slot, won := range att.WinnerBits {
		if won && !claimed[slot] {
			return ErrWinnerMismatch
		}
	}

	// One settlement call for the whole clearing: aggregate fill,
	// aggregate counter-value, winner list. If the engine refuses, the
	// registry stays unsettled and the attestation may be resubmitted.
	if err := v.engine.Fill(FillOrder{
		RegistryAddress: att.RegistryAddress,
		TakerFillAmount: att.TotalFill,
		CounterValue:    att.TotalValue,
		Winners:         att.Winners,
	}); err != nil {
		return err
	}
	v.settled[addrKey] = true
	return nil
}
