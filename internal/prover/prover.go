// prover.go - Off-chain clearing prover.
//
// The prover is the auctioneer-side component: it collects bid reveals over
// the off-chain channel, checks them against the on-chain registry, clears
// the auction, and produces a Groth16 attestation the settlement layer can
// verify without ever seeing a losing bid.

package prover

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"golang.org/x/sync/errgroup"

	"sealedbid/internal/auction"
	"sealedbid/internal/clearing"
	"sealedbid/internal/registry"
)

var (
	// ErrNoRevealedBids is returned when proving is attempted with no valid
	// reveals on record.
	ErrNoRevealedBids = errors.New("prover: no revealed bids")
	// ErrRegistryOpen is returned when proving is attempted before the
	// registry's commit phase has closed.
	ErrRegistryOpen = errors.New("prover: registry still open")
	// ErrMissingReveal is returned when a committed slot has no matching
	// reveal; the commitment set cannot be proved without it.
	ErrMissingReveal = errors.New("prover: committed slot has no reveal")
)

// Prover accumulates reveals for one registry and proves its clearing.
type Prover struct {
	reg  *registry.Registry
	cons auction.Constraints
	ccs  constraint.ConstraintSystem
	pk   groth16.ProvingKey

	mu      sync.Mutex
	reveals map[string]auction.Bid
}

// New builds a prover for one registry instance. The constraint system and
// proving key are shared across auctions; see clearing.SetupOrLoadKeys.
func New(reg *registry.Registry, cons auction.Constraints, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) *Prover {
	return &Prover{
		reg:     reg,
		cons:    cons,
		ccs:     ccs,
		pk:      pk,
		reveals: make(map[string]auction.Bid),
	}
}

// Reveal records a bid reveal. Only the first reveal per identity is kept;
// later duplicates are ignored, so a bidder cannot swap bids after the fact.
func (p *Prover) Reveal(b auction.Bid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := b.Identity.String()
	if _, ok := p.reveals[key]; ok {
		return
	}
	p.reveals[key] = b
}

// RevealCount returns the number of reveals currently on record.
func (p *Prover) RevealCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reveals)
}

// FilterReveals drops every recorded reveal whose recomputed commitment does
// not match the registry slot its identity committed to. Checks run
// concurrently; each is an independent hash recomputation.
func (p *Prover) FilterReveals() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var g errgroup.Group
	var dropMu sync.Mutex
	var drop []string
	for key, b := range p.reveals {
		key, b := key, b
		g.Go(func() error {
			cm, err := p.reg.Read(b.Identity)
			if err == nil && cm.Cmp(auction.CommitBid(b, p.reg.Address())) == 0 {
				return nil
			}
			dropMu.Lock()
			drop = append(drop, key)
			dropMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, key := range drop {
		delete(p.reveals, key)
	}
	return nil
}

// ProveClearing clears the revealed bids and proves the outcome against the
// registry's live commitments. The registry must be closed and every
// committed slot must have a valid reveal.
func (p *Prover) ProveClearing() (*clearing.Attestation, error) {
	if !p.reg.Closed() {
		return nil, ErrRegistryOpen
	}
	if err := p.FilterReveals(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reveals) == 0 {
		return nil, ErrNoRevealedBids
	}

	// Assemble slot-ordered bids: a reveal for every committed slot, null
	// padding elsewhere.
	commitments := p.reg.SlotCommitments()
	nullCm := p.reg.NullCommitment()
	bids := make([]auction.Bid, clearing.SlotCount)
	var revealed [clearing.SlotCount]bool
	for i := range bids {
		bids[i] = auction.ZeroBid()
	}
	for _, b := range p.reveals {
		slot, err := p.reg.Slot(b.Identity)
		if err != nil {
			return nil, err
		}
		bids[slot] = b
		revealed[slot] = true
	}
	for i, cm := range commitments {
		if cm.Cmp(nullCm) != 0 && !revealed[i] {
			return nil, fmt.Errorf("%w: slot %d", ErrMissingReveal, i)
		}
	}

	res, err := clearing.Clear(bids, p.cons)
	if err != nil {
		return nil, err
	}

	assignment, err := clearing.Assignment(bids, p.cons, p.reg.Address(), commitments, res)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}

	att := &clearing.Attestation{
		Proof:           proofBuf.Bytes(),
		RegistryAddress: p.reg.Address(),
		MinPrice:        p.cons.MinPrice,
		MaxAmount:       p.cons.MaxAmount,
		Commitments:     commitments,
		WinnerBits:      res.WinnerBits,
		TotalFill:       res.TotalFill,
		TotalValue:      res.TotalValue,
		NumWinners:      res.NumWinners,
	}
	for slot, won := range res.WinnerBits {
		if won {
			att.Winners = append(att.Winners, clearing.Winner{
				Slot:     slot,
				Identity: bids[slot].Identity,
			})
		}
	}
	return att, nil
}
