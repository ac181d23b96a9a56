// main.go - In-process walkthrough of one sealed-bid clearing auction.
//
// Runs the whole protocol with three bidders: commitments into a fresh
// registry, close, reveals to the prover, a Groth16 clearing proof, and
// settlement through the verifier. The daemon in cmd/cleard exposes the same
// flow over REST; this demo keeps everything in one process.
//
// Usage:
//   go run main.go

package main

import (
	"log"
	"math/big"

	"sealedbid/internal/auction"
	"sealedbid/internal/clearing"
	"sealedbid/internal/prover"
	"sealedbid/internal/registry"
	"sealedbid/internal/settlement"
)

func main() {
	log.Println("=== Sealed-Bid Clearing Auction: 3-bidder walkthrough ===")

	// 1. Setup: compile the clearing circuit and generate/load ZKP keys
	ccs, err := clearing.Compile()
	if err != nil {
		log.Printf("ERROR: circuit compilation failed: %v", err)
		return
	}
	pk, vk, err := clearing.SetupOrLoadKeys(ccs, "keys/clearing_pk.bin", "keys/clearing_vk.bin")
	if err != nil {
		log.Printf("ERROR: key setup failed: %v", err)
		return
	}

	// 2. The maker publishes constraints and opens a registry
	cons := auction.NewConstraints(10, 100)
	factory := registry.NewFactory()
	reg := factory.Create()
	log.Printf("Registry opened at %s (min price %s, max amount %s)", reg.Address(), cons.MinPrice, cons.MaxAmount)

	// 3. Bidders commit
	bids := []auction.Bid{
		auction.NewBid(50, 60, auction.RandomIdentity()),
		auction.NewBid(40, 50, auction.RandomIdentity()),
		auction.NewBid(30, 30, auction.RandomIdentity()),
	}
	for i, b := range bids {
		if err := reg.Commit(b.Identity, auction.CommitBid(b, reg.Address())); err != nil {
			log.Printf("ERROR: commit %d failed: %v", i, err)
			return
		}
		log.Printf("Bidder %d committed (occupancy %d/%d)", i+1, reg.Len(), registry.SlotCount)
	}

	// 4. Commit phase ends
	if err := reg.Close(); err != nil {
		log.Printf("ERROR: close failed: %v", err)
		return
	}
	log.Println("Registry closed, reveal phase begins")

	// 5. Bidders reveal off-chain to the auctioneer's prover
	p := prover.New(reg, cons, ccs, pk)
	for _, b := range bids {
		p.Reveal(b)
	}

	// 6. The auctioneer clears and proves
	att, err := p.ProveClearing()
	if err != nil {
		log.Printf("ERROR: clearing proof failed: %v", err)
		return
	}
	log.Printf("Clearing proved: %d winners, total fill %d, total value %s", att.NumWinners, att.TotalFill, att.TotalValue)

	// 7. Settlement verifies the attestation and executes the fill call
	engine := settlement.NewLedgerEngine()
	verifier := settlement.NewVerifier(factory, vk, engine)
	if err := verifier.Submit(att); err != nil {
		log.Printf("ERROR: settlement failed: %v", err)
		return
	}
	for _, w := range att.Winners {
		log.Printf("Winner: slot %d, identity %s", w.Slot, truncate(w.Identity))
	}
	if err := engine.SaveToFile("fills.json"); err != nil {
		log.Printf("ERROR: fill ledger save failed: %v", err)
		return
	}
	log.Printf("Fill of %d units for %s recorded in fills.json", att.TotalFill, att.TotalValue)

	// 8. A replayed attestation must be rejected
	if err := verifier.Submit(att); err != nil {
		log.Printf("Replay correctly rejected: %v", err)
	} else {
		log.Println("ERROR: replayed attestation was accepted")
	}
}

func truncate(v *big.Int) string {
	s := v.String()
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}
