package main

import (
	"errors"
	"os"
	"testing"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"

	"sealedbid/internal/auction"
	"sealedbid/internal/clearing"
	"sealedbid/internal/prover"
	"sealedbid/internal/registry"
	"sealedbid/internal/settlement"
)

// auctionResult bundles everything one full protocol run produces.
type auctionResult struct {
	factory  *registry.Factory
	reg      *registry.Registry
	att      *clearing.Attestation
	verifier *settlement.Verifier
	engine   *settlement.LedgerEngine
}

// runAuction drives one complete auction: commit, close, reveal, prove,
// settle. The settlement outcome is returned for scenario assertions.
func runAuction(t *testing.T, ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey, cons auction.Constraints, bids []auction.Bid) *auctionResult {
	t.Helper()

	factory := registry.NewFactory()
	reg := factory.Create()
	for i, b := range bids {
		if err := reg.Commit(b.Identity, auction.CommitBid(b, reg.Address())); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	p := prover.New(reg, cons, ccs, pk)
	for _, b := range bids {
		p.Reveal(b)
	}
	att, err := p.ProveClearing()
	if err != nil {
		t.Fatalf("ProveClearing failed: %v", err)
	}

	engine := settlement.NewLedgerEngine()
	v := settlement.NewVerifier(factory, vk, engine)
	if err := v.Submit(att); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return &auctionResult{factory: factory, reg: reg, att: att, verifier: v, engine: engine}
}

func TestProtocolEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Groth16 setup in short mode")
	}

	ccs, err := clearing.Compile()
	if err != nil {
		t.Fatalf("circuit compilation failed: %v", err)
	}
	pkPath := "test_proving.key"
	vkPath := "test_verifying.key"
	pk, vk, err := clearing.SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		t.Fatalf("SetupOrLoadKeys failed: %v", err)
	}
	defer os.Remove(pkPath)
	defer os.Remove(vkPath)

	t.Run("All Bids Clear", func(t *testing.T) {
		bids := []auction.Bid{
			auction.NewBid(50, 10, auction.RandomIdentity()),
			auction.NewBid(40, 10, auction.RandomIdentity()),
			auction.NewBid(30, 10, auction.RandomIdentity()),
		}
		res := runAuction(t, ccs, pk, vk, auction.NewConstraints(20, 100), bids)
		if res.att.NumWinners != 3 || res.att.TotalFill != 30 {
			t.Errorf("expected 3 winners filling 30, got %d filling %d", res.att.NumWinners, res.att.TotalFill)
		}
		if res.engine.FillCount() != 1 {
			t.Fatalf("expected a single fill call, got %d", res.engine.FillCount())
		}
		fill := res.engine.Fills[0]
		if fill.TakerFillAmount != 30 || len(fill.Winners) != 3 {
			t.Errorf("fill carries amount %d and %d winners, want 30 and 3", fill.TakerFillAmount, len(fill.Winners))
		}
	})

	t.Run("Capacity Limits Fill", func(t *testing.T) {
		bids := []auction.Bid{
			auction.NewBid(50, 60, auction.RandomIdentity()),
			auction.NewBid(40, 50, auction.RandomIdentity()),
			auction.NewBid(30, 30, auction.RandomIdentity()),
		}
		res := runAuction(t, ccs, pk, vk, auction.NewConstraints(10, 100), bids)
		if res.att.NumWinners != 2 || res.att.TotalFill != 90 {
			t.Errorf("expected 2 winners filling 90, got %d filling %d", res.att.NumWinners, res.att.TotalFill)
		}
		if res.att.WinnerBits[1] {
			t.Errorf("the over-capacity bid must not win")
		}
		if !res.att.WinnerBits[0] || !res.att.WinnerBits[2] {
			t.Errorf("slots 0 and 2 should win, got %v", res.att.WinnerBits)
		}
	})

	t.Run("Reserve Price Filters", func(t *testing.T) {
		bids := []auction.Bid{
			auction.NewBid(50, 10, auction.RandomIdentity()),
			auction.NewBid(30, 10, auction.RandomIdentity()),
		}
		res := runAuction(t, ccs, pk, vk, auction.NewConstraints(35, 100), bids)
		if res.att.NumWinners != 1 || !res.att.WinnerBits[0] || res.att.WinnerBits[1] {
			t.Errorf("only the bid above the reserve should win, got %v", res.att.WinnerBits)
		}
	})

	t.Run("Second Commitment Per Identity Rejected", func(t *testing.T) {
		factory := registry.NewFactory()
		reg := factory.Create()
		b := auction.NewBid(50, 10, auction.RandomIdentity())
		if err := reg.Commit(b.Identity, auction.CommitBid(b, reg.Address())); err != nil {
			t.Fatalf("first commit failed: %v", err)
		}
		retry := auction.NewBid(90, 10, b.Identity)
		err := reg.Commit(retry.Identity, auction.CommitBid(retry, reg.Address()))
		if !errors.Is(err, registry.ErrAlreadyCommitted) {
			t.Errorf("expected ErrAlreadyCommitted, got %v", err)
		}
	})

	t.Run("Settled Clearing Cannot Replay", func(t *testing.T) {
		bids := []auction.Bid{
			auction.NewBid(50, 10, auction.RandomIdentity()),
			auction.NewBid(40, 10, auction.RandomIdentity()),
		}
		res := runAuction(t, ccs, pk, vk, auction.NewConstraints(10, 100), bids)
		if err := res.verifier.Submit(res.att); !errors.Is(err, settlement.ErrAlreadySettled) {
			t.Errorf("expected ErrAlreadySettled, got %v", err)
		}
		if res.engine.FillCount() != 1 {
			t.Errorf("replay must not add fills")
		}
	})

	t.Run("Attestation Round Trips Through JSON", func(t *testing.T) {
		bids := []auction.Bid{
			auction.NewBid(50, 10, auction.RandomIdentity()),
		}
		res := runAuction(t, ccs, pk, vk, auction.NewConstraints(10, 100), bids)

		data, err := res.att.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		decoded, err := clearing.UnmarshalAttestation(data)
		if err != nil {
			t.Fatalf("UnmarshalAttestation failed: %v", err)
		}

		// The decoded attestation must still verify against a fresh
		// verifier over the same factory.
		v := settlement.NewVerifier(res.factory, vk, settlement.NewLedgerEngine())
		if err := v.Submit(decoded); err != nil {
			t.Fatalf("decoded attestation should settle: %v", err)
		}
	})
}
