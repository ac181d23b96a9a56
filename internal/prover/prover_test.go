package prover

import (
	"errors"
	"os"
	"testing"

	"sealedbid/internal/auction"
	"sealedbid/internal/clearing"
	"sealedbid/internal/registry"
)

// commitBid registers a bid's commitment in the registry, failing the test on
// error.
func commitBid(t *testing.T, reg *registry.Registry, b auction.Bid) {
	t.Helper()
	if err := reg.Commit(b.Identity, auction.CommitBid(b, reg.Address())); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestReveals(t *testing.T) {
	t.Run("Duplicate Reveal Ignored", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		b := auction.NewBid(50, 10, auction.RandomIdentity())
		commitBid(t, reg, b)

		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		p.Reveal(b)
		swapped := b
		swapped.Price = auction.NewBid(90, 10, b.Identity).Price
		p.Reveal(swapped)

		if err := p.FilterReveals(); err != nil {
			t.Fatalf("FilterReveals failed: %v", err)
		}
		if p.RevealCount() != 1 {
			t.Errorf("first reveal should survive, got %d reveals", p.RevealCount())
		}
	})

	t.Run("Mismatched Reveal Filtered", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		b := auction.NewBid(50, 10, auction.RandomIdentity())
		commitBid(t, reg, b)

		tampered := b
		tampered.Price = auction.NewBid(90, 10, b.Identity).Price
		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		p.Reveal(tampered)

		if err := p.FilterReveals(); err != nil {
			t.Fatalf("FilterReveals failed: %v", err)
		}
		if p.RevealCount() != 0 {
			t.Errorf("tampered reveal should be dropped, got %d reveals", p.RevealCount())
		}
	})

	t.Run("Uncommitted Identity Filtered", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		p.Reveal(auction.NewBid(50, 10, auction.RandomIdentity()))

		if err := p.FilterReveals(); err != nil {
			t.Fatalf("FilterReveals failed: %v", err)
		}
		if p.RevealCount() != 0 {
			t.Errorf("reveal without a commitment should be dropped")
		}
	})
}

func TestProveClearingGuards(t *testing.T) {
	t.Run("Open Registry Rejected", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		b := auction.NewBid(50, 10, auction.RandomIdentity())
		commitBid(t, reg, b)

		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		p.Reveal(b)
		if _, err := p.ProveClearing(); !errors.Is(err, ErrRegistryOpen) {
			t.Errorf("expected ErrRegistryOpen, got %v", err)
		}
	})

	t.Run("No Reveals Rejected", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		commitBid(t, reg, auction.NewBid(50, 10, auction.RandomIdentity()))
		if err := reg.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		if _, err := p.ProveClearing(); !errors.Is(err, ErrNoRevealedBids) {
			t.Errorf("expected ErrNoRevealedBids, got %v", err)
		}
	})

	t.Run("Missing Reveal Rejected", func(t *testing.T) {
		reg := registry.NewFactory().Create()
		revealed := auction.NewBid(50, 10, auction.RandomIdentity())
		silent := auction.NewBid(60, 10, auction.RandomIdentity())
		commitBid(t, reg, revealed)
		commitBid(t, reg, silent)
		if err := reg.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		p := New(reg, auction.NewConstraints(0, 100), nil, nil)
		p.Reveal(revealed)
		if _, err := p.ProveClearing(); !errors.Is(err, ErrMissingReveal) {
			t.Errorf("expected ErrMissingReveal, got %v", err)
		}
	})
}

func TestProveClearingEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Groth16 setup in short mode")
	}

	ccs, err := clearing.Compile()
	if err != nil {
		t.Fatalf("circuit compilation failed: %v", err)
	}
	pkPath := "test_proving.key"
	vkPath := "test_verifying.key"
	pk, _, err := clearing.SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		t.Fatalf("SetupOrLoadKeys failed: %v", err)
	}
	defer os.Remove(pkPath)
	defer os.Remove(vkPath)

	reg := registry.NewFactory().Create()
	bids := []auction.Bid{
		auction.NewBid(50, 60, auction.RandomIdentity()),
		auction.NewBid(40, 50, auction.RandomIdentity()),
		auction.NewBid(30, 30, auction.RandomIdentity()),
	}
	for _, b := range bids {
		commitBid(t, reg, b)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	p := New(reg, auction.NewConstraints(10, 100), ccs, pk)
	for _, b := range bids {
		p.Reveal(b)
	}
	att, err := p.ProveClearing()
	if err != nil {
		t.Fatalf("ProveClearing failed: %v", err)
	}
	if len(att.Proof) == 0 {
		t.Errorf("attestation should carry proof bytes")
	}
	if att.NumWinners != 2 || att.TotalFill != 90 {
		t.Errorf("expected 2 winners filling 90, got %d filling %d", att.NumWinners, att.TotalFill)
	}
	if len(att.Winners) != 2 || att.Winners[0].Slot != 0 || att.Winners[1].Slot != 2 {
		t.Errorf("expected winners in slots 0 and 2, got %+v", att.Winners)
	}
	if att.Winners[0].Identity.Cmp(bids[0].Identity) != 0 {
		t.Errorf("winner identity should match the committed bidder")
	}
}
