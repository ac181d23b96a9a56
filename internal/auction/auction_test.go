package auction

import (
	"math/big"
	"testing"
)

func TestCommitBid(t *testing.T) {
	registryAddr := big.NewInt(7777)
	bid := Bid{
		Price:    big.NewInt(1000),
		Amount:   big.NewInt(100),
		Identity: big.NewInt(42),
		Nonce:    big.NewInt(9),
	}

	t.Run("Deterministic", func(t *testing.T) {
		cm1 := CommitBid(bid, registryAddr)
		cm2 := CommitBid(bid, registryAddr)
		if cm1.Cmp(cm2) != 0 {
			t.Error("commitment is not deterministic")
		}
	})

	t.Run("Single Field Tamper", func(t *testing.T) {
		base := CommitBid(bid, registryAddr)

		tampered := bid
		tampered.Price = big.NewInt(1001)
		if CommitBid(tampered, registryAddr).Cmp(base) == 0 {
			t.Error("price tamper did not change commitment")
		}

		tampered = bid
		tampered.Amount = big.NewInt(101)
		if CommitBid(tampered, registryAddr).Cmp(base) == 0 {
			t.Error("amount tamper did not change commitment")
		}

		tampered = bid
		tampered.Identity = big.NewInt(43)
		if CommitBid(tampered, registryAddr).Cmp(base) == 0 {
			t.Error("identity tamper did not change commitment")
		}

		if CommitBid(bid, big.NewInt(7778)).Cmp(base) == 0 {
			t.Error("registry rebind did not change commitment")
		}
	})

	t.Run("Nonce Outside Binding", func(t *testing.T) {
		other := bid
		other.Nonce = big.NewInt(10)
		if CommitBid(other, registryAddr).Cmp(CommitBid(bid, registryAddr)) != 0 {
			t.Error("nonce must not be part of the commitment binding")
		}
	})
}

func TestNullCommitment(t *testing.T) {
	addr := big.NewInt(123)

	if NullCommitment(addr).Cmp(CommitBid(ZeroBid(), addr)) != 0 {
		t.Error("null commitment must equal the committed all-zero bid")
	}
	if NullCommitment(addr).Cmp(NullCommitment(big.NewInt(124))) == 0 {
		t.Error("null commitment must be bound to the registry address")
	}
}

func TestRandomNonce(t *testing.T) {
	n1 := RandomNonce()
	n2 := RandomNonce()
	if n1.Cmp(n2) == 0 {
		t.Error("nonce collision")
	}
}
