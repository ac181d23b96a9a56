// types.go - Bid and maker-constraint types for the clearing auction.

package auction

import "math/big"

// Bid is a single sealed bid, created off-chain by a bidder.
// Price and Amount are 64-bit quantities carried as field elements; Identity
// is the bidder's public identity scalar; Nonce is reveal-channel freshness
// and is not part of the commitment binding.
type Bid struct {
	Price    *big.Int
	Amount   *big.Int
	Identity *big.Int
	Nonce    *big.Int
}

// ZeroBid returns the all-zero bid used to pad unused registry slots.
// Its amount is zero, so it can never win a clearing.
func ZeroBid() Bid {
	return Bid{
		Price:    big.NewInt(0),
		Amount:   big.NewInt(0),
		Identity: big.NewInt(0),
		Nonce:    big.NewInt(0),
	}
}

// Constraints are the maker's public auction constraints, fixed before
// bidding opens.
type Constraints struct {
	MinPrice  *big.Int
	MaxAmount *big.Int
}

// NewConstraints builds Constraints from uint64 values.
func NewConstraints(minPrice, maxAmount uint64) Constraints {
	return Constraints{
		MinPrice:  new(big.Int).SetUint64(minPrice),
		MaxAmount: new(big.Int).SetUint64(maxAmount),
	}
}

// NewBid builds a Bid from uint64 price/amount and an identity scalar,
// sampling a fresh nonce.
func NewBid(price, amount uint64, identity *big.Int) Bid {
	return Bid{
		Price:    new(big.Int).SetUint64(price),
		Amount:   new(big.Int).SetUint64(amount),
		Identity: new(big.Int).Set(identity),
		Nonce:    RandomNonce(),
	}
}
