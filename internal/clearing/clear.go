// clear.go - Off-circuit greedy clearing over revealed bids.
//
// The prover runs this in the clear, then proves the outcome in-circuit. The
// sort and fill here must match the circuit's constraints exactly, including
// the equal-price tie-break, or witness generation produces an unsatisfiable
// assignment.

package clearing

import (
	"errors"
	"math/big"
	"sort"

	"sealedbid/internal/auction"
)

var (
	// ErrSlotCountMismatch is returned when the revealed bid set does not
	// match the circuit's fixed capacity.
	ErrSlotCountMismatch = errors.New("clearing: revealed bid count does not match slot count")
	// ErrValueOverflow is returned when a bid or constraint value exceeds
	// the circuit's 64-bit range.
	ErrValueOverflow = errors.New("clearing: value exceeds 64-bit range")
)

// Result is the cleared outcome of one auction, in a form the circuit can
// attest to. Winner bits are in original slot order.
type Result struct {
	WinnerBits [SlotCount]bool
	TotalFill  uint64
	TotalValue *big.Int
	NumWinners int

	// SortedIndices[i] is the original slot occupying descending-price
	// position i, ties broken by ascending slot index.
	SortedIndices [SlotCount]int
}

// Clear sorts the revealed bids by descending price and fills greedily
// against the maker constraints. Null (zero) bids sort last and never win.
//
// bids must be in registry slot order and exactly SlotCount long, with null
// bids in unrevealed or unfilled slots.
func Clear(bids []auction.Bid, cons auction.Constraints) (*Result, error) {
	if len(bids) != SlotCount {
		return nil, ErrSlotCountMismatch
	}
	for _, b := range bids {
		if !b.Price.IsUint64() || !b.Amount.IsUint64() {
			return nil, ErrValueOverflow
		}
	}
	if !cons.MinPrice.IsUint64() || !cons.MaxAmount.IsUint64() {
		return nil, ErrValueOverflow
	}

	res := &Result{TotalValue: new(big.Int)}
	for i := range res.SortedIndices {
		res.SortedIndices[i] = i
	}
	sort.SliceStable(res.SortedIndices[:], func(a, b int) bool {
		pa := bids[res.SortedIndices[a]].Price
		pb := bids[res.SortedIndices[b]].Price
		switch pa.Cmp(pb) {
		case 1:
			return true
		case -1:
			return false
		}
		return res.SortedIndices[a] < res.SortedIndices[b]
	})

	minPrice := cons.MinPrice.Uint64()
	maxAmount := cons.MaxAmount.Uint64()
	var cumulative uint64
	for _, slot := range res.SortedIndices {
		price := bids[slot].Price.Uint64()
		amount := bids[slot].Amount.Uint64()
		if amount == 0 || price < minPrice || amount > maxAmount-cumulative {
			continue
		}
		cumulative += amount
		res.WinnerBits[slot] = true
		res.TotalFill += amount
		res.NumWinners++
		v := new(big.Int).Mul(new(big.Int).SetUint64(price), new(big.Int).SetUint64(amount))
		res.TotalValue.Add(res.TotalValue, v)
	}
	return res, nil
}
