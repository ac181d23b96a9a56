// circuit.go - Constraint system for the sealed-bid clearing proof.
//
// The circuit proves three statements jointly over one registry instance:
// commitment consistency of all revealed bids, validity of the claimed
// descending-price permutation, and correctness of the greedy capacity fill.
// Sorting happens off-circuit; the permutation is only verified here, via
// O(N^2) selector comparisons.
//
// WARNING: the slot count is a compile-time parameter. Registry capacity and
// circuit size must agree or witness assembly fails.

package clearing

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/math/cmp"
)

// SlotCount is the circuit's fixed bid capacity, including null padding.
const SlotCount = 8

// Circuit proves that the claimed clearing of one auction is consistent with
// the on-chain commitments and the maker constraints.
//
// Winner bits appear twice: in sorted order (private, checked against the
// greedy predicate) and in original order (public, checked to be the
// un-permutation of the sorted bits). The cross-check is what stops a prover
// from omitting a valid higher bid.
type Circuit struct {
	// Public inputs
	RegistryAddress frontend.Variable            `gnark:",public"`
	MinPrice        frontend.Variable            `gnark:",public"`
	MaxAmount       frontend.Variable            `gnark:",public"`
	Commitments     [SlotCount]frontend.Variable `gnark:",public"`
	WinnerBits      [SlotCount]frontend.Variable `gnark:",public"`
	TotalFill       frontend.Variable            `gnark:",public"`
	TotalValue      frontend.Variable            `gnark:",public"`
	NumWinners      frontend.Variable            `gnark:",public"`

	// Private inputs: the revealed tuples in original slot order. Nonces ride
	// along with the reveal tuple; the commitment binding is nonce-free.
	Prices     [SlotCount]frontend.Variable
	Amounts    [SlotCount]frontend.Variable
	Identities [SlotCount]frontend.Variable
	Nonces     [SlotCount]frontend.Variable

	// Private inputs: the claimed descending-by-price permutation.
	// SortedIndices[i] names the original slot occupying sorted position i.
	SortedPrices     [SlotCount]frontend.Variable
	SortedAmounts    [SlotCount]frontend.Variable
	SortedIndices    [SlotCount]frontend.Variable
	SortedWinnerBits [SlotCount]frontend.Variable
}

// Define implements the clearing constraints.
func (c *Circuit) Define(api frontend.API) error {
	// Range-check every quantity the comparators see. Prices and amounts are
	// 64-bit; the cumulative fill stays below 2^67.
	api.ToBinary(c.MinPrice, 64)
	api.ToBinary(c.MaxAmount, 64)
	for i := 0; i < SlotCount; i++ {
		api.ToBinary(c.Prices[i], 64)
		api.ToBinary(c.Amounts[i], 64)
	}

	maxU64 := new(big.Int).SetUint64(^uint64(0))
	fillBound := new(big.Int).Lsh(big.NewInt(1), 68)
	cmpPrice := cmp.NewBoundedComparator(api, maxU64, false)
	cmpFill := cmp.NewBoundedComparator(api, fillBound, false)

	// 1) Commitment consistency: every original slot re-hashes to its public
	// commitment, bound to this registry instance. Null slots hash the
	// all-zero bid and match the registry's null padding.
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	for i := 0; i < SlotCount; i++ {
		hasher.Reset()
		hasher.Write(c.Prices[i])
		hasher.Write(c.Amounts[i])
		hasher.Write(c.Identities[i])
		hasher.Write(c.RegistryAddress)
		api.AssertIsEqual(c.Commitments[i], hasher.Sum())
	}

	// 2) Permutation validity. sel[i][j] == 1 iff sorted position i holds
	// original slot j. Row sums force each sorted position to name exactly
	// one in-range slot; column sums force each slot to appear exactly once,
	// so the mapping is a bijection over all SlotCount slots.
	var sel [SlotCount][SlotCount]frontend.Variable
	for i := 0; i < SlotCount; i++ {
		rowSum := frontend.Variable(0)
		for j := 0; j < SlotCount; j++ {
			sel[i][j] = api.IsZero(api.Sub(c.SortedIndices[i], j))
			rowSum = api.Add(rowSum, sel[i][j])
		}
		api.AssertIsEqual(rowSum, 1)
	}
	for j := 0; j < SlotCount; j++ {
		colSum := frontend.Variable(0)
		for i := 0; i < SlotCount; i++ {
			colSum = api.Add(colSum, sel[i][j])
		}
		api.AssertIsEqual(colSum, 1)
	}

	// The sorted view must equal the original bid each position names.
	for i := 0; i < SlotCount; i++ {
		price := frontend.Variable(0)
		amount := frontend.Variable(0)
		for j := 0; j < SlotCount; j++ {
			price = api.Add(price, api.Mul(sel[i][j], c.Prices[j]))
			amount = api.Add(amount, api.Mul(sel[i][j], c.Amounts[j]))
		}
		api.AssertIsEqual(c.SortedPrices[i], price)
		api.AssertIsEqual(c.SortedAmounts[i], amount)
	}

	// Non-increasing prices; equal prices break ties by ascending original
	// index, matching the off-circuit sort bit-for-bit.
	for i := 0; i < SlotCount-1; i++ {
		api.AssertIsEqual(cmpPrice.IsLess(c.SortedPrices[i], c.SortedPrices[i+1]), 0)
		eq := api.IsZero(api.Sub(c.SortedPrices[i], c.SortedPrices[i+1]))
		idxAsc := cmpPrice.IsLess(c.SortedIndices[i], c.SortedIndices[i+1])
		api.AssertIsEqual(api.Mul(eq, api.Sub(1, idxAsc)), 0)
	}

	// 3) Greedy fill: walking sorted positions with a running cumulative
	// fill, a position wins iff it fits under MaxAmount, meets MinPrice, and
	// has a non-zero amount. The cumulative advances only on wins.
	cumulative := frontend.Variable(0)
	totalFill := frontend.Variable(0)
	totalValue := frontend.Variable(0)
	numWinners := frontend.Variable(0)
	for i := 0; i < SlotCount; i++ {
		price := c.SortedPrices[i]
		amount := c.SortedAmounts[i]

		next := api.Add(cumulative, amount)
		fits := api.Sub(1, cmpFill.IsLess(c.MaxAmount, next))
		meetsMin := api.Sub(1, cmpPrice.IsLess(price, c.MinPrice))
		nonZero := api.Sub(1, api.IsZero(amount))

		win := api.Mul(api.Mul(fits, meetsMin), nonZero)
		api.AssertIsEqual(c.SortedWinnerBits[i], win)

		cumulative = api.Add(cumulative, api.Mul(win, amount))
		totalFill = api.Add(totalFill, api.Mul(win, amount))
		totalValue = api.Add(totalValue, api.Mul(api.Mul(win, price), amount))
		numWinners = api.Add(numWinners, win)
	}
	api.AssertIsEqual(c.TotalFill, totalFill)
	api.AssertIsEqual(c.TotalValue, totalValue)
	api.AssertIsEqual(c.NumWinners, numWinners)

	// The public original-order winner bits must be the un-permutation of
	// the sorted-order bits through the same selectors.
	for j := 0; j < SlotCount; j++ {
		bit := frontend.Variable(0)
		for i := 0; i < SlotCount; i++ {
			bit = api.Add(bit, api.Mul(sel[i][j], c.SortedWinnerBits[i]))
		}
		api.AssertIsEqual(c.WinnerBits[j], bit)
	}

	return nil
}
