// attestation.go - The portable clearing artifact.
//
// An Attestation carries the Groth16 proof together with every public input
// needed to re-derive the verification witness. It is what the prover hands
// to the settlement layer, serializable as JSON for transport.

package clearing

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"

	"sealedbid/internal/auction"
)

// ErrMissingProof is returned when an attestation carries no proof bytes.
var ErrMissingProof = errors.New("clearing: attestation has no proof")

// Winner names one winning slot and the identity that committed to it.
type Winner struct {
	Slot     int      `json:"slot"`
	Identity *big.Int `json:"identity"`
}

// Attestation is the proved outcome of clearing one registry.
type Attestation struct {
	Proof           []byte              `json:"proof"`
	RegistryAddress *big.Int            `json:"registry_address"`
	MinPrice        *big.Int            `json:"min_price"`
	MaxAmount       *big.Int            `json:"max_amount"`
	Commitments     [SlotCount]*big.Int `json:"commitments"`
	WinnerBits      [SlotCount]bool     `json:"winner_bits"`
	TotalFill       uint64              `json:"total_fill"`
	TotalValue      *big.Int            `json:"total_value"`
	NumWinners      int                 `json:"num_winners"`
	Winners         []Winner            `json:"winners"`
}

// Marshal encodes the attestation as JSON.
func (a *Attestation) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAttestation decodes a JSON attestation.
func UnmarshalAttestation(data []byte) (*Attestation, error) {
	var a Attestation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Assignment builds the full prover witness for a cleared registry. bids are
// in slot order with null bids padding unrevealed slots; commitments are the
// registry's live slot commitments.
func Assignment(bids []auction.Bid, cons auction.Constraints, registryAddr *big.Int, commitments [SlotCount]*big.Int, res *Result) (*Circuit, error) {
	if len(bids) != SlotCount {
		return nil, ErrSlotCountMismatch
	}
	w := &Circuit{
		RegistryAddress: registryAddr,
		MinPrice:        cons.MinPrice,
		MaxAmount:       cons.MaxAmount,
		TotalFill:       res.TotalFill,
		TotalValue:      res.TotalValue,
		NumWinners:      res.NumWinners,
	}
	for i := 0; i < SlotCount; i++ {
		w.Commitments[i] = commitments[i]
		w.Prices[i] = bids[i].Price
		w.Amounts[i] = bids[i].Amount
		w.Identities[i] = bids[i].Identity
		w.Nonces[i] = bids[i].Nonce
		w.WinnerBits[i] = boolToInt(res.WinnerBits[i])
	}
	for i, slot := range res.SortedIndices {
		w.SortedIndices[i] = slot
		w.SortedPrices[i] = bids[slot].Price
		w.SortedAmounts[i] = bids[slot].Amount
		w.SortedWinnerBits[i] = boolToInt(res.WinnerBits[slot])
	}
	return w, nil
}

// PublicWitness rebuilds the public-only verification witness from the
// attestation's fields.
func (a *Attestation) PublicWitness() (witness.Witness, error) {
	w := &Circuit{
		RegistryAddress: a.RegistryAddress,
		MinPrice:        a.MinPrice,
		MaxAmount:       a.MaxAmount,
		TotalFill:       a.TotalFill,
		TotalValue:      a.TotalValue,
		NumWinners:      a.NumWinners,
	}
	for i := 0; i < SlotCount; i++ {
		w.Commitments[i] = a.Commitments[i]
		w.WinnerBits[i] = boolToInt(a.WinnerBits[i])
	}
	return frontend.NewWitness(w, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
