// crypto.go - MiMC commitment binding and field-element helpers.
//
// The native MiMC here (bw6-761) is the same permutation the clearing circuit
// uses via gnark's std/hash/mimc, so a commitment computed off-chain equals
// the one recomputed inside the circuit. Every scalar is canonicalized to its
// 48-byte field encoding before hashing.

package auction

import (
	"crypto/rand"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// HashFields computes the MiMC hash of the given scalars, each reduced to a
// canonical field element first.
func HashFields(vals ...*big.Int) *big.Int {
	h := mimcNative.NewMiMC()
	for _, v := range vals {
		var el fr.Element
		el.SetBigInt(v)
		b := el.Bytes()
		h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// CommitBid computes the commitment binding a bid to one registry instance:
// MiMC(price, amount, identity, registryAddr). The nonce is deliberately
// outside the binding; tampering any bound field changes the hash.
func CommitBid(b Bid, registryAddr *big.Int) *big.Int {
	return HashFields(b.Price, b.Amount, b.Identity, registryAddr)
}

// NullCommitment is the well-known commitment of the all-zero bid bound to a
// registry. Unused slots carry it so downstream logic never special-cases
// emptiness.
func NullCommitment(registryAddr *big.Int) *big.Int {
	return CommitBid(ZeroBid(), registryAddr)
}

// RandomNonce samples a fresh field element with crypto/rand.
func RandomNonce() *big.Int {
	var el fr.Element
	el.SetRandom()
	return el.BigInt(new(big.Int))
}

// RandomIdentity samples a random identity scalar. Real deployments derive
// identities from bidder keys; tests and demos use this.
func RandomIdentity() *big.Int {
	b := make([]byte, 32)
	rand.Read(b)
	var el fr.Element
	el.SetBytes(b)
	return el.BigInt(new(big.Int))
}
