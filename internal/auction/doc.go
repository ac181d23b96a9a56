// Package auction defines the core data model of the sealed-bid clearing
// auction: bids, maker constraints, and the MiMC commitment binding a bid to
// one registry instance.
//
// Overview:
//   - A bidder commits Hash(price, amount, identity, registryAddress) before
//     the reveal phase; the commitment is opened later by revealing the bid
//   - Commitments bind a bid to a single auction instance so a reveal cannot
//     be replayed against another registry
//   - All scalars are field elements of the BW6-761 scalar field, the field
//     the clearing circuit is compiled over
//
// Security Model:
//   - MiMC (bw6-761) is used for all commitments; the same permutation runs
//     natively here and inside the clearing circuit, so the two always agree
//   - Nonces are generated with crypto/rand
//   - A single-field tamper of a revealed bid changes its commitment
package auction
