package p2p

import (
	"encoding/json"
	"math/big"

	"sealedbid/internal/auction"
)

// Message is the generic envelope for any message sent over the network.
// It allows for flexible communication of different data structures.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// Message types understood by the reveal channel.
const (
	TypeReveal       = "reveal"
	TypeCommitNotice = "commit_notice"
	TypeSimpleText   = "simple_text"
)

// RevealPayload carries one bid reveal to the auctioneer. It names the
// registry the bid was committed to so one auctioneer can run several
// auctions at once.
type RevealPayload struct {
	SenderID        string   `json:"senderId"`
	RegistryAddress *big.Int `json:"registryAddress"`
	Price           *big.Int `json:"price"`
	Amount          *big.Int `json:"amount"`
	Identity        *big.Int `json:"identity"`
	Nonce           *big.Int `json:"nonce"`
}

// Bid converts the payload back into a bid.
func (p *RevealPayload) Bid() auction.Bid {
	return auction.Bid{
		Price:    p.Price,
		Amount:   p.Amount,
		Identity: p.Identity,
		Nonce:    p.Nonce,
	}
}

// NewRevealPayload builds the reveal payload for a bid committed to the
// registry at addr.
func NewRevealPayload(senderID string, addr *big.Int, b auction.Bid) RevealPayload {
	return RevealPayload{
		SenderID:        senderID,
		RegistryAddress: addr,
		Price:           b.Price,
		Amount:          b.Amount,
		Identity:        b.Identity,
		Nonce:           b.Nonce,
	}
}

// CommitNoticePayload announces that a bidder has placed a commitment, so
// peers can track registry occupancy without reading the chain.
type CommitNoticePayload struct {
	SenderID        string   `json:"senderId"`
	RegistryAddress *big.Int `json:"registryAddress"`
	Commitment      *big.Int `json:"commitment"`
}

// SimpleTextMessage is a free-form payload, mainly for connectivity checks.
type SimpleTextMessage struct {
	Content string `json:"content"`
}
