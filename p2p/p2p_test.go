package p2p

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"sealedbid/internal/auction"
)

// Helper to create a test network of nodes with unique ports
func setupTestNetwork(t *testing.T, nodeIDs []string, basePort int) map[string]*Node {
	peerDirectory := make(map[string]string)
	for i, id := range nodeIDs {
		peerDirectory[id] = fmt.Sprintf("localhost:%d", basePort+i)
	}
	nodes := make(map[string]*Node)
	var wg sync.WaitGroup
	readyCh := make(chan struct{})
	for id, addr := range peerDirectory {
		nodes[id] = NewNode(id, addr, peerDirectory, &wg)
	}
	for _, node := range nodes {
		node.StartServer(readyCh)
	}
	for i := 0; i < len(nodes); i++ {
		<-readyCh
	}
	return nodes
}

func shutdownNetwork(nodes map[string]*Node) {
	for _, n := range nodes {
		n.server.Close()
	}
}

// revealRecorder is a test sink collecting every delivered reveal.
type revealRecorder struct {
	mu      sync.Mutex
	reveals []RevealPayload
}

func (r *revealRecorder) HandleReveal(payload RevealPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reveals = append(r.reveals, payload)
}

func (r *revealRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reveals)
}

func TestRevealDelivery(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"bidder", "auctioneer"}, 9100)
	defer shutdownNetwork(nodes)

	sink := &revealRecorder{}
	nodes["auctioneer"].SetRevealSink(sink)

	addr := big.NewInt(777)
	bid := auction.NewBid(50, 10, auction.RandomIdentity())
	payload := NewRevealPayload("bidder", addr, bid)
	if err := nodes["bidder"].SendMessage("auctioneer", TypeReveal, payload); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for reveal")
		case <-time.After(20 * time.Millisecond):
		}
	}

	sink.mu.Lock()
	got := sink.reveals[0]
	sink.mu.Unlock()
	if got.RegistryAddress.Cmp(addr) != 0 {
		t.Errorf("registry address mismatch: got %s", got.RegistryAddress)
	}
	rebuilt := got.Bid()
	if rebuilt.Price.Cmp(bid.Price) != 0 || rebuilt.Identity.Cmp(bid.Identity) != 0 {
		t.Errorf("reveal does not round-trip the bid")
	}
}

func TestIncompleteRevealDropped(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"bidder", "auctioneer"}, 9200)
	defer shutdownNetwork(nodes)

	sink := &revealRecorder{}
	nodes["auctioneer"].SetRevealSink(sink)

	// No price field: the node must drop it before the sink.
	payload := RevealPayload{
		SenderID:        "bidder",
		RegistryAddress: big.NewInt(777),
		Identity:        big.NewInt(1),
	}
	if err := nodes["bidder"].SendMessage("auctioneer", TypeReveal, payload); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatal("incomplete reveal should not reach the sink")
	}
}

func TestBroadcast(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B", "C"}, 9300)
	defer shutdownNetwork(nodes)
	var mu sync.Mutex
	received := make(map[string]bool)
	for _, id := range []string{"B", "C"} {
		id := id
		nodes[id].RegisterHandler("roll_call", func(senderID string, payload json.RawMessage) {
			mu.Lock()
			received[id] = true
			mu.Unlock()
		})
	}
	if err := nodes["A"].Broadcast("roll_call", SimpleTextMessage{Content: "hi all"}); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !received["B"] || !received["C"] {
		t.Fatal("Broadcast not received by all nodes")
	}
}

func TestSendToNonExistentPeer(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A"}, 9400)
	defer shutdownNetwork(nodes)
	err := nodes["A"].SendMessage("B", TypeSimpleText, SimpleTextMessage{Content: "hello"})
	if err == nil {
		t.Fatal("Expected error when sending to non-existent peer, got nil")
	}
}
