package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// RevealSink receives validated reveal payloads. The auctioneer's prover
// implements this by recording the contained bid.
type RevealSink interface {
	HandleReveal(payload RevealPayload)
}

// Handler processes one decoded message payload.
type Handler func(senderID string, payload json.RawMessage)

// Node represents a bidder or auctioneer in the reveal network.
type Node struct {
	ID        string
	Address   string
	Peers     map[string]string // Map of Node ID to its address
	server    *http.Server
	waitGroup *sync.WaitGroup

	mu       sync.Mutex
	sink     RevealSink
	handlers map[string]Handler
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, wg *sync.WaitGroup) *Node {
	return &Node{
		ID:        id,
		Address:   address,
		Peers:     peers,
		waitGroup: wg,
		handlers:  make(map[string]Handler),
	}
}

// SetRevealSink routes incoming reveal messages to sink. Auctioneer nodes set
// one; bidder nodes leave it nil and ignore reveals.
func (n *Node) SetRevealSink(sink RevealSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = sink
}

// RegisterHandler installs a handler for a custom message type. Built-in
// types cannot be overridden.
func (n *Node) RegisterHandler(messageType string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[messageType] = h
}

// messageHandler is the HTTP handler for receiving messages.
// It decodes the message envelope and then processes the payload based on its type.
func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		log.Printf("[%s] Received a bad request: %v", n.ID, err)
		return
	}

	log.Printf("[%s] Received message of type '%s'", n.ID, msg.Type)

	switch msg.Type {
	case TypeReveal:
		var payload RevealPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("[%s] Error unmarshalling RevealPayload: %v", n.ID, err)
			return
		}
		n.handleReveal(payload)

	case TypeCommitNotice:
		var payload CommitNoticePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("[%s] Error unmarshalling CommitNoticePayload: %v", n.ID, err)
			return
		}
		log.Printf("[%s] Peer %s committed to registry %s", n.ID, payload.SenderID, payload.RegistryAddress)

	case TypeSimpleText:
		var textPayload SimpleTextMessage
		if err := json.Unmarshal(msg.Payload, &textPayload); err != nil {
			log.Printf("[%s] Error unmarshalling SimpleTextMessage payload: %v", n.ID, err)
			return
		}
		log.Printf("    -> Text Message: '%s'", textPayload.Content)

	default:
		n.mu.Lock()
		h, ok := n.handlers[msg.Type]
		n.mu.Unlock()
		if !ok {
			log.Printf("[%s] Received unknown message type: %s", n.ID, msg.Type)
			break
		}
		h(msg.SenderID, msg.Payload)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Message received")
}

// handleReveal forwards a reveal to the registered sink. A reveal with
// missing fields is dropped before it reaches the sink.
func (n *Node) handleReveal(payload RevealPayload) {
	if payload.RegistryAddress == nil || payload.Price == nil || payload.Amount == nil ||
		payload.Identity == nil || payload.Nonce == nil {
		log.Printf("[%s] Dropping incomplete reveal from %s", n.ID, payload.SenderID)
		return
	}

	n.mu.Lock()
	sink := n.sink
	n.mu.Unlock()
	if sink == nil {
		log.Printf("[%s] No reveal sink configured, dropping reveal from %s", n.ID, payload.SenderID)
		return
	}
	sink.HandleReveal(payload)
}

// StartServer starts the node's HTTP server in a new goroutine.
// It signals on the 'ready' channel once the server is actively listening.
func (n *Node) StartServer(ready chan<- struct{}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", n.messageHandler)

	n.server = &http.Server{
		Addr:    n.Address,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		log.Fatalf("[%s] failed to listen: %v", n.ID, err)
	}

	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		log.Printf("[%s] Server starting on %s", n.ID, n.Address)

		// Signal that the server is up and ready
		ready <- struct{}{}

		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			log.Fatalf("[%s] Server failed: %v", n.ID, err)
		}
		log.Printf("[%s] Server stopped.", n.ID)
	}()
}

// Shutdown stops the node's HTTP server.
func (n *Node) Shutdown(ctx context.Context) error {
	if n.server == nil {
		return nil
	}
	return n.server.Shutdown(ctx)
}

// SendMessage sends a message to another node in the network.
// The payload can be any struct that is marshallable to JSON.
func (n *Node) SendMessage(targetID, messageType string, payload interface{}) error {
	targetAddress, ok := n.Peers[targetID]
	if !ok {
		return fmt.Errorf("peer '%s' not found in directory", targetID)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	msg := Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: n.ID,
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message envelope: %v", err)
	}

	log.Printf("[%s] Sending message of type '%s' to %s at %s", n.ID, messageType, targetID, targetAddress)
	req, err := http.NewRequest("POST", "http://"+targetAddress+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned non-OK status: %s", resp.Status)
	}

	return nil
}

// Broadcast sends the same message to every known peer, returning the first
// error encountered after trying them all.
func (n *Node) Broadcast(messageType string, payload interface{}) error {
	var firstErr error
	for targetID := range n.Peers {
		if targetID == n.ID {
			continue
		}
		if err := n.SendMessage(targetID, messageType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
