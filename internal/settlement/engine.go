// engine.go - Fill execution behind the settlement verifier.
//
// The verifier decides WHETHER a clearing settles; the engine records WHAT
// settles. LedgerEngine is the reference engine: an append-only JSON file of
// executed fills, one entry per settled auction.

package settlement

import (
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"sync"

	"sealedbid/internal/clearing"
)

// ErrDuplicateFill is returned when a fill for the same registry is executed
// twice.
var ErrDuplicateFill = errors.New("settlement: fill already executed for registry")

// FillOrder is the single settlement call for one verified clearing: the
// aggregate taker fill and counter-value plus the winner list. Per-winner
// prices and amounts are never disclosed; only identities and slots are
// public.
type FillOrder struct {
	RegistryAddress *big.Int          `json:"registry_address"`
	TakerFillAmount uint64            `json:"taker_fill_amount"`
	CounterValue    *big.Int          `json:"counter_value"`
	Winners         []clearing.Winner `json:"winners"`
}

// Engine executes the settlement call for verified clearings. Fill must be
// idempotent-safe under "settle once": a repeated order for the same registry
// returns an error instead of executing again.
type Engine interface {
	Fill(order FillOrder) error
}

// LedgerEngine records fills in an append-only in-memory ledger, persistable
// as a single JSON file.
type LedgerEngine struct {
	mu    sync.Mutex
	Fills []FillOrder `json:"fills"`
}

// NewLedgerEngine creates an empty fill ledger.
func NewLedgerEngine() *LedgerEngine {
	return &LedgerEngine{Fills: make([]FillOrder, 0)}
}

// Fill appends one executed fill. A second fill for the same registry is
// rejected.
func (e *LedgerEngine) Fill(order FillOrder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.Fills {
		if f.RegistryAddress.Cmp(order.RegistryAddress) == 0 {
			return ErrDuplicateFill
		}
	}
	e.Fills = append(e.Fills, order)
	return nil
}

// FillCount returns the number of executed fills.
func (e *LedgerEngine) FillCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Fills)
}

// SaveToFile saves the fill ledger as an indented JSON file, overwriting any
// existing file.
func (e *LedgerEngine) SaveToFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(e.Fills)
}

// LoadLedgerEngine loads a fill ledger from a JSON file.
func LoadLedgerEngine(path string) (*LedgerEngine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e := NewLedgerEngine()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&e.Fills); err != nil {
		return nil, err
	}
	return e, nil
}
