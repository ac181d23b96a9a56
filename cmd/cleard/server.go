// server.go - REST surface of the clearing daemon.
//
// One daemon instance runs one registry at a time: bidders commit and reveal,
// the maker closes, anyone triggers settlement. Reveals also arrive over the
// p2p channel when one is configured; both paths feed the same prover.

package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"

	"sealedbid/internal/auction"
	"sealedbid/internal/clearing"
	"sealedbid/internal/prover"
	"sealedbid/internal/registry"
	"sealedbid/internal/settlement"
	"sealedbid/p2p"
)

const daemonVersion = "0.2.0"

// Server is the clearing daemon: one factory, one active registry, and the
// prover/verifier pair around it.
type Server struct {
	cfg     *Config
	logger  *Logger
	metrics *MetricsCollector
	health  *HealthChecker
	limiter *BidderRateLimiter

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey

	mu       sync.Mutex
	factory  *registry.Factory
	reg      *registry.Registry
	cons     auction.Constraints
	prov     *prover.Prover
	verifier *settlement.Verifier
	engine   *settlement.LedgerEngine
}

// NewServer compiles the circuit, loads or generates keys, and opens the
// first registry.
func NewServer(cfg *Config, logger *Logger, metrics *MetricsCollector) (*Server, error) {
	start := time.Now()
	ccs, err := clearing.Compile()
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	metrics.RecordCircuitCompile(time.Since(start))
	logger.Info("Circuit compiled in %s", time.Since(start))

	pk, vk, err := setupKeys(cfg.KeyDir, ccs, false)
	if err != nil {
		return nil, fmt.Errorf("key setup failed: %w", err)
	}

	engine := settlement.NewLedgerEngine()
	if loaded, err := settlement.LoadLedgerEngine(cfg.FillLedgerPath); err == nil {
		engine = loaded
		logger.Info("Loaded %d fills from %s", engine.FillCount(), cfg.FillLedgerPath)
	}

	factory := registry.NewFactory()
	cons := auction.NewConstraints(cfg.MinPrice, cfg.MaxAmount)
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		health:   NewHealthChecker(daemonVersion),
		limiter:  NewBidderRateLimiter(cfg.RateLimitTokens, cfg.RefillRate, time.Duration(cfg.RefillSeconds)*time.Second),
		ccs:      ccs,
		pk:       pk,
		vk:       vk,
		factory:  factory,
		cons:     cons,
		engine:   engine,
		verifier: settlement.NewVerifier(factory, vk, engine),
	}
	s.openRegistry()

	s.health.RegisterComponent("registry", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.reg == nil {
			return fmt.Errorf("no active registry")
		}
		return nil
	})
	s.health.RegisterComponent("fill_ledger", func() error {
		return s.engine.SaveToFile(cfg.FillLedgerPath)
	})

	return s, nil
}

// openRegistry creates a fresh registry and prover for the next auction.
func (s *Server) openRegistry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = s.factory.Create()
	s.prov = prover.New(s.reg, s.cons, s.ccs, s.pk)
	s.logger.Info("Opened registry %s", s.reg.Address())
}

// HandleReveal implements p2p.RevealSink: reveals for the active registry
// feed the prover, anything else is dropped.
func (s *Server) HandleReveal(payload p2p.RevealPayload) {
	s.mu.Lock()
	reg, prov := s.reg, s.prov
	s.mu.Unlock()

	if reg == nil || payload.RegistryAddress.Cmp(reg.Address()) != 0 {
		s.logger.Warn("Dropping reveal for unknown registry %s", payload.RegistryAddress)
		return
	}
	prov.Reveal(payload.Bid())
	s.metrics.RecordReveal(reg.Address().String())
}

// Run serves the REST API until the listener fails.
func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/commit", s.handleCommit)
	mux.HandleFunc("/reveal", s.handleReveal)
	mux.HandleFunc("/close", s.handleClose)
	mux.HandleFunc("/settle", s.handleSettle)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.logger.Info("Listening on %s", s.cfg.ListenAddr)
	return http.ListenAndServe(s.cfg.ListenAddr, mux)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.metrics.RecordError(http.StatusText(status))
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type commitRequest struct {
	Identity   *big.Int `json:"identity"`
	Commitment *big.Int `json:"commitment"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Identity == nil || req.Commitment == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("identity and commitment required"))
		return
	}
	if !s.limiter.Allow(req.Identity.String()) {
		s.writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
		return
	}

	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if err := reg.Commit(req.Identity, req.Commitment); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.metrics.RecordCommit(reg.Address().String(), reg.Len())
	s.logger.Audit("commit", map[string]interface{}{
		"registry": reg.Address().String(),
		"identity": req.Identity.String(),
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"registry":  reg.Address(),
		"occupancy": reg.Len(),
	})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload p2p.RevealPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Identity == nil || payload.Price == nil || payload.Amount == nil || payload.Nonce == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("incomplete reveal"))
		return
	}
	if !s.limiter.Allow(payload.Identity.String()) {
		s.writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
		return
	}

	s.mu.Lock()
	reg, prov := s.reg, s.prov
	s.mu.Unlock()
	if payload.RegistryAddress != nil && payload.RegistryAddress.Cmp(reg.Address()) != 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown registry"))
		return
	}
	prov.Reveal(payload.Bid())
	s.metrics.RecordReveal(reg.Address().String())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"reveals": prov.RevealCount()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if err := reg.Close(); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.logger.Audit("close", map[string]interface{}{"registry": reg.Address().String()})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"registry": reg.Address(), "closed": true})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	reg, prov := s.reg, s.prov
	s.mu.Unlock()

	start := time.Now()
	att, err := prov.ProveClearing()
	if err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.metrics.RecordProofGeneration(time.Since(start))
	s.logger.Info("Proved clearing of %s in %s", reg.Address(), time.Since(start))

	if err := s.verifier.Submit(att); err != nil {
		s.logger.Audit("settlement_rejected", map[string]interface{}{
			"registry": reg.Address().String(),
			"reason":   err.Error(),
		})
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.metrics.RecordSettlement(reg.Address().String(), att.TotalFill)
	s.logger.Audit("settlement", map[string]interface{}{
		"registry":    reg.Address().String(),
		"num_winners": att.NumWinners,
		"total_fill":  att.TotalFill,
	})
	if err := s.engine.SaveToFile(s.cfg.FillLedgerPath); err != nil {
		s.logger.Error("Failed to persist fill ledger: %v", err)
	}

	// Strip the proof from the response; clients only need the outcome.
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"registry":    att.RegistryAddress,
		"winners":     att.Winners,
		"num_winners": att.NumWinners,
		"total_fill":  att.TotalFill,
		"total_value": att.TotalValue,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reg, prov := s.reg, s.prov
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"registry":   reg.Address(),
		"occupancy":  reg.Len(),
		"capacity":   registry.SlotCount,
		"closed":     reg.Closed(),
		"settled":    s.verifier.Settled(reg.Address()),
		"reveals":    prov.RevealCount(),
		"min_price":  s.cons.MinPrice,
		"max_amount": s.cons.MaxAmount,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, CreateHealthResponse(health))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.GetMetricsSummary())
}
