package broadcast

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
)

// Receipt is the outcome of a successful sign-and-broadcast.
type Receipt struct {
	Signature      string
	AmountReceived float64
	BroadcastAt    time.Time
}

// Executor is the external signing+broadcast service. Request ids are
// single-use: the service guarantees at-most-once execution per id, so
// callers must never retry a failed Execute with the same id.
type Executor interface {
	Execute(ctx context.Context, payload []byte, requestID string, amount float64) (*Receipt, error)
}

// Service is a mock executor standing in for the real signer/broadcaster.
// It simulates network latency, a fixed success rate, and slippage on the
// amount received, and it rejects a request id it has already seen.
type Service struct {
	MinLatency  int     // in milliseconds
	MaxLatency  int
	SuccessRate float64 // 0-1, probability of successful broadcast
	SlippageBps float64 // max slippage in basis points

	mu   sync.Mutex
	seen map[string]bool
}

func NewService() *Service {
	return &Service{
		MinLatency:  5,
		MaxLatency:  50,
		SuccessRate: 0.95,
		SlippageBps: 50, // 0.5%
		seen:        make(map[string]bool),
	}
}

// Execute signs and broadcasts the payload for the given request id.
func (s *Service) Execute(ctx context.Context, payload []byte, requestID string, amount float64) (*Receipt, error) {
	logger := log.With().
		Str("request_id", requestID).
		Int("payload_bytes", len(payload)).
		Float64("amount", amount).
		Logger()

	logger.Info().Msg("attempting to sign and broadcast transaction")

	if err := s.markSeen(requestID); err != nil {
		logger.Warn().Err(err).Msg("replayed request id rejected")
		return nil, err
	}

	// Simulate network latency
	latency := mrand.Intn(s.MaxLatency-s.MinLatency+1) + s.MinLatency
	logger.Debug().Int("latency_ms", latency).Msg("simulated network latency")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if mrand.Float64() > s.SuccessRate {
		logger.Warn().
			Float64("success_rate", s.SuccessRate).
			Msg("broadcast failed due to success rate threshold")
		return nil, fmt.Errorf("broadcast failed for request %s", requestID)
	}

	// Apply slippage against the quoted amount
	slip := mrand.Float64() * s.SlippageBps / 10000
	received := amount * (1 - slip)

	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return nil, fmt.Errorf("failed to generate signature: %w", err)
	}

	receipt := &Receipt{
		Signature:      sig.String(),
		AmountReceived: received,
		BroadcastAt:    time.Now(),
	}

	logger.Info().
		Str("signature", receipt.Signature).
		Float64("amount_received", receipt.AmountReceived).
		Msg("transaction broadcast successfully")

	return receipt, nil
}

// markSeen enforces the single-use request id contract.
func (s *Service) markSeen(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[requestID] {
		return fmt.Errorf("request %s already executed", requestID)
	}
	s.seen[requestID] = true
	return nil
}
