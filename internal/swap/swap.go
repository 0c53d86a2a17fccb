package swap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poolfund/poolfund-api/internal/broadcast"
	"github.com/poolfund/poolfund-api/internal/session"
	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Service coordinates individual swap orders: a quote opens a pending
// session, approval consumes it exactly once and delegates to the external
// executor, decline discards it.
type Service struct {
	store    *session.Store
	builder  QuoteBuilder
	executor broadcast.Executor
}

func NewService(store *session.Store, builder QuoteBuilder, executor broadcast.Executor) *Service {
	return &Service{
		store:    store,
		builder:  builder,
		executor: executor,
	}
}

// QuoteResponse is returned to the user for the approve/decline round trip.
type QuoteResponse struct {
	RequestID     string    `json:"request_id"`
	TokenMint     string    `json:"token_mint"`
	TokenSymbol   string    `json:"token_symbol"`
	Side          string    `json:"side"`
	Amount        float64   `json:"amount"`
	PricePerToken float64   `json:"price_per_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Quote builds a swap order and stores it as the user's pending session,
// silently replacing any prior pending order for that user.
func (s *Service) Quote(ctx context.Context, userID, tokenMint, side string, amount float64) (*QuoteResponse, error) {
	logger := log.With().
		Str("user_id", userID).
		Str("token_mint", tokenMint).
		Str("side", side).
		Float64("amount", amount).
		Str("service", "swap").
		Logger()

	quote, err := s.builder.Build(ctx, tokenMint, side, amount)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build swap quote")
		return nil, err
	}

	requestID := uuid.New().String()
	s.store.Put(userID, &session.Session{
		RequestID:   requestID,
		TokenMint:   quote.TokenMint,
		TokenSymbol: quote.TokenSymbol,
		Side:        quote.Side,
		Amount:      quote.Amount,
		Payload:     quote.Payload,
		CreatedAt:   time.Now(),
	})

	logger.Info().
		Str("request_id", requestID).
		Float64("price_per_token", quote.PricePerToken).
		Msg("swap quote created, awaiting approval")

	return &QuoteResponse{
		RequestID:     requestID,
		TokenMint:     quote.TokenMint,
		TokenSymbol:   quote.TokenSymbol,
		Side:          quote.Side,
		Amount:        quote.Amount,
		PricePerToken: quote.PricePerToken,
		ExpiresAt:     time.Now().Add(session.DefaultTTL),
	}, nil
}

// Approve executes the user's pending order if requestID (and side, when
// given) match the stored session.
//
// The session is consumed before the executor call and never restored:
// the payload carries a single-use request id on the external service, so
// a retry with the same id is unsafe. A failed broadcast means the user
// must re-quote from scratch.
func (s *Service) Approve(ctx context.Context, userID, requestID, side string) (*types.SwapResult, error) {
	logger := log.With().
		Str("user_id", userID).
		Str("request_id", requestID).
		Str("service", "swap").
		Logger()

	// Pre-validate without consuming so a mismatched approval leaves a
	// still-valid newer order intact. Consume re-checks atomically.
	sess := s.store.Get(userID)
	if sess == nil {
		logger.Warn().Msg("approval with no pending order")
		return nil, types.ErrSessionNotFound
	}
	if sess.RequestID != requestID {
		logger.Warn().Str("pending_request_id", sess.RequestID).Msg("approval for a different order")
		return nil, types.ErrSessionMismatch
	}
	if side != "" && side != sess.Side {
		logger.Warn().Str("pending_side", sess.Side).Str("approved_side", side).Msg("approval side mismatch")
		return nil, types.ErrSessionMismatch
	}

	sess, err := s.store.Consume(userID, requestID)
	if err != nil {
		// Lost the race to a concurrent approval or the session went stale
		// between the check and the consume.
		logger.Warn().Err(err).Msg("session no longer consumable")
		return nil, err
	}

	// Single attempt, no retries. The session is already gone regardless
	// of the outcome below.
	receipt, err := s.executor.Execute(ctx, sess.Payload, sess.RequestID, sess.Amount)
	if err != nil {
		logger.Error().Err(err).Msg("broadcast failed, order must be rebuilt from a fresh quote")
		return &types.SwapResult{
			Success:      false,
			RequestID:    requestID,
			ErrorMessage: err.Error(),
		}, nil
	}

	logger.Info().
		Str("signature", receipt.Signature).
		Float64("amount_received", receipt.AmountReceived).
		Msg("swap executed")

	return &types.SwapResult{
		Success:        true,
		RequestID:      requestID,
		Signature:      receipt.Signature,
		AmountReceived: receipt.AmountReceived,
	}, nil
}

// Decline discards the user's pending order. Always succeeds, even when
// no order exists.
func (s *Service) Decline(userID string) {
	s.store.Clear(userID)
	log.Info().
		Str("user_id", userID).
		Str("service", "swap").
		Msg("pending order declined")
}
