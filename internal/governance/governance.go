package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/poolfund/poolfund-api/internal/broadcast"
	"github.com/poolfund/poolfund-api/internal/ledger"
	"github.com/poolfund/poolfund-api/internal/swap"
	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs the poll lifecycle: create, vote, tally, execute, cancel.
// Expiry is lazy: any read past expires_at reports an open, unreached poll
// as cancelled without a storage mutation or timer.
type Service struct {
	db           *Database
	ledger       *ledger.Service
	builder      swap.QuoteBuilder
	executor     broadcast.Executor
	thresholdPct float64

	mu        sync.Mutex
	pollLocks map[string]*sync.Mutex
}

func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, builder swap.QuoteBuilder, executor broadcast.Executor, thresholdPct float64) *Service {
	return &Service{
		db:           NewDatabase(gormDB),
		ledger:       ledgerService,
		builder:      builder,
		executor:     executor,
		thresholdPct: thresholdPct,
		pollLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockPoll(pollID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.pollLocks[pollID]
	if !ok {
		l = &sync.Mutex{}
		s.pollLocks[pollID] = l
	}
	return l
}

// CreatePoll opens a governance proposal. Trade polls require the trader
// or admin role; ending a group requires admin.
func (s *Service) CreatePoll(groupID, creatorID, pollType, tokenMint, side string, amount float64, expiry time.Duration) (*types.Poll, error) {
	logger := log.With().
		Str("group_id", groupID).
		Str("creator_id", creatorID).
		Str("poll_type", pollType).
		Str("service", "governance").
		Logger()

	group, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == types.GroupEnded {
		return nil, types.ErrGroupEnded
	}

	creator, err := s.ledger.GetMember(groupID, creatorID)
	if err != nil {
		return nil, err
	}

	poll := &types.Poll{
		PollID:    "POLL_" + uuid.New().String(),
		GroupID:   groupID,
		CreatorID: creatorID,
		PollType:  pollType,
		Status:    types.PollOpen,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiry),
	}

	switch pollType {
	case types.PollTypeTrade:
		if creator.Role != types.RoleTrader && creator.Role != types.RoleAdmin {
			logger.Warn().Str("role", creator.Role).Msg("trade poll rejected: creator is not a trader")
			return nil, types.ErrNotAuthorized
		}
		mint, err := solana.PublicKeyFromBase58(tokenMint)
		if err != nil {
			return nil, fmt.Errorf("invalid token mint address: %w", err)
		}
		if side != types.SideBuy && side != types.SideSell {
			return nil, fmt.Errorf("invalid trade side %q", side)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("trade amount must be positive, got %v", amount)
		}
		poll.TokenMint = mint.String()
		poll.Side = side
		poll.Amount = amount
	case types.PollTypeEndGroup:
		if creator.Role != types.RoleAdmin {
			logger.Warn().Str("role", creator.Role).Msg("end-group poll rejected: creator is not an admin")
			return nil, types.ErrNotAuthorized
		}
	default:
		return nil, fmt.Errorf("invalid poll type %q", pollType)
	}

	if err := s.db.CreatePoll(poll); err != nil {
		return nil, err
	}

	logger.Info().
		Str("poll_id", poll.PollID).
		Time("expires_at", poll.ExpiresAt).
		Msg("poll created")

	return poll, nil
}

// CastVote appends a member's vote. Votes are immutable: a second vote
// from the same user is rejected, never overwritten.
func (s *Service) CastVote(pollID, userID string, approve bool) (*types.Vote, error) {
	poll, err := s.db.GetPoll(pollID)
	if err != nil {
		return nil, err
	}

	if poll.Status != types.PollOpen || time.Now().After(poll.ExpiresAt) {
		return nil, types.ErrPollClosed
	}

	// Only group members are eligible voters.
	if _, err := s.ledger.GetMember(poll.GroupID, userID); err != nil {
		return nil, err
	}

	vote := &types.Vote{
		PollID:  pollID,
		UserID:  userID,
		Approve: approve,
		VotedAt: time.Now(),
	}

	if err := s.db.CreateVoteIfAbsent(vote); err != nil {
		return nil, err
	}

	log.Info().
		Str("poll_id", pollID).
		Str("user_id", userID).
		Bool("approve", approve).
		Str("service", "governance").
		Msg("vote cast")

	return vote, nil
}

// TallyConsensus computes consensus over the eligible member count, not
// just the votes cast: abstentions count against the proposal.
func TallyConsensus(votes []types.Vote, eligible int, thresholdPct float64) types.Tally {
	tally := types.Tally{Eligible: eligible}
	for _, v := range votes {
		if v.Approve {
			tally.Yes++
		} else {
			tally.No++
		}
	}
	tally.Total = tally.Yes + tally.No

	if eligible > 0 {
		tally.YesPercentage = float64(tally.Yes) / float64(eligible) * 100
	}
	tally.Reached = tally.YesPercentage >= thresholdPct

	return tally
}

// Tally computes the current consensus state of a poll.
func (s *Service) Tally(poll *types.Poll) (types.Tally, error) {
	votes, err := s.db.GetVotes(poll.PollID)
	if err != nil {
		return types.Tally{}, err
	}
	members, err := s.ledger.GetMembers(poll.GroupID)
	if err != nil {
		return types.Tally{}, err
	}
	return TallyConsensus(votes, len(members), s.thresholdPct), nil
}

// EffectiveStatus reports the poll's status with lazy expiry applied: an
// open poll past its deadline is cancelled from the reader's point of
// view, no storage mutation required.
func EffectiveStatus(poll *types.Poll, now time.Time) string {
	if poll.Status == types.PollOpen && now.After(poll.ExpiresAt) {
		return types.PollCancelled
	}
	return poll.Status
}

// GetPoll returns a poll with its effective status and current tally.
func (s *Service) GetPoll(pollID string) (*types.PollResponse, error) {
	poll, err := s.db.GetPoll(pollID)
	if err != nil {
		return nil, err
	}

	tally, err := s.Tally(poll)
	if err != nil {
		return nil, err
	}

	return &types.PollResponse{
		Poll:   *poll,
		Status: EffectiveStatus(poll, time.Now()),
		Tally:  tally,
	}, nil
}

// ExecutePoll carries out a poll that has reached consensus before its
// deadline. Trade polls broadcast through the external executor and only
// then touch the ledger; any external failure leaves the poll open and
// the ledger unchanged, so the poll can be retried or expire naturally.
// A poll is never marked executed unless the downstream action succeeded.
func (s *Service) ExecutePoll(ctx context.Context, pollID string) (*types.Poll, error) {
	lock := s.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	logger := log.With().
		Str("poll_id", pollID).
		Str("service", "governance").
		Logger()

	poll, err := s.db.GetPoll(pollID)
	if err != nil {
		return nil, err
	}

	if poll.Status != types.PollOpen {
		return nil, types.ErrPollClosed
	}
	if time.Now().After(poll.ExpiresAt) {
		return nil, types.ErrPollExpired
	}

	tally, err := s.Tally(poll)
	if err != nil {
		return nil, err
	}
	if !tally.Reached {
		logger.Info().
			Float64("yes_percentage", tally.YesPercentage).
			Float64("threshold", s.thresholdPct).
			Msg("execution rejected, consensus not reached")
		return nil, types.ErrConsensusNotReached
	}

	switch poll.PollType {
	case types.PollTypeTrade:
		if err := s.executeTrade(ctx, poll, logger); err != nil {
			return nil, err
		}
	case types.PollTypeEndGroup:
		if err := s.ledger.EndGroup(poll.GroupID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid poll type %q", poll.PollType)
	}

	poll.Status = types.PollExecuted
	if err := s.db.SavePoll(poll); err != nil {
		return nil, err
	}

	logger.Info().
		Str("poll_type", poll.PollType).
		Float64("yes_percentage", tally.YesPercentage).
		Msg("poll executed")

	return poll, nil
}

// executeTrade builds a fresh quote for the approved trade, broadcasts it
// once, and appends the result to the group ledger. Each attempt uses a
// new single-use request id; a failed attempt is reported upward, never
// silently retried.
func (s *Service) executeTrade(ctx context.Context, poll *types.Poll, logger zerolog.Logger) error {
	group, err := s.ledger.GetGroup(poll.GroupID)
	if err != nil {
		return err
	}

	// Fail fast before spending a request id on a trade the ledger would
	// reject anyway. AppendTrade re-checks atomically.
	if poll.Side == types.SideBuy && group.CurrentBalance < poll.Amount {
		return types.ErrInsufficientBalance
	}

	quote, err := s.builder.Build(ctx, poll.TokenMint, poll.Side, poll.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrExternalService, err)
	}

	requestID := uuid.New().String()
	receipt, err := s.executor.Execute(ctx, quote.Payload, requestID, poll.Amount)
	if err != nil {
		logger.Error().Err(err).Str("request_id", requestID).Msg("trade broadcast failed, poll remains open")
		return fmt.Errorf("%w: %v", types.ErrExternalService, err)
	}

	trade := &types.Trade{
		GroupID:       poll.GroupID,
		PollID:        poll.PollID,
		TokenMint:     poll.TokenMint,
		TokenSymbol:   quote.TokenSymbol,
		Side:          poll.Side,
		Amount:        poll.Amount,
		PricePerToken: quote.PricePerToken,
		Signature:     receipt.Signature,
		ExecutedAt:    receipt.BroadcastAt,
	}

	if err := s.ledger.AppendTrade(trade); err != nil {
		// The broadcast went out but the ledger refused the record. The
		// poll stays open; the discrepancy needs operator attention.
		logger.Error().
			Err(err).
			Str("signature", receipt.Signature).
			Msg("broadcast succeeded but ledger rejected trade")
		return err
	}

	return nil
}

// CancelPoll cancels an open poll. Only the creator or a group admin may
// cancel.
func (s *Service) CancelPoll(pollID, userID string) (*types.Poll, error) {
	lock := s.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	poll, err := s.db.GetPoll(pollID)
	if err != nil {
		return nil, err
	}

	if poll.Status != types.PollOpen {
		return nil, types.ErrPollClosed
	}

	if poll.CreatorID != userID {
		member, err := s.ledger.GetMember(poll.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if member.Role != types.RoleAdmin {
			return nil, types.ErrNotAuthorized
		}
	}

	poll.Status = types.PollCancelled
	if err := s.db.SavePoll(poll); err != nil {
		return nil, err
	}

	log.Info().
		Str("poll_id", pollID).
		Str("user_id", userID).
		Str("service", "governance").
		Msg("poll cancelled")

	return poll, nil
}

// GetPolls lists a group's polls with lazy expiry applied.
func (s *Service) GetPolls(groupID string) ([]types.PollResponse, error) {
	polls, err := s.db.GetPolls(groupID)
	if err != nil {
		return nil, err
	}

	responses := make([]types.PollResponse, 0, len(polls))
	for i := range polls {
		tally, err := s.Tally(&polls[i])
		if err != nil {
			return nil, err
		}
		responses = append(responses, types.PollResponse{
			Poll:   polls[i],
			Status: EffectiveStatus(&polls[i], time.Now()),
			Tally:  tally,
		})
	}
	return responses, nil
}
