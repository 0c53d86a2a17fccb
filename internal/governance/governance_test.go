package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poolfund/poolfund-api/internal/broadcast"
	"github.com/poolfund/poolfund-api/internal/ledger"
	"github.com/poolfund/poolfund-api/internal/swap"
	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const wrappedSOL = "So11111111111111111111111111111111111111112"

type stubBuilder struct{}

func (stubBuilder) Build(_ context.Context, tokenMint, side string, amount float64) (*swap.Quote, error) {
	return &swap.Quote{
		TokenMint:     tokenMint,
		TokenSymbol:   "SOL",
		Side:          side,
		Amount:        amount,
		PricePerToken: 2.5,
		Payload:       []byte(`{}`),
		QuotedAt:      time.Now(),
	}, nil
}

type stubExecutor struct {
	fail  bool
	calls int
}

func (s *stubExecutor) Execute(_ context.Context, _ []byte, _ string, amount float64) (*broadcast.Receipt, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("node unavailable")
	}
	return &broadcast.Receipt{
		Signature:      "5igSig",
		AmountReceived: amount,
		BroadcastAt:    time.Now(),
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&types.Group{},
		&types.Member{},
		&types.Poll{},
		&types.Vote{},
		&types.Trade{},
	))
	return db
}

// newTestGroup creates a group with alice (admin), bob (trader), carol
// (member) and a pooled balance of 100.
func newTestGroup(t *testing.T, svc *ledger.Service) *types.Group {
	t.Helper()

	group, err := svc.CreateGroup("degens", "alice", 10)
	require.NoError(t, err)
	_, err = svc.JoinGroup(group.GroupID, "bob", types.RoleTrader)
	require.NoError(t, err)
	_, err = svc.JoinGroup(group.GroupID, "carol", types.RoleMember)
	require.NoError(t, err)
	_, err = svc.AddContribution(group.GroupID, "alice", 100)
	require.NoError(t, err)
	return group
}

func newTestService(t *testing.T, executor *stubExecutor) (*Service, *ledger.Service) {
	t.Helper()

	db := newTestDB(t)
	ledgerSvc := ledger.NewService(db)
	return NewService(db, ledgerSvc, stubBuilder{}, executor, 51), ledgerSvc
}

func TestTallyConsensus(t *testing.T) {
	yes := func(n int) []types.Vote {
		votes := make([]types.Vote, n)
		for i := range votes {
			votes[i].Approve = true
		}
		return votes
	}

	// 6 of 10 eligible at 51% threshold
	tally := TallyConsensus(yes(6), 10, 51)
	assert.Equal(t, 6, tally.Yes)
	assert.Equal(t, 60.0, tally.YesPercentage)
	assert.True(t, tally.Reached)

	// 5 of 10: abstentions count against consensus
	tally = TallyConsensus(yes(5), 10, 51)
	assert.Equal(t, 50.0, tally.YesPercentage)
	assert.False(t, tally.Reached)

	// No eligible members never divides by zero
	tally = TallyConsensus(nil, 0, 51)
	assert.Equal(t, 0.0, tally.YesPercentage)
	assert.False(t, tally.Reached)
}

func TestTallyConsensus_MixedVotes(t *testing.T) {
	votes := []types.Vote{
		{Approve: true},
		{Approve: true},
		{Approve: false},
	}

	tally := TallyConsensus(votes, 4, 50)
	assert.Equal(t, 2, tally.Yes)
	assert.Equal(t, 1, tally.No)
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 50.0, tally.YesPercentage)
	assert.True(t, tally.Reached)
}

func TestCreatePoll_Authorization(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	// Plain member cannot propose a trade
	_, err := svc.CreatePoll(group.GroupID, "carol", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	assert.ErrorIs(t, err, types.ErrNotAuthorized)

	// Trader can
	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, types.PollOpen, poll.Status)

	// Only an admin may propose ending the group
	_, err = svc.CreatePoll(group.GroupID, "bob", types.PollTypeEndGroup, "", "", 0, time.Hour)
	assert.ErrorIs(t, err, types.ErrNotAuthorized)

	_, err = svc.CreatePoll(group.GroupID, "alice", types.PollTypeEndGroup, "", "", 0, time.Hour)
	require.NoError(t, err)
}

func TestCreatePoll_Validation(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	_, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, "garbage-mint", types.SideBuy, 10, time.Hour)
	assert.Error(t, err)

	_, err = svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, "SIDEWAYS", 10, time.Hour)
	assert.Error(t, err)

	_, err = svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, -5, time.Hour)
	assert.Error(t, err)

	// Non-member cannot create polls at all
	_, err = svc.CreatePoll(group.GroupID, "mallory", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	assert.ErrorIs(t, err, types.ErrMemberNotFound)
}

func TestCastVote_DuplicateRejected(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	require.NoError(t, err)

	_, err = svc.CastVote(poll.PollID, "alice", true)
	require.NoError(t, err)

	// A second vote is rejected, not overwritten
	_, err = svc.CastVote(poll.PollID, "alice", false)
	assert.ErrorIs(t, err, types.ErrDuplicateVote)

	tally, err := svc.Tally(poll)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Yes)
	assert.Equal(t, 0, tally.No)
}

func TestCastVote_ClosedAndExpiredPolls(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	// Already expired at creation
	expired, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, -time.Minute)
	require.NoError(t, err)

	_, err = svc.CastVote(expired.PollID, "alice", true)
	assert.ErrorIs(t, err, types.ErrPollClosed)

	// Cancelled poll
	cancelled, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	require.NoError(t, err)
	_, err = svc.CancelPoll(cancelled.PollID, "bob")
	require.NoError(t, err)

	_, err = svc.CastVote(cancelled.PollID, "alice", true)
	assert.ErrorIs(t, err, types.ErrPollClosed)
}

func TestCastVote_NonMemberIneligible(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	require.NoError(t, err)

	_, err = svc.CastVote(poll.PollID, "mallory", true)
	assert.ErrorIs(t, err, types.ErrMemberNotFound)
}

func voteYes(t *testing.T, svc *Service, pollID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := svc.CastVote(pollID, u, true)
		require.NoError(t, err)
	}
}

func TestExecutePoll_TradeAppendsLedger(t *testing.T) {
	executor := &stubExecutor{}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 40, time.Hour)
	require.NoError(t, err)
	voteYes(t, svc, poll.PollID, "alice", "bob")

	executed, err := svc.ExecutePoll(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollExecuted, executed.Status)
	assert.Equal(t, 1, executor.calls)

	got, err := ledgerSvc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.CurrentBalance)

	trades, err := ledgerSvc.GetTrades(group.GroupID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, poll.PollID, trades[0].PollID)
	assert.Equal(t, "5igSig", trades[0].Signature)
	assert.Equal(t, 2.5, trades[0].PricePerToken)

	// A second execution attempt finds a closed poll
	_, err = svc.ExecutePoll(context.Background(), poll.PollID)
	assert.ErrorIs(t, err, types.ErrPollClosed)
	assert.Equal(t, 1, executor.calls)
}

func TestExecutePoll_ConsensusNotReached(t *testing.T) {
	executor := &stubExecutor{}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 40, time.Hour)
	require.NoError(t, err)

	// 1 of 3 eligible at 51%
	voteYes(t, svc, poll.PollID, "bob")

	_, err = svc.ExecutePoll(context.Background(), poll.PollID)
	assert.ErrorIs(t, err, types.ErrConsensusNotReached)
	assert.Equal(t, 0, executor.calls)
}

func TestExecutePoll_Expired(t *testing.T) {
	executor := &stubExecutor{}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 40, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ExecutePoll(context.Background(), poll.PollID)
	assert.ErrorIs(t, err, types.ErrPollExpired)
	assert.Equal(t, 0, executor.calls)
}

func TestExecutePoll_BroadcastFailureLeavesPollOpen(t *testing.T) {
	executor := &stubExecutor{fail: true}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 40, time.Hour)
	require.NoError(t, err)
	voteYes(t, svc, poll.PollID, "alice", "bob")

	_, err = svc.ExecutePoll(context.Background(), poll.PollID)
	assert.ErrorIs(t, err, types.ErrExternalService)

	// Poll stays open, ledger untouched
	resp, err := svc.GetPoll(poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollOpen, resp.Status)

	got, err := ledgerSvc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.CurrentBalance)

	trades, err := ledgerSvc.GetTrades(group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Once the service recovers, the same still-open poll executes
	executor.fail = false
	executed, err := svc.ExecutePoll(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollExecuted, executed.Status)
	assert.Equal(t, 2, executor.calls)
}

func TestExecutePoll_InsufficientBalance(t *testing.T) {
	executor := &stubExecutor{}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 500, time.Hour)
	require.NoError(t, err)
	voteYes(t, svc, poll.PollID, "alice", "bob")

	_, err = svc.ExecutePoll(context.Background(), poll.PollID)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	// No request id was spent on a trade the ledger would reject
	assert.Equal(t, 0, executor.calls)
}

func TestExecutePoll_EndGroup(t *testing.T) {
	executor := &stubExecutor{}
	svc, ledgerSvc := newTestService(t, executor)
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "alice", types.PollTypeEndGroup, "", "", 0, time.Hour)
	require.NoError(t, err)
	voteYes(t, svc, poll.PollID, "alice", "bob")

	executed, err := svc.ExecutePoll(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollExecuted, executed.Status)

	got, err := ledgerSvc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, types.GroupEnded, got.Status)

	// No trade polls may follow on an ended group
	_, err = svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	assert.ErrorIs(t, err, types.ErrGroupEnded)
}

func TestCancelPoll_Authorization(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, time.Hour)
	require.NoError(t, err)

	// A plain member who is not the creator cannot cancel
	_, err = svc.CancelPoll(poll.PollID, "carol")
	assert.ErrorIs(t, err, types.ErrNotAuthorized)

	// Group admin can cancel any poll
	cancelled, err := svc.CancelPoll(poll.PollID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.PollCancelled, cancelled.Status)

	// Cancelling twice fails
	_, err = svc.CancelPoll(poll.PollID, "alice")
	assert.ErrorIs(t, err, types.ErrPollClosed)
}

func TestLazyExpiry_ReportedAsCancelled(t *testing.T) {
	svc, ledgerSvc := newTestService(t, &stubExecutor{})
	group := newTestGroup(t, ledgerSvc)

	poll, err := svc.CreatePoll(group.GroupID, "bob", types.PollTypeTrade, wrappedSOL, types.SideBuy, 10, -time.Minute)
	require.NoError(t, err)

	// The stored status is still OPEN; readers see CANCELLED
	resp, err := svc.GetPoll(poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollCancelled, resp.Status)

	stored, err := svc.db.GetPoll(poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, types.PollOpen, stored.Status)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	open := &types.Poll{Status: types.PollOpen, ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, types.PollOpen, EffectiveStatus(open, now))

	expired := &types.Poll{Status: types.PollOpen, ExpiresAt: now.Add(-time.Hour)}
	assert.Equal(t, types.PollCancelled, EffectiveStatus(expired, now))

	executed := &types.Poll{Status: types.PollExecuted, ExpiresAt: now.Add(-time.Hour)}
	assert.Equal(t, types.PollExecuted, EffectiveStatus(executed, now))
}
