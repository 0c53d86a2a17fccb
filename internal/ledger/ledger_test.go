package ledger

import (
	"testing"

	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func TestCreateGroup_CreatorIsAdmin(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, types.GroupActive, group.Status)
	assert.Equal(t, 0.0, group.CurrentBalance)

	member, err := svc.GetMember(group.GroupID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, member.Role)
}

func TestJoinGroup_CapacityExceeded(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 2)
	require.NoError(t, err)

	_, err = svc.JoinGroup(group.GroupID, "bob", types.RoleMember)
	require.NoError(t, err)

	// Third member over a max of 2
	_, err = svc.JoinGroup(group.GroupID, "carol", types.RoleMember)
	assert.ErrorIs(t, err, types.ErrCapacityExceeded)
}

func TestJoinGroup_DuplicateMember(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)

	_, err = svc.JoinGroup(group.GroupID, "bob", types.RoleTrader)
	require.NoError(t, err)

	_, err = svc.JoinGroup(group.GroupID, "bob", types.RoleMember)
	assert.ErrorIs(t, err, types.ErrAlreadyMember)
}

func TestJoinGroup_UnknownGroup(t *testing.T) {
	svc := NewService(newTestDB(t))

	_, err := svc.JoinGroup("GRP_missing", "bob", types.RoleMember)
	assert.ErrorIs(t, err, types.ErrGroupNotFound)
}

func TestAddContribution(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)

	member, err := svc.AddContribution(group.GroupID, "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, member.Contribution)

	member, err = svc.AddContribution(group.GroupID, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, 150.0, member.Contribution)

	got, err := svc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, got.CurrentBalance)
}

func TestAddContribution_NonMember(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)

	_, err = svc.AddContribution(group.GroupID, "mallory", 100)
	assert.ErrorIs(t, err, types.ErrMemberNotFound)
}

func TestAppendTrade_BuyDebitsSellCredits(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)
	_, err = svc.AddContribution(group.GroupID, "alice", 100)
	require.NoError(t, err)

	err = svc.AppendTrade(&types.Trade{
		GroupID:     group.GroupID,
		PollID:      "POLL_1",
		TokenSymbol: "SOL",
		Side:        types.SideBuy,
		Amount:      40,
	})
	require.NoError(t, err)

	got, err := svc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.CurrentBalance)

	err = svc.AppendTrade(&types.Trade{
		GroupID:     group.GroupID,
		PollID:      "POLL_2",
		TokenSymbol: "SOL",
		Side:        types.SideSell,
		Amount:      70,
	})
	require.NoError(t, err)

	got, err = svc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 130.0, got.CurrentBalance)

	trades, err := svc.GetTrades(group.GroupID)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestAppendTrade_InsufficientBalanceIsAtomic(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)
	_, err = svc.AddContribution(group.GroupID, "alice", 50)
	require.NoError(t, err)

	err = svc.AppendTrade(&types.Trade{
		GroupID:     group.GroupID,
		PollID:      "POLL_1",
		TokenSymbol: "SOL",
		Side:        types.SideBuy,
		Amount:      80,
	})
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	// Nothing applied: balance and trade list untouched
	got, err := svc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.CurrentBalance)

	trades, err := svc.GetTrades(group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestEndGroup_Terminal(t *testing.T) {
	svc := NewService(newTestDB(t))

	group, err := svc.CreateGroup("degens", "alice", 5)
	require.NoError(t, err)
	_, err = svc.AddContribution(group.GroupID, "alice", 50)
	require.NoError(t, err)

	require.NoError(t, svc.EndGroup(group.GroupID))

	got, err := svc.GetGroup(group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, types.GroupEnded, got.Status)

	// No mutation may follow
	assert.ErrorIs(t, svc.EndGroup(group.GroupID), types.ErrGroupEnded)

	_, err = svc.AddContribution(group.GroupID, "alice", 10)
	assert.ErrorIs(t, err, types.ErrGroupEnded)

	_, err = svc.JoinGroup(group.GroupID, "bob", types.RoleMember)
	assert.ErrorIs(t, err, types.ErrGroupEnded)

	err = svc.AppendTrade(&types.Trade{
		GroupID: group.GroupID,
		Side:    types.SideSell,
		Amount:  10,
	})
	assert.ErrorIs(t, err, types.ErrGroupEnded)

	// Historical queries still work
	trades, err := svc.GetTrades(group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
