package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns all mutations of a group's financial record. Balance
// mutations are serialized per group id so the non-negative balance check
// and its apply are atomic even under concurrent trades and deposits.
type Service struct {
	db    *Database
	locks *groupLocks
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		locks: newGroupLocks(),
	}
}

// groupLocks hands out one mutex per group id.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[string]*sync.Mutex)}
}

func (g *groupLocks) forGroup(groupID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[groupID] = l
	}
	return l
}

// CreateGroup creates a new active group with the creator as its admin.
func (s *Service) CreateGroup(name, creatorID string, maxMembers int) (*types.Group, error) {
	if maxMembers < 1 {
		return nil, fmt.Errorf("max_members must be at least 1, got %d", maxMembers)
	}

	group := &types.Group{
		GroupID:    "GRP_" + uuid.New().String(),
		Name:       name,
		MaxMembers: maxMembers,
		Status:     types.GroupActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := s.db.Transaction(func(tx *Database) error {
		if err := tx.CreateGroup(group); err != nil {
			return err
		}
		return tx.CreateMember(&types.Member{
			GroupID:  group.GroupID,
			UserID:   creatorID,
			Role:     types.RoleAdmin,
			JoinedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("group_id", group.GroupID).
		Str("creator_id", creatorID).
		Int("max_members", maxMembers).
		Str("service", "ledger").
		Msg("group created")

	return group, nil
}

// JoinGroup adds a user to a group. Fails when the group is ended, full,
// or the user already belongs to it.
func (s *Service) JoinGroup(groupID, userID, role string) (*types.Member, error) {
	if role == "" {
		role = types.RoleMember
	}
	if role != types.RoleMember && role != types.RoleTrader {
		return nil, fmt.Errorf("invalid join role %q", role)
	}

	lock := s.locks.forGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	var member *types.Member
	err := s.db.Transaction(func(tx *Database) error {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if group.Status == types.GroupEnded {
			return types.ErrGroupEnded
		}

		if _, err := tx.GetMember(groupID, userID); err == nil {
			return types.ErrAlreadyMember
		} else if !errors.Is(err, types.ErrMemberNotFound) {
			return err
		}

		count, err := tx.CountMembers(groupID)
		if err != nil {
			return err
		}
		if count >= int64(group.MaxMembers) {
			return types.ErrCapacityExceeded
		}

		member = &types.Member{
			GroupID:  groupID,
			UserID:   userID,
			Role:     role,
			JoinedAt: time.Now(),
		}
		return tx.CreateMember(member)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("group_id", groupID).
		Str("user_id", userID).
		Str("role", role).
		Str("service", "ledger").
		Msg("member joined group")

	return member, nil
}

// AddContribution records a deposit: the member's contribution and the
// group's pooled balance both increase by amount.
func (s *Service) AddContribution(groupID, userID string, amount float64) (*types.Member, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("contribution must be positive, got %v", amount)
	}

	lock := s.locks.forGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	var member *types.Member
	err := s.db.Transaction(func(tx *Database) error {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if group.Status == types.GroupEnded {
			return types.ErrGroupEnded
		}

		member, err = tx.GetMember(groupID, userID)
		if err != nil {
			return err
		}

		member.Contribution += amount
		group.CurrentBalance += amount
		group.UpdatedAt = time.Now()

		if err := tx.SaveMember(member); err != nil {
			return err
		}
		return tx.SaveGroup(group)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("group_id", groupID).
		Str("user_id", userID).
		Float64("amount", amount).
		Float64("contribution", member.Contribution).
		Str("service", "ledger").
		Msg("contribution recorded")

	return member, nil
}

// AppendTrade records an executed trade and adjusts the pooled balance:
// buys debit it, sells credit it. A trade that would drive the balance
// negative is rejected and nothing is applied.
func (s *Service) AppendTrade(trade *types.Trade) error {
	lock := s.locks.forGroup(trade.GroupID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.Transaction(func(tx *Database) error {
		group, err := tx.GetGroup(trade.GroupID)
		if err != nil {
			return err
		}
		if group.Status == types.GroupEnded {
			return types.ErrGroupEnded
		}

		switch trade.Side {
		case types.SideBuy:
			if group.CurrentBalance-trade.Amount < 0 {
				return types.ErrInsufficientBalance
			}
			group.CurrentBalance -= trade.Amount
		case types.SideSell:
			group.CurrentBalance += trade.Amount
		default:
			return fmt.Errorf("invalid trade side %q", trade.Side)
		}

		if trade.TradeID == "" {
			trade.TradeID = "TRD_" + uuid.New().String()
		}
		if trade.ExecutedAt.IsZero() {
			trade.ExecutedAt = time.Now()
		}
		group.UpdatedAt = time.Now()

		if err := tx.CreateTrade(trade); err != nil {
			return err
		}
		return tx.SaveGroup(group)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("group_id", trade.GroupID).
		Str("trade_id", trade.TradeID).
		Str("side", trade.Side).
		Float64("amount", trade.Amount).
		Str("service", "ledger").
		Msg("trade appended")

	return nil
}

// EndGroup marks a group ended. Terminal: only reads may follow.
func (s *Service) EndGroup(groupID string) error {
	lock := s.locks.forGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.Transaction(func(tx *Database) error {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if group.Status == types.GroupEnded {
			return types.ErrGroupEnded
		}

		group.Status = types.GroupEnded
		group.UpdatedAt = time.Now()
		return tx.SaveGroup(group)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("group_id", groupID).
		Str("service", "ledger").
		Msg("group ended")

	return nil
}

// GetGroup retrieves a group by its ID.
func (s *Service) GetGroup(groupID string) (*types.Group, error) {
	return s.db.GetGroup(groupID)
}

// GetMember retrieves one member of a group.
func (s *Service) GetMember(groupID, userID string) (*types.Member, error) {
	return s.db.GetMember(groupID, userID)
}

// GetMembers retrieves all members of a group in join order.
func (s *Service) GetMembers(groupID string) ([]types.Member, error) {
	return s.db.GetMembers(groupID)
}

// GetTrades retrieves a group's trade history.
func (s *Service) GetTrades(groupID string) ([]types.Trade, error) {
	return s.db.GetTrades(groupID)
}
