package types

import (
	"time"

	"gorm.io/gorm"
)

// Member roles
const (
	RoleMember = "MEMBER"
	RoleTrader = "TRADER"
	RoleAdmin  = "ADMIN"
)

// Group statuses
const (
	GroupActive = "ACTIVE"
	GroupEnded  = "ENDED"
)

// Poll types
const (
	PollTypeTrade    = "TRADE"
	PollTypeEndGroup = "END_GROUP"
)

// Poll statuses
const (
	PollOpen      = "OPEN"
	PollExecuted  = "EXECUTED"
	PollCancelled = "CANCELLED"
)

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Group is the shared pool a set of members trades from.
// CurrentBalance is the pooled quote-currency balance and never goes negative.
type Group struct {
	gorm.Model     `json:"-"`
	GroupID        string    `gorm:"uniqueIndex" json:"group_id"`
	Name           string    `json:"name"`
	MaxMembers     int       `json:"max_members"`
	Status         string    `json:"status"` // ACTIVE, ENDED
	CurrentBalance float64   `json:"current_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Member is a user's membership in a group. One row per (group, user).
type Member struct {
	gorm.Model   `json:"-"`
	GroupID      string    `gorm:"index:idx_group_user,unique" json:"group_id"`
	UserID       string    `gorm:"index:idx_group_user,unique" json:"user_id"`
	Role         string    `json:"role"` // MEMBER, TRADER, ADMIN
	Contribution float64   `json:"contribution"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Poll is a governance proposal. Terminal statuses are EXECUTED and CANCELLED.
type Poll struct {
	gorm.Model    `json:"-"`
	PollID        string    `gorm:"uniqueIndex" json:"poll_id"`
	GroupID       string    `gorm:"index" json:"group_id"`
	CreatorID     string    `json:"creator_id"`
	PollType      string    `json:"poll_type"` // TRADE, END_GROUP
	Status        string    `json:"status"`    // OPEN, EXECUTED, CANCELLED
	TokenMint     string    `json:"token_mint,omitempty"`
	TokenSymbol   string    `json:"token_symbol,omitempty"`
	Side          string    `json:"side,omitempty"` // BUY or SELL for TRADE polls
	Amount        float64   `json:"amount,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Vote is immutable once cast. The unique index is the backstop against a
// second vote racing past the in-transaction duplicate check.
type Vote struct {
	gorm.Model `json:"-"`
	PollID     string    `gorm:"index:idx_poll_user,unique" json:"poll_id"`
	UserID     string    `gorm:"index:idx_poll_user,unique" json:"user_id"`
	Approve    bool      `json:"approve"`
	VotedAt    time.Time `json:"voted_at"`
}

// Trade is an append-only record of an executed group trade. Never mutated.
type Trade struct {
	gorm.Model    `json:"-"`
	TradeID       string    `gorm:"uniqueIndex" json:"trade_id"`
	GroupID       string    `gorm:"index" json:"group_id"`
	PollID        string    `json:"poll_id"`
	TokenMint     string    `json:"token_mint"`
	TokenSymbol   string    `json:"token_symbol"`
	Side          string    `json:"side"` // BUY debits the pool, SELL credits it
	Amount        float64   `json:"amount"`
	PricePerToken float64   `json:"price_per_token"`
	Signature     string    `json:"signature"`
	ExecutedAt    time.Time `json:"executed_at"`
}
