package types

import "time"

// SwapResult is the outcome of an approved individual swap.
type SwapResult struct {
	Success        bool    `json:"success"`
	RequestID      string  `json:"request_id"`
	Signature      string  `json:"signature,omitempty"`
	AmountReceived float64 `json:"amount_received,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Tally summarizes votes on a poll against the eligible member count.
type Tally struct {
	Yes           int     `json:"yes"`
	No            int     `json:"no"`
	Total         int     `json:"total"`
	Eligible      int     `json:"eligible"`
	YesPercentage float64 `json:"yes_percentage"`
	Reached       bool    `json:"reached"`
}

// PollResponse is a poll with its lazily-derived status and current tally.
type PollResponse struct {
	Poll   Poll   `json:"poll"`
	Status string `json:"status"` // effective status after lazy expiry
	Tally  Tally  `json:"tally"`
}

// MemberSummary is a member's derived financial position within a group.
type MemberSummary struct {
	UserID               string    `json:"user_id"`
	Contribution         float64   `json:"contribution"`
	SharePercentage      float64   `json:"share_percentage"`
	PotentialProfitShare float64   `json:"potential_profit_share"`
	Rank                 int       `json:"rank"`
	IsTrader             bool      `json:"is_trader"`
	JoinedAt             time.Time `json:"joined_at"`
}

// GroupSummary aggregates contributions across all members of a group.
type GroupSummary struct {
	GroupID             string  `json:"group_id"`
	Status              string  `json:"status"`
	CurrentBalance      float64 `json:"current_balance"`
	MemberCount         int     `json:"member_count"`
	TotalContributions  float64 `json:"total_contributions"`
	AverageContribution float64 `json:"average_contribution"`
	LargestContribution float64 `json:"largest_contribution"`
}
