package summary

import (
	"sort"

	"github.com/poolfund/poolfund-api/internal/types"
)

// Summarize derives one member's financial position from the group state.
// Pure: it never mutates the ledger and never calls out to a balance
// oracle; the pooled balance comes from the group record alone.
func Summarize(group *types.Group, members []types.Member, userID string) (*types.MemberSummary, error) {
	var target *types.Member
	total := 0.0
	for i := range members {
		total += members[i].Contribution
		if members[i].UserID == userID {
			target = &members[i]
		}
	}
	if target == nil {
		return nil, types.ErrMemberNotFound
	}

	// Guard against divide-by-zero before any deposits exist.
	share := 0.0
	if total > 0 {
		share = target.Contribution / total * 100
	}

	return &types.MemberSummary{
		UserID:               target.UserID,
		Contribution:         target.Contribution,
		SharePercentage:      share,
		PotentialProfitShare: group.CurrentBalance * share / 100,
		Rank:                 rank(members, userID),
		IsTrader:             target.Role == types.RoleTrader || target.Role == types.RoleAdmin,
		JoinedAt:             target.JoinedAt,
	}, nil
}

// rank returns the member's 1-based position ordered by contribution
// descending; ties go to the earlier joiner.
func rank(members []types.Member, userID string) int {
	ranked := make([]types.Member, len(members))
	copy(ranked, members)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Contribution != ranked[j].Contribution {
			return ranked[i].Contribution > ranked[j].Contribution
		}
		return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
	})

	for i := range ranked {
		if ranked[i].UserID == userID {
			return i + 1
		}
	}
	return 0
}

// SummarizeGroup aggregates contributions over all members.
func SummarizeGroup(group *types.Group, members []types.Member) *types.GroupSummary {
	total := 0.0
	largest := 0.0
	for _, m := range members {
		total += m.Contribution
		if m.Contribution > largest {
			largest = m.Contribution
		}
	}

	average := 0.0
	if len(members) > 0 {
		average = total / float64(len(members))
	}

	return &types.GroupSummary{
		GroupID:             group.GroupID,
		Status:              group.Status,
		CurrentBalance:      group.CurrentBalance,
		MemberCount:         len(members),
		TotalContributions:  total,
		AverageContribution: average,
		LargestContribution: largest,
	}
}
