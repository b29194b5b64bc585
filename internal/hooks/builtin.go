package hooks

import "github.com/restrict-content-pro/membership-scheduler/internal/domain"

// LimitExpiredMembers caps how many rows one expiration sweep considers.
func LimitExpiredMembers(limit int) ExpiredMembersQueryFilter {
	return func(q domain.ExpiredMembersQuery) domain.ExpiredMembersQuery {
		if limit > 0 && (q.Limit == 0 || limit < q.Limit) {
			q.Limit = limit
		}
		return q
	}
}

// ExcludeLevels drops members of the given subscription levels from the sweep.
func ExcludeLevels(levelIDs []int64) ExpiredMembersFilter {
	excluded := make(map[int64]struct{}, len(levelIDs))
	for _, id := range levelIDs {
		excluded[id] = struct{}{}
	}
	return func(members []domain.Member) []domain.Member {
		if len(excluded) == 0 {
			return members
		}
		out := make([]domain.Member, 0, len(members))
		for _, m := range members {
			if _, skip := excluded[m.SubscriptionLevelID]; !skip {
				out = append(out, m)
			}
		}
		return out
	}
}
