// Package hooks lets external code rewrite what the maintenance jobs select.
//
// Two extension points exist for the expiration sweep: a query filter that may
// rewrite the selection before it runs, and a result filter that may drop or
// reorder the members it returned. Filters run in ascending priority; filters
// sharing a priority run in registration order.
package hooks

import (
	"sort"
	"sync"

	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
)

// DefaultPriority matches the priority used when callers have no preference.
const DefaultPriority = 10

// ExpiredMembersQueryFilter rewrites the expiration sweep selection.
type ExpiredMembersQueryFilter func(domain.ExpiredMembersQuery) domain.ExpiredMembersQuery

// ExpiredMembersFilter rewrites the members returned by the expiration sweep selection.
type ExpiredMembersFilter func([]domain.Member) []domain.Member

type entry[F any] struct {
	priority int
	seq      int
	fn       F
}

type chain[F any] struct {
	entries []entry[F]
}

func (c *chain[F]) add(priority, seq int, fn F) {
	c.entries = append(c.entries, entry[F]{priority: priority, seq: seq, fn: fn})
	sort.SliceStable(c.entries, func(i, j int) bool {
		if c.entries[i].priority != c.entries[j].priority {
			return c.entries[i].priority < c.entries[j].priority
		}
		return c.entries[i].seq < c.entries[j].seq
	})
}

func (c *chain[F]) snapshot() []F {
	out := make([]F, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.fn)
	}
	return out
}

// Registry holds the filters registered for each extension point.
type Registry struct {
	mu            sync.RWMutex
	seq           int
	queryFilters  chain[ExpiredMembersQueryFilter]
	memberFilters chain[ExpiredMembersFilter]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddExpiredMembersQueryFilter registers fn on the expired-members query extension point.
func (r *Registry) AddExpiredMembersQueryFilter(priority int, fn ExpiredMembersQueryFilter) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.queryFilters.add(priority, r.seq, fn)
}

// AddExpiredMembersFilter registers fn on the expired-members result extension point.
func (r *Registry) AddExpiredMembersFilter(priority int, fn ExpiredMembersFilter) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.memberFilters.add(priority, r.seq, fn)
}

// ApplyExpiredMembersQuery runs q through every registered query filter.
func (r *Registry) ApplyExpiredMembersQuery(q domain.ExpiredMembersQuery) domain.ExpiredMembersQuery {
	if r == nil {
		return q
	}
	r.mu.RLock()
	filters := r.queryFilters.snapshot()
	r.mu.RUnlock()

	for _, fn := range filters {
		q = fn(q)
	}
	return q
}

// ApplyExpiredMembers runs members through every registered result filter.
func (r *Registry) ApplyExpiredMembers(members []domain.Member) []domain.Member {
	if r == nil {
		return members
	}
	r.mu.RLock()
	filters := r.memberFilters.snapshot()
	r.mu.RUnlock()

	for _, fn := range filters {
		members = fn(members)
	}
	return members
}
