package domain

import "time"

// Routing keys for lifecycle events published on the events exchange.
const (
	RoutingKeyStatusChanged       = "member.status_changed"
	RoutingKeyMemberExpired       = "member.expired"
	RoutingKeyExpiringNoticeSent  = "member.expiring_notice_sent"
	RoutingKeyMemberCountsUpdated = "subscription_level.counts_updated"
	RoutingKeyMembershipRenewed   = "membership.renewed"
)

// StatusChangedEvent is published whenever a job rewrites a member's status.
type StatusChangedEvent struct {
	EventID    string    `json:"event_id"`
	MemberID   int64     `json:"member_id"`
	OldStatus  Status    `json:"old_status"`
	NewStatus  Status    `json:"new_status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ExpiringNoticeSentEvent is published after a renewal reminder has been emailed.
type ExpiringNoticeSentEvent struct {
	EventID    string    `json:"event_id"`
	MemberID   int64     `json:"member_id"`
	Email      string    `json:"email"`
	Expiration time.Time `json:"expiration"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MemberCountsUpdatedEvent carries the recomputed counters for a level.
type MemberCountsUpdatedEvent struct {
	EventID    string           `json:"event_id"`
	LevelID    int64            `json:"level_id"`
	Counts     map[Status]int64 `json:"counts"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// MembershipRenewedEvent is consumed from the billing side when a member renews.
type MembershipRenewedEvent struct {
	MemberID      int64      `json:"member_id"`
	NewExpiration *time.Time `json:"new_expiration"`
}
