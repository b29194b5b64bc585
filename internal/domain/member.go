/**
 * @description
 * Domain models used by the membership scheduler.
 */
package domain

import (
	"fmt"
	"time"
)

// Status is the subscription status stored on a member.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusFree      Status = "free"
)

// Statuses lists every status a member can hold, in the order counters are reconciled.
var Statuses = []Status{StatusActive, StatusPending, StatusCancelled, StatusExpired, StatusFree}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown member status %q", raw)
}

// Member represents a user account together with its subscription metadata.
type Member struct {
	ID                   int64      `json:"id"`
	Username             string     `json:"username"`
	Email                string     `json:"email"`
	DisplayName          string     `json:"display_name"`
	FirstName            string     `json:"first_name"`
	LastName             string     `json:"last_name"`
	Status               Status     `json:"status"`
	Expiration           *time.Time `json:"expiration,omitempty"` // nil means the membership never expires
	Recurring            bool       `json:"recurring"`
	SubscriptionLevelID  int64      `json:"subscription_level_id"`
	SubscriptionName     string     `json:"subscription_name"`
	ExpiringNoticeSentAt *time.Time `json:"expiring_notice_sent_at,omitempty"`
}

// HasExpiringNoticeBeenSent reports whether the expiring-soon marker is set.
func (m Member) HasExpiringNoticeBeenSent() bool {
	return m.ExpiringNoticeSentAt != nil
}

// MemberNote is an audit entry appended to a member's history.
type MemberNote struct {
	ID        string    `json:"id"`
	MemberID  int64     `json:"member_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredMembersQuery selects members eligible for the expiration sweep.
// It is passed through the expired-members query hooks before execution.
type ExpiredMembersQuery struct {
	ExpiresBefore time.Time
	Status        Status
	Limit         int
}

// ExpiringMembersQuery selects non-recurring members whose expiration falls in a window.
type ExpiringMembersQuery struct {
	ExpiresFrom time.Time
	ExpiresTo   time.Time
	Status      Status
	Limit       int
}
