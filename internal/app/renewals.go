package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/restrict-content-pro/membership-scheduler/internal/store"
)

// RenewalRepository is the store surface the renewal handler needs.
type RenewalRepository interface {
	RenewMembership(ctx context.Context, memberID int64, newExpiration *time.Time) error
}

// RenewalHandler processes membership.renewed events.
type RenewalHandler struct {
	repo   RenewalRepository
	logger *slog.Logger
}

// NewRenewalHandler creates a new instance of RenewalHandler.
func NewRenewalHandler(repo RenewalRepository, logger *slog.Logger) *RenewalHandler {
	return &RenewalHandler{repo: repo, logger: logger}
}

// HandleMembershipRenewed stores the new expiration and clears the
// expiring-soon marker. It returns whether the message should be acknowledged.
func (h *RenewalHandler) HandleMembershipRenewed(body []byte) bool {
	var event domain.MembershipRenewedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("malformed membership.renewed event", "error", err)
		return true // Acknowledge, it cannot be retried.
	}
	if event.MemberID <= 0 {
		h.logger.Error("membership.renewed event without member id")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := h.repo.RenewMembership(ctx, event.MemberID, event.NewExpiration)
	switch {
	case errors.Is(err, store.ErrMemberNotFound):
		h.logger.Warn("renewed member not found", "member_id", event.MemberID)
		return true
	case err != nil:
		h.logger.Error("failed to renew membership", "member_id", event.MemberID, "error", err)
		return false
	}

	h.logger.Info("membership renewed", "member_id", event.MemberID)
	return true
}
