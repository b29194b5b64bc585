package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/restrict-content-pro/membership-scheduler/internal/store"
)

type renewalRepoStub struct {
	called     bool
	memberID   int64
	expiration *time.Time
	err        error
}

func (s *renewalRepoStub) RenewMembership(ctx context.Context, memberID int64, newExpiration *time.Time) error {
	s.called = true
	s.memberID = memberID
	s.expiration = newExpiration
	return s.err
}

func newTestRenewalHandler(repo RenewalRepository) *RenewalHandler {
	return NewRenewalHandler(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleMembershipRenewed_StoresExpiration(t *testing.T) {
	repo := &renewalRepoStub{}
	h := newTestRenewalHandler(repo)

	ack := h.HandleMembershipRenewed([]byte(`{"member_id": 12, "new_expiration": "2025-02-01T00:00:00Z"}`))

	if !ack {
		t.Fatal("expected message to be acknowledged")
	}
	if repo.memberID != 12 {
		t.Fatalf("expected member 12, got %d", repo.memberID)
	}
	want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if repo.expiration == nil || !repo.expiration.Equal(want) {
		t.Fatalf("expected expiration %s, got %v", want, repo.expiration)
	}
}

func TestHandleMembershipRenewed_NullExpirationMeansNone(t *testing.T) {
	repo := &renewalRepoStub{}
	h := newTestRenewalHandler(repo)

	if !h.HandleMembershipRenewed([]byte(`{"member_id": 12, "new_expiration": null}`)) {
		t.Fatal("expected message to be acknowledged")
	}
	if repo.expiration != nil {
		t.Fatalf("expected nil expiration, got %v", repo.expiration)
	}
}

func TestHandleMembershipRenewed_AcksMalformedMessages(t *testing.T) {
	repo := &renewalRepoStub{}
	h := newTestRenewalHandler(repo)

	for _, body := range []string{`not json`, `{"new_expiration": null}`} {
		if !h.HandleMembershipRenewed([]byte(body)) {
			t.Fatalf("expected malformed message %q to be acknowledged", body)
		}
	}
	if repo.called {
		t.Fatal("did not expect repository call for malformed messages")
	}
}

func TestHandleMembershipRenewed_RequeuesOnStoreFailure(t *testing.T) {
	h := newTestRenewalHandler(&renewalRepoStub{err: errors.New("db unavailable")})
	if h.HandleMembershipRenewed([]byte(`{"member_id": 3}`)) {
		t.Fatal("expected store failure to be negatively acknowledged")
	}

	h = newTestRenewalHandler(&renewalRepoStub{err: store.ErrMemberNotFound})
	if !h.HandleMembershipRenewed([]byte(`{"member_id": 3}`)) {
		t.Fatal("expected unknown member to be acknowledged")
	}
}
