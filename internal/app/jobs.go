/**
 * @description
 * Scheduled job implementations for the membership scheduler.
 *
 * Three jobs are registered:
 * - expired_members_check: moves active members past the grace window to expired.
 * - expiring_soon_notice: emails members whose non-recurring membership is about to lapse.
 * - member_counts_check: recomputes per-level member counters.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/restrict-content-pro/membership-scheduler/internal/config"
	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/restrict-content-pro/membership-scheduler/internal/hooks"
	"github.com/restrict-content-pro/membership-scheduler/internal/metrics"
)

// Job identifiers.
const (
	JobExpiredMembers = "expired_members_check"
	JobExpiringSoon   = "expiring_soon_notice"
	JobMemberCounts   = "member_counts_check"
)

// maxMembersPerRun bounds the rows a single sweep considers.
const maxMembersPerRun = 9999

const expiringNoticeNote = "Expiring notice was emailed to the member."

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobLocked  = errors.New("job is already running")
)

// Repository defines database operations needed by the jobs.
type Repository interface {
	GetExpiredMembers(ctx context.Context, q domain.ExpiredMembersQuery) ([]domain.Member, error)
	GetExpiringMembers(ctx context.Context, q domain.ExpiringMembersQuery) ([]domain.Member, error)
	ExpireMember(ctx context.Context, memberID int64, expiredBefore time.Time) (bool, error)
	MarkExpiringNoticeSent(ctx context.Context, memberID int64, sentAt time.Time) (bool, error)
	AddMemberNote(ctx context.Context, note domain.MemberNote) error
	ListSubscriptionLevels(ctx context.Context) ([]domain.SubscriptionLevel, error)
	CountMembers(ctx context.Context, levelID int64, status domain.Status) (int64, error)
	SetLevelMemberCount(ctx context.Context, levelID int64, status domain.Status, count int64) error
}

// Notifier sends member emails.
type Notifier interface {
	SendExpiringNotice(ctx context.Context, m domain.Member) error
	SendExpiredNotice(ctx context.Context, m domain.Member) error
}

// EventPublisher publishes lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// JobLocker guards against overlapping runs of the same job.
type JobLocker interface {
	TryLock(ctx context.Context, job string) (release func(), ok bool, err error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      Repository
	notifier  Notifier
	publisher EventPublisher
	locker    JobLocker
	hooks     *hooks.Registry
	logger    *slog.Logger
	config    config.Config
	now       func() time.Time
}

// NewJobs creates a new Jobs runner. publisher and locker may be nil.
func NewJobs(repo Repository, notifier Notifier, publisher EventPublisher, locker JobLocker, registry *hooks.Registry, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		locker:    locker,
		hooks:     registry,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// Names lists the registered job identifiers.
func (j *Jobs) Names() []string {
	return []string{JobExpiredMembers, JobExpiringSoon, JobMemberCounts}
}

func (j *Jobs) lookup(name string) (func(context.Context) error, bool) {
	switch name {
	case JobExpiredMembers:
		return j.CheckExpiredMembers, true
	case JobExpiringSoon:
		return j.SendExpiringSoonNotices, true
	case JobMemberCounts:
		return j.ReconcileMemberCounts, true
	}
	return nil, false
}

// Run executes one job by name under the overlap guard and records metrics.
func (j *Jobs) Run(ctx context.Context, name string) error {
	fn, ok := j.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if j.locker != nil {
		release, acquired, err := j.locker.TryLock(ctx, name)
		if err != nil {
			metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
			return err
		}
		if !acquired {
			metrics.JobRunsTotal.WithLabelValues(name, "skipped").Inc()
			return fmt.Errorf("%w: %s", ErrJobLocked, name)
		}
		defer release()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.JobDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		return err
	}
	metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
	return nil
}

// clock returns the current site-local time.
func (j *Jobs) clock() time.Time {
	return j.now().In(j.config.Location())
}

// CheckExpiredMembers moves active members whose expiration is more than two
// days in the past to expired.
func (j *Jobs) CheckExpiredMembers(ctx context.Context) error {
	j.logger.Info("starting expired members job")
	now := j.clock()

	query := domain.ExpiredMembersQuery{
		ExpiresBefore: now.Add(-24 * time.Hour),
		Status:        domain.StatusActive,
		Limit:         maxMembersPerRun,
	}
	query = j.hooks.ApplyExpiredMembersQuery(query)

	members, err := j.repo.GetExpiredMembers(ctx, query)
	if err != nil {
		j.logger.Error("failed to get expired members", "error", err)
		return err
	}
	members = j.hooks.ApplyExpiredMembers(members)

	if len(members) == 0 {
		j.logger.Info("no expired members to process")
		return nil
	}

	j.logger.Info("found expired member candidates", "count", len(members))

	// Fixed 48h, independent of DST transitions in the site timezone.
	graceCutoff := now.Add(-48 * time.Hour)
	var (
		errs    []error
		expired int
	)
	for _, member := range members {
		if member.Expiration == nil || !graceCutoff.After(*member.Expiration) {
			continue
		}
		changed, err := j.expireMember(ctx, member, graceCutoff, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
		}
	}

	j.logger.Info("expired members job finished", "expired", expired, "failed", len(errs))
	return errors.Join(errs...)
}

// expireMember reports whether the member was moved to expired. A member that
// was renewed or expired since the selection ran is left alone.
func (j *Jobs) expireMember(ctx context.Context, member domain.Member, graceCutoff, now time.Time) (bool, error) {
	changed, err := j.repo.ExpireMember(ctx, member.ID, graceCutoff)
	if err != nil {
		j.logger.Error("failed to expire member", "member_id", member.ID, "error", err)
		return false, err
	}
	if !changed {
		j.logger.Info("member no longer eligible for expiration", "member_id", member.ID)
		return false, nil
	}

	metrics.MembersExpiredTotal.Inc()
	j.logger.Info("member expired", "member_id", member.ID)

	j.addNote(ctx, member.ID, fmt.Sprintf("Status changed from %s to %s", domain.StatusActive, domain.StatusExpired), now)

	event := domain.StatusChangedEvent{
		EventID:    uuid.NewString(),
		MemberID:   member.ID,
		OldStatus:  domain.StatusActive,
		NewStatus:  domain.StatusExpired,
		OccurredAt: now,
	}
	j.publish(ctx, domain.RoutingKeyStatusChanged, event)
	j.publish(ctx, domain.RoutingKeyMemberExpired, event)

	if !j.config.ExpirationEmailEnabled {
		return true, nil
	}
	if err := j.notifier.SendExpiredNotice(ctx, member); err != nil {
		metrics.EmailFailuresTotal.WithLabelValues("expired_notice").Inc()
		j.logger.Error("failed to send expiration email", "member_id", member.ID, "error", err)
		return true, err
	}
	return true, nil
}

// SendExpiringSoonNotices emails active, non-recurring members whose
// expiration falls within the configured reminder period. Each member is
// emailed at most once per membership period.
func (j *Jobs) SendExpiringSoonNotices(ctx context.Context) error {
	period := j.config.RenewalPeriod()
	if period.IsNone() {
		j.logger.Info("renewal reminders disabled; skipping expiring soon job")
		return nil
	}

	j.logger.Info("starting expiring soon job", "period", period.String())
	now := j.clock()

	members, err := j.repo.GetExpiringMembers(ctx, domain.ExpiringMembersQuery{
		ExpiresFrom: now,
		ExpiresTo:   period.AddTo(now),
		Status:      domain.StatusActive,
		Limit:       maxMembersPerRun,
	})
	if err != nil {
		j.logger.Error("failed to get expiring members", "error", err)
		return err
	}

	var (
		errs []error
		sent int
	)
	for _, member := range members {
		if member.HasExpiringNoticeBeenSent() {
			continue
		}

		if err := j.notifier.SendExpiringNotice(ctx, member); err != nil {
			metrics.EmailFailuresTotal.WithLabelValues("expiring_notice").Inc()
			j.logger.Error("failed to send expiring notice", "member_id", member.ID, "error", err)
			errs = append(errs, err)
			continue
		}

		marked, err := j.repo.MarkExpiringNoticeSent(ctx, member.ID, now)
		if err != nil {
			j.logger.Error("failed to mark expiring notice as sent", "member_id", member.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if !marked {
			j.logger.Warn("expiring notice marker was already set", "member_id", member.ID)
			continue
		}

		sent++
		metrics.ExpiringNoticesSentTotal.Inc()
		j.addNote(ctx, member.ID, expiringNoticeNote, now)

		var expiration time.Time
		if member.Expiration != nil {
			expiration = *member.Expiration
		}
		j.publish(ctx, domain.RoutingKeyExpiringNoticeSent, domain.ExpiringNoticeSentEvent{
			EventID:    uuid.NewString(),
			MemberID:   member.ID,
			Email:      member.Email,
			Expiration: expiration,
			OccurredAt: now,
		})
	}

	j.logger.Info("expiring soon job finished", "candidates", len(members), "sent", sent, "failed", len(errs))
	return errors.Join(errs...)
}

// ReconcileMemberCounts recomputes every level's per-status member counter.
func (j *Jobs) ReconcileMemberCounts(ctx context.Context) error {
	j.logger.Info("starting member counts job")
	now := j.clock()

	levels, err := j.repo.ListSubscriptionLevels(ctx)
	if err != nil {
		j.logger.Error("failed to list subscription levels", "error", err)
		return err
	}

	var errs []error
	for _, level := range levels {
		levelLabel := strconv.FormatInt(level.ID, 10)
		counts := make(map[domain.Status]int64, len(domain.Statuses))
		complete := true
		for _, status := range domain.Statuses {
			count, err := j.repo.CountMembers(ctx, level.ID, status)
			if err != nil {
				j.logger.Error("failed to count members", "level_id", level.ID, "status", status, "error", err)
				errs = append(errs, err)
				complete = false
				continue
			}
			if err := j.repo.SetLevelMemberCount(ctx, level.ID, status, count); err != nil {
				j.logger.Error("failed to store member count", "level_id", level.ID, "status", status, "error", err)
				errs = append(errs, err)
				complete = false
				continue
			}
			counts[status] = count
			metrics.LevelMembers.WithLabelValues(levelLabel, string(status)).Set(float64(count))
		}

		// Consumers treat the event as the full set of counters for the level.
		if !complete {
			continue
		}
		j.publish(ctx, domain.RoutingKeyMemberCountsUpdated, domain.MemberCountsUpdatedEvent{
			EventID:    uuid.NewString(),
			LevelID:    level.ID,
			Counts:     counts,
			OccurredAt: now,
		})
	}

	j.logger.Info("member counts job finished", "levels", len(levels), "failed", len(errs))
	return errors.Join(errs...)
}

func (j *Jobs) addNote(ctx context.Context, memberID int64, text string, at time.Time) {
	note := domain.MemberNote{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Note:      text,
		CreatedAt: at,
	}
	if err := j.repo.AddMemberNote(ctx, note); err != nil {
		j.logger.Warn("failed to add member note", "member_id", memberID, "error", err)
	}
}

func (j *Jobs) publish(ctx context.Context, routingKey string, event interface{}) {
	if j.publisher == nil {
		return
	}
	if err := j.publisher.Publish(ctx, j.config.EventsExchange, routingKey, event); err != nil {
		j.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}
