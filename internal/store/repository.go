/**
 * @description
 * This file implements the data access layer for the membership scheduler.
 * It contains all the SQL queries used by the maintenance jobs and the
 * renewal consumer.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
)

// ErrMemberNotFound is returned when a member id does not exist.
var ErrMemberNotFound = errors.New("member not found")

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for the scheduler.
type Repository struct {
	db DBTX
}

// NewRepository creates a new repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const memberColumns = `
        m.id, m.username, m.email, m.display_name, m.first_name, m.last_name,
        m.status, m.expiration, m.recurring, COALESCE(m.subscription_level_id, 0),
        COALESCE(l.name, ''), m.expiring_notice_sent_at`

const memberFrom = `
        FROM members m
        LEFT JOIN subscription_levels l ON l.id = m.subscription_level_id`

func scanMember(row pgx.Row) (domain.Member, error) {
	var (
		m      domain.Member
		status string
	)
	err := row.Scan(
		&m.ID, &m.Username, &m.Email, &m.DisplayName, &m.FirstName, &m.LastName,
		&status, &m.Expiration, &m.Recurring, &m.SubscriptionLevelID,
		&m.SubscriptionName, &m.ExpiringNoticeSentAt)
	if err != nil {
		return domain.Member{}, err
	}
	if m.Status, err = domain.ParseStatus(status); err != nil {
		return domain.Member{}, fmt.Errorf("member %d: %w", m.ID, err)
	}
	return m, nil
}

func (r *Repository) queryMembers(ctx context.Context, query string, args ...any) ([]domain.Member, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func expiredMembersSQL(q domain.ExpiredMembersQuery) (string, []any) {
	query := `SELECT` + memberColumns + memberFrom + `
        WHERE m.expiration IS NOT NULL
          AND m.expiration < $1
          AND m.status = $2
        ORDER BY m.expiration, m.id
        LIMIT $3`
	return query, []any{q.ExpiresBefore, string(q.Status), q.Limit}
}

// GetExpiredMembers returns members with a non-"none" expiration before
// q.ExpiresBefore and the given status, bounded by q.Limit.
func (r *Repository) GetExpiredMembers(ctx context.Context, q domain.ExpiredMembersQuery) ([]domain.Member, error) {
	query, args := expiredMembersSQL(q)
	members, err := r.queryMembers(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expired members: %w", err)
	}
	return members, nil
}

func expiringMembersSQL(q domain.ExpiringMembersQuery) (string, []any) {
	query := `SELECT` + memberColumns + memberFrom + `
        WHERE m.expiration IS NOT NULL
          AND m.expiration >= $1
          AND m.expiration <= $2
          AND m.recurring = FALSE
          AND m.status = $3
        ORDER BY m.expiration, m.id
        LIMIT $4`
	return query, []any{q.ExpiresFrom, q.ExpiresTo, string(q.Status), q.Limit}
}

// GetExpiringMembers returns non-recurring members whose expiration falls inside the window.
func (r *Repository) GetExpiringMembers(ctx context.Context, q domain.ExpiringMembersQuery) ([]domain.Member, error) {
	query, args := expiringMembersSQL(q)
	members, err := r.queryMembers(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expiring members: %w", err)
	}
	return members, nil
}

// GetMember fetches one member by id.
func (r *Repository) GetMember(ctx context.Context, memberID int64) (*domain.Member, error) {
	query := `SELECT` + memberColumns + memberFrom + `
        WHERE m.id = $1`
	m, err := scanMember(r.db.QueryRow(ctx, query, memberID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member %d: %w", memberID, err)
	}
	return &m, nil
}

// ExpireMember moves an active member whose expiration is before expiredBefore
// to expired. The eligibility check is repeated in the UPDATE so a renewal that
// landed after the sweep's SELECT is not overwritten. It reports whether the
// row changed.
func (r *Repository) ExpireMember(ctx context.Context, memberID int64, expiredBefore time.Time) (bool, error) {
	query := `
        UPDATE members
        SET status = 'expired',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'active'
          AND expiration IS NOT NULL
          AND expiration < $2
    `
	tag, err := r.db.Exec(ctx, query, memberID, expiredBefore)
	if err != nil {
		return false, fmt.Errorf("expire member %d: %w", memberID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpiringNoticeSent sets the expiring-soon marker if it is not already set.
// It reports whether this call set it.
func (r *Repository) MarkExpiringNoticeSent(ctx context.Context, memberID int64, sentAt time.Time) (bool, error) {
	query := `
        UPDATE members
        SET expiring_notice_sent_at = $1
        WHERE id = $2
          AND expiring_notice_sent_at IS NULL
    `
	tag, err := r.db.Exec(ctx, query, sentAt, memberID)
	if err != nil {
		return false, fmt.Errorf("mark expiring notice for member %d: %w", memberID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RenewMembership stores a new expiration, reactivates the member and clears
// the expiring-soon marker so the next period gets its own reminder.
func (r *Repository) RenewMembership(ctx context.Context, memberID int64, newExpiration *time.Time) error {
	query := `
        UPDATE members
        SET expiration = $1,
            status = 'active',
            expiring_notice_sent_at = NULL,
            updated_at = NOW()
        WHERE id = $2
    `
	tag, err := r.db.Exec(ctx, query, newExpiration, memberID)
	if err != nil {
		return fmt.Errorf("renew member %d: %w", memberID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// AddMemberNote appends an audit note.
func (r *Repository) AddMemberNote(ctx context.Context, note domain.MemberNote) error {
	query := `
        INSERT INTO member_notes (id, member_id, note, created_at)
        VALUES ($1, $2, $3, $4)
    `
	_, err := r.db.Exec(ctx, query, note.ID, note.MemberID, note.Note, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("add note for member %d: %w", note.MemberID, err)
	}
	return nil
}

// ListSubscriptionLevels returns every subscription level.
func (r *Repository) ListSubscriptionLevels(ctx context.Context) ([]domain.SubscriptionLevel, error) {
	query := `
        SELECT id, name, price, duration, duration_unit, status
        FROM subscription_levels
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscription levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.SubscriptionLevel
	for rows.Next() {
		var l domain.SubscriptionLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.Price, &l.Duration, &l.DurationUnit, &l.Status); err != nil {
			return nil, fmt.Errorf("scan subscription level: %w", err)
		}
		levels = append(levels, l)
	}

	return levels, rows.Err()
}

// CountMembers counts members at a level holding the given status.
func (r *Repository) CountMembers(ctx context.Context, levelID int64, status domain.Status) (int64, error) {
	query := `
        SELECT COUNT(*)
        FROM members
        WHERE subscription_level_id = $1
          AND status = $2
    `
	var count int64
	if err := r.db.QueryRow(ctx, query, levelID, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s members for level %d: %w", status, levelID, err)
	}
	return count, nil
}

// SetLevelMemberCount overwrites the stored counter for a level and status.
func (r *Repository) SetLevelMemberCount(ctx context.Context, levelID int64, status domain.Status, count int64) error {
	query := `
        INSERT INTO level_member_counts (level_id, status, count, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (level_id, status) DO UPDATE
        SET count = EXCLUDED.count,
            updated_at = NOW()
    `
	if _, err := r.db.Exec(ctx, query, levelID, string(status), count); err != nil {
		return fmt.Errorf("store %s count for level %d: %w", status, levelID, err)
	}
	return nil
}

// GetLevelMemberCounts returns the stored counters for one level.
func (r *Repository) GetLevelMemberCounts(ctx context.Context, levelID int64) ([]domain.LevelMemberCount, error) {
	query := `
        SELECT level_id, status, count, updated_at
        FROM level_member_counts
        WHERE level_id = $1
        ORDER BY status
    `
	rows, err := r.db.Query(ctx, query, levelID)
	if err != nil {
		return nil, fmt.Errorf("get counts for level %d: %w", levelID, err)
	}
	defer rows.Close()

	var counts []domain.LevelMemberCount
	for rows.Next() {
		var (
			c      domain.LevelMemberCount
			status string
		)
		if err := rows.Scan(&c.LevelID, &status, &c.Count, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		if c.Status, err = domain.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("level %d count: %w", c.LevelID, err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
