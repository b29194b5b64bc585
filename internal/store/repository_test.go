package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		dv.Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos-1])
}

type fakeDB struct {
	lastSQL  string
	lastArgs []any

	rows    [][]any
	row     fakeRow
	execTag string
	execErr error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(f.execTag), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.lastSQL, f.lastArgs = sql, args
	return &fakeRows{data: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func memberRow(id int64, status string, expiration *time.Time, sent *time.Time) []any {
	return []any{
		id, fmt.Sprintf("user%d", id), fmt.Sprintf("user%d@example.com", id), "User", "First", "Last",
		status, expiration, false, int64(3), "Gold", sent,
	}
}

func TestGetExpiredMembers_BindsQueryAndScans(t *testing.T) {
	exp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]any{memberRow(1, "active", &exp, nil), memberRow(2, "active", &exp, nil)}}
	repo := NewRepository(db)

	before := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	members, err := repo.GetExpiredMembers(context.Background(), domain.ExpiredMembersQuery{
		ExpiresBefore: before,
		Status:        domain.StatusActive,
		Limit:         9999,
	})

	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, []any{before, "active", 9999}, db.lastArgs)
	assert.Contains(t, db.lastSQL, "m.expiration IS NOT NULL")
	assert.Equal(t, domain.StatusActive, members[0].Status)
	assert.Equal(t, "Gold", members[0].SubscriptionName)
	assert.Equal(t, exp, *members[1].Expiration)
	assert.False(t, members[0].HasExpiringNoticeBeenSent())
}

func TestExpiringMembersSQL_ExcludesRecurring(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	query, args := expiringMembersSQL(domain.ExpiringMembersQuery{
		ExpiresFrom: from, ExpiresTo: to, Status: domain.StatusActive, Limit: 9999,
	})

	assert.True(t, strings.Contains(query, "m.recurring = FALSE"))
	assert.Equal(t, []any{from, to, "active", 9999}, args)
}

func TestExpireMember_RechecksEligibility(t *testing.T) {
	cutoff := time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC)

	db := &fakeDB{execTag: "UPDATE 1"}
	changed, err := NewRepository(db).ExpireMember(context.Background(), 42, cutoff)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []any{int64(42), cutoff}, db.lastArgs)
	assert.Contains(t, db.lastSQL, "status = 'active'")
	assert.Contains(t, db.lastSQL, "expiration < $2")

	db = &fakeDB{execTag: "UPDATE 0"}
	changed, err = NewRepository(db).ExpireMember(context.Background(), 42, cutoff)
	require.NoError(t, err)
	assert.False(t, changed, "renewed or already expired members are left alone")

	db = &fakeDB{execErr: errors.New("deadlock detected")}
	_, err = NewRepository(db).ExpireMember(context.Background(), 42, cutoff)
	assert.ErrorContains(t, err, "deadlock detected")
}

func TestGetMember(t *testing.T) {
	exp := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: memberRow(5, "pending", &exp, nil)}}

	m, err := NewRepository(db).GetMember(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, domain.StatusPending, m.Status)
	assert.Equal(t, []any{int64(5)}, db.lastArgs)
}

func TestGetMember_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}

	_, err := NewRepository(db).GetMember(context.Background(), 5)

	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestGetMember_RejectsUnknownStatus(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: memberRow(5, "suspended", nil, nil)}}

	_, err := NewRepository(db).GetMember(context.Background(), 5)

	assert.ErrorContains(t, err, `unknown member status "suspended"`)
}

func TestMarkExpiringNoticeSent(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "marker newly set", tag: "UPDATE 1", want: true},
		{name: "marker already present", tag: "UPDATE 0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{execTag: tt.tag}
			repo := NewRepository(db)

			got, err := repo.MarkExpiringNoticeSent(context.Background(), 7, time.Now())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, db.lastSQL, "expiring_notice_sent_at IS NULL")
		})
	}
}

func TestRenewMembership(t *testing.T) {
	next := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	db := &fakeDB{execTag: "UPDATE 1"}
	require.NoError(t, NewRepository(db).RenewMembership(context.Background(), 9, &next))
	assert.Contains(t, db.lastSQL, "expiring_notice_sent_at = NULL")

	db = &fakeDB{execTag: "UPDATE 0"}
	assert.ErrorIs(t, NewRepository(db).RenewMembership(context.Background(), 9, &next), ErrMemberNotFound)

	db = &fakeDB{execErr: errors.New("connection reset")}
	err := NewRepository(db).RenewMembership(context.Background(), 9, &next)
	assert.ErrorContains(t, err, "connection reset")
}

func TestCountMembers(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(12)}}}

	count, err := NewRepository(db).CountMembers(context.Background(), 3, domain.StatusFree)

	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.Equal(t, []any{int64(3), "free"}, db.lastArgs)
}
