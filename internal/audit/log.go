package audit

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"

	"github.com/faciam-dev/gcdisk/pkg/util"
)

// ErrNotFound is returned by Repo.Get for unknown ids.
var ErrNotFound = errors.New("audit log not found")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one stored audit record. Actor is the user's name when the user
// still exists.
type Entry struct {
	ID         int64
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Before     sql.NullString
	After      sql.NullString
	AppliedAt  time.Time
}

// Changes returns the number of added and removed keys between Before and
// After.
func (e Entry) Changes() (added, removed int) {
	_, added, removed = UnifiedDiff("before", "after", []byte(e.Before.String), []byte(e.After.String))
	return added, removed
}

// Filter narrows List. Cursor is the value returned by a previous call.
type Filter struct {
	Actor      string
	Actions    []string
	Resource   string
	ResourceID string
	From       time.Time
	To         time.Time
	Limit      int
	Cursor     string
}

// Repo reads audit records.
type Repo struct {
	DB          *sql.DB
	Driver      string
	Dialect     ormdriver.Dialect
	TablePrefix string
}

func (r *Repo) dialect() ormdriver.Dialect {
	if r.Dialect != nil {
		return r.Dialect
	}
	return util.DialectFromDriver(r.Driver)
}

func (r *Repo) baseQuery() *query.Query {
	users := r.TablePrefix + "users"
	actor := "(SELECT name FROM " + users + " u WHERE "
	if r.Driver == "postgres" {
		actor += "u.id::text = l.actor"
	} else {
		actor += "CAST(u.id AS CHAR) = l.actor"
	}
	actor += ")"
	return query.New(r.DB, r.TablePrefix+"audit_logs as l", r.dialect()).
		Select("l.id").
		SelectRaw("COALESCE("+actor+", l.actor) as actor").
		Select("l.action", "l.resource", "l.resource_id", "l.before_json", "l.after_json", "l.applied_at")
}

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var applied any
	if err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.Resource, &e.ResourceID, &e.Before, &e.After, &applied); err != nil {
		return Entry{}, err
	}
	t, err := ParseTime(applied)
	if err != nil {
		return Entry{}, err
	}
	e.AppliedAt = t
	return e, nil
}

// List returns entries newest first and the cursor of the next page, or ""
// on the last page.
func (r *Repo) List(ctx context.Context, f Filter) ([]Entry, string, error) {
	if r == nil || r.DB == nil {
		return nil, "", fmt.Errorf("repo not initialized")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := r.baseQuery()
	if f.Actor != "" {
		q.Where("l.actor", f.Actor)
	}
	if f.Resource != "" {
		q.Where("l.resource", f.Resource)
	}
	if f.ResourceID != "" {
		q.Where("l.resource_id", f.ResourceID)
	}
	if len(f.Actions) > 0 {
		q.WhereIn("l.action", f.Actions)
	}
	if !f.From.IsZero() {
		q.Where("l.applied_at", ">=", f.From)
	}
	if !f.To.IsZero() {
		q.Where("l.applied_at", "<", f.To)
	}
	if f.Cursor != "" {
		ts, id, err := DecodeCursor(f.Cursor)
		if err != nil {
			return nil, "", err
		}
		q.WhereGroup(func(g *query.Query) {
			g.Where("l.applied_at", "<", ts)
			g.OrWhereGroup(func(g2 *query.Query) {
				g2.Where("l.applied_at", "=", ts)
				g2.Where("l.id", "<", id)
			})
		})
	}
	q.OrderBy("l.applied_at", "desc").OrderBy("l.id", "desc").Limit(limit + 1)

	stmt, args, err := q.Build()
	if err != nil {
		return nil, "", err
	}
	rows, err := r.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	more := false
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, "", err
		}
		if len(out) == limit {
			more = true
			break
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if more {
		last := out[len(out)-1]
		next = EncodeCursor(last.AppliedAt, last.ID)
	}
	return out, next, nil
}

// Get returns a single entry.
func (r *Repo) Get(ctx context.Context, id int64) (Entry, error) {
	if r == nil || r.DB == nil {
		return Entry{}, fmt.Errorf("repo not initialized")
	}
	stmt, args, err := r.baseQuery().Where("l.id", id).Build()
	if err != nil {
		return Entry{}, err
	}
	e, err := scanEntry(r.DB.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// EncodeCursor returns an opaque cursor for keyset paging.
func EncodeCursor(ts time.Time, id int64) string {
	s := fmt.Sprintf("%s:%d", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cur string) (time.Time, int64, error) {
	b, err := base64.StdEncoding.DecodeString(cur)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor: %w", err)
	}
	s := string(b)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return time.Time{}, 0, fmt.Errorf("invalid cursor %q", s)
	}
	ts, err := time.Parse(time.RFC3339Nano, s[:idx])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor: %w", err)
	}
	id, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor: %w", err)
	}
	return ts, id, nil
}

// ParseTime converts a scanned timestamp. The MySQL driver returns []byte
// unless parseTime is set.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	}
	return time.Time{}, fmt.Errorf("unsupported time type %T", v)
}

func parseTimeString(s string) (time.Time, error) {
	for _, l := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(l, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
