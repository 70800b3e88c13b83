package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/lib/pq"

	"github.com/faciam-dev/gcdisk/pkg/util"
)

// Migration is one schema version with the SQL to enter and leave it.
type Migration struct {
	Version int
	Name    string
	SemVer  string
	UpSQL   string
	DownSQL string
}

// SchemaMigrator applies migrations for the disk schema.
type SchemaMigrator interface {
	Current(ctx context.Context, db *sql.DB) (int, error)
	Up(ctx context.Context, db *sql.DB, target int) error   // 0=latest
	Down(ctx context.Context, db *sql.DB, target int) error // target<current
}

// Migrator implements SchemaMigrator using embedded SQL.
type Migrator struct {
	migrations  []Migration
	TablePrefix string
	Driver      string
}

var _ SchemaMigrator = (*Migrator)(nil)

const defaultPrefix = "gcdisk_"

func (m *Migrator) versionTable() string {
	return m.TablePrefix + "schema_version"
}

func (m *Migrator) quote(name string) string {
	if m.Driver == "postgres" {
		return pq.QuoteIdentifier(name)
	}
	return "`" + name + "`"
}

// NewWithDriver returns a Migrator for the driver using the default prefix.
func NewWithDriver(driver string) *Migrator {
	return NewWithDriverAndPrefix(driver, defaultPrefix)
}

// NewWithDriverAndPrefix returns a Migrator for the driver with table prefix.
func NewWithDriverAndPrefix(driver, prefix string) *Migrator {
	if prefix == "" {
		prefix = defaultPrefix
	}
	migs := mysqlMigrations
	if driver == "postgres" {
		migs = postgresMigrations
	}
	return &Migrator{migrations: withPrefix(migs, prefix), TablePrefix: prefix, Driver: driver}
}

func withPrefix(migs []Migration, prefix string) []Migration {
	res := make([]Migration, len(migs))
	for i, m := range migs {
		m.UpSQL = strings.ReplaceAll(m.UpSQL, defaultPrefix, prefix)
		m.DownSQL = strings.ReplaceAll(m.DownSQL, defaultPrefix, prefix)
		res[i] = m
	}
	return res
}

// ErrUnknownVersion is returned when a version string matches no migration.
var ErrUnknownVersion = errors.New("unknown schema version")

// Latest returns the highest known version.
func (m *Migrator) Latest() int { return len(m.migrations) }

// SemVer returns the semantic version for an integer version. Version 0 is
// "0.0.0".
func (m *Migrator) SemVer(v int) string {
	if v <= 0 || v > len(m.migrations) {
		return "0.0.0"
	}
	return m.migrations[v-1].SemVer
}

// SemVerToInt converts a semver string such as "v0.2.0" or "0.2" to its
// integer version.
func (m *Migrator) SemVerToInt(v string) (int, bool) {
	want, err := semver.NewVersion(v)
	if err != nil {
		return 0, false
	}
	for _, mig := range m.migrations {
		have, err := semver.NewVersion(mig.SemVer)
		if err != nil {
			continue
		}
		if have.Equal(want) {
			return mig.Version, true
		}
	}
	return 0, false
}

// Resolve turns a target given as an integer or a semantic version into an
// integer version. An empty target means latest.
func (m *Migrator) Resolve(target string) (int, error) {
	if target == "" {
		return m.Latest(), nil
	}
	if n, err := strconv.Atoi(target); err == nil {
		if n < 0 || n > m.Latest() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownVersion, n)
		}
		return n, nil
	}
	if n, ok := m.SemVerToInt(target); ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownVersion, target)
}

// Pending reports whether the schema is behind the latest version.
func (m *Migrator) Pending(ctx context.Context, db *sql.DB) (bool, error) {
	cur, err := m.Current(ctx, db)
	if err != nil {
		return false, err
	}
	return cur < m.Latest(), nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INT PRIMARY KEY, semver VARCHAR(32) NOT NULL, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)", m.quote(m.versionTable()))
	_, err := db.ExecContext(ctx, stmt) // #nosec G201 -- table name derived from trusted prefix
	return err
}

// Current returns current version (integer), creating the version table if
// needed.
func (m *Migrator) Current(ctx context.Context, db *sql.DB) (int, error) {
	if err := m.ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT MAX(version) FROM %s", m.quote(m.versionTable()))
	row := db.QueryRowContext(ctx, query) // #nosec G201 -- table name derived from trusted prefix
	var v sql.NullInt64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func splitSQL(src string) []string {
	var (
		res       []string
		buf       strings.Builder
		inSingle  bool
		inDouble  bool
		dollarTag string
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if dollarTag != "" {
			if strings.HasPrefix(src[i:], dollarTag) {
				buf.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
			buf.WriteByte(c)
			continue
		}
		switch c {
		case '\'':
			inSingle = !inSingle
		case '"':
			inDouble = !inDouble
		case '$':
			if !inSingle && !inDouble {
				j := i + 1
				for j < len(src) && ((src[j] >= 'a' && src[j] <= 'z') || (src[j] >= 'A' && src[j] <= 'Z') || (src[j] >= '0' && src[j] <= '9') || src[j] == '_') {
					j++
				}
				if j < len(src) && src[j] == '$' {
					dollarTag = src[i : j+1]
					buf.WriteString(dollarTag)
					i = j
					continue
				}
			}
		case ';':
			if !inSingle && !inDouble {
				s := strings.TrimSpace(buf.String())
				if s != "" {
					res = append(res, s)
				}
				buf.Reset()
				continue
			}
		}
		buf.WriteByte(c)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		res = append(res, s)
	}
	return res
}

// step is one migration applied in one direction.
type step struct {
	mig Migration
	sql string
	up  bool
}

// plan lists the steps between two versions. Going up runs each UpSQL in
// ascending order; going down runs each DownSQL from the top.
func (m *Migrator) plan(from, to int) []step {
	var steps []step
	for i := from; i < to; i++ {
		steps = append(steps, step{mig: m.migrations[i], sql: m.migrations[i].UpSQL, up: true})
	}
	for i := from - 1; i >= to && i >= 0; i-- {
		steps = append(steps, step{mig: m.migrations[i], sql: m.migrations[i].DownSQL})
	}
	return steps
}

// apply runs the steps in a single transaction and keeps the version table
// in sync with them.
func (m *Migrator) apply(ctx context.Context, db *sql.DB, steps []step) (err error) {
	if len(steps) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			err = fmt.Errorf("rollback: %v: %w", rbErr, err)
		}
	}()
	table := m.quote(m.versionTable())
	ins := util.Rebind(m.Driver, fmt.Sprintf("INSERT INTO %s (version, semver) VALUES (?, ?)", table))
	del := util.Rebind(m.Driver, fmt.Sprintf("DELETE FROM %s WHERE version = ?", table))
	for _, st := range steps {
		for _, stmt := range splitSQL(st.sql) {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%04d_%s: exec %q: %w", st.mig.Version, st.mig.Name, stmt, err)
			}
		}
		if st.up {
			_, err = tx.ExecContext(ctx, ins, st.mig.Version, st.mig.SemVer)
		} else {
			_, err = tx.ExecContext(ctx, del, st.mig.Version)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Up migrates the schema up to target. target=0 means latest.
func (m *Migrator) Up(ctx context.Context, db *sql.DB, target int) error {
	if target == 0 || target > len(m.migrations) {
		target = len(m.migrations)
	}
	cur, err := m.Current(ctx, db)
	if err != nil {
		return err
	}
	if cur >= target {
		return nil
	}
	return m.apply(ctx, db, m.plan(cur, target))
}

// Down migrates schema down to target version.
func (m *Migrator) Down(ctx context.Context, db *sql.DB, target int) error {
	cur, err := m.Current(ctx, db)
	if err != nil {
		return err
	}
	if target >= cur {
		return nil
	}
	return m.apply(ctx, db, m.plan(cur, target))
}

// Migrations returns the known migrations in version order.
func (m *Migrator) Migrations() []Migration {
	return append([]Migration(nil), m.migrations...)
}

// SQLForRange returns the statements that move the schema from one version
// to another, in execution order.
func (m *Migrator) SQLForRange(from, to int) []string {
	var res []string
	for _, st := range m.plan(from, to) {
		res = append(res, splitSQL(st.sql)...)
	}
	return res
}
