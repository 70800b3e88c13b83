package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"github.com/google/uuid"

	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

// ErrNotFound is returned when a role does not exist.
var ErrNotFound = errors.New("role not found")

// Role is a named set of permissions.
type Role struct {
	ID               int64     `db:"id" json:"-"`
	UUID             string    `db:"uuid" json:"uuid"`
	Name             string    `db:"name" json:"name"`
	UsersCount       int64     `db:"users_count" json:"usersCount"`
	PermissionsCount int64     `db:"permissions_count" json:"permissionsCount"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
	Permissions      []string  `db:"-" json:"permissions,omitempty"`
}

// RoleSearch filters role listings.
type RoleSearch struct {
	Search string
	paging.Params
}

// RoleSortable lists the columns roles can be ordered by.
var RoleSortable = []string{"name", "created_at", "updated_at"}

// RoleRepo persists roles, permissions and their assignments.
type RoleRepo struct {
	DB          *sql.DB
	Driver      string
	Dialect     ormdriver.Dialect
	TablePrefix string
}

func (r *RoleRepo) t(name string) string { return r.TablePrefix + name }

func (r *RoleRepo) dialect() ormdriver.Dialect {
	if r.Dialect != nil {
		return r.Dialect
	}
	return util.DialectFromDriver(r.Driver)
}

func (r *RoleRepo) baseQuery() *query.Query {
	tbl := r.t("roles")
	return query.New(r.DB, tbl, r.dialect()).
		Select("id", "uuid", "name", "created_at", "updated_at").
		SelectRaw(fmt.Sprintf("(SELECT COUNT(*) FROM %s ur WHERE ur.role_id = %s.id) AS users_count", r.t("user_roles"), tbl)).
		SelectRaw(fmt.Sprintf("(SELECT COUNT(*) FROM %s rp WHERE rp.role_id = %s.id) AS permissions_count", r.t("role_permissions"), tbl))
}

func (r *RoleRepo) applySearch(q *query.Query, s string) {
	if s != "" {
		q.WhereRaw(util.ILike(r.Driver, "name", ":s"), map[string]any{"s": "%" + s + "%"})
	}
}

// Search returns one page of roles and the total count.
func (r *RoleRepo) Search(ctx context.Context, s RoleSearch) ([]Role, paging.Meta, error) {
	if r == nil || r.DB == nil {
		return nil, paging.Meta{}, fmt.Errorf("repo not initialized")
	}
	page := paging.Normalize(s.Params, RoleSortable, "name")
	q := r.baseQuery()
	r.applySearch(q, s.Search)
	q.OrderBy(page.SortBy, page.SortOrder).Limit(page.PerPage).Offset(page.Offset())
	var roles []Role
	if err := q.WithContext(ctx).Get(&roles); err != nil {
		return nil, paging.Meta{}, err
	}
	if roles == nil {
		roles = []Role{}
	}
	cq := query.New(r.DB, r.t("roles"), r.dialect())
	r.applySearch(cq, s.Search)
	total, err := cq.WithContext(ctx).Count("*")
	if err != nil {
		return nil, paging.Meta{}, err
	}
	return roles, paging.NewMeta(page, int(total)), nil
}

// Get returns a role by UUID including its permission names.
func (r *RoleRepo) Get(ctx context.Context, id string) (Role, error) {
	if r == nil || r.DB == nil {
		return Role{}, fmt.Errorf("repo not initialized")
	}
	var role Role
	if err := r.baseQuery().Where("uuid", id).WithContext(ctx).First(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	perms, err := r.permissionsOf(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (r *RoleRepo) permissionsOf(ctx context.Context, roleID int64) ([]string, error) {
	stmt := util.Rebind(r.Driver, fmt.Sprintf(`SELECT p.name FROM %s p JOIN %s rp ON p.id=rp.permission_id WHERE rp.role_id=? ORDER BY p.name`, r.t("permissions"), r.t("role_permissions")))
	rows, err := r.DB.QueryContext(ctx, stmt, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		perms = append(perms, n)
	}
	return perms, rows.Err()
}

// NameTaken reports whether another role already uses name. exceptID is
// ignored when zero.
func (r *RoleRepo) NameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	q := query.New(r.DB, r.t("roles"), r.dialect()).Where("name", name)
	if exceptID != 0 {
		q.Where("id", "!=", exceptID)
	}
	n, err := q.WithContext(ctx).Count("*")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts a role and attaches perms.
func (r *RoleRepo) Create(ctx context.Context, name string, perms []string) (Role, error) {
	if r == nil || r.DB == nil {
		return Role{}, fmt.Errorf("repo not initialized")
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	rid, err := query.New(r.DB, r.t("roles"), r.dialect()).WithContext(ctx).InsertGetId(map[string]any{
		"uuid":       id,
		"name":       name,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		return Role{}, err
	}
	if err := r.SyncPermissions(ctx, rid, perms); err != nil {
		return Role{}, err
	}
	return r.Get(ctx, id)
}

// Rename changes a role's name.
func (r *RoleRepo) Rename(ctx context.Context, roleID int64, name string) error {
	_, err := query.New(r.DB, r.t("roles"), r.dialect()).
		Where("id", roleID).
		WithContext(ctx).
		Update(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	return err
}

// Delete removes a role. Assignments are removed by cascade.
func (r *RoleRepo) Delete(ctx context.Context, roleID int64) error {
	_, err := query.New(r.DB, r.t("roles"), r.dialect()).Where("id", roleID).WithContext(ctx).Delete()
	return err
}

// SyncPermissions replaces the permissions of a role.
func (r *RoleRepo) SyncPermissions(ctx context.Context, roleID int64, perms []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	del := util.Rebind(r.Driver, fmt.Sprintf("DELETE FROM %s WHERE role_id=?", r.t("role_permissions")))
	if _, err := tx.ExecContext(ctx, del, roleID); err != nil {
		_ = tx.Rollback()
		return err
	}
	ins := util.Rebind(r.Driver, fmt.Sprintf("INSERT INTO %s (role_id, permission_id) SELECT ?, id FROM %s WHERE name=?", r.t("role_permissions"), r.t("permissions")))
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, ins, roleID, p); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListPermissions returns permission names, optionally filtered by a
// case-insensitive substring.
func (r *RoleRepo) ListPermissions(ctx context.Context, search string) ([]string, error) {
	if r == nil || r.DB == nil {
		return nil, fmt.Errorf("repo not initialized")
	}
	q := query.New(r.DB, r.t("permissions"), r.dialect()).Select("name")
	r.applySearch(q, search)
	q.OrderBy("name", "asc")
	var rows []struct {
		Name string `db:"name"`
	}
	if err := q.WithContext(ctx).Get(&rows); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Name)
	}
	return out, nil
}

// EnsurePermissions inserts any missing permission names.
func (r *RoleRepo) EnsurePermissions(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]map[string]any, 0, len(names))
	for _, n := range names {
		rows = append(rows, map[string]any{"name": n, "created_at": now})
	}
	_, err := query.New(r.DB, r.t("permissions"), r.dialect()).WithContext(ctx).
		Upsert(rows, []string{"name"}, []string{"name"})
	return err
}

// EnsureRole creates the role if needed and replaces its permissions.
func (r *RoleRepo) EnsureRole(ctx context.Context, name string, perms []string) (Role, error) {
	var role Role
	err := r.baseQuery().Where("name", name).WithContext(ctx).First(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return r.Create(ctx, name, perms)
	}
	if err != nil {
		return Role{}, err
	}
	if err := r.SyncPermissions(ctx, role.ID, perms); err != nil {
		return Role{}, err
	}
	return r.Get(ctx, role.UUID)
}

// AssignRole grants a role to a user. Assigning twice is a no-op.
func (r *RoleRepo) AssignRole(ctx context.Context, userID int64, roleName string) error {
	chk := util.Rebind(r.Driver, fmt.Sprintf("SELECT COUNT(*) FROM %s ur JOIN %s r ON ur.role_id=r.id WHERE ur.user_id=? AND r.name=?", r.t("user_roles"), r.t("roles")))
	var n int
	if err := r.DB.QueryRowContext(ctx, chk, userID, roleName).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ins := util.Rebind(r.Driver, fmt.Sprintf("INSERT INTO %s (user_id, role_id) SELECT ?, id FROM %s WHERE name=?", r.t("user_roles"), r.t("roles")))
	res, err := r.DB.ExecContext(ctx, ins, userID, roleName)
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err == nil && aff == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, roleName)
	}
	return nil
}

// RolesOf returns the role names assigned to a user.
func (r *RoleRepo) RolesOf(ctx context.Context, userID int64) ([]string, error) {
	stmt := util.Rebind(r.Driver, fmt.Sprintf("SELECT r.name FROM %s r JOIN %s ur ON ur.role_id=r.id WHERE ur.user_id=? ORDER BY r.name", r.t("roles"), r.t("user_roles")))
	rows, err := r.DB.QueryContext(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
