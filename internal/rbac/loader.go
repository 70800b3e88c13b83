package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/faciam-dev/gcdisk/internal/logger"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Subjects are namespaced so a role name can never match a user id.
const (
	userPrefix = "user:"
	rolePrefix = "role:"
)

// UserSubject is the casbin subject of a user id.
func UserSubject(id string) string { return userPrefix + id }

// RoleSubject is the casbin subject of a role name.
func RoleSubject(name string) string { return rolePrefix + name }

// NewEnforcer returns an empty enforcer. Policies are (role subject,
// resource, action) and groupings are (user subject, role subject).
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	return casbin.NewEnforcer(m)
}

// Load adds the role permissions and the role memberships of active users
// to e. Permissions outside the known set are skipped.
func Load(ctx context.Context, db *sql.DB, prefix string, e *casbin.Enforcer) error {
	if db == nil || e == nil {
		return nil
	}
	policies, err := collect(ctx, db, fmt.Sprintf(
		`SELECT r.name, p.name FROM %[1]sroles r JOIN %[1]srole_permissions rp ON r.id=rp.role_id JOIN %[1]spermissions p ON p.id=rp.permission_id`, prefix),
		func(role, perm string) ([]string, bool) {
			p, err := ParsePermission(perm)
			if err != nil {
				logger.L.Warn("skip unknown permission", "role", role, "permission", perm)
				return nil, false
			}
			obj, act := p.Split()
			return []string{RoleSubject(role), obj, act}, true
		})
	if err != nil {
		return fmt.Errorf("load role permissions: %w", err)
	}
	groupings, err := collect(ctx, db, fmt.Sprintf(
		`SELECT ur.user_id, r.name FROM %[1]suser_roles ur JOIN %[1]sroles r ON ur.role_id=r.id JOIN %[1]susers u ON u.id=ur.user_id WHERE u.deleted_at IS NULL`, prefix),
		func(uid, role string) ([]string, bool) {
			return []string{UserSubject(uid), RoleSubject(role)}, true
		})
	if err != nil {
		return fmt.Errorf("load user roles: %w", err)
	}
	if len(policies) > 0 {
		if _, err := e.AddPolicies(policies); err != nil {
			return err
		}
	}
	if len(groupings) > 0 {
		if _, err := e.AddGroupingPolicies(groupings); err != nil {
			return err
		}
	}
	return nil
}

// collect scans two-column rows and maps each through rule.
func collect(ctx context.Context, db *sql.DB, q string, rule func(a, b string) ([]string, bool)) ([][]string, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]string
	seen := map[string]bool{}
	for rows.Next() {
		var a any
		var b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		r, ok := rule(text(a), b)
		if !ok {
			continue
		}
		key := fmt.Sprint(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, rows.Err()
}

func text(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
