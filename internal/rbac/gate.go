package rbac

import (
	"context"
	"database/sql"
	"sync"

	"github.com/casbin/casbin/v2"
)

// Gate answers permission questions for users. The enforcer is rebuilt from
// the database on Reload.
type Gate struct {
	DB          *sql.DB
	TablePrefix string

	mu  sync.RWMutex
	enf *casbin.Enforcer
}

// NewGate builds a gate and loads the current policy.
func NewGate(ctx context.Context, db *sql.DB, prefix string) (*Gate, error) {
	g := &Gate{DB: db, TablePrefix: prefix}
	if err := g.Reload(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGateWithEnforcer wraps an existing enforcer. Reload replaces it with one
// loaded from DB.
func NewGateWithEnforcer(e *casbin.Enforcer) *Gate {
	return &Gate{enf: e}
}

// Reload rebuilds the enforcer from the database.
func (g *Gate) Reload(ctx context.Context) error {
	e, err := NewEnforcer()
	if err != nil {
		return err
	}
	if err := Load(ctx, g.DB, g.TablePrefix, e); err != nil {
		return err
	}
	g.mu.Lock()
	g.enf = e
	g.mu.Unlock()
	return nil
}

// Allows reports whether user holds perm through any of their roles.
func (g *Gate) Allows(user string, perm Permission) bool {
	if g == nil || user == "" {
		return false
	}
	g.mu.RLock()
	e := g.enf
	g.mu.RUnlock()
	if e == nil {
		return false
	}
	obj, act := perm.Split()
	ok, err := e.Enforce(UserSubject(user), obj, act)
	return err == nil && ok
}

// Can resolves ability through policy and checks it for user.
func (g *Gate) Can(user string, p Policy, a Ability) bool {
	perm, err := p.Permission(a)
	if err != nil {
		return false
	}
	return g.Allows(user, perm)
}

// PermissionsOf lists every permission user holds.
func (g *Gate) PermissionsOf(user string) []string {
	out := []string{}
	for _, p := range All() {
		if g.Allows(user, p) {
			out = append(out, string(p))
		}
	}
	return out
}
