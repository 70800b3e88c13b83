package rbac

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
)

// Permission names an action on a resource, written "<resource>.<action>".
type Permission string

const (
	AuditLogsList Permission = "audit_logs.list"
	AuditLogsView Permission = "audit_logs.view"
	RolesCreate   Permission = "roles.create"
	RolesDelete   Permission = "roles.delete"
	RolesEdit     Permission = "roles.edit"
	RolesList     Permission = "roles.list"
	RolesView     Permission = "roles.view"
	DisksCreate   Permission = "disks.create"
	DisksDelete   Permission = "disks.delete"
	DisksEdit     Permission = "disks.edit"
	DisksList     Permission = "disks.list"
	DisksView     Permission = "disks.view"
)

// All returns every known permission.
func All() []Permission {
	return []Permission{
		AuditLogsList, AuditLogsView,
		RolesCreate, RolesDelete, RolesEdit, RolesList, RolesView,
		DisksCreate, DisksDelete, DisksEdit, DisksList, DisksView,
	}
}

// Names returns All as strings.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = string(p)
	}
	return out
}

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	for _, p := range All() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Split returns the resource and action parts.
func (p Permission) Split() (resource, action string) {
	resource, action, _ = strings.Cut(string(p), ".")
	return resource, action
}

// Ability is a policy verb used by handlers.
type Ability string

const (
	ViewAny Ability = "viewAny"
	View    Ability = "view"
	Create  Ability = "create"
	Update  Ability = "update"
	Delete  Ability = "delete"
)

var abilityActions = map[Ability]string{
	ViewAny: "list",
	View:    "view",
	Create:  "create",
	Update:  "edit",
	Delete:  "delete",
}

// Policy maps abilities on one model to permissions. Model is the singular
// model name, e.g. "disk".
type Policy struct {
	Model string
}

// Permission returns the permission required for ability.
func (p Policy) Permission(a Ability) (Permission, error) {
	act, ok := abilityActions[a]
	if !ok {
		return "", fmt.Errorf("unknown ability %q", a)
	}
	return ParsePermission(inflection.Plural(p.Model) + "." + act)
}

// MustPermission is Permission for statically known abilities.
func (p Policy) MustPermission(a Ability) Permission {
	perm, err := p.Permission(a)
	if err != nil {
		panic(err)
	}
	return perm
}

var (
	AuditLogPolicy = Policy{Model: "audit_log"}
	DiskPolicy     = Policy{Model: "disk"}
	RolePolicy     = Policy{Model: "role"}
)
