package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcdisk/internal/api/schema"
	"github.com/faciam-dev/gcdisk/internal/events"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	sm "github.com/faciam-dev/gcdisk/internal/server/middleware"
	"github.com/faciam-dev/gcdisk/pkg/validation"
)

// RoleStore is the part of rbac.RoleRepo the handlers use.
type RoleStore interface {
	Search(ctx context.Context, s rbac.RoleSearch) ([]rbac.Role, paging.Meta, error)
	Get(ctx context.Context, id string) (rbac.Role, error)
	NameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	Create(ctx context.Context, name string, perms []string) (rbac.Role, error)
	Rename(ctx context.Context, roleID int64, name string) error
	Delete(ctx context.Context, roleID int64) error
	SyncPermissions(ctx context.Context, roleID int64, perms []string) error
	ListPermissions(ctx context.Context, search string) ([]string, error)
}

// Reloader rebuilds the authorization policy after role changes.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Auditor records changes.
type Auditor interface {
	Write(ctx context.Context, actor, resource, id string, before, after any) error
}

// RBACHandler provides role and permission endpoints.
type RBACHandler struct {
	Roles RoleStore
	Gate  Reloader
	Audit Auditor
}

type listRolesInput struct {
	Search string `query:"search"`
	schema.ListParams
}

type listRolesOutput struct {
	Body struct {
		Data []schema.Role `json:"data"`
		Meta paging.Meta   `json:"meta"`
	}
}

type rolePath struct {
	UUID string `path:"uuid"`
}

type createRoleInput struct {
	Body schema.RoleCreate
}

type updateRoleInput struct {
	UUID string `path:"uuid"`
	Body schema.RoleUpdate
}

type roleOutput struct {
	Body schema.Role
}

type listPermissionsInput struct {
	Search string `query:"search"`
}

type listPermissionsOutput struct {
	Body struct {
		Data []string `json:"data"`
	}
}

// RegisterRBAC registers the role and permission endpoints on api.
func RegisterRBAC(api huma.API, h *RBACHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listRoles",
		Method:      http.MethodGet,
		Path:        "/v1/roles",
		Summary:     "Search roles",
		Tags:        []string{"RBAC"},
		Metadata:    sm.Require(rbac.RolePolicy.MustPermission(rbac.ViewAny)),
	}, h.listRoles)

	huma.Register(api, huma.Operation{
		OperationID:   "createRole",
		Method:        http.MethodPost,
		Path:          "/v1/roles",
		Summary:       "Create role",
		Tags:          []string{"RBAC"},
		DefaultStatus: http.StatusCreated,
		Metadata:      sm.Require(rbac.RolePolicy.MustPermission(rbac.Create)),
	}, h.createRole)

	huma.Register(api, huma.Operation{
		OperationID: "getRole",
		Method:      http.MethodGet,
		Path:        "/v1/roles/{uuid}",
		Summary:     "Get role",
		Tags:        []string{"RBAC"},
		Metadata:    sm.Require(rbac.RolePolicy.MustPermission(rbac.View)),
	}, h.getRole)

	huma.Register(api, huma.Operation{
		OperationID: "updateRole",
		Method:      http.MethodPut,
		Path:        "/v1/roles/{uuid}",
		Summary:     "Update role",
		Tags:        []string{"RBAC"},
		Metadata:    sm.Require(rbac.RolePolicy.MustPermission(rbac.Update)),
	}, h.updateRole)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteRole",
		Method:        http.MethodDelete,
		Path:          "/v1/roles/{uuid}",
		Summary:       "Delete role",
		Tags:          []string{"RBAC"},
		DefaultStatus: http.StatusNoContent,
		Metadata:      sm.Require(rbac.RolePolicy.MustPermission(rbac.Delete)),
	}, h.deleteRole)

	huma.Register(api, huma.Operation{
		OperationID: "listPermissions",
		Method:      http.MethodGet,
		Path:        "/v1/permissions",
		Summary:     "List permissions",
		Tags:        []string{"RBAC"},
	}, h.listPermissions)
}

func toRoleSchema(r rbac.Role) schema.Role {
	return schema.Role{
		UUID:             r.UUID,
		Name:             r.Name,
		UsersCount:       r.UsersCount,
		PermissionsCount: r.PermissionsCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Permissions:      r.Permissions,
	}
}

func (h *RBACHandler) listRoles(ctx context.Context, in *listRolesInput) (*listRolesOutput, error) {
	roles, meta, err := h.Roles.Search(ctx, rbac.RoleSearch{
		Search: in.Search,
		Params: paging.Params{Page: in.Page, PerPage: in.PerPage, SortBy: in.SortBy, SortOrder: in.SortOrder},
	})
	if err != nil {
		return nil, err
	}
	out := &listRolesOutput{}
	out.Body.Data = make([]schema.Role, 0, len(roles))
	for _, r := range roles {
		out.Body.Data = append(out.Body.Data, toRoleSchema(r))
	}
	out.Body.Meta = meta
	return out, nil
}

// checkRole validates a name (when given) and a permission list against the
// known permissions. cur is the zero Role on create.
func (h *RBACHandler) checkRole(ctx context.Context, name *string, cur rbac.Role, perms []string) error {
	errs := validation.Errors{}
	if name != nil && *name != cur.Name {
		if rbac.IsReservedRole(cur.Name) {
			return huma.Error409Conflict(fmt.Sprintf("role %q cannot be renamed", cur.Name))
		}
		if rbac.IsReservedRole(*name) {
			return huma.Error409Conflict(fmt.Sprintf("role name %q is reserved", *name))
		}
	}
	if name != nil {
		taken, err := h.Roles.NameTaken(ctx, *name, cur.ID)
		if err != nil {
			return err
		}
		if taken {
			return huma.Error409Conflict(fmt.Sprintf("role %q already exists", *name))
		}
	}
	for i, p := range perms {
		if _, err := rbac.ParsePermission(p); err != nil {
			key := fmt.Sprintf("permissions.%d", i)
			errs[key] = []string{fmt.Sprintf("The selected %s is invalid.", key)}
		}
	}
	if len(errs) > 0 {
		return unprocessable(errs)
	}
	return nil
}

func (h *RBACHandler) createRole(ctx context.Context, in *createRoleInput) (*roleOutput, error) {
	if err := h.checkRole(ctx, &in.Body.Name, rbac.Role{}, in.Body.Permissions); err != nil {
		return nil, err
	}
	role, err := h.Roles.Create(ctx, in.Body.Name, in.Body.Permissions)
	if err != nil {
		return nil, err
	}
	h.changed(ctx, events.RoleCreated, role.UUID, nil, role)
	return &roleOutput{Body: toRoleSchema(role)}, nil
}

func (h *RBACHandler) getRole(ctx context.Context, in *rolePath) (*roleOutput, error) {
	role, err := h.Roles.Get(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &roleOutput{Body: toRoleSchema(role)}, nil
}

func (h *RBACHandler) updateRole(ctx context.Context, in *updateRoleInput) (*roleOutput, error) {
	before, err := h.Roles.Get(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := h.checkRole(ctx, in.Body.Name, before, in.Body.Permissions); err != nil {
		return nil, err
	}
	if in.Body.Name != nil && *in.Body.Name != before.Name {
		if err := h.Roles.Rename(ctx, before.ID, *in.Body.Name); err != nil {
			return nil, err
		}
	}
	if in.Body.Permissions != nil {
		if err := h.Roles.SyncPermissions(ctx, before.ID, in.Body.Permissions); err != nil {
			return nil, err
		}
	}
	after, err := h.Roles.Get(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	h.changed(ctx, events.RoleUpdated, after.UUID, before, after)
	return &roleOutput{Body: toRoleSchema(after)}, nil
}

func (h *RBACHandler) deleteRole(ctx context.Context, in *rolePath) (*struct{}, error) {
	role, err := h.Roles.Get(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	if rbac.IsReservedRole(role.Name) {
		return nil, huma.Error409Conflict(fmt.Sprintf("role %q cannot be deleted", role.Name))
	}
	if err := h.Roles.Delete(ctx, role.ID); err != nil {
		return nil, err
	}
	h.changed(ctx, events.RoleDeleted, role.UUID, role, nil)
	return nil, nil
}

func (h *RBACHandler) listPermissions(ctx context.Context, in *listPermissionsInput) (*listPermissionsOutput, error) {
	perms, err := h.Roles.ListPermissions(ctx, in.Search)
	if err != nil {
		return nil, err
	}
	out := &listPermissionsOutput{}
	out.Body.Data = perms
	return out, nil
}

// changed reloads the policy, audits and emits the event of a role change.
func (h *RBACHandler) changed(ctx context.Context, name, id string, before, after any) {
	if h.Gate != nil {
		if err := h.Gate.Reload(ctx); err != nil {
			logger.L.Error("reload rbac", "err", err)
		}
	}
	actor := sm.UserFromContext(ctx)
	if h.Audit != nil {
		if err := h.Audit.Write(ctx, actor, "role", id, before, after); err != nil {
			logger.L.Error("audit role change", "role", id, "err", err)
		}
	}
	data := after
	if data == nil {
		data = before
	}
	events.Emit(ctx, events.New(name, id, data).By(actor))
}

