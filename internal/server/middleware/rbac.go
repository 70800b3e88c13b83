package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcdisk/internal/rbac"
)

// PermissionKey is the operation metadata key naming the permission an
// operation requires.
const PermissionKey = "permission"

// Require returns operation metadata demanding perm.
func Require(perm rbac.Permission) map[string]any {
	return map[string]any{PermissionKey: perm}
}

// RBAC rejects requests to operations whose required permission the current
// user does not hold. Operations without a permission pass through.
func RBAC(api huma.API, gate *rbac.Gate) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || op.Metadata == nil {
			next(ctx)
			return
		}
		perm, ok := op.Metadata[PermissionKey].(rbac.Permission)
		if !ok {
			next(ctx)
			return
		}
		if !gate.Allows(UserFromContext(ctx.Context()), perm) {
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "this action is unauthorized")
			return
		}
		next(ctx)
	}
}
