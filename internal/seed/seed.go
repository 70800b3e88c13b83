// Package seed installs the permissions, the admin role and the built-in
// disk types a fresh database needs.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/faciam-dev/gcdisk/internal/disk"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/rbac"
)

// AdminRole holds every permission.
const AdminRole = rbac.AdminRole

//go:embed disk_types.yaml
var builtinTypes []byte

// RoleSeeder is implemented by *rbac.RoleRepo.
type RoleSeeder interface {
	EnsurePermissions(ctx context.Context, names []string) error
	EnsureRole(ctx context.Context, name string, perms []string) (rbac.Role, error)
}

// TypeSeeder is implemented by *disk.Repo.
type TypeSeeder interface {
	UpsertType(ctx context.Context, t disk.DiskType) error
}

// BuiltinTypes returns the disk types shipped with the binary.
func BuiltinTypes() ([]disk.DiskType, error) {
	return disk.ParseTypes(builtinTypes)
}

// Run is idempotent: running it twice leaves the same rows behind.
func Run(ctx context.Context, roles RoleSeeder, types TypeSeeder) error {
	perms := rbac.Names()
	if err := roles.EnsurePermissions(ctx, perms); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	if _, err := roles.EnsureRole(ctx, AdminRole, perms); err != nil {
		return fmt.Errorf("seed %s role: %w", AdminRole, err)
	}
	dts, err := BuiltinTypes()
	if err != nil {
		return err
	}
	for _, t := range dts {
		if err := types.UpsertType(ctx, t); err != nil {
			return fmt.Errorf("seed disk type %s: %w", t.Code, err)
		}
	}
	logger.L.Info("seeded", "permissions", len(perms), "disk_types", len(dts))
	return nil
}
