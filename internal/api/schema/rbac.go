package schema

import "time"

// Role is a role with its counts. Permissions is only set on single reads.
type Role struct {
	UUID             string    `json:"uuid"`
	Name             string    `json:"name"`
	UsersCount       int64     `json:"usersCount"`
	PermissionsCount int64     `json:"permissionsCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Permissions      []string  `json:"permissions,omitempty"`
}

// RoleCreate names a new role and its initial permissions.
type RoleCreate struct {
	Name        string   `json:"name" minLength:"3" maxLength:"100"`
	Permissions []string `json:"permissions,omitempty"`
}

// RoleUpdate replaces the permission set when Permissions is present, even
// when it is empty.
type RoleUpdate struct {
	Name        *string  `json:"name,omitempty" minLength:"3" maxLength:"100"`
	Permissions []string `json:"permissions,omitempty"`
}
