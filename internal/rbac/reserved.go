package rbac

import "regexp"

// AdminRole is seeded with every permission and cannot be created, renamed
// or deleted through the API.
const AdminRole = "admin"

var reservedRoles = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(AdminRole) + `$`),
}

// IsReservedRole returns true if the role name is reserved.
func IsReservedRole(name string) bool {
	for _, r := range reservedRoles {
		if r.MatchString(name) {
			return true
		}
	}
	return false
}
