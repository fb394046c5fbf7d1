package auth

import (
	"fmt"

	"github.com/engarde/templatesync/internal/common"
)

// Role is the caller's role claim. Only the values below are accepted.
type Role string

const (
	RoleSuperuser   Role = "superuser"
	RoleSystemAdmin Role = "system_admin"
	RoleAdmin       Role = "admin"
	RoleUser        Role = "user"
	RoleAgency      Role = "agency"
)

// ParseRole maps a raw role claim to a Role. An empty claim means RoleUser;
// any other unknown value is rejected with common.ErrUnknownRole.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleUser, nil
	case RoleSuperuser, RoleSystemAdmin, RoleAdmin, RoleUser, RoleAgency:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownRole, s)
	}
}

// IsTemplateAdmin reports whether the role authors templates. Template
// admins are never synced and may read the catalog.
func (r Role) IsTemplateAdmin() bool {
	switch r {
	case RoleSuperuser, RoleSystemAdmin:
		return true
	case RoleAdmin, RoleUser, RoleAgency:
		return false
	default:
		return false
	}
}

// HomeFolders returns the top-level folders provisioned for the role at login.
func (r Role) HomeFolders() []string {
	switch r {
	case RoleSuperuser, RoleSystemAdmin:
		return []string{"En Garde", "Walker Agents"}
	case RoleAdmin:
		return []string{"Experiments"}
	case RoleUser, RoleAgency:
		return []string{"My Projects"}
	default:
		return nil
	}
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller holds the template-admin capability.
func (i Identity) IsAdmin() bool {
	return i.Role.IsTemplateAdmin()
}
