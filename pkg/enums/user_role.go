package enums

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleSeller UserRole = "seller"
	UserRoleAgent  UserRole = "agent"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleSeller,
	UserRoleAgent,
}

// String implements fmt.Stringer.
func (v UserRole) String() string {
	return string(v)
}

// IsValid reports whether the value is a known UserRole.
func (v UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == v {
			return true
		}
	}
	return false
}
