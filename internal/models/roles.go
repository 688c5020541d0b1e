// internal/models/roles.go

package models

// UserRole представляє роль користувача в системі
type UserRole string

const (
	RoleVolunteer UserRole = "volunteer"
	RoleAdmin     UserRole = "admin"
)

// IsValid перевіряє чи роль валідна
func (r UserRole) IsValid() bool {
	switch r {
	case RoleVolunteer, RoleAdmin:
		return true
	}
	return false
}

// IsHigherOrEqual перевіряє чи поточна роль вища або рівна цільовій
func (r UserRole) IsHigherOrEqual(target UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleVolunteer: 0,
		RoleAdmin:     1,
	}

	currentLevel, exists1 := roleHierarchy[r]
	targetLevel, exists2 := roleHierarchy[target]

	if !exists1 || !exists2 {
		return false
	}

	return currentLevel >= targetLevel
}

func (r UserRole) String() string {
	return string(r)
}

// FromString конвертує string в UserRole
func FromString(role string) (UserRole, bool) {
	r := UserRole(role)
	if r.IsValid() {
		return r, true
	}
	return "", false
}
