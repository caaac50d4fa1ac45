package domain

import "time"

// Role is a user's role within the organization directory.
type Role string

const (
	RoleUser         Role = "user"
	RoleAdmin        Role = "admin"
	RoleLegal        Role = "legal"
	RoleCompanyAdmin Role = "company-admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleLegal, RoleCompanyAdmin:
		return true
	}
	return false
}

// User is an identity from the externally supplied directory. A user belongs
// to at most one company.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Role                Role       `json:"role"`
	CompanyID           string     `json:"companyId,omitempty"`
	CanAcceptForCompany bool       `json:"canAcceptForCompany,omitempty"`
	IsActive            bool       `json:"isActive"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
}

// NewUser builds an active user with the directory defaults.
func NewUser(id, email, name string, role Role, companyID string, canAcceptForCompany bool, now time.Time) User {
	if role == "" {
		role = RoleUser
	}
	return User{
		ID:                  id,
		Email:               email,
		Name:                name,
		Role:                role,
		CompanyID:           companyID,
		CanAcceptForCompany: canAcceptForCompany,
		IsActive:            true,
		CreatedAt:           now.UTC(),
	}
}

// HasCompany reports whether the user is attached to a company.
func (u User) HasCompany() bool { return u.CompanyID != "" }

// CanManagePolicies reports whether the user may publish documents and act on
// other users' records.
func (u User) CanManagePolicies() bool {
	return u.Role == RoleAdmin || u.Role == RoleLegal
}
