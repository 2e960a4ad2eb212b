package entity

import (
	"strings"
	"time"
)

const (
	UserRoleSuperAdmin = "super_admin"
	UserRoleAdmin      = "admin"
	UserRoleManager    = "manager"
	UserRoleUser       = "user"
)

// DbUser holds the account fields the sync core needs: role and credit balance.
type DbUser struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"column:email;type:varchar(255);index" json:"email"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Role         string    `gorm:"column:role;type:varchar(50);index;not null;default:user" json:"role"`
	StarsBalance int       `gorm:"column:stars_balance;not null;default:0" json:"stars_balance"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName overrides default pluralised name.
func (DbUser) TableName() string {
	return "users"
}

// IsPrivilegedRole reports whether role is listed in privileged (case-insensitive).
func IsPrivilegedRole(role string, privileged []string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, candidate := range privileged {
		if strings.ToLower(strings.TrimSpace(candidate)) == role {
			return true
		}
	}
	return false
}
