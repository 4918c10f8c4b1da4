package models

import (
	"gorm.io/gorm"
)

// User roles
const (
	RoleGP      = "GP"
	RoleAnalyst = "Analyst"
	RoleAdmin   = "Admin"
)

// User represents an authenticated analyst. Identity is Google-only;
// logins are restricted to the configured workspace domain.
type User struct {
	gorm.Model
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	GoogleID  string `gorm:"not null;uniqueIndex" json:"google_id"`
	Role      string `gorm:"default:'GP'" json:"role"` // GP, Analyst, Admin
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}

// RefreshToken stores issued refresh tokens so they can be revoked on logout.
type RefreshToken struct {
	gorm.Model
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Token   string `gorm:"not null;uniqueIndex" json:"-"`
	Revoked bool   `gorm:"default:false" json:"revoked"`
}
