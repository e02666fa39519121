package models

import (
	"time"
)

// Roles understood by the platform. Editors and admins may operate the
// cross-account moderation queue; everyone else is scoped to their own
// account's devices.
const (
	RoleReader = "reader"
	RoleWriter = "writer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

type User struct {
	ID                  uint   `gorm:"primarykey"`
	Email               string `gorm:"unique;not null"`
	Username            string `gorm:"unique;not null"`
	PasswordHash        string `gorm:"not null"`
	DisplayName         string
	AvatarURL           string
	Role                string `gorm:"not null;default:reader"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLogin           *time.Time
	IsActive            bool `gorm:"default:true"`
	FailedLoginAttempts int  `gorm:"default:0"`
	LastFailedAttempt   *time.Time
}
