package models

import (
	"time"
)

type Session struct {
	ID                uint   `gorm:"primarykey"`
	UserID            uint   `gorm:"not null;index"`
	SessionToken      string `gorm:"unique;not null"`
	DeviceFingerprint string `gorm:"index"`
	IPAddress         string
	UserAgent         string
	Location          string
	CreatedAt         time.Time
	LastActivity      time.Time
	ExpiresAt         time.Time
	IsActive          bool `gorm:"default:true"`
	User              User `gorm:"foreignkey:UserID"`
}
