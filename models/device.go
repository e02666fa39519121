package models

import (
	"time"
)

// Device trust statuses. A device outside {approved, pending} is invisible
// to its owner and treated as blocked by the authorization gate.
// StatusAwaitingVerification feeds the cross-account moderation queue and is
// only ever written through the staff verification-hold endpoint.
const (
	StatusApproved             = "approved"
	StatusPending              = "pending"
	StatusAwaitingVerification = "awaiting_verification"
)

// Device kinds, derived once from the user agent at registration time.
const (
	KindDesktop = "desktop"
	KindMobile  = "mobile"
	KindTablet  = "tablet"
)

// TrustedDevice binds a browser-profile fingerprint to an account. The ID is
// the client-generated fingerprint and is immutable; revoking a device
// deletes the row, and any later registration from the same profile creates
// a fresh row that is never primary.
type TrustedDevice struct {
	ID         string    `gorm:"primarykey" json:"id"`
	AccountID  uint      `gorm:"index;not null" json:"account_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	Location   string    `json:"location"`
	Status     string    `gorm:"not null;default:pending" json:"status"`
	IsPrimary  bool      `gorm:"not null;default:false" json:"is_primary"`
	LastActive string    `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (TrustedDevice) TableName() string { return "trusted_devices" }
