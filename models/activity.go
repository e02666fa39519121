package models

import (
	"time"
)

// Audit log actions.
const (
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
	ActionEdit   = "EDIT"
)

// ActivityLog is an append-only, best-effort trail. Writes never block the
// caller and are dropped on failure; the table itself is optional.
type ActivityLog struct {
	ID            string    `gorm:"primarykey" json:"id"`
	AccountID     uint      `gorm:"index" json:"account_id"`
	DeviceName    string    `json:"device_name"`
	Action        string    `json:"action"`
	Details       string    `json:"details"`
	SourceAddress string    `json:"source_address"`
	Location      string    `json:"location"`
	Timestamp     time.Time `json:"timestamp"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
