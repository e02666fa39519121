// Package realtime carries row-change notifications for the trust registry.
// Every committed registry write publishes one event on a fixed channel;
// consumers merge events into their local caches keyed by device id, so the
// feed and explicit refetches may interleave in any order.
package realtime

import (
	"github.com/meridian-courier/device-trust/models"
)

// Channel is the fixed pub/sub channel name for trusted-device changes.
const Channel = "trusted_devices_changes"

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is a single row-level change. For deletes only Device.ID and
// Device.AccountID are meaningful.
type Event struct {
	Kind   Kind                 `json:"kind"`
	Device models.TrustedDevice `json:"device"`
}
