package client

import (
	"context"

	"github.com/meridian-courier/device-trust/models"
)

// The approval handshake, as seen from the primary device: every pending
// device of the signed-in account is an actionable notification, whether it
// arrived through the initial fetch or the realtime feed.

// PendingApprovals lists the account's pending devices other than this one.
func (g *Gate) PendingApprovals() []models.TrustedDevice {
	var out []models.TrustedDevice
	for _, d := range g.client.Store().Snapshot() {
		if d.Status == models.StatusPending && d.ID != g.deviceID {
			out = append(out, d)
		}
	}
	return out
}

// PendingCount is the notification badge.
func (g *Gate) PendingCount() int {
	return len(g.PendingApprovals())
}

// Approve grants a pending device access. The approved device's own gate
// picks the change up from the feed or its next refetch and lets it through
// without re-authentication. Approving twice is harmless.
func (c *Client) Approve(ctx context.Context, deviceID string) error {
	return c.SetDeviceStatus(ctx, deviceID, models.StatusApproved)
}

// Reject removes a pending device entirely. The rejected device's gate
// finds its row gone and locks itself out; a later registration from the
// same profile starts over as a new, never-primary row.
func (c *Client) Reject(ctx context.Context, deviceID string) error {
	return c.DeleteDevice(ctx, deviceID)
}
