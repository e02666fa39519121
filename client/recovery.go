package client

import (
	"context"

	"github.com/meridian-courier/device-trust/fingerprint"
	"github.com/meridian-courier/device-trust/identity"
	"github.com/meridian-courier/device-trust/models"
)

// SendPasswordRecovery starts the emergency flow for an account whose
// primary device is gone. The returned code travels out of band.
func (c *Client) SendPasswordRecovery(ctx context.Context, email string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	if err := c.do(ctx, "POST", "/auth/recover", map[string]string{
		"email": email,
	}, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}

// RecoverAccess consumes a recovery code: the credential is reset, a fresh
// session opens, and this device is re-anchored as the approved primary,
// even if another row still holds the primary flag. Trust follows whoever
// completes recovery.
func (c *Client) RecoverAccess(ctx context.Context, code, newPassword string, resolver *fingerprint.Resolver, userAgent string) (identity.Account, error) {
	meta := fingerprint.Sniff(userAgent)
	var out struct {
		Account identity.Account     `json:"account"`
		Token   string               `json:"token"`
		Device  models.TrustedDevice `json:"device"`
	}
	err := c.do(ctx, "POST", "/auth/recover/confirm", map[string]interface{}{
		"code":         code,
		"new_password": newPassword,
		"device": map[string]string{
			"id":          resolver.DeviceID(),
			"device_name": meta.Name,
			"device_type": meta.Kind,
			"browser":     meta.Browser,
			"last_active": "just now",
		},
	}, &out)
	if err != nil {
		return identity.Account{}, err
	}

	c.mu.Lock()
	c.token = out.Token
	c.account = out.Account
	c.mu.Unlock()
	c.store.Upsert(out.Device)
	return out.Account, nil
}
