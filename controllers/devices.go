package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/registry"
	"github.com/meridian-courier/device-trust/utils"
	"github.com/meridian-courier/device-trust/validators"
)

type DeviceController struct {
	store *registry.Store
	log   *logrus.Logger
}

func NewDeviceController(store *registry.Store, log *logrus.Logger) *DeviceController {
	return &DeviceController{store: store, log: log}
}

// List returns the account's trusted and pending devices.
func (dc *DeviceController) List(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}

	devices, err := dc.store.ListByAccount(c.Request.Context(), acct.ID)
	if err != nil {
		sendResponse(c, http.StatusInternalServerError, "Failed to fetch devices", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Devices retrieved", map[string]interface{}{
		"devices": devices,
	}, nil)
}

// Register upserts the caller's device row. The first fingerprint an account
// presents becomes the approved primary; later fingerprints land as pending.
func (dc *DeviceController) Register(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	req, ok := validators.ValidateRegisterDeviceRequest(c)
	if !ok {
		return
	}

	device := models.TrustedDevice{
		ID:         req.ID,
		AccountID:  acct.ID,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
		Browser:    req.Browser,
		Location:   req.Location,
		LastActive: req.LastActive,
	}
	if device.Location == "" {
		device.Location = utils.GetIPLocation(c.ClientIP())
	}

	registered, err := dc.store.Register(c.Request.Context(), device)
	if err != nil {
		sendResponse(c, http.StatusInternalServerError, "Failed to register device", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Device registered", map[string]interface{}{
		"device": registered,
	}, nil)
}

// SetStatus transitions a device. Only the owning account or an elevated
// role may touch a row; anyone else sees not-found.
func (dc *DeviceController) SetStatus(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	req, ok := validators.ValidateSetStatusRequest(c)
	if !ok {
		return
	}
	id := c.Param("id")

	device, err := dc.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			sendResponse(c, http.StatusNotFound, "Device not found", nil, "Unknown device")
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Failed to update device", nil, "Database error")
		return
	}
	if device.AccountID != acct.ID && !acct.Elevated() {
		sendResponse(c, http.StatusNotFound, "Device not found", nil, "Unknown device")
		return
	}

	updated, err := dc.store.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidStatus) {
			sendResponse(c, http.StatusBadRequest, "Failed to update device", nil, err.Error())
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Failed to update device", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Device updated", map[string]interface{}{
		"device": updated,
	}, nil)
}

// Delete revokes a device. Revoking an already-gone device succeeds: the
// caller's intent is satisfied either way.
func (dc *DeviceController) Delete(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	id := c.Param("id")

	device, err := dc.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			sendResponse(c, http.StatusOK, "Device revoked", nil, nil)
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Failed to revoke device", nil, "Database error")
		return
	}
	if device.AccountID != acct.ID && !acct.Elevated() {
		sendResponse(c, http.StatusNotFound, "Device not found", nil, "Unknown device")
		return
	}

	if err := dc.store.Delete(c.Request.Context(), id); err != nil {
		sendResponse(c, http.StatusInternalServerError, "Failed to revoke device", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Device revoked", nil, nil)
}

// Moderation lists devices held in awaiting_verification across all
// accounts. Reachable only through the elevated-role middleware.
func (dc *DeviceController) Moderation(c *gin.Context) {
	devices, err := dc.store.ListAwaitingVerification(c.Request.Context())
	if err != nil {
		sendResponse(c, http.StatusInternalServerError, "Failed to fetch moderation queue", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Moderation queue retrieved", map[string]interface{}{
		"devices": devices,
	}, nil)
}

// VerificationHold parks a device in awaiting_verification. This endpoint is
// the only writer of that state: it exists for staff-invitation onboarding,
// where an editor holds a device until the moderation queue clears it. It is
// deliberately separate from the per-account approval handshake.
func (dc *DeviceController) VerificationHold(c *gin.Context) {
	id := c.Param("id")
	updated, err := dc.store.SetStatus(c.Request.Context(), id, models.StatusAwaitingVerification)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			sendResponse(c, http.StatusNotFound, "Device not found", nil, "Unknown device")
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Failed to hold device", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Device held for verification", map[string]interface{}{
		"device": updated,
	}, nil)
}
