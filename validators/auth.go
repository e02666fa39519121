package validators

import (
	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" binding:"required,email"`
	Username    string `json:"username" validate:"required,min=3,max=50" binding:"required,min=3,max=50"`
	Password    string `json:"password" validate:"required,min=8" binding:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" binding:"required,email"`
	Password string `json:"password" validate:"required" binding:"required"`
	// Fingerprint of the signing-in device; recorded on the session so the
	// gate can relate the transport session to a registry row.
	DeviceID string `json:"device_id"`
}

type UpdateUserRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
}

type RecoverRequest struct {
	Email string `json:"email" validate:"required,email" binding:"required,email"`
}

// ConfirmRecoveryRequest carries the recovering browser's device alongside
// the credential reset: on success that device is re-anchored as the
// approved primary.
type ConfirmRecoveryRequest struct {
	Code        string                `json:"code" validate:"required" binding:"required"`
	NewPassword string                `json:"new_password" validate:"required,min=8" binding:"required,min=8"`
	Device      RegisterDeviceRequest `json:"device" validate:"required" binding:"required"`
}

func ValidateRegisterRequest(c *gin.Context) (*RegisterRequest, bool) {
	var req RegisterRequest
	return &req, bind(c, &req)
}

func ValidateLoginRequest(c *gin.Context) (*LoginRequest, bool) {
	var req LoginRequest
	return &req, bind(c, &req)
}

func ValidateUpdateUserRequest(c *gin.Context) (*UpdateUserRequest, bool) {
	var req UpdateUserRequest
	return &req, bind(c, &req)
}

func ValidateRecoverRequest(c *gin.Context) (*RecoverRequest, bool) {
	var req RecoverRequest
	return &req, bind(c, &req)
}

func ValidateConfirmRecoveryRequest(c *gin.Context) (*ConfirmRecoveryRequest, bool) {
	var req ConfirmRecoveryRequest
	return &req, bind(c, &req)
}
