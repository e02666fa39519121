package validators

import (
	"github.com/gin-gonic/gin"
)

type RegisterDeviceRequest struct {
	ID         string `json:"id" validate:"required" binding:"required"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type" validate:"omitempty,oneof=desktop mobile tablet"`
	Browser    string `json:"browser"`
	Location   string `json:"location"`
	LastActive string `json:"last_active"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved pending awaiting_verification" binding:"required"`
}

type AppendActivityRequest struct {
	Action     string `json:"action" validate:"required,oneof=LOGIN LOGOUT EDIT" binding:"required"`
	Details    string `json:"details"`
	DeviceName string `json:"device_name"`
}

func ValidateRegisterDeviceRequest(c *gin.Context) (*RegisterDeviceRequest, bool) {
	var req RegisterDeviceRequest
	return &req, bind(c, &req)
}

func ValidateSetStatusRequest(c *gin.Context) (*SetStatusRequest, bool) {
	var req SetStatusRequest
	return &req, bind(c, &req)
}

func ValidateAppendActivityRequest(c *gin.Context) (*AppendActivityRequest, bool) {
	var req AppendActivityRequest
	return &req, bind(c, &req)
}
