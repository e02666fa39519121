// Package identity is the credential boundary. The rest of the system only
// ever sees the Provider interface and the Account it returns; password
// handling stays behind it.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-courier/device-trust/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed attempts")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserExists         = errors.New("user already exists")
	ErrRecoveryInvalid    = errors.New("recovery code invalid or expired")
)

// Account is what session introspection yields: enough to scope device
// queries and decide whether the moderation surface is reachable.
type Account struct {
	ID          uint   `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Elevated reports whether the account may operate the cross-account
// moderation queue and its event feed.
func (a Account) Elevated() bool {
	return a.Role == models.RoleEditor || a.Role == models.RoleAdmin
}

// SignInContext carries the transport facts recorded alongside a session.
type SignInContext struct {
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	Location          string
}

type Provider interface {
	SignUp(ctx context.Context, email, username, password, displayName string) (Account, error)
	SignIn(ctx context.Context, email, password string, sc SignInContext) (Account, string, error)
	SignOut(ctx context.Context, token string) error
	// Session introspects a token and returns the owning account.
	Session(ctx context.Context, token string) (Account, error)
	UpdateUser(ctx context.Context, accountID uint, displayName, avatarURL string) error
	// SendPasswordRecovery issues a short-lived recovery code for the
	// account behind the email. Delivery of the code is out of band.
	SendPasswordRecovery(ctx context.Context, email string) (string, error)
	// ConfirmRecovery consumes a recovery code, resets the password and
	// opens a fresh session for the recovering caller.
	ConfirmRecovery(ctx context.Context, code, newPassword string, sc SignInContext) (Account, string, error)
}

// SessionStore is the fast-path token store. The production implementation
// is redis (database.RedisClient); tests use MemorySessions.
type SessionStore interface {
	SetSession(ctx context.Context, token string, userID uint, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (uint, error)
	DeleteSession(ctx context.Context, token string) error
	SetRecoveryCode(ctx context.Context, code string, userID uint, ttl time.Duration) error
	GetRecoveryCode(ctx context.Context, code string) (uint, error)
	DeleteRecoveryCode(ctx context.Context, code string) error
}
