package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/meridian-courier/device-trust/models"
)

const (
	maxFailedAttempts = 5
	failureCooldown   = 15 * time.Minute
	recoveryCodeTTL   = 15 * time.Minute
)

// Service is the reference Provider: bcrypt credentials in postgres,
// sessions mirrored in the SessionStore for fast validation. The database
// row wins when the two disagree.
type Service struct {
	db         *gorm.DB
	sessions   SessionStore
	sessionTTL time.Duration
	log        *logrus.Logger
}

func NewService(db *gorm.DB, sessions SessionStore, sessionTTL time.Duration, log *logrus.Logger) *Service {
	return &Service{db: db, sessions: sessions, sessionTTL: sessionTTL, log: log}
}

func (s *Service) SignUp(ctx context.Context, email, username, password, displayName string) (Account, error) {
	email = strings.ToLower(email)

	var existing models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", email, username).
		First(&existing).Error
	if err == nil {
		return Account{}, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hashed),
		DisplayName:  displayName,
		Role:         models.RoleReader,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return Account{}, err
	}
	return accountOf(user), nil
}

func (s *Service) SignIn(ctx context.Context, email, password string, sc SignInContext) (Account, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", strings.ToLower(email), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, "", ErrInvalidCredentials
		}
		return Account{}, "", err
	}

	if user.FailedLoginAttempts >= maxFailedAttempts && user.LastFailedAttempt != nil {
		if user.LastFailedAttempt.After(time.Now().Add(-failureCooldown)) {
			return Account{}, "", ErrTooManyAttempts
		}
		user.FailedLoginAttempts = 0
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		now := time.Now()
		if uerr := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
			"failed_login_attempts": user.FailedLoginAttempts + 1,
			"last_failed_attempt":   now,
		}).Error; uerr != nil {
			s.log.WithError(uerr).Warn("identity: failed-attempt counter not updated")
		}
		return Account{}, "", ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, &user, sc)
	if err != nil {
		return Account{}, "", err
	}
	return accountOf(user), token, nil
}

func (s *Service) openSession(ctx context.Context, user *models.User, sc SignInContext) (string, error) {
	token := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(s.sessionTTL)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := models.Session{
			UserID:            user.ID,
			SessionToken:      token,
			DeviceFingerprint: sc.DeviceFingerprint,
			IPAddress:         sc.IPAddress,
			UserAgent:         sc.UserAgent,
			Location:          sc.Location,
			LastActivity:      now,
			ExpiresAt:         expiresAt,
			IsActive:          true,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return tx.Model(user).Updates(map[string]interface{}{
			"last_login":            now,
			"failed_login_attempts": 0,
			"last_failed_attempt":   nil,
		}).Error
	})
	if err != nil {
		return "", err
	}

	if err := s.sessions.SetSession(ctx, token, user.ID, s.sessionTTL); err != nil {
		// The database row still validates the session; the fast path just
		// misses until the store recovers.
		s.log.WithError(err).Warn("identity: session not mirrored to fast store")
	}
	return token, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("session_token = ? AND is_active = ?", token, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"expires_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		s.log.WithError(err).Warn("identity: session not removed from fast store")
	}
	return nil
}

func (s *Service) Session(ctx context.Context, token string) (Account, error) {
	userID, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		// Fast store miss or outage; fall through to the database.
		userID = 0
	}

	var session models.Session
	if err := s.db.WithContext(ctx).
		Where("session_token = ? AND is_active = ? AND expires_at > ?", token, true, time.Now()).
		First(&session).Error; err != nil {
		if userID != 0 {
			_ = s.sessions.DeleteSession(ctx, token)
		}
		return Account{}, ErrSessionNotFound
	}

	if err := s.db.WithContext(ctx).Model(&session).
		Update("last_activity", time.Now()).Error; err != nil {
		s.log.WithError(err).Debug("identity: last_activity not refreshed")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, session.UserID).Error; err != nil {
		return Account{}, ErrSessionNotFound
	}
	return accountOf(user), nil
}

func (s *Service) UpdateUser(ctx context.Context, accountID uint, displayName, avatarURL string) error {
	updates := map[string]interface{}{}
	if displayName != "" {
		updates["display_name"] = displayName
	}
	if avatarURL != "" {
		updates["avatar_url"] = avatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", accountID).Updates(updates).Error
}

func (s *Service) SendPasswordRecovery(ctx context.Context, email string) (string, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", strings.ToLower(email), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Do not reveal whether the address exists.
			return "", nil
		}
		return "", err
	}

	code := uuid.New().String()
	if err := s.sessions.SetRecoveryCode(ctx, code, user.ID, recoveryCodeTTL); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) ConfirmRecovery(ctx context.Context, code, newPassword string, sc SignInContext) (Account, string, error) {
	userID, err := s.sessions.GetRecoveryCode(ctx, code)
	if err != nil || userID == 0 {
		return Account{}, "", ErrRecoveryInvalid
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return Account{}, "", ErrRecoveryInvalid
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, "", err
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_hash":         string(hashed),
		"failed_login_attempts": 0,
		"last_failed_attempt":   nil,
	}).Error; err != nil {
		return Account{}, "", err
	}

	if err := s.sessions.DeleteRecoveryCode(ctx, code); err != nil {
		s.log.WithError(err).Warn("identity: recovery code not invalidated")
	}

	token, err := s.openSession(ctx, &user, sc)
	if err != nil {
		return Account{}, "", err
	}
	return accountOf(user), token, nil
}

func accountOf(u models.User) Account {
	return Account{
		ID:          u.ID,
		Role:        u.Role,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
