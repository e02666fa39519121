// Package registry owns the trusted_devices table: idempotent registration
// with primary election, status transitions, revocation, and the
// cross-account moderation query. Every committed write is published to the
// realtime broker so connected clients converge without polling.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/realtime"
)

var (
	ErrNotFound      = errors.New("device not found")
	ErrInvalidStatus = errors.New("invalid device status")
)

type Store struct {
	db     *gorm.DB
	broker realtime.Broker
	log    *logrus.Logger
}

func NewStore(db *gorm.DB, broker realtime.Broker, log *logrus.Logger) *Store {
	return &Store{db: db, broker: broker, log: log}
}

// ListByAccount returns the account's devices visible to their owner, i.e.
// those with status approved or pending. Blocked or held rows are omitted so
// the owning device observes its own absence and locks itself out.
func (s *Store) ListByAccount(ctx context.Context, accountID uint) ([]models.TrustedDevice, error) {
	var out []models.TrustedDevice
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, []string{models.StatusApproved, models.StatusPending}).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) Get(ctx context.Context, id string) (models.TrustedDevice, error) {
	var m models.TrustedDevice
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TrustedDevice{}, ErrNotFound
		}
		return models.TrustedDevice{}, err
	}
	return m, nil
}

// Register upserts a device row by fingerprint. The first device an account
// ever registers becomes the approved primary; every later fingerprint is
// created as pending regardless of what the caller asked for. Re-registering
// a known fingerprint only refreshes its volatile fields (location and the
// last-active label); descriptive metadata is fixed at first contact.
//
// The election runs under a per-account advisory lock on postgres so two
// browsers racing for a brand-new account cannot both become primary; the
// loser's insert lands as pending.
func (s *Store) Register(ctx context.Context, d models.TrustedDevice) (models.TrustedDevice, error) {
	var out models.TrustedDevice
	var kind realtime.Kind
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(d.AccountID)).Error; err != nil {
				return err
			}
		}

		q := tx.Where("id = ?", d.ID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing models.TrustedDevice
		err := q.First(&existing).Error
		if err == nil {
			changed := false
			if d.Location != "" && d.Location != existing.Location {
				existing.Location = d.Location
				changed = true
			}
			if d.LastActive != "" && d.LastActive != existing.LastActive {
				existing.LastActive = d.LastActive
				changed = true
			}
			if changed {
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			}
			out = existing
			if changed {
				kind = realtime.KindUpdate
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.TrustedDevice{}).
			Where("account_id = ?", d.AccountID).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			d.IsPrimary = true
			d.Status = models.StatusApproved
		} else {
			d.IsPrimary = false
			d.Status = models.StatusPending
		}

		if err := tx.Create(&d).Error; err != nil {
			return err
		}
		out = d
		kind = realtime.KindInsert
		return nil
	})
	if err != nil {
		return models.TrustedDevice{}, err
	}
	if kind != "" {
		s.publish(ctx, kind, out)
	}
	return out, nil
}

// SetStatus moves a device to the given status. Setting the status a row
// already holds is a no-op and publishes nothing.
func (s *Store) SetStatus(ctx context.Context, id, status string) (models.TrustedDevice, error) {
	switch status {
	case models.StatusApproved, models.StatusPending, models.StatusAwaitingVerification:
	default:
		return models.TrustedDevice{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return models.TrustedDevice{}, err
	}
	if m.Status == status {
		return m, nil
	}

	m.Status = status
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return models.TrustedDevice{}, err
	}
	s.publish(ctx, realtime.KindUpdate, m)
	return m, nil
}

// Delete revokes a device. Deleting an unknown id is a no-op, which makes a
// double reject/revoke safe.
func (s *Store) Delete(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.TrustedDevice{}).Error; err != nil {
		return err
	}
	s.publish(ctx, realtime.KindDelete, m)
	return nil
}

// ListAwaitingVerification is the privileged moderation query: every device
// held in awaiting_verification, across all accounts.
func (s *Store) ListAwaitingVerification(ctx context.Context) ([]models.TrustedDevice, error) {
	var out []models.TrustedDevice
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusAwaitingVerification).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// AnchorPrimary is the emergency-recovery write: the device is upserted as
// approved primary unconditionally, even if the account already has one.
// The resulting two-primary state is accepted; the registry must stay
// consistent under it, not prevent it.
func (s *Store) AnchorPrimary(ctx context.Context, d models.TrustedDevice) (models.TrustedDevice, error) {
	d.Status = models.StatusApproved
	d.IsPrimary = true

	var kind realtime.Kind
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TrustedDevice
		err := tx.Where("id = ?", d.ID).First(&existing).Error
		if err == nil {
			existing.Status = models.StatusApproved
			existing.IsPrimary = true
			if d.Location != "" {
				existing.Location = d.Location
			}
			if d.LastActive != "" {
				existing.LastActive = d.LastActive
			}
			d = existing
			kind = realtime.KindUpdate
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		kind = realtime.KindInsert
		return tx.Create(&d).Error
	})
	if err != nil {
		return models.TrustedDevice{}, err
	}
	s.publish(ctx, kind, d)
	return d, nil
}

func (s *Store) publish(ctx context.Context, kind realtime.Kind, d models.TrustedDevice) {
	if err := s.broker.Publish(ctx, realtime.Event{Kind: kind, Device: d}); err != nil {
		// Feed is an optimization over polling; a lost event only delays
		// convergence.
		s.log.WithError(err).WithField("device", d.ID).Warn("registry: change event not published")
	}
}
