package registry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/realtime"
)

func newStore(t *testing.T) (*Store, *realtime.MemoryBroker) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// One shared in-memory database for all pooled connections.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.TrustedDevice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	broker := realtime.NewMemoryBroker()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewStore(db, broker, log), broker
}

func register(t *testing.T, s *Store, accountID uint, id string) models.TrustedDevice {
	t.Helper()
	d, err := s.Register(context.Background(), models.TrustedDevice{
		ID:         id,
		AccountID:  accountID,
		DeviceName: "Chrome on Linux",
		DeviceType: models.KindDesktop,
		Browser:    "Chrome",
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return d
}

func TestFirstDeviceBecomesApprovedPrimary(t *testing.T) {
	s, _ := newStore(t)
	d := register(t, s, 1, "d1")
	if !d.IsPrimary || d.Status != models.StatusApproved {
		t.Fatalf("first device got %q primary=%v, want approved primary", d.Status, d.IsPrimary)
	}
}

func TestSecondDeviceIsPendingNonPrimary(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	d2 := register(t, s, 1, "d2")
	if d2.IsPrimary || d2.Status != models.StatusPending {
		t.Fatalf("second device got %q primary=%v, want pending non-primary", d2.Status, d2.IsPrimary)
	}
}

func TestRegisterSameFingerprintIsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	again, err := s.Register(context.Background(), models.TrustedDevice{
		ID: "d1", AccountID: 1, Location: "Berlin, Germany",
	})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if !again.IsPrimary || again.Status != models.StatusApproved {
		t.Fatalf("re-register changed trust: %+v", again)
	}
	if again.Location != "Berlin, Germany" {
		t.Fatalf("location not refreshed: %q", again.Location)
	}

	devices, err := s.ListByAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected a single row after re-register, got %d", len(devices))
	}
}

func TestApprovePendingDevice(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	register(t, s, 1, "d2")

	d2, err := s.SetStatus(context.Background(), "d2", models.StatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d2.Status != models.StatusApproved || d2.IsPrimary {
		t.Fatalf("approved device wrong shape: %+v", d2)
	}

	// Approving twice is a no-op, not an error.
	d2again, err := s.SetStatus(context.Background(), "d2", models.StatusApproved)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if d2again.Status != models.StatusApproved {
		t.Fatalf("second approve changed state: %+v", d2again)
	}
}

func TestRejectThenReRegisterStaysNonPrimary(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	register(t, s, 1, "d2")

	if err := s.Delete(context.Background(), "d2"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := s.Get(context.Background(), "d2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected device still present: %v", err)
	}

	d2 := register(t, s, 1, "d2")
	if d2.IsPrimary || d2.Status != models.StatusPending {
		t.Fatalf("re-registration after reject got %q primary=%v", d2.Status, d2.IsPrimary)
	}
}

func TestRevokeNonPrimaryKeepsPrimary(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	register(t, s, 1, "d2")
	if _, err := s.SetStatus(context.Background(), "d2", models.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := s.Delete(context.Background(), "d2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d1, err := s.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get d1: %v", err)
	}
	if !d1.IsPrimary || d1.Status != models.StatusApproved {
		t.Fatalf("primary disturbed by revoking d2: %+v", d1)
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Delete(context.Background(), "ghost"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
	if err := s.Delete(context.Background(), "ghost"); err != nil {
		t.Fatalf("second delete unknown: %v", err)
	}
}

func TestAnchorPrimaryAllowsTwoPrimaries(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")

	d3, err := s.AnchorPrimary(context.Background(), models.TrustedDevice{
		ID: "d3", AccountID: 1, DeviceName: "Firefox on macOS",
	})
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if !d3.IsPrimary || d3.Status != models.StatusApproved {
		t.Fatalf("anchored device wrong shape: %+v", d3)
	}

	d1, err := s.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get d1: %v", err)
	}
	if !d1.IsPrimary {
		t.Fatal("recovery demoted the old primary; it must be left alone")
	}

	devices, err := s.ListByAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("list under two primaries: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected both primaries listed, got %d", len(devices))
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	if _, err := s.SetStatus(context.Background(), "d1", "trusted"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestHeldDevicesLeaveOwnerList(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, 1, "d1")
	register(t, s, 1, "d2")
	if _, err := s.SetStatus(context.Background(), "d2", models.StatusAwaitingVerification); err != nil {
		t.Fatalf("hold: %v", err)
	}

	devices, err := s.ListByAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "d1" {
		t.Fatalf("held device still visible to owner: %+v", devices)
	}

	queue, err := s.ListAwaitingVerification(context.Background())
	if err != nil {
		t.Fatalf("moderation queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "d2" {
		t.Fatalf("moderation queue wrong: %+v", queue)
	}
}

func TestWritesPublishChangeEvents(t *testing.T) {
	s, broker := newStore(t)
	ch, cancel, err := broker.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	register(t, s, 1, "d1")
	expectEvent(t, ch, realtime.KindInsert, "d1")

	register(t, s, 1, "d2")
	expectEvent(t, ch, realtime.KindInsert, "d2")

	if _, err := s.SetStatus(context.Background(), "d2", models.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	expectEvent(t, ch, realtime.KindUpdate, "d2")

	if err := s.Delete(context.Background(), "d2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	expectEvent(t, ch, realtime.KindDelete, "d2")
}

func expectEvent(t *testing.T, ch <-chan realtime.Event, kind realtime.Kind, id string) {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Kind != kind || ev.Device.ID != id {
			t.Fatalf("got event %s/%s, want %s/%s", ev.Kind, ev.Device.ID, kind, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("no %s event for %s", kind, id)
	}
}
