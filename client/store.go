package client

import (
	"sync"

	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/realtime"
)

// Store is the local mirror of the account's registry rows. It is owned by
// the Client; there is no package-level cache. Three writers feed it (full
// refetches, optimistic mutations, realtime events) and every write is
// idempotent by device id, so their relative order never matters: the mirror
// converges on server truth and can always be rebuilt from scratch.
type Store struct {
	mu        sync.RWMutex
	devices   []models.TrustedDevice
	listeners map[int]func()
	nextID    int
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]func())}
}

// Snapshot returns a copy of the cached devices in stable order.
func (s *Store) Snapshot() []models.TrustedDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TrustedDevice(nil), s.devices...)
}

func (s *Store) Get(id string) (models.TrustedDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.TrustedDevice{}, false
}

// ReplaceAll swaps in the result of a full refetch.
func (s *Store) ReplaceAll(devices []models.TrustedDevice) {
	s.mu.Lock()
	s.devices = append([]models.TrustedDevice(nil), devices...)
	s.mu.Unlock()
	s.notify()
}

// Upsert inserts or replaces one device by id.
func (s *Store) Upsert(d models.TrustedDevice) {
	s.mu.Lock()
	replaced := false
	for i := range s.devices {
		if s.devices[i].ID == d.ID {
			s.devices[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		s.devices = append(s.devices, d)
	}
	s.mu.Unlock()
	s.notify()
}

// Remove drops a device by id. Removing an absent id still notifies
// listeners; a delete event and a refetch race benignly here.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Apply merges one realtime event, last-writer-wins by row identity.
func (s *Store) Apply(ev realtime.Event) {
	switch ev.Kind {
	case realtime.KindInsert, realtime.KindUpdate:
		s.Upsert(ev.Device)
	case realtime.KindDelete:
		s.Remove(ev.Device.ID)
	}
}

// Subscribe registers a change listener and returns its cancel function.
// Listeners run on the mutating goroutine and must be quick.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
