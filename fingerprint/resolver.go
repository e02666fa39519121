// Package fingerprint derives the stable per-profile identifier a device is
// registered under, and the descriptive metadata attached to it at
// registration time.
package fingerprint

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const idFileName = "device_id"

// Resolver resolves this profile's device id through three storage tiers:
// a durable file that survives restarts, a session file that survives only
// the current boot, and a process-local map. The id is synthesized once and
// never regenerated while at least one tier can hold it.
type Resolver struct {
	durableDir string
	sessionDir string
	log        *logrus.Logger

	mu  sync.Mutex
	mem map[string]string
}

type Options struct {
	// DurableDir defaults to <user config dir>/device-trust.
	DurableDir string
	// SessionDir defaults to <temp dir>/device-trust-session.
	SessionDir string
	Log        *logrus.Logger
}

func NewResolver(opts Options) *Resolver {
	durable := opts.DurableDir
	if durable == "" {
		if base, err := os.UserConfigDir(); err == nil {
			durable = filepath.Join(base, "device-trust")
		}
	}
	session := opts.SessionDir
	if session == "" {
		session = filepath.Join(os.TempDir(), "device-trust-session")
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		durableDir: durable,
		sessionDir: session,
		log:        log,
		mem:        make(map[string]string),
	}
}

// DeviceID returns this profile's identifier, creating and persisting one if
// none exists yet. Tier order on read: durable, then session, then the
// process-local map. A fresh id is written durably and verified by reading
// it back; if that verification fails the id is mirrored to the session tier
// so at least the current boot keeps a stable identity. With every tier
// unavailable the id lives only in process memory and the device will
// re-register as new on each start; that degradation is accepted.
func (r *Resolver) DeviceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	durablePath := filepath.Join(r.durableDir, idFileName)
	sessionPath := filepath.Join(r.sessionDir, idFileName)

	if id := readID(durablePath); id != "" {
		return id
	}
	if id := readID(sessionPath); id != "" {
		return id
	}
	if id, ok := r.mem[durablePath]; ok {
		return id
	}

	id := "device_" + uuid.NewString()

	writeID(durablePath, id)
	if readID(durablePath) != id {
		r.log.Debug("fingerprint: durable tier unavailable, mirroring id to session tier")
		writeID(sessionPath, id)
		if readID(sessionPath) != id {
			r.log.Debug("fingerprint: session tier unavailable, keeping id in memory")
		}
	}
	r.mem[durablePath] = id
	return id
}

func readID(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func writeID(path, id string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(id), 0o600)
}
