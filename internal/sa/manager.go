// Package sa provides the SPI-indexed security association directory that
// sits above internal/esp's per-SA cryptographic state.
package sa

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dantte-lp/espd/internal/esp"
	espmetrics "github.com/dantte-lp/espd/internal/metrics"
)

// -------------------------------------------------------------------------
// Manager Errors
// -------------------------------------------------------------------------

// Sentinel errors for Manager operations.
var (
	// ErrNotFound indicates no SA exists for the given (SPI, direction) pair.
	ErrNotFound = errors.New("security association not found")

	// ErrDuplicate indicates an SA already exists for the given
	// (SPI, direction) pair.
	ErrDuplicate = errors.New("duplicate security association")
)

// Direction distinguishes inbound (decrypt) from outbound (encrypt) SAs.
// The two directions of a logical tunnel are two distinct entries here,
// mirroring RFC 4303's unidirectional SA model.
type Direction uint8

const (
	// DirectionIn identifies an SA used to decrypt received datagrams.
	DirectionIn Direction = iota
	// DirectionOut identifies an SA used to encrypt outgoing datagrams.
	DirectionOut
)

// String renders the direction for logging and metric labels.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// key is the composite lookup key for the SA directory.
type key struct {
	spi uint32
	dir Direction
}

// -------------------------------------------------------------------------
// Manager — SA Directory
// -------------------------------------------------------------------------

// Manager owns all installed security associations, indexed by
// (SPI, direction), and provides the CRUD API used by configuration
// load/reload and by the transport's inbound demultiplexer.
//
// Locking discipline: Manager.mu guards only directory membership
// (insert/remove/lookup). It is never held across a call into an
// *esp.SA, whose own mutex (internal to internal/esp) is what
// serializes access to replay-window and sequence-cursor state. This
// mirrors the reference manager's split between a directory lock and
// per-entry state.
type Manager struct {
	mu  sync.RWMutex
	sas map[key]*esp.SA

	metrics *espmetrics.Collector
	logger  *slog.Logger
}

// ManagerOption configures optional Manager parameters.
type ManagerOption func(*Manager)

// WithManagerMetrics sets the metrics collector for the manager. If c is
// nil, metrics calls are skipped.
func WithManagerMetrics(c *espmetrics.Collector) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.metrics = c
		}
	}
}

// NewManager creates an empty SA directory.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		sas:    make(map[key]*esp.SA),
		logger: logger.With(slog.String("component", "sa.manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// -------------------------------------------------------------------------
// CRUD
// -------------------------------------------------------------------------

// Install registers sa under (spi, dir). Returns ErrDuplicate if an entry
// already exists for that key.
func (m *Manager) Install(spi uint32, dir Direction, entry *esp.SA) error {
	k := key{spi: spi, dir: dir}

	m.mu.Lock()
	if _, exists := m.sas[k]; exists {
		m.mu.Unlock()
		return fmt.Errorf("install spi=%08x dir=%s: %w", spi, dir, ErrDuplicate)
	}
	m.sas[k] = entry
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RegisterSA(dir.String())
	}

	m.logger.Info("security association installed",
		slog.String("spi", hex.EncodeToString(spiBytes(spi))),
		slog.String("direction", dir.String()),
	)

	return nil
}

// Remove deletes the SA registered under (spi, dir). Returns ErrNotFound
// if no such entry exists.
func (m *Manager) Remove(spi uint32, dir Direction) error {
	k := key{spi: spi, dir: dir}

	m.mu.Lock()
	if _, exists := m.sas[k]; !exists {
		m.mu.Unlock()
		return fmt.Errorf("remove spi=%08x dir=%s: %w", spi, dir, ErrNotFound)
	}
	delete(m.sas, k)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.UnregisterSA(dir.String())
	}

	m.logger.Info("security association removed",
		slog.String("spi", hex.EncodeToString(spiBytes(spi))),
		slog.String("direction", dir.String()),
	)

	return nil
}

// Lookup returns the SA registered under (spi, dir).
func (m *Manager) Lookup(spi uint32, dir Direction) (*esp.SA, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.sas[key{spi: spi, dir: dir}]
	return entry, ok
}

// Count returns the number of installed SAs.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sas)
}

// -------------------------------------------------------------------------
// Reconciliation — config reload
// -------------------------------------------------------------------------

// Entry describes a desired SA for reconciliation: its directory key plus
// the constructed SA state.
type Entry struct {
	SPI       uint32
	Direction Direction
	SA        *esp.SA
}

// Reconcile replaces the directory contents with desired, installing
// entries that are missing and removing entries no longer present.
// Existing entries whose key is unchanged are left in place (in-place
// rekeying of a live SPI is out of scope; replace it via remove+install
// under a new SPI instead).
func (m *Manager) Reconcile(desired []Entry) (installed, removed int) {
	wantKeys := make(map[key]*esp.SA, len(desired))
	for _, e := range desired {
		wantKeys[key{spi: e.SPI, dir: e.Direction}] = e.SA
	}

	m.mu.Lock()
	for k := range m.sas {
		if _, want := wantKeys[k]; !want {
			delete(m.sas, k)
			removed++
			if m.metrics != nil {
				m.metrics.UnregisterSA(k.dir.String())
			}
		}
	}
	for k, entry := range wantKeys {
		if _, exists := m.sas[k]; !exists {
			m.sas[k] = entry
			installed++
			if m.metrics != nil {
				m.metrics.RegisterSA(k.dir.String())
			}
		}
	}
	m.mu.Unlock()

	m.logger.Info("security association reconciliation complete",
		slog.Int("installed", installed),
		slog.Int("removed", removed),
	)

	return installed, removed
}

// spiBytes renders a 4-byte big-endian SPI for logging.
func spiBytes(spi uint32) []byte {
	return []byte{byte(spi >> 24), byte(spi >> 16), byte(spi >> 8), byte(spi)}
}
