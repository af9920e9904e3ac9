package config

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/types"
)

// Manager owns the in-memory configuration for the process lifetime.
// Reads and the single-writer update path are mutually exclusive so no
// reader ever observes a partially applied config.
type Manager struct {
	mu      sync.RWMutex
	store   Persistence
	current Config
}

// NewManager loads (or defaults) the persisted configuration and wraps
// it in a manager.
func NewManager(store Persistence) (*Manager, error) {
	cfg, err := Load(store)
	if err != nil {
		return nil, err
	}
	klog.Infof("Configuration loaded: refresh=%ds retention=%dd namespaces=%v",
		cfg.Monitoring.RefreshInterval, cfg.Monitoring.RetentionDays, cfg.Monitoring.Namespaces)
	return &Manager{store: store, current: cfg}, nil
}

// Get returns the current configuration. Slices are copied so callers
// cannot mutate the shared state.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.current)
}

// Update validates and persists a new configuration, then swaps it in.
// A bad credential yields ErrUnauthorized; the stored config keeps the
// previous admin password unless the update sets a new one.
func (m *Manager) Update(next Config, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if credential != m.current.Monitoring.AdminPassword {
		return ErrUnauthorized
	}

	// Config reads redact the credential, so a read-modify-write cycle
	// arrives with an empty password. Carry the current one forward
	// before defaulting, otherwise it would reset to the built-in.
	if next.Monitoring.AdminPassword == "" {
		next.Monitoring.AdminPassword = m.current.Monitoring.AdminPassword
	}

	next = ApplyDefaults(next)
	if err := Validate(next); err != nil {
		return err
	}

	// Persist before swapping so a storage failure leaves the running
	// config untouched.
	if err := Save(m.store, next); err != nil {
		return err
	}
	m.current = next
	klog.Infof("Configuration updated")
	return nil
}

// CheckCredential verifies an administrative credential.
func (m *Manager) CheckCredential(credential string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return credential == m.current.Monitoring.AdminPassword
}

func clone(c Config) Config {
	out := c
	out.Monitoring.Namespaces = append([]string(nil), c.Monitoring.Namespaces...)
	out.AlertSchedule = append([]AlertWindow(nil), c.AlertSchedule...)
	out.Destinations = append([]types.AlertDestination(nil), c.Destinations...)
	return out
}
