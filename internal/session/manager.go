// Package session owns the single process-wide terminal session and the
// account-switching discipline built on top of it.
package session

import (
	"fmt"
	"log"

	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
)

// Manager wraps the terminal client with initialise-once semantics and
// switch minimisation. Logging into an account is a multi-hundred-
// millisecond operation, so SwitchTo is a no-op whenever the target account
// is already current.
//
// Manager is not safe for concurrent use; the replication loop is its only
// caller.
type Manager struct {
	client       broker.Client
	logger       *log.Logger
	initialized  bool
	currentLogin uint64
}

// NewManager creates a session manager over the given terminal client.
func NewManager(client broker.Client, logger *log.Logger) *Manager {
	return &Manager{
		client: client,
		logger: logger,
	}
}

// Client exposes the underlying terminal client for read calls made while
// the session is parked on the right account.
func (m *Manager) Client() broker.Client { return m.client }

// CurrentLogin returns the account the terminal is logged into, or 0 before
// the first successful login.
func (m *Manager) CurrentLogin() uint64 { return m.currentLogin }

// SwitchTo ensures the terminal session is logged into the given account.
// The terminal is initialised on first use; subsequent calls never
// re-initialise. When the requested login is already current the call
// returns immediately without a broker round-trip.
//
// On login failure the recorded current login is left untouched so it keeps
// reflecting the account the terminal actually holds.
func (m *Manager) SwitchTo(acct config.Account) error {
	if !m.initialized {
		if err := m.client.Initialize(); err != nil {
			return fmt.Errorf("initializing terminal: %w", err)
		}
		m.initialized = true
	}

	if m.currentLogin == acct.Login {
		return nil
	}

	if err := m.client.Login(acct.Login, acct.Password, acct.Server); err != nil {
		return fmt.Errorf("login to account %d: %w", acct.Login, err)
	}

	m.currentLogin = acct.Login
	m.logger.Printf("Connected to account %d", acct.Login)
	return nil
}

// Shutdown tears the terminal session down. Safe to call when the session
// was never initialised.
func (m *Manager) Shutdown() {
	if !m.initialized {
		return
	}
	if err := m.client.Shutdown(); err != nil {
		m.logger.Printf("Terminal shutdown failed: %v", err)
	}
	m.initialized = false
	m.currentLogin = 0
}
