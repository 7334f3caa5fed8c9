// Package session keeps one record per user between chat turns. Every update
// rewrites the whole record and restarts its TTL, so a session expires only
// after the user has been idle for the session TTL.
package session

import (
	"context"
	"fmt"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/clock"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

// Manager reads and writes user sessions in the session namespace.
type Manager struct {
	store *cache.Store
	clock clock.Clock
}

// New creates a Manager. A nil clock means the wall clock.
func New(store *cache.Store, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	return &Manager{store: store, clock: c}
}

// Lookup returns the live session for userID.
func (m *Manager) Lookup(ctx context.Context, userID string) (models.UserSession, bool) {
	var s models.UserSession
	if !m.store.Get(ctx, cache.NamespaceSession, userID, &s) {
		return models.UserSession{}, false
	}
	return s, true
}

// Update replaces the session for userID with s, stamping UserID and
// UpdatedAt, and returns the stored record.
func (m *Manager) Update(ctx context.Context, userID string, s models.UserSession) (models.UserSession, error) {
	s.UserID = userID
	s.UpdatedAt = m.clock.Now().UTC()
	if err := m.store.Put(ctx, cache.NamespaceSession, userID, s); err != nil {
		return models.UserSession{}, fmt.Errorf("update session: %w", err)
	}
	return s, nil
}

// End removes the session for userID.
func (m *Manager) End(ctx context.Context, userID string) error {
	return m.store.Invalidate(ctx, cache.NamespaceSession, userID)
}
