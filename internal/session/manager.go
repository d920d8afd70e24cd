// Package session keeps one designer stage per connected client session,
// fans its notifications out to websocket clients and autosaves designs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/product-designer/backend/internal/designer"
	"github.com/product-designer/backend/internal/events"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/storage"
	"github.com/zoobzio/hookz"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep idle sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when every slot holds an active session.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrPersistenceDisabled is returned for design operations without a store.
	ErrPersistenceDisabled = errors.New("design persistence is disabled")
)

// Config tunes the session manager.
type Config struct {
	MaxSessions int
	KeepAlive   time.Duration
	Options     designer.Options
	Broadcast   events.BroadcasterConfig
	Autosave    bool
	// Rules are installed on every new stage.
	Rules []models.RuleGroup
}

// DepsFunc builds the collaborators of a new stage.
type DepsFunc func() designer.Deps

// Manager handles active designer sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	cfg      Config
	newDeps  DepsFunc
	designs  *storage.DesignStore
	catalog  *Catalog
}

// SessionState holds the stage of a session and its notification fan-out.
type SessionState struct {
	Session     *models.DesignSession
	Stage       *designer.Stage
	Broadcaster *events.Broadcaster

	attach       *events.Subscription
	autosaveHook *hookz.Hook
	clients      int
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// NewManager creates a session manager. designs may be nil, which disables
// saving and autosave.
func NewManager(cfg Config, newDeps DepsFunc, designs *storage.DesignStore, catalog *Catalog) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = MaxSessions
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = SessionKeepAliveWindow
	}
	if newDeps == nil {
		newDeps = func() designer.Deps { return designer.Deps{} }
	}
	if catalog == nil {
		catalog = NewCatalog("")
	}
	return &Manager{
		sessions: make(map[string]*SessionState),
		cfg:      cfg,
		newDeps:  newDeps,
		designs:  designs,
		catalog:  catalog,
	}
}

// Catalog returns the product catalog.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// StartSession creates a stage and loads def into it.
func (m *Manager) StartSession(ctx context.Context, def models.ProductDef) (*models.DesignSession, error) {
	m.cleanupOldSessionsIfNeeded()

	m.mu.RLock()
	full := len(m.sessions) >= m.cfg.MaxSessions
	m.mu.RUnlock()
	if full {
		return nil, ErrTooManySessions
	}

	sessionID := uuid.New().String()
	stage := designer.NewStage(m.cfg.Options, m.newDeps())
	if len(m.cfg.Rules) > 0 {
		stage.SetPricingRules(m.cfg.Rules)
	}
	if err := stage.LoadProduct(ctx, def); err != nil {
		stage.Close()
		return nil, err
	}

	b := events.NewBroadcaster(m.cfg.Broadcast)
	now := time.Now()
	state := &SessionState{
		Session: &models.DesignSession{
			ID:        sessionID,
			CreatedAt: now,
		},
		Stage:        stage,
		Broadcaster:  b,
		attach:       b.Attach(stage.Bus()),
		LastAccessed: now,
	}
	if m.cfg.Autosave && m.designs != nil {
		hook, err := b.On(models.NotifyHistoryChange, func(ctx context.Context, _ models.Notification) error {
			_, err := m.SaveDesign(ctx, sessionID, true)
			return err
		})
		if err != nil {
			fmt.Printf("[Session %s] Autosave disabled: %v\n", shortID(sessionID), err)
		} else {
			state.autosaveHook = &hook
		}
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	fmt.Printf("[Session %s] Started with product %q\n", shortID(sessionID), def.Title)
	return m.describe(state), nil
}

// StartCatalogSession starts a session with a product from the catalog.
func (m *Manager) StartCatalogSession(ctx context.Context, productID string) (*models.DesignSession, error) {
	def, err := m.catalog.Get(productID)
	if err != nil {
		return nil, err
	}
	return m.StartSession(ctx, def)
}

// Get returns the state of a session and marks it as used.
func (m *Manager) Get(id string) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	state.LastAccessed = time.Now()
	return state, nil
}

// Stage returns the stage of a session.
func (m *Manager) Stage(id string) (*designer.Stage, error) {
	state, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return state.Stage, nil
}

// GetSession returns a session descriptor by ID.
func (m *Manager) GetSession(id string) (*models.DesignSession, bool) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.describe(state), true
}

// ListSessions returns descriptors of all sessions, oldest first.
func (m *Manager) ListSessions() []*models.DesignSession {
	m.mu.RLock()
	states := make([]*SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		states = append(states, s)
	}
	m.mu.RUnlock()

	out := make([]*models.DesignSession, 0, len(states))
	for _, s := range states {
		out = append(out, m.describe(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) describe(state *SessionState) *models.DesignSession {
	id, title, views := state.Stage.Product()
	m.mu.RLock()
	d := *state.Session
	d.Clients = state.clients
	d.LastAccessed = state.LastAccessed
	m.mu.RUnlock()
	d.ProductID = id
	d.ProductTitle = title
	d.ViewCount = views
	return &d
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// AddClient counts a connected websocket client.
func (m *Manager) AddClient(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[id]; ok {
		state.clients++
		state.LastAccessed = time.Now()
	}
}

// RemoveClient releases a connected websocket client.
func (m *Manager) RemoveClient(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[id]; ok && state.clients > 0 {
		state.clients--
		state.LastAccessed = time.Now()
	}
}

// LoadProduct replaces the product of a session.
func (m *Manager) LoadProduct(ctx context.Context, id string, def models.ProductDef) error {
	stage, err := m.Stage(id)
	if err != nil {
		return err
	}
	return stage.LoadProduct(ctx, def)
}

// DeleteSession closes a session and releases its resources.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.closeState(id, state)
	return true
}

func (m *Manager) closeState(id string, state *SessionState) {
	state.attach.Unsubscribe()
	if state.autosaveHook != nil {
		state.autosaveHook.Unhook()
	}
	state.Stage.Close()
	if err := state.Broadcaster.Close(); err != nil {
		fmt.Printf("[Session %s] Broadcaster close: %v\n", shortID(id), err)
	}
}

// cleanupOldSessionsIfNeeded removes the least recently used sessions
// without clients when at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return
	}

	type candidate struct {
		id   string
		used time.Time
	}
	var idle []candidate
	for id, state := range m.sessions {
		if state.clients == 0 {
			idle = append(idle, candidate{id, state.LastAccessed})
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].used.Before(idle[j].used) })

	toFree := len(m.sessions) - m.cfg.MaxSessions + 1
	var freed []*SessionState
	var freedIDs []string
	for _, c := range idle {
		if len(freed) >= toFree {
			break
		}
		freed = append(freed, m.sessions[c.id])
		freedIDs = append(freedIDs, c.id)
		delete(m.sessions, c.id)
	}
	m.mu.Unlock()

	for i, state := range freed {
		m.closeState(freedIDs[i], state)
		fmt.Printf("[Manager] Cleaned up old session %s to free memory\n", shortID(freedIDs[i]))
	}
}

// CleanupOldSessions removes sessions idle for longer than maxAge. Sessions
// with connected clients or touched within the keep-alive window are kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-m.cfg.KeepAlive)

	m.mu.Lock()
	expired := make(map[string]*SessionState)
	for id, state := range m.sessions {
		if state.clients > 0 || state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			expired[id] = state
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for id, state := range expired {
		m.closeState(id, state)
		fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
			shortID(id), time.Since(state.LastAccessed).Round(time.Second))
	}
	return len(expired)
}

// SaveDesign persists the product layout and one snapshot per view. An
// autosave replaces the previous autosave of the session.
func (m *Manager) SaveDesign(ctx context.Context, id string, autosave bool) (*models.SavedDesign, error) {
	if m.designs == nil {
		return nil, ErrPersistenceDisabled
	}
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	stage := state.Stage
	def, err := stage.ProductJSON()
	if err != nil {
		return nil, err
	}
	design := &models.SavedDesign{
		SessionID:    id,
		ProductID:    def.ID,
		ProductTitle: def.Title,
		Price:        stage.TotalPrice(1).Total,
		Autosave:     autosave,
	}
	for i := range def.Views {
		snap, err := stage.Snapshot(i)
		if err != nil {
			return nil, fmt.Errorf("snapshot of view %d: %w", i, err)
		}
		design.Views = append(design.Views, snap)
		def.Views[i].Elements = nil
	}
	design.Product = def

	if err := m.designs.Save(ctx, design); err != nil {
		return nil, fmt.Errorf("saving design: %w", err)
	}
	if !autosave {
		fmt.Printf("[Session %s] Saved design %s (%d views)\n", shortID(id), shortID(design.ID), len(design.Views))
	}
	return design, nil
}

// GetDesign loads a saved design.
func (m *Manager) GetDesign(ctx context.Context, designID string) (*models.SavedDesign, error) {
	if m.designs == nil {
		return nil, ErrPersistenceDisabled
	}
	return m.designs.Get(ctx, designID)
}

// ListDesigns returns the designs saved from a session.
func (m *Manager) ListDesigns(ctx context.Context, sessionID string, limit int) ([]*models.SavedDesign, error) {
	if m.designs == nil {
		return nil, ErrPersistenceDisabled
	}
	return m.designs.List(ctx, sessionID, limit)
}

// LoadDesign loads a saved design into a session: the stored product layout
// is loaded without elements, each view is restored from its snapshot and
// the restored state becomes the start of history.
func (m *Manager) LoadDesign(ctx context.Context, sessionID, designID string) error {
	stage, err := m.Stage(sessionID)
	if err != nil {
		return err
	}
	design, err := m.GetDesign(ctx, designID)
	if err != nil {
		return err
	}

	def := design.Product
	for i := range def.Views {
		def.Views[i].Elements = nil
	}
	if err := stage.LoadProduct(ctx, def); err != nil {
		return err
	}
	for i, snap := range design.Views {
		if i >= len(def.Views) {
			break
		}
		if err := stage.RestoreSnapshot(i, snap); err != nil {
			return fmt.Errorf("restoring view %d: %w", i, err)
		}
		if err := stage.ClearHistory(i); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*SessionState)
	m.mu.Unlock()
	for id, state := range sessions {
		m.closeState(id, state)
	}
}
