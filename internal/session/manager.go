// Package session maps an external session identity to an independent set
// of orchestration objects (stores, bus, tools, router, pipeline, FSM) with
// a TTL, evicted by a background loop once the retention window passes.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/arcway-dev/orchestra/internal/async"
	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/coordinatorfsm"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/pipeline"
	"github.com/arcway-dev/orchestra/internal/provider"
	"github.com/arcway-dev/orchestra/internal/store"
)

const (
	defaultTTL            = 24 * time.Hour
	defaultEvictInterval  = 5 * time.Minute
	defaultMaxIterations  = 10
	defaultCriticalLogCap = 128
)

// Session bundles every orchestration object scoped to one external session
// identity: entity stores, the event bus, the coordination tool surface, the
// provider router, the pipeline context/engine, and the coordinator FSM.
type Session struct {
	ID          string
	WorkspaceID string
	Provider    string
	CreatedAt   time.Time
	expiresAt   time.Time

	Agents        *store.AgentStore
	Tasks         *store.TaskStore
	Conversations *store.ConversationStore
	Bus           *eventbus.Bus
	Tools         *coordination.Tools
	Router        *provider.Router
	FSM           *coordinatorfsm.FSM
	PipelineCtx   *pipeline.Context
	Pipeline      *pipeline.Engine
}

// DirectoryEntry is the advisory, persistence-free projection of a Session
// exposed by ListSessionsFromDirectory.
type DirectoryEntry struct {
	SessionID   string
	WorkspaceID string
	Provider    string
	Status      string
	CreatedAt   time.Time
}

// Manager is a process-wide registry of live Sessions, keyed by session id.
// GetSession only ever consults the live map: a directory entry alone never
// causes a Session to be reconstructed.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	directory map[string]DirectoryEntry

	ttl    time.Duration
	logger logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the default 24h session retention.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithLogger sets the logger used for eviction diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// NewManager returns a Manager with a background TTL-eviction loop running.
// Call Close to stop it.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		directory: make(map[string]DirectoryEntry),
		ttl:       defaultTTL,
		logger:    logging.Nop,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	async.Go(panicLogger{m.logger}, "session.evictLoop", m.evictLoop)
	return m
}

type panicLogger struct{ l logging.Logger }

func (p panicLogger) Error(format string, args ...any) { p.l.Error(format, args...) }

// Close stops the background eviction goroutine. Safe to call more than once.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) evictLoop() {
	ticker := time.NewTicker(defaultEvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

func (m *Manager) evictExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if now.After(s.expiresAt) {
			delete(m.sessions, id)
			delete(m.directory, id)
			m.logger.Info("session: evicted %s after TTL", id)
		}
	}
}

// CreateSession instantiates a fresh set of orchestration objects for
// sessionID and records it with a TTL. providerLabel is an advisory name for
// the directory projection only; router is the live object every pipeline
// stage selects providers from.
func CreateSession(m *Manager, sessionID, workspaceID, providerLabel string, router *provider.Router, onPhase pipeline.PhaseCallback, onStreamChunk func(provider.StreamChunk)) *Session {
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	conversations := store.NewConversationStore()
	bus := eventbus.New(defaultCriticalLogCap)
	tools := coordination.New(agents, tasks, conversations, bus)
	fsm := coordinatorfsm.New(bus)

	pctx := pipeline.NewContext(workspaceID, sessionID, "", agents, tasks, conversations, bus, tools, router)
	pctx.OnPhase = func(p pipeline.Phase) {
		switch p.Kind {
		case pipeline.PhasePlanning:
			fsm.MarkPlanning()
		case pipeline.PhaseTasksRegistered:
			fsm.MarkReady()
		}
		if onPhase != nil {
			onPhase(p)
		}
	}
	pctx.OnStreamChunk = onStreamChunk

	now := time.Now()
	sess := &Session{
		ID:            sessionID,
		WorkspaceID:   workspaceID,
		Provider:      providerLabel,
		CreatedAt:     now,
		expiresAt:     now.Add(m.ttl),
		Agents:        agents,
		Tasks:         tasks,
		Conversations: conversations,
		Bus:           bus,
		Tools:         tools,
		Router:        router,
		FSM:           fsm,
		PipelineCtx:   pctx,
		Pipeline:      pipeline.New(pipeline.DefaultStages(), defaultMaxIterations),
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.directory[sessionID] = DirectoryEntry{
		SessionID: sessionID, WorkspaceID: workspaceID, Provider: providerLabel,
		Status: "Active", CreatedAt: now,
	}
	m.mu.Unlock()
	return sess
}

// GetSession returns the live Session for sessionID, or nil if none is held
// in memory, including when sessionID is present only in the directory
// (e.g. this process restarted since the directory entry was written).
func (m *Manager) GetSession(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// DeleteSession removes sessionID from memory and from the directory.
func (m *Manager) DeleteSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.directory, sessionID)
}

// ListSessions returns every live Session id, sorted, for introspection.
func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListSessionsFromDirectory returns the advisory directory projection,
// sorted by session id. Memory (ListSessions) is authoritative for
// liveness; this exists purely for introspection/debugging.
func (m *Manager) ListSessionsFromDirectory() []DirectoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]DirectoryEntry, 0, len(m.directory))
	for _, e := range m.directory {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SessionID < entries[j].SessionID })
	return entries
}

var (
	anchorOnce sync.Once
	anchor     *Manager
)

// Instance returns the process-wide Manager singleton, creating it with
// default options on first use. The anchor lets embedders that reload
// their own modules keep addressing the same live session map.
func Instance() *Manager {
	anchorOnce.Do(func() { anchor = NewManager() })
	return anchor
}
