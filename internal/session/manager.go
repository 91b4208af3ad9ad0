package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/neopilot-ai/neopilot/internal/approval"
	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/pubsub"
	"github.com/neopilot-ai/neopilot/internal/security"
	"github.com/neopilot-ai/neopilot/internal/workflow"
)

// ManagerConfig carries the manager's collaborators and tuning.
type ManagerConfig struct {
	Registry   *workflow.Registry
	Store      checkpoint.Store
	Pipeline   *security.Pipeline
	Classifier *approval.Classifier
	Broker     *pubsub.Broker[Event]

	// ArchiveTTL is how long terminal sessions stay queryable.
	ArchiveTTL time.Duration
	// OutboxBuffer is the per-session emission queue depth.
	OutboxBuffer int
	// ContextCategories is the allow-list for additionalContext entries.
	ContextCategories []string

	// Clock is used for time operations (for testing).
	// If nil, uses time.Now().
	Clock Clock
}

// Manager owns the set of live sessions and the archive of terminal ones.
// No session's failure affects another's liveness; the manager only creates,
// looks up, stops, and archives.
type Manager struct {
	registry   *workflow.Registry
	store      checkpoint.Store
	pipeline   *security.Pipeline
	classifier *approval.Classifier
	broker     *pubsub.Broker[Event]
	clock      Clock

	archiveTTL   time.Duration
	outboxBuffer int
	categories   map[string]bool

	mu      sync.Mutex
	active  map[string]*Session
	archive *gocache.Cache
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ttl := cfg.ArchiveTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	buffer := cfg.OutboxBuffer
	if buffer < 1 {
		buffer = 64
	}
	categories := make(map[string]bool, len(cfg.ContextCategories))
	for _, c := range cfg.ContextCategories {
		categories[c] = true
	}
	return &Manager{
		registry:     cfg.Registry,
		store:        cfg.Store,
		pipeline:     cfg.Pipeline,
		classifier:   cfg.Classifier,
		broker:       cfg.Broker,
		clock:        clock,
		archiveTTL:   ttl,
		outboxBuffer: buffer,
		categories:   categories,
		active:       make(map[string]*Session),
		archive:      gocache.New(ttl, 2*ttl),
	}
}

// Start validates the start request and creates a running session. On any
// validation failure the session is never created and the ValidationError is
// returned synchronously.
func (m *Manager) Start(ctx context.Context, req *contract.StartRequest) (*Session, error) {
	if req == nil {
		return nil, &ValidationError{Field: "startRequest", Reason: "is missing"}
	}
	if strings.TrimSpace(req.Goal) == "" {
		return nil, &ValidationError{Field: "goal", Reason: "must be non-empty"}
	}
	if strings.TrimSpace(req.ClientVersion) == "" {
		return nil, &ValidationError{Field: "clientVersion", Reason: "must be non-empty"}
	}
	if strings.TrimSpace(req.WorkflowDefinition) == "" {
		return nil, &ValidationError{Field: "workflowDefinition", Reason: "must be non-empty"}
	}
	def, err := m.registry.Resolve(req.WorkflowDefinition)
	if err != nil {
		return nil, &ValidationError{Field: "workflowDefinition", Reason: err.Error()}
	}

	id := req.WorkflowID
	if id == "" {
		id = uuid.NewString()
	}

	preapproved := approval.PreapprovedSet(req.PreapprovedTools)
	for _, tool := range def.PreapprovedTools {
		preapproved[tool] = true
	}

	sctx, cancel := context.WithCancel(context.Background())
	now := m.clock.Now()
	s := &Session{
		id:            id,
		clientVersion: req.ClientVersion,
		definition:    def,
		goal:          req.Goal,
		metadata:      req.WorkflowMetadata,
		context:       m.filterContext(id, req.AdditionalContext),
		preapproved:   preapproved,
		ctx:           sctx,
		cancel:        cancel,
		clock:         m.clock,
		classifier:    m.classifier,
		gate:          approval.NewGate(),
		outbox:        NewOutbox(m.outboxBuffer),
		pipeline:      m.pipeline,
		store:         m.store,
		broker:        m.broker,
		tracer:        tracer,
		state:         StateCreated,
		lastHeartbeat: now,
		createdAt:     now,
	}

	m.mu.Lock()
	if existing, ok := m.active[id]; ok && !existing.State().Terminal() {
		m.mu.Unlock()
		cancel()
		return nil, &ValidationError{Field: "workflowID", Reason: "already has an active session"}
	}
	m.active[id] = s
	m.mu.Unlock()

	s.transition(StateRunning, "start_accepted")
	log.Info(log.CatSession, "Session started",
		"session", id, "definition", def.ID, "clientVersion", req.ClientVersion)
	m.broker.Publish(pubsub.CreatedEvent, Event{
		Kind: KindStateChanged, SessionID: id, State: StateRunning, Reason: "start_accepted", At: now,
	})

	// Archive the session once it reaches a terminal state.
	log.SafeGo("session.archiveWatcher", func() {
		<-s.Done()
		m.archiveSession(s)
	})

	return s, nil
}

// filterContext drops additionalContext entries whose category is not on the
// configured allow-list.
func (m *Manager) filterContext(sessionID string, entries []contract.AdditionalContext) []contract.AdditionalContext {
	if len(entries) == 0 {
		return nil
	}
	kept := make([]contract.AdditionalContext, 0, len(entries))
	for _, e := range entries {
		if !m.categories[e.Category] {
			log.Warn(log.CatSession, "Dropping context entry with disallowed category",
				"session", sessionID, "category", e.Category)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// Get returns a snapshot of an active or archived session.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		return s.Snapshot(), nil
	}
	if snap, found := m.archive.Get(id); found {
		return snap.(Snapshot), nil
	}
	return Snapshot{}, &NotFoundError{SessionID: id}
}

// List returns snapshots of all active and archived sessions.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s.Snapshot())
	}
	m.mu.Unlock()

	for _, item := range m.archive.Items() {
		out = append(out, item.Object.(Snapshot))
	}
	return out
}

// Stop terminates a session by ID. Stopping an already-archived session is a
// no-op; an unknown ID is NotFoundError.
func (m *Manager) Stop(id, reason string) error {
	m.mu.Lock()
	s, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		s.Stop(reason)
		return nil
	}
	if _, found := m.archive.Get(id); found {
		return nil
	}
	return &NotFoundError{SessionID: id}
}

// Shutdown stops every active session.
func (m *Manager) Shutdown(reason string) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop(reason)
	}
}

func (m *Manager) archiveSession(s *Session) {
	snap := s.Snapshot()
	m.archive.Set(s.ID(), snap, m.archiveTTL)

	m.mu.Lock()
	delete(m.active, s.ID())
	m.mu.Unlock()

	log.Debug(log.CatSession, "Session archived", "session", s.ID(), "state", string(snap.State))
	m.broker.Publish(pubsub.DeletedEvent, Event{
		Kind: KindStateChanged, SessionID: s.ID(), State: snap.State, Reason: snap.StopReason, At: m.clock.Now(),
	})
}
