package controlplane

import (
	"context"
	"sync"
	"time"

	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/pubsub"
	"github.com/neopilot-ai/neopilot/internal/session"
)

// SessionStopper stops a session that has gone dead. Implemented by the
// session manager.
type SessionStopper interface {
	Stop(id, reason string) error
}

// TransitionCallback is called when a session's liveness changes.
// The callback is invoked asynchronously from the check loop.
type TransitionCallback func(event TransitionEvent)

// Monitor tracks session heartbeats and declares sessions suspected or dead
// when clients go silent. Dead sessions are stopped with a heartbeat timeout.
type Monitor interface {
	// Start begins the monitoring loop.
	// The monitor subscribes to the session event bus and starts periodic
	// liveness checks.
	Start(ctx context.Context) error

	// Stop stops the monitoring loop.
	// It is safe to call Stop multiple times or before Start.
	Stop()

	// Status returns the liveness status for a specific session.
	// Returns false if the session is not being tracked.
	Status(id string) (Status, bool)

	// AllStatuses returns liveness status for all tracked sessions.
	AllStatuses() []Status

	// RecordHeartbeat records a heartbeat for the specified session.
	// This updates LastHeartbeatAt and marks the session alive.
	RecordHeartbeat(id string)

	// Track starts tracking a new session.
	// If the session is already tracked, this is a no-op.
	Track(id string)

	// Untrack stops tracking a session.
	Untrack(id string)
}

// MonitorConfig configures the Monitor.
type MonitorConfig struct {
	// Policy defines the liveness thresholds.
	Policy Policy

	// CheckInterval is how often the monitor runs liveness checks.
	// Defaults to one second if not specified.
	CheckInterval time.Duration

	// EventBus is the session event bus to subscribe to. If nil, the monitor
	// will not auto-track heartbeats from events.
	EventBus *pubsub.Broker[session.Event]

	// Stopper stops sessions declared dead. If nil, dead sessions are
	// untracked but not stopped.
	Stopper SessionStopper

	// OnTransition is called when a session's liveness changes.
	OnTransition TransitionCallback

	// Clock is used for time operations (for testing).
	// If nil, uses time.Now().
	Clock Clock
}

type livenessState struct {
	sessionID       string
	liveness        Liveness
	lastHeartbeatAt time.Time
}

// defaultMonitor is the default implementation of Monitor.
type defaultMonitor struct {
	mu       sync.RWMutex
	policy   Policy
	statuses map[string]*livenessState
	clock    Clock

	// Check loop state
	checkInterval time.Duration
	eventBus      *pubsub.Broker[session.Event]
	stopper       SessionStopper
	onTransition  TransitionCallback

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a new Monitor with the given configuration.
func NewMonitor(cfg MonitorConfig) Monitor {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	checkInterval := cfg.CheckInterval
	if checkInterval == 0 {
		checkInterval = time.Second
	}

	return &defaultMonitor{
		policy:        cfg.Policy,
		statuses:      make(map[string]*livenessState),
		clock:         clock,
		checkInterval: checkInterval,
		eventBus:      cfg.EventBus,
		stopper:       cfg.Stopper,
		onTransition:  cfg.OnTransition,
	}
}

// Start begins the monitoring loop.
func (m *defaultMonitor) Start(ctx context.Context) error {
	if err := m.policy.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return nil // Already started
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	// Start event bus subscription if configured (with panic recovery)
	if m.eventBus != nil {
		m.wg.Add(1)
		log.SafeGo("monitor.eventLoop", func() {
			defer m.wg.Done()
			m.eventLoopInner()
		})
	}

	// Start periodic check loop (with panic recovery)
	m.wg.Add(1)
	log.SafeGo("monitor.checkLoop", func() {
		defer m.wg.Done()
		m.checkLoopInner()
	})

	return nil
}

// Stop stops the monitoring loop.
func (m *defaultMonitor) Stop() {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return // Not started
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done // Wait for loops to finish
}

// Status returns the liveness status for a specific session.
func (m *defaultMonitor) Status(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.statuses[id]
	if !ok {
		return Status{}, false
	}
	return Status{
		SessionID:       state.sessionID,
		Liveness:        state.liveness,
		LastHeartbeatAt: state.lastHeartbeatAt,
	}, true
}

// AllStatuses returns liveness status for all tracked sessions.
func (m *defaultMonitor) AllStatuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Status, 0, len(m.statuses))
	for _, state := range m.statuses {
		result = append(result, Status{
			SessionID:       state.sessionID,
			Liveness:        state.liveness,
			LastHeartbeatAt: state.lastHeartbeatAt,
		})
	}
	return result
}

// RecordHeartbeat records a heartbeat for the specified session.
func (m *defaultMonitor) RecordHeartbeat(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.statuses[id]
	if !ok {
		// Auto-track if not already tracked
		state = m.createState(id)
		m.statuses[id] = state
	}

	now := m.clock.Now()
	state.lastHeartbeatAt = now
	if state.liveness != LivenessAlive {
		from := state.liveness
		state.liveness = LivenessAlive
		m.emitTransition(TransitionEvent{
			SessionID: id,
			From:      from,
			To:        LivenessAlive,
			Details:   "heartbeat received",
			At:        now,
		})
	}
}

// Track starts tracking a new session.
func (m *defaultMonitor) Track(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statuses[id]; ok {
		return // Already tracked
	}

	m.statuses[id] = m.createState(id)
}

// Untrack stops tracking a session.
func (m *defaultMonitor) Untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, id)
}

// createState creates tracking state for the given session ID.
// Must be called with mu held.
func (m *defaultMonitor) createState(id string) *livenessState {
	return &livenessState{
		sessionID:       id,
		liveness:        LivenessAlive,
		lastHeartbeatAt: m.clock.Now(),
	}
}

// checkLoopInner runs periodic liveness checks. Called by the wrapped
// checkLoop goroutine.
func (m *defaultMonitor) checkLoopInner() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.signalDone()
			return
		case <-ticker.C:
			m.runLivenessCheck()
		}
	}
}

// signalDone signals that all loops have completed.
// Only the last loop to finish should close done.
func (m *defaultMonitor) signalDone() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Wait for all goroutines then close done (with panic recovery)
	log.SafeGo("monitor.signalDone", func() {
		m.wg.Wait()
		close(m.done)
	})
}

// runLivenessCheck classifies all tracked sessions against the policy
// thresholds and stops the dead ones.
func (m *defaultMonitor) runLivenessCheck() {
	m.mu.Lock()

	now := m.clock.Now()
	policy := m.policy

	var dead []string
	for id, state := range m.statuses {
		silence := now.Sub(state.lastHeartbeatAt)

		switch {
		case silence > policy.DeadAfter():
			if state.liveness != LivenessDead {
				from := state.liveness
				state.liveness = LivenessDead
				m.emitTransition(TransitionEvent{
					SessionID: id,
					From:      from,
					To:        LivenessDead,
					Details:   "no heartbeat for " + silence.Truncate(time.Millisecond).String(),
					At:        now,
				})
			}
			dead = append(dead, id)
		case silence > policy.SuspectedAfter():
			if state.liveness == LivenessAlive {
				state.liveness = LivenessSuspected
				m.emitTransition(TransitionEvent{
					SessionID: id,
					From:      LivenessAlive,
					To:        LivenessSuspected,
					Details:   "no heartbeat for " + silence.Truncate(time.Millisecond).String(),
					At:        now,
				})
			}
		}
	}

	for _, id := range dead {
		delete(m.statuses, id)
	}
	m.mu.Unlock()

	for _, id := range dead {
		m.stopDead(id)
	}
}

// stopDead stops a session that exhausted the miss tolerance.
func (m *defaultMonitor) stopDead(id string) {
	if m.stopper == nil {
		return
	}
	log.Warn(log.CatControl, "Stopping dead session", "session_id", id, "reason", session.ReasonHeartbeatTimeout)
	if err := m.stopper.Stop(id, session.ReasonHeartbeatTimeout); err != nil {
		log.ErrorErr(log.CatControl, "Failed to stop dead session", err, "session_id", id)
	}
}

// emitTransition emits a transition event if a callback is configured.
// Must be called with mu held.
func (m *defaultMonitor) emitTransition(event TransitionEvent) {
	if m.onTransition != nil {
		// Emit asynchronously to avoid blocking the check loop (with panic recovery)
		log.SafeGo("monitor.emitTransition", func() {
			m.onTransition(event)
		})
	}
}

// eventLoopInner subscribes to the session event bus and processes events.
// Called by the wrapped eventLoop goroutine.
func (m *defaultMonitor) eventLoopInner() {
	ch := m.eventBus.Subscribe(m.ctx)

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			m.processEvent(event)
		}
	}
}

// processEvent handles an event from the session event bus.
func (m *defaultMonitor) processEvent(event pubsub.Event[session.Event]) {
	payload := event.Payload

	switch payload.Kind {
	case session.KindHeartbeat:
		m.RecordHeartbeat(payload.SessionID)
	case session.KindStateChanged:
		if payload.State.Terminal() {
			// Finished sessions no longer need liveness monitoring.
			m.Untrack(payload.SessionID)
			return
		}
		// Only heartbeats refresh liveness. State changes just ensure the
		// session is tracked.
		m.Track(payload.SessionID)
	}
}
