package controlplane

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neopilot-ai/neopilot/internal/pubsub"
	"github.com/neopilot-ai/neopilot/internal/session"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingStopper captures Stop calls for assertions.
type recordingStopper struct {
	mu      sync.Mutex
	stopped []string
	reasons []string
}

func (s *recordingStopper) Stop(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
	s.reasons = append(s.reasons, reason)
	return nil
}

func (s *recordingStopper) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stopped...)
}

func testPolicy() Policy {
	return Policy{
		HeartbeatInterval: 100 * time.Millisecond,
		MissTolerance:     2,
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, testPolicy().Validate())
	require.Error(t, Policy{HeartbeatInterval: 0, MissTolerance: 2}.Validate())
	require.Error(t, Policy{HeartbeatInterval: time.Second, MissTolerance: 0}.Validate())
}

func TestMonitor_RecordHeartbeat_UpdatesLastHeartbeatAt(t *testing.T) {
	clock := newMockClock(time.Now())
	monitor := NewMonitor(MonitorConfig{
		Policy: testPolicy(),
		Clock:  clock,
	})

	monitor.Track("session-1")

	clock.Advance(30 * time.Millisecond)
	monitor.RecordHeartbeat("session-1")

	status, ok := monitor.Status("session-1")
	require.True(t, ok)
	require.Equal(t, clock.Now(), status.LastHeartbeatAt)
	require.Equal(t, LivenessAlive, status.Liveness)
}

func TestMonitor_Status_UntrackedSessionNotFound(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{Policy: testPolicy()})

	_, ok := monitor.Status("session-1")
	require.False(t, ok)

	monitor.Track("session-1")

	status, ok := monitor.Status("session-1")
	require.True(t, ok)
	require.Equal(t, "session-1", status.SessionID)
	require.Equal(t, LivenessAlive, status.Liveness)
}

func TestMonitor_Check_MarksSuspectedAfterOneMissedInterval(t *testing.T) {
	clock := newMockClock(time.Now())
	m := NewMonitor(MonitorConfig{
		Policy: testPolicy(),
		Clock:  clock,
	}).(*defaultMonitor)

	m.Track("session-1")

	// Just past one heartbeat interval of silence.
	clock.Advance(150 * time.Millisecond)
	m.runLivenessCheck()

	status, ok := m.Status("session-1")
	require.True(t, ok)
	require.Equal(t, LivenessSuspected, status.Liveness)
}

func TestMonitor_Check_StopsDeadSessionWithHeartbeatTimeout(t *testing.T) {
	clock := newMockClock(time.Now())
	stopper := &recordingStopper{}
	m := NewMonitor(MonitorConfig{
		Policy:  testPolicy(),
		Stopper: stopper,
		Clock:   clock,
	}).(*defaultMonitor)

	m.Track("session-1")

	// Two missed intervals exhausts the tolerance.
	clock.Advance(250 * time.Millisecond)
	m.runLivenessCheck()

	require.Equal(t, []string{"session-1"}, stopper.calls())
	require.Equal(t, []string{session.ReasonHeartbeatTimeout}, stopper.reasons)

	// Dead sessions are no longer tracked.
	_, ok := m.Status("session-1")
	require.False(t, ok)
}

func TestMonitor_Check_HeartbeatRecoversSuspectedSession(t *testing.T) {
	clock := newMockClock(time.Now())
	stopper := &recordingStopper{}
	m := NewMonitor(MonitorConfig{
		Policy:  testPolicy(),
		Stopper: stopper,
		Clock:   clock,
	}).(*defaultMonitor)

	m.Track("session-1")

	clock.Advance(150 * time.Millisecond)
	m.runLivenessCheck()

	status, ok := m.Status("session-1")
	require.True(t, ok)
	require.Equal(t, LivenessSuspected, status.Liveness)

	// A beat resets the silence window.
	m.RecordHeartbeat("session-1")
	clock.Advance(150 * time.Millisecond)
	m.runLivenessCheck()

	status, ok = m.Status("session-1")
	require.True(t, ok)
	require.Equal(t, LivenessSuspected, status.Liveness)
	require.Empty(t, stopper.calls())
}

func TestMonitor_Check_LateHeartbeatAfterDeadIsNoOp(t *testing.T) {
	clock := newMockClock(time.Now())
	stopper := &recordingStopper{}
	m := NewMonitor(MonitorConfig{
		Policy:  testPolicy(),
		Stopper: stopper,
		Clock:   clock,
	}).(*defaultMonitor)

	m.Track("session-1")

	clock.Advance(250 * time.Millisecond)
	m.runLivenessCheck()
	require.Len(t, stopper.calls(), 1)

	// A beat after death re-tracks but never stops the session again for
	// the old silence.
	m.RecordHeartbeat("session-1")
	m.runLivenessCheck()
	require.Len(t, stopper.calls(), 1)

	status, ok := m.Status("session-1")
	require.True(t, ok)
	require.Equal(t, LivenessAlive, status.Liveness)
}

func TestMonitor_Transitions_EmittedOnChange(t *testing.T) {
	clock := newMockClock(time.Now())

	var mu sync.Mutex
	var transitions []TransitionEvent
	m := NewMonitor(MonitorConfig{
		Policy: testPolicy(),
		Clock:  clock,
		OnTransition: func(ev TransitionEvent) {
			mu.Lock()
			transitions = append(transitions, ev)
			mu.Unlock()
		},
	}).(*defaultMonitor)

	m.Track("session-1")

	clock.Advance(150 * time.Millisecond)
	m.runLivenessCheck()
	clock.Advance(150 * time.Millisecond)
	m.runLivenessCheck()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, LivenessSuspected, transitions[0].To)
	require.Equal(t, LivenessDead, transitions[1].To)
}

func TestMonitor_EventBus_HeartbeatRefreshesLiveness(t *testing.T) {
	clock := newMockClock(time.Now())
	broker := pubsub.NewBroker[session.Event]()
	monitor := NewMonitor(MonitorConfig{
		Policy:   testPolicy(),
		EventBus: broker,
		Clock:    clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	broker.Publish(pubsub.CreatedEvent, session.Event{
		Kind:      session.KindHeartbeat,
		SessionID: "session-1",
		At:        clock.Now(),
	})

	require.Eventually(t, func() bool {
		_, ok := monitor.Status("session-1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestMonitor_EventBus_TerminalStateUntracks(t *testing.T) {
	clock := newMockClock(time.Now())
	broker := pubsub.NewBroker[session.Event]()
	monitor := NewMonitor(MonitorConfig{
		Policy:   testPolicy(),
		EventBus: broker,
		Clock:    clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	monitor.Track("session-1")

	broker.Publish(pubsub.UpdatedEvent, session.Event{
		Kind:      session.KindStateChanged,
		SessionID: "session-1",
		State:     session.StateCompleted,
		At:        clock.Now(),
	})

	require.Eventually(t, func() bool {
		_, ok := monitor.Status("session-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestMonitor_Start_RejectsInvalidPolicy(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{Policy: Policy{}})
	require.Error(t, monitor.Start(context.Background()))
}

func TestMonitor_StopBeforeStartIsSafe(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{Policy: testPolicy()})
	monitor.Stop()
	monitor.Stop()
}
