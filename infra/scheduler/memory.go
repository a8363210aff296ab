// Package scheduler provides two engine/scheduler.HostScheduler
// implementations: an in-process timer for single-node hosts and tests,
// and a Temporal-backed one for a durable, restart-surviving host.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tasquencer/tasquencer/engine/scheduler"
)

// InMemory schedules invocations with time.AfterFunc. A scheduled call is
// lost on process restart; use Temporal for a durable host.
type InMemory struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	clock  func() time.Time
}

// NewInMemory builds an InMemory scheduler.
func NewInMemory() *InMemory {
	return &InMemory{timers: map[string]*time.Timer{}, clock: time.Now}
}

// Schedule runs invoke at (or immediately, if at has already passed) and
// returns a generated function id.
func (s *InMemory) Schedule(ctx context.Context, at time.Time, invoke scheduler.InvokeFunc) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	functionID := id.String()
	delay := at.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, functionID)
		s.mu.Unlock()
		_ = invoke(context.WithoutCancel(ctx))
	})
	s.mu.Lock()
	s.timers[functionID] = timer
	s.mu.Unlock()
	return functionID, nil
}

// Cancel stops a pending invocation, if it has not already fired.
func (s *InMemory) Cancel(functionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[functionID]; ok {
		t.Stop()
		delete(s.timers, functionID)
	}
}
