package che

import (
	"context"
	"sync"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"
)

// defaultEventBuffer bounds the per-device event queue
const defaultEventBuffer = 32

type envelope struct {
	ctx   context.Context
	event Event
	reply chan []DisplayCommand
}

// Session serializes all events for one device through a single goroutine,
// so scans and button presses are applied strictly in arrival order.
type Session struct {
	deviceID   string
	machine    *Machine
	dispatcher Dispatcher
	logger     *logging.Logger

	events chan envelope
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewSession builds and starts a session actor for one device
func NewSession(deviceID string, mode ProcessMode, backend Backend, dispatcher Dispatcher, logger *logging.Logger) *Session {
	s := &Session{
		deviceID:   deviceID,
		machine:    NewMachine(deviceID, mode, backend, logger),
		dispatcher: dispatcher,
		logger:     logger.WithDeviceID(deviceID).WithComponent("che.session"),
		events:     make(chan envelope, defaultEventBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case env := <-s.events:
			cmds := s.machine.Handle(env.ctx, env.event)
			if err := s.dispatcher.Send(s.deviceID, cmds); err != nil {
				s.logger.WithError(err).Warn("display dispatch failed")
			}
			env.reply <- cmds
		case <-s.stop:
			return
		}
	}
}

// Dispatch queues one event and waits for the resulting display commands
func (s *Session) Dispatch(ctx context.Context, ev Event) ([]DisplayCommand, error) {
	env := envelope{ctx: ctx, event: ev, reply: make(chan []DisplayCommand, 1)}
	select {
	case s.events <- env:
	case <-s.stop:
		return nil, apperrors.NewAppError(apperrors.CodeServiceUnavailable, "device session closed", 503)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case cmds := <-env.reply:
		return cmds, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Inspect runs fn inside the actor, giving it exclusive machine access
func (s *Session) Inspect(ctx context.Context, fn func(*Machine)) error {
	_, err := s.Dispatch(ctx, inspectEvent{fn: fn})
	return err
}

// inspectEvent is an internal event that runs a closure in the actor
type inspectEvent struct {
	fn func(*Machine)
}

func (inspectEvent) isEvent() {}

// DeviceID reports which device this session serves
func (s *Session) DeviceID() string { return s.deviceID }

// Close stops the actor. Queued events that were not yet picked up are
// dropped; their callers get a closed-session error.
func (s *Session) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// Registry owns all live device sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	backend    Backend
	dispatcher Dispatcher
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewRegistry creates an empty session registry
func NewRegistry(backend Backend, dispatcher Dispatcher, logger *logging.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		backend:    backend,
		dispatcher: dispatcher,
		logger:     logger.WithComponent("che.registry"),
		metrics:    m,
	}
}

// GetOrCreate returns the device's session, starting one in the given mode
// when none exists. An existing session keeps the mode it was started in.
func (r *Registry) GetOrCreate(deviceID string, mode ProcessMode) *Session {
	r.mu.RLock()
	s, ok := r.sessions[deviceID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[deviceID]; ok {
		return s
	}
	s = NewSession(deviceID, mode, r.backend, r.dispatcher, r.logger)
	r.sessions[deviceID] = s
	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	r.logger.WithDeviceID(deviceID).Info("device session started", "mode", string(mode))
	return s
}

// Get returns the device's session if one is live
func (r *Registry) Get(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// Remove stops and forgets the device's session
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	s, ok := r.sessions[deviceID]
	if ok {
		delete(r.sessions, deviceID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	if r.metrics != nil {
		r.metrics.SetActiveSessions(count)
	}
	r.logger.WithDeviceID(deviceID).Info("device session removed")
}

// Count reports how many sessions are live
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll stops every session, used during shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if r.metrics != nil {
		r.metrics.SetActiveSessions(0)
	}
}
