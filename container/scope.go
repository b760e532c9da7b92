package container

import (
	"sync"

	"github.com/google/uuid"
)

// ScopeId uniquely identifies a Scope, e.g. one per inbound request.
type ScopeId string

func newScopeId() ScopeId {
	return ScopeId(uuid.NewString())
}

// Disposable is implemented by scoped services that hold resources
// needing explicit release (file handles, connections) when their
// owning Scope is disposed.
type Disposable interface {
	Dispose() error
}

// Scope holds the Scoped-lifetime instances built for one logical unit
// of work (a request, a job execution). Scoped services are built once
// per Scope and shared by every Resolve call against it.
type Scope struct {
	id        ScopeId
	container *Container
	mu        sync.Mutex
	instances map[ServiceId]any
	disposed  bool
}

// CreateScope creates a new Scope bound to this Container.
func (ct *Container) CreateScope() *Scope {
	s := &Scope{
		id:        newScopeId(),
		container: ct,
		instances: make(map[ServiceId]any),
	}
	ct.scopesMu.Lock()
	ct.scopes[s.id] = s
	ct.scopesMu.Unlock()
	return s
}

// ID returns the scope's identity.
func (s *Scope) ID() ScopeId { return s.id }

func (s *Scope) resolveScoped(ct *Container, d *ServiceDescriptor, stack []ServiceId) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, &ResolutionError{Service: d.Id, Cause: ErrScopeDisposed}
	}
	if v, ok := s.instances[d.Id]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := ct.build(d, s, stack)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		if disp, ok := v.(Disposable); ok {
			_ = disp.Dispose()
		}
		return nil, &ResolutionError{Service: d.Id, Cause: ErrScopeDisposed}
	}
	if existing, ok := s.instances[d.Id]; ok {
		// Lost a race with a concurrent resolve of the same scoped
		// service; keep the winner, discard ours if disposable.
		if disp, ok := v.(Disposable); ok {
			_ = disp.Dispose()
		}
		return existing, nil
	}
	s.instances[d.Id] = v
	return v, nil
}

// Dispose releases every Disposable instance built in this scope
// (disposal order is unspecified, since build order isn't tracked) and
// marks the scope unusable for further resolution.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	instances := s.instances
	s.instances = nil
	s.mu.Unlock()

	s.container.scopesMu.Lock()
	delete(s.container.scopes, s.id)
	s.container.scopesMu.Unlock()

	var firstErr error
	for _, v := range instances {
		if disp, ok := v.(Disposable); ok {
			if err := disp.Dispose(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
