// Package relation applies add / remove mutations to a movie's actor, director
// and genre associations.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/events"
)

const module = "RELATION"

var ErrInvalidKind = errors.New("relation: unknown relation kind")

// Mutator is the slice of the catalog API the managers call.
type Mutator interface {
	AddRelation(ctx context.Context, rel entity.RelationKind, movieId, childId, role string) error
	RemoveRelation(ctx context.Context, rel entity.RelationKind, movieId, childId string) error
}

type Authorizer interface {
	IsStaff() bool
}

// Busy counts outstanding relation mutations. One Busy is shared by the
// managers of a movie so the page shows a single indicator.
type Busy struct {
	n atomic.Int32
}

func (b *Busy) enter() { b.n.Add(1) }
func (b *Busy) leave() { b.n.Add(-1) }

func (b *Busy) Active() bool {
	return b.n.Load() > 0
}

// Attrs are the edge attributes of an association.
type Attrs struct {
	Role string
}

type Selection struct {
	ChildID string
	Attrs   Attrs
}

// BatchResult reports how far a batch got. Items after the first failure are
// never attempted and applied items are not rolled back.
type BatchResult struct {
	Applied []string
	Failed  string
	Skipped []string
}

func (r BatchResult) Partial() bool {
	return r.Failed != "" && len(r.Applied) > 0
}

// Status is the state of the last mutation for display.
type Status struct {
	Busy    bool
	LastErr error
}

type Manager struct {
	kind      entity.RelationKind
	api       Mutator
	auth      Authorizer
	busy      *Busy
	publisher events.Publisher
	logger    logger.ILogger

	mu      sync.Mutex
	lastErr error
}

type Option func(*Manager)

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(kind entity.RelationKind, api Mutator, auth Authorizer, busy *Busy, opts ...Option) *Manager {
	if busy == nil {
		busy = &Busy{}
	}
	m := &Manager{
		kind:      kind,
		api:       api,
		auth:      auth,
		busy:      busy,
		publisher: events.NopPublisher{},
		logger:    logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set holds the three managers of one movie, sharing a Busy counter.
type Set struct {
	Busy     *Busy
	managers map[entity.RelationKind]*Manager
}

func NewSet(api Mutator, auth Authorizer, opts ...Option) *Set {
	busy := &Busy{}
	set := &Set{Busy: busy, managers: make(map[entity.RelationKind]*Manager, len(entity.RelationKinds))}
	for _, kind := range entity.RelationKinds {
		set.managers[kind] = NewManager(kind, api, auth, busy, opts...)
	}
	return set
}

func (s *Set) Get(kind entity.RelationKind) (*Manager, error) {
	m, ok := s.managers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return m, nil
}

func (m *Manager) Kind() entity.RelationKind {
	return m.kind
}

// IsBusy reports whether any manager sharing this one's counter has a
// mutation outstanding.
func (m *Manager) IsBusy() bool {
	return m.busy.Active()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Busy: m.busy.Active(), LastErr: m.lastErr}
}

// Add creates one association. The role is only sent for actors.
func (m *Manager) Add(ctx context.Context, parentId, childId string, attrs Attrs) error {
	if err := m.authorize("add " + m.kind.String()); err != nil {
		return err
	}
	role := ""
	if m.kind.HasRole() {
		role = attrs.Role
	}

	m.busy.enter()
	err := m.api.AddRelation(ctx, m.kind, parentId, childId, role)
	m.busy.leave()
	m.setLastErr(err)

	if err != nil {
		m.logger.Warn(module, "Failed to add relation", map[string]interface{}{
			"kind": m.kind, "movie_id": parentId, "child_id": childId, "error": err.Error(),
		})
		return err
	}

	m.publish(ctx, events.RelationAdded(m.kind.String(), parentId, childId, role))
	return nil
}

// Remove deletes one association.
func (m *Manager) Remove(ctx context.Context, parentId, childId string) error {
	if err := m.authorize("remove " + m.kind.String()); err != nil {
		return err
	}

	m.busy.enter()
	err := m.api.RemoveRelation(ctx, m.kind, parentId, childId)
	m.busy.leave()
	m.setLastErr(err)

	if err != nil {
		m.logger.Warn(module, "Failed to remove relation", map[string]interface{}{
			"kind": m.kind, "movie_id": parentId, "child_id": childId, "error": err.Error(),
		})
		return err
	}

	m.publish(ctx, events.RelationRemoved(m.kind.String(), parentId, childId))
	return nil
}

// AddBatch applies selections one at a time in order and stops at the first
// failure, returning that error together with the partial result.
func (m *Manager) AddBatch(ctx context.Context, parentId string, selections []Selection) (BatchResult, error) {
	var result BatchResult
	if err := m.authorize("add " + m.kind.String()); err != nil {
		for _, sel := range selections {
			result.Skipped = append(result.Skipped, sel.ChildID)
		}
		return result, err
	}

	m.busy.enter()
	defer m.busy.leave()

	for i, sel := range selections {
		if err := ctx.Err(); err != nil {
			return m.stop(result, selections, i, err)
		}
		if err := m.Add(ctx, parentId, sel.ChildID, sel.Attrs); err != nil {
			return m.stop(result, selections, i, err)
		}
		result.Applied = append(result.Applied, sel.ChildID)
	}

	m.logger.Info(module, "Batch applied", map[string]interface{}{
		"kind": m.kind, "movie_id": parentId, "count": len(result.Applied),
	})
	return result, nil
}

func (m *Manager) stop(result BatchResult, selections []Selection, at int, err error) (BatchResult, error) {
	result.Failed = selections[at].ChildID
	for _, sel := range selections[at+1:] {
		result.Skipped = append(result.Skipped, sel.ChildID)
	}
	m.setLastErr(err)
	m.logger.Warn(module, "Batch stopped at first failure", map[string]interface{}{
		"kind": m.kind, "applied": len(result.Applied), "failed": result.Failed, "skipped": len(result.Skipped),
	})
	return result, err
}

func (m *Manager) authorize(action string) error {
	if m.auth == nil || !m.auth.IsStaff() {
		err := &apperror.PermissionError{Action: action}
		m.setLastErr(err)
		return err
	}
	return nil
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) publish(ctx context.Context, evt events.Event) {
	if err := m.publisher.Publish(ctx, evt); err != nil {
		m.logger.Error(module, "Failed to publish event", map[string]interface{}{
			"type": evt.EventType(), "error": err.Error(),
		})
	}
}
