// Package editor implements the inline field editor of a detail view: one
// editable slot per scalar field of a record, each with its own draft, edit
// flag and error.
//
// Several fields may be in edit mode at the same time; nothing enforces
// single-field editing. A field that is not being edited always has
// Draft == Committed.
package editor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/fieldrule"
)

const module = "EDITOR"

var (
	ErrUnknownField   = errors.New("editor: unknown field")
	ErrNotEditing     = errors.New("editor: field is not in edit mode")
	ErrCommitInFlight = errors.New("editor: a commit for this field is already in flight")
	ErrClosed         = errors.New("editor: store closed")
)

// Saver issues the partial update of one record.
type Saver interface {
	UpdateFields(ctx context.Context, kind entity.Kind, id string, fields map[string]any) (*entity.Record, error)
}

// Authorizer is the staff capability test.
type Authorizer interface {
	IsStaff() bool
}

// Field is a snapshot of one editable slot.
type Field struct {
	Name      string
	Committed any
	Draft     any
	Editing   bool
	Saving    bool
	Err       error
}

type Store struct {
	mu        sync.Mutex
	kind      entity.Kind
	recordID  string
	fields    map[string]*Field
	rules     fieldrule.Table
	validator *fieldrule.Validator
	saver     Saver
	auth      Authorizer
	logger    logger.ILogger
	closed    bool
}

type Option func(*Store)

// WithClock sets the clock used by date rules.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.validator = fieldrule.NewValidator(now)
	}
}

func WithRules(t fieldrule.Table) Option {
	return func(s *Store) {
		if t != nil {
			s.rules = t
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store for records of kind, validated with the
// kind's rule table.
func NewStore(kind entity.Kind, saver Saver, auth Authorizer, opts ...Option) *Store {
	s := &Store{
		kind:      kind,
		fields:    make(map[string]*Field),
		rules:     fieldrule.For(kind),
		validator: fieldrule.NewValidator(time.Now),
		saver:     saver,
		auth:      auth,
		logger:    logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize seeds one field per scalar attribute of rec, none in edit mode.
func (s *Store) Initialize(rec *entity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedLocked(rec)
}

func (s *Store) seedLocked(rec *entity.Record) {
	s.recordID = rec.ID
	s.fields = make(map[string]*Field, len(rec.Fields))
	for name, value := range rec.Fields {
		s.fields[name] = &Field{Name: name, Committed: value, Draft: value}
	}
}

// Refresh re-seeds committed values from a reloaded record. Fields still in
// edit mode keep their draft and error; the others take the server value.
func (s *Store) Refresh(rec *entity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordID != rec.ID {
		s.seedLocked(rec)
		return
	}

	for name, f := range s.fields {
		value, ok := rec.Fields[name]
		switch {
		case !ok && !f.Editing:
			delete(s.fields, name)
		case !ok:
			// keep the edit; the field vanished server side
		case f.Editing:
			f.Committed = value
		default:
			f.Committed = value
			f.Draft = value
			f.Err = nil
		}
	}
	for name, value := range rec.Fields {
		if _, ok := s.fields[name]; !ok {
			s.fields[name] = &Field{Name: name, Committed: value, Draft: value}
		}
	}
}

// Toggle flips edit mode of one field. Entering edit mode starts the draft
// from the committed value; leaving it drops the draft.
func (s *Store) Toggle(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fields[name]
	if !ok {
		return ErrUnknownField
	}
	f.Editing = !f.Editing
	f.Draft = f.Committed
	f.Err = nil
	return nil
}

// SetDraft updates the draft of a field in edit mode. It is a no-op otherwise.
func (s *Store) SetDraft(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.fields[name]; ok && f.Editing {
		f.Draft = value
	}
}

// Discard leaves edit mode without saving.
func (s *Store) Discard(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.fields[name]; ok {
		f.Draft = f.Committed
		f.Editing = false
		f.Err = nil
	}
}

// Commit validates the draft and sends {name: draft} to the server. On
// success the field leaves edit mode with the sent value committed. Any
// failure stays on this field, which remains in edit mode.
func (s *Store) Commit(ctx context.Context, name string) error {
	s.mu.Lock()
	f, ok := s.fields[name]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownField
	}
	if !f.Editing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	if f.Saving {
		s.mu.Unlock()
		return ErrCommitInFlight
	}
	if err := s.validator.Check(name, f.Draft, s.rules.Rules(name)); err != nil {
		f.Err = err
		s.mu.Unlock()
		return err
	}
	if s.auth == nil || !s.auth.IsStaff() {
		err := &apperror.PermissionError{Action: "edit " + s.kind.String()}
		f.Err = err
		s.mu.Unlock()
		return err
	}

	value := s.rules.Coerce(name, f.Draft)
	id := s.recordID
	f.Saving = true
	f.Err = nil
	s.mu.Unlock()

	rec, err := s.saver.UpdateFields(ctx, s.kind, id, map[string]any{name: value})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.recordID != id {
		return ErrClosed
	}
	f, ok = s.fields[name]
	if !ok {
		return ErrUnknownField
	}
	f.Saving = false

	if err != nil {
		f.Err = err
		s.logger.Warn(module, "Commit failed", map[string]interface{}{
			"kind": s.kind, "id": id, "field": name, "error": err.Error(),
		})
		return err
	}

	if rec != nil {
		if server, ok := rec.Fields[name]; ok {
			value = server
		}
	}
	f.Committed = value
	f.Draft = value
	f.Editing = false
	f.Err = nil
	s.logger.Info(module, "Field committed", map[string]interface{}{"kind": s.kind, "id": id, "field": name})
	return nil
}

// Field returns a snapshot of one field.
func (s *Store) Field(name string) (Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fields[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Fields returns snapshots of every field sorted by name.
func (s *Store) Fields() []Field {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Err returns the error attached to a field, if any.
func (s *Store) Err(name string) error {
	f, ok := s.Field(name)
	if !ok {
		return nil
	}
	return f.Err
}

// Close tears the store down; commit responses arriving later are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
