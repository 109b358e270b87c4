// Package detail drives the detail page of one catalog record: loading it,
// inline field edits, relation pickers for movies, and deletion. Every
// successful mutation is followed by a full reload so the displayed record is
// always the one the server returned.
package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"moviecat-admin/internal/dto"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/editor"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/events"
	"moviecat-admin/pkg/picker"
	"moviecat-admin/pkg/relation"
)

const module = "DETAIL"

var (
	ErrClosed      = errors.New("detail: controller closed")
	ErrNotReady    = errors.New("detail: record is not loaded")
	ErrNoRelations = errors.New("detail: record kind has no relations")
	ErrBusy        = errors.New("detail: relation change in progress")
)

// API is the catalog surface a detail page needs.
type API interface {
	GetRecord(ctx context.Context, kind entity.Kind, id string) (*entity.Record, error)
	MovieActors(ctx context.Context, movieId string) ([]entity.RelatedEntity, error)
	UpdateFields(ctx context.Context, kind entity.Kind, id string, fields map[string]any) (*entity.Record, error)
	Filter(ctx context.Context, kind entity.Kind, term string, page, perPage int) (*dto.FilterResponse, error)
	AddRelation(ctx context.Context, rel entity.RelationKind, movieId, childId, role string) error
	RemoveRelation(ctx context.Context, rel entity.RelationKind, movieId, childId string) error
	DeleteRecord(ctx context.Context, kind entity.Kind, id string) error
}

type Authorizer interface {
	IsStaff() bool
}

type State int

const (
	StateLoading State = iota
	StateReady
	StateError
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateDeleted:
		return "deleted"
	default:
		return "loading"
	}
}

type Controller struct {
	kind      entity.Kind
	id        string
	api       API
	auth      Authorizer
	publisher events.Publisher
	logger    logger.ILogger

	fields    *editor.Store
	relations *relation.Set
	pickers   map[entity.RelationKind]*picker.Query

	mu        sync.Mutex
	state     State
	err       error
	deleteErr error
	record    *entity.Record
	loadSeq   uint64
	loaded    bool
	closed    bool
}

type options struct {
	publisher     events.Publisher
	logger        logger.ILogger
	pickerOptions []picker.Option
	editorOptions []editor.Option
}

type Option func(*options)

func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithLogger(l logger.ILogger) Option {
	return func(o *options) { o.logger = l }
}

func WithPickerOptions(opts ...picker.Option) Option {
	return func(o *options) { o.pickerOptions = append(o.pickerOptions, opts...) }
}

func WithEditorOptions(opts ...editor.Option) Option {
	return func(o *options) { o.editorOptions = append(o.editorOptions, opts...) }
}

// New builds the controller for one record. Nothing is fetched until Load.
func New(kind entity.Kind, id string, api API, auth Authorizer, opts ...Option) *Controller {
	o := options{publisher: events.NopPublisher{}, logger: logger.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.publisher == nil {
		o.publisher = events.NopPublisher{}
	}
	if o.logger == nil {
		o.logger = logger.NewNopLogger()
	}

	c := &Controller{
		kind:      kind,
		id:        id,
		api:       api,
		auth:      auth,
		publisher: o.publisher,
		logger:    o.logger,
		fields:    editor.NewStore(kind, api, auth, append([]editor.Option{editor.WithLogger(o.logger)}, o.editorOptions...)...),
		state:     StateLoading,
	}

	if kind == entity.KindMovie {
		c.relations = relation.NewSet(api, auth, relation.WithPublisher(o.publisher), relation.WithLogger(o.logger))
		c.pickers = make(map[entity.RelationKind]*picker.Query, len(entity.RelationKinds))
		for _, rel := range entity.RelationKinds {
			popts := append([]picker.Option{picker.WithLogger(o.logger)}, o.pickerOptions...)
			c.pickers[rel] = picker.New(rel, api, popts...)
		}
	}
	return c
}

// Load fetches the record (plus actor roles for movies) and moves to Ready.
// A failed first load moves to Error. A failed reload keeps the last record
// and stays Ready with Err set. Call it again to retry. When several loads
// overlap only the most recent one is applied.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateDeleted {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.loadSeq++
	seq := c.loadSeq
	c.state = StateLoading
	c.mu.Unlock()

	rec, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debug(module, "Dropped load after close", map[string]interface{}{"kind": c.kind, "id": c.id})
		return ErrClosed
	}
	if seq != c.loadSeq || c.state == StateDeleted {
		return nil
	}

	if err != nil {
		c.err = err
		if c.record == nil {
			c.state = StateError
		} else {
			c.state = StateReady
		}
		c.logger.Warn(module, "Failed to load record", map[string]interface{}{
			"kind": c.kind, "id": c.id, "stale": c.record != nil, "error": err.Error(),
		})
		return err
	}

	c.record = rec
	c.state = StateReady
	c.err = nil
	if c.loaded {
		c.fields.Refresh(rec)
	} else {
		c.fields.Initialize(rec)
		c.loaded = true
	}
	return nil
}

func (c *Controller) fetch(ctx context.Context) (*entity.Record, error) {
	rec, err := c.api.GetRecord(ctx, c.kind, c.id)
	if err != nil {
		return nil, err
	}
	if c.kind != entity.KindMovie {
		return rec, nil
	}

	roles, err := c.api.MovieActors(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor roles: %w", err)
	}
	rec.MergeRoles(roles)
	return rec, nil
}

// Fields exposes the inline editor for Toggle / SetDraft / Discard.
func (c *Controller) Fields() *editor.Store {
	return c.fields
}

// CommitField commits one field and reloads the record on success.
func (c *Controller) CommitField(ctx context.Context, name string) error {
	if err := c.requireReady(); err != nil {
		return err
	}

	value := c.fieldDraft(name)
	if err := c.fields.Commit(ctx, name); err != nil {
		return err
	}

	c.publish(ctx, events.FieldUpdated(c.kind.String(), c.id, name, value))
	return c.Load(ctx)
}

func (c *Controller) fieldDraft(name string) any {
	f, _ := c.fields.Field(name)
	return f.Draft
}

// OpenPicker opens the picker for kind, excluding entities already linked.
func (c *Controller) OpenPicker(ctx context.Context, kind entity.RelationKind) error {
	p, err := c.picker(kind)
	if err != nil {
		return err
	}
	if err := c.requireReady(); err != nil {
		return err
	}

	c.mu.Lock()
	excluded := c.record.RelatedIDs(kind)
	c.mu.Unlock()

	return p.Open(ctx, excluded)
}

// Picker returns the picker for kind, or nil for non-movie records.
func (c *Controller) Picker(kind entity.RelationKind) *picker.Query {
	p, _ := c.picker(kind)
	return p
}

func (c *Controller) picker(kind entity.RelationKind) (*picker.Query, error) {
	if c.pickers == nil {
		return nil, ErrNoRelations
	}
	p, ok := c.pickers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", relation.ErrInvalidKind, kind)
	}
	return p, nil
}

// OnPickerScroll requests the next page when the results list is scrolled
// near its end.
func (c *Controller) OnPickerScroll(ctx context.Context, kind entity.RelationKind, v Viewport) error {
	p, err := c.picker(kind)
	if err != nil {
		return err
	}
	if !NearEnd(v) {
		return nil
	}
	return p.FetchNextPage(ctx)
}

// ConfirmPicker links the picker's basket in order. The record is reloaded
// whenever at least one link was created, even if a later one failed; in
// that case the picker stays open without the entities already linked.
// It returns ErrBusy while another relation change is outstanding.
func (c *Controller) ConfirmPicker(ctx context.Context, kind entity.RelationKind) (relation.BatchResult, error) {
	var result relation.BatchResult

	p, err := c.picker(kind)
	if err != nil {
		return result, err
	}
	if err := c.requireReady(); err != nil {
		return result, err
	}
	mgr, err := c.relations.Get(kind)
	if err != nil {
		return result, err
	}
	if c.relations.Busy.Active() {
		return result, ErrBusy
	}

	err = p.Confirm(ctx, func(ctx context.Context, selections []picker.Selection) error {
		batch := make([]relation.Selection, 0, len(selections))
		for _, sel := range selections {
			batch = append(batch, relation.Selection{ChildID: sel.Entity.ID, Attrs: relation.Attrs{Role: sel.Role}})
		}
		var berr error
		result, berr = mgr.AddBatch(ctx, c.id, batch)
		return berr
	})
	if errors.Is(err, picker.ErrConfirming) {
		return result, ErrBusy
	}

	if len(result.Applied) == 0 {
		return result, err
	}
	if err != nil {
		p.Exclude(result.Applied...)
	}
	if lerr := c.Load(ctx); err == nil {
		err = lerr
	}
	return result, err
}

// RemoveRelation unlinks one entity and reloads on success. It returns
// ErrBusy while another relation change is outstanding.
func (c *Controller) RemoveRelation(ctx context.Context, kind entity.RelationKind, childId string) error {
	if c.relations == nil {
		return ErrNoRelations
	}
	if err := c.requireReady(); err != nil {
		return err
	}
	mgr, err := c.relations.Get(kind)
	if err != nil {
		return err
	}
	if c.relations.Busy.Active() {
		return ErrBusy
	}
	if err := mgr.Remove(ctx, c.id, childId); err != nil {
		return err
	}
	return c.Load(ctx)
}

// IsBusy reports whether a relation mutation is outstanding.
func (c *Controller) IsBusy() bool {
	return c.relations != nil && c.relations.Busy.Active()
}

// Delete removes the record. On success the controller moves to Deleted and
// tears down; on failure it stays Ready with DeleteErr set.
func (c *Controller) Delete(ctx context.Context) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	if c.auth == nil || !c.auth.IsStaff() {
		err := &apperror.PermissionError{Action: "delete " + c.kind.String()}
		c.setDeleteErr(err)
		return err
	}

	if err := c.api.DeleteRecord(ctx, c.kind, c.id); err != nil {
		c.setDeleteErr(err)
		c.logger.Warn(module, "Failed to delete record", map[string]interface{}{
			"kind": c.kind, "id": c.id, "error": err.Error(),
		})
		return err
	}

	c.mu.Lock()
	c.state = StateDeleted
	c.deleteErr = nil
	c.mu.Unlock()

	c.teardown()
	c.publish(ctx, events.RecordDeleted(c.kind.String(), c.id))
	c.logger.Info(module, "Record deleted", map[string]interface{}{"kind": c.kind, "id": c.id})
	return nil
}

// Close tears the page down. Loads and commits finishing later are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.teardown()
}

func (c *Controller) teardown() {
	c.fields.Close()
	for _, p := range c.pickers {
		p.Close()
	}
}

func (c *Controller) Kind() entity.Kind { return c.kind }
func (c *Controller) ID() string        { return c.id }

// Record returns a copy of the last loaded record.
func (c *Controller) Record() *entity.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the last load error. It is set in StateError, and in StateReady
// when a reload failed and Record is the previously loaded one.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) DeleteErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteErr
}

func (c *Controller) requireReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateReady {
		return ErrNotReady
	}
	return nil
}

func (c *Controller) setDeleteErr(err error) {
	c.mu.Lock()
	c.deleteErr = err
	c.mu.Unlock()
}

func (c *Controller) publish(ctx context.Context, evt events.Event) {
	if err := c.publisher.Publish(ctx, evt); err != nil {
		c.logger.Error(module, "Failed to publish event", map[string]interface{}{
			"type": evt.EventType(), "error": err.Error(),
		})
	}
}
