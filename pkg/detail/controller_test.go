package detail

import (
	"context"
	"sync"
	"testing"
	"time"

	"moviecat-admin/internal/dto"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/editor"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/events"
	"moviecat-admin/pkg/picker"
	"moviecat-admin/pkg/relation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staff bool

func (s staff) IsStaff() bool { return bool(s) }

// memoryAPI is a small in-memory catalog holding one movie and a pool of
// candidate entities.
type memoryAPI struct {
	mu         sync.Mutex
	movie      *entity.Record
	roles      map[string]string
	pool       map[entity.Kind][]entity.RelatedEntity
	totalPages int
	calls      []string
	failAdd    map[string]error
	failGet    error
	failUpdate error
	failDelete error
	getGate    chan struct{}
	addGate    chan struct{}
	deleted    bool
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{
		movie: &entity.Record{
			ID:   "1",
			Kind: entity.KindMovie,
			Fields: map[string]any{
				"title":    "The Matrix",
				"duration": int64(136),
			},
			Relations: map[entity.RelationKind][]entity.RelatedEntity{
				entity.RelationActors:    {{ID: "5", DisplayName: "Keanu Reeves"}},
				entity.RelationDirectors: {},
				entity.RelationGenres:    {},
			},
		},
		roles: map[string]string{"5": "Neo"},
		pool: map[entity.Kind][]entity.RelatedEntity{
			entity.KindActor: {
				{ID: "5", DisplayName: "Keanu Reeves"},
				{ID: "6", DisplayName: "Carrie-Anne Moss"},
				{ID: "7", DisplayName: "Laurence Fishburne"},
			},
			entity.KindGenre: {
				{ID: "10", DisplayName: "Action"},
				{ID: "11", DisplayName: "Sci-Fi"},
				{ID: "12", DisplayName: "Drama"},
			},
		},
		totalPages: 1,
		failAdd:    map[string]error{},
	}
}

func (m *memoryAPI) log(call string) {
	m.calls = append(m.calls, call)
}

func (m *memoryAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memoryAPI) GetRecord(ctx context.Context, kind entity.Kind, id string) (*entity.Record, error) {
	m.mu.Lock()
	m.log("GET " + id)
	gate, err := m.getGate, m.failGet
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted || id != m.movie.ID {
		return nil, &apperror.NotFoundError{Kind: kind.String(), ID: id}
	}
	rec := m.movie.Clone()
	// Role-less actors, as /movies/{id} returns them.
	for i := range rec.Relations[entity.RelationActors] {
		rec.Relations[entity.RelationActors][i].Role = ""
	}
	return rec, nil
}

func (m *memoryAPI) MovieActors(ctx context.Context, movieId string) ([]entity.RelatedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("GET actors " + movieId)
	var out []entity.RelatedEntity
	for _, a := range m.movie.Relations[entity.RelationActors] {
		a.Role = m.roles[a.ID]
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryAPI) UpdateFields(ctx context.Context, kind entity.Kind, id string, fields map[string]any) (*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("PUT " + id)
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	for k, v := range fields {
		// The server normalises titles.
		if s, ok := v.(string); ok && k == "title" {
			v = s + " (1999)"
		}
		m.movie.Fields[k] = v
	}
	return nil, nil
}

func (m *memoryAPI) Filter(ctx context.Context, kind entity.Kind, term string, page, perPage int) (*dto.FilterResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("FILTER " + kind.String())
	return &dto.FilterResponse{
		Items:      append([]entity.RelatedEntity(nil), m.pool[kind]...),
		Pagination: dto.PaginationMeta{TotalPages: m.totalPages},
	}, nil
}

func (m *memoryAPI) AddRelation(ctx context.Context, rel entity.RelationKind, movieId, childId, role string) error {
	m.mu.Lock()
	m.log("POST " + rel.String() + " " + childId)
	gate := m.addGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failAdd[childId]; err != nil {
		return err
	}
	for _, e := range m.pool[rel.Target()] {
		if e.ID == childId {
			m.movie.Relations[rel] = append(m.movie.Relations[rel], e)
		}
	}
	if role != "" {
		m.roles[childId] = role
	}
	return nil
}

func (m *memoryAPI) RemoveRelation(ctx context.Context, rel entity.RelationKind, movieId, childId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("DELETE " + rel.String() + " " + childId)
	kept := m.movie.Relations[rel][:0:0]
	for _, e := range m.movie.Relations[rel] {
		if e.ID != childId {
			kept = append(kept, e)
		}
	}
	m.movie.Relations[rel] = kept
	return nil
}

func (m *memoryAPI) DeleteRecord(ctx context.Context, kind entity.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("DELETE " + id)
	if m.failDelete != nil {
		return m.failDelete
	}
	m.deleted = true
	return nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, evt.EventType())
	return nil
}

func newMovieController(api *memoryAPI, opts ...Option) *Controller {
	opts = append([]Option{WithEditorOptions(editor.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))}, opts...)
	return New(entity.KindMovie, "1", api, staff(true), opts...)
}

func relatedIds(rec *entity.Record, rel entity.RelationKind) []string {
	return rec.RelatedIDs(rel)
}

func countCalls(api *memoryAPI, call string) int {
	n := 0
	for _, c := range api.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func TestLoadMergesActorRoles(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)

	assert.Equal(t, StateLoading, c.State())
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StateReady, c.State())

	rec := c.Record()
	require.Len(t, rec.Relations[entity.RelationActors], 1)
	assert.Equal(t, "Neo", rec.Relations[entity.RelationActors][0].Role)

	f, ok := c.Fields().Field("title")
	require.True(t, ok)
	assert.Equal(t, "The Matrix", f.Committed)
}

func TestLoadNotFoundMovesToError(t *testing.T) {
	api := newMemoryAPI()
	c := New(entity.KindMovie, "404", api, staff(true))

	err := c.Load(context.Background())
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, StateError, c.State())
	assert.ErrorIs(t, c.Err(), apperror.ErrNotFound)
}

func TestLoadRetryAfterError(t *testing.T) {
	api := newMemoryAPI()
	api.failGet = &apperror.NetworkError{Method: "GET", Path: "/movies/1"}
	c := newMovieController(api)

	require.Error(t, c.Load(context.Background()))
	assert.Equal(t, StateError, c.State())

	api.mu.Lock()
	api.failGet = nil
	api.mu.Unlock()

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.NoError(t, c.Err())
}

func TestCommitFieldReloadsServerValue(t *testing.T) {
	api := newMemoryAPI()
	pub := &recordingPublisher{}
	c := newMovieController(api, WithPublisher(pub))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.Fields().Toggle("title"))
	c.Fields().SetDraft("title", "Matrix")
	require.NoError(t, c.CommitField(ctx, "title"))

	// The displayed record is the reloaded one, not the local draft.
	assert.Equal(t, "Matrix (1999)", c.Record().Fields["title"])
	f, _ := c.Fields().Field("title")
	assert.False(t, f.Editing)
	assert.Equal(t, "Matrix (1999)", f.Committed)
	assert.Equal(t, f.Committed, f.Draft)

	calls := api.Calls()
	assert.Equal(t, []string{"PUT 1", "GET 1", "GET actors 1"}, calls[len(calls)-3:])
	assert.Equal(t, []string{events.TypeFieldUpdated}, pub.types)
}

func TestCommitFieldValidationMakesNoRequest(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	before := len(api.Calls())

	require.NoError(t, c.Fields().Toggle("duration"))
	c.Fields().SetDraft("duration", "900")
	err := c.CommitField(ctx, "duration")

	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration", verr.Field)
	assert.Len(t, api.Calls(), before)
}

func TestCommitFieldFailureKeepsEditing(t *testing.T) {
	api := newMemoryAPI()
	api.failUpdate = &apperror.NetworkError{Method: "PUT", Status: 500}
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.Fields().Toggle("title"))
	c.Fields().SetDraft("title", "Other")
	require.Error(t, c.CommitField(ctx, "title"))

	f, _ := c.Fields().Field("title")
	assert.True(t, f.Editing)
	assert.Error(t, f.Err)
	assert.Equal(t, "The Matrix", c.Record().Fields["title"])
	assert.Equal(t, StateReady, c.State())
}

func TestOpenPickerExcludesLinkedActors(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.OpenPicker(ctx, entity.RelationActors))

	snap := c.Picker(entity.RelationActors).Snapshot()
	assert.Equal(t, []string{"6", "7"}, []string{snap.Results[0].ID, snap.Results[1].ID})
	assert.Len(t, snap.Results, 2)
	assert.False(t, snap.HasMore)
}

func TestConfirmPickerLinksAndReloads(t *testing.T) {
	api := newMemoryAPI()
	pub := &recordingPublisher{}
	c := newMovieController(api, WithPublisher(pub))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationActors))

	p := c.Picker(entity.RelationActors)
	require.NoError(t, p.ToggleSelect(entity.RelatedEntity{ID: "6"}))
	p.SetRole("6", "Trinity")

	result, err := c.ConfirmPicker(ctx, entity.RelationActors)
	require.NoError(t, err)
	assert.Equal(t, []string{"6"}, result.Applied)
	assert.False(t, p.IsOpen())

	rec := c.Record()
	assert.Equal(t, []string{"5", "6"}, relatedIds(rec, entity.RelationActors))
	assert.Equal(t, "Trinity", rec.Relations[entity.RelationActors][1].Role)
	assert.Equal(t, []string{events.TypeRelationAdded}, pub.types)
}

func TestConfirmPickerPartialFailure(t *testing.T) {
	api := newMemoryAPI()
	boom := &apperror.NetworkError{Method: "POST", Status: 409, Message: "already linked"}
	api.failAdd["11"] = boom
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationGenres))

	p := c.Picker(entity.RelationGenres)
	for _, id := range []string{"10", "11", "12"} {
		require.NoError(t, p.ToggleSelect(entity.RelatedEntity{ID: id}))
	}

	result, err := c.ConfirmPicker(ctx, entity.RelationGenres)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"10"}, result.Applied)
	assert.Equal(t, "11", result.Failed)
	assert.Equal(t, []string{"12"}, result.Skipped)

	// Applied item stays linked and shows up after the reload.
	assert.Equal(t, []string{"10"}, relatedIds(c.Record(), entity.RelationGenres))

	// Picker stays open with only the unapplied selections.
	require.True(t, p.IsOpen())
	snap := p.Snapshot()
	require.Len(t, snap.Basket, 2)
	assert.Equal(t, "11", snap.Basket[0].Entity.ID)
	assert.Equal(t, "12", snap.Basket[1].Entity.ID)
	for _, r := range snap.Results {
		assert.NotEqual(t, "10", r.ID)
	}
}

func TestConfirmPickerRejectsOverlappingConfirm(t *testing.T) {
	api := newMemoryAPI()
	api.addGate = make(chan struct{})
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationActors))
	require.NoError(t, c.Picker(entity.RelationActors).ToggleSelect(entity.RelatedEntity{ID: "6"}))

	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmPicker(ctx, entity.RelationActors)
		done <- err
	}()
	require.Eventually(t, func() bool { return countCalls(api, "POST actors 6") == 1 }, time.Second, time.Millisecond)
	assert.True(t, c.IsBusy())

	_, err := c.ConfirmPicker(ctx, entity.RelationActors)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, c.RemoveRelation(ctx, entity.RelationActors, "5"), ErrBusy)

	close(api.addGate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, countCalls(api, "POST actors 6"))
	assert.Equal(t, 0, countCalls(api, "DELETE actors 5"))
	assert.Equal(t, []string{"5", "6"}, relatedIds(c.Record(), entity.RelationActors))
	assert.False(t, c.IsBusy())
}

func TestConfirmPickerRejectsConfirmWhilePickerConfirming(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationGenres))
	p := c.Picker(entity.RelationGenres)
	require.NoError(t, p.ToggleSelect(entity.RelatedEntity{ID: "10"}))

	// A confirm that has claimed the basket but not yet reached the API.
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- p.Confirm(ctx, func(context.Context, []picker.Selection) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	_, err := c.ConfirmPicker(ctx, entity.RelationGenres)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 0, countCalls(api, "POST genres 10"))

	close(release)
	require.NoError(t, <-done)
}

func TestConfirmPickerEmptyBasket(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationGenres))

	_, err := c.ConfirmPicker(ctx, entity.RelationGenres)
	require.ErrorIs(t, err, picker.ErrEmptySelection)
}

func TestRemoveRelationReloads(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.RemoveRelation(ctx, entity.RelationActors, "5"))
	assert.Empty(t, relatedIds(c.Record(), entity.RelationActors))
}

func TestRelationOperationsRequireMovie(t *testing.T) {
	api := newMemoryAPI()
	c := New(entity.KindGenre, "1", api, staff(true))

	assert.Nil(t, c.Picker(entity.RelationActors))
	require.ErrorIs(t, c.OpenPicker(context.Background(), entity.RelationActors), ErrNoRelations)
	require.ErrorIs(t, c.RemoveRelation(context.Background(), entity.RelationActors, "5"), ErrNoRelations)
	assert.False(t, c.IsBusy())
}

func TestOnPickerScrollNearEnd(t *testing.T) {
	api := newMemoryAPI()
	api.totalPages = 2
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationGenres))
	filters := func() int {
		n := 0
		for _, call := range api.Calls() {
			if call == "FILTER genres" {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, filters())

	require.NoError(t, c.OnPickerScroll(ctx, entity.RelationGenres, Viewport{ScrollTop: 0, ClientHeight: 300, ScrollHeight: 1000}))
	assert.Equal(t, 1, filters())

	require.NoError(t, c.OnPickerScroll(ctx, entity.RelationGenres, Viewport{ScrollTop: 650, ClientHeight: 300, ScrollHeight: 1000}))
	assert.Equal(t, 2, filters())
	assert.False(t, c.Picker(entity.RelationGenres).Snapshot().HasMore)
}

func TestDeleteFailureStaysReady(t *testing.T) {
	api := newMemoryAPI()
	api.failDelete = &apperror.NetworkError{Method: "DELETE", Status: 500}
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.Error(t, c.Delete(ctx))
	assert.Equal(t, StateReady, c.State())
	assert.Error(t, c.DeleteErr())
}

func TestDeleteSuccessTearsDown(t *testing.T) {
	api := newMemoryAPI()
	pub := &recordingPublisher{}
	c := newMovieController(api, WithPublisher(pub))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.OpenPicker(ctx, entity.RelationGenres))

	require.NoError(t, c.Delete(ctx))
	assert.Equal(t, StateDeleted, c.State())
	assert.False(t, c.Picker(entity.RelationGenres).IsOpen())
	assert.ErrorIs(t, c.Load(ctx), ErrNotReady)
	assert.Equal(t, []string{events.TypeRecordDeleted}, pub.types)
}

func TestDeleteRequiresStaff(t *testing.T) {
	api := newMemoryAPI()
	c := New(entity.KindMovie, "1", api, staff(false))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.ErrorIs(t, c.Delete(ctx), apperror.ErrPermission)
	assert.NotContains(t, api.Calls(), "DELETE 1")
	assert.Equal(t, StateReady, c.State())
}

func TestFailedReloadKeepsRecordReady(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	reloadErr := &apperror.NetworkError{Method: "GET", Path: "/movies/1", Status: 503}
	api.mu.Lock()
	api.failGet = reloadErr
	api.mu.Unlock()

	require.NoError(t, c.Fields().Toggle("title"))
	c.Fields().SetDraft("title", "Matrix")
	require.ErrorIs(t, c.CommitField(ctx, "title"), reloadErr)

	assert.Equal(t, StateReady, c.State())
	assert.ErrorIs(t, c.Err(), reloadErr)
	assert.Equal(t, "The Matrix", c.Record().Fields["title"])

	api.mu.Lock()
	api.failGet = nil
	api.mu.Unlock()

	// Mutations stay available and the next reload clears the error.
	require.NoError(t, c.RemoveRelation(ctx, entity.RelationActors, "5"))
	assert.NoError(t, c.Err())
	assert.Equal(t, "Matrix (1999)", c.Record().Fields["title"])
	assert.Empty(t, relatedIds(c.Record(), entity.RelationActors))
}

func TestLoadAfterCloseIsDropped(t *testing.T) {
	api := newMemoryAPI()
	api.getGate = make(chan struct{})
	c := newMovieController(api)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	require.Eventually(t, func() bool { return len(api.Calls()) == 1 }, time.Second, time.Millisecond)

	c.Close()
	close(api.getGate)

	require.ErrorIs(t, <-done, ErrClosed)
	assert.Nil(t, c.Record())
	assert.Equal(t, StateLoading, c.State())
}

func TestMutationsRequireReady(t *testing.T) {
	c := newMovieController(newMemoryAPI())
	ctx := context.Background()

	assert.ErrorIs(t, c.CommitField(ctx, "title"), ErrNotReady)
	assert.ErrorIs(t, c.Delete(ctx), ErrNotReady)
	_, err := c.ConfirmPicker(ctx, entity.RelationActors)
	assert.ErrorIs(t, err, ErrNotReady)

	c.Close()
	assert.ErrorIs(t, c.Load(ctx), ErrClosed)
}

func TestNearEnd(t *testing.T) {
	tests := []struct {
		name string
		v    Viewport
		want bool
	}{
		{"far from end", Viewport{ScrollTop: 0, ClientHeight: 400, ScrollHeight: 2000}, false},
		{"exactly at threshold", Viewport{ScrollTop: 1500, ClientHeight: 400, ScrollHeight: 2000}, true},
		{"just outside threshold", Viewport{ScrollTop: 1499, ClientHeight: 400, ScrollHeight: 2000}, false},
		{"content shorter than viewport", Viewport{ScrollTop: 0, ClientHeight: 400, ScrollHeight: 200}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NearEnd(tt.v))
		})
	}
}

func TestUnknownRelationKind(t *testing.T) {
	api := newMemoryAPI()
	c := newMovieController(api)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.ErrorIs(t, c.RemoveRelation(ctx, entity.RelationKind("writers"), "1"), relation.ErrInvalidKind)
	require.ErrorIs(t, c.OpenPicker(ctx, entity.RelationKind("writers")), relation.ErrInvalidKind)
	assert.False(t, c.IsBusy())
}
