package relation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staff bool

func (s staff) IsStaff() bool { return bool(s) }

type relCall struct {
	Op      string
	Kind    entity.RelationKind
	MovieID string
	ChildID string
	Role    string
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []relCall
	failOn map[string]error
	block  chan struct{}
}

func (f *fakeAPI) record(c relCall) (chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.block, f.failOn[c.ChildID]
}

func (f *fakeAPI) AddRelation(ctx context.Context, rel entity.RelationKind, movieId, childId, role string) error {
	block, err := f.record(relCall{Op: "add", Kind: rel, MovieID: movieId, ChildID: childId, Role: role})
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeAPI) RemoveRelation(ctx context.Context, rel entity.RelationKind, movieId, childId string) error {
	block, err := f.record(relCall{Op: "remove", Kind: rel, MovieID: movieId, ChildID: childId})
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeAPI) Calls() []relCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relCall(nil), f.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func selections(ids ...string) []Selection {
	out := make([]Selection, 0, len(ids))
	for _, id := range ids {
		out = append(out, Selection{ChildID: id})
	}
	return out
}

func TestAddSendsRoleOnlyForActors(t *testing.T) {
	api := &fakeAPI{}
	set := NewSet(api, staff(true))
	ctx := context.Background()

	actors, err := set.Get(entity.RelationActors)
	require.NoError(t, err)
	genres, err := set.Get(entity.RelationGenres)
	require.NoError(t, err)

	require.NoError(t, actors.Add(ctx, "1", "5", Attrs{Role: "Neo"}))
	require.NoError(t, genres.Add(ctx, "1", "8", Attrs{Role: "ignored"}))

	assert.Equal(t, []relCall{
		{Op: "add", Kind: entity.RelationActors, MovieID: "1", ChildID: "5", Role: "Neo"},
		{Op: "add", Kind: entity.RelationGenres, MovieID: "1", ChildID: "8"},
	}, api.Calls())
}

func TestPermissionGateMakesNoRequest(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(entity.RelationDirectors, api, staff(false), nil)
	ctx := context.Background()

	err := m.Add(ctx, "1", "2", Attrs{})
	require.ErrorIs(t, err, apperror.ErrPermission)
	require.ErrorIs(t, m.Remove(ctx, "1", "2"), apperror.ErrPermission)

	result, err := m.AddBatch(ctx, "1", selections("2", "3"))
	require.ErrorIs(t, err, apperror.ErrPermission)
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"2", "3"}, result.Skipped)

	assert.Empty(t, api.Calls())
	var perr *apperror.PermissionError
	assert.True(t, errors.As(m.Status().LastErr, &perr))
}

func TestBatchStopsAtFirstFailureWithoutRollback(t *testing.T) {
	boom := &apperror.NetworkError{Method: "POST", Status: 500}
	api := &fakeAPI{failOn: map[string]error{"B": boom}}
	m := NewManager(entity.RelationGenres, api, staff(true), nil)

	result, err := m.AddBatch(context.Background(), "1", selections("A", "B", "C"))
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"A"}, result.Applied)
	assert.Equal(t, "B", result.Failed)
	assert.Equal(t, []string{"C"}, result.Skipped)
	assert.True(t, result.Partial())

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "A", calls[0].ChildID)
	assert.Equal(t, "B", calls[1].ChildID)
	for _, c := range calls {
		assert.Equal(t, "add", c.Op, "no compensating remove is issued")
	}
	assert.Equal(t, boom, m.Status().LastErr)
}

func TestBatchAppliesInSelectionOrder(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(entity.RelationActors, api, staff(true), nil)

	sel := []Selection{{ChildID: "3", Attrs: Attrs{Role: "X"}}, {ChildID: "1"}, {ChildID: "2", Attrs: Attrs{Role: "Y"}}}
	result, err := m.AddBatch(context.Background(), "9", sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, result.Applied)
	assert.False(t, result.Partial())

	calls := api.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "X", calls[0].Role)
	assert.Equal(t, "", calls[1].Role)
	assert.Equal(t, "Y", calls[2].Role)
}

func TestBatchHonoursCancellation(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(entity.RelationGenres, api, staff(true), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := m.AddBatch(ctx, "1", selections("A", "B"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "A", result.Failed)
	assert.Equal(t, []string{"B"}, result.Skipped)
	assert.Empty(t, api.Calls())
}

func TestBusyIsSharedAcrossManagers(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	set := NewSet(api, staff(true))
	actors, _ := set.Get(entity.RelationActors)
	genres, _ := set.Get(entity.RelationGenres)

	assert.False(t, genres.IsBusy())

	done := make(chan error, 1)
	go func() { done <- actors.Add(context.Background(), "1", "2", Attrs{}) }()

	require.Eventually(t, genres.IsBusy, time.Second, time.Millisecond)
	assert.True(t, set.Busy.Active())

	close(api.block)
	require.NoError(t, <-done)
	assert.False(t, genres.IsBusy())
	assert.False(t, actors.Status().Busy)
}

func TestEventsPublishedAfterSuccess(t *testing.T) {
	api := &fakeAPI{failOn: map[string]error{"bad": errors.New("nope")}}
	pub := &recordingPublisher{}
	m := NewManager(entity.RelationActors, api, staff(true), nil, WithPublisher(pub))
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "1", "2", Attrs{Role: "Trinity"}))
	require.Error(t, m.Add(ctx, "1", "bad", Attrs{}))
	require.NoError(t, m.Remove(ctx, "1", "2"))

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.TypeRelationAdded, pub.events[0].EventType())
	assert.Equal(t, "Trinity", pub.events[0].Payload()["role"])
	assert.Equal(t, events.TypeRelationRemoved, pub.events[1].EventType())
}

func TestSetRejectsUnknownKind(t *testing.T) {
	set := NewSet(&fakeAPI{}, staff(true))
	_, err := set.Get(entity.RelationKind("writers"))
	require.ErrorIs(t, err, ErrInvalidKind)
}
