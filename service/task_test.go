package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

// fakeStore is an in-memory store with the same compare-and-swap semantics as
// the SQLite implementation. beforeUpdate, when set, runs once before the next
// Update call so tests can inject a competing writer between the service's
// version preflight and the store-level CAS.
type fakeStore struct {
	mu           sync.Mutex
	tasks        map[string]domain.Task
	updateCalls  int
	beforeUpdate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]domain.Task{}}
}

func (f *fakeStore) GetAll(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tasks[t.ID]; exists {
		return domain.Task{}, storage.ErrDuplicateID
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, fields domain.TaskFields, expectedVersion int64) (domain.Task, error) {
	if f.beforeUpdate != nil {
		hook := f.beforeUpdate
		f.beforeUpdate = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	if t.Version != expectedVersion {
		return domain.Task{}, storage.ErrVersionConflict
	}
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	if fields.Column != nil {
		t.Column = *fields.Column
	}
	if fields.Order != nil {
		t.Order = *fields.Order
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[id]
	delete(f.tasks, id)
	return ok, nil
}

func (f *fakeStore) MaxOrderInColumn(ctx context.Context, column domain.Column) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max float64
	for _, t := range f.tasks {
		if t.Column == column && t.Order > max {
			max = t.Order
		}
	}
	return max, nil
}

func (f *fakeStore) mustGet(t *testing.T, id string) domain.Task {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	require.True(t, ok, "task %s not in store", id)
	return task
}

func strPtr(s string) *string { return &s }

func colPtr(c domain.Column) *domain.Column { return &c }

func f64Ptr(v float64) *float64 { return &v }

func TestCreateAppendsToColumnEnd(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	assert.Equal(t, 0.5, a.Order, "first task of an empty column gets the seed")
	assert.Equal(t, int64(1), a.Version)

	b, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "B", Column: domain.ColumnTodo})
	require.NoError(t, err)
	assert.Equal(t, 1.5, b.Order, "second task appends after the first")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateHonorsExplicitOrder(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)

	task, err := svc.Create(context.Background(), domain.CreateTaskPayload{
		Title:  "A",
		Column: domain.ColumnTodo,
		Order:  f64Ptr(7.25),
	})
	require.NoError(t, err)
	assert.Equal(t, 7.25, task.Order)
}

func TestUpdateWithMatchingVersion(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)

	res, err := svc.Update(ctx, domain.UpdateTaskPayload{ID: created.ID, Title: strPtr("X"), Version: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, "X", res.Task.Title)
	assert.Equal(t, int64(2), res.Task.Version)
}

func TestUpdateStaleVersionConflictsWithoutWrite(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	_, err = svc.Update(ctx, domain.UpdateTaskPayload{ID: created.ID, Title: strPtr("first"), Version: 1})
	require.NoError(t, err)
	writesSoFar := store.updateCalls

	res, err := svc.Update(ctx, domain.UpdateTaskPayload{ID: created.ID, Title: strPtr("stale"), Version: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, domain.ConflictMoveEdit, res.Conflict.ConflictType)
	assert.Equal(t, int64(2), res.Conflict.Task.Version, "conflict carries the server's current copy")
	assert.Equal(t, "first", res.Conflict.Task.Title)
	assert.Equal(t, writesSoFar, store.updateCalls, "a stale token must not reach the store")
}

func TestUpdateMissingTaskIsBenignNoop(t *testing.T) {
	svc := NewTaskService(newFakeStore())

	res, err := svc.Update(context.Background(), domain.UpdateTaskPayload{ID: "gone", Title: strPtr("X"), Version: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	assert.Nil(t, res.Conflict)
}

func TestUpdateLosesStoreLevelRace(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)

	// A competing writer commits between the service's preflight check and
	// the store's compare-and-swap.
	store.beforeUpdate = func() {
		store.mu.Lock()
		defer store.mu.Unlock()
		racer := store.tasks[created.ID]
		racer.Title = "racer"
		racer.Version++
		store.tasks[created.ID] = racer
	}

	res, err := svc.Update(ctx, domain.UpdateTaskPayload{ID: created.ID, Title: strPtr("loser"), Version: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, domain.ConflictMoveEdit, res.Conflict.ConflictType)
	assert.Equal(t, "racer", res.Conflict.Task.Title)
	assert.Equal(t, int64(2), res.Conflict.Task.Version)
}

func TestMoveToEmptyColumnSeedsOrder(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)

	res, err := svc.Move(ctx, domain.MoveTaskPayload{ID: created.ID, NewColumn: domain.ColumnDone, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.Equal(t, domain.ColumnDone, res.Task.Column)
	assert.Equal(t, 0.5, res.Task.Order)
	assert.Equal(t, int64(2), res.Task.Version)
}

func TestMoveAppendsAfterDestinationTail(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	moving, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateTaskPayload{Title: "B", Column: domain.ColumnDone})
	require.NoError(t, err)
	tail, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "C", Column: domain.ColumnDone})
	require.NoError(t, err)

	res, err := svc.Move(ctx, domain.MoveTaskPayload{ID: moving.ID, NewColumn: domain.ColumnDone, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.Equal(t, tail.Order+1, res.Task.Order)
}

func TestMoveStaleVersionConflicts(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	_, err = svc.Move(ctx, domain.MoveTaskPayload{ID: created.ID, NewColumn: domain.ColumnDone, Version: 1})
	require.NoError(t, err)

	res, err := svc.Move(ctx, domain.MoveTaskPayload{ID: created.ID, NewColumn: domain.ColumnInProgress, Version: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, domain.ConflictMoveMove, res.Conflict.ConflictType)
	assert.Equal(t, domain.ColumnDone, res.Conflict.Task.Column)
}

func TestConcurrentMovesExactlyOneWins(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	columns := []domain.Column{domain.ColumnDone, domain.ColumnInProgress}
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Move(ctx, domain.MoveTaskPayload{
				ID:        created.ID,
				NewColumn: columns[i],
				Version:   1,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var applied, conflicted int
	for i := range results {
		require.NoError(t, errs[i])
		switch {
		case results[i].Task != nil:
			applied++
			assert.Equal(t, int64(2), results[i].Task.Version)
		case results[i].Conflict != nil:
			conflicted++
			assert.Equal(t, domain.ConflictMoveMove, results[i].Conflict.ConflictType)
			assert.Equal(t, int64(2), results[i].Conflict.Task.Version, "loser sees the winner's state")
		default:
			t.Fatalf("result %d decided neither way", i)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, conflicted)
}

func TestReorderChangesOnlyOrder(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Description: "keep", Column: domain.ColumnTodo})
	require.NoError(t, err)

	res, err := svc.Reorder(ctx, domain.ReorderTaskPayload{TaskID: created.ID, NewOrder: 0.25, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.Equal(t, 0.25, res.Task.Order)
	assert.Equal(t, "keep", res.Task.Description)
	assert.Equal(t, domain.ColumnTodo, res.Task.Column)

	stale, err := svc.Reorder(ctx, domain.ReorderTaskPayload{TaskID: created.ID, NewOrder: 0.125, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, stale.Conflict)
	assert.Equal(t, domain.ConflictReorder, stale.Conflict.ConflictType)
}

func TestDeleteAlwaysWins(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	_, err = svc.Update(ctx, domain.UpdateTaskPayload{ID: created.ID, Title: strPtr("edited"), Version: 1})
	require.NoError(t, err)

	// No version accompanies the delete; it wins over the edit above.
	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestResolveConflictServerWinsPlacement(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Description: "server desc", Column: domain.ColumnTodo})
	require.NoError(t, err)
	moved, err := svc.Move(ctx, domain.MoveTaskPayload{ID: created.ID, NewColumn: domain.ColumnDone, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, moved.Task)

	resolved, err := svc.ResolveConflict(ctx, domain.ResolveConflictPayload{
		TaskID:        created.ID,
		ClientVersion: 1,
		ClientUpdates: domain.TaskFields{
			Title:  strPtr("client title"),
			Column: colPtr(domain.ColumnTodo),
			Order:  f64Ptr(99),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "client title", resolved.Title, "non-placement client fields are kept")
	assert.Equal(t, domain.ColumnDone, resolved.Column, "server column wins on disagreement")
	assert.Equal(t, moved.Task.Order, resolved.Order, "server order wins on disagreement")
	assert.Equal(t, moved.Task.Version+1, resolved.Version)
}

func TestResolveConflictMissingTaskFailsHard(t *testing.T) {
	svc := NewTaskService(newFakeStore())

	_, err := svc.ResolveConflict(context.Background(), domain.ResolveConflictPayload{TaskID: "gone"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRebalanceColumn(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	ids := make([]string, 3)
	for i, order := range []float64{1, 1.00001, 1.00002} {
		task, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "T", Column: domain.ColumnTodo, Order: f64Ptr(order)})
		require.NoError(t, err)
		ids[i] = task.ID
	}

	changed, err := svc.RebalanceColumn(ctx, domain.ColumnTodo)
	require.NoError(t, err)
	assert.True(t, changed)

	for i, id := range ids {
		task := store.mustGet(t, id)
		assert.Equal(t, float64(i), task.Order, "task %d re-assigned an integer rank", i)
		assert.Equal(t, int64(2), task.Version, "rebalance goes through the version-checked path")
	}
}

func TestRebalanceColumnNoopWhenSpaced(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	for _, order := range []float64{0.5, 0.75, 0.875, 0.9375} {
		_, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "T", Column: domain.ColumnTodo, Order: f64Ptr(order)})
		require.NoError(t, err)
	}
	writesBefore := store.updateCalls

	changed, err := svc.RebalanceColumn(ctx, domain.ColumnTodo)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, writesBefore, store.updateCalls)
}

// Mirrors the full cross-client scenario: two creates with computed orders, a
// move with a recomputed destination position, then a stale edit from a client
// that never saw the move.
func TestEndToEndConflictScenario(t *testing.T) {
	store := newFakeStore()
	svc := NewTaskService(store)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "A", Column: domain.ColumnTodo})
	require.NoError(t, err)
	assert.Equal(t, 0.5, a.Order)
	assert.Equal(t, int64(1), a.Version)

	b, err := svc.Create(ctx, domain.CreateTaskPayload{Title: "B", Column: domain.ColumnTodo})
	require.NoError(t, err)
	assert.Equal(t, 1.5, b.Order)

	moved, err := svc.Move(ctx, domain.MoveTaskPayload{ID: a.ID, NewColumn: domain.ColumnDone, Version: 1})
	require.NoError(t, err)
	require.NotNil(t, moved.Task)
	assert.Equal(t, 0.5, moved.Task.Order)
	assert.Equal(t, int64(2), moved.Task.Version)

	res, err := svc.Update(ctx, domain.UpdateTaskPayload{ID: a.ID, Title: strPtr("stale edit"), Version: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, domain.ConflictMoveEdit, res.Conflict.ConflictType)
	assert.Equal(t, int64(2), res.Conflict.Task.Version)
	assert.Equal(t, domain.ColumnDone, res.Conflict.Task.Column)
}
