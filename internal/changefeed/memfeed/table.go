// Package memfeed - таблица в памяти, одновременно Source и Feed для changefeed.
// Используется в тестах и для локальной сборки без Postgres/Redis.
package memfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// Versioned - запись, которой таблица может присвоить версию
type Versioned[T any] interface {
	changefeed.Record
	WithRev(v int64) T
}

// Table хранит строки одной сущности и рассылает события открытым потокам
// в порядке записи.
type Table[T Versioned[T]] struct {
	entity models.Entity

	mu      sync.Mutex
	rows    map[uuid.UUID]T
	order   []uuid.UUID
	version int64
	subs    map[*subscriber]struct{}

	snapshotErr error
	listenErr   error

	paused bool
	held   []models.ChangeEvent

	// AfterSnapshot вызывается после чтения строк снимка и до возврата из Snapshot
	AfterSnapshot func()
}

func NewTable[T Versioned[T]](entity models.Entity) *Table[T] {
	return &Table[T]{
		entity: entity,
		rows:   make(map[uuid.UUID]T),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Insert добавляет строку с новой версией и рассылает insert
func (t *Table[T]) Insert(rec T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[rec.Key()]; ok {
		return rec, fmt.Errorf("memfeed: duplicate key %s in %s", rec.Key(), t.entity)
	}
	t.version++
	rec = rec.WithRev(t.version)
	t.rows[rec.Key()] = rec
	t.order = append(t.order, rec.Key())
	t.broadcast(t.event(models.OpInsert, rec))
	return rec, nil
}

// Update заменяет существующую строку и рассылает update
func (t *Table[T]) Update(rec T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[rec.Key()]; !ok {
		return rec, changefeed.ErrNotFound
	}
	t.version++
	rec = rec.WithRev(t.version)
	t.rows[rec.Key()] = rec
	t.broadcast(t.event(models.OpUpdate, rec))
	return rec, nil
}

// Modify атомарно читает строку, передает ее в fn и сохраняет результат.
// Ошибка fn отменяет запись.
func (t *Table[T]) Modify(id uuid.UUID, fn func(T) (T, error)) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[id]
	if !ok {
		return cur, changefeed.ErrNotFound
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	t.version++
	next = next.WithRev(t.version)
	t.rows[id] = next
	t.broadcast(t.event(models.OpUpdate, next))
	return next, nil
}

// Delete удаляет строку и рассылает delete
func (t *Table[T]) Delete(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.rows[id]
	if !ok {
		return changefeed.ErrNotFound
	}
	delete(t.rows, id)
	for i, key := range t.order {
		if key == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.version++
	t.broadcast(t.event(models.OpDelete, rec.WithRev(t.version)))
	return nil
}

func (t *Table[T]) Get(id uuid.UUID) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.rows[id]
	return rec, ok
}

// Rows возвращает строки, удовлетворяющие pred (nil - все)
func (t *Table[T]) Rows(pred func(T) bool) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		if pred == nil || pred(t.rows[id]) {
			out = append(out, t.rows[id])
		}
	}
	return out
}

// Emit рассылает произвольное событие без изменения строк
func (t *Table[T]) Emit(ev models.ChangeEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcast(ev)
}

// FailSnapshots заставляет Snapshot возвращать err (nil снимает ошибку)
func (t *Table[T]) FailSnapshots(err error) {
	t.mu.Lock()
	t.snapshotErr = err
	t.mu.Unlock()
}

// FailListen заставляет Listen возвращать err (nil снимает ошибку)
func (t *Table[T]) FailListen(err error) {
	t.mu.Lock()
	t.listenErr = err
	t.mu.Unlock()
}

// Disconnect обрывает все открытые потоки с ошибкой err
func (t *Table[T]) Disconnect(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		sub.fail(err)
		delete(t.subs, sub)
	}
}

// Listeners - число открытых потоков
func (t *Table[T]) Listeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *Table[T]) Snapshot(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.snapshotErr != nil {
		err := t.snapshotErr
		t.mu.Unlock()
		return nil, err
	}
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	hook := t.AfterSnapshot
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (t *Table[T]) Fetch(ctx context.Context, id uuid.UUID) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	rec, ok := t.Get(id)
	if !ok {
		return rec, changefeed.ErrNotFound
	}
	return rec, nil
}

func (t *Table[T]) Listen(ctx context.Context, entity models.Entity) (changefeed.Stream, error) {
	if entity != t.entity {
		return nil, fmt.Errorf("memfeed: table %s cannot serve %s", t.entity, entity)
	}
	t.mu.Lock()
	if t.listenErr != nil {
		err := t.listenErr
		t.mu.Unlock()
		return nil, err
	}
	sub := newSubscriber()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	release := func() {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}
	return changefeed.NewStream(ctx, sub.pump, release), nil
}

func (t *Table[T]) event(op models.Operation, rec T) models.ChangeEvent {
	payload, _ := json.Marshal(rec)
	return models.ChangeEvent{
		Entity:    t.entity,
		Operation: op,
		ID:        rec.Key(),
		Version:   rec.Rev(),
		Payload:   payload,
	}
}

// Pause задерживает рассылку событий до Resume. Записи применяются сразу,
// поэтому Snapshot и Get уже видят их.
func (t *Table[T]) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume рассылает задержанные события в исходном порядке
func (t *Table[T]) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
	held := t.held
	t.held = nil
	for _, ev := range held {
		t.broadcast(ev)
	}
}

func (t *Table[T]) broadcast(ev models.ChangeEvent) {
	if t.paused {
		t.held = append(t.held, ev)
		return
	}
	for sub := range t.subs {
		sub.push(ev)
	}
}
