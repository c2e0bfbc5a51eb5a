package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shenikar/dispatch_coordination_system/internal/metrics"
)

// ErrPending возвращает Pending.Err, пока подтверждение не получено
var ErrPending = errors.New("command is pending confirmation")

// Pending - результат команды, который разрешается только подтвержденным
// изменением в кеше (или ошибкой), но не локальным оптимистичным состоянием.
type Pending struct {
	id   uuid.UUID
	done chan struct{}
	once sync.Once
	err  error
}

// NewPending создает неразрешенный результат
func NewPending(id uuid.UUID) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

// ResolvedPending - результат команды, не требующей записи
func ResolvedPending(id uuid.UUID, err error) *Pending {
	p := NewPending(id)
	p.resolve(err)
	return p
}

// ID - идентификатор записи, которую затрагивает команда
// (назначение, спасатель или происшествие).
func (p *Pending) ID() uuid.UUID { return p.id }

func (p *Pending) Done() <-chan struct{} { return p.done }

// Err возвращает итог команды или ErrPending до подтверждения
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return ErrPending
	}
}

// Wait ждет подтверждения не дольше ctx. Отмена ctx не отменяет саму команду.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// tracked - команда, ожидающая подтверждения
type tracked[C any] struct {
	cmd     C
	name    string
	pending *Pending
	timer   *time.Timer
}

// pendingSet хранит незавершенные команды сервиса. Все методы вызываются
// под мьютексом сервиса, который передается в конструктор для таймеров TTL.
type pendingSet[C any] struct {
	mu      sync.Locker
	ttl     time.Duration
	metrics *metrics.Metrics
	items   map[uuid.UUID]*tracked[C]
}

func newPendingSet[C any](mu sync.Locker, ttl time.Duration, m *metrics.Metrics) *pendingSet[C] {
	return &pendingSet[C]{mu: mu, ttl: ttl, metrics: m, items: make(map[uuid.UUID]*tracked[C])}
}

func (s *pendingSet[C]) add(key uuid.UUID, name string, cmd C) *tracked[C] {
	t := &tracked[C]{cmd: cmd, name: name, pending: NewPending(key)}
	s.items[key] = t
	s.metrics.PendingAdd(1)
	if s.ttl > 0 {
		t.timer = time.AfterFunc(s.ttl, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.items[key] == t {
				s.finish(key, fmt.Errorf("confirmation not observed within %v: %w", s.ttl, ErrUnavailable))
			}
		})
	}
	return t
}

func (s *pendingSet[C]) get(key uuid.UUID) (*tracked[C], bool) {
	t, ok := s.items[key]
	return t, ok
}

// finish снимает команду и разрешает ее Pending
func (s *pendingSet[C]) finish(key uuid.UUID, err error) (*tracked[C], bool) {
	t, ok := s.items[key]
	if !ok {
		return nil, false
	}
	delete(s.items, key)
	if t.timer != nil {
		t.timer.Stop()
	}
	s.metrics.PendingAdd(-1)
	s.metrics.CommandFinished(t.name, outcome(err))
	t.pending.resolve(err)
	return t, true
}

// keys возвращает копию ключей: обход может снимать команды
func (s *pendingSet[C]) keys() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.items))
	for key := range s.items {
		out = append(out, key)
	}
	return out
}

func (s *pendingSet[C]) len() int { return len(s.items) }

func (s *pendingSet[C]) finishAll(err error) {
	for _, key := range s.keys() {
		s.finish(key, err)
	}
}
