package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// Subscription владеет кешем одной сущности. Изменять кеш может только она,
// остальные компоненты читают через Get/List и наблюдают через Watch.
type Subscription[T Record] struct {
	sync   *Synchronizer[T]
	filter Filter[T]
	cache  *Cache[T]
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	streamMu sync.Mutex
	stream   Stream

	// closed защищен cache.mu: после его установки ни одно событие не применяется
	closed bool
	ready  atomic.Bool

	watchMu  sync.RWMutex
	watchers map[uint64]func(Change[T])
	nextID   uint64

	closeOnce sync.Once
}

func newSubscription[T Record](s *Synchronizer[T], filter Filter[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscription[T]{
		sync:     s,
		filter:   filter,
		cache:    NewCache[T](),
		log:      s.logger.WithFields(logrus.Fields{"component": "changefeed", "entity": s.entity}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		watchers: make(map[uint64]func(Change[T])),
	}
}

// Get возвращает запись из кеша
func (sub *Subscription[T]) Get(id uuid.UUID) (T, bool) { return sub.cache.Get(id) }

// List возвращает снимок кеша
func (sub *Subscription[T]) List() []T { return sub.cache.List() }

func (sub *Subscription[T]) Len() int { return sub.cache.Len() }

// Ready сообщает, что кеш загружен и поток подключен.
// Пока Ready ложно, состояние кеша может отставать от источника.
func (sub *Subscription[T]) Ready() bool { return sub.ready.Load() }

// Done закрывается, когда фоновая горутина подписки завершилась
func (sub *Subscription[T]) Done() <-chan struct{} { return sub.done }

// Watch регистрирует наблюдателя. Наблюдатель вызывается синхронно из горутины
// доставки после применения изменения, вне блокировок кеша.
func (sub *Subscription[T]) Watch(fn func(Change[T])) (stop func()) {
	sub.watchMu.Lock()
	id := sub.nextID
	sub.nextID++
	sub.watchers[id] = fn
	sub.watchMu.Unlock()

	return func() {
		sub.watchMu.Lock()
		delete(sub.watchers, id)
		sub.watchMu.Unlock()
	}
}

// Close прекращает применение событий и освобождает поток. Безопасен для
// повторного вызова и для вызова из наблюдателя во время доставки.
func (sub *Subscription[T]) Close() error {
	sub.closeOnce.Do(func() {
		sub.cache.mu.Lock()
		sub.closed = true
		sub.cache.mu.Unlock()

		sub.ready.Store(false)
		sub.cancel()
		sub.releaseStream()
	})
	return nil
}

func (sub *Subscription[T]) setStream(s Stream) {
	sub.streamMu.Lock()
	sub.stream = s
	sub.streamMu.Unlock()
}

func (sub *Subscription[T]) releaseStream() {
	sub.streamMu.Lock()
	s := sub.stream
	sub.stream = nil
	sub.streamMu.Unlock()
	if s != nil {
		if err := s.Close(); err != nil {
			sub.log.WithError(err).Warn("Failed to release change feed")
		}
	}
}

type seedResult[T Record] struct {
	records []T
	err     error
}

// attach открывает поток, загружает снимок и применяет накопленные за время
// загрузки события. Поток открывается до загрузки, чтобы не потерять изменения.
func (sub *Subscription[T]) attach() (Stream, error) {
	entity := sub.sync.entity
	stream, err := sub.sync.feed.Listen(sub.ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s feed: %w", entity, err)
	}
	sub.setStream(stream)

	seeded := make(chan seedResult[T], 1)
	go func() {
		records, err := sub.sync.source.Snapshot(sub.ctx)
		seeded <- seedResult[T]{records: records, err: err}
	}()

	var buffered []models.ChangeEvent
	events := stream.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				cause := stream.Err()
				sub.releaseStream()
				if cause == nil {
					cause = sub.ctx.Err()
				}
				if cause == nil {
					cause = ErrStreamClosed
				}
				return nil, fmt.Errorf("%s feed closed during seed: %w", entity, cause)
			}
			buffered = append(buffered, ev)

		case res := <-seeded:
			if res.err != nil {
				sub.releaseStream()
				return nil, fmt.Errorf("failed to seed %s: %w", entity, res.err)
			}
			if !sub.reset(res.records) {
				sub.releaseStream()
				return nil, context.Canceled
			}
			for _, ev := range buffered {
				sub.apply(ev)
			}
			sub.ready.Store(true)
			sub.sync.metrics.Reseeded(string(entity))
			sub.log.WithFields(logrus.Fields{
				"records":  len(res.records),
				"buffered": len(buffered),
			}).Info("Cache seeded")
			sub.notify(Change[T]{Reset: true})
			return stream, nil

		case <-sub.ctx.Done():
			sub.releaseStream()
			return nil, sub.ctx.Err()
		}
	}
}

func (sub *Subscription[T]) run(stream Stream) {
	defer close(sub.done)
	for {
		sub.consume(stream)
		cause := stream.Err()
		sub.releaseStream()
		if sub.ctx.Err() != nil {
			return
		}

		sub.ready.Store(false)
		sub.log.WithError(cause).Warn("Change feed disconnected, reseeding")

		next, err := sub.reconnect()
		if err != nil {
			return
		}
		stream = next
	}
}

func (sub *Subscription[T]) consume(stream Stream) {
	events := stream.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			sub.apply(ev)
		case <-sub.ctx.Done():
			return
		}
	}
}

// reconnect повторяет attach с экспоненциальной задержкой до успеха или Close.
// Непрерывность потока после обрыва не предполагается: всегда полная перезагрузка.
func (sub *Subscription[T]) reconnect() (Stream, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = sub.sync.initialInterval
	b.MaxInterval = sub.sync.maxInterval
	b.MaxElapsedTime = 0

	var stream Stream
	op := func() error {
		s, err := sub.attach()
		if err != nil {
			if sub.ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			sub.log.WithError(err).Warn("Reseed attempt failed")
			return err
		}
		stream = s
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, sub.ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

// apply применяет одно событие. Ошибки разбора не роняют подписку:
// событие отбрасывается, следующая перезагрузка восстановит состояние.
func (sub *Subscription[T]) apply(ev models.ChangeEvent) {
	entity := sub.sync.entity
	log := sub.log.WithFields(logrus.Fields{"operation": ev.Operation, "id": ev.ID})

	if ev.Entity != entity {
		log.WithField("event_entity", ev.Entity).Warn("Dropping change event for foreign entity")
		sub.sync.metrics.EventDropped(string(entity), "entity")
		return
	}

	switch ev.Operation {
	case models.OpInsert, models.OpUpdate:
		if ev.Operation == models.OpUpdate && sub.filter == nil {
			if _, ok := sub.cache.Get(ev.ID); !ok {
				log.Debug("Update for unknown record ignored")
				sub.sync.metrics.EventDropped(string(entity), "absent")
				return
			}
		}
		rec, err := sub.resolve(ev)
		if err != nil {
			switch {
			case sub.ctx.Err() != nil:
			case errors.Is(err, ErrNotFound):
				log.Debug("Record vanished before re-fetch")
				sub.sync.metrics.EventDropped(string(entity), "vanished")
			default:
				log.WithError(err).Warn("Dropping malformed change event")
				sub.sync.metrics.EventDropped(string(entity), "decode")
			}
			return
		}
		sub.upsert(ev.Operation, rec)

	case models.OpDelete:
		sub.remove(ev.ID)

	default:
		log.Warn("Dropping change event with unknown operation")
		sub.sync.metrics.EventDropped(string(entity), "operation")
	}
}

// resolve восстанавливает запись из события. Соединенные сущности и события
// без payload (слишком большая строка для уведомления) перечитываются из Source.
func (sub *Subscription[T]) resolve(ev models.ChangeEvent) (T, error) {
	if sub.sync.joined || len(ev.Payload) == 0 {
		return sub.sync.source.Fetch(sub.ctx, ev.ID)
	}
	return sub.sync.decode(ev)
}

func (sub *Subscription[T]) reset(records []T) bool {
	if sub.filter != nil {
		kept := records[:0:0]
		for _, rec := range records {
			if sub.filter(rec) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	sub.cache.mu.Lock()
	defer sub.cache.mu.Unlock()
	if sub.closed {
		return false
	}
	sub.cache.replace(records)
	return true
}

func (sub *Subscription[T]) upsert(op models.Operation, rec T) {
	entity := string(sub.sync.entity)
	keep := sub.filter == nil || sub.filter(rec)

	sub.cache.mu.Lock()
	if sub.closed {
		sub.cache.mu.Unlock()
		return
	}
	prev, existed := sub.cache.items[rec.Key()]

	switch {
	case existed && prev.Rev() > rec.Rev():
		sub.cache.mu.Unlock()
		sub.sync.metrics.EventDropped(entity, "stale")
		return

	case !keep:
		if existed {
			sub.cache.remove(rec.Key())
		}
		sub.cache.mu.Unlock()
		if existed {
			sub.sync.metrics.EventApplied(entity, string(models.OpDelete))
			sub.notify(Change[T]{Operation: models.OpDelete, ID: rec.Key(), Previous: prev, Existed: true})
		}
		return

	case !existed && op == models.OpUpdate && sub.filter == nil:
		sub.cache.mu.Unlock()
		sub.sync.metrics.EventDropped(entity, "absent")
		return
	}

	sub.cache.upsert(rec)
	sub.cache.mu.Unlock()

	// Повторная доставка insert становится обновлением
	if existed {
		op = models.OpUpdate
	} else {
		op = models.OpInsert
	}
	sub.sync.metrics.EventApplied(entity, string(op))
	sub.notify(Change[T]{Operation: op, ID: rec.Key(), Record: rec, Previous: prev, Existed: existed})
}

func (sub *Subscription[T]) remove(id uuid.UUID) {
	entity := string(sub.sync.entity)

	sub.cache.mu.Lock()
	if sub.closed {
		sub.cache.mu.Unlock()
		return
	}
	prev, existed := sub.cache.remove(id)
	sub.cache.mu.Unlock()

	if !existed {
		sub.sync.metrics.EventDropped(entity, "absent")
		return
	}
	sub.sync.metrics.EventApplied(entity, string(models.OpDelete))
	sub.notify(Change[T]{Operation: models.OpDelete, ID: id, Previous: prev, Existed: true})
}

func (sub *Subscription[T]) notify(ch Change[T]) {
	sub.watchMu.RLock()
	fns := make([]func(Change[T]), 0, len(sub.watchers))
	for _, fn := range sub.watchers {
		fns = append(fns, fn)
	}
	sub.watchMu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}
