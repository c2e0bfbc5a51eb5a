// Package eventbus - типизированная рассылка событий подписчикам в памяти процесса
package eventbus

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 64

// Bus рассылает события всем подписчикам без блокировки издателя.
// Если буфер подписчика переполнен, событие для него теряется,
// а подписчик помечается как отставший.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscriber[T]]struct{}
	closed bool
}

// Subscriber - канал одного получателя
type Subscriber[T any] struct {
	ch     chan T
	lagged atomic.Bool
}

// C возвращает канал событий. Канал закрывается при отписке или закрытии шины.
func (s *Subscriber[T]) C() <-chan T { return s.ch }

// Lagged сообщает, были ли потеряны события, и сбрасывает признак
func (s *Subscriber[T]) Lagged() bool { return s.lagged.Swap(false) }

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*Subscriber[T]]struct{})}
}

func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.lagged.Store(true)
		}
	}
}

// Subscribe регистрирует получателя с буфером указанного размера (<= 0 - по умолчанию)
func (b *Bus[T]) Subscribe(buffer int) *Subscriber[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &Subscriber[T]{ch: make(chan T, buffer)}
	b.mu.Lock()
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub
}

func (b *Bus[T]) Unsubscribe(sub *Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Close закрывает шину и каналы всех подписчиков
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// Len - число подписчиков
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
