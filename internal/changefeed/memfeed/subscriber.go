package memfeed

import (
	"context"
	"sync"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// subscriber - неограниченная очередь событий одного потока
type subscriber struct {
	mu     sync.Mutex
	queue  []models.ChangeEvent
	err    error
	signal chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{signal: make(chan struct{}, 1)}
}

func (s *subscriber) push(ev models.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context, emit func(models.ChangeEvent) bool) error {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		err := s.err
		s.mu.Unlock()

		for _, ev := range batch {
			if !emit(ev) {
				return nil
			}
		}
		if err != nil {
			return err
		}

		select {
		case <-s.signal:
		case <-ctx.Done():
			return nil
		}
	}
}
