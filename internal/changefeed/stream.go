package changefeed

import (
	"context"
	"sync"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// PumpFunc читает внешний источник и передает события в emit.
// emit возвращает false, когда поток закрывается, и pump должен завершиться.
// Ненулевая ошибка pump означает обрыв соединения.
type PumpFunc func(ctx context.Context, emit func(models.ChangeEvent) bool) error

type pumpStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan models.ChangeEvent
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewStream запускает pump в отдельной горутине и возвращает Stream над ним.
// release вызывается ровно один раз после завершения pump.
func NewStream(ctx context.Context, pump PumpFunc, release func()) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &pumpStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan models.ChangeEvent),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		if release != nil {
			defer release()
		}

		emit := func(ev models.ChangeEvent) bool {
			select {
			case s.events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := pump(ctx, emit); err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *pumpStream) Events() <-chan models.ChangeEvent { return s.events }

// Err возвращает причину обрыва. Поток, завершившийся сам без ошибки,
// тоже считается оборванным: источник не должен заканчиваться.
func (s *pumpStream) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.ctx.Err() != nil {
		return nil
	}
	return ErrStreamClosed
}

// Close останавливает pump и дожидается освобождения ресурса
func (s *pumpStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
