package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/webhook"
)

const cmdSetAvailability = "set_availability"

// AvailabilityStore определяет контракт записи доступности.
// Хранилище отклоняет true (ErrConflict), пока у спасателя есть активное назначение.
type AvailabilityStore interface {
	SetAvailability(ctx context.Context, responderID uuid.UUID, available bool) error
}

// AvailabilityService определяет контракт координатора доступности
type AvailabilityService interface {
	// ListAvailable пересчитывается из кеша при каждом вызове
	ListAvailable() ([]models.ResponderAvailability, error)
	ListResponders() ([]models.ResponderAvailability, error)
	SetAvailability(ctx context.Context, responderID uuid.UUID, available bool) (*Pending, error)
	Close()
}

type availabilityCommand struct {
	responderID uuid.UUID
	target      bool
	written     bool
}

type availabilityService struct {
	views    Views
	store    AvailabilityStore
	notifier webhook.WebhookPublisher
	logger   *logrus.Logger
	opts     Options

	mu       sync.Mutex
	commands *pendingSet[*availabilityCommand]
	stop     func()
}

func NewAvailabilityService(views Views, store AvailabilityStore, notifier webhook.WebhookPublisher, logger *logrus.Logger, opts Options) AvailabilityService {
	opts = opts.withDefaults()
	s := &availabilityService{
		views:    views,
		store:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
	s.commands = newPendingSet[*availabilityCommand](&s.mu, opts.PendingTTL, opts.Metrics)
	s.stop = views.Responders.Watch(s.onResponder)
	return s
}

// ListAvailable возвращает спасателей с is_available = true без активных назначений.
// Назначение проверяется отдельно: события разных сущностей не упорядочены,
// и принятое назначение может прийти раньше обновления доступности.
func (s *availabilityService) ListAvailable() ([]models.ResponderAvailability, error) {
	if !allReady(s.views.Responders, s.views.Assignments) {
		return nil, ErrUnavailable
	}
	busy := busyResponders(s.views.Assignments)
	out := make([]models.ResponderAvailability, 0)
	for _, r := range s.views.Responders.List() {
		if _, held := busy[r.ResponderID]; r.IsAvailable && !held {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *availabilityService) ListResponders() ([]models.ResponderAvailability, error) {
	if !s.views.Responders.Ready() {
		return nil, ErrUnavailable
	}
	return s.views.Responders.List(), nil
}

// SetAvailability записывает доступность и ничего не меняет локально:
// Pending разрешается, когда кеш покажет новое значение.
func (s *availabilityService) SetAvailability(ctx context.Context, responderID uuid.UUID, available bool) (*Pending, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "availability",
		"method":       "SetAvailability",
		"responder_id": responderID,
		"available":    available,
	})
	log.Info("Attempting to change availability")

	s.mu.Lock()
	noop, err := s.check(responderID, available)
	if err != nil || noop {
		s.mu.Unlock()
		s.opts.Metrics.CommandFinished(cmdSetAvailability, outcome(err))
		if err != nil {
			log.WithError(err).Warn("Availability change rejected")
			return nil, err
		}
		log.Info("Availability already has requested value")
		return ResolvedPending(responderID, nil), nil
	}
	cmd := &availabilityCommand{responderID: responderID, target: available}
	t := s.commands.add(responderID, cmdSetAvailability, cmd)
	s.mu.Unlock()

	if err := s.store.SetAvailability(ctx, responderID, available); err != nil {
		err = storeError(err)
		s.mu.Lock()
		s.finish(responderID, err)
		s.mu.Unlock()
		log.WithError(err).Error("Failed to persist availability")
		return nil, err
	}

	s.mu.Lock()
	cmd.written = true
	if _, live := s.commands.get(responderID); live {
		s.evaluate(t)
	}
	s.mu.Unlock()

	log.Info("Availability persisted, awaiting confirmation")
	return t.pending, nil
}

func (s *availabilityService) check(responderID uuid.UUID, available bool) (bool, error) {
	if !allReady(s.views.Responders, s.views.Assignments) {
		return false, ErrUnavailable
	}
	r, ok := s.views.Responders.Get(responderID)
	if !ok {
		return false, fmt.Errorf("responder %s: %w", responderID, ErrNotFound)
	}
	if _, busy := s.commands.get(responderID); busy {
		return false, fmt.Errorf("availability change for responder %s is already in flight: %w", responderID, ErrConflict)
	}
	if r.IsAvailable == available {
		return true, nil
	}
	if available && holdsActive(s.views.Assignments, responderID) {
		return false, fmt.Errorf("responder %s holds an active assignment: %w", responderID, ErrConflict)
	}
	return false, nil
}

func (s *availabilityService) onResponder(ch changefeed.Change[models.ResponderAvailability]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.Reset {
		for _, id := range s.commands.keys() {
			if t, ok := s.commands.get(id); ok {
				s.evaluate(t)
			}
		}
		return
	}
	if t, ok := s.commands.get(ch.ID); ok {
		s.evaluate(t)
	}
}

func (s *availabilityService) evaluate(t *tracked[*availabilityCommand]) {
	cmd := t.cmd
	if !cmd.written {
		return
	}
	r, ok := s.views.Responders.Get(cmd.responderID)
	switch {
	case !ok:
		s.finish(cmd.responderID, fmt.Errorf("responder %s was deleted: %w", cmd.responderID, ErrNotFound))
	case r.IsAvailable == cmd.target:
		s.finish(cmd.responderID, nil)
	}
}

func (s *availabilityService) finish(id uuid.UUID, err error) {
	t, ok := s.commands.finish(id, err)
	if !ok {
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"service":      "availability",
		"responder_id": id,
	})
	if err != nil {
		log.WithError(err).Warn("Availability change finished without confirmation")
		return
	}
	log.Info("Availability change confirmed")

	if s.notifier == nil {
		return
	}
	responderID, available := t.cmd.responderID, t.cmd.target
	event := webhook.NotificationEvent{
		Type:        webhook.EventAvailabilityChanged,
		ResponderID: &responderID,
		IsAvailable: &available,
		Timestamp:   s.opts.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			log.WithError(err).Warn("Failed to publish notification")
		}
	}()
}

func (s *availabilityService) Close() {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands.finishAll(fmt.Errorf("availability service closed: %w", ErrUnavailable))
}
