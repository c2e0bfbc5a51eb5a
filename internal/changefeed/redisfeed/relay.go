package redisfeed

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// Publisher - получатель пересылаемых событий
type Publisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// Relay переносит события из исходного потока в Publisher,
// позволяя многим процессам делить одного слушателя Postgres.
// После каждого подключения к источнику Relay публикует маркер OpReset:
// за время переподключения уведомления могли пропасть, и читатели
// стрима должны перезагрузить снимок.
type Relay struct {
	source changefeed.Feed
	pub    Publisher
	logger *logrus.Logger

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewRelay(source changefeed.Feed, pub Publisher, logger *logrus.Logger) *Relay {
	return &Relay{
		source:          source,
		pub:             pub,
		logger:          logger,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// Run пересылает события перечисленных сущностей до отмены ctx
func (r *Relay) Run(ctx context.Context, entities ...models.Entity) error {
	var wg sync.WaitGroup
	for _, entity := range entities {
		wg.Add(1)
		go func(entity models.Entity) {
			defer wg.Done()
			r.relay(ctx, entity)
		}(entity)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Relay) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

func (r *Relay) relay(ctx context.Context, entity models.Entity) {
	log := r.logger.WithFields(logrus.Fields{"component": "relay", "entity": entity})
	listenBackOff := r.newBackOff(ctx)

	for ctx.Err() == nil {
		stream, err := r.source.Listen(ctx, entity)
		if err != nil {
			delay := listenBackOff.NextBackOff()
			log.WithError(err).Warnf("Failed to listen, retrying in %v", delay)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		listenBackOff.Reset()

		marker := models.ChangeEvent{Entity: entity, Operation: models.OpReset}
		if err := r.publish(ctx, marker, log); err != nil {
			_ = stream.Close()
			return
		}
		log.Info("Relaying changes")

		r.forward(ctx, stream, log)
		cause := stream.Err()
		_ = stream.Close()
		if ctx.Err() == nil {
			log.WithError(cause).Warn("Source feed disconnected")
		}
	}
}

// forward публикует события по порядку. Неудачная публикация повторяется:
// пропуск события нарушил бы порядок для подписчиков.
func (r *Relay) forward(ctx context.Context, stream changefeed.Stream, log *logrus.Entry) {
	for ev := range stream.Events() {
		if err := r.publish(ctx, ev, log); err != nil {
			return
		}
	}
}

// publish повторяет публикацию до успеха или отмены ctx
func (r *Relay) publish(ctx context.Context, ev models.ChangeEvent, log *logrus.Entry) error {
	op := func() error { return r.pub.Publish(ctx, ev) }
	notify := func(err error, delay time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"operation": ev.Operation,
			"id":        ev.ID,
		}).Warnf("Publish failed, retrying in %v", delay)
	}
	return backoff.RetryNotify(op, r.newBackOff(ctx), notify)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
