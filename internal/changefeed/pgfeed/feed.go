// Package pgfeed - поток изменений поверх LISTEN/NOTIFY Postgres.
// Уведомления формирует триггер notify_change (см. migrations).
package pgfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

const releaseTimeout = 5 * time.Second

// Feed держит по одному соединению из пула на каждый открытый поток
type Feed struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func New(pool *pgxpool.Pool, logger *logrus.Logger) *Feed {
	return &Feed{pool: pool, logger: logger}
}

// Channel возвращает имя канала NOTIFY для таблицы
func Channel(entity models.Entity) string {
	return string(entity) + "_changes"
}

// Listen занимает соединение, подписывается на канал таблицы и отдает поток.
// Ошибка ожидания уведомления завершает поток с ошибкой - это обрыв.
func (f *Feed) Listen(ctx context.Context, entity models.Entity) (changefeed.Stream, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}

	channel := pgx.Identifier{Channel(entity)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	log := f.logger.WithFields(logrus.Fields{"component": "pgfeed", "channel": channel})
	log.Debug("Listening for changes")

	pump := func(ctx context.Context, emit func(models.ChangeEvent) bool) error {
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to wait for notification on %s: %w", channel, err)
			}
			ev, err := ParseNotification(n.Payload)
			if err != nil {
				log.WithError(err).Warn("Dropping malformed notification")
				continue
			}
			if !emit(ev) {
				return nil
			}
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		// Соединение не должно вернуться в пул с активной подпиской
		if _, err := conn.Exec(releaseCtx, "UNLISTEN *"); err != nil {
			_ = conn.Conn().Close(releaseCtx)
		}
		conn.Release()
	}

	return changefeed.NewStream(ctx, pump, release), nil
}

// ParseNotification разбирает полезную нагрузку pg_notify
func ParseNotification(payload string) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if ev.Entity == "" {
		return ev, fmt.Errorf("notification has no entity")
	}
	if ev.ID == uuid.Nil {
		return ev, fmt.Errorf("notification for %s has no id", ev.Entity)
	}
	switch ev.Operation {
	case models.OpInsert, models.OpUpdate, models.OpDelete:
	default:
		return ev, fmt.Errorf("unknown operation %q", ev.Operation)
	}
	// payload: null приходит для удалений и слишком больших строк
	if string(ev.Payload) == "null" {
		ev.Payload = nil
	}
	return ev, nil
}
