// Package changefeed держит материализованные кеши сущностей в согласии
// с авторитетным хранилищем: один полный снимок (seed) и далее поток
// изменений insert/update/delete, применяемый строго по порядку доставки.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

var (
	// ErrNotFound возвращается Source.Fetch, если запись отсутствует в хранилище
	ErrNotFound = errors.New("changefeed: record not found")
	// ErrStreamClosed - поток завершился без указания причины
	ErrStreamClosed = errors.New("changefeed: stream closed")
	// ErrContinuityLost - источник сообщил о пропуске событий; поток
	// завершается с этой ошибкой, и подписка перезагружает снимок
	ErrContinuityLost = errors.New("changefeed: stream continuity lost")
)

// Record - запись, которую можно держать в кеше
type Record interface {
	Key() uuid.UUID
	Rev() int64
}

// Source - авторитетный источник для полной загрузки и точечного перечитывания
type Source[T Record] interface {
	Snapshot(ctx context.Context) ([]T, error)
	Fetch(ctx context.Context, id uuid.UUID) (T, error)
}

// Feed открывает поток изменений одной таблицы
type Feed interface {
	Listen(ctx context.Context, entity models.Entity) (Stream, error)
}

// Stream - открытый поток изменений. Events закрывается при обрыве или Close,
// после этого Err сообщает причину обрыва (nil после Close).
type Stream interface {
	Events() <-chan models.ChangeEvent
	Err() error
	Close() error
}

// Decoder восстанавливает запись из полезной нагрузки события
type Decoder[T Record] func(ev models.ChangeEvent) (T, error)

// JSONDecoder разбирает Payload как JSON-представление T.
// Если в payload нет версии, берется версия из события.
func JSONDecoder[T Record]() Decoder[T] {
	return func(ev models.ChangeEvent) (T, error) {
		var rec T
		if len(ev.Payload) == 0 {
			return rec, fmt.Errorf("empty payload for %s %s", ev.Entity, ev.ID)
		}
		if err := json.Unmarshal(ev.Payload, &rec); err != nil {
			return rec, fmt.Errorf("failed to decode %s payload: %w", ev.Entity, err)
		}
		if rec.Key() != ev.ID {
			return rec, fmt.Errorf("payload id %s does not match event id %s", rec.Key(), ev.ID)
		}
		if rec.Rev() == 0 && ev.Version != 0 {
			if v, ok := any(rec).(interface{ WithRev(int64) T }); ok {
				rec = v.WithRev(ev.Version)
			}
		}
		return rec, nil
	}
}

// Filter ограничивает подписку подмножеством записей. nil - все записи.
type Filter[T Record] func(T) bool

// Change описывает одно изменение кеша для наблюдателей.
// Reset выставляется после полной перезагрузки: наблюдатель должен
// перечитать состояние целиком.
type Change[T Record] struct {
	Operation models.Operation
	ID        uuid.UUID
	Record    T
	Previous  T
	Existed   bool
	Reset     bool
}
