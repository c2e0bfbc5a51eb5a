// Package redisfeed раздает потоки изменений через Redis Streams:
// Relay переносит события из исходного потока (обычно pgfeed) в стрим,
// Feed читает стрим блокирующим XREAD.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

const (
	streamPrefix = "changes:"
	eventField   = "event"
	readBatch    = 100
	defaultBlock = 5 * time.Second
)

// StreamKey возвращает ключ стрима для сущности
func StreamKey(entity models.Entity) string {
	return streamPrefix + string(entity)
}

// Feed читает стримы changes:<entity>
type Feed struct {
	client *redis.Client
	block  time.Duration
	logger *logrus.Logger
}

func NewFeed(client *redis.Client, logger *logrus.Logger) *Feed {
	return &Feed{client: client, block: defaultBlock, logger: logger}
}

// Listen фиксирует текущий конец стрима до возврата, чтобы события,
// добавленные во время загрузки снимка, попали в поток.
// Любая ошибка чтения завершает поток. Маркер сброса от Relay и записи,
// вытесненные MAXLEN до прочтения, завершают его с ErrContinuityLost.
func (f *Feed) Listen(ctx context.Context, entity models.Entity) (changefeed.Stream, error) {
	key := StreamKey(entity)
	lastID, err := f.tail(ctx, key)
	if err != nil {
		return nil, err
	}

	log := f.logger.WithFields(logrus.Fields{"component": "redisfeed", "stream": key})
	pump := func(ctx context.Context, emit func(models.ChangeEvent) bool) error {
		for {
			res, err := f.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Count:   readBatch,
				Block:   f.block,
			}).Result()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				return fmt.Errorf("failed to read %s: %w", key, err)
			}

			for _, stream := range res {
				msgs := stream.Messages
				if len(msgs) == 0 {
					continue
				}
				if err := f.checkTrim(ctx, key, lastID, msgs[0].ID); err != nil {
					return err
				}
				open, err := deliver(msgs, emit, log)
				if err != nil || !open {
					return err
				}
				lastID = msgs[len(msgs)-1].ID
			}
		}
	}
	return changefeed.NewStream(ctx, pump, nil), nil
}

// deliver передает события пачки в emit по порядку.
// false - поток закрывается.
func deliver(msgs []redis.XMessage, emit func(models.ChangeEvent) bool, log *logrus.Entry) (bool, error) {
	for _, msg := range msgs {
		ev, err := DecodeMessage(msg)
		if err != nil {
			log.WithError(err).WithField("message_id", msg.ID).Warn("Dropping malformed stream entry")
			continue
		}
		if ev.Operation == models.OpReset {
			return false, fmt.Errorf("reset marker %s: %w", msg.ID, changefeed.ErrContinuityLost)
		}
		if !emit(ev) {
			return false, nil
		}
	}
	return true, nil
}

// checkTrim проверяет, не удалил ли MAXLEN записи между prev и first.
// Redis до 7.0 не сообщает max-deleted-entry-id, тогда проверка пропускается.
func (f *Feed) checkTrim(ctx context.Context, key, prev, first string) error {
	info, err := f.client.XInfoStream(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", key, err)
	}
	if trimmedBetween(info.MaxDeletedEntryID, prev, first) {
		return fmt.Errorf("entries after %s were trimmed from %s: %w", prev, key, changefeed.ErrContinuityLost)
	}
	return nil
}

// trimmedBetween сообщает, лежит ли последняя удаленная запись строго
// между прочитанной prev и первой полученной first. Удаление идет с головы
// стрима, поэтому такие записи читатель не видел.
func trimmedBetween(maxDeleted, prev, first string) bool {
	deleted, ok := parseStreamID(maxDeleted)
	if !ok || deleted == (streamID{}) {
		return false
	}
	from, ok := parseStreamID(prev)
	if !ok {
		return false
	}
	to, ok := parseStreamID(first)
	if !ok {
		return false
	}
	return from.less(deleted) && deleted.less(to)
}

type streamID struct {
	ms, seq uint64
}

func (a streamID) less(b streamID) bool {
	if a.ms != b.ms {
		return a.ms < b.ms
	}
	return a.seq < b.seq
}

func parseStreamID(id string) (streamID, bool) {
	ms, seq, found := strings.Cut(id, "-")
	if !found {
		return streamID{}, false
	}
	m, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return streamID{}, false
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return streamID{}, false
	}
	return streamID{ms: m, seq: n}, true
}

func (f *Feed) tail(ctx context.Context, key string) (string, error) {
	last, err := f.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read tail of %s: %w", key, err)
	}
	if len(last) == 0 {
		return "0-0", nil
	}
	return last[0].ID, nil
}

// DecodeMessage извлекает событие из записи стрима
func DecodeMessage(msg redis.XMessage) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	raw, ok := msg.Values[eventField]
	if !ok {
		return ev, fmt.Errorf("stream entry %s has no %q field", msg.ID, eventField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return ev, fmt.Errorf("stream entry %s has unexpected %T payload", msg.ID, raw)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal stream entry %s: %w", msg.ID, err)
	}
	return ev, nil
}

// StreamPublisher добавляет события в стримы с приблизительным ограничением длины
type StreamPublisher struct {
	client *redis.Client
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: StreamKey(ev.Entity),
		Values: map[string]interface{}{eventField: payload},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish change event to Redis: %w", err)
	}
	return nil
}
