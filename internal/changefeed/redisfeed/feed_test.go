package redisfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/memfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// batchFeed отдает пачки записей стрима через deliver, как это делает Feed
type batchFeed struct {
	batches chan []redis.XMessage
	listens atomic.Int32
	log     *logrus.Entry
}

func newBatchFeed() *batchFeed {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return &batchFeed{
		batches: make(chan []redis.XMessage),
		log:     logrus.NewEntry(logger),
	}
}

func (f *batchFeed) Listen(ctx context.Context, _ models.Entity) (changefeed.Stream, error) {
	f.listens.Add(1)
	pump := func(ctx context.Context, emit func(models.ChangeEvent) bool) error {
		for {
			select {
			case batch := <-f.batches:
				open, err := deliver(batch, emit, f.log)
				if err != nil || !open {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	}
	return changefeed.NewStream(ctx, pump, nil), nil
}

var seq atomic.Int64

func message(t *testing.T, ev models.ChangeEvent) redis.XMessage {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	id := strconv.FormatInt(seq.Add(1), 10) + "-0"
	return redis.XMessage{ID: id, Values: map[string]interface{}{eventField: string(raw)}}
}

func reportInsert(t *testing.T, rec models.AccidentReport) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	return message(t, models.ChangeEvent{
		Entity:    models.EntityAccidents,
		Operation: models.OpInsert,
		ID:        rec.ID,
		Version:   rec.Version,
		Payload:   payload,
	})
}

func newReport() models.AccidentReport {
	return models.AccidentReport{
		ID:       uuid.New(),
		Severity: models.SeverityHigh,
		Status:   models.StatusPending,
		Version:  1,
	}
}

func TestDeliver_ResetMarkerEndsStream(t *testing.T) {
	// Подготовка
	rec := newReport()
	msgs := []redis.XMessage{
		reportInsert(t, rec),
		message(t, models.ChangeEvent{Entity: models.EntityAccidents, Operation: models.OpReset}),
		reportInsert(t, newReport()),
	}
	var got []uuid.UUID
	emit := func(ev models.ChangeEvent) bool {
		got = append(got, ev.ID)
		return true
	}

	// Действие
	open, err := deliver(msgs, emit, newBatchFeed().log)

	// Проверки
	assert.False(t, open)
	assert.ErrorIs(t, err, changefeed.ErrContinuityLost)
	assert.Equal(t, []uuid.UUID{rec.ID}, got)
}

func TestDeliver_SkipsMalformedEntries(t *testing.T) {
	rec := newReport()
	msgs := []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{eventField: "{"}},
		reportInsert(t, rec),
	}
	var got []uuid.UUID

	open, err := deliver(msgs, func(ev models.ChangeEvent) bool {
		got = append(got, ev.ID)
		return true
	}, newBatchFeed().log)

	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, []uuid.UUID{rec.ID}, got)
}

func TestTrimmedBetween(t *testing.T) {
	tests := []struct {
		name       string
		maxDeleted string
		prev       string
		first      string
		want       bool
	}{
		{name: "nothing deleted", maxDeleted: "0-0", prev: "5-0", first: "6-0", want: false},
		{name: "redis without field", maxDeleted: "", prev: "5-0", first: "6-0", want: false},
		{name: "deleted before prev", maxDeleted: "4-3", prev: "5-0", first: "6-0", want: false},
		{name: "prev itself deleted", maxDeleted: "5-0", prev: "5-0", first: "6-0", want: false},
		{name: "gap trimmed", maxDeleted: "5-7", prev: "5-0", first: "6-0", want: true},
		{name: "trimmed from empty start", maxDeleted: "3-0", prev: "0-0", first: "9-0", want: true},
		{name: "read entries trimmed later", maxDeleted: "6-0", prev: "5-0", first: "6-0", want: false},
		{name: "malformed id", maxDeleted: "x", prev: "5-0", first: "6-0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trimmedBetween(tt.maxDeleted, tt.prev, tt.first))
		})
	}
}

func TestSubscription_ReseedsOnResetMarker(t *testing.T) {
	// Подготовка
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	feed := newBatchFeed()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	sync := changefeed.New[models.AccidentReport](models.EntityAccidents, table, feed, nil, changefeed.Options{
		Logger:          logger,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	sub, err := sync.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	defer sub.Close()

	seen := newReport()
	feed.batches <- []redis.XMessage{reportInsert(t, seen)}
	require.Eventually(t, func() bool {
		_, ok := sub.Get(seen.ID)
		return ok
	}, time.Second, time.Millisecond)

	// Действие: строка появилась в хранилище, но ее событие в стрим не попало
	lost, err := table.Insert(newReport())
	require.NoError(t, err)
	_, ok := sub.Get(lost.ID)
	require.False(t, ok)

	resets := make(chan struct{}, 4)
	stop := sub.Watch(func(ch changefeed.Change[models.AccidentReport]) {
		if ch.Reset {
			resets <- struct{}{}
		}
	})
	defer stop()
	feed.batches <- []redis.XMessage{
		message(t, models.ChangeEvent{Entity: models.EntityAccidents, Operation: models.OpReset}),
	}

	// Проверки
	select {
	case <-resets:
	case <-time.After(time.Second):
		t.Fatal("subscription did not reseed after reset marker")
	}
	got, ok := sub.Get(lost.ID)
	require.True(t, ok)
	assert.Equal(t, lost.Version, got.Version)
	assert.Equal(t, int32(2), feed.listens.Load())
	assert.True(t, sub.Ready())
}
