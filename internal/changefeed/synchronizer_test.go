package changefeed_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/memfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func testOptions() changefeed.Options {
	return changefeed.Options{
		Logger:          quietLogger(),
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}
}

func newReport(sev models.Severity) models.AccidentReport {
	return models.AccidentReport{
		ID:        uuid.New(),
		Severity:  sev,
		Latitude:  8.63,
		Longitude: 126.093,
		Status:    models.StatusPending,
	}
}

func subscribeReports(t *testing.T, table *memfeed.Table[models.AccidentReport], filter changefeed.Filter[models.AccidentReport]) *changefeed.Subscription[models.AccidentReport] {
	t.Helper()
	sync := changefeed.New[models.AccidentReport](models.EntityAccidents, table, table, nil, testOptions())
	sub, err := sync.Subscribe(context.Background(), filter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func reportEvent(op models.Operation, rec models.AccidentReport) models.ChangeEvent {
	payload, _ := json.Marshal(rec)
	return models.ChangeEvent{Entity: models.EntityAccidents, Operation: op, ID: rec.ID, Version: rec.Version, Payload: payload}
}

// flush дожидается применения всех ранее отправленных событий:
// события одной сущности применяются строго по порядку.
func flush(t *testing.T, table *memfeed.Table[models.AccidentReport], sub *changefeed.Subscription[models.AccidentReport]) {
	t.Helper()
	sentinel := newReport(models.SeverityMinor)
	table.Emit(reportEvent(models.OpInsert, sentinel))
	require.Eventually(t, func() bool {
		_, ok := sub.Get(sentinel.ID)
		return ok
	}, waitFor, tick)
	table.Emit(reportEvent(models.OpDelete, sentinel))
	require.Eventually(t, func() bool {
		_, ok := sub.Get(sentinel.ID)
		return !ok
	}, waitFor, tick)
}

func TestSubscribe_SeedsCache(t *testing.T) {
	// Подготовка
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	r1, _ := table.Insert(newReport(models.SeverityMinor))
	r2, _ := table.Insert(newReport(models.SeverityHigh))

	// Действие
	sub := subscribeReports(t, table, nil)

	// Проверки
	assert.True(t, sub.Ready())
	assert.Equal(t, []models.AccidentReport{r1, r2}, sub.List())
	assert.Equal(t, 1, table.Listeners())
}

func TestApply_InsertUpdateDelete(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)

	rec, err := table.Insert(newReport(models.SeverityMinor))
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, ok := sub.Get(rec.ID); return ok }, waitFor, tick)

	rec.Status = models.StatusDispatched
	_, err = table.Update(rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := sub.Get(rec.ID)
		return got.Status == models.StatusDispatched
	}, waitFor, tick)

	require.NoError(t, table.Delete(rec.ID))
	require.Eventually(t, func() bool { return sub.Len() == 0 }, waitFor, tick)
}

func TestApply_DuplicateInsertIsIdempotent(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)
	rec := newReport(models.SeverityHigh)
	rec.Version = 1

	table.Emit(reportEvent(models.OpInsert, rec))
	flush(t, table, sub)
	afterFirst := sub.List()

	table.Emit(reportEvent(models.OpInsert, rec))
	flush(t, table, sub)

	assert.Equal(t, afterFirst, sub.List())
	assert.Equal(t, 1, sub.Len())
}

func TestApply_UpdateAndDeleteOfAbsentAreNoops(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)
	ghost := newReport(models.SeverityCritical)

	table.Emit(reportEvent(models.OpUpdate, ghost))
	table.Emit(reportEvent(models.OpDelete, newReport(models.SeverityMinor)))
	flush(t, table, sub)

	_, ok := sub.Get(ghost.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, sub.Len())
	assert.True(t, sub.Ready())
}

func TestApply_StaleUpdateSkipped(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	rec := newReport(models.SeverityMinor)
	rec, _ = table.Insert(rec)
	rec.Severity = models.SeverityHigh
	rec, _ = table.Update(rec)
	sub := subscribeReports(t, table, nil)

	stale := rec
	stale.Severity = models.SeverityMinor
	stale.Version = rec.Version - 1
	table.Emit(reportEvent(models.OpUpdate, stale))
	flush(t, table, sub)

	got, ok := sub.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, got.Severity)
}

func TestApply_MalformedAndForeignEventsDropped(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)

	table.Emit(models.ChangeEvent{Entity: models.EntityAccidents, Operation: models.OpInsert, ID: uuid.New(), Payload: []byte("not json")})
	table.Emit(models.ChangeEvent{Entity: models.EntityAssignments, Operation: models.OpInsert, ID: uuid.New(), Payload: []byte("{}")})
	table.Emit(models.ChangeEvent{Entity: models.EntityAccidents, Operation: "truncate", ID: uuid.New()})
	flush(t, table, sub)

	assert.Equal(t, 0, sub.Len())
	assert.True(t, sub.Ready())
}

func TestApply_EventWithoutPayloadIsFetched(t *testing.T) {
	// Подготовка: лента и источник разделены, чтобы событие без payload пришло только из ленты
	feed := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	source := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sync := changefeed.New[models.AccidentReport](models.EntityAccidents, source, feed, nil, testOptions())
	sub, err := sync.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	rec, err := source.Insert(newReport(models.SeverityCritical))
	require.NoError(t, err)

	// Действие
	feed.Emit(models.ChangeEvent{Entity: models.EntityAccidents, Operation: models.OpInsert, ID: rec.ID, Version: rec.Version})

	// Проверки
	require.Eventually(t, func() bool { _, ok := sub.Get(rec.ID); return ok }, waitFor, tick)
	got, _ := sub.Get(rec.ID)
	assert.Equal(t, models.SeverityCritical, got.Severity)
}

func TestSeed_EventsDuringLoadAreNotDropped(t *testing.T) {
	// Подготовка: строка появляется после чтения снимка, но до его возврата
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	seeded, _ := table.Insert(newReport(models.SeverityMinor))
	late := newReport(models.SeverityCritical)
	fired := false
	table.AfterSnapshot = func() {
		if !fired {
			fired = true
			_, _ = table.Insert(late)
		}
	}

	// Действие
	sub := subscribeReports(t, table, nil)

	// Проверки
	require.Eventually(t, func() bool { _, ok := sub.Get(late.ID); return ok }, waitFor, tick)
	_, ok := sub.Get(seeded.ID)
	assert.True(t, ok)
}

func TestSeed_FailureReleasesFeed(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	table.FailSnapshots(errors.New("db down"))
	sync := changefeed.New[models.AccidentReport](models.EntityAccidents, table, table, nil, testOptions())

	sub, err := sync.Subscribe(context.Background(), nil)

	require.Error(t, err)
	assert.Nil(t, sub)
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 0, table.Listeners())
}

func TestSubscribe_CanceledContext(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sync := changefeed.New[models.AccidentReport](models.EntityAccidents, table, table, nil, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sync.Subscribe(ctx, nil)

	require.Error(t, err)
	assert.Equal(t, 0, table.Listeners())
}

func TestReseed_AfterDisconnect(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)
	resets := make(chan struct{}, 8)
	stop := sub.Watch(func(ch changefeed.Change[models.AccidentReport]) {
		if ch.Reset {
			resets <- struct{}{}
		}
	})
	defer stop()

	// Обрыв: переподключение пока невозможно
	table.FailListen(errors.New("network unreachable"))
	table.Disconnect(errors.New("connection reset"))
	require.Eventually(t, func() bool { return !sub.Ready() }, waitFor, tick)

	// Изменение, пропущенное потоком
	missed, _ := table.Insert(newReport(models.SeverityHigh))
	_, ok := sub.Get(missed.ID)
	assert.False(t, ok)

	// Восстановление связи
	table.FailListen(nil)
	require.Eventually(t, sub.Ready, waitFor, tick)
	_, ok = sub.Get(missed.ID)
	assert.True(t, ok)
	select {
	case <-resets:
	case <-time.After(waitFor):
		t.Fatal("reset notification not delivered")
	}
}

func TestClose_ReleasesFeedAndStopsApplying(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.Equal(t, 0, table.Listeners())
	assert.False(t, sub.Ready())
	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription goroutine did not exit")
	}

	_, _ = table.Insert(newReport(models.SeverityMinor))
	assert.Equal(t, 0, sub.Len())
}

func TestClose_FromWatcherDuringDelivery(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	sub := subscribeReports(t, table, nil)
	sub.Watch(func(ch changefeed.Change[models.AccidentReport]) {
		if !ch.Reset {
			_ = sub.Close()
		}
	})

	first, _ := table.Insert(newReport(models.SeverityMinor))
	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("close from watcher deadlocked")
	}
	_, _ = table.Insert(newReport(models.SeverityMinor))

	_, ok := sub.Get(first.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, sub.Len())
	assert.Equal(t, 0, table.Listeners())
}

func TestFilter_RecordLeavesAndEntersView(t *testing.T) {
	table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
	open := func(r models.AccidentReport) bool { return r.Status != models.StatusResolved }
	rec, _ := table.Insert(newReport(models.SeverityHigh))
	closed := newReport(models.SeverityMinor)
	closed.Status = models.StatusResolved
	closed, _ = table.Insert(closed)

	sub := subscribeReports(t, table, open)
	require.Equal(t, 1, sub.Len())

	rec.Status = models.StatusResolved
	_, _ = table.Update(rec)
	require.Eventually(t, func() bool { return sub.Len() == 0 }, waitFor, tick)

	closed.Status = models.StatusPending
	_, _ = table.Update(closed)
	require.Eventually(t, func() bool { _, ok := sub.Get(closed.ID); return ok }, waitFor, tick)
}

func TestJoined_RefetchesInsteadOfDecoding(t *testing.T) {
	table := memfeed.NewTable[models.ResponderAvailability](models.EntityResponders)
	failing := func(models.ChangeEvent) (models.ResponderAvailability, error) {
		return models.ResponderAvailability{}, errors.New("partial payload")
	}
	opts := testOptions()
	opts.Joined = true
	sync := changefeed.New[models.ResponderAvailability](models.EntityResponders, table, table, failing, opts)
	sub, err := sync.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	defer sub.Close()

	resp := models.ResponderAvailability{
		ResponderID: uuid.New(),
		IsAvailable: true,
		Profile:     models.Profile{FullName: "Juan Dela Cruz"},
	}
	_, err = table.Insert(resp)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := sub.Get(resp.ResponderID)
		return ok && got.Profile.FullName == "Juan Dela Cruz"
	}, waitFor, tick)
}

func TestProperty_DeletedRecordsNeverRemain(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}

	for round := 0; round < 20; round++ {
		table := memfeed.NewTable[models.AccidentReport](models.EntityAccidents)
		sub := subscribeReports(t, table, nil)

		lastOp := make(map[uuid.UUID]models.Operation)
		present := make(map[uuid.UUID]bool)
		ops := []models.Operation{models.OpInsert, models.OpUpdate, models.OpDelete}
		for i := 0; i < 40; i++ {
			id := ids[rng.Intn(len(ids))]
			op := ops[rng.Intn(len(ops))]
			rec := models.AccidentReport{ID: id, Severity: models.SeverityMinor, Version: int64(i + 1)}
			table.Emit(reportEvent(op, rec))
			lastOp[id] = op
			switch op {
			case models.OpInsert:
				present[id] = true
			case models.OpDelete:
				present[id] = false
			}
		}
		flush(t, table, sub)

		for _, id := range ids {
			_, ok := sub.Get(id)
			if lastOp[id] == models.OpDelete {
				assert.False(t, ok, "round %d: deleted record %s remains", round, id)
			}
			assert.Equal(t, present[id], ok, "round %d: record %s", round, id)
		}
		require.NoError(t, sub.Close())
	}
}
