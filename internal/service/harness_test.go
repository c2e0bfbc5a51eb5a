package service_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/memfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
	"github.com/shenikar/dispatch_coordination_system/internal/service/mocks"
	"github.com/shenikar/dispatch_coordination_system/internal/webhook"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

// world - общее хранилище, которое видят все процессы-координаторы теста
type world struct {
	reports     *memfeed.Table[models.AccidentReport]
	assignments *memfeed.Table[models.DispatchAssignment]
	responders  *memfeed.Table[models.ResponderAvailability]
}

func newWorld() *world {
	return &world{
		reports:     memfeed.NewTable[models.AccidentReport](models.EntityAccidents),
		assignments: memfeed.NewTable[models.DispatchAssignment](models.EntityAssignments),
		responders:  memfeed.NewTable[models.ResponderAvailability](models.EntityResponders),
	}
}

func subscribe[T memfeed.Versioned[T]](t *testing.T, entity models.Entity, table *memfeed.Table[T], joined bool) *changefeed.Subscription[T] {
	t.Helper()
	opts := changefeed.Options{
		Joined:          joined,
		Logger:          quietLogger(),
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}
	sub, err := changefeed.New[T](entity, table, table, nil, opts).Subscribe(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// views открывает кеши одного процесса-координатора
func (w *world) views(t *testing.T) service.Views {
	t.Helper()
	return service.Views{
		Reports:     subscribe(t, models.EntityAccidents, w.reports, false),
		Assignments: subscribe(t, models.EntityAssignments, w.assignments, false),
		Responders:  subscribe(t, models.EntityResponders, w.responders, true),
	}
}

func (w *world) addReport(t *testing.T, sev models.Severity, lat, lon float64) models.AccidentReport {
	t.Helper()
	r, err := w.reports.Insert(models.AccidentReport{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Severity:  sev,
		Latitude:  lat,
		Longitude: lon,
		Status:    models.StatusPending,
	})
	require.NoError(t, err)
	return r
}

func (w *world) addResponder(t *testing.T, available bool) models.ResponderAvailability {
	t.Helper()
	id := uuid.New()
	r, err := w.responders.Insert(models.ResponderAvailability{
		ResponderID:       id,
		IsAvailable:       available,
		Latitude:          8.63,
		Longitude:         126.09,
		LocationUpdatedAt: time.Now().UTC(),
		Profile:           models.Profile{ID: id, FullName: "Responder " + id.String()[:8], Role: "responder"},
	})
	require.NoError(t, err)
	return r
}

func (w *world) addAssignment(t *testing.T, reportID, responderID uuid.UUID, rt models.ResponseType) models.DispatchAssignment {
	t.Helper()
	a, err := w.assignments.Insert(models.DispatchAssignment{
		ID:           uuid.New(),
		AccidentID:   reportID,
		ResponderID:  responderID,
		ResponseType: rt,
		RespondedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return a
}

// memStore применяет записи к таблицам world так же, как это делает репозиторий
type memStore struct {
	w *world
	// unique эмулирует частичный уникальный индекс по активным назначениям
	unique bool
	mu     sync.Mutex
}

func (m *memStore) InsertAssignment(_ context.Context, a models.DispatchAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unique {
		active := m.w.assignments.Rows(func(x models.DispatchAssignment) bool {
			return x.AccidentID == a.AccidentID && x.ResponseType.Active()
		})
		if len(active) > 0 {
			return fmt.Errorf("duplicate key value violates unique constraint: %w", service.ErrConflict)
		}
	}
	if _, err := m.w.assignments.Insert(a); err != nil {
		return err
	}
	_, err := m.w.reports.Modify(a.AccidentID, func(r models.AccidentReport) (models.AccidentReport, error) {
		r.Status = models.StatusDispatched
		return r, nil
	})
	return err
}

func (m *memStore) ApplyTransition(_ context.Context, tr service.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.w.assignments.Modify(tr.AssignmentID, func(a models.DispatchAssignment) (models.DispatchAssignment, error) {
		if a.ResponseType != tr.From {
			return a, fmt.Errorf("assignment is %s: %w", a.ResponseType, service.ErrConflict)
		}
		a.ResponseType = tr.To
		return a, nil
	})
	if err != nil {
		return err
	}
	if tr.ReportStatus != "" {
		if _, err := m.w.reports.Modify(tr.AccidentID, func(r models.AccidentReport) (models.AccidentReport, error) {
			r.Status = tr.ReportStatus
			return r, nil
		}); err != nil {
			return err
		}
	}
	if tr.Available != nil {
		return m.setAvailability(tr.ResponderID, *tr.Available)
	}
	return nil
}

func (m *memStore) SetAvailability(_ context.Context, responderID uuid.UUID, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setAvailability(responderID, available)
}

func (m *memStore) setAvailability(responderID uuid.UUID, available bool) error {
	_, err := m.w.responders.Modify(responderID, func(r models.ResponderAvailability) (models.ResponderAvailability, error) {
		r.IsAvailable = available
		r.LocationUpdatedAt = time.Now().UTC()
		return r, nil
	})
	return err
}

func (m *memStore) CreateReport(_ context.Context, r models.AccidentReport) error {
	_, err := m.w.reports.Insert(r)
	return err
}

func testOptions() service.Options {
	return service.Options{
		PendingTTL:    time.Minute,
		NotifyTimeout: time.Second,
		WriteTimeout:  time.Second,
	}
}

// dispatchStore - мок хранилища, который пишет в world
func dispatchStore(ctrl *gomock.Controller, mem *memStore) *mocks.MockDispatchStore {
	store := mocks.NewMockDispatchStore(ctrl)
	store.EXPECT().InsertAssignment(gomock.Any(), gomock.Any()).DoAndReturn(mem.InsertAssignment).AnyTimes()
	store.EXPECT().ApplyTransition(gomock.Any(), gomock.Any()).DoAndReturn(mem.ApplyTransition).AnyTimes()
	return store
}

func newDispatchService(t *testing.T, views service.Views, store service.DispatchStore) service.DispatchService {
	t.Helper()
	svc := service.NewDispatchService(views, store, webhook.NopPublisher{}, quietLogger(), testOptions())
	t.Cleanup(svc.Close)
	return svc
}

func newAvailabilityService(t *testing.T, views service.Views, store service.AvailabilityStore) service.AvailabilityService {
	t.Helper()
	svc := service.NewAvailabilityService(views, store, webhook.NopPublisher{}, quietLogger(), testOptions())
	t.Cleanup(svc.Close)
	return svc
}

func confirm(t *testing.T, p *service.Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return p.Wait(ctx)
}

func responderIDs(rs []models.ResponderAvailability) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ResponderID)
	}
	return ids
}
