package service

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/geogroup"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/webhook"
)

const cmdCreateReport = "create_report"

// ReportStore определяет контракт приема сообщений о происшествиях
type ReportStore interface {
	CreateReport(ctx context.Context, report models.AccidentReport) error
}

// ReportService определяет контракт чтения кеша происшествий и приема новых
type ReportService interface {
	CreateReport(ctx context.Context, report models.AccidentReport) (*Pending, error)
	ListReports() ([]models.AccidentReport, error)
	GetReport(id uuid.UUID) (models.AccidentReport, error)
	Groups() ([]geogroup.ReportGroup, error)
	Close()
}

type reportService struct {
	views    Views
	store    ReportStore
	notifier webhook.WebhookPublisher
	logger   *logrus.Logger
	opts     Options

	mu       sync.Mutex
	commands *pendingSet[models.AccidentReport]
	stop     func()
}

func NewReportService(views Views, store ReportStore, notifier webhook.WebhookPublisher, logger *logrus.Logger, opts Options) ReportService {
	opts = opts.withDefaults()
	s := &reportService{
		views:    views,
		store:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
	s.commands = newPendingSet[models.AccidentReport](&s.mu, opts.PendingTTL, opts.Metrics)
	s.stop = views.Reports.Watch(s.onReport)
	return s
}

// CreateReport сохраняет новое происшествие в статусе PENDING.
// Запись появляется в кеше только после события insert.
func (s *reportService) CreateReport(ctx context.Context, report models.AccidentReport) (*Pending, error) {
	report.ID = uuid.New()
	report.Status = models.StatusPending
	now := s.opts.Now().UTC()
	report.CreatedAt, report.UpdatedAt = now, now

	log := s.logger.WithFields(logrus.Fields{
		"service":   "report",
		"method":    "CreateReport",
		"report_id": report.ID,
		"severity":  report.Severity,
	})
	log.Info("Attempting to create a new report")

	if err := validateReport(report); err != nil {
		s.opts.Metrics.CommandFinished(cmdCreateReport, outcome(err))
		log.WithError(err).Warn("Report rejected")
		return nil, err
	}
	if !s.views.Reports.Ready() {
		s.opts.Metrics.CommandFinished(cmdCreateReport, outcome(ErrUnavailable))
		return nil, ErrUnavailable
	}

	s.mu.Lock()
	t := s.commands.add(report.ID, cmdCreateReport, report)
	s.mu.Unlock()

	if err := s.store.CreateReport(ctx, report); err != nil {
		err = storeError(err)
		s.mu.Lock()
		s.commands.finish(report.ID, err)
		s.mu.Unlock()
		log.WithError(err).Error("Failed to create report in repository")
		return nil, err
	}

	s.mu.Lock()
	s.evaluate(report.ID)
	s.mu.Unlock()

	log.Info("Report persisted, awaiting confirmation")
	return t.pending, nil
}

func (s *reportService) onReport(ch changefeed.Change[models.AccidentReport]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.Reset {
		for _, id := range s.commands.keys() {
			s.evaluate(id)
		}
		return
	}
	s.evaluate(ch.ID)
}

func (s *reportService) evaluate(id uuid.UUID) {
	if _, ok := s.commands.get(id); !ok {
		return
	}
	if _, seen := s.views.Reports.Get(id); !seen {
		return
	}
	t, _ := s.commands.finish(id, nil)
	s.logger.WithFields(logrus.Fields{"service": "report", "report_id": id}).Info("Report confirmed")

	if s.notifier == nil {
		return
	}
	reportID := t.cmd.ID
	event := webhook.NotificationEvent{
		Type:       webhook.EventReportCreated,
		AccidentID: &reportID,
		Timestamp:  s.opts.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish notification")
		}
	}()
}

func (s *reportService) ListReports() ([]models.AccidentReport, error) {
	if !s.views.Reports.Ready() {
		return nil, ErrUnavailable
	}
	return s.views.Reports.List(), nil
}

func (s *reportService) GetReport(id uuid.UUID) (models.AccidentReport, error) {
	if !s.views.Reports.Ready() {
		return models.AccidentReport{}, ErrUnavailable
	}
	r, ok := s.views.Reports.Get(id)
	if !ok {
		return r, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// Groups группирует происшествия с координатами для отображения маркеров
func (s *reportService) Groups() ([]geogroup.ReportGroup, error) {
	if !s.views.Reports.Ready() {
		return nil, ErrUnavailable
	}
	reports := s.views.Reports.List()
	located := reports[:0]
	for _, r := range reports {
		if hasCoordinates(r) {
			located = append(located, r)
		}
	}
	return geogroup.Group(located), nil
}

func (s *reportService) Close() {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands.finishAll(fmt.Errorf("report service closed: %w", ErrUnavailable))
}

func validateReport(r models.AccidentReport) error {
	if !r.Severity.Valid() {
		return fmt.Errorf("unknown severity %q: %w", r.Severity, ErrInvalidInput)
	}
	if !validCoordinate(r.Latitude, r.Longitude) {
		return fmt.Errorf("coordinate (%v, %v) is out of range: %w", r.Latitude, r.Longitude, ErrInvalidInput)
	}
	return nil
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// hasCoordinates отсекает записи без координат (нулевая точка считается отсутствием)
func hasCoordinates(r models.AccidentReport) bool {
	return validCoordinate(r.Latitude, r.Longitude) && !(r.Latitude == 0 && r.Longitude == 0)
}
