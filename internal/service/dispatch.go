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

// DispatchStatus - производный статус происшествия для консоли диспетчера
type DispatchStatus string

const (
	StatusIdle     DispatchStatus = "idle"
	StatusWaiting  DispatchStatus = "waiting"
	StatusAccepted DispatchStatus = "accepted"
)

// DeriveStatus вычисляет статус по действующему назначению (nil - назначения нет)
func DeriveStatus(a *models.DispatchAssignment) DispatchStatus {
	if a == nil {
		return StatusIdle
	}
	switch a.ResponseType {
	case models.ResponseDispatched:
		return StatusWaiting
	case models.ResponseAccepted:
		return StatusAccepted
	default:
		return StatusIdle
	}
}

// ReportDispatch - состояние назначения происшествия по подтвержденным данным
type ReportDispatch struct {
	ReportID   uuid.UUID
	Status     DispatchStatus
	Assignment *models.DispatchAssignment
}

// Transition - условная запись перехода назначения.
// Хранилище применяет ее атомарно и только если назначение находится в состоянии From,
// иначе возвращает ErrConflict. Пустой ReportStatus и nil Available не изменяются.
type Transition struct {
	AssignmentID uuid.UUID
	AccidentID   uuid.UUID
	ResponderID  uuid.UUID
	From         models.ResponseType
	To           models.ResponseType
	ReportStatus models.AccidentStatus
	Available    *bool
}

// DispatchStore определяет контракт записи назначений
type DispatchStore interface {
	// InsertAssignment создает назначение dispatched и переводит происшествие в DISPATCHED
	InsertAssignment(ctx context.Context, a models.DispatchAssignment) error
	ApplyTransition(ctx context.Context, t Transition) error
}

// DispatchService определяет контракт машины состояний назначения
type DispatchService interface {
	Dispatch(ctx context.Context, reportID, responderID uuid.UUID) (*Pending, error)
	Accept(ctx context.Context, assignmentID uuid.UUID) (*Pending, error)
	Reject(ctx context.Context, assignmentID uuid.UUID) (*Pending, error)
	Resolve(ctx context.Context, assignmentID uuid.UUID) (*Pending, error)
	Status(reportID uuid.UUID) (ReportDispatch, error)
	ListAssignments() ([]models.DispatchAssignment, error)
	Close()
}

type commandKind string

const (
	cmdDispatch commandKind = "dispatch"
	cmdAccept   commandKind = "accept"
	cmdReject   commandKind = "reject"
	cmdResolve  commandKind = "resolve"
)

type transitionRule struct {
	from      models.ResponseType
	to        models.ResponseType
	report    models.AccidentStatus
	available bool
	event     webhook.EventType
}

var transitionRules = map[commandKind]transitionRule{
	cmdAccept: {
		from: models.ResponseDispatched, to: models.ResponseAccepted,
		report: models.StatusInProgress, available: false, event: webhook.EventDispatchAccepted,
	},
	cmdReject: {
		from: models.ResponseDispatched, to: models.ResponseRejected,
		report: models.StatusPending, available: true, event: webhook.EventDispatchRejected,
	},
	cmdResolve: {
		from: models.ResponseAccepted, to: models.ResponseResolved,
		report: models.StatusResolved, available: true, event: webhook.EventDispatchResolved,
	},
}

type dispatchCommand struct {
	kind       commandKind
	assignment models.DispatchAssignment
	// written - запись в хранилище завершилась успешно
	written bool
	// withdraw - назначение проиграло гонку до завершения записи и должно быть отозвано
	withdraw bool
}

type dispatchService struct {
	views    Views
	store    DispatchStore
	notifier webhook.WebhookPublisher
	logger   *logrus.Logger
	opts     Options

	mu       sync.Mutex
	commands *pendingSet[*dispatchCommand]
	byReport map[uuid.UUID]uuid.UUID
	stop     func()
}

// NewDispatchService создает машину состояний. Команды разрешаются наблюдением
// за кешем назначений, поэтому сервис подписывается на views.Assignments.
func NewDispatchService(views Views, store DispatchStore, notifier webhook.WebhookPublisher, logger *logrus.Logger, opts Options) DispatchService {
	opts = opts.withDefaults()
	s := &dispatchService{
		views:    views,
		store:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		byReport: make(map[uuid.UUID]uuid.UUID),
	}
	s.commands = newPendingSet[*dispatchCommand](&s.mu, opts.PendingTTL, opts.Metrics)
	s.stop = views.Assignments.Watch(s.onAssignment)
	return s
}

// Dispatch назначает спасателя на происшествие. Команда считается выполненной,
// только когда поток изменений подтвердит назначение, и проигрывает (ErrConflict),
// если раньше подтвердится другое активное назначение того же происшествия.
func (s *dispatchService) Dispatch(ctx context.Context, reportID, responderID uuid.UUID) (*Pending, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "dispatch",
		"method":       "Dispatch",
		"report_id":    reportID,
		"responder_id": responderID,
	})
	log.Info("Attempting to dispatch responder")

	s.mu.Lock()
	cmd, err := s.checkDispatch(reportID, responderID)
	if err != nil {
		s.mu.Unlock()
		s.opts.Metrics.CommandFinished(string(cmdDispatch), outcome(err))
		log.WithError(err).Warn("Dispatch rejected")
		return nil, err
	}
	t := s.commands.add(cmd.assignment.ID, string(cmdDispatch), cmd)
	s.byReport[reportID] = cmd.assignment.ID
	s.mu.Unlock()

	if err := s.store.InsertAssignment(ctx, cmd.assignment); err != nil {
		err = storeError(err)
		s.mu.Lock()
		s.finish(cmd.assignment.ID, err)
		s.mu.Unlock()
		log.WithError(err).Error("Failed to persist assignment")
		return nil, err
	}

	s.mu.Lock()
	cmd.written = true
	if cmd.withdraw {
		s.withdraw(cmd.assignment)
	} else if _, live := s.commands.get(cmd.assignment.ID); live {
		s.evaluate(t)
	}
	s.mu.Unlock()

	log.WithField("assignment_id", cmd.assignment.ID).Info("Assignment persisted, awaiting confirmation")
	return t.pending, nil
}

func (s *dispatchService) checkDispatch(reportID, responderID uuid.UUID) (*dispatchCommand, error) {
	if !allReady(s.views.Reports, s.views.Assignments, s.views.Responders) {
		return nil, ErrUnavailable
	}

	report, ok := s.views.Reports.Get(reportID)
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if report.Status == models.StatusResolved {
		return nil, fmt.Errorf("report %s is resolved: %w", reportID, ErrConflict)
	}
	if s.dispatchInFlight(reportID) {
		return nil, fmt.Errorf("dispatch for report %s is already in flight: %w", reportID, ErrConflict)
	}
	if a, ok := authoritative(s.views.Assignments, reportID); ok {
		return nil, fmt.Errorf("report %s already has %s assignment %s: %w", reportID, a.ResponseType, a.ID, ErrConflict)
	}

	responder, ok := s.views.Responders.Get(responderID)
	if !ok {
		return nil, fmt.Errorf("responder %s: %w", responderID, ErrNotFound)
	}
	if !responder.IsAvailable {
		return nil, fmt.Errorf("responder %s is unavailable: %w", responderID, ErrConflict)
	}
	if holdsActive(s.views.Assignments, responderID) || s.responderInFlight(responderID) {
		return nil, fmt.Errorf("responder %s already holds an assignment: %w", responderID, ErrConflict)
	}

	return &dispatchCommand{
		kind: cmdDispatch,
		assignment: models.DispatchAssignment{
			ID:           uuid.New(),
			AccidentID:   reportID,
			ResponderID:  responderID,
			ResponseType: models.ResponseDispatched,
			RespondedAt:  s.opts.Now().UTC(),
		},
	}, nil
}

func (s *dispatchService) dispatchInFlight(reportID uuid.UUID) bool {
	id, ok := s.byReport[reportID]
	if !ok {
		return false
	}
	if _, live := s.commands.get(id); live {
		return true
	}
	delete(s.byReport, reportID)
	return false
}

func (s *dispatchService) responderInFlight(responderID uuid.UUID) bool {
	for _, id := range s.byReport {
		if t, ok := s.commands.get(id); ok && t.cmd.assignment.ResponderID == responderID {
			return true
		}
	}
	return false
}

func (s *dispatchService) Accept(ctx context.Context, assignmentID uuid.UUID) (*Pending, error) {
	return s.transition(ctx, cmdAccept, assignmentID)
}

func (s *dispatchService) Reject(ctx context.Context, assignmentID uuid.UUID) (*Pending, error) {
	return s.transition(ctx, cmdReject, assignmentID)
}

func (s *dispatchService) Resolve(ctx context.Context, assignmentID uuid.UUID) (*Pending, error) {
	return s.transition(ctx, cmdResolve, assignmentID)
}

// transition записывает переход назначения вместе с побочными эффектами
// (статус происшествия, доступность спасателя) одной условной записью.
func (s *dispatchService) transition(ctx context.Context, kind commandKind, assignmentID uuid.UUID) (*Pending, error) {
	rule := transitionRules[kind]
	log := s.logger.WithFields(logrus.Fields{
		"service":       "dispatch",
		"method":        string(kind),
		"assignment_id": assignmentID,
	})
	log.Info("Attempting assignment transition")

	s.mu.Lock()
	a, err := s.checkTransition(kind, rule, assignmentID)
	if err != nil {
		s.mu.Unlock()
		s.opts.Metrics.CommandFinished(string(kind), outcome(err))
		log.WithError(err).Warn("Transition rejected")
		return nil, err
	}
	cmd := &dispatchCommand{kind: kind, assignment: a}
	t := s.commands.add(a.ID, string(kind), cmd)
	s.mu.Unlock()

	available := rule.available
	err = s.store.ApplyTransition(ctx, Transition{
		AssignmentID: a.ID,
		AccidentID:   a.AccidentID,
		ResponderID:  a.ResponderID,
		From:         rule.from,
		To:           rule.to,
		ReportStatus: rule.report,
		Available:    &available,
	})
	if err != nil {
		err = storeError(err)
		s.mu.Lock()
		s.finish(a.ID, err)
		s.mu.Unlock()
		log.WithError(err).Error("Failed to persist transition")
		return nil, err
	}

	s.mu.Lock()
	cmd.written = true
	if _, live := s.commands.get(a.ID); live {
		s.evaluate(t)
	}
	s.mu.Unlock()

	log.WithField("to", rule.to).Info("Transition persisted, awaiting confirmation")
	return t.pending, nil
}

func (s *dispatchService) checkTransition(kind commandKind, rule transitionRule, id uuid.UUID) (models.DispatchAssignment, error) {
	if !s.views.Assignments.Ready() {
		return models.DispatchAssignment{}, ErrUnavailable
	}
	a, ok := s.views.Assignments.Get(id)
	if !ok {
		return a, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if _, busy := s.commands.get(id); busy {
		return a, fmt.Errorf("command for assignment %s is already in flight: %w", id, ErrConflict)
	}
	if a.ResponseType != rule.from {
		return a, fmt.Errorf("assignment %s is %s, %s requires %s: %w", id, a.ResponseType, kind, rule.from, ErrConflict)
	}
	if kind == cmdAccept {
		if cur, ok := authoritative(s.views.Assignments, a.AccidentID); ok && cur.ID != a.ID {
			return a, fmt.Errorf("assignment %s is superseded by %s: %w", id, cur.ID, ErrConflict)
		}
	}
	return a, nil
}

// onAssignment вызывается синхронно после применения изменения кеша назначений
func (s *dispatchService) onAssignment(ch changefeed.Change[models.DispatchAssignment]) {
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
	rec := changed(ch)
	if id, ok := s.byReport[rec.AccidentID]; ok && id != ch.ID {
		if t, ok := s.commands.get(id); ok {
			s.evaluate(t)
		}
	}
}

// evaluate сверяет команду с подтвержденным состоянием кеша. Вызывается под mu.
func (s *dispatchService) evaluate(t *tracked[*dispatchCommand]) {
	cmd := t.cmd
	mine, seen := s.views.Assignments.Get(cmd.assignment.ID)

	if cmd.kind == cmdDispatch {
		s.evaluateDispatch(cmd, mine, seen)
		return
	}
	if !cmd.written {
		return
	}

	rule := transitionRules[cmd.kind]
	switch {
	case !seen:
		s.finish(cmd.assignment.ID, fmt.Errorf("assignment %s was deleted: %w", cmd.assignment.ID, ErrNotFound))
	case mine.ResponseType == rule.to,
		cmd.kind == cmdAccept && mine.ResponseType == models.ResponseResolved:
		s.finish(cmd.assignment.ID, nil)
	case mine.ResponseType != rule.from:
		s.finish(cmd.assignment.ID, fmt.Errorf("assignment %s moved to %s: %w", mine.ID, mine.ResponseType, ErrConflict))
	}
}

// evaluateDispatch решает гонку диспетчеров. Пока собственное назначение не видно,
// любое другое активное назначение того же происшествия пришло по потоку раньше
// и побеждает. Если видны оба (после перезагрузки), побеждает раннее по Precedes.
func (s *dispatchService) evaluateDispatch(cmd *dispatchCommand, mine models.DispatchAssignment, seen bool) {
	for _, other := range activeFor(s.views.Assignments, cmd.assignment.AccidentID) {
		if other.ID == cmd.assignment.ID {
			continue
		}
		if !seen || other.Precedes(mine) {
			err := fmt.Errorf("report %s was dispatched to responder %s first: %w",
				cmd.assignment.AccidentID, other.ResponderID, ErrConflict)
			s.finish(cmd.assignment.ID, err)
			if !seen || mine.ResponseType == models.ResponseDispatched {
				if cmd.written {
					s.withdraw(cmd.assignment)
				} else {
					cmd.withdraw = true
				}
			}
			return
		}
	}
	if seen {
		s.finish(cmd.assignment.ID, nil)
	}
}

// withdraw отзывает проигравшее назначение в фоне
func (s *dispatchService) withdraw(a models.DispatchAssignment) {
	log := s.logger.WithFields(logrus.Fields{
		"service":       "dispatch",
		"method":        "withdraw",
		"assignment_id": a.ID,
		"report_id":     a.AccidentID,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()
		err := s.store.ApplyTransition(ctx, Transition{
			AssignmentID: a.ID,
			AccidentID:   a.AccidentID,
			ResponderID:  a.ResponderID,
			From:         models.ResponseDispatched,
			To:           models.ResponseRejected,
		})
		if err != nil {
			log.WithError(err).Error("Failed to withdraw losing assignment")
			return
		}
		log.Info("Losing assignment withdrawn")
	}()
}

// finish снимает команду. Вызывается под mu.
func (s *dispatchService) finish(id uuid.UUID, err error) {
	t, ok := s.commands.finish(id, err)
	if !ok {
		return
	}
	if t.cmd.kind == cmdDispatch && s.byReport[t.cmd.assignment.AccidentID] == id {
		delete(s.byReport, t.cmd.assignment.AccidentID)
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":       "dispatch",
		"command":       string(t.cmd.kind),
		"assignment_id": id,
	})
	if err != nil {
		log.WithError(err).Warn("Command finished without confirmation")
		return
	}
	log.Info("Command confirmed")
	s.notify(t.cmd)
}

func (s *dispatchService) notify(cmd *dispatchCommand) {
	if s.notifier == nil {
		return
	}
	a := cmd.assignment
	event := webhook.NotificationEvent{
		Type:         webhook.EventDispatchConfirmed,
		AccidentID:   &a.AccidentID,
		AssignmentID: &a.ID,
		ResponderID:  &a.ResponderID,
		Timestamp:    s.opts.Now().UTC(),
	}
	if rule, ok := transitionRules[cmd.kind]; ok {
		available := rule.available
		event.Type = rule.event
		event.IsAvailable = &available
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.WithError(err).WithField("event_type", event.Type).Warn("Failed to publish notification")
		}
	}()
}

// Status возвращает производный статус происшествия по подтвержденным данным
func (s *dispatchService) Status(reportID uuid.UUID) (ReportDispatch, error) {
	if !allReady(s.views.Reports, s.views.Assignments) {
		return ReportDispatch{}, ErrUnavailable
	}
	if _, ok := s.views.Reports.Get(reportID); !ok {
		return ReportDispatch{}, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}

	out := ReportDispatch{ReportID: reportID, Status: StatusIdle}
	if a, ok := authoritative(s.views.Assignments, reportID); ok {
		out.Assignment = &a
		out.Status = DeriveStatus(&a)
	}
	return out, nil
}

func (s *dispatchService) ListAssignments() ([]models.DispatchAssignment, error) {
	if !s.views.Assignments.Ready() {
		return nil, ErrUnavailable
	}
	return s.views.Assignments.List(), nil
}

// Close отписывается от кеша и разрешает незавершенные команды ошибкой ErrUnavailable
func (s *dispatchService) Close() {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands.finishAll(fmt.Errorf("dispatch service closed: %w", ErrUnavailable))
	clear(s.byReport)
}
