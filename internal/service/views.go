package service

import (
	"github.com/google/uuid"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// View - доступ на чтение к кешу одной сущности (реализуется changefeed.Subscription)
type View[T changefeed.Record] interface {
	Get(id uuid.UUID) (T, bool)
	List() []T
	Ready() bool
	Watch(fn func(changefeed.Change[T])) (stop func())
}

// Views - кеши, общие для всех сервисов процесса
type Views struct {
	Reports     View[models.AccidentReport]
	Assignments View[models.DispatchAssignment]
	Responders  View[models.ResponderAvailability]
}

type readiness interface{ Ready() bool }

func allReady(views ...readiness) bool {
	for _, v := range views {
		if !v.Ready() {
			return false
		}
	}
	return true
}

// activeFor возвращает активные назначения происшествия
func activeFor(v View[models.DispatchAssignment], reportID uuid.UUID) []models.DispatchAssignment {
	var out []models.DispatchAssignment
	for _, a := range v.List() {
		if a.AccidentID == reportID && a.ResponseType.Active() {
			out = append(out, a)
		}
	}
	return out
}

// authoritative - действующее назначение происшествия: самое раннее из активных
func authoritative(v View[models.DispatchAssignment], reportID uuid.UUID) (models.DispatchAssignment, bool) {
	var (
		best  models.DispatchAssignment
		found bool
	)
	for _, a := range activeFor(v, reportID) {
		if !found || a.Precedes(best) {
			best, found = a, true
		}
	}
	return best, found
}

// busyResponders - спасатели с активным назначением
func busyResponders(v View[models.DispatchAssignment]) map[uuid.UUID]struct{} {
	busy := make(map[uuid.UUID]struct{})
	for _, a := range v.List() {
		if a.ResponseType.Active() {
			busy[a.ResponderID] = struct{}{}
		}
	}
	return busy
}

func holdsActive(v View[models.DispatchAssignment], responderID uuid.UUID) bool {
	for _, a := range v.List() {
		if a.ResponderID == responderID && a.ResponseType.Active() {
			return true
		}
	}
	return false
}

// changed возвращает запись изменения (для удаления - предыдущую)
func changed[T changefeed.Record](ch changefeed.Change[T]) T {
	if ch.Operation == models.OpDelete {
		return ch.Previous
	}
	return ch.Record
}
