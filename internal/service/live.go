package service

import (
	"github.com/google/uuid"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
	"github.com/shenikar/dispatch_coordination_system/internal/eventbus"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// LiveEvent - уведомление живой ленты: клиент перечитывает запись или,
// при Reset, всю сущность.
type LiveEvent struct {
	Entity    models.Entity    `json:"entity"`
	Operation models.Operation `json:"operation,omitempty"`
	ID        *uuid.UUID       `json:"id,omitempty"`
	Reset     bool             `json:"reset,omitempty"`
}

// PublishChanges транслирует изменения кешей в шину. Возвращает функцию отписки.
func PublishChanges(views Views, bus *eventbus.Bus[LiveEvent]) (stop func()) {
	stops := []func(){
		forward(models.EntityAccidents, views.Reports, bus),
		forward(models.EntityAssignments, views.Assignments, bus),
		forward(models.EntityResponders, views.Responders, bus),
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}
}

func forward[T changefeed.Record](entity models.Entity, view View[T], bus *eventbus.Bus[LiveEvent]) func() {
	return view.Watch(func(ch changefeed.Change[T]) {
		if ch.Reset {
			bus.Publish(LiveEvent{Entity: entity, Reset: true})
			return
		}
		id := ch.ID
		bus.Publish(LiveEvent{Entity: entity, Operation: ch.Operation, ID: &id})
	})
}
