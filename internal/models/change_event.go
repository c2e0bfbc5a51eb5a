package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Entity - имя таблицы, по которой идет поток изменений
type Entity string

const (
	EntityAccidents   Entity = "accidents"
	EntityResponders  Entity = "responder_details"
	EntityAssignments Entity = "accident_responses"
)

// Operation - тип изменения строки
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	// OpReset - маркер разрыва потока: события до него могли быть потеряны,
	// читатель должен перезагрузить состояние целиком
	OpReset Operation = "reset"
)

// ChangeEvent - уведомление об изменении одной строки.
// Порядок гарантирован только внутри потока одной сущности.
type ChangeEvent struct {
	Entity    Entity          `json:"entity"`
	Operation Operation       `json:"operation"`
	ID        uuid.UUID       `json:"id"`
	Version   int64           `json:"version"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
