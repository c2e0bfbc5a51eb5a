package models

import (
	"time"

	"github.com/google/uuid"
)

// ResponseType - состояние назначения спасателя на происшествие
type ResponseType string

const (
	ResponseDispatched ResponseType = "dispatched"
	ResponseAccepted   ResponseType = "accepted"
	ResponseRejected   ResponseType = "rejected"
	ResponseResolved   ResponseType = "resolved"
)

// Active сообщает, удерживает ли назначение происшествие (dispatched или accepted)
func (t ResponseType) Active() bool {
	return t == ResponseDispatched || t == ResponseAccepted
}

// DispatchAssignment - связь происшествия и спасателя (таблица accident_responses)
type DispatchAssignment struct {
	ID           uuid.UUID    `json:"id"`
	AccidentID   uuid.UUID    `json:"accident_id"`
	ResponderID  uuid.UUID    `json:"responder_id"`
	ResponseType ResponseType `json:"response_type"`
	RespondedAt  time.Time    `json:"responded_at"`
	Version      int64        `json:"version"`
}

func (a DispatchAssignment) Key() uuid.UUID { return a.ID }

func (a DispatchAssignment) Rev() int64 { return a.Version }

func (a DispatchAssignment) WithRev(v int64) DispatchAssignment {
	a.Version = v
	return a
}

// Precedes задает порядок между активными назначениями одного происшествия:
// раньше созданное назначение побеждает, при равенстве времени - меньший ID.
func (a DispatchAssignment) Precedes(b DispatchAssignment) bool {
	if !a.RespondedAt.Equal(b.RespondedAt) {
		return a.RespondedAt.Before(b.RespondedAt)
	}
	return a.ID.String() < b.ID.String()
}
