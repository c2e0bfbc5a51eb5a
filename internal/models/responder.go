package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile - профиль пользователя, к которому привязан спасатель
type Profile struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone"`
	Role     string    `json:"role"`
}

// ResponderAvailability - доступность спасателя (responder_details, соединенная с profiles)
type ResponderAvailability struct {
	ResponderID       uuid.UUID `json:"responder_id"`
	IsAvailable       bool      `json:"is_available"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	LocationUpdatedAt time.Time `json:"location_updated_at"`
	Version           int64     `json:"version"`
	Profile           Profile   `json:"profile"`
}

func (r ResponderAvailability) Key() uuid.UUID { return r.ResponderID }

func (r ResponderAvailability) Rev() int64 { return r.Version }

func (r ResponderAvailability) WithRev(v int64) ResponderAvailability {
	r.Version = v
	return r
}
