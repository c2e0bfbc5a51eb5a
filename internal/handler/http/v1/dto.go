package v1

import (
	"time"

	"github.com/google/uuid"
)

// CreateReportRequest DTO для приема сообщения о происшествии
// @Description DTO для приема сообщения о происшествии
type CreateReportRequest struct {
	Severity        string   `json:"severity" validate:"required,oneof=minor moderate high critical"`
	ReporterNotes   string   `json:"reporter_notes,omitempty" validate:"max=2000"`
	ReporterContact string   `json:"reporter_contact,omitempty" validate:"max=255"`
	Latitude        float64  `json:"latitude" validate:"latitude"`
	Longitude       float64  `json:"longitude" validate:"longitude"`
	Barangay        string   `json:"barangay,omitempty" validate:"max=255"`
	Municipality    string   `json:"municipality,omitempty" validate:"max=255"`
	Province        string   `json:"province,omitempty" validate:"max=255"`
	Landmark        string   `json:"landmark,omitempty" validate:"max=255"`
	Images          []string `json:"images,omitempty" validate:"max=10,dive,required"`
}

// ReportResponse DTO для ответа с информацией о происшествии
// @Description DTO для ответа с информацией о происшествии
type ReportResponse struct {
	ID              uuid.UUID `json:"id"`
	Severity        string    `json:"severity"`
	ReporterNotes   string    `json:"reporter_notes,omitempty"`
	ReporterContact string    `json:"reporter_contact,omitempty"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Barangay        string    `json:"barangay,omitempty"`
	Municipality    string    `json:"municipality,omitempty"`
	Province        string    `json:"province,omitempty"`
	Landmark        string    `json:"landmark,omitempty"`
	Images          []string  `json:"images"`
	Status          string    `json:"accident_status"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ReportGroupResponse DTO метки на карте: происшествия с общими координатами
// @Description DTO группы происшествий
type ReportGroupResponse struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Severity  string           `json:"severity"`
	Count     int              `json:"count"`
	Primary   ReportResponse   `json:"primary"`
	Members   []ReportResponse `json:"members"`
}

// DispatchRequest DTO для назначения спасателя на происшествие
// @Description DTO для назначения спасателя
type DispatchRequest struct {
	ReportID    string `json:"report_id" validate:"required,uuid"`
	ResponderID string `json:"responder_id" validate:"required,uuid"`
}

// AssignmentResponse DTO назначения
// @Description DTO назначения
type AssignmentResponse struct {
	ID           uuid.UUID `json:"id"`
	ReportID     uuid.UUID `json:"report_id"`
	ResponderID  uuid.UUID `json:"responder_id"`
	ResponseType string    `json:"response_type"`
	RespondedAt  time.Time `json:"responded_at"`
	Version      int64     `json:"version"`
}

// DispatchStatusResponse DTO производного статуса происшествия
// @Description DTO статуса назначения происшествия
type DispatchStatusResponse struct {
	ReportID   uuid.UUID           `json:"report_id"`
	Status     string              `json:"status"`
	Assignment *AssignmentResponse `json:"assignment,omitempty"`
}

// ResponderResponse DTO спасателя
// @Description DTO спасателя
type ResponderResponse struct {
	ResponderID       uuid.UUID `json:"responder_id"`
	FullName          string    `json:"full_name"`
	Phone             string    `json:"phone,omitempty"`
	Role              string    `json:"role,omitempty"`
	IsAvailable       bool      `json:"is_available"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	LocationUpdatedAt time.Time `json:"location_updated_at"`
}

// AvailabilityRequest DTO переключения доступности
// @Description DTO переключения доступности
type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

// CommandResponse DTO результата команды
// @Description confirmed - изменение видно в потоке, pending - подтверждение еще не пришло
type CommandResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}
