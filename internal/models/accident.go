package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity - уровень тяжести происшествия
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank возвращает приоритет уровня: critical > high > moderate > minor.
// Неизвестные значения получают 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AccidentStatus - статус происшествия
type AccidentStatus string

const (
	StatusPending    AccidentStatus = "PENDING"
	StatusDispatched AccidentStatus = "DISPATCHED"
	StatusInProgress AccidentStatus = "IN_PROGRESS"
	StatusResolved   AccidentStatus = "RESOLVED"
)

// AccidentReport - запись о происшествии (таблица accidents)
type AccidentReport struct {
	ID              uuid.UUID      `json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Severity        Severity       `json:"severity"`
	ReporterNotes   string         `json:"reporter_notes"`
	ReporterContact string         `json:"reporter_contact"`
	Latitude        float64        `json:"latitude"`
	Longitude       float64        `json:"longitude"`
	Barangay        string         `json:"barangay"`
	Municipality    string         `json:"municipality"`
	Province        string         `json:"province"`
	Landmark        string         `json:"landmark"`
	Images          []string       `json:"images"`
	Status          AccidentStatus `json:"accident_status"`
	Version         int64          `json:"version"`
}

func (r AccidentReport) Key() uuid.UUID { return r.ID }

func (r AccidentReport) Rev() int64 { return r.Version }

func (r AccidentReport) WithRev(v int64) AccidentReport {
	r.Version = v
	return r
}
