package models

import (
	"time"
)

// Priority ranks a scheduled visit.
type Priority string

const (
	PriorityLow    Priority = "baixa"
	PriorityMedium Priority = "media"
	PriorityHigh   Priority = "alta"
)

// ScheduleStatus tracks a visit through its lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "agendado"
	ScheduleStatusInProgress ScheduleStatus = "em_andamento"
	ScheduleStatusDone       ScheduleStatus = "concluido"
	ScheduleStatusCancelled  ScheduleStatus = "cancelado"
)

// Valid reports whether s is a known status.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusScheduled, ScheduleStatusInProgress, ScheduleStatusDone, ScheduleStatusCancelled:
		return true
	}
	return false
}

// Date and time layouts used by the schedule form.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ScheduleEntry is a planned inventory visit at a client site.
type ScheduleEntry struct {
	ID                UUID           `json:"id"`
	ClientID          UUID           `json:"clientId"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Date              string         `json:"date"`
	Time              string         `json:"time"`
	Location          string         `json:"location"`
	EstimatedDuration int            `json:"estimatedDuration"` // hours
	Priority          Priority       `json:"priority"`
	Status            ScheduleStatus `json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// StartsAt combines Date and Time in loc. ok is false when either is malformed.
func (s *ScheduleEntry) StartsAt(loc *time.Location) (t time.Time, ok bool) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.Time, loc)
	return t, err == nil
}

// Validate checks the fields required by the schedule form.
func (s *ScheduleEntry) Validate() error {
	var errs fieldErrors
	errs.require(!blank(string(s.ClientID)), "clientId", "is required")
	errs.require(!blank(s.Title), "title", "is required")
	_, dateErr := time.Parse(DateLayout, s.Date)
	errs.require(dateErr == nil, "date", "must be YYYY-MM-DD")
	_, timeErr := time.Parse(TimeLayout, s.Time)
	errs.require(timeErr == nil, "time", "must be HH:MM")
	errs.require(!blank(s.Location), "location", "is required")
	errs.require(s.EstimatedDuration >= 1, "estimatedDuration", "must be at least 1")
	errs.require(s.Priority == PriorityLow || s.Priority == PriorityMedium || s.Priority == PriorityHigh,
		"priority", "must be baixa, media or alta")
	errs.require(s.Status.Valid(), "status", "must be agendado, em_andamento, concluido or cancelado")
	return errs.err("schedule entry")
}
