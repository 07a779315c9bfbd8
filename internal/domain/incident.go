// Package domain contains the incident model shared by every module.
package domain

import "time"

// IncidentType discriminates the three incident variants.
type IncidentType string

// Incident types.
const (
	IncidentTypeRealtime   IncidentType = "realtime"
	IncidentTypeScheduled  IncidentType = "scheduled"
	IncidentTypeBackfilled IncidentType = "backfilled"
)

// IsValid checks if the incident type is valid.
func (t IncidentType) IsValid() bool {
	return t == IncidentTypeRealtime || t == IncidentTypeScheduled || t == IncidentTypeBackfilled
}

// UpdateStatus is the status carried by a single incident update entry.
type UpdateStatus string

// Update statuses.
const (
	UpdateStatusInvestigating UpdateStatus = "investigating"
	UpdateStatusIdentified    UpdateStatus = "identified"
	UpdateStatusMonitoring    UpdateStatus = "monitoring"
	UpdateStatusResolved      UpdateStatus = "resolved"
	UpdateStatusScheduled     UpdateStatus = "scheduled"
	UpdateStatusInProgress    UpdateStatus = "in_progress"
	UpdateStatusVerifying     UpdateStatus = "verifying"
	UpdateStatusCancelled     UpdateStatus = "cancelled"
	UpdateStatusUpdate        UpdateStatus = "update"
)

// IsValidForType checks if the update status is legal for the given incident type.
func (s UpdateStatus) IsValidForType(incidentType IncidentType) bool {
	switch incidentType {
	case IncidentTypeRealtime:
		return s == UpdateStatusInvestigating ||
			s == UpdateStatusIdentified ||
			s == UpdateStatusMonitoring ||
			s == UpdateStatusResolved ||
			s == UpdateStatusUpdate
	case IncidentTypeScheduled:
		return s == UpdateStatusScheduled ||
			s == UpdateStatusInProgress ||
			s == UpdateStatusVerifying ||
			s == UpdateStatusResolved ||
			s == UpdateStatusCancelled ||
			s == UpdateStatusUpdate
	case IncidentTypeBackfilled:
		return s == UpdateStatusResolved
	}
	return false
}

// ScheduledStatus is the lifecycle phase of a scheduled maintenance incident.
type ScheduledStatus string

// Scheduled statuses.
const (
	ScheduledStatusScheduled  ScheduledStatus = "scheduled"
	ScheduledStatusInProgress ScheduledStatus = "in_progress"
	ScheduledStatusCompleted  ScheduledStatus = "completed"
	ScheduledStatusCancelled  ScheduledStatus = "cancelled"
)

// IsValid checks if the scheduled status is valid.
func (s ScheduledStatus) IsValid() bool {
	switch s {
	case ScheduledStatusScheduled, ScheduledStatusInProgress,
		ScheduledStatusCompleted, ScheduledStatusCancelled:
		return true
	}
	return false
}

// ComponentStatus is the operational status of an external component.
type ComponentStatus string

// Component statuses, ascending severity.
const (
	ComponentStatusOperational ComponentStatus = "operational"
	ComponentStatusMaintenance ComponentStatus = "maintenance"
	ComponentStatusDegraded    ComponentStatus = "degraded_performance"
	ComponentStatusPartialOut  ComponentStatus = "partial_outage"
	ComponentStatusMajorOutage ComponentStatus = "major_outage"
)

// componentSeverity orders component statuses from least to most severe.
var componentSeverity = map[ComponentStatus]int{
	ComponentStatusOperational: 0,
	ComponentStatusMaintenance: 1,
	ComponentStatusDegraded:    2,
	ComponentStatusPartialOut:  3,
	ComponentStatusMajorOutage: 4,
}

// IsValid checks if the component status is valid.
func (s ComponentStatus) IsValid() bool {
	_, ok := componentSeverity[s]
	return ok
}

// Severity returns the position of the status in the severity ordering.
// Unknown statuses rank below operational.
func (s ComponentStatus) Severity() int {
	if sev, ok := componentSeverity[s]; ok {
		return sev
	}
	return -1
}

// Incident is the aggregate root persisted as a single document.
// Field names are the wire/storage contract consumed by the notification
// service over the message bus.
type Incident struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name"`
	Type                   IncidentType     `json:"type"`
	Components             []string         `json:"components"`
	ComponentsImpactStatus ComponentStatus  `json:"components_impact_status,omitempty"`
	LatestStatus           UpdateStatus     `json:"latest_status,omitempty"`
	IsResolved             bool             `json:"is_resolved"`
	ResolvedAt             *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	Updates                []IncidentUpdate `json:"updates"`

	// Scheduled-only fields.
	ScheduledStatus                       ScheduledStatus `json:"scheduled_status,omitempty"`
	ScheduledStartTime                    *time.Time      `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime                      *time.Time      `json:"scheduled_end_time,omitempty"`
	ScheduledAutoStatusUpdates            bool            `json:"scheduled_auto_status_updates,omitempty"`
	ScheduledAutoUpdatesSendNotifications bool            `json:"scheduled_auto_updates_send_notifications,omitempty"`
}

// IncidentUpdate is a child record appended to an incident.
// Only message and displayed_at may change after creation.
type IncidentUpdate struct {
	ID                  string       `json:"id"`
	Message             string       `json:"message"`
	Status              UpdateStatus `json:"status"`
	DisplayedAt         time.Time    `json:"displayed_at"`
	DoNotifySubscribers bool         `json:"do_notify_subscribers"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// FindUpdate returns the update entry with the given id, or nil.
func (i *Incident) FindUpdate(updateID string) *IncidentUpdate {
	for idx := range i.Updates {
		if i.Updates[idx].ID == updateID {
			return &i.Updates[idx]
		}
	}
	return nil
}

// ResolvedUpdate returns the first update entry with status resolved, or nil.
func (i *Incident) ResolvedUpdate() *IncidentUpdate {
	for idx := range i.Updates {
		if i.Updates[idx].Status == UpdateStatusResolved {
			return &i.Updates[idx]
		}
	}
	return nil
}
