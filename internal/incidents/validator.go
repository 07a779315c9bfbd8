package incidents

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nimbusops/statuspage/internal/domain"
)

// Validator checks incident invariants before every save, not only at the
// API boundary: internal mutation paths (auto-update scheduler, historical
// entry edits) bypass the request sanitization layer entirely.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the incident invariant checks
// registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateIncidentStruct, domain.Incident{})
	return &Validator{validate: v}
}

// Validate applies the base schema plus the type-conditional overlay.
// An unknown incident type is a programmer error upstream and is reported
// as a plain error, never as ErrValidation.
func (v *Validator) Validate(incident *domain.Incident) error {
	if incident == nil {
		return fmt.Errorf("nil incident")
	}
	if !incident.Type.IsValid() {
		return fmt.Errorf("unknown incident type: %q", incident.Type)
	}
	if err := v.validate.Struct(incident); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// validateIncidentStruct is the struct-level validation holding every
// cross-field invariant. Field tags cannot express these: most depend on
// the incident type or span the updates slice.
func validateIncidentStruct(sl validator.StructLevel) {
	incident := sl.Current().Interface().(domain.Incident)

	if incident.Name == "" {
		sl.ReportError(incident.Name, "name", "Name", "required", "")
	}
	if incident.CreatedAt.IsZero() {
		sl.ReportError(incident.CreatedAt, "created_at", "CreatedAt", "required", "")
	}
	if incident.UpdatedAt.IsZero() {
		sl.ReportError(incident.UpdatedAt, "updated_at", "UpdatedAt", "required", "")
	}

	// resolved_at set iff is_resolved.
	if incident.IsResolved && incident.ResolvedAt == nil {
		sl.ReportError(incident.ResolvedAt, "resolved_at", "ResolvedAt", "required_with_resolved", "")
	}
	if !incident.IsResolved && incident.ResolvedAt != nil {
		sl.ReportError(incident.ResolvedAt, "resolved_at", "ResolvedAt", "excluded_without_resolved", "")
	}

	validateUpdates(sl, incident)

	switch incident.Type {
	case domain.IncidentTypeRealtime:
		validateNoScheduledFields(sl, incident)
		if incident.ComponentsImpactStatus != "" && !incident.ComponentsImpactStatus.IsValid() {
			sl.ReportError(incident.ComponentsImpactStatus, "components_impact_status", "ComponentsImpactStatus", "oneof", "")
		}
		if incident.LatestStatus != "" && !incident.LatestStatus.IsValidForType(incident.Type) {
			sl.ReportError(incident.LatestStatus, "latest_status", "LatestStatus", "oneof", "")
		}
	case domain.IncidentTypeBackfilled:
		validateNoScheduledFields(sl, incident)
		if incident.LatestStatus != "" {
			sl.ReportError(incident.LatestStatus, "latest_status", "LatestStatus", "excluded", "")
		}
		if incident.ComponentsImpactStatus != "" && !incident.ComponentsImpactStatus.IsValid() {
			sl.ReportError(incident.ComponentsImpactStatus, "components_impact_status", "ComponentsImpactStatus", "oneof", "")
		}
	case domain.IncidentTypeScheduled:
		if incident.ComponentsImpactStatus != "" {
			sl.ReportError(incident.ComponentsImpactStatus, "components_impact_status", "ComponentsImpactStatus", "excluded", "")
		}
		if incident.LatestStatus != "" {
			sl.ReportError(incident.LatestStatus, "latest_status", "LatestStatus", "excluded", "")
		}
		if !incident.ScheduledStatus.IsValid() {
			sl.ReportError(incident.ScheduledStatus, "scheduled_status", "ScheduledStatus", "oneof", "")
		}
		if incident.ScheduledStartTime == nil {
			sl.ReportError(incident.ScheduledStartTime, "scheduled_start_time", "ScheduledStartTime", "required", "")
		}
		if incident.ScheduledEndTime == nil {
			sl.ReportError(incident.ScheduledEndTime, "scheduled_end_time", "ScheduledEndTime", "required", "")
		}
		if incident.ScheduledStartTime != nil && incident.ScheduledEndTime != nil &&
			incident.ScheduledEndTime.Before(*incident.ScheduledStartTime) {
			sl.ReportError(incident.ScheduledEndTime, "scheduled_end_time", "ScheduledEndTime", "gtefield", "scheduled_start_time")
		}
	}
}

// validateUpdates checks the updates slice: non-empty, unique ids, statuses
// legal for the type, and the per-type resolved-entry cardinality.
func validateUpdates(sl validator.StructLevel, incident domain.Incident) {
	if len(incident.Updates) == 0 {
		sl.ReportError(incident.Updates, "updates", "Updates", "min", "1")
		return
	}

	seen := make(map[string]bool, len(incident.Updates))
	resolvedCount := 0
	for idx := range incident.Updates {
		entry := &incident.Updates[idx]
		if entry.ID == "" {
			sl.ReportError(entry.ID, "updates.id", "Updates", "required", "")
		}
		if seen[entry.ID] {
			sl.ReportError(entry.ID, "updates.id", "Updates", "unique", "")
		}
		seen[entry.ID] = true
		if !entry.Status.IsValidForType(incident.Type) {
			sl.ReportError(entry.Status, "updates.status", "Updates", "oneof", "")
		}
		if entry.DisplayedAt.IsZero() {
			sl.ReportError(entry.DisplayedAt, "updates.displayed_at", "Updates", "required", "")
		}
		if entry.Status == domain.UpdateStatusResolved {
			resolvedCount++
		}
	}

	// is_resolved is derived: true iff some entry carries status resolved.
	if (resolvedCount > 0) != incident.IsResolved {
		sl.ReportError(incident.IsResolved, "is_resolved", "IsResolved", "derived_from_updates", "")
	}

	switch incident.Type {
	case domain.IncidentTypeBackfilled:
		// Backfilled incidents hold exactly one entry and it is resolved.
		if len(incident.Updates) != 1 || resolvedCount != 1 {
			sl.ReportError(incident.Updates, "updates", "Updates", "backfilled_single_resolved", "")
		}
	default:
		if resolvedCount > 1 {
			sl.ReportError(incident.Updates, "updates", "Updates", "max_one_resolved", "")
		}
	}
}

// validateNoScheduledFields rejects scheduled-only fields on other types.
func validateNoScheduledFields(sl validator.StructLevel, incident domain.Incident) {
	if incident.ScheduledStatus != "" {
		sl.ReportError(incident.ScheduledStatus, "scheduled_status", "ScheduledStatus", "excluded", "")
	}
	if incident.ScheduledStartTime != nil {
		sl.ReportError(incident.ScheduledStartTime, "scheduled_start_time", "ScheduledStartTime", "excluded", "")
	}
	if incident.ScheduledEndTime != nil {
		sl.ReportError(incident.ScheduledEndTime, "scheduled_end_time", "ScheduledEndTime", "excluded", "")
	}
	if incident.ScheduledAutoStatusUpdates {
		sl.ReportError(incident.ScheduledAutoStatusUpdates, "scheduled_auto_status_updates", "ScheduledAutoStatusUpdates", "excluded", "")
	}
	if incident.ScheduledAutoUpdatesSendNotifications {
		sl.ReportError(incident.ScheduledAutoUpdatesSendNotifications, "scheduled_auto_updates_send_notifications", "ScheduledAutoUpdatesSendNotifications", "excluded", "")
	}
}
