package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for workflow item identifiers.
	FieldItemID = "item_id"
	// FieldProcess is the standardized structured logging key for managed process names.
	FieldProcess = "proc"
	// FieldState is the standardized structured logging key for workflow state names.
	FieldState = "state"
	// FieldActionKind is the standardized structured logging key for action kinds.
	FieldActionKind = "action_kind"
	// FieldEventType is the standardized structured logging key for machine-readable event markers.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized structured logging key for the user-facing consequence of a warning.
	FieldImpact = "impact"
)
