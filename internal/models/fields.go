package models

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared type of a custom field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldNumber      FieldType = "number"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "datetime"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multi_select"
	FieldUser        FieldType = "user"
	FieldMultiUser   FieldType = "multi_user"
	FieldCheckbox    FieldType = "checkbox"
	FieldURL         FieldType = "url"
	FieldEmail       FieldType = "email"
	FieldTextarea    FieldType = "textarea"
	FieldLabels      FieldType = "labels"
	FieldEpicLink    FieldType = "epic_link"
	FieldSprint      FieldType = "sprint"
)

// ValueSlot names the storage slot a field type populates.
type ValueSlot string

const (
	SlotString ValueSlot = "string"
	SlotNumber ValueSlot = "number"
	SlotDate   ValueSlot = "date"
	SlotUser   ValueSlot = "user"
	SlotJSON   ValueSlot = "json"
)

// IsValid checks if the field type is known.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldNumber, FieldDate, FieldDateTime, FieldSelect, FieldMultiSelect,
		FieldUser, FieldMultiUser, FieldCheckbox, FieldURL, FieldEmail, FieldTextarea,
		FieldLabels, FieldEpicLink, FieldSprint:
		return true
	}
	return false
}

// Slot returns the single storage slot values of this type occupy.
func (t FieldType) Slot() ValueSlot {
	switch t {
	case FieldNumber:
		return SlotNumber
	case FieldDate, FieldDateTime:
		return SlotDate
	case FieldUser:
		return SlotUser
	case FieldMultiSelect, FieldMultiUser, FieldLabels, FieldCheckbox:
		return SlotJSON
	default:
		return SlotString
	}
}

// RequiresOptions reports whether a definition of this type must enumerate choices.
func (t FieldType) RequiresOptions() bool {
	return t == FieldSelect || t == FieldMultiSelect
}

// IsMultiValued reports whether values of this type are string sets.
func (t FieldType) IsMultiValued() bool {
	return t == FieldMultiSelect || t == FieldMultiUser || t == FieldLabels
}

// FieldOptions carries the type-specific validation rules of a definition.
type FieldOptions struct {
	Choices     []string `json:"choices,omitempty"`
	AllowCustom bool     `json:"allow_custom,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MinLength   *int     `json:"min_length,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
}

// HasChoice reports whether v is one of the enumerated choices.
func (o FieldOptions) HasChoice(v string) bool {
	return slices.Contains(o.Choices, v)
}

// FieldDefinition is an admin-defined custom field, unique per (workspace, key).
type FieldDefinition struct {
	ID              int64        `json:"id"`
	WorkspaceID     string       `json:"workspace_id"`
	FieldKey        string       `json:"field_key"`
	Name            string       `json:"name"`
	FieldType       FieldType    `json:"field_type"`
	IsRequired      bool         `json:"is_required"`
	DefaultValue    any          `json:"default_value,omitempty"`
	Options         FieldOptions `json:"options"`
	IssueTypes      []string     `json:"issue_types,omitempty"`
	ProjectIDs      []int64      `json:"project_ids,omitempty"`
	VisibleInList   bool         `json:"visible_in_list"`
	VisibleInDetail bool         `json:"visible_in_detail"`
	Searchable      bool         `json:"searchable"`
	Filterable      bool         `json:"filterable"`
	DisplayOrder    int          `json:"display_order"`
	IsSystem        bool         `json:"is_system"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// AppliesTo reports whether the definition is relevant to the given issue type and project.
// Empty filters match everything.
func (d FieldDefinition) AppliesTo(issueType string, projectID int64) bool {
	if len(d.IssueTypes) > 0 && !slices.Contains(d.IssueTypes, issueType) {
		return false
	}
	if len(d.ProjectIDs) > 0 && !slices.Contains(d.ProjectIDs, projectID) {
		return false
	}
	return true
}

// Value is a validated field value. Exactly one concrete type exists per
// storage slot, so a field's declared type decides which variant is legal.
type Value interface {
	Slot() ValueSlot
	// Raw returns the JSON-friendly representation.
	Raw() any
	String() string
	isValue()
}

// StringValue backs text-like, select, url, email, epic link and sprint fields.
type StringValue string

func (StringValue) Slot() ValueSlot  { return SlotString }
func (v StringValue) Raw() any       { return string(v) }
func (v StringValue) String() string { return string(v) }
func (StringValue) isValue()         {}

// NumberValue backs number fields.
type NumberValue float64

func (NumberValue) Slot() ValueSlot { return SlotNumber }
func (v NumberValue) Raw() any      { return float64(v) }
func (v NumberValue) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}
func (NumberValue) isValue() {}

// DateValue backs date and datetime fields. DateOnly values render without a clock.
type DateValue struct {
	Time     time.Time
	DateOnly bool
}

func (DateValue) Slot() ValueSlot { return SlotDate }
func (v DateValue) Raw() any      { return v.String() }
func (v DateValue) String() string {
	if v.DateOnly {
		return v.Time.Format(time.DateOnly)
	}
	return v.Time.UTC().Format(time.RFC3339)
}
func (DateValue) isValue() {}

// UserValue references a single user id.
type UserValue string

func (UserValue) Slot() ValueSlot  { return SlotUser }
func (v UserValue) Raw() any       { return string(v) }
func (v UserValue) String() string { return string(v) }
func (UserValue) isValue()         {}

// ListValue backs multi-select, multi-user and labels fields.
type ListValue []string

func (ListValue) Slot() ValueSlot  { return SlotJSON }
func (v ListValue) Raw() any       { return []string(v) }
func (v ListValue) String() string { return strings.Join(v, ", ") }
func (ListValue) isValue()         {}

// BoolValue backs checkbox fields.
type BoolValue bool

func (BoolValue) Slot() ValueSlot  { return SlotJSON }
func (v BoolValue) Raw() any       { return bool(v) }
func (v BoolValue) String() string { return strconv.FormatBool(bool(v)) }
func (BoolValue) isValue()         {}

// FieldValue is the stored value of one field on one task.
type FieldValue struct {
	ID                int64     `json:"id"`
	TaskID            int64     `json:"task_id"`
	FieldDefinitionID int64     `json:"field_definition_id"`
	FieldKey          string    `json:"field_key"`
	FieldType         FieldType `json:"field_type"`
	Value             Value     `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// fieldValueJSON is the wire shape of FieldValue.
type fieldValueJSON struct {
	ID                int64     `json:"id"`
	TaskID            int64     `json:"task_id"`
	FieldDefinitionID int64     `json:"field_definition_id"`
	FieldKey          string    `json:"field_key"`
	FieldType         FieldType `json:"field_type"`
	Value             any       `json:"value"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Wire returns the presentation shape with the value flattened to its raw form.
func (v FieldValue) Wire() any {
	out := fieldValueJSON{
		ID:                v.ID,
		TaskID:            v.TaskID,
		FieldDefinitionID: v.FieldDefinitionID,
		FieldKey:          v.FieldKey,
		FieldType:         v.FieldType,
		UpdatedAt:         v.UpdatedAt,
	}
	if v.Value != nil {
		out.Value = v.Value.Raw()
	}
	return out
}
