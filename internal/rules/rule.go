// Package rules holds the rule model and the store that persists it.
package rules

// CriteriaField names the part of a message a rule inspects.
type CriteriaField string

// Known criteria fields.
const (
	FieldFrom           CriteriaField = "from"
	FieldSubject        CriteriaField = "subjectContains"
	FieldBody           CriteriaField = "bodyContains"
	FieldHasAttachment  CriteriaField = "hasAttachment"
	FieldAttachmentName CriteriaField = "attachmentName"
	FieldTo             CriteriaField = "to"
	FieldCc             CriteriaField = "cc"
	FieldBcc            CriteriaField = "bcc"
)

// AllFields lists every criteria field in display order.
func AllFields() []CriteriaField {
	return []CriteriaField{
		FieldFrom,
		FieldSubject,
		FieldBody,
		FieldHasAttachment,
		FieldAttachmentName,
		FieldTo,
		FieldCc,
		FieldBcc,
	}
}

// Valid reports whether f is a known field.
func (f CriteriaField) Valid() bool {
	switch f {
	case FieldFrom, FieldSubject, FieldBody, FieldHasAttachment,
		FieldAttachmentName, FieldTo, FieldCc, FieldBcc:
		return true
	default:
		return false
	}
}

// Action names the side effect applied to a matching message.
type Action string

// Known actions.
const (
	ActionLabel    Action = "label"
	ActionDelete   Action = "delete"
	ActionMarkRead Action = "markRead"
)

// AllActions lists every action in display order.
func AllActions() []Action {
	return []Action{ActionLabel, ActionDelete, ActionMarkRead}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionLabel, ActionDelete, ActionMarkRead:
		return true
	default:
		return false
	}
}

// Criteria is the single predicate of a rule.
type Criteria struct {
	Field CriteriaField `json:"field" validate:"required,criteriafield"`
	Value string        `json:"value"`
}

// Rule pairs a predicate with an action. Priority is stored but the
// evaluator applies every matching enabled rule in store order.
type Rule struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Criteria    Criteria `json:"criteria"`
	Action      Action   `json:"action"`
	Value       string   `json:"value"`
	Enabled     bool     `json:"enabled"`
	Priority    int      `json:"priority"`
}

// Defaults applied by Append for omitted fields.
const (
	DefaultName = "Unnamed Rule"
)

// DefaultCriteria is used when a new rule carries no criteria.
func DefaultCriteria() Criteria {
	return Criteria{Field: FieldFrom, Value: ""}
}
