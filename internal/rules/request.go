package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRule is returned when a request fails validation.
var ErrInvalidRule = errors.New("invalid rule")

// CreateRuleRequest carries the fields of a new rule. Zero values and nil
// pointers are replaced by defaults.
type CreateRuleRequest struct {
	Name        string    `validate:"max=200"`
	Description string    `validate:"max=2000"`
	Criteria    *Criteria `validate:"omitempty"`
	Action      Action    `validate:"omitempty,action"`
	Value       string
	Enabled     *bool
	Priority    int
}

// UpdateRuleRequest replaces every field of an existing rule except its id.
type UpdateRuleRequest struct {
	Name        string   `validate:"max=200"`
	Description string   `validate:"max=2000"`
	Criteria    Criteria `validate:"required"`
	Action      Action   `validate:"required,action"`
	Value       string
	Enabled     bool
	Priority    int
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation("criteriafield", func(fl validator.FieldLevel) bool {
		return CriteriaField(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("action", func(fl validator.FieldLevel) bool {
		return Action(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the request against the rule schema.
func (r CreateRuleRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// Validate checks the request against the rule schema.
func (r UpdateRuleRequest) Validate() error {
	return validationError(validate.Struct(r))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(parts, "; "))
}

// rule materializes a new rule with defaults filled in.
func (r CreateRuleRequest) rule(id int) Rule {
	out := Rule{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Criteria:    DefaultCriteria(),
		Action:      r.Action,
		Value:       r.Value,
		Enabled:     true,
		Priority:    r.Priority,
	}
	if out.Name == "" {
		out.Name = DefaultName
	}
	if r.Criteria != nil {
		out.Criteria = *r.Criteria
	}
	if out.Action == "" {
		out.Action = ActionLabel
	}
	if r.Enabled != nil {
		out.Enabled = *r.Enabled
	}
	return out
}

func (r UpdateRuleRequest) apply(existing Rule) Rule {
	return Rule{
		ID:          existing.ID,
		Name:        r.Name,
		Description: r.Description,
		Criteria:    r.Criteria,
		Action:      r.Action,
		Value:       r.Value,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
	}
}
