package gmailctl

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/mailrules/internal/rules"
)

// Skipped records a filter that has no single-criterion rule equivalent.
type Skipped struct {
	Filter string
	Reason string
}

// Gmail system labels that show up in filter actions.
const (
	labelTrash  = "TRASH"
	labelUnread = "UNREAD"
	labelInbox  = "INBOX"
)

var systemLabels = map[string]struct{}{
	labelInbox: {}, labelUnread: {}, labelTrash: {}, "SPAM": {}, "STARRED": {},
	"IMPORTANT": {}, "SENT": {}, "DRAFT": {},
	"CATEGORY_PERSONAL": {}, "CATEGORY_SOCIAL": {}, "CATEGORY_PROMOTIONS": {},
	"CATEGORY_UPDATES": {}, "CATEGORY_FORUMS": {},
}

// Convert maps each filter onto rule creation requests. A rule holds one
// criterion and one action: a filter with several actions yields one rule
// per action, and filters combining several criteria are skipped.
func Convert(export Export) ([]rules.CreateRuleRequest, []Skipped) {
	names := make(map[string]string, len(export.Labels))
	for _, lbl := range export.Labels {
		if lbl.ID != "" && lbl.Name != "" {
			names[lbl.ID] = lbl.Name
		}
	}
	var (
		reqs    []rules.CreateRuleRequest
		skipped []Skipped
	)
	for _, filt := range export.Filters {
		name := filterName(filt)
		crit, err := convertCriteria(filt.Criteria)
		if err != nil {
			skipped = append(skipped, Skipped{Filter: name, Reason: err.Error()})
			continue
		}
		actions, err := convertAction(filt.Action, names)
		if err != nil {
			skipped = append(skipped, Skipped{Filter: name, Reason: err.Error()})
			continue
		}
		for _, act := range actions {
			c := crit
			reqs = append(reqs, rules.CreateRuleRequest{
				Name:        name,
				Description: "imported from gmailctl",
				Criteria:    &c,
				Action:      act.action,
				Value:       act.value,
			})
		}
	}
	return reqs, skipped
}

func convertCriteria(c FilterCriteria) (rules.Criteria, error) {
	var found []rules.Criteria
	if v := strings.TrimSpace(c.From); v != "" {
		found = append(found, rules.Criteria{Field: rules.FieldFrom, Value: v})
	}
	if v := strings.TrimSpace(c.To); v != "" {
		found = append(found, rules.Criteria{Field: rules.FieldTo, Value: v})
	}
	if v := strings.TrimSpace(c.Subject); v != "" {
		found = append(found, rules.Criteria{Field: rules.FieldSubject, Value: v})
	}
	if strings.TrimSpace(c.List) != "" {
		return rules.Criteria{}, fmt.Errorf("list criteria are not supported")
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		crit, err := convertQuery(q)
		if err != nil {
			return rules.Criteria{}, err
		}
		found = append(found, crit)
	}
	switch len(found) {
	case 0:
		return rules.Criteria{}, fmt.Errorf("filter has no criteria")
	case 1:
		return found[0], nil
	default:
		return rules.Criteria{}, fmt.Errorf("filter combines %d criteria", len(found))
	}
}

func convertQuery(q string) (rules.Criteria, error) {
	if len(strings.Fields(q)) != 1 {
		return rules.Criteria{}, fmt.Errorf("query %q is not a single term", q)
	}
	lower := strings.ToLower(q)
	switch {
	case lower == "has:attachment":
		return rules.Criteria{Field: rules.FieldHasAttachment}, nil
	case strings.HasPrefix(lower, "filename:"):
		val := strings.Trim(q[len("filename:"):], "\"'")
		if val == "" {
			return rules.Criteria{}, fmt.Errorf("empty filename query")
		}
		return rules.Criteria{Field: rules.FieldAttachmentName, Value: val}, nil
	default:
		return rules.Criteria{}, fmt.Errorf("query %q is not supported", q)
	}
}

type ruleAction struct {
	action rules.Action
	value  string
}

// convertAction returns one rule action per supported filter action: each
// user label, then mark read, then delete.
func convertAction(a FilterAction, names map[string]string) ([]ruleAction, error) {
	var out []ruleAction
	trash := false
	for _, id := range a.AddLabelIDs {
		if id == labelTrash {
			trash = true
			continue
		}
		if _, ok := systemLabels[id]; ok {
			continue
		}
		name, ok := names[id]
		if !ok {
			return nil, fmt.Errorf("label id %s has no name in export", id)
		}
		out = append(out, ruleAction{action: rules.ActionLabel, value: name})
	}
	for _, id := range a.RemoveLabelIDs {
		if id == labelUnread {
			out = append(out, ruleAction{action: rules.ActionMarkRead})
			break
		}
	}
	if trash {
		out = append(out, ruleAction{action: rules.ActionDelete})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("filter has no supported action")
	}
	return out, nil
}

func filterName(f Filter) string {
	if n := strings.TrimSpace(f.Name); n != "" {
		return n
	}
	c := f.Criteria
	switch {
	case c.From != "":
		return "from:" + strings.TrimSpace(c.From)
	case c.To != "":
		return "to:" + strings.TrimSpace(c.To)
	case c.Subject != "":
		return "subject:" + strings.TrimSpace(c.Subject)
	case c.List != "":
		return "list:" + strings.TrimSpace(c.List)
	case c.Query != "":
		return strings.TrimSpace(c.Query)
	}
	if f.ID != "" {
		return f.ID
	}
	return "gmailctl filter"
}
