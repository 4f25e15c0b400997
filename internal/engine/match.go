package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rules"
)

// ErrUnknownField marks a criteria field the matcher does not understand.
var ErrUnknownField = errors.New("unrecognized criteria field")

// Match evaluates a single criterion against msg. Text comparisons are
// case-sensitive substring checks. hasAttachment ignores the criterion value.
func Match(msg gmail.Message, c rules.Criteria) (bool, error) {
	switch c.Field {
	case rules.FieldFrom:
		return strings.Contains(msg.From, c.Value), nil
	case rules.FieldTo:
		return strings.Contains(msg.To, c.Value), nil
	case rules.FieldCc:
		return strings.Contains(msg.Cc, c.Value), nil
	case rules.FieldBcc:
		return strings.Contains(msg.Bcc, c.Value), nil
	case rules.FieldSubject:
		return strings.Contains(msg.Subject, c.Value), nil
	case rules.FieldBody:
		return strings.Contains(msg.Body, c.Value), nil
	case rules.FieldHasAttachment:
		return len(msg.Attachments) > 0, nil
	case rules.FieldAttachmentName:
		for _, att := range msg.Attachments {
			if strings.Contains(att.Name, c.Value) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
	}
}
