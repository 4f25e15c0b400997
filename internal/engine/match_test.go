package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rules"
)

func TestMatch(t *testing.T) {
	msg := gmail.Message{
		From:    "Alice <a@b.com>",
		To:      "me@example.com",
		Cc:      "team@example.com",
		Bcc:     "archive@example.com",
		Subject: "Quarterly report",
		Body:    "<p>see attached</p>",
		Attachments: []gmail.Attachment{
			{Name: "report-q3.pdf"},
		},
	}

	tests := []struct {
		name  string
		field rules.CriteriaField
		value string
		msg   gmail.Message
		want  bool
	}{
		{name: "from substring", field: rules.FieldFrom, value: "a@b", msg: msg, want: true},
		{name: "from case sensitive", field: rules.FieldFrom, value: "a@b", msg: gmail.Message{From: "A@B.com"}, want: false},
		{name: "to", field: rules.FieldTo, value: "me@", msg: msg, want: true},
		{name: "cc", field: rules.FieldCc, value: "team", msg: msg, want: true},
		{name: "bcc miss", field: rules.FieldBcc, value: "team", msg: msg, want: false},
		{name: "subject", field: rules.FieldSubject, value: "report", msg: msg, want: true},
		{name: "subject case", field: rules.FieldSubject, value: "quarterly", msg: msg, want: false},
		{name: "body", field: rules.FieldBody, value: "attached", msg: msg, want: true},
		{name: "empty value matches", field: rules.FieldSubject, value: "", msg: gmail.Message{}, want: true},
		{name: "has attachment ignores value", field: rules.FieldHasAttachment, value: "zzz", msg: msg, want: true},
		{name: "no attachment", field: rules.FieldHasAttachment, value: "", msg: gmail.Message{}, want: false},
		{name: "attachment name", field: rules.FieldAttachmentName, value: ".pdf", msg: msg, want: true},
		{name: "attachment name miss", field: rules.FieldAttachmentName, value: ".xlsx", msg: msg, want: false},
		{name: "attachment name without attachments", field: rules.FieldAttachmentName, value: "", msg: gmail.Message{}, want: false},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := Match(tc.msg, rules.Criteria{Field: tc.field, Value: tc.value})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchUnknownField(t *testing.T) {
	got, err := Match(gmail.Message{Subject: "x"}, rules.Criteria{Field: "headerContains", Value: "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.False(t, got)
}
