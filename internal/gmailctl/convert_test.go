package gmailctl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailrules/internal/rules"
)

const sampleExport = `{
  "labels": [
    {"id": "Label_1", "name": "Receipts", "type": "user"},
    {"id": "Label_2", "name": "News", "type": "user"}
  ],
  "filters": [
    {"criteria": {"from": "billing@shop.test"}, "action": {"addLabelIds": ["Label_1"], "removeLabelIds": ["INBOX"]}},
    {"name": "spam", "criteria": {"subject": "WIN BIG"}, "action": {"addLabelIds": ["TRASH"]}},
    {"criteria": {"to": "me+lists@example.com"}, "action": {"removeLabelIds": ["UNREAD"]}},
    {"criteria": {"query": "has:attachment"}, "action": {"addLabelIds": ["Label_2"]}},
    {"criteria": {"query": "filename:invoice.pdf"}, "action": {"addLabelIds": ["Label_1"]}},
    {"criteria": {"from": "a@b.test", "subject": "x"}, "action": {"addLabelIds": ["Label_1"]}},
    {"criteria": {"list": "dev.lists.test"}, "action": {"addLabelIds": ["Label_2"]}},
    {"criteria": {"query": "larger:10M"}, "action": {"addLabelIds": ["TRASH"]}},
    {"criteria": {"from": "c@d.test"}, "action": {"addLabelIds": ["Label_1", "Label_2"]}},
    {"criteria": {"from": "news@letters.test"}, "action": {"addLabelIds": ["Label_2"], "removeLabelIds": ["UNREAD", "INBOX"]}},
    {"criteria": {"subject": "expired"}, "action": {"addLabelIds": ["TRASH"], "removeLabelIds": ["UNREAD"]}},
    {"criteria": {"from": "e@f.test"}, "action": {"forward": "x@y.test"}},
    {"criteria": {"from": "g@h.test"}, "action": {"addLabelIds": ["Label_9"]}}
  ]
}`

func TestConvert(t *testing.T) {
	export, err := Decode(strings.NewReader(sampleExport))
	require.NoError(t, err)

	reqs, skipped := Convert(export)
	require.Len(t, reqs, 11)
	require.Len(t, skipped, 5)

	tests := []struct {
		name   string
		field  rules.CriteriaField
		value  string
		action rules.Action
		label  string
	}{
		{"from:billing@shop.test", rules.FieldFrom, "billing@shop.test", rules.ActionLabel, "Receipts"},
		{"spam", rules.FieldSubject, "WIN BIG", rules.ActionDelete, ""},
		{"to:me+lists@example.com", rules.FieldTo, "me+lists@example.com", rules.ActionMarkRead, ""},
		{"has:attachment", rules.FieldHasAttachment, "", rules.ActionLabel, "News"},
		{"filename:invoice.pdf", rules.FieldAttachmentName, "invoice.pdf", rules.ActionLabel, "Receipts"},
		{"from:c@d.test", rules.FieldFrom, "c@d.test", rules.ActionLabel, "Receipts"},
		{"from:c@d.test", rules.FieldFrom, "c@d.test", rules.ActionLabel, "News"},
		{"from:news@letters.test", rules.FieldFrom, "news@letters.test", rules.ActionLabel, "News"},
		{"from:news@letters.test", rules.FieldFrom, "news@letters.test", rules.ActionMarkRead, ""},
		{"subject:expired", rules.FieldSubject, "expired", rules.ActionMarkRead, ""},
		{"subject:expired", rules.FieldSubject, "expired", rules.ActionDelete, ""},
	}
	require.Len(t, tests, len(reqs))
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := reqs[i]
			assert.Equal(t, tt.name, req.Name)
			require.NotNil(t, req.Criteria)
			assert.Equal(t, tt.field, req.Criteria.Field)
			assert.Equal(t, tt.value, req.Criteria.Value)
			assert.Equal(t, tt.action, req.Action)
			assert.Equal(t, tt.label, req.Value)
			assert.NoError(t, req.Validate())
		})
	}

	reasons := make([]string, 0, len(skipped))
	for _, s := range skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{
		"filter combines 2 criteria",
		"list criteria are not supported",
		`query "larger:10M" is not supported`,
		"filter has no supported action",
		"label id Label_9 has no name in export",
	}, reasons)
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(strings.NewReader(`{}`))
	require.ErrorIs(t, err, ErrEmptyExport)

	_, err = Decode(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o600))

	export, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, export.Filters, 13)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
