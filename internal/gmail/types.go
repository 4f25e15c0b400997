// Package gmail describes the mailbox the rule engine reads from and acts on.
package gmail

import "time"

type (
	MessageID string
	ThreadID  string
	LabelID   string
)

// System label ids.
const (
	LabelInbox  LabelID = "INBOX"
	LabelUnread LabelID = "UNREAD"
	LabelTrash  LabelID = "TRASH"
)

// Thread is a conversation as returned by the provider, messages oldest first.
type Thread struct {
	ID       ThreadID
	Messages []Message
}

// Message carries the rendered fields a rule can match against.
type Message struct {
	ID          MessageID
	ThreadID    ThreadID
	From        string
	To          string
	Cc          string
	Bcc         string
	Subject     string
	Body        string
	Date        time.Time
	Labels      []LabelID
	Attachments []Attachment
}

type Attachment struct {
	Name     string
	MimeType string
	Size     int64
}
