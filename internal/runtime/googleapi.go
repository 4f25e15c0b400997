// internal/runtime/googleapi.go adapts *gmail.Service to the gmail.Client interface.
package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailrules/internal/gmail"
)

const (
	user            = "me"
	maxThreadsPage  = 500
	mimeHTML        = "text/html"
	mimePlain       = "text/plain"
	threadFormatAll = "full"
)

type googleClient struct{ svc *gmail.Service }

// NewGoogleAPIClient wraps an authenticated Gmail service.
func NewGoogleAPIClient(svc *gmail.Service) gc.Client { return &googleClient{svc} }

// RecentInboxThreads returns up to limit inbox threads, newest first, with
// every message fully decoded.
func (g *googleClient) RecentInboxThreads(ctx context.Context, limit int) ([]gc.Thread, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		ids   []string
		token string
	)
	for len(ids) < limit {
		page := limit - len(ids)
		if page > maxThreadsPage {
			page = maxThreadsPage
		}
		call := g.svc.Users.Threads.List(user).LabelIds(string(gc.LabelInbox)).MaxResults(int64(page))
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list inbox threads: %w", err)
		}
		for _, th := range res.Threads {
			ids = append(ids, th.Id)
		}
		if res.NextPageToken == "" || len(res.Threads) == 0 {
			break
		}
		token = res.NextPageToken
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	threads := make([]gc.Thread, 0, len(ids))
	for _, id := range ids {
		th, err := g.svc.Users.Threads.Get(user, id).Format(threadFormatAll).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get thread %s: %w", id, err)
		}
		threads = append(threads, threadFromAPI(th))
	}
	return threads, nil
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	lr, err := g.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("list labels: %w", err)
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func (g *googleClient) LabelByName(ctx context.Context, name string) (gc.LabelID, bool, error) {
	byName, _, err := g.ListLabels(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := byName[name]
	return id, ok, nil
}

func (g *googleClient) CreateLabel(ctx context.Context, name string) (gc.LabelID, error) {
	created, err := g.svc.Users.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	return gc.LabelID(created.Id), nil
}

func (g *googleClient) AddLabelToThread(ctx context.Context, thread gc.ThreadID, label gc.LabelID) error {
	req := &gmail.ModifyThreadRequest{AddLabelIds: []string{string(label)}}
	if _, err := g.svc.Users.Threads.Modify(user, string(thread), req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("label thread %s: %w", thread, err)
	}
	return nil
}

func (g *googleClient) ArchiveThread(ctx context.Context, thread gc.ThreadID) error {
	req := &gmail.ModifyThreadRequest{RemoveLabelIds: []string{string(gc.LabelInbox)}}
	if _, err := g.svc.Users.Threads.Modify(user, string(thread), req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("archive thread %s: %w", thread, err)
	}
	return nil
}

func (g *googleClient) TrashMessage(ctx context.Context, id gc.MessageID) error {
	if _, err := g.svc.Users.Messages.Trash(user, string(id)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

func (g *googleClient) MarkRead(ctx context.Context, id gc.MessageID) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{string(gc.LabelUnread)}}
	if _, err := g.svc.Users.Messages.Modify(user, string(id), req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}
	return nil
}

func threadFromAPI(th *gmail.Thread) gc.Thread {
	out := gc.Thread{ID: gc.ThreadID(th.Id), Messages: make([]gc.Message, 0, len(th.Messages))}
	for _, m := range th.Messages {
		out.Messages = append(out.Messages, messageFromAPI(m))
	}
	return out
}

func messageFromAPI(m *gmail.Message) gc.Message {
	msg := gc.Message{
		ID:       gc.MessageID(m.Id),
		ThreadID: gc.ThreadID(m.ThreadId),
		Labels:   toLabelIDs(m.LabelIds),
	}
	if m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate)
	}
	if m.Payload == nil {
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "to":
			msg.To = h.Value
		case "cc":
			msg.Cc = h.Value
		case "bcc":
			msg.Bcc = h.Value
		case "subject":
			msg.Subject = h.Value
		}
	}
	var html, plain string
	walkParts(m.Payload, func(p *gmail.MessagePart) {
		if p.Filename != "" {
			att := gc.Attachment{Name: p.Filename, MimeType: p.MimeType}
			if p.Body != nil {
				att.Size = p.Body.Size
			}
			msg.Attachments = append(msg.Attachments, att)
			return
		}
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		switch {
		case html == "" && strings.HasPrefix(p.MimeType, mimeHTML):
			html = decodeBody(p.Body.Data)
		case plain == "" && strings.HasPrefix(p.MimeType, mimePlain):
			plain = decodeBody(p.Body.Data)
		}
	})
	msg.Body = html
	if msg.Body == "" {
		msg.Body = plain
	}
	return msg
}

func walkParts(p *gmail.MessagePart, visit func(*gmail.MessagePart)) {
	if p == nil {
		return
	}
	visit(p)
	for _, child := range p.Parts {
		walkParts(child, visit)
	}
}

// decodeBody decodes Gmail's URL-safe base64 with or without padding.
func decodeBody(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}

func toLabelIDs(ids []string) []gc.LabelID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}
