package gmail

import "context"

// Client is the narrow Gmail surface required by mailrules.
type Client interface {
	RecentInboxThreads(ctx context.Context, limit int) ([]Thread, error)
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	LabelByName(ctx context.Context, name string) (LabelID, bool, error)
	CreateLabel(ctx context.Context, name string) (LabelID, error)
	AddLabelToThread(ctx context.Context, thread ThreadID, label LabelID) error
	ArchiveThread(ctx context.Context, thread ThreadID) error
	TrashMessage(ctx context.Context, id MessageID) error
	MarkRead(ctx context.Context, id MessageID) error
}
