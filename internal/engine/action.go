package engine

import (
	"context"
	"fmt"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rules"
)

// pass holds state scoped to one evaluation run.
type pass struct {
	svc    *Service
	labels map[string]gmail.LabelID
	result Result
}

func (s *Service) newPass() *pass {
	return &pass{
		svc:    s,
		labels: map[string]gmail.LabelID{},
		result: Result{DryRun: s.DryRun},
	}
}

func (p *pass) execute(ctx context.Context, thread gmail.Thread, msg gmail.Message, rule rules.Rule) error {
	s := p.svc
	log := s.Logger.With("rule", rule.ID, "rule_name", rule.Name, "message", msg.ID)
	if !rule.Action.Valid() {
		log.ErrorContext(ctx, "action not recognized", "action", rule.Action)
		return nil
	}
	if s.DryRun {
		log.InfoContext(ctx, "dry-run match", "action", rule.Action, "value", rule.Value, "subject", msg.Subject)
		p.result.Actions++
		s.recordAction(rule.Action)
		return nil
	}

	switch rule.Action {
	case rules.ActionLabel:
		if err := p.labelThread(ctx, thread.ID, rule.Value); err != nil {
			return err
		}
		log.InfoContext(ctx, "thread labeled and archived", "thread", thread.ID, "label", rule.Value)
	case rules.ActionDelete:
		if err := s.wait(ctx, "rate limit trash"); err != nil {
			return err
		}
		if err := s.Client.TrashMessage(ctx, msg.ID); err != nil {
			return fmt.Errorf("trash message: %w", err)
		}
		log.InfoContext(ctx, "message moved to trash")
	case rules.ActionMarkRead:
		if err := s.wait(ctx, "rate limit mark read"); err != nil {
			return err
		}
		if err := s.Client.MarkRead(ctx, msg.ID); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		log.InfoContext(ctx, "message marked read")
	}
	p.result.Actions++
	s.recordAction(rule.Action)
	return nil
}

// labelThread resolves the label by exact name, creating it when missing,
// attaches it to the thread and archives the thread.
func (p *pass) labelThread(ctx context.Context, thread gmail.ThreadID, name string) error {
	s := p.svc
	id, err := p.ensureLabel(ctx, name)
	if err != nil {
		return err
	}
	if err := s.wait(ctx, "rate limit label thread"); err != nil {
		return err
	}
	if err := s.Client.AddLabelToThread(ctx, thread, id); err != nil {
		return fmt.Errorf("add label %q: %w", name, err)
	}
	if err := s.wait(ctx, "rate limit archive"); err != nil {
		return err
	}
	if err := s.Client.ArchiveThread(ctx, thread); err != nil {
		return fmt.Errorf("archive thread: %w", err)
	}
	return nil
}

func (p *pass) ensureLabel(ctx context.Context, name string) (gmail.LabelID, error) {
	if id, ok := p.labels[name]; ok {
		return id, nil
	}
	s := p.svc
	if err := s.wait(ctx, "rate limit labels"); err != nil {
		return "", err
	}
	id, found, err := s.Client.LabelByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("find label %q: %w", name, err)
	}
	if !found {
		if err := s.wait(ctx, "rate limit create label"); err != nil {
			return "", err
		}
		id, err = s.Client.CreateLabel(ctx, name)
		if err != nil {
			return "", fmt.Errorf("create label %q: %w", name, err)
		}
		s.Logger.InfoContext(ctx, "label created", "label", name)
	}
	p.labels[name] = id
	return id, nil
}
