// Package engine evaluates stored rules against recent inbox mail and
// applies the matching actions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rate"
	"github.com/joshsymonds/mailrules/internal/rules"
	"github.com/joshsymonds/mailrules/internal/settings"
)

// RuleSource yields the rule snapshot for a pass.
type RuleSource interface {
	List(ctx context.Context) ([]rules.Rule, error)
}

// SettingsSource yields the settings for a pass.
type SettingsSource interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// Recorder receives pass telemetry. A nil Recorder is ignored.
type Recorder interface {
	PassCompleted(outcome string, elapsed time.Duration)
	RuleMatched(rule rules.Rule)
	ActionApplied(action rules.Action, dryRun bool)
}

// Pass outcomes reported to the Recorder.
const (
	OutcomeApplied  = "applied"
	OutcomeNoRules  = "no_rules"
	OutcomeNoMail   = "no_threads"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Result summarizes one pass.
type Result struct {
	Threads  int  `json:"threads"`
	Messages int  `json:"messages"`
	Matches  int  `json:"matches"`
	Actions  int  `json:"actions"`
	DryRun   bool `json:"dry_run"`
}

// Service runs evaluation passes.
type Service struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Rules    RuleSource
	Settings SettingsSource
	Metrics  Recorder
	Clock    func() time.Time
	DryRun   bool
}

// NewService constructs a Service with sane defaults.
func NewService(
	client gmail.Client,
	limiter rate.Limiter,
	logger *slog.Logger,
	ruleSource RuleSource,
	settingsSource SettingsSource,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:   client,
		Limiter:  limiter,
		Logger:   logger,
		Rules:    ruleSource,
		Settings: settingsSource,
		Clock:    time.Now,
	}
}

// Run performs one pass: settings and rules are read once, the most recent
// inbox threads are fetched, and Apply does the rest.
func (s *Service) Run(ctx context.Context) (Result, error) {
	start := s.Clock()
	res, outcome, err := s.run(ctx)
	s.recordPass(outcome, s.Clock().Sub(start))
	return res, err
}

func (s *Service) run(ctx context.Context) (Result, string, error) {
	cfg, err := s.Settings.Load(ctx)
	if err != nil {
		return Result{}, OutcomeFailed, fmt.Errorf("load settings: %w", err)
	}
	ruleSet, err := s.Rules.List(ctx)
	if err != nil {
		return Result{}, OutcomeFailed, fmt.Errorf("load rules: %w", err)
	}

	s.Logger.InfoContext(ctx, "applying rules", "rules", len(ruleSet), "most_recent", cfg.MostRecentMails, "dry_run", s.DryRun)
	if len(ruleSet) == 0 {
		s.Logger.InfoContext(ctx, "no rules to apply")
		return Result{DryRun: s.DryRun}, OutcomeNoRules, nil
	}

	if err := s.wait(ctx, "rate limit threads"); err != nil {
		return Result{}, outcomeFor(err), err
	}
	threads, err := s.Client.RecentInboxThreads(ctx, cfg.MostRecentMails)
	if err != nil {
		return Result{}, outcomeFor(err), fmt.Errorf("fetch inbox threads: %w", err)
	}
	if len(threads) == 0 {
		s.Logger.InfoContext(ctx, "no threads to process")
		return Result{DryRun: s.DryRun}, OutcomeNoMail, nil
	}
	s.Logger.InfoContext(ctx, "processing threads", "count", len(threads))

	res, err := s.Apply(ctx, ruleSet, threads)
	if err != nil {
		return res, outcomeFor(err), err
	}
	s.Logger.InfoContext(ctx, "finished applying rules",
		"threads", res.Threads,
		"messages", res.Messages,
		"matches", res.Matches,
		"actions", res.Actions,
	)
	return res, OutcomeApplied, nil
}

// Apply evaluates every enabled rule against every message, in provider
// order for threads and messages and store order for rules. All matching
// rules fire; nothing short-circuits. The first provider error aborts the
// rest of the batch.
func (s *Service) Apply(ctx context.Context, ruleSet []rules.Rule, threads []gmail.Thread) (Result, error) {
	p := s.newPass()
	for _, thread := range threads {
		p.result.Threads++
		for _, msg := range thread.Messages {
			p.result.Messages++
			for _, rule := range ruleSet {
				if !rule.Enabled || !s.Matches(ctx, msg, rule) {
					continue
				}
				p.result.Matches++
				s.recordMatch(rule)
				if err := p.execute(ctx, thread, msg, rule); err != nil {
					return p.result, fmt.Errorf("thread %s message %s rule %d: %w", thread.ID, msg.ID, rule.ID, err)
				}
			}
		}
	}
	return p.result, nil
}

// Matches reports whether msg satisfies rule's criteria. Unknown fields
// never match.
func (s *Service) Matches(ctx context.Context, msg gmail.Message, rule rules.Rule) bool {
	ok, err := Match(msg, rule.Criteria)
	if err != nil {
		s.Logger.ErrorContext(ctx, "unrecognized criteria field", "rule", rule.ID, "field", rule.Criteria.Field)
		return false
	}
	return ok
}

// Execute applies rule's action to msg. Label actions affect the whole thread.
func (s *Service) Execute(ctx context.Context, thread gmail.Thread, msg gmail.Message, rule rules.Rule) error {
	p := s.newPass()
	return p.execute(ctx, thread, msg, rule)
}

func (s *Service) wait(ctx context.Context, operation string) error {
	if s.Limiter == nil {
		return nil
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (s *Service) recordPass(outcome string, elapsed time.Duration) {
	if s.Metrics != nil {
		s.Metrics.PassCompleted(outcome, elapsed)
	}
}

func (s *Service) recordMatch(rule rules.Rule) {
	if s.Metrics != nil {
		s.Metrics.RuleMatched(rule)
	}
}

func (s *Service) recordAction(action rules.Action) {
	if s.Metrics != nil {
		s.Metrics.ActionApplied(action, s.DryRun)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCanceled
	}
	return OutcomeFailed
}
