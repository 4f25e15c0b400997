// Package audit replays stored rules over recent mail without changing
// anything and reports what they would do.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rate"
	"github.com/joshsymonds/mailrules/internal/rules"
)

const previewSubjectDisplayLimit = 60

// Options controls the behavior of the audit analyzer.
type Options struct {
	// MostRecent bounds how many inbox threads are replayed.
	MostRecent int
	// TopN bounds the sender ranking.
	TopN int
}

// RuleSource yields the rules to replay.
type RuleSource interface {
	List(ctx context.Context) ([]rules.Rule, error)
}

// Service executes audit analyses against Gmail threads.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Logger  *slog.Logger
	Clock   func() time.Time
	Rules   RuleSource
}

// NewService constructs a Service with sane defaults.
func NewService(
	client gmail.Client,
	limiter rate.Limiter,
	logger *slog.Logger,
	ruleSource RuleSource,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:  client,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
		Rules:   ruleSource,
	}
}

// Report summarizes how the stored rules behave on recent inbox mail.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Threads     int          `json:"threads"`
	Total       int          `json:"total"`
	Rules       []RuleStat   `json:"rules"`
	TopSenders  []SenderStat `json:"top_senders"`
	Suggestions []string     `json:"suggestions"`
	Findings    Findings     `json:"findings"`
}

// RuleStat counts the messages a rule matched.
type RuleStat struct {
	ID             int          `json:"id"`
	Name           string       `json:"name"`
	Enabled        bool         `json:"enabled"`
	Action         rules.Action `json:"action"`
	Matches        int          `json:"matches"`
	PreviewSubject string       `json:"preview_subject"`
}

// SenderStat ranks noisy sender domains.
type SenderStat struct {
	Domain         string `json:"domain"`
	Count          int    `json:"count"`
	Covered        bool   `json:"covered"`
	PreviewSubject string `json:"preview_subject"`
}

// Findings feeds the lint command.
type Findings struct {
	DeadRules       []RuleFinding `json:"dead_rules"`
	InvalidRules    []RuleFinding `json:"invalid_rules"`
	DisabledMatches []RuleFinding `json:"disabled_matches"`
	MissingLabels   []string      `json:"missing_labels"`
	Conflicts       []Conflict    `json:"conflicts"`
}

// RuleFinding identifies a problematic rule.
type RuleFinding struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Conflict represents conflicting actions between rules for the same message.
type Conflict struct {
	Rules       []string `json:"rules"`
	Description string   `json:"description"`
}

// Run produces a full audit report.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.MostRecent <= 0 {
		return Report{}, fmt.Errorf("most recent thread count must be positive")
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 20
	}

	s.Logger.InfoContext(ctx, "running audit", slog.Int("most_recent", opts.MostRecent))

	ruleSet, err := s.Rules.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load rules: %w", err)
	}
	if err := s.wait(ctx, "rate limit labels"); err != nil {
		return Report{}, err
	}
	labelsByName, _, err := s.Client.ListLabels(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list labels: %w", err)
	}
	if err := s.wait(ctx, "rate limit threads"); err != nil {
		return Report{}, err
	}
	threads, err := s.Client.RecentInboxThreads(ctx, opts.MostRecent)
	if err != nil {
		return Report{}, fmt.Errorf("fetch inbox threads: %w", err)
	}

	msgs := flatten(threads)
	rep := Report{
		GeneratedAt: s.Clock(),
		Threads:     len(threads),
		Total:       len(msgs),
	}

	matches, invalid := evaluateRules(ruleSet, msgs)
	rep.Rules = ruleStats(ruleSet, matches)
	rep.TopSenders = rankSenders(ruleSet, msgs, matches, topN)
	rep.Suggestions = buildSuggestions(rep.TopSenders)
	rep.Findings = Findings{
		DeadRules:       deadRules(ruleSet, matches, invalid, len(msgs)),
		InvalidRules:    invalid,
		DisabledMatches: disabledMatches(ruleSet, matches),
		MissingLabels:   missingLabels(ruleSet, labelsByName),
		Conflicts:       detectConflicts(ruleSet, matches),
	}
	return rep, nil
}

// PrintHuman writes a readable report to the provided writer.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "mailrules audit: %d threads, %d messages\n", rep.Threads, rep.Total)
	if len(rep.Rules) > 0 {
		builder.WriteString("\nRules:\n")
		for _, r := range rep.Rules {
			state := "on"
			if !r.Enabled {
				state = "off"
			}
			fmt.Fprintf(
				&builder,
				"  #%-4d %-24s %-3s %-9s %4d %s\n",
				r.ID,
				truncate(r.Name, 24),
				state,
				r.Action,
				r.Matches,
				truncate(r.PreviewSubject, previewSubjectDisplayLimit),
			)
		}
	}
	if len(rep.TopSenders) > 0 {
		builder.WriteString("\nTop senders:\n")
		for _, s := range rep.TopSenders {
			covered := ""
			if s.Covered {
				covered = "(covered)"
			}
			fmt.Fprintf(
				&builder,
				"  %-30s %4d %-9s %s\n",
				s.Domain,
				s.Count,
				covered,
				truncate(s.PreviewSubject, previewSubjectDisplayLimit),
			)
		}
	}
	if len(rep.Suggestions) > 0 {
		builder.WriteString("\nSuggested rules:\n")
		for _, snip := range rep.Suggestions {
			fmt.Fprintf(&builder, "  %s\n", snip)
		}
	}
	f := rep.Findings
	if !(LintReport{Findings: f}).Empty() || len(f.DisabledMatches) > 0 {
		builder.WriteString("\nLint findings:\n")
		for _, fr := range f.DeadRules {
			fmt.Fprintf(&builder, "  dead rule: #%d %s: %s\n", fr.ID, fr.Name, fr.Reason)
		}
		for _, fr := range f.InvalidRules {
			fmt.Fprintf(&builder, "  invalid rule: #%d %s: %s\n", fr.ID, fr.Name, fr.Reason)
		}
		for _, fr := range f.DisabledMatches {
			fmt.Fprintf(&builder, "  disabled rule would match: #%d %s: %s\n", fr.ID, fr.Name, fr.Reason)
		}
		for _, lbl := range f.MissingLabels {
			fmt.Fprintf(&builder, "  missing label: %s\n", lbl)
		}
		for _, cf := range f.Conflicts {
			fmt.Fprintf(&builder, "  conflict: %s (%s)\n", strings.Join(cf.Rules, ", "), cf.Description)
		}
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// WriteJSON serializes the report to a path relative to the working directory.
func WriteJSON(rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encodeErr := enc.Encode(rep); encodeErr != nil {
		return fmt.Errorf("encode report: %w", encodeErr)
	}
	return nil
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

func flatten(threads []gmail.Thread) []gmail.Message {
	var out []gmail.Message
	for _, th := range threads {
		out = append(out, th.Messages...)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func appendIfMissing(slice []string, val string) []string {
	for _, existing := range slice {
		if existing == val {
			return slice
		}
	}
	return append(slice, val)
}
