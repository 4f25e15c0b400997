package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rules"
)

type fakeAuditClient struct {
	threads      []gmail.Thread
	labelsByName map[string]gmail.LabelID
	mutated      int
}

func (f *fakeAuditClient) RecentInboxThreads(ctx context.Context, limit int) ([]gmail.Thread, error) {
	_ = ctx
	if limit < len(f.threads) {
		return f.threads[:limit], nil
	}
	return f.threads, nil
}

func (f *fakeAuditClient) ListLabels(
	ctx context.Context,
) (map[string]gmail.LabelID, map[gmail.LabelID]string, error) {
	_ = ctx
	byID := make(map[gmail.LabelID]string, len(f.labelsByName))
	for name, id := range f.labelsByName {
		byID[id] = name
	}
	return f.labelsByName, byID, nil
}

func (f *fakeAuditClient) LabelByName(ctx context.Context, name string) (gmail.LabelID, bool, error) {
	_ = ctx
	id, ok := f.labelsByName[name]
	return id, ok, nil
}

func (f *fakeAuditClient) CreateLabel(ctx context.Context, name string) (gmail.LabelID, error) {
	_ = ctx
	f.mutated++
	return gmail.LabelID("Label_" + name), nil
}

func (f *fakeAuditClient) AddLabelToThread(ctx context.Context, thread gmail.ThreadID, label gmail.LabelID) error {
	_, _, _ = ctx, thread, label
	f.mutated++
	return nil
}

func (f *fakeAuditClient) ArchiveThread(ctx context.Context, thread gmail.ThreadID) error {
	_, _ = ctx, thread
	f.mutated++
	return nil
}

func (f *fakeAuditClient) TrashMessage(ctx context.Context, id gmail.MessageID) error {
	_, _ = ctx, id
	f.mutated++
	return nil
}

func (f *fakeAuditClient) MarkRead(ctx context.Context, id gmail.MessageID) error {
	_, _ = ctx, id
	f.mutated++
	return nil
}

type stubRules struct {
	rules []rules.Rule
	err   error
}

func (s stubRules) List(ctx context.Context) ([]rules.Rule, error) {
	_ = ctx
	return s.rules, s.err
}

func fixtureThreads() []gmail.Thread {
	msg := func(id, from, subject string) gmail.Message {
		return gmail.Message{ID: gmail.MessageID(id), ThreadID: gmail.ThreadID("t" + id), From: from, Subject: subject}
	}
	return []gmail.Thread{
		{ID: "t1", Messages: []gmail.Message{msg("1", "Alerts <alerts@example.com>", "Alert 1")}},
		{ID: "t2", Messages: []gmail.Message{msg("2", "alerts@example.com", "Alert 2")}},
		{ID: "t3", Messages: []gmail.Message{msg("3", "news@shop.test", "Sale")}},
		{ID: "t4", Messages: []gmail.Message{msg("4", "news@shop.test", "Sale again")}},
		{ID: "t5", Messages: []gmail.Message{msg("5", "news@shop.test", "Last sale")}},
	}
}

func fixtureRules() []rules.Rule {
	return []rules.Rule{
		{
			ID: 1, Name: "alerts", Enabled: true, Action: rules.ActionLabel, Value: "Alerts",
			Criteria: rules.Criteria{Field: rules.FieldFrom, Value: "alerts@"},
		},
		{
			ID: 2, Name: "purge alerts", Enabled: true, Action: rules.ActionDelete,
			Criteria: rules.Criteria{Field: rules.FieldSubject, Value: "Alert 2"},
		},
		{
			ID: 3, Name: "invoices", Enabled: true, Action: rules.ActionLabel, Value: "Invoices",
			Criteria: rules.Criteria{Field: rules.FieldSubject, Value: "Invoice"},
		},
		{
			ID: 4, Name: "legacy", Enabled: true, Action: rules.ActionMarkRead,
			Criteria: rules.Criteria{Field: "listId", Value: "x"},
		},
		{
			ID: 5, Name: "paused", Enabled: false, Action: rules.ActionMarkRead,
			Criteria: rules.Criteria{Field: rules.FieldSubject, Value: "Nothing"},
		},
		{
			ID: 6, Name: "sale", Enabled: false, Action: rules.ActionMarkRead,
			Criteria: rules.Criteria{Field: rules.FieldSubject, Value: "Sale"},
		},
	}
}

func newTestService(client *fakeAuditClient, src RuleSource) *Service {
	svc := NewService(client, nil, slogDiscard(), src)
	svc.Clock = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestServiceRunFindings(t *testing.T) {
	client := &fakeAuditClient{
		threads:      fixtureThreads(),
		labelsByName: map[string]gmail.LabelID{"Alerts": "Label_1"},
	}
	svc := newTestService(client, stubRules{rules: fixtureRules()})

	rep, err := svc.Run(context.Background(), Options{MostRecent: 50})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rep.Threads != 5 || rep.Total != 5 {
		t.Fatalf("expected 5 threads/messages, got %d/%d", rep.Threads, rep.Total)
	}
	if client.mutated != 0 {
		t.Fatalf("audit must not mutate the mailbox, got %d calls", client.mutated)
	}

	if got := rep.Rules[0].Matches; got != 2 {
		t.Fatalf("expected alerts rule to match 2, got %d", got)
	}
	if rep.Rules[0].PreviewSubject != "Alert 1" {
		t.Fatalf("unexpected preview subject %q", rep.Rules[0].PreviewSubject)
	}

	dead := rep.Findings.DeadRules
	if len(dead) != 1 || dead[0].ID != 3 {
		t.Fatalf("expected invoices to be the only dead rule, got %+v", dead)
	}
	invalid := rep.Findings.InvalidRules
	if len(invalid) != 1 || invalid[0].ID != 4 {
		t.Fatalf("expected legacy rule to be invalid, got %+v", invalid)
	}
	disabled := rep.Findings.DisabledMatches
	if len(disabled) != 1 || disabled[0].ID != 6 || disabled[0].Reason != "would match 2 messages" {
		t.Fatalf("unexpected disabled matches %+v", disabled)
	}
	if len(rep.Findings.MissingLabels) != 1 || rep.Findings.MissingLabels[0] != "Invoices" {
		t.Fatalf("unexpected missing labels %+v", rep.Findings.MissingLabels)
	}
	if len(rep.Findings.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", rep.Findings.Conflicts)
	}
	want := []string{"#1 alerts", "#2 purge alerts"}
	if strings.Join(rep.Findings.Conflicts[0].Rules, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected conflict rules %+v", rep.Findings.Conflicts[0].Rules)
	}

	if len(rep.TopSenders) != 2 || rep.TopSenders[0].Domain != "shop.test" || rep.TopSenders[0].Covered {
		t.Fatalf("unexpected top senders %+v", rep.TopSenders)
	}
	if !rep.TopSenders[1].Covered {
		t.Fatalf("expected example.com to be covered")
	}
	if len(rep.Suggestions) != 1 || !strings.Contains(rep.Suggestions[0], `"@shop.test"`) {
		t.Fatalf("unexpected suggestions %+v", rep.Suggestions)
	}
}

func TestServiceRunNoMessagesHasNoDeadRules(t *testing.T) {
	client := &fakeAuditClient{}
	svc := newTestService(client, stubRules{rules: fixtureRules()})
	rep, err := svc.Run(context.Background(), Options{MostRecent: 10})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(rep.Findings.DeadRules) != 0 {
		t.Fatalf("expected no dead rules with an empty inbox, got %+v", rep.Findings.DeadRules)
	}
}

func TestServiceRunErrors(t *testing.T) {
	svc := newTestService(&fakeAuditClient{}, stubRules{})
	if _, err := svc.Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for non-positive thread count")
	}
	boom := errors.New("boom")
	svc = newTestService(&fakeAuditClient{}, stubRules{err: boom})
	if _, err := svc.Run(context.Background(), Options{MostRecent: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped rule source error, got %v", err)
	}
}

func TestLintShouldFail(t *testing.T) {
	client := &fakeAuditClient{threads: fixtureThreads(), labelsByName: map[string]gmail.LabelID{"Alerts": "Label_1", "Invoices": "Label_2"}}
	svc := newTestService(client, stubRules{rules: fixtureRules()})
	lr, err := svc.RunLint(context.Background(), Options{MostRecent: 50})
	if err != nil {
		t.Fatalf("RunLint returned error: %v", err)
	}
	if lr.ShouldFail([]string{FailMissingLabel}) {
		t.Fatal("no labels are missing")
	}
	if !lr.ShouldFail([]string{" Dead "}) {
		t.Fatal("expected dead rule failure")
	}
	if !lr.ShouldFail([]string{FailConflict}) {
		t.Fatal("expected conflict failure")
	}
	summary := lr.HumanSummary()
	if !strings.Contains(summary, "#3 invoices") || !strings.Contains(summary, "invalid rules:") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
	if (LintReport{}).HumanSummary() != "mailrules lint: 0 messages checked\nno findings\n" {
		t.Fatalf("unexpected empty summary %q", (LintReport{}).HumanSummary())
	}
}

func TestParseFailOn(t *testing.T) {
	got, err := ParseFailOn(" dead, Conflict ,,missing-label")
	if err != nil {
		t.Fatalf("ParseFailOn returned error: %v", err)
	}
	want := []string{FailDead, FailConflict, FailMissingLabel}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
	if got, err := ParseFailOn("  "); err != nil || got != nil {
		t.Fatalf("expected nil for blank input, got %v %v", got, err)
	}
	if _, err := ParseFailOn("dead,typo"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestPrintHumanAndWriteJSON(t *testing.T) {
	client := &fakeAuditClient{threads: fixtureThreads()}
	svc := newTestService(client, stubRules{rules: fixtureRules()})
	rep, err := svc.Run(context.Background(), Options{MostRecent: 50})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	var buf bytes.Buffer
	if err := PrintHuman(rep, &buf); err != nil {
		t.Fatalf("PrintHuman returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Top senders:") || !strings.Contains(buf.String(), "missing label: Alerts") {
		t.Fatalf("unexpected human output:\n%s", buf.String())
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := WriteJSON(rep, "report.json"); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	raw, err := os.ReadFile("report.json")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Total != rep.Total || len(decoded.Rules) != len(rep.Rules) {
		t.Fatalf("decoded report mismatch: %+v", decoded)
	}
	if err := WriteJSON(rep, "../escape.json"); err == nil {
		t.Fatal("expected error for escaping path")
	}
	if err := WriteJSON(rep, "/tmp/abs.json"); err == nil {
		t.Fatal("expected error for absolute path")
	}
}

func TestDomainOf(t *testing.T) {
	cases := map[string]string{
		"Alerts <Alerts@Example.COM>": "example.com",
		"plain@host.test":             "host.test",
		"broken <x@y.test":            "y.test",
		"":                            "",
		"no-at-sign":                  "",
	}
	for in, want := range cases {
		if got := domainOf(in); got != want {
			t.Errorf("domainOf(%q) = %q want %q", in, got, want)
		}
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
