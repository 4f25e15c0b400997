package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joshsymonds/mailrules/internal/property"
)

// Key is the property under which the rule collection is stored.
const Key = "rules"

// ErrRuleNotFound is returned when no rule carries the requested id.
var ErrRuleNotFound = errors.New("rule not found")

// Store owns the persisted rule collection. Every mutation rewrites the
// whole document; concurrent writers race and the last one wins.
type Store struct {
	Bag    property.Bag
	Logger *slog.Logger
}

// NewStore returns a Store over bag.
func NewStore(bag property.Bag, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Store{Bag: bag, Logger: logger}
}

// List returns the stored rules in insertion order. A missing or
// malformed document yields an empty list.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	raw, ok, err := s.Bag.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []Rule{}, nil
	}
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		s.Logger.ErrorContext(ctx, "failed to parse rules", "error", err)
		return []Rule{}, nil
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

// Get returns the rule with id.
func (s *Store) Get(ctx context.Context, id int) (Rule, error) {
	rules, err := s.List(ctx)
	if err != nil {
		return Rule{}, err
	}
	if i := indexOf(rules, id); i >= 0 {
		return rules[i], nil
	}
	return Rule{}, fmt.Errorf("rule %d: %w", id, ErrRuleNotFound)
}

// Append stores a new rule with the next free id and returns it.
func (s *Store) Append(ctx context.Context, req CreateRuleRequest) (Rule, error) {
	if err := req.Validate(); err != nil {
		return Rule{}, err
	}
	rules, err := s.List(ctx)
	if err != nil {
		return Rule{}, err
	}
	rule := req.rule(NextID(rules))
	rules = append(rules, rule)
	if err := s.save(ctx, rules); err != nil {
		return Rule{}, err
	}
	s.Logger.InfoContext(ctx, "rule created", "id", rule.ID, "name", rule.Name)
	return rule, nil
}

// Replace overwrites every field of rule id except the id itself.
// Storage is untouched when the rule does not exist.
func (s *Store) Replace(ctx context.Context, id int, req UpdateRuleRequest) (Rule, error) {
	if err := req.Validate(); err != nil {
		return Rule{}, err
	}
	rules, err := s.List(ctx)
	if err != nil {
		return Rule{}, err
	}
	i := indexOf(rules, id)
	if i < 0 {
		return Rule{}, fmt.Errorf("update rule %d: %w", id, ErrRuleNotFound)
	}
	rules[i] = req.apply(rules[i])
	if err := s.save(ctx, rules); err != nil {
		return Rule{}, err
	}
	s.Logger.InfoContext(ctx, "rule updated", "id", id)
	return rules[i], nil
}

// Remove deletes rule id. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id int) error {
	rules, err := s.List(ctx)
	if err != nil {
		return err
	}
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rules) {
		return nil
	}
	if err := s.save(ctx, kept); err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "rule deleted", "id", id)
	return nil
}

// NextID returns max(ids)+1, or 1 for an empty collection.
func NextID(rules []Rule) int {
	highest := 0
	for _, r := range rules {
		if r.ID > highest {
			highest = r.ID
		}
	}
	return highest + 1
}

func (s *Store) save(ctx context.Context, rules []Rule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.Bag.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return nil
}

func indexOf(rules []Rule, id int) int {
	for i, r := range rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}
