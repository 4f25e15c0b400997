package audit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joshsymonds/mailrules/internal/engine"
	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/rules"
)

type ruleMatches struct {
	ids     []gmail.MessageID
	preview string
}

// evaluateRules replays every rule, enabled or not, over msgs. Rules whose
// criteria cannot be evaluated are reported instead of matched.
func evaluateRules(ruleSet []rules.Rule, msgs []gmail.Message) (map[int]*ruleMatches, []RuleFinding) {
	matches := make(map[int]*ruleMatches, len(ruleSet))
	var invalid []RuleFinding
	for _, rule := range ruleSet {
		if rule.Action == rules.ActionLabel && strings.TrimSpace(rule.Value) == "" {
			invalid = append(invalid, RuleFinding{ID: rule.ID, Name: rule.Name, Reason: "label action without a label name"})
		}
		if !rule.Action.Valid() {
			invalid = append(invalid, RuleFinding{ID: rule.ID, Name: rule.Name, Reason: fmt.Sprintf("unknown action %q", rule.Action)})
		}
		rm := &ruleMatches{}
		var evalErr error
		for _, msg := range msgs {
			ok, err := engine.Match(msg, rule.Criteria)
			if err != nil {
				evalErr = err
				break
			}
			if ok {
				if rm.preview == "" {
					rm.preview = msg.Subject
				}
				rm.ids = append(rm.ids, msg.ID)
			}
		}
		if evalErr != nil {
			invalid = append(invalid, RuleFinding{ID: rule.ID, Name: rule.Name, Reason: evalErr.Error()})
			continue
		}
		matches[rule.ID] = rm
	}
	return matches, invalid
}

func ruleStats(ruleSet []rules.Rule, matches map[int]*ruleMatches) []RuleStat {
	stats := make([]RuleStat, 0, len(ruleSet))
	for _, rule := range ruleSet {
		stat := RuleStat{
			ID:      rule.ID,
			Name:    rule.Name,
			Enabled: rule.Enabled,
			Action:  rule.Action,
		}
		if rm, ok := matches[rule.ID]; ok {
			stat.Matches = len(rm.ids)
			stat.PreviewSubject = rm.preview
		}
		stats = append(stats, stat)
	}
	return stats
}

func deadRules(ruleSet []rules.Rule, matches map[int]*ruleMatches, invalid []RuleFinding, total int) []RuleFinding {
	if total == 0 {
		return nil
	}
	skip := make(map[int]struct{}, len(invalid))
	for _, fr := range invalid {
		skip[fr.ID] = struct{}{}
	}
	var dead []RuleFinding
	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		if _, bad := skip[rule.ID]; bad {
			continue
		}
		if rm, ok := matches[rule.ID]; ok && len(rm.ids) > 0 {
			continue
		}
		dead = append(dead, RuleFinding{
			ID:     rule.ID,
			Name:   rule.Name,
			Reason: fmt.Sprintf("no matches in last %d messages", total),
		})
	}
	return dead
}

func disabledMatches(ruleSet []rules.Rule, matches map[int]*ruleMatches) []RuleFinding {
	var out []RuleFinding
	for _, rule := range ruleSet {
		if rule.Enabled {
			continue
		}
		rm, ok := matches[rule.ID]
		if !ok || len(rm.ids) == 0 {
			continue
		}
		out = append(out, RuleFinding{
			ID:     rule.ID,
			Name:   rule.Name,
			Reason: fmt.Sprintf("would match %d messages", len(rm.ids)),
		})
	}
	return out
}

func missingLabels(ruleSet []rules.Rule, labelsByName map[string]gmail.LabelID) []string {
	var missing []string
	for _, rule := range ruleSet {
		if !rule.Enabled || rule.Action != rules.ActionLabel {
			continue
		}
		name := strings.TrimSpace(rule.Value)
		if name == "" {
			continue
		}
		if _, ok := labelsByName[name]; !ok {
			missing = appendIfMissing(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// detectConflicts reports enabled rules that would both label and trash the
// same message.
func detectConflicts(ruleSet []rules.Rule, matches map[int]*ruleMatches) []Conflict {
	type hit struct {
		label  []string
		delete []string
	}
	byMessage := make(map[gmail.MessageID]*hit)
	for _, rule := range ruleSet {
		rm, ok := matches[rule.ID]
		if !rule.Enabled || !ok {
			continue
		}
		for _, id := range rm.ids {
			h := byMessage[id]
			if h == nil {
				h = &hit{}
				byMessage[id] = h
			}
			switch rule.Action {
			case rules.ActionLabel:
				h.label = appendIfMissing(h.label, ruleRef(rule))
			case rules.ActionDelete:
				h.delete = appendIfMissing(h.delete, ruleRef(rule))
			}
		}
	}
	seen := map[string]struct{}{}
	var conflicts []Conflict
	for _, h := range byMessage {
		if len(h.label) == 0 || len(h.delete) == 0 {
			continue
		}
		combined := append([]string{}, h.label...)
		for _, name := range h.delete {
			combined = appendIfMissing(combined, name)
		}
		sort.Strings(combined)
		key := strings.Join(combined, "|")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		conflicts = append(conflicts, Conflict{
			Rules:       combined,
			Description: "label and delete rules overlap",
		})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return strings.Join(conflicts[i].Rules, "|") < strings.Join(conflicts[j].Rules, "|")
	})
	return conflicts
}

// rankSenders counts messages per sender domain. A domain is covered when any
// of its messages matched an enabled rule.
func rankSenders(ruleSet []rules.Rule, msgs []gmail.Message, matches map[int]*ruleMatches, topN int) []SenderStat {
	matched := make(map[gmail.MessageID]struct{})
	for _, rule := range ruleSet {
		rm, ok := matches[rule.ID]
		if !rule.Enabled || !ok {
			continue
		}
		for _, id := range rm.ids {
			matched[id] = struct{}{}
		}
	}
	byDomain := make(map[string]*SenderStat)
	for _, msg := range msgs {
		dom := domainOf(msg.From)
		if dom == "" {
			continue
		}
		stat := byDomain[dom]
		if stat == nil {
			stat = &SenderStat{Domain: dom, PreviewSubject: msg.Subject}
			byDomain[dom] = stat
		}
		stat.Count++
		if _, ok := matched[msg.ID]; ok {
			stat.Covered = true
		}
	}
	out := make([]SenderStat, 0, len(byDomain))
	for _, stat := range byDomain {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

const suggestionMinCount = 3

func buildSuggestions(senders []SenderStat) []string {
	var out []string
	for _, s := range senders {
		if s.Covered || s.Count < suggestionMinCount {
			continue
		}
		out = append(out, fmt.Sprintf(
			"mailrules rules add --name %s --field from --contains %s --action label --value %s",
			strconv.Quote(s.Domain),
			strconv.Quote("@"+s.Domain),
			strconv.Quote(s.Domain),
		))
	}
	return out
}

func ruleRef(rule rules.Rule) string {
	return fmt.Sprintf("#%d %s", rule.ID, rule.Name)
}
