package sanctuary

import (
	"sort"
	"strconv"
	"strings"

	"conductor/internal/domain"
)

const rulePrefix = "Rule:"

// ParseModulations parses a modulation set. Each "## Rule: <name>" section
// yields one rule, in document order; other sections are ignored.
func ParseModulations(name, text string) ([]domain.ModulationRule, error) {
	doc := scan(text)

	rules := []domain.ModulationRule{}
	for _, s := range doc.sections {
		ruleName, ok := strings.CutPrefix(s.name, rulePrefix)
		if !ok {
			continue
		}
		rules = append(rules, parseRule(strings.TrimSpace(ruleName), s))
	}
	return rules, nil
}

func parseRule(name string, s section) domain.ModulationRule {
	rule := domain.ModulationRule{
		Name:     name,
		Priority: domain.DefaultModulationPriority,
		Metadata: map[string]string{},
	}
	for _, l := range s.lines {
		key, value, ok := splitPair(l)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "trigger":
			rule.Trigger = value
		case "effect":
			rule.Effect = value
		case "priority":
			if p, err := strconv.Atoi(value); err == nil {
				rule.Priority = p
			}
		default:
			rule.Metadata[strings.ToLower(key)] = value
		}
	}
	return rule
}

// SortByPriority orders rules by descending priority, keeping the relative
// order of equal priorities.
func SortByPriority(rules []domain.ModulationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
