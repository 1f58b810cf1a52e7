package channels

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RuleKind identifies how a rule was generated
type RuleKind string

const (
	RuleAcronym  RuleKind = "acronym"
	RuleFull     RuleKind = "full"
	RulePartial  RuleKind = "partial"
	RuleOverride RuleKind = "override"
)

// ruleKindOrder is the order in which rule groups are tried
var ruleKindOrder = map[RuleKind]int{
	RuleAcronym:  0,
	RuleFull:     1,
	RulePartial:  2,
	RuleOverride: 3,
}

// Rule maps a conjunction of patterns to a channel code. Every pattern must
// match somewhere in the name, in any order.
type Rule struct {
	Code     string   `msgpack:"code" json:"code"`
	Kind     RuleKind `msgpack:"kind" json:"kind"`
	Patterns []string `msgpack:"patterns" json:"patterns"`

	compiled []*regexp.Regexp
}

// Length is the size of the expression, used to try specific rules first
func (r Rule) Length() int {
	n := 0
	for _, p := range r.Patterns {
		n += len(p)
	}
	if len(r.Patterns) > 1 {
		n += len(r.Patterns) - 1
	}
	return n
}

func (r Rule) key() string {
	return strings.Join(r.Patterns, "\x00")
}

func (r *Rule) compile() error {
	r.compiled = make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("failed to compile pattern %q for channel %s: %w", p, r.Code, err)
		}
		r.compiled = append(r.compiled, re)
	}
	return nil
}

// Match reports whether every pattern matches the name
func (r Rule) Match(name string) bool {
	if len(r.compiled) == 0 {
		return false
	}
	for _, re := range r.compiled {
		if !re.MatchString(name) {
			return false
		}
	}
	return true
}

// overrideRules cover institutions whose public name diverges from the
// canonical catalogue name
var overrideRules = []Rule{
	{Code: "44000", Patterns: []string{`\bworld bank\b`}},
	{Code: "47044", Patterns: []string{`\bcbit\b`}},
	{Code: "47129", Patterns: []string{`\bleast developed countries fund\b`}},
	{Code: "21039", Patterns: []string{`\biisd\b`, `\biidd\b`, `\binstitut\b`}},
	{Code: "47078", Patterns: []string{`\bmontreal protocol\b`}},
	{Code: "46012", Patterns: []string{`\binteramerican\b`, `\biic\b`}},
	{Code: "47005", Patterns: []string{`\bafrican union\b`}},
	{Code: "44001", Patterns: []string{`\bibrdesmap\b`}},
	{Code: "41316", Patterns: []string{`\bkyoto protocol\b`}},
	{Code: "47015", Patterns: []string{`consultative group of international agricultural research`}},
	{Code: "44004", Patterns: []string{`\b[a-zA-Z]{2,}ifc\b`}},
	{Code: "21063", Patterns: []string{`\bconservation international\b`}},
	{Code: "41301", Patterns: []string{`food and agriculture organisation`}},
	{Code: "47134", Patterns: []string{`\bcif\b`}},
	{Code: "21508", Patterns: []string{`\bseforall\b`}},
	{Code: "41315", Patterns: []string{`\bunisdr\b`}},
	{Code: "41116", Patterns: []string{`\bgems\b`}},
	{Code: "41312", Patterns: []string{`\biaea\b`}},
	{Code: "41107", Patterns: []string{`\biaea\b`, `\bmandatory\b`}},
	{Code: "47078", Patterns: []string{`\biaea\b`, `\btechnical\b`}},
	{Code: "44000", Patterns: []string{`\bworld bank agreed\b`}},
	{Code: "46012", Patterns: []string{`\binteramerican investment corporation\b`}},
	{Code: "46012", Patterns: []string{`\bmultilateral investment fund\b`}},
	{Code: "47078", Patterns: []string{`\bmultilateral fund\b`}},
	{Code: "41116", Patterns: []string{`\bccac\b`}},
	{Code: "41121", Patterns: []string{`\bhaut\b`, `\bcommissariat\b`, `\bréfugiés\b`}},
	{Code: "41307", Patterns: []string{`\bworld health organization\b`}},
	{Code: "47134", Patterns: []string{`\bclimate investment funds\b`}},
	{Code: "47028", Patterns: []string{`\bcommonwealth small states\b`}},
	{Code: "41316", Patterns: []string{`\bctcn\b`}},
	{Code: "41402", Patterns: []string{`\bsdg \b`}},
	{Code: "47078", Patterns: []string{`\bmontreal fund\b`}},
	{Code: "47130", Patterns: []string{`\bspecial climate change fund\b`}},
	{Code: "41114", Patterns: []string{`\bdevelopment programme\b`}},
	{Code: "46013", Patterns: []string{`\bfund for special operations fso\b`}},
}

// RuleSet is an ordered, compiled rule dictionary
type RuleSet struct {
	rules []Rule
}

// GenerateRules derives acronym, full-name and partial-name rules from the
// catalogue and appends the override table
func GenerateRules(entities []Entity) []Rule {
	var acronyms, full, partial []Rule

	for _, e := range entities {
		if e.Code == "" {
			continue
		}
		if words := ruleWords(compactAcronym(e.EnAcronym)); len(words) > 0 && words[0] != "nan" {
			acronyms = append(acronyms, Rule{
				Code:     e.Code,
				Kind:     RuleAcronym,
				Patterns: []string{`\b` + regexp.QuoteMeta(words[0]) + `\b`},
			})
		}

		words := ruleWords(Normalise(e.Name))
		if len(words) == 0 {
			continue
		}
		full = append(full, Rule{Code: e.Code, Kind: RuleFull, Patterns: wordPatterns(words)})
		required := len(words)/2 + 1
		partial = append(partial, Rule{Code: e.Code, Kind: RulePartial, Patterns: wordPatterns(words[:required])})
	}

	overrides := make([]Rule, len(overrideRules))
	for i, r := range overrideRules {
		r.Kind = RuleOverride
		r.Patterns = append([]string(nil), r.Patterns...)
		overrides[i] = r
	}

	rules := make([]Rule, 0, len(acronyms)+len(full)+len(partial)+len(overrides))
	rules = append(rules, acronyms...)
	rules = append(rules, full...)
	rules = append(rules, partial...)
	rules = append(rules, overrides...)
	return rules
}

func wordPatterns(words []string) []string {
	patterns := make([]string, len(words))
	for i, w := range words {
		patterns[i] = regexp.QuoteMeta(w)
	}
	return patterns
}

// NewRuleSet compiles rules and orders them: acronym, full, partial and
// override groups in turn, longest expression first within each group.
// A pattern set already claimed by an earlier rule is dropped.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := ruleKindOrder[ordered[i].Kind], ruleKindOrder[ordered[j].Kind]
		if ki != kj {
			return ki < kj
		}
		li, lj := ordered[i].Length(), ordered[j].Length()
		if li != lj {
			return li > lj
		}
		return ordered[i].Code < ordered[j].Code
	})

	seen := make(map[string]bool, len(ordered))
	set := &RuleSet{rules: make([]Rule, 0, len(ordered))}
	for _, r := range ordered {
		if len(r.Patterns) == 0 || seen[r.key()] {
			continue
		}
		seen[r.key()] = true
		if err := r.compile(); err != nil {
			return nil, err
		}
		set.rules = append(set.rules, r)
	}
	return set, nil
}

// Match returns the first rule matching a normalised name
func (s *RuleSet) Match(name string) (Rule, bool) {
	for _, r := range s.rules {
		if r.Match(name) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns the ordered rules without their compiled state
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = Rule{Code: r.Code, Kind: r.Kind, Patterns: append([]string(nil), r.Patterns...)}
	}
	return out
}

// Len returns the number of rules
func (s *RuleSet) Len() int {
	return len(s.rules)
}
