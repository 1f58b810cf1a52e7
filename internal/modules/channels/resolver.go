package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tier is the strategy that resolved a name
type Tier string

const (
	TierDirect     Tier = "direct"
	TierFuzzy      Tier = "fuzzy"
	TierRegex      Tier = "regex"
	TierUnresolved Tier = "unresolved"
)

// Default fuzzy thresholds for names and acronyms
const (
	DefaultNameThreshold    = 90
	DefaultAcronymThreshold = 95
)

// Resolution is the outcome of resolving one raw name
type Resolution struct {
	Raw      string `json:"raw"`
	Code     string `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Tier     Tier   `json:"tier"`
	Score    int    `json:"score,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Option configures a Resolver
type Option func(*Resolver)

// WithThresholds sets the fuzzy thresholds for names and acronyms
func WithThresholds(name, acronym int) Option {
	return func(r *Resolver) {
		r.nameThreshold = name
		r.acronymThreshold = acronym
	}
}

// WithRuleCache persists the generated rule dictionary
func WithRuleCache(cache *RuleCache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithOverrides adds curated rules tried after the built-in overrides
func WithOverrides(rules ...Rule) Option {
	return func(r *Resolver) {
		for _, rule := range rules {
			rule.Kind = RuleOverride
			r.overrides = append(r.overrides, rule)
		}
	}
}

type resolverState struct {
	catalogue *Catalogue
	rules     *RuleSet
	builtAt   time.Time
}

type lazyState struct {
	once  sync.Once
	state *resolverState
	err   error
}

// Resolver maps raw institution names to channel codes: direct match, then
// fuzzy match, then the regex rule dictionary. The catalogue and rules are
// built once on first use and shared by concurrent callers until Invalidate.
type Resolver struct {
	source           Source
	cache            *RuleCache
	overrides        []Rule
	nameThreshold    int
	acronymThreshold int
	log              zerolog.Logger

	mu   sync.Mutex
	lazy *lazyState

	unresolvedMu sync.Mutex
	unresolved   map[string]struct{}
}

// NewResolver creates a resolver over a catalogue source
func NewResolver(source Source, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		source:           source,
		nameThreshold:    DefaultNameThreshold,
		acronymThreshold: DefaultAcronymThreshold,
		log:              log.With().Str("service", "channel_resolver").Logger(),
		lazy:             &lazyState{},
		unresolved:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load builds the catalogue and rule dictionary if they are not built yet
func (r *Resolver) Load(ctx context.Context) error {
	_, err := r.state(ctx)
	return err
}

// Invalidate discards the catalogue and rules; the next call rebuilds them
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.lazy = &lazyState{}
	r.mu.Unlock()
	r.log.Info().Msg("Channel catalogue invalidated")
}

// Catalogue returns the current catalogue, building it if needed
func (r *Resolver) Catalogue(ctx context.Context) (*Catalogue, error) {
	st, err := r.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.catalogue, nil
}

// Status describes the built catalogue
type Status struct {
	Channels   int       `json:"channels"`
	Rules      int       `json:"rules"`
	BuiltAt    time.Time `json:"built_at"`
	Unresolved int       `json:"unresolved"`
}

// Status builds the catalogue if needed and reports its size
func (r *Resolver) Status(ctx context.Context) (Status, error) {
	st, err := r.state(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Channels:   st.catalogue.Len(),
		Rules:      st.rules.Len(),
		BuiltAt:    st.builtAt,
		Unresolved: len(r.Unresolved()),
	}, nil
}

func (r *Resolver) state(ctx context.Context) (*resolverState, error) {
	r.mu.Lock()
	l := r.lazy
	r.mu.Unlock()

	l.once.Do(func() {
		l.state, l.err = r.build(ctx)
	})

	if l.err != nil {
		// Let the next caller retry instead of caching the failure
		r.mu.Lock()
		if r.lazy == l {
			r.lazy = &lazyState{}
		}
		r.mu.Unlock()
		return nil, l.err
	}
	return l.state, nil
}

func (r *Resolver) build(ctx context.Context) (*resolverState, error) {
	start := time.Now()

	entities, err := r.source.LoadChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel catalogue: %w", err)
	}
	catalogue := NewCatalogue(entities)

	fingerprint := Fingerprint(catalogue.Entities(), r.overrides)
	var rules []Rule
	cached := false
	if r.cache != nil {
		rules, cached, err = r.cache.Load(fingerprint)
		if err != nil {
			r.log.Warn().Err(err).Msg("Ignoring unreadable rule cache")
		}
	}
	if !cached {
		rules = append(GenerateRules(catalogue.Entities()), r.overrides...)
	}

	ruleSet, err := NewRuleSet(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel rules: %w", err)
	}

	if r.cache != nil && !cached {
		if err := r.cache.Save(fingerprint, ruleSet.Rules()); err != nil {
			r.log.Warn().Err(err).Msg("Failed to save rule cache")
		}
	}

	r.log.Info().
		Int("channels", catalogue.Len()).
		Int("rules", ruleSet.Len()).
		Bool("from_cache", cached).
		Dur("duration", time.Since(start)).
		Msg("Channel catalogue built")

	return &resolverState{catalogue: catalogue, rules: ruleSet, builtAt: time.Now()}, nil
}

// Resolve maps one raw name to a channel code. Unresolved names are recorded
// for export.
func (r *Resolver) Resolve(raw string) Resolution {
	res := Resolution{Raw: raw, Tier: TierUnresolved}

	st, err := r.state(context.Background())
	if err != nil {
		r.log.Error().Err(err).Str("name", raw).Msg("Channel catalogue unavailable")
		return res
	}

	normalised := Normalise(raw)
	if normalised != "" {
		res = r.resolveNormalised(st, res, normalised)
	}

	if !res.Resolved {
		r.unresolvedMu.Lock()
		r.unresolved[raw] = struct{}{}
		r.unresolvedMu.Unlock()
		r.log.Debug().Str("name", raw).Msg("Channel name unresolved")
	}
	return res
}

func (r *Resolver) resolveNormalised(st *resolverState, res Resolution, normalised string) Resolution {
	if code, ok := st.catalogue.direct(normalised); ok {
		return r.resolved(st, res, code, TierDirect, 100)
	}

	tables := []struct {
		candidates []fuzzyCandidate
		threshold  int
	}{
		{st.catalogue.fuzzyNames, r.nameThreshold},
		{st.catalogue.fuzzyEnAcronym, r.acronymThreshold},
		{st.catalogue.fuzzyFrAcronym, r.acronymThreshold},
	}
	for _, t := range tables {
		if match, score, ok := bestFuzzy(normalised, t.candidates, t.threshold); ok {
			return r.resolved(st, res, match.code, TierFuzzy, score)
		}
	}

	if rule, ok := st.rules.Match(normalised); ok {
		return r.resolved(st, res, rule.Code, TierRegex, 0)
	}
	return res
}

func (r *Resolver) resolved(st *resolverState, res Resolution, code string, tier Tier, score int) Resolution {
	res.Code = code
	res.Tier = tier
	res.Score = score
	res.Resolved = true
	if e, ok := st.catalogue.Lookup(code); ok {
		res.Name = e.Name
	}
	return res
}

// ResolveAll resolves each distinct name once
func (r *Resolver) ResolveAll(names []string) map[string]Resolution {
	out := make(map[string]Resolution, len(names))
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		out[name] = r.Resolve(name)
	}
	return out
}

// ResolveCode returns the channel code for a raw name
func (r *Resolver) ResolveCode(name string) (string, bool) {
	res := r.Resolve(name)
	return res.Code, res.Resolved
}

// Unresolved returns the distinct names that could not be resolved, sorted
func (r *Resolver) Unresolved() []string {
	r.unresolvedMu.Lock()
	defer r.unresolvedMu.Unlock()

	names := make([]string, 0, len(r.unresolved))
	for name := range r.unresolved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportUnresolved writes the unresolved names to an exporter and returns how
// many were written
func (r *Resolver) ExportUnresolved(ctx context.Context, exporter Exporter) (int, error) {
	names := r.Unresolved()
	if err := exporter.Export(ctx, names); err != nil {
		return 0, fmt.Errorf("failed to export unresolved channels: %w", err)
	}
	r.log.Info().Int("count", len(names)).Str("destination", exporter.Destination()).Msg("Exported unresolved channel names")
	return len(names), nil
}
