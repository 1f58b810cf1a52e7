package imputation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/methodology"
)

// Coverage reports how much of the input reached the output
type Coverage struct {
	Spending        methodology.Coverage `json:"spending"`
	Contributions   int                  `json:"contributions"`
	Matched         int                  `json:"matched"`
	Unresolved      int                  `json:"unresolved"`
	MissingShare    int                  `json:"missing_share"`
	MatchedValue    float64              `json:"matched_value"`
	UnmatchedValue  float64              `json:"unmatched_value"`
	ShareGroups     int                  `json:"share_groups"`
	DivisionByZeros int                  `json:"division_by_zero"`
}

// Result holds the imputed records, the shares they were derived from and
// the recoverable problems found
type Result struct {
	Records  []domain.ImputedRecord `json:"records"`
	Shares   []Share                `json:"shares"`
	Warnings domain.Warnings        `json:"warnings"`
	Coverage Coverage               `json:"coverage"`
}

// Calculator imputes multilateral climate finance to providers
type Calculator struct {
	classifier *methodology.Classifier
	resolver   domain.ChannelResolver
	converter  domain.Converter
	log        zerolog.Logger
}

// NewCalculator creates a calculator. A nil resolver leaves contributions
// without a channel code unresolved; a nil converter keeps reported values.
func NewCalculator(classifier *methodology.Classifier, resolver domain.ChannelResolver, converter domain.Converter, log zerolog.Logger) *Calculator {
	if converter == nil {
		converter = domain.IdentityConverter{}
	}
	return &Calculator{
		classifier: classifier,
		resolver:   resolver,
		converter:  converter,
		log:        log.With().Str("service", "imputation").Logger(),
	}
}

// Methodology returns the methodology applied when a request does not choose one
func (c *Calculator) Methodology() methodology.Methodology {
	if c.classifier == nil {
		return methodology.Methodology{}
	}
	return c.classifier.Methodology()
}

// Impute computes institution climate shares from multilateral spending and
// applies them to the core contributions each provider made
func (c *Calculator) Impute(ctx context.Context, req Request) (Result, error) {
	s, err := req.settings()
	if err != nil {
		return Result{}, err
	}

	classifier := c.classifier
	if req.Methodology != nil {
		classifier, err = methodology.NewClassifier(*req.Methodology, c.log)
		if err != nil {
			return Result{}, err
		}
	}
	if classifier == nil {
		return Result{}, fmt.Errorf("%w: no methodology configured", domain.ErrInvalidMethodology)
	}

	result := Result{Records: []domain.ImputedRecord{}, Shares: []Share{}}

	spending, err := c.prepareSpending(req.Spending, s)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	classified, err := classifier.Classify(spending)
	if err != nil {
		return Result{}, fmt.Errorf("failed to classify spending: %w", err)
	}
	result.Warnings = append(result.Warnings, classified.Warnings...)
	result.Coverage.Spending = classified.Coverage

	table := newShareTable()
	for _, rec := range classified.Records {
		a := rec.Activity
		g := groupKey{channel: a.ChannelCode, flow: a.FlowType, currency: a.Currency, prices: a.Prices}
		table.addTotal(g, a.Year, a.Value)

		series := seriesKey{group: g}
		if s.byRecipient {
			series.recipient = a.RecipientCode
		}
		if s.byPurpose {
			series.purpose = a.PurposeCode
		}
		for _, alloc := range rec.Allocations {
			if alloc.Category.IsClimate() {
				table.addClimate(series, a.Year, alloc.Category, alloc.Value)
			}
		}
	}

	before := result.Warnings.Count(domain.WarnDivisionByZeroShare)
	shares := table.shares(s.window, s.aggregation, &result.Warnings)
	result.Coverage.DivisionByZeros = result.Warnings.Count(domain.WarnDivisionByZeroShare) - before
	result.Coverage.ShareGroups = len(shares)
	for _, g := range table.sortedGroups() {
		for _, year := range sortedShareYears(shares[g]) {
			result.Shares = append(result.Shares, shares[g][year]...)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	lines, err := c.joinContributions(ctx, req.Contributions, shares, s, &result)
	if err != nil {
		return Result{}, err
	}
	result.Records = aggregateLines(lines, s)

	for _, w := range result.Warnings {
		if w.Code == domain.WarnUnresolvedChannel || w.Code == domain.WarnMissingShare {
			c.log.Warn().Str("code", string(w.Code)).Str("provider", w.Provider).Int("year", w.Year).Msg(w.Message)
		}
	}
	c.log.Info().
		Int("contributions", result.Coverage.Contributions).
		Int("matched", result.Coverage.Matched).
		Int("records", len(result.Records)).
		Int("window", s.window).
		Msg("Imputation completed")

	return result, nil
}

// prepareSpending filters flows, assigns institution codes and converts
// values to the target basis
func (c *Calculator) prepareSpending(activities []domain.Activity, s settings) ([]domain.Activity, error) {
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if !s.keepsFlow(a.FlowType) {
			continue
		}
		a.ChannelCode = c.institution(a)
		if a.Prices.Prices == "" {
			a.Prices = domain.Current()
		}

		if s.convert {
			from := a.Basis()
			value, err := c.converter.Convert(a.Value, from, a.Year, s.target)
			if err != nil {
				return nil, fmt.Errorf("failed to convert spending of %q: %w", a.ChannelCode, err)
			}
			if a.Components != nil {
				comp := *a.Components
				for _, v := range []*float64{&comp.Adaptation, &comp.Mitigation, &comp.Overlap} {
					if *v, err = c.converter.Convert(*v, from, a.Year, s.target); err != nil {
						return nil, fmt.Errorf("failed to convert climate components of %q: %w", a.ChannelCode, err)
					}
				}
				a.Components = &comp
			}
			a.Value = value
			a.Currency = s.target.Currency
			a.Prices = s.target.Prices
		}
		out = append(out, a)
	}
	return out, nil
}

// institution picks the code spending is grouped under: the reported channel,
// then the resolved channel name, then the reporting provider itself
func (c *Calculator) institution(a domain.Activity) string {
	if code := domain.NormaliseCode(a.ChannelCode); code != "" {
		return code
	}
	if a.ChannelName != "" && c.resolver != nil {
		if code, ok := c.resolver.ResolveCode(a.ChannelName); ok {
			return code
		}
	}
	return domain.NormaliseCode(a.ProviderCode)
}

// line is one contribution multiplied by one share
type line struct {
	contribution int
	provider     string
	channel      string
	year         int
	flow         domain.FlowType
	recipient    string
	purpose      string
	category     domain.Category
	currency     string
	prices       domain.PriceBasis
	value        float64
	contributed  float64
	window       int
}

func (c *Calculator) joinContributions(ctx context.Context, contributions []domain.CoreContribution, shares map[groupKey]map[int][]Share, s settings, result *Result) ([]line, error) {
	var lines []line
	for i, contrib := range contributions {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !s.keepsFlow(contrib.FlowType) {
			continue
		}
		result.Coverage.Contributions++

		code := domain.NormaliseCode(contrib.ChannelCode)
		if code == "" {
			name := contrib.ChannelName
			if resolved, ok := c.resolve(name); ok {
				code = resolved
			} else {
				result.Coverage.Unresolved++
				result.Coverage.UnmatchedValue += contrib.Value
				result.Warnings.Add(domain.WarnUnresolvedChannel, contrib.ProviderCode, contrib.Year, name,
					"contribution to %q could not be resolved to a channel code", name)
				continue
			}
		}

		value := contrib.Value
		basis := contrib.Basis()
		if s.convert {
			converted, err := c.converter.Convert(value, basis, contrib.Year, s.target)
			if err != nil {
				return nil, fmt.Errorf("failed to convert contribution to %q: %w", code, err)
			}
			value = converted
			basis = s.target
		}
		if basis.Prices.Prices == "" {
			basis.Prices = domain.Current()
		}

		g := groupKey{channel: code, flow: contrib.FlowType, currency: basis.Currency, prices: basis.Prices}
		matched, ok := shares[g][contrib.Year]
		if !ok {
			result.Coverage.MissingShare++
			result.Coverage.UnmatchedValue += value
			result.Warnings.Add(domain.WarnMissingShare, contrib.ProviderCode, contrib.Year, code,
				"no %s climate share for channel %q in %d", contrib.FlowType, code, contrib.Year)
			continue
		}

		result.Coverage.Matched++
		result.Coverage.MatchedValue += value
		for _, share := range matched {
			for _, cat := range domain.ClimateCategories() {
				v := share.For(cat)
				if v <= 0 {
					continue
				}
				lines = append(lines, line{
					contribution: i,
					provider:     domain.NormaliseCode(contrib.ProviderCode),
					channel:      code,
					year:         contrib.Year,
					flow:         contrib.FlowType,
					recipient:    share.RecipientCode,
					purpose:      share.PurposeCode,
					category:     cat,
					currency:     basis.Currency,
					prices:       basis.Prices,
					value:        value * v,
					contributed:  value,
					window:       share.Window,
				})
			}
		}
	}
	return lines, nil
}

func (c *Calculator) resolve(name string) (string, bool) {
	if name == "" || c.resolver == nil {
		return "", false
	}
	return c.resolver.ResolveCode(name)
}

type outputKey struct {
	provider  string
	year      int
	channel   string
	flow      domain.FlowType
	recipient string
	purpose   string
	category  domain.Category
	currency  string
	prices    domain.PriceBasis
}

type outputRow struct {
	record        domain.ImputedRecord
	contributions map[int]struct{}
}

// aggregateLines sums imputed lines by the requested output keys. Category,
// currency and prices are always kept.
func aggregateLines(lines []line, s settings) []domain.ImputedRecord {
	rows := make(map[outputKey]*outputRow)
	order := make([]outputKey, 0)

	for _, l := range lines {
		k := outputKey{category: l.category, currency: l.currency, prices: l.prices}
		if s.output[KeyProvider] {
			k.provider = l.provider
		}
		if s.output[KeyYear] {
			k.year = l.year
		}
		if s.output[KeyChannel] {
			k.channel = l.channel
		}
		if s.output[KeyFlowType] {
			k.flow = l.flow
		}
		if s.output[KeyRecipient] {
			k.recipient = l.recipient
		}
		if s.output[KeyPurpose] {
			k.purpose = l.purpose
		}

		row, ok := rows[k]
		if !ok {
			row = &outputRow{
				record: domain.ImputedRecord{
					ProviderCode:  k.provider,
					RecipientCode: k.recipient,
					PurposeCode:   k.purpose,
					Year:          k.year,
					Category:      k.category,
					FlowType:      k.flow,
					Currency:      k.currency,
					Prices:        k.prices,
					Provenance: domain.ImputationProvenance{
						ChannelCode: k.channel,
						Window:      l.window,
					},
				},
				contributions: make(map[int]struct{}),
			}
			rows[k] = row
			order = append(order, k)
		}
		row.record.Value += l.value
		if _, seen := row.contributions[l.contribution]; !seen {
			row.contributions[l.contribution] = struct{}{}
			row.record.Provenance.ContributionValue += l.contributed
		}
	}

	records := make([]domain.ImputedRecord, 0, len(order))
	for _, k := range order {
		rec := rows[k].record
		rec.Provenance.Share = ratio(rec.Value, rec.Provenance.ContributionValue)
		records = append(records, rec)
	}
	sortRecords(records)
	return records
}

func sortRecords(records []domain.ImputedRecord) {
	rank := make(map[domain.Category]int)
	for i, c := range domain.ClimateCategories() {
		rank[c] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch {
		case a.ProviderCode != b.ProviderCode:
			return a.ProviderCode < b.ProviderCode
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Provenance.ChannelCode != b.Provenance.ChannelCode:
			return a.Provenance.ChannelCode < b.Provenance.ChannelCode
		case a.FlowType != b.FlowType:
			return a.FlowType < b.FlowType
		case a.RecipientCode != b.RecipientCode:
			return a.RecipientCode < b.RecipientCode
		case a.PurposeCode != b.PurposeCode:
			return a.PurposeCode < b.PurposeCode
		}
		return rank[a.Category] < rank[b.Category]
	})
}

func sortedShareYears(m map[int][]Share) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
