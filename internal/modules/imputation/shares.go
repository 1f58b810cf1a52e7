package imputation

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/climate-finance/engine/internal/domain"
)

// Share is the smoothed climate share of one institution's spending
type Share struct {
	ChannelCode   string            `json:"channel_code"`
	Year          int               `json:"year"`
	FlowType      domain.FlowType   `json:"flow_type"`
	Currency      string            `json:"currency"`
	Prices        domain.PriceBasis `json:"prices"`
	RecipientCode string            `json:"recipient_code,omitempty"`
	PurposeCode   string            `json:"purpose_code,omitempty"`
	Adaptation    float64           `json:"adaptation"`
	Mitigation    float64           `json:"mitigation"`
	CrossCutting  float64           `json:"cross_cutting"`
	Climate       float64           `json:"climate"`
	// Spending is the total spending of the window the share was computed over
	Spending float64 `json:"spending"`
	Window   int     `json:"window"`
}

// For returns the share of a climate category
func (s Share) For(c domain.Category) float64 {
	switch c {
	case domain.CategoryAdaptation:
		return s.Adaptation
	case domain.CategoryMitigation:
		return s.Mitigation
	case domain.CategoryCrossCutting:
		return s.CrossCutting
	}
	return 0
}

func (s *Share) set(c domain.Category, v float64) {
	switch c {
	case domain.CategoryAdaptation:
		s.Adaptation = v
	case domain.CategoryMitigation:
		s.Mitigation = v
	case domain.CategoryCrossCutting:
		s.CrossCutting = v
	}
}

// groupKey is the institution-level grouping without the year
type groupKey struct {
	channel  string
	flow     domain.FlowType
	currency string
	prices   domain.PriceBasis
}

// seriesKey adds the optional share dimensions
type seriesKey struct {
	group     groupKey
	recipient string
	purpose   string
}

// shareTable accumulates converted spending before shares are derived
type shareTable struct {
	totals  map[groupKey]map[int]float64
	climate map[seriesKey]map[int]map[domain.Category]float64
	series  map[groupKey][]seriesKey
}

func newShareTable() *shareTable {
	return &shareTable{
		totals:  make(map[groupKey]map[int]float64),
		climate: make(map[seriesKey]map[int]map[domain.Category]float64),
		series:  make(map[groupKey][]seriesKey),
	}
}

func (t *shareTable) addTotal(g groupKey, year int, value float64) {
	years, ok := t.totals[g]
	if !ok {
		years = make(map[int]float64)
		t.totals[g] = years
	}
	years[year] += value
}

func (t *shareTable) addClimate(s seriesKey, year int, c domain.Category, value float64) {
	years, ok := t.climate[s]
	if !ok {
		years = make(map[int]map[domain.Category]float64)
		t.climate[s] = years
		t.series[s.group] = append(t.series[s.group], s)
	}
	cats, ok := years[year]
	if !ok {
		cats = make(map[domain.Category]float64)
		years[year] = cats
	}
	cats[c] += value
}

// shares derives one share per series and year the group has spending in.
// Windows span the trailing calendar years present in the group's data.
func (t *shareTable) shares(window int, agg Aggregation, warnings *domain.Warnings) map[groupKey]map[int][]Share {
	out := make(map[groupKey]map[int][]Share, len(t.totals))

	for _, g := range t.sortedGroups() {
		totals := t.totals[g]
		years := sortedYears(totals)
		series := t.series[g]
		if len(series) == 0 {
			// Spending with no climate allocation still yields a zero share
			series = []seriesKey{{group: g}}
		}
		byYear := make(map[int][]Share, len(years))

		for i, year := range years {
			span := windowYears(years[:i+1], year, window)
			spending := make([]float64, len(span))
			for j, y := range span {
				spending[j] = totals[y]
			}
			windowTotal := floats.Sum(spending)
			if windowTotal == 0 {
				warnings.Add(domain.WarnDivisionByZeroShare, "", year, g.channel,
					"institution %q has no %s spending in the %d-year window ending %d",
					g.channel, g.flow, window, year)
			}

			for _, s := range series {
				share := Share{
					ChannelCode:   g.channel,
					Year:          year,
					FlowType:      g.flow,
					Currency:      g.currency,
					Prices:        g.prices,
					RecipientCode: s.recipient,
					PurposeCode:   s.purpose,
					Spending:      windowTotal,
					Window:        window,
				}
				climateTotal := make([]float64, 0, len(domain.ClimateCategories()))
				for _, c := range domain.ClimateCategories() {
					values := make([]float64, len(span))
					for j, y := range span {
						values[j] = t.climate[s][y][c]
					}
					v := aggregate(values, spending, agg)
					share.set(c, v)
					climateTotal = append(climateTotal, v)
				}
				share.Climate = floats.Sum(climateTotal)
				byYear[year] = append(byYear[year], share)
			}
		}
		out[g] = byYear
	}
	return out
}

// aggregate turns aligned yearly climate and spending values into one share
func aggregate(climate, spending []float64, agg Aggregation) float64 {
	if agg == AggregationMean {
		yearly := make([]float64, len(climate))
		for i := range climate {
			yearly[i] = ratio(climate[i], spending[i])
		}
		return stat.Mean(yearly, nil)
	}
	return ratio(floats.Sum(climate), floats.Sum(spending))
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// windowYears keeps the years within window calendar years up to and including year
func windowYears(years []int, year, window int) []int {
	first := year - window + 1
	out := make([]int, 0, window)
	for _, y := range years {
		if y >= first && y <= year {
			out = append(out, y)
		}
	}
	return out
}

func sortedYears(m map[int]float64) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func (t *shareTable) sortedGroups() []groupKey {
	groups := make([]groupKey, 0, len(t.totals))
	for g := range t.totals {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.channel != b.channel {
			return a.channel < b.channel
		}
		if a.flow != b.flow {
			return a.flow < b.flow
		}
		if a.currency != b.currency {
			return a.currency < b.currency
		}
		return a.prices.String() < b.prices.String()
	})
	return groups
}
