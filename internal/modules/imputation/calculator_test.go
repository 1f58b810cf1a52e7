package imputation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/methodology"
)

type mapResolver map[string]string

func (m mapResolver) ResolveCode(name string) (string, bool) {
	code, ok := m[name]
	return code, ok
}

type doublingConverter struct {
	err error
}

func (d doublingConverter) Convert(value float64, from domain.Basis, _ int, to domain.Basis) (float64, error) {
	if d.err != nil {
		return 0, d.err
	}
	if from.Currency == to.Currency {
		return value, nil
	}
	return value * 2, nil
}

func spend(channel string, year int, value float64, adaptation, mitigation domain.Marker) domain.Activity {
	return domain.Activity{
		ProviderCode: "900",
		ChannelCode:  channel,
		Year:         year,
		FlowType:     domain.FlowGrossDisbursements,
		Value:        value,
		Currency:     "USD",
		Prices:       domain.Current(),
		Adaptation:   adaptation,
		Mitigation:   mitigation,
		Source:       domain.SourceCRS,
	}
}

func contribution(provider, channel string, year int, value float64) domain.CoreContribution {
	return domain.CoreContribution{
		ProviderCode: provider,
		ChannelCode:  channel,
		Year:         year,
		FlowType:     domain.FlowGrossDisbursements,
		Value:        value,
		Currency:     "USD",
		Prices:       domain.Current(),
	}
}

// IDA spending: 2020 adaptation 60%, 2021 adaptation 50% and mitigation 25%,
// 2023 adaptation 50%. 2022 is absent.
func testSpending() []domain.Activity {
	return []domain.Activity{
		spend("44002", 2020, 30, domain.Principal, domain.NotTargeted),
		spend("44002", 2020, 20, domain.NotTargeted, domain.NotTargeted),
		spend("44002", 2021, 50, domain.Principal, domain.NotTargeted),
		spend("44002", 2021, 25, domain.NotTargeted, domain.Principal),
		spend("44002", 2021, 25, domain.NotTargeted, domain.NotTargeted),
		spend("44002", 2023, 10, domain.Principal, domain.NotTargeted),
		spend("44002", 2023, 10, domain.NotTargeted, domain.NotTargeted),
	}
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	classifier, err := methodology.NewClassifier(methodology.OECD(), log)
	require.NoError(t, err)
	return NewCalculator(classifier, mapResolver{"IDA": "44002"}, nil, log)
}

func findShare(t *testing.T, shares []Share, channel string, year int) Share {
	t.Helper()
	for _, s := range shares {
		if s.ChannelCode == channel && s.Year == year {
			return s
		}
	}
	require.Failf(t, "share not found", "%s %d", channel, year)
	return Share{}
}

func TestImpute_SingleYearShares(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.Impute(context.Background(), Request{
		Spending: testSpending(),
		Contributions: []domain.CoreContribution{
			contribution("4", "44002", 2021, 200),
			{ProviderCode: "4", ChannelName: "IDA", Year: 2020, FlowType: domain.FlowGrossDisbursements, Value: 100, Currency: "USD"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	require.Len(t, res.Records, 3)
	assert.Equal(t, 2020, res.Records[0].Year)
	assert.Equal(t, domain.CategoryAdaptation, res.Records[0].Category)
	assert.InDelta(t, 60, res.Records[0].Value, 1e-9)
	assert.Equal(t, "44002", res.Records[0].Provenance.ChannelCode)
	assert.InDelta(t, 0.6, res.Records[0].Provenance.Share, 1e-9)
	assert.InDelta(t, 100, res.Records[0].Provenance.ContributionValue, 1e-9)

	assert.Equal(t, domain.CategoryAdaptation, res.Records[1].Category)
	assert.InDelta(t, 100, res.Records[1].Value, 1e-9)
	assert.Equal(t, domain.CategoryMitigation, res.Records[2].Category)
	assert.InDelta(t, 50, res.Records[2].Value, 1e-9)

	assert.Equal(t, 2, res.Coverage.Contributions)
	assert.Equal(t, 2, res.Coverage.Matched)
	assert.InDelta(t, 300, res.Coverage.MatchedValue, 1e-9)
}

func TestImpute_WindowOfOneIsUnsmoothed(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.Impute(context.Background(), Request{Spending: testSpending(), Window: 1})
	require.NoError(t, err)

	expected := map[int][2]float64{
		2020: {0.6, 0},
		2021: {0.5, 0.25},
		2023: {0.5, 0},
	}
	require.Len(t, res.Shares, len(expected))
	for year, want := range expected {
		s := findShare(t, res.Shares, "44002", year)
		assert.InDelta(t, want[0], s.Adaptation, 1e-9, "year %d", year)
		assert.InDelta(t, want[1], s.Mitigation, 1e-9, "year %d", year)
		assert.InDelta(t, want[0]+want[1], s.Climate, 1e-9, "year %d", year)
	}
}

func TestImpute_RollingWindow(t *testing.T) {
	tests := []struct {
		name        string
		window      int
		aggregation Aggregation
		year        int
		adaptation  float64
		mitigation  float64
	}{
		{name: "sum over two years", window: 2, aggregation: AggregationSum, year: 2021, adaptation: 80.0 / 150, mitigation: 25.0 / 150},
		{name: "mean over two years", window: 2, aggregation: AggregationMean, year: 2021, adaptation: 0.55, mitigation: 0.125},
		{name: "first year has no history", window: 2, year: 2020, adaptation: 0.6},
		{name: "absent year is not interpolated", window: 2, year: 2023, adaptation: 0.5},
		{name: "window spans a gap", window: 3, year: 2023, adaptation: 60.0 / 120, mitigation: 25.0 / 120},
		{name: "mean over a gap", window: 3, aggregation: AggregationMean, year: 2023, adaptation: 0.5, mitigation: 0.125},
	}

	calc := newTestCalculator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Impute(context.Background(), Request{
				Spending:    testSpending(),
				Window:      tt.window,
				Aggregation: tt.aggregation,
			})
			require.NoError(t, err)

			s := findShare(t, res.Shares, "44002", tt.year)
			assert.InDelta(t, tt.adaptation, s.Adaptation, 1e-9)
			assert.InDelta(t, tt.mitigation, s.Mitigation, 1e-9)
			assert.Equal(t, tt.window, s.Window)
		})
	}
}

func TestImpute_ProviderWithoutMatchesIsEmpty(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.Impute(context.Background(), Request{
		Spending: testSpending(),
		Contributions: []domain.CoreContribution{
			{ProviderCode: "5", ChannelName: "Nowhere Institute", Year: 2021, FlowType: domain.FlowGrossDisbursements, Value: 10, Currency: "USD"},
			contribution("5", "44002", 2019, 40),
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)

	assert.Equal(t, 1, res.Warnings.Count(domain.WarnUnresolvedChannel))
	assert.Equal(t, 1, res.Warnings.Count(domain.WarnMissingShare))
	assert.Equal(t, 1, res.Coverage.Unresolved)
	assert.Equal(t, 1, res.Coverage.MissingShare)
	assert.Equal(t, 0, res.Coverage.Matched)
	assert.InDelta(t, 50, res.Coverage.UnmatchedValue, 1e-9)
}

func TestImpute_DivisionByZeroShare(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.Impute(context.Background(), Request{
		Spending:      []domain.Activity{spend("47000", 2021, 0, domain.Principal, domain.NotTargeted)},
		Contributions: []domain.CoreContribution{contribution("4", "47000", 2021, 100)},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Warnings.Count(domain.WarnDivisionByZeroShare))
	assert.False(t, res.Warnings.Has(domain.WarnMissingShare))
	assert.Equal(t, 1, res.Coverage.DivisionByZeros)

	s := findShare(t, res.Shares, "47000", 2021)
	assert.Zero(t, s.Climate)
}

func TestImpute_OutputGrouping(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.Impute(context.Background(), Request{
		Spending: testSpending(),
		Contributions: []domain.CoreContribution{
			contribution("4", "44002", 2020, 100),
			contribution("4", "44002", 2021, 200),
		},
		OutputBy: []string{KeyProvider},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	adaptation := res.Records[0]
	assert.Equal(t, "4", adaptation.ProviderCode)
	assert.Zero(t, adaptation.Year)
	assert.Empty(t, adaptation.Provenance.ChannelCode)
	assert.Equal(t, domain.CategoryAdaptation, adaptation.Category)
	assert.InDelta(t, 160, adaptation.Value, 1e-9)
	assert.InDelta(t, 300, adaptation.Provenance.ContributionValue, 1e-9)
	assert.InDelta(t, 160.0/300, adaptation.Provenance.Share, 1e-9)

	assert.Equal(t, domain.CategoryMitigation, res.Records[1].Category)
	assert.InDelta(t, 50, res.Records[1].Value, 1e-9)
}

func TestImpute_SharesByRecipient(t *testing.T) {
	spending := []domain.Activity{
		spend("44002", 2021, 50, domain.Principal, domain.NotTargeted),
		spend("44002", 2021, 25, domain.NotTargeted, domain.Principal),
		spend("44002", 2021, 25, domain.NotTargeted, domain.NotTargeted),
	}
	spending[0].RecipientCode = "NG"
	spending[1].RecipientCode = "KE"
	spending[2].RecipientCode = "NG"

	calc := newTestCalculator(t)
	res, err := calc.Impute(context.Background(), Request{
		Spending:      spending,
		Contributions: []domain.CoreContribution{contribution("4", "44002", 2021, 200)},
		ShareBy:       []string{DimRecipient},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	assert.Equal(t, "KE", res.Records[0].RecipientCode)
	assert.Equal(t, domain.CategoryMitigation, res.Records[0].Category)
	assert.InDelta(t, 50, res.Records[0].Value, 1e-9)

	assert.Equal(t, "NG", res.Records[1].RecipientCode)
	assert.Equal(t, domain.CategoryAdaptation, res.Records[1].Category)
	assert.InDelta(t, 100, res.Records[1].Value, 1e-9)
	assert.Equal(t, "NG", res.Records[1].Row().RecipientCode)
}

func TestImpute_ConvertsBeforeSumming(t *testing.T) {
	spending := testSpending()
	for i := range spending {
		spending[i].Currency = "EUR"
	}
	contrib := contribution("4", "44002", 2021, 200)
	contrib.Currency = "EUR"

	log := zerolog.New(nil).Level(zerolog.Disabled)
	classifier, err := methodology.NewClassifier(methodology.OECD(), log)
	require.NoError(t, err)
	calc := NewCalculator(classifier, nil, doublingConverter{}, log)

	res, err := calc.Impute(context.Background(), Request{
		Spending:      spending,
		Contributions: []domain.CoreContribution{contrib},
		Target:        domain.Basis{Currency: "USD"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "USD", res.Records[0].Currency)
	assert.Equal(t, domain.Current(), res.Records[0].Prices)
	assert.InDelta(t, 200, res.Records[0].Value, 1e-9)

	s := findShare(t, res.Shares, "44002", 2021)
	assert.InDelta(t, 200, s.Spending, 1e-9)
	assert.InDelta(t, 0.5, s.Adaptation, 1e-9)

	calc = NewCalculator(classifier, nil, doublingConverter{err: errors.New("no rate")}, log)
	_, err = calc.Impute(context.Background(), Request{Spending: spending, Target: domain.Basis{Currency: "USD"}})
	assert.ErrorContains(t, err, "no rate")
}

func TestImpute_MethodologyOverride(t *testing.T) {
	calc := newTestCalculator(t)
	spending := []domain.Activity{spend("44002", 2021, 100, domain.Significant, domain.NotTargeted)}
	contribs := []domain.CoreContribution{contribution("4", "44002", 2021, 100)}

	res, err := calc.Impute(context.Background(), Request{Spending: spending, Contributions: contribs})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.InDelta(t, 100, res.Records[0].Value, 1e-9)

	one := methodology.ONE()
	res, err = calc.Impute(context.Background(), Request{Spending: spending, Contributions: contribs, Methodology: &one})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.InDelta(t, 40, res.Records[0].Value, 1e-9)
}

func TestImpute_FlowFilter(t *testing.T) {
	spending := append(testSpending(), domain.Activity{
		ProviderCode: "900", ChannelCode: "44002", Year: 2021, FlowType: domain.FlowCommitments,
		Value: 500, Currency: "USD", Adaptation: domain.Principal, Mitigation: domain.NotTargeted,
	})

	calc := newTestCalculator(t)
	res, err := calc.Impute(context.Background(), Request{
		Spending: spending,
		Flows:    []domain.FlowType{domain.FlowGrossDisbursements},
	})
	require.NoError(t, err)
	for _, s := range res.Shares {
		assert.Equal(t, domain.FlowGrossDisbursements, s.FlowType)
	}
}

func TestImpute_InstitutionFromChannelName(t *testing.T) {
	a := spend("", 2021, 10, domain.Principal, domain.NotTargeted)
	a.ChannelName = "IDA"
	b := spend("", 2021, 10, domain.Principal, domain.NotTargeted)
	b.ProviderCode = "46002.0"

	calc := newTestCalculator(t)
	res, err := calc.Impute(context.Background(), Request{Spending: []domain.Activity{a, b}})
	require.NoError(t, err)

	findShare(t, res.Shares, "44002", 2021)
	findShare(t, res.Shares, "46002", 2021)
}

func TestImpute_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "negative window", req: Request{Window: -1}},
		{name: "unknown aggregation", req: Request{Aggregation: "median"}},
		{name: "unknown flow", req: Request{Flows: []domain.FlowType{"loans"}}},
		{name: "unknown share key", req: Request{ShareBy: []string{"sector"}}},
		{name: "unknown output key", req: Request{OutputBy: []string{"donor"}}},
		{name: "recipient output without recipient shares", req: Request{OutputBy: []string{KeyRecipient}}},
		{name: "constant prices without base year", req: Request{Target: domain.Basis{Currency: "USD", Prices: domain.PriceBasis{Prices: domain.PricesConstant}}}},
		{name: "invalid methodology", req: Request{Methodology: &methodology.Methodology{Name: "custom", SignificantWeight: 2}}},
	}

	calc := newTestCalculator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Impute(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}

	_, err := calc.Impute(context.Background(), Request{Flows: []domain.FlowType{"loans"}})
	assert.ErrorIs(t, err, domain.ErrInvalidFlowType)
}

func TestImpute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCalculator(t).Impute(ctx, Request{Spending: testSpending()})
	assert.ErrorIs(t, err, context.Canceled)
}
