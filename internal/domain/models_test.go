package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlowType
		wantErr bool
	}{
		{name: "gross disbursements", input: "gross_disbursements", want: FlowGrossDisbursements},
		{name: "commitments", input: "commitments", want: FlowCommitments},
		{name: "grant equivalent", input: "grant_equivalent", want: FlowGrantEquivalent},
		{name: "net disbursements", input: "net_disbursements", want: FlowNetDisbursements},
		{name: "unknown", input: "loans", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlowType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFlowType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlowTypes_EmptyMeansAll(t *testing.T) {
	flows, err := ParseFlowTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, AllFlowTypes(), flows)

	_, err = ParseFlowTypes([]string{"commitments", "bogus"})
	assert.ErrorIs(t, err, ErrInvalidFlowType)
}

func TestPriceBasis_Validate(t *testing.T) {
	assert.NoError(t, Current().Validate())
	assert.NoError(t, Constant(2022).Validate())
	assert.Error(t, PriceBasis{Prices: PricesCurrent, BaseYear: 2022}.Validate())
	assert.Error(t, PriceBasis{Prices: PricesConstant}.Validate())
	assert.Error(t, PriceBasis{Prices: "nominal"}.Validate())

	assert.Equal(t, "constant_2022", Constant(2022).String())
	assert.Equal(t, "current", Current().String())
}

func TestMarker_Level(t *testing.T) {
	tests := []struct {
		marker Marker
		level  int
		ok     bool
	}{
		{MarkerMissing, 0, false},
		{NotTargeted, 0, true},
		{Significant, 1, true},
		{Principal, 2, true},
		{NotScreened, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.marker.String(), func(t *testing.T) {
			level, ok := tt.marker.Level()
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMarker_MissingIsNotNotTargeted(t *testing.T) {
	var m Marker
	assert.Equal(t, MarkerMissing, m)
	assert.False(t, m.IsPresent())
	assert.NotEqual(t, NotTargeted, m)
	assert.True(t, NotTargeted.IsPresent())
}

func TestMarker_JSON(t *testing.T) {
	var a Activity
	err := json.Unmarshal([]byte(`{"adaptation":"2","mitigation":"significant"}`), &a)
	require.NoError(t, err)
	assert.Equal(t, Principal, a.Adaptation)
	assert.Equal(t, Significant, a.Mitigation)

	out, err := json.Marshal(struct {
		M Marker `json:"m"`
	}{M: NotScreened})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"not_screened"}`, string(out))

	err = json.Unmarshal([]byte(`{"adaptation":"7"}`), &a)
	assert.Error(t, err)
}

func TestClassifiedRecord_Values(t *testing.T) {
	rec := ClassifiedRecord{
		Activity: Activity{ProviderCode: "4", Year: 2021, FlowType: FlowCommitments, Currency: "USD", Prices: Current(), ActivityID: "a1"},
		Allocations: []Allocation{
			{Category: CategoryAdaptation, Value: 40},
			{Category: CategoryMitigation, Value: 100},
			{Category: CategoryCrossCutting, Value: 40},
		},
		Provenance: Provenance{Source: SourceCRS, Matched: true},
	}

	assert.Equal(t, CategoryAdaptation, rec.Category())
	assert.Equal(t, 100.0, rec.ValueFor(CategoryMitigation))
	assert.Equal(t, 180.0, rec.ClimateValue())

	rows := rec.Rows("OECD_CRS")
	require.Len(t, rows, 3)
	assert.Equal(t, "OECD_CRS", rows[0].View)
	assert.Equal(t, "a1", rows[2].ActivityID)
	assert.Equal(t, CategoryCrossCutting, rows[2].Category)
	assert.Equal(t, RecordKey{
		ProviderCode: "4", Year: 2021, FlowType: FlowCommitments, ActivityID: "a1",
		Category: CategoryCrossCutting, Currency: "USD", Prices: Current(),
	}, rows[2].Key())
}

func TestOutputRecord_KeySeparatesBases(t *testing.T) {
	usd := OutputRecord{ProviderCode: "4", Year: 2021, FlowType: FlowCommitments, Category: CategoryAdaptation, Currency: "USD"}

	eur := usd
	eur.Currency = "EUR"
	assert.NotEqual(t, usd.Key(), eur.Key())

	constant := usd
	constant.Prices = Constant(2022)
	assert.NotEqual(t, usd.Key(), constant.Key())

	// Unset prices are current prices
	current := usd
	current.Prices = Current()
	current.Currency = " usd"
	assert.Equal(t, usd.Key(), current.Key())
}

func TestClassifiedRecord_EmptyIsNotClimateRelevant(t *testing.T) {
	assert.Equal(t, CategoryNotClimateRelevant, ClassifiedRecord{}.Category())
	assert.False(t, CategoryNotClimateRelevant.IsClimate())
	assert.True(t, CategoryCrossCutting.IsClimate())
}

func TestImputedRecord_Row(t *testing.T) {
	rec := ImputedRecord{
		ProviderCode: "12",
		Year:         2020,
		Category:     CategoryMitigation,
		FlowType:     FlowGrossDisbursements,
		Value:        25,
		Currency:     "EUR",
		Prices:       Constant(2021),
		Provenance:   ImputationProvenance{ChannelCode: "44001", ContributionValue: 100, Share: 0.25, Window: 2},
	}
	row := rec.Row()
	assert.Equal(t, SourceImputation, row.Source)
	assert.Equal(t, "44001", row.ChannelCode)
	assert.Equal(t, 25.0, row.Value)
	assert.Equal(t, Constant(2021), row.Prices)
}

func TestNormaliseCode(t *testing.T) {
	assert.Equal(t, "918", NormaliseCode(" 918.0 "))
	assert.Equal(t, "41122", NormaliseCode("41122"))
}

func TestWarnings(t *testing.T) {
	var ws Warnings
	ws.Add(WarnMissingShare, "4", 2020, "44001", "no share for %s", "44001")
	ws.Add(WarnMissingShare, "5", 2020, "44001", "no share")
	ws.Add(WarnFallbackValue, "5", 2020, "a1", "fallback")

	assert.Len(t, ws, 3)
	assert.Equal(t, "no share for 44001", ws[0].Message)
	assert.Equal(t, 2, ws.Count(WarnMissingShare))
	assert.True(t, ws.Has(WarnFallbackValue))
	assert.False(t, ws.Has(WarnNotScreened))
	assert.Equal(t, []WarningCount{
		{Code: WarnFallbackValue, Count: 1},
		{Code: WarnMissingShare, Count: 2},
	}, ws.ByCode())
}

func TestIdentityConverter(t *testing.T) {
	var c Converter = IdentityConverter{}
	v, err := c.Convert(12.5, Basis{Currency: "USD", Prices: Current()}, 2020, Basis{Currency: "EUR", Prices: Constant(2022)})
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestMarker_JSONBareScores(t *testing.T) {
	var a Activity
	err := json.Unmarshal([]byte(`{"adaptation":1,"mitigation":null}`), &a)
	require.NoError(t, err)
	assert.Equal(t, Significant, a.Adaptation)
	assert.Equal(t, MarkerMissing, a.Mitigation)
}
