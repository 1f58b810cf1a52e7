// Package domain provides the value types shared by the classifier, the
// reconciler, the imputation calculator and the channel resolver.
package domain

import (
	"fmt"
	"strings"
)

// FlowType identifies how a reported value was measured
type FlowType string

const (
	FlowGrossDisbursements FlowType = "gross_disbursements"
	FlowCommitments        FlowType = "commitments"
	FlowGrantEquivalent    FlowType = "grant_equivalent"
	FlowNetDisbursements   FlowType = "net_disbursements"
)

// AllFlowTypes lists the supported flow types in their canonical order
func AllFlowTypes() []FlowType {
	return []FlowType{
		FlowGrossDisbursements,
		FlowCommitments,
		FlowGrantEquivalent,
		FlowNetDisbursements,
	}
}

// ParseFlowType validates a flow type name
func ParseFlowType(name string) (FlowType, error) {
	for _, f := range AllFlowTypes() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFlowType, name)
}

// ParseFlowTypes validates a list of flow type names.
// An empty list means all flow types.
func ParseFlowTypes(names []string) ([]FlowType, error) {
	if len(names) == 0 {
		return AllFlowTypes(), nil
	}
	flows := make([]FlowType, 0, len(names))
	for _, name := range names {
		f, err := ParseFlowType(name)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}

// Prices is the price basis of a value
type Prices string

const (
	PricesCurrent  Prices = "current"
	PricesConstant Prices = "constant"
)

// PriceBasis is current prices, or constant prices of a base year
type PriceBasis struct {
	Prices   Prices `json:"prices"`
	BaseYear int    `json:"base_year,omitempty"`
}

// Current returns the current-prices basis
func Current() PriceBasis {
	return PriceBasis{Prices: PricesCurrent}
}

// Constant returns the constant-prices basis for a base year
func Constant(baseYear int) PriceBasis {
	return PriceBasis{Prices: PricesConstant, BaseYear: baseYear}
}

// Validate checks that constant prices carry a base year and current prices do not
func (p PriceBasis) Validate() error {
	switch p.Prices {
	case PricesCurrent, "":
		if p.BaseYear != 0 {
			return fmt.Errorf("base year %d cannot be used with current prices", p.BaseYear)
		}
	case PricesConstant:
		if p.BaseYear == 0 {
			return fmt.Errorf("a base year is required for constant prices")
		}
	default:
		return fmt.Errorf("invalid prices %q", p.Prices)
	}
	return nil
}

func (p PriceBasis) String() string {
	if p.Prices == PricesConstant {
		return fmt.Sprintf("constant_%d", p.BaseYear)
	}
	return string(PricesCurrent)
}

// Basis is the currency and price basis every sum must share
type Basis struct {
	Currency string     `json:"currency"`
	Prices   PriceBasis `json:"prices"`
}

// Source identifies the reporting scheme that produced a record
type Source string

const (
	// SourceCRS is the Rio-marker, activity-level scheme
	SourceCRS Source = "CRS"
	// SourceCRDF is the climate-related development finance scheme
	SourceCRDF Source = "CRDF"
	// SourceImputation marks records produced by the imputation calculator
	SourceImputation Source = "imputation"
)

// ClimateComponents are the values reported by providers that publish climate
// components instead of markers. Overlap is the part counted in both.
type ClimateComponents struct {
	Adaptation float64 `json:"adaptation"`
	Mitigation float64 `json:"mitigation"`
	Overlap    float64 `json:"overlap"`
}

// Activity is one reported financial flow
type Activity struct {
	ProviderCode  string             `json:"provider_code"`
	AgencyCode    string             `json:"agency_code,omitempty"`
	RecipientCode string             `json:"recipient_code,omitempty"`
	Year          int                `json:"year"`
	FlowType      FlowType           `json:"flow_type"`
	Value         float64            `json:"value"`
	Currency      string             `json:"currency"`
	Prices        PriceBasis         `json:"prices"`
	Adaptation    Marker             `json:"adaptation"`
	Mitigation    Marker             `json:"mitigation"`
	Components    *ClimateComponents `json:"components,omitempty"`
	Source        Source             `json:"source"`

	// Attributes used for cross-source matching and filtering
	ActivityID   string `json:"activity_id,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	ProjectTitle string `json:"project_title,omitempty"`
	FinanceType  string `json:"finance_type,omitempty"`
	FlowModality string `json:"flow_modality,omitempty"`
	PurposeCode  string `json:"purpose_code,omitempty"`
	ChannelCode  string `json:"channel_code,omitempty"`
	ChannelName  string `json:"channel_name,omitempty"`
}

// Basis returns the currency and price basis of the reported value
func (a Activity) Basis() Basis {
	return Basis{Currency: a.Currency, Prices: a.Prices}
}

// Category is the climate category a value is attributed to
type Category string

const (
	CategoryAdaptation         Category = "Adaptation"
	CategoryMitigation         Category = "Mitigation"
	CategoryCrossCutting       Category = "Cross-cutting"
	CategoryNotClimateRelevant Category = "Not climate relevant"
)

// ClimateCategories lists the climate-relevant categories
func ClimateCategories() []Category {
	return []Category{CategoryAdaptation, CategoryMitigation, CategoryCrossCutting}
}

// IsClimate reports whether the category counts as climate finance
func (c Category) IsClimate() bool {
	return c != CategoryNotClimateRelevant && c != ""
}

// Allocation is the part of an activity attributed to one category
type Allocation struct {
	Category Category `json:"category"`
	Value    float64  `json:"value"`
}

// Provenance records where a classified value came from
type Provenance struct {
	Source   Source `json:"source"`
	Matched  bool   `json:"matched"`
	Strategy string `json:"strategy,omitempty"`
	// Fallback is set when a value could not be matched to the
	// disbursement-level dataset and the reported value was used instead
	Fallback bool `json:"fallback"`
}

// ClassifiedRecord is an activity with its discounted climate allocations.
// In highest-marker mode marker rows carry exactly one allocation.
type ClassifiedRecord struct {
	Activity    Activity     `json:"activity"`
	Allocations []Allocation `json:"allocations"`
	NotScreened bool         `json:"not_screened,omitempty"`
	Provenance  Provenance   `json:"provenance"`
}

// Category returns the first allocation's category
func (r ClassifiedRecord) Category() Category {
	if len(r.Allocations) == 0 {
		return CategoryNotClimateRelevant
	}
	return r.Allocations[0].Category
}

// ValueFor returns the value allocated to a category
func (r ClassifiedRecord) ValueFor(c Category) float64 {
	total := 0.0
	for _, a := range r.Allocations {
		if a.Category == c {
			total += a.Value
		}
	}
	return total
}

// ClimateValue sums the climate-relevant allocations
func (r ClassifiedRecord) ClimateValue() float64 {
	total := 0.0
	for _, a := range r.Allocations {
		if a.Category.IsClimate() {
			total += a.Value
		}
	}
	return total
}

// Rows flattens the record into one output row per allocation
func (r ClassifiedRecord) Rows(view string) []OutputRecord {
	rows := make([]OutputRecord, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		rows = append(rows, OutputRecord{
			ProviderCode:  r.Activity.ProviderCode,
			AgencyCode:    r.Activity.AgencyCode,
			RecipientCode: r.Activity.RecipientCode,
			Year:          r.Activity.Year,
			FlowType:      r.Activity.FlowType,
			Category:      a.Category,
			Value:         a.Value,
			Currency:      r.Activity.Currency,
			Prices:        r.Activity.Prices,
			ActivityID:    r.Activity.ActivityID,
			ChannelCode:   r.Activity.ChannelCode,
			View:          view,
			Source:        r.Provenance.Source,
			Matched:       r.Provenance.Matched,
			Fallback:      r.Provenance.Fallback,
		})
	}
	return rows
}

// RecordKey identifies a row in a reconciled dataset. Rows in different
// currencies or price bases never share a key.
type RecordKey struct {
	ProviderCode  string
	RecipientCode string
	Year          int
	FlowType      FlowType
	ActivityID    string
	Category      Category
	Currency      string
	Prices        PriceBasis
}

// CoreContribution is unrestricted funding from a provider to a multilateral
// institution. ChannelCode may be empty when only a raw name is known.
type CoreContribution struct {
	ProviderCode string     `json:"provider_code"`
	ChannelCode  string     `json:"channel_code,omitempty"`
	ChannelName  string     `json:"channel_name,omitempty"`
	Year         int        `json:"year"`
	FlowType     FlowType   `json:"flow_type"`
	Value        float64    `json:"value"`
	Currency     string     `json:"currency"`
	Prices       PriceBasis `json:"prices"`
}

// Basis returns the currency and price basis of the contribution
func (c CoreContribution) Basis() Basis {
	return Basis{Currency: c.Currency, Prices: c.Prices}
}

// ImputationProvenance ties an imputed value to the share and contribution
// that produced it
type ImputationProvenance struct {
	ChannelCode       string  `json:"channel_code"`
	ContributionValue float64 `json:"contribution_value"`
	Share             float64 `json:"share"`
	Window            int     `json:"window"`
}

// ImputedRecord is provider-attributed multilateral climate finance
type ImputedRecord struct {
	ProviderCode  string               `json:"provider_code"`
	RecipientCode string               `json:"recipient_code,omitempty"`
	PurposeCode   string               `json:"purpose_code,omitempty"`
	Year          int                  `json:"year"`
	Category      Category             `json:"category"`
	FlowType      FlowType             `json:"flow_type"`
	Value         float64              `json:"value"`
	Currency      string               `json:"currency"`
	Prices        PriceBasis           `json:"prices"`
	Provenance    ImputationProvenance `json:"provenance"`
}

// Row converts the imputed record to the shared output schema
func (r ImputedRecord) Row() OutputRecord {
	return OutputRecord{
		ProviderCode:  r.ProviderCode,
		RecipientCode: r.RecipientCode,
		Year:          r.Year,
		FlowType:      r.FlowType,
		Category:      r.Category,
		Value:         r.Value,
		Currency:      r.Currency,
		Prices:        r.Prices,
		ChannelCode:   r.Provenance.ChannelCode,
		View:          string(SourceImputation),
		Source:        SourceImputation,
	}
}

// OutputRecord is the common long-format schema of spending and imputation
// outputs, so both can be concatenated
type OutputRecord struct {
	ProviderCode  string     `json:"provider_code"`
	AgencyCode    string     `json:"agency_code,omitempty"`
	RecipientCode string     `json:"recipient_code,omitempty"`
	Year          int        `json:"year"`
	FlowType      FlowType   `json:"flow_type"`
	Category      Category   `json:"category"`
	Value         float64    `json:"value"`
	Currency      string     `json:"currency"`
	Prices        PriceBasis `json:"prices"`
	ActivityID    string     `json:"activity_id,omitempty"`
	ChannelCode   string     `json:"channel_code,omitempty"`
	View          string     `json:"view"`
	Source        Source     `json:"source"`
	Matched       bool       `json:"matched"`
	Fallback      bool       `json:"fallback"`
}

// Key returns the deduplication key of the row
func (r OutputRecord) Key() RecordKey {
	return RecordKey{
		ProviderCode:  r.ProviderCode,
		RecipientCode: r.RecipientCode,
		Year:          r.Year,
		FlowType:      r.FlowType,
		ActivityID:    r.ActivityID,
		Category:      r.Category,
		Currency:      strings.ToUpper(strings.TrimSpace(r.Currency)),
		Prices:        keyPrices(r.Prices),
	}
}

// keyPrices treats an unset basis as current prices
func keyPrices(p PriceBasis) PriceBasis {
	if p.Prices == "" {
		p.Prices = PricesCurrent
	}
	return p
}

// NormaliseCode trims whitespace and a trailing ".0" left by spreadsheet exports
func NormaliseCode(code string) string {
	code = strings.TrimSpace(code)
	return strings.TrimSuffix(code, ".0")
}
