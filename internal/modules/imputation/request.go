// Package imputation attributes multilateral climate spending to the
// providers that fund the institutions through core contributions.
package imputation

import (
	"fmt"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/methodology"
)

// Aggregation selects how yearly values combine over a rolling window
type Aggregation string

const (
	// AggregationSum divides the rolling sum of climate spending by the
	// rolling sum of total spending
	AggregationSum Aggregation = "sum"
	// AggregationMean averages the yearly shares
	AggregationMean Aggregation = "mean"
)

// Share dimensions beyond the institution, year, flow type and basis
const (
	DimRecipient = "recipient"
	DimPurpose   = "purpose"
)

// Output grouping keys
const (
	KeyProvider  = "provider"
	KeyYear      = "year"
	KeyChannel   = "channel"
	KeyFlowType  = "flow_type"
	KeyRecipient = "recipient"
	KeyPurpose   = "purpose"
)

// Request describes one imputation run
type Request struct {
	Spending      []domain.Activity
	Contributions []domain.CoreContribution
	// Methodology overrides the calculator's classifier when set
	Methodology *methodology.Methodology
	Window      int
	Aggregation Aggregation
	Flows       []domain.FlowType
	ShareBy     []string
	OutputBy    []string
	// Target is the common basis. An empty currency keeps reported values.
	Target domain.Basis
}

type settings struct {
	window      int
	aggregation Aggregation
	flows       map[domain.FlowType]struct{}
	byRecipient bool
	byPurpose   bool
	output      map[string]bool
	convert     bool
	target      domain.Basis
}

func (r Request) settings() (settings, error) {
	s := settings{
		window:      r.Window,
		aggregation: r.Aggregation,
		flows:       make(map[domain.FlowType]struct{}),
		output:      make(map[string]bool),
		convert:     r.Target.Currency != "",
		target:      r.Target,
	}
	if s.window == 0 {
		s.window = 1
	}
	if s.window < 0 {
		return settings{}, fmt.Errorf("rolling window must be positive, got %d", r.Window)
	}

	switch s.aggregation {
	case "":
		s.aggregation = AggregationSum
	case AggregationSum, AggregationMean:
	default:
		return settings{}, fmt.Errorf("invalid aggregation %q", r.Aggregation)
	}

	for _, f := range r.Flows {
		if _, err := domain.ParseFlowType(string(f)); err != nil {
			return settings{}, err
		}
		s.flows[f] = struct{}{}
	}

	for _, dim := range r.ShareBy {
		switch dim {
		case DimRecipient:
			s.byRecipient = true
		case DimPurpose:
			s.byPurpose = true
		default:
			return settings{}, fmt.Errorf("invalid share grouping key %q", dim)
		}
	}

	outputBy := r.OutputBy
	if len(outputBy) == 0 {
		outputBy = []string{KeyProvider, KeyYear, KeyChannel, KeyFlowType}
		if s.byRecipient {
			outputBy = append(outputBy, KeyRecipient)
		}
		if s.byPurpose {
			outputBy = append(outputBy, KeyPurpose)
		}
	}
	for _, key := range outputBy {
		switch key {
		case KeyProvider, KeyYear, KeyChannel, KeyFlowType:
		case KeyRecipient:
			if !s.byRecipient {
				return settings{}, fmt.Errorf("output key %q requires shares by %s", key, DimRecipient)
			}
		case KeyPurpose:
			if !s.byPurpose {
				return settings{}, fmt.Errorf("output key %q requires shares by %s", key, DimPurpose)
			}
		default:
			return settings{}, fmt.Errorf("invalid output grouping key %q", key)
		}
		s.output[key] = true
	}

	if s.convert {
		if err := s.target.Prices.Validate(); err != nil {
			return settings{}, fmt.Errorf("invalid target basis: %w", err)
		}
		if s.target.Prices.Prices == "" {
			s.target.Prices = domain.Current()
		}
	}
	return s, nil
}

func (s settings) keepsFlow(f domain.FlowType) bool {
	if len(s.flows) == 0 {
		return true
	}
	_, ok := s.flows[f]
	return ok
}
