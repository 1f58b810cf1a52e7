package methodology

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/domain"
)

// Coverage counts how the classified rows were handled
type Coverage struct {
	Rows        int `json:"rows"`
	Classified  int `json:"classified"`
	NotScreened int `json:"not_screened"`
	Missing     int `json:"missing"`
	Components  int `json:"components"`
}

// Result holds the classified records and the recoverable problems found
type Result struct {
	Records  []domain.ClassifiedRecord `json:"records"`
	Warnings domain.Warnings           `json:"warnings"`
	Coverage Coverage                  `json:"coverage"`
}

// Classifier applies a methodology to activities
type Classifier struct {
	methodology Methodology
	log         zerolog.Logger
}

// NewClassifier creates a classifier for a validated methodology
func NewClassifier(m Methodology, log zerolog.Logger) (*Classifier, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		methodology: m,
		log:         log.With().Str("component", "classifier").Str("methodology", m.Name).Logger(),
	}, nil
}

// Methodology returns the policy the classifier applies
func (c *Classifier) Methodology() Methodology {
	return c.methodology
}

// Classify discounts each activity. Rows with no marker data are excluded and
// reported as warnings rather than failing the batch.
func (c *Classifier) Classify(activities []domain.Activity) (Result, error) {
	result := Result{Records: make([]domain.ClassifiedRecord, 0, len(activities))}
	result.Coverage.Rows = len(activities)

	for _, a := range activities {
		record, err := c.ClassifyOne(a)
		if err != nil {
			result.Coverage.Missing++
			result.Warnings.Add(domain.WarnMissingMarkerData, a.ProviderCode, a.Year, a.ActivityID,
				"activity %q has neither markers nor climate components", a.ActivityID)
			continue
		}
		if record.NotScreened {
			result.Coverage.NotScreened++
			result.Warnings.Add(domain.WarnNotScreened, a.ProviderCode, a.Year, a.ActivityID,
				"activity %q was not screened against the Rio markers", a.ActivityID)
		}
		if a.Components != nil {
			result.Coverage.Components++
		}
		result.Coverage.Classified++
		result.Records = append(result.Records, record)
	}

	if result.Coverage.Components > 0 && c.methodology.Name != NameOECD {
		c.log.Debug().
			Int("rows", result.Coverage.Components).
			Msg("Coefficients are not applied to rows reporting climate components")
	}
	if result.Coverage.Missing > 0 {
		c.log.Warn().
			Int("missing", result.Coverage.Missing).
			Int("rows", result.Coverage.Rows).
			Msg("Excluded rows without marker data")
	}

	return result, nil
}

// ClassifyOne classifies a single activity. It returns ErrMissingMarkerData
// when both markers are absent and no components were reported.
func (c *Classifier) ClassifyOne(a domain.Activity) (domain.ClassifiedRecord, error) {
	record := domain.ClassifiedRecord{
		Activity:   a,
		Provenance: domain.Provenance{Source: a.Source},
	}

	if a.Components != nil {
		record.Allocations = c.classifyComponents(a.Value, *a.Components)
		return record, nil
	}

	if !a.Adaptation.IsPresent() && !a.Mitigation.IsPresent() {
		return domain.ClassifiedRecord{}, domain.ErrMissingMarkerData
	}

	if isNotScreened(a) {
		record.NotScreened = true
		record.Allocations = []domain.Allocation{{Category: domain.CategoryNotClimateRelevant}}
		return record, nil
	}

	if c.methodology.HighestMarker {
		record.Allocations = []domain.Allocation{c.highestMarker(a)}
	} else {
		record.Allocations = c.markerSet(a)
	}
	return record, nil
}

// isNotScreened is true when no marker carries a usable score and at least
// one was explicitly reported as not screened
func isNotScreened(a domain.Activity) bool {
	_, adaptationOK := a.Adaptation.Level()
	_, mitigationOK := a.Mitigation.Level()
	if adaptationOK || mitigationOK {
		return false
	}
	return a.Adaptation == domain.NotScreened || a.Mitigation == domain.NotScreened
}

// highestMarker picks the category with the larger contribution. Equal
// non-zero contributions are cross-cutting.
func (c *Classifier) highestMarker(a domain.Activity) domain.Allocation {
	adaptation := c.methodology.Weight(a.Adaptation)
	mitigation := c.methodology.Weight(a.Mitigation)

	switch {
	case adaptation == 0 && mitigation == 0:
		return domain.Allocation{Category: domain.CategoryNotClimateRelevant}
	case adaptation > mitigation:
		return domain.Allocation{Category: domain.CategoryAdaptation, Value: a.Value * adaptation}
	case mitigation > adaptation:
		return domain.Allocation{Category: domain.CategoryMitigation, Value: a.Value * mitigation}
	default:
		return domain.Allocation{Category: domain.CategoryCrossCutting, Value: a.Value * adaptation}
	}
}

func (c *Classifier) markerSet(a domain.Activity) []domain.Allocation {
	adaptation := c.methodology.Weight(a.Adaptation)
	mitigation := c.methodology.Weight(a.Mitigation)

	var allocations []domain.Allocation
	if adaptation > 0 {
		allocations = append(allocations, domain.Allocation{Category: domain.CategoryAdaptation, Value: a.Value * adaptation})
	}
	if mitigation > 0 {
		allocations = append(allocations, domain.Allocation{Category: domain.CategoryMitigation, Value: a.Value * mitigation})
	}
	if adaptation > 0 && mitigation > 0 {
		allocations = append(allocations, domain.Allocation{
			Category: domain.CategoryCrossCutting,
			Value:    a.Value * math.Min(adaptation, mitigation),
		})
	}
	if len(allocations) == 0 {
		allocations = []domain.Allocation{{Category: domain.CategoryNotClimateRelevant}}
	}
	return allocations
}

// classifyComponents splits reported climate components. Under the highest
// marker rule the overlap is removed from each side so nothing is double counted.
func (c *Classifier) classifyComponents(value float64, comp domain.ClimateComponents) []domain.Allocation {
	adaptation, mitigation, overlap := comp.Adaptation, comp.Mitigation, comp.Overlap
	if c.methodology.HighestMarker {
		adaptation = math.Max(adaptation-overlap, 0)
		mitigation = math.Max(mitigation-overlap, 0)
	}

	var allocations []domain.Allocation
	if adaptation > 0 {
		allocations = append(allocations, domain.Allocation{Category: domain.CategoryAdaptation, Value: adaptation})
	}
	if mitigation > 0 {
		allocations = append(allocations, domain.Allocation{Category: domain.CategoryMitigation, Value: mitigation})
	}
	if overlap > 0 {
		allocations = append(allocations, domain.Allocation{Category: domain.CategoryCrossCutting, Value: overlap})
	}

	if len(allocations) == 0 {
		return []domain.Allocation{{Category: domain.CategoryNotClimateRelevant}}
	}

	// Components larger than the reported value are capped to it
	climate := adaptation + mitigation + overlap
	if c.methodology.HighestMarker && value > 0 && climate > value {
		scale := value / climate
		for i := range allocations {
			allocations[i].Value *= scale
		}
	}
	return allocations
}
