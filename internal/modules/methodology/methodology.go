// Package methodology discounts marker-coded activities into climate categories.
package methodology

import (
	"fmt"
	"math"
	"strings"

	"github.com/climate-finance/engine/internal/domain"
)

// Methodology names
const (
	NameOECD   = "OECD"
	NameONE    = "ONE"
	NameCustom = "custom"
)

// Methodology is a named discounting policy
type Methodology struct {
	Name              string  `json:"name"`
	SignificantWeight float64 `json:"significant_weight"`
	PrincipalWeight   float64 `json:"principal_weight"`
	HighestMarker     bool    `json:"highest_marker"`
}

// OECD counts significant and principal markers in full and allows double counting
func OECD() Methodology {
	return Methodology{Name: NameOECD, SignificantWeight: 1.0, PrincipalWeight: 1.0}
}

// ONE discounts significant markers to 40% and assigns a single dominant category
func ONE() Methodology {
	return Methodology{Name: NameONE, SignificantWeight: 0.4, PrincipalWeight: 1.0, HighestMarker: true}
}

// Custom builds a methodology with caller-supplied coefficients
func Custom(significant, principal float64, highestMarker bool) (Methodology, error) {
	m := Methodology{
		Name:              NameCustom,
		SignificantWeight: significant,
		PrincipalWeight:   principal,
		HighestMarker:     highestMarker,
	}
	if err := m.Validate(); err != nil {
		return Methodology{}, err
	}
	return m, nil
}

// Option customises New
type Option func(*options)

type options struct {
	coefficients  *[2]float64
	highestMarker *bool
}

// WithCoefficients supplies significant and principal weights. Only valid for custom.
func WithCoefficients(significant, principal float64) Option {
	return func(o *options) {
		o.coefficients = &[2]float64{significant, principal}
	}
}

// WithHighestMarker sets the highest-marker flag. Only valid for custom.
func WithHighestMarker(enabled bool) Option {
	return func(o *options) {
		o.highestMarker = &enabled
	}
}

// New resolves a methodology by name. Named methodologies reject coefficients;
// custom requires them.
func New(name string, opts ...Option) (Methodology, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case strings.EqualFold(name, NameOECD), strings.EqualFold(name, NameONE):
		if o.coefficients != nil || o.highestMarker != nil {
			return Methodology{}, fmt.Errorf("%w: coefficients cannot be supplied for %s", domain.ErrInvalidMethodology, name)
		}
		if strings.EqualFold(name, NameOECD) {
			return OECD(), nil
		}
		return ONE(), nil
	case strings.EqualFold(name, NameCustom):
		if o.coefficients == nil {
			return Methodology{}, fmt.Errorf("%w: custom methodology requires coefficients", domain.ErrInvalidMethodology)
		}
		highest := false
		if o.highestMarker != nil {
			highest = *o.highestMarker
		}
		return Custom(o.coefficients[0], o.coefficients[1], highest)
	}
	return Methodology{}, fmt.Errorf("%w: unknown methodology %q", domain.ErrInvalidMethodology, name)
}

// Validate checks that both weights lie in [0,1]
func (m Methodology) Validate() error {
	if math.IsNaN(m.SignificantWeight) || m.SignificantWeight < 0 || m.SignificantWeight > 1 {
		return fmt.Errorf("%w: significant weight %v outside [0,1]", domain.ErrInvalidMethodology, m.SignificantWeight)
	}
	if math.IsNaN(m.PrincipalWeight) || m.PrincipalWeight < 0 || m.PrincipalWeight > 1 {
		return fmt.Errorf("%w: principal weight %v outside [0,1]", domain.ErrInvalidMethodology, m.PrincipalWeight)
	}
	return nil
}

// Weight maps a marker to its contribution. Not targeted, not screened and
// missing markers contribute nothing.
func (m Methodology) Weight(marker domain.Marker) float64 {
	switch marker {
	case domain.Significant:
		return m.SignificantWeight
	case domain.Principal:
		return m.PrincipalWeight
	}
	return 0
}
