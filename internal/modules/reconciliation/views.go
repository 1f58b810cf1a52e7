// Package reconciliation builds spending datasets from the activity-level
// and climate-related development finance reporting schemes.
package reconciliation

import (
	"fmt"
	"strings"

	"github.com/climate-finance/engine/internal/domain"
)

// SourceView selects how the two reporting schemes are combined
type SourceView string

const (
	// ViewCRS is the Rio-marker dataset, unfiltered
	ViewCRS SourceView = "OECD_CRS"
	// ViewCRSAllocable keeps only allocable flow modalities
	ViewCRSAllocable SourceView = "OECD_CRS_ALLOCABLE"
	// ViewCRDF is the climate-related development finance dataset, recipient perspective
	ViewCRDF SourceView = "OECD_CRDF"
	// ViewCRDFDonor is the provider perspective, including multilateral imputations
	ViewCRDFDonor SourceView = "OECD_CRDF_DONOR"
	// ViewCRDFCRS takes categories from CRDF and values from CRS disbursements
	ViewCRDFCRS SourceView = "OECD_CRDF_CRS"
	// ViewCRSCRDF takes Rio-marker providers from CRS and everyone else from CRDF
	ViewCRSCRDF SourceView = "OECD_CRS_CRDF"
)

var viewAliases = map[string]SourceView{
	"SCHEME_A":                       ViewCRS,
	"SCHEME_A_ALLOCABLE":             ViewCRSAllocable,
	"SCHEME_B_RECIPIENT_PERSPECTIVE": ViewCRDF,
	"SCHEME_B_DONOR_PERSPECTIVE":     ViewCRDFDonor,
}

// AllViews lists the supported views
func AllViews() []SourceView {
	return []SourceView{ViewCRS, ViewCRSAllocable, ViewCRDF, ViewCRDFDonor, ViewCRDFCRS, ViewCRSCRDF}
}

// ParseSourceView validates a view name, accepting the scheme aliases
func ParseSourceView(name string) (SourceView, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, v := range AllViews() {
		if string(v) == upper {
			return v, nil
		}
	}
	if v, ok := viewAliases[upper]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidSourceView, name)
}

// composite reports whether the view mixes the two schemes per provider
func (v SourceView) composite() bool {
	return v == ViewCRDFCRS || v == ViewCRSCRDF
}

// allocableModalities are the flow modalities that can be attributed to a recipient
var allocableModalities = map[string]struct{}{
	"A02":  {},
	"B01":  {},
	"B03":  {},
	"B031": {},
	"B032": {},
	"B033": {},
	"B04":  {},
	"C01":  {},
	"D01":  {},
	"D02":  {},
	"E01":  {},
}

// IsAllocable reports whether a flow modality is allocable
func IsAllocable(modality string) bool {
	_, ok := allocableModalities[strings.ToUpper(strings.TrimSpace(modality))]
	return ok
}
