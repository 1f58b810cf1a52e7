package reconciliation

import (
	"fmt"
	"sort"

	"github.com/climate-finance/engine/internal/domain"
)

// Preferences decides, per provider, which scheme a composite view reads.
// Rio-marker providers are read from CRS; component providers are read from
// CRDF. A provider may not appear in both lists.
type Preferences struct {
	rio        map[string]struct{}
	components map[string]struct{}
}

// NewPreferences validates and builds provider preferences
func NewPreferences(rio, components []string) (Preferences, error) {
	p := Preferences{
		rio:        make(map[string]struct{}, len(rio)),
		components: make(map[string]struct{}, len(components)),
	}
	for _, code := range rio {
		p.rio[domain.NormaliseCode(code)] = struct{}{}
	}

	var overlap []string
	for _, code := range components {
		code = domain.NormaliseCode(code)
		if _, ok := p.rio[code]; ok {
			overlap = append(overlap, code)
		}
		p.components[code] = struct{}{}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return Preferences{}, fmt.Errorf("providers listed as both rio-marker and components: %v", overlap)
	}
	return p, nil
}

// DefaultPreferences returns the providers known to report Rio markers in
// the CRDF dataset. Component providers are detected from the data.
func DefaultPreferences() Preferences {
	p, _ := NewPreferences(defaultRioProviders, nil)
	return p
}

// IsRio reports whether a provider's values are read from CRS
func (p Preferences) IsRio(provider string) bool {
	_, ok := p.rio[provider]
	return ok
}

// IsComponents reports whether a provider is listed as reporting climate components
func (p Preferences) IsComponents(provider string) bool {
	_, ok := p.components[provider]
	return ok
}

// RioProviders returns the Rio-marker providers, sorted
func (p Preferences) RioProviders() []string {
	return sortedKeys(p.rio)
}

// ComponentProviders returns the listed component providers, sorted
func (p Preferences) ComponentProviders() []string {
	return sortedKeys(p.components)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var defaultRioProviders = []string{
	"801", "1", "2", "301", "3", "18", "4", "5", "21", "7", "8", "9", "50", "10",
	"11", "12", "701", "40", "820", "918", "302", "6", "742", "576", "1012", "22",
	"104", "61", "68", "1011", "20", "811", "988", "76", "69", "77", "1016", "84",
	"1614", "1602", "1616", "1313", "1608", "1610", "1643", "1604", "1603", "1635",
	"1640", "1615", "1632", "1617", "1618", "1627", "1626", "1642", "1619", "83",
	"1611", "1628", "1624", "1601", "1607", "1638", "1606", "1631", "1634", "1623",
	"1609", "906", "1013", "932", "75", "1629", "1637", "611", "1646", "1620", "82",
	"1612", "613", "1613", "1644", "1647", "70",
}
