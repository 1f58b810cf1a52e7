package domain

import (
	"bytes"
	"fmt"
	"strings"
)

// Marker is a Rio marker score. The zero value means the marker is absent,
// which is distinct from NotTargeted.
type Marker int

const (
	MarkerMissing Marker = iota
	NotTargeted
	Significant
	Principal
	NotScreened
)

var markerNames = map[Marker]string{
	MarkerMissing: "missing",
	NotTargeted:   "not_targeted",
	Significant:   "significant",
	Principal:     "principal",
	NotScreened:   "not_screened",
}

func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Marker(%d)", int(m))
}

// Level returns the reported score: 0, 1 or 2. Missing and not-screened
// markers have level 0 and ok=false.
func (m Marker) Level() (level int, ok bool) {
	switch m {
	case NotTargeted:
		return 0, true
	case Significant:
		return 1, true
	case Principal:
		return 2, true
	}
	return 0, false
}

// IsPresent reports whether a marker was reported at all
func (m Marker) IsPresent() bool {
	return m != MarkerMissing
}

// ParseMarker accepts marker names and the numeric scores used in the raw data
func ParseMarker(s string) (Marker, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "missing", "null", "nan":
		return MarkerMissing, nil
	case "0", "0.0", "not_targeted", "not targeted":
		return NotTargeted, nil
	case "1", "1.0", "significant":
		return Significant, nil
	case "2", "2.0", "principal":
		return Principal, nil
	case "not_screened", "not screened":
		return NotScreened, nil
	}
	return MarkerMissing, fmt.Errorf("invalid marker %q", s)
}

// MarshalText encodes the marker by name
func (m Marker) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a marker name or score
func (m *Marker) UnmarshalText(text []byte) error {
	parsed, err := ParseMarker(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// UnmarshalJSON accepts quoted names, quoted scores, bare scores and null
func (m *Marker) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	return m.UnmarshalText(data)
}
