package methodology

// Coefficients are the significant and principal weights of a custom methodology
type Coefficients struct {
	Significant float64 `json:"significant"`
	Principal   float64 `json:"principal"`
}

// Params is the request form of a methodology choice
type Params struct {
	Methodology   string        `json:"methodology"`
	Coefficients  *Coefficients `json:"coefficients,omitempty"`
	HighestMarker *bool         `json:"highest_marker,omitempty"`
}

// Resolve builds the methodology described by the params. An empty name
// defaults to OECD.
func (p Params) Resolve() (Methodology, error) {
	name := p.Methodology
	if name == "" {
		name = NameOECD
	}

	var opts []Option
	if p.Coefficients != nil {
		opts = append(opts, WithCoefficients(p.Coefficients.Significant, p.Coefficients.Principal))
	}
	if p.HighestMarker != nil {
		opts = append(opts, WithHighestMarker(*p.HighestMarker))
	}
	return New(name, opts...)
}
