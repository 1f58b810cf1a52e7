package domain

// Converter expresses a value in a target currency and price basis.
// Currency and deflator sourcing lives behind this contract.
type Converter interface {
	Convert(value float64, from Basis, year int, to Basis) (float64, error)
}

// IdentityConverter returns values unchanged. It is used when inputs already
// share the target basis.
type IdentityConverter struct{}

// Convert returns value unchanged
func (IdentityConverter) Convert(value float64, _ Basis, _ int, _ Basis) (float64, error) {
	return value, nil
}

// ChannelResolver maps a free-text channel name to a channel code
type ChannelResolver interface {
	ResolveCode(name string) (code string, ok bool)
}
