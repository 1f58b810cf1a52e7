package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-finance/engine/internal/domain"
)

func TestParseSourceView(t *testing.T) {
	tests := []struct {
		input    string
		expected SourceView
		wantErr  bool
	}{
		{input: "OECD_CRS", expected: ViewCRS},
		{input: "oecd_crdf_crs", expected: ViewCRDFCRS},
		{input: "SCHEME_A", expected: ViewCRS},
		{input: "SCHEME_A_ALLOCABLE", expected: ViewCRSAllocable},
		{input: "SCHEME_B_RECIPIENT_PERSPECTIVE", expected: ViewCRDF},
		{input: "SCHEME_B_DONOR_PERSPECTIVE", expected: ViewCRDFDonor},
		{input: "OECD_CRS_CRDF", expected: ViewCRSCRDF},
		{input: "UNFCCC", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseSourceView(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidSourceView)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestIsAllocable(t *testing.T) {
	assert.True(t, IsAllocable("C01"))
	assert.True(t, IsAllocable(" b031 "))
	assert.False(t, IsAllocable("G01"))
	assert.False(t, IsAllocable(""))
}

func TestNewPreferences(t *testing.T) {
	p, err := NewPreferences([]string{"4", "918.0"}, []string{"905"})
	require.NoError(t, err)
	assert.True(t, p.IsRio("918"))
	assert.True(t, p.IsComponents("905"))
	assert.False(t, p.IsRio("905"))
	assert.Equal(t, []string{"4", "918"}, p.RioProviders())
	assert.Equal(t, []string{"905"}, p.ComponentProviders())

	_, err = NewPreferences([]string{"4", "905"}, []string{"905", "4"})
	assert.ErrorContains(t, err, "[4 905]")
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	assert.True(t, p.IsRio("918"))
	assert.True(t, p.IsRio("1647"))
	assert.False(t, p.IsRio("905"))
	assert.Empty(t, p.ComponentProviders())
}
