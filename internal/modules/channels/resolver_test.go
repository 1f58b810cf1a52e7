package channels

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntities() []Entity {
	return []Entity{
		{Code: "44001", Name: "International Bank for Reconstruction and Development", EnAcronym: "IBRD", FrAcronym: "BIRD"},
		{Code: "44002", Name: "International Development Association", EnAcronym: "IDA", FrAcronym: "AID"},
		{Code: "41114", Name: "United Nations Development Programme", EnAcronym: "UNDP", FrAcronym: "PNUD"},
		{Code: "47044", Name: "Global Environment Facility", EnAcronym: "GEF", FrAcronym: "FEM"},
		{Code: "47129", Name: "Global Environment Facility - Least Developed Countries Fund", EnAcronym: "GEF-LDCF"},
		{Code: "46002", Name: "African Development Fund", EnAcronym: "AfDF", FrAcronym: "FAD"},
		{Code: "41301", Name: "Food and Agricultural Organisation", EnAcronym: "FAO", FrAcronym: "FAO"},
	}
}

type countingSource struct {
	entities []Entity
	loads    atomic.Int32
	err      error
}

func (s *countingSource) LoadChannels(context.Context) ([]Entity, error) {
	s.loads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.entities, nil
}

func newTestResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	return NewResolver(StaticSource(testEntities()), zerolog.New(nil).Level(zerolog.Disabled), opts...)
}

func TestResolve_Tiers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
		tier Tier
	}{
		{name: "canonical name", raw: "United Nations Development Programme", code: "41114", tier: TierDirect},
		{name: "punctuation and case", raw: "  united-nations   DEVELOPMENT programme. ", code: "41114", tier: TierDirect},
		{name: "english acronym", raw: "UNDP", code: "41114", tier: TierDirect},
		{name: "french acronym", raw: "PNUD", code: "41114", tier: TierDirect},
		{name: "missing connective", raw: "International Bank for Reconstruction & Development", code: "44001", tier: TierFuzzy},
		{name: "extra words", raw: "Global Environment Facility Trust Fund", code: "47044", tier: TierFuzzy},
		{name: "partial rule", raw: "Fonds African Development Special", code: "46002", tier: TierRegex},
		{name: "override", raw: "The World Bank", code: "44000", tier: TierRegex},
	}

	r := newTestResolver(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.raw)
			assert.True(t, res.Resolved)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.tier, res.Tier)
			assert.Equal(t, tt.raw, res.Raw)
		})
	}
}

func TestResolve_CanonicalNamesResolveDirectly(t *testing.T) {
	r := newTestResolver(t)
	for _, e := range testEntities() {
		res := r.Resolve(e.Name)
		assert.Equal(t, TierDirect, res.Tier, e.Name)
		assert.Equal(t, e.Code, res.Code, e.Name)
		assert.Equal(t, e.Name, res.Name)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r := newTestResolver(t)
	names := []string{"UNDP", "The World Bank", "Global Environment Facility Trust Fund", "Nowhere Institute", ""}

	first := r.ResolveAll(names)
	second := r.ResolveAll(names)
	assert.Equal(t, first, second)
}

func TestResolve_UnresolvedCollected(t *testing.T) {
	r := newTestResolver(t)

	res := r.Resolve("Some Unknown Foundation")
	assert.False(t, res.Resolved)
	assert.Equal(t, TierUnresolved, res.Tier)
	assert.Empty(t, res.Code)

	r.Resolve("Another Mystery Body")
	r.Resolve("Some Unknown Foundation")
	r.Resolve("UNDP")

	assert.Equal(t, []string{"Another Mystery Body", "Some Unknown Foundation"}, r.Unresolved())
}

func TestResolveAll_DeduplicatesInput(t *testing.T) {
	src := &countingSource{entities: testEntities()}
	r := NewResolver(src, zerolog.New(nil).Level(zerolog.Disabled))

	out := r.ResolveAll([]string{"UNDP", "UNDP", "IDA"})
	assert.Len(t, out, 2)
	assert.Equal(t, "44002", out["IDA"].Code)
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestResolver_BuildsOnceAndInvalidates(t *testing.T) {
	src := &countingSource{entities: testEntities()}
	r := NewResolver(src, zerolog.New(nil).Level(zerolog.Disabled))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve("UNDP")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.loads.Load())

	r.Invalidate()
	assert.Equal(t, int32(1), src.loads.Load())

	res := r.Resolve("IDA")
	assert.Equal(t, "44002", res.Code)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestResolver_LoadFailureIsRetried(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	r := NewResolver(src, zerolog.New(nil).Level(zerolog.Disabled))

	require.Error(t, r.Load(context.Background()))
	res := r.Resolve("UNDP")
	assert.False(t, res.Resolved)

	src.err = nil
	src.entities = testEntities()
	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, "41114", r.Resolve("UNDP").Code)
}

func TestResolver_Thresholds(t *testing.T) {
	strict := newTestResolver(t, WithThresholds(100, 100))
	res := strict.Resolve("International Bank for Reconstruction & Development")
	assert.NotEqual(t, TierFuzzy, res.Tier)
}

func TestResolver_ExtraOverrides(t *testing.T) {
	r := newTestResolver(t, WithOverrides(Rule{Code: "47999", Patterns: []string{`\bpartnership for clean air\b`}}))
	res := r.Resolve("Partnership for Clean Air (PCA)")
	assert.Equal(t, "47999", res.Code)
	assert.Equal(t, TierRegex, res.Tier)
}

func TestResolver_ResolveCode(t *testing.T) {
	r := newTestResolver(t)
	code, ok := r.ResolveCode("IDA")
	assert.True(t, ok)
	assert.Equal(t, "44002", code)

	_, ok = r.ResolveCode("Nowhere Institute")
	assert.False(t, ok)
}

func TestResolver_Status(t *testing.T) {
	r := newTestResolver(t)
	r.Resolve("Nowhere Institute")

	status, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(testEntities()), status.Channels)
	assert.Greater(t, status.Rules, len(overrideRules))
	assert.Equal(t, 1, status.Unresolved)
	assert.False(t, status.BuiltAt.IsZero())
}

func TestResolver_UsesRuleCache(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := NewRuleCache(t.TempDir()+"/rules.msgpack", log)

	first := NewResolver(StaticSource(testEntities()), log, WithRuleCache(cache))
	require.NoError(t, first.Load(context.Background()))

	rules, ok, err := cache.Load(Fingerprint(NewCatalogue(testEntities()).Entities(), nil))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, rules)

	second := NewResolver(StaticSource(testEntities()), log, WithRuleCache(cache))
	for _, raw := range []string{"The World Bank", "Fonds African Development Special", "Nowhere Institute"} {
		assert.Equal(t, first.Resolve(raw), second.Resolve(raw), raw)
	}
}
