package reconciliation

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/methodology"
)

// Result is a reconciled spending dataset
type Result struct {
	View        SourceView              `json:"view"`
	Methodology methodology.Methodology `json:"methodology"`
	Records     []domain.OutputRecord   `json:"records"`
	Warnings    domain.Warnings         `json:"warnings"`
	Coverage    methodology.Coverage    `json:"coverage"`
	Matches     []MatchReport           `json:"matches,omitempty"`
}

// AppendImputations adds provider-attributed multilateral rows, used by the
// donor perspective
func (r *Result) AppendImputations(imputed []domain.ImputedRecord) {
	for _, rec := range imputed {
		r.Records = append(r.Records, rec.Row())
	}
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithFlows keeps only rows of the given flow types
func WithFlows(flows ...domain.FlowType) Option {
	return func(r *Reconciler) {
		for _, f := range flows {
			r.flows[f] = struct{}{}
		}
	}
}

// Reconciler combines the CRS and CRDF datasets into one view
type Reconciler struct {
	classifier *methodology.Classifier
	prefs      Preferences
	flows      map[domain.FlowType]struct{}
	log        zerolog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(classifier *methodology.Classifier, prefs Preferences, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		classifier: classifier,
		prefs:      prefs,
		flows:      make(map[domain.FlowType]struct{}),
		log:        log.With().Str("service", "reconciler").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile builds the dataset for a source view
func (r *Reconciler) Reconcile(view SourceView, crs, crdf []domain.Activity) (Result, error) {
	if _, err := ParseSourceView(string(view)); err != nil {
		return Result{}, err
	}

	result := Result{View: view, Methodology: r.classifier.Methodology()}
	crs = withSource(crs, domain.SourceCRS)
	crdf = withSource(crdf, domain.SourceCRDF)

	var rows []domain.OutputRecord
	switch view {
	case ViewCRS:
		rows = r.rows(&result, crs, view)
	case ViewCRSAllocable:
		allocable := make([]domain.Activity, 0, len(crs))
		for _, a := range crs {
			if IsAllocable(a.FlowModality) {
				allocable = append(allocable, a)
			}
		}
		rows = r.rows(&result, allocable, view)
	case ViewCRDF, ViewCRDFDonor:
		rows = r.rows(&result, crdf, view)
	default:
		rows = r.composite(&result, view, crs, crdf)
	}

	result.Records = dedupe(r.filterFlows(rows))

	r.log.Info().
		Str("view", string(view)).
		Str("methodology", result.Methodology.Name).
		Int("records", len(result.Records)).
		Int("warnings", len(result.Warnings)).
		Msg("Reconciled spending data")

	return result, nil
}

func (r *Reconciler) classify(result *Result, activities []domain.Activity) []domain.ClassifiedRecord {
	classified, err := r.classifier.Classify(activities)
	if err != nil {
		// Classify only fails on configuration, which the classifier has already validated
		r.log.Error().Err(err).Msg("Classification failed")
		return nil
	}
	result.Warnings = append(result.Warnings, classified.Warnings...)
	result.Coverage.Rows += classified.Coverage.Rows
	result.Coverage.Classified += classified.Coverage.Classified
	result.Coverage.NotScreened += classified.Coverage.NotScreened
	result.Coverage.Missing += classified.Coverage.Missing
	result.Coverage.Components += classified.Coverage.Components
	return classified.Records
}

func (r *Reconciler) rows(result *Result, activities []domain.Activity, view SourceView) []domain.OutputRecord {
	var rows []domain.OutputRecord
	for _, rec := range r.classify(result, activities) {
		rows = append(rows, rec.Rows(string(view))...)
	}
	return rows
}

// composite reads Rio-marker providers from CRS and component providers from
// CRDF. Providers in neither group are excluded.
func (r *Reconciler) composite(result *Result, view SourceView, crs, crdf []domain.Activity) []domain.OutputRecord {
	components := make(map[string]struct{})
	for _, a := range crdf {
		p := domain.NormaliseCode(a.ProviderCode)
		if a.Components != nil || r.prefs.IsComponents(p) {
			components[p] = struct{}{}
		}
	}

	providers := make(map[string]struct{})
	var rioRows, crdfRows []domain.Activity
	for _, a := range crs {
		p := domain.NormaliseCode(a.ProviderCode)
		providers[p] = struct{}{}
		if r.prefs.IsRio(p) {
			rioRows = append(rioRows, a)
		}
	}
	for _, a := range crdf {
		p := domain.NormaliseCode(a.ProviderCode)
		providers[p] = struct{}{}
		if _, ok := components[p]; ok && !r.prefs.IsRio(p) {
			crdfRows = append(crdfRows, a)
		}
	}

	for _, p := range sortedKeys(providers) {
		if _, ok := components[p]; ok || r.prefs.IsRio(p) {
			continue
		}
		result.Warnings.Add(domain.WarnProviderNotClassified, p, 0, "",
			"provider %s is neither a rio-marker nor a components provider", p)
		r.log.Warn().Str("provider", p).Msg("Excluded unclassified provider")
	}

	rows := r.rows(result, rioRows, view)

	records := r.classify(result, crdfRows)
	if view == ViewCRSCRDF {
		for _, rec := range records {
			rows = append(rows, rec.Rows(string(view))...)
		}
		return rows
	}

	return append(rows, r.matchToCRS(result, view, records, restrictProvider918(crs))...)
}

// matchToCRS replaces CRDF values with CRS values provider by provider.
// Unmatched records keep their reported values and are flagged.
func (r *Reconciler) matchToCRS(result *Result, view SourceView, records []domain.ClassifiedRecord, crs []domain.Activity) []domain.OutputRecord {
	byProvider := make(map[string][]domain.ClassifiedRecord)
	for _, rec := range records {
		p := domain.NormaliseCode(rec.Activity.ProviderCode)
		byProvider[p] = append(byProvider[p], rec)
	}
	crsByProvider := make(map[string][]domain.Activity)
	for _, a := range crs {
		p := domain.NormaliseCode(a.ProviderCode)
		crsByProvider[p] = append(crsByProvider[p], a)
	}

	providers := make([]string, 0, len(byProvider))
	for p := range byProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	var rows []domain.OutputRecord
	for _, p := range providers {
		recs := byProvider[p]
		matches, unmatched := matchRecords(recs, crsByProvider[p])

		for _, m := range matches {
			rows = append(rows, matchedRows(recs[m.record], m, view)...)
		}
		for _, i := range unmatched {
			rec := recs[i]
			rec.Provenance.Fallback = true
			rows = append(rows, rec.Rows(string(view))...)
		}

		report := newMatchReport(p, recs, matches, unmatched)
		result.Matches = append(result.Matches, report)

		if len(unmatched) > 0 {
			result.Warnings.Add(domain.WarnFallbackValue, p, 0, "",
				"%d of %d rows for provider %s kept reported values", len(unmatched), len(recs), p)
		}
		r.log.Debug().
			Str("provider", p).
			Int("matched", report.RowsMatched).
			Int("fallback", report.RowsFallback).
			Float64("match_rate", report.MatchRate).
			Msg("Matched provider to CRS")
	}
	return rows
}

func matchedRows(rec domain.ClassifiedRecord, m match, view SourceView) []domain.OutputRecord {
	rec.Provenance.Matched = true
	rec.Provenance.Strategy = m.strategy
	base := rec.Rows(string(view))

	var rows []domain.OutputRecord
	for _, f := range domain.AllFlowTypes() {
		factor, ok := m.factors[f]
		if !ok {
			continue
		}
		for _, row := range base {
			row.FlowType = f
			row.Value *= factor
			rows = append(rows, row)
		}
	}
	return rows
}

func (r *Reconciler) filterFlows(rows []domain.OutputRecord) []domain.OutputRecord {
	if len(r.flows) == 0 {
		return rows
	}
	out := rows[:0]
	for _, row := range rows {
		if _, ok := r.flows[row.FlowType]; ok {
			out = append(out, row)
		}
	}
	return out
}

// dedupe sums rows sharing a key, keeping first-seen order
func dedupe(rows []domain.OutputRecord) []domain.OutputRecord {
	index := make(map[domain.RecordKey]int, len(rows))
	out := make([]domain.OutputRecord, 0, len(rows))
	for _, row := range rows {
		k := row.Key()
		if i, ok := index[k]; ok {
			out[i].Value += row.Value
			out[i].Fallback = out[i].Fallback || row.Fallback
			out[i].Matched = out[i].Matched && row.Matched
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

func withSource(activities []domain.Activity, source domain.Source) []domain.Activity {
	out := make([]domain.Activity, len(activities))
	for i, a := range activities {
		if a.Source == "" {
			a.Source = source
		}
		out[i] = a
	}
	return out
}
