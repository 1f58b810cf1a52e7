package reconciliation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/climate-finance/engine/internal/domain"
)

type matchField int

const (
	fieldYear matchField = iota
	fieldProvider
	fieldAgency
	fieldProjectID
	fieldProjectTitle
	fieldRecipient
	fieldFinanceType
	fieldFlowModality
	fieldPurpose
)

var baseFields = []matchField{
	fieldYear,
	fieldProvider,
	fieldAgency,
	fieldProjectID,
	fieldProjectTitle,
	fieldRecipient,
	fieldFinanceType,
	fieldFlowModality,
	fieldPurpose,
}

// MatchStrategy is a named set of fields that must agree for a CRDF row to
// be matched to CRS rows
type MatchStrategy struct {
	Name   string
	fields []matchField
}

// Strategies are tried in order; each one only sees rows earlier strategies
// left unmatched
var Strategies = []MatchStrategy{
	{Name: "full_match", fields: baseFields},
	{Name: "no_project_id", fields: without(fieldProjectID)},
	{Name: "no_project_title", fields: without(fieldProjectTitle)},
	{Name: "no_agency_no_title", fields: without(fieldAgency, fieldProjectTitle)},
	{Name: "no_agency_no_id", fields: without(fieldAgency, fieldProjectID)},
}

func without(drop ...matchField) []matchField {
	fields := make([]matchField, 0, len(baseFields))
outer:
	for _, f := range baseFields {
		for _, d := range drop {
			if f == d {
				continue outer
			}
		}
		fields = append(fields, f)
	}
	return fields
}

func (s MatchStrategy) key(a domain.Activity) string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = fieldValue(a, f)
	}
	return strings.Join(parts, "\x1f")
}

func fieldValue(a domain.Activity, f matchField) string {
	switch f {
	case fieldYear:
		return strconv.Itoa(a.Year)
	case fieldProvider:
		return domain.NormaliseCode(a.ProviderCode)
	case fieldAgency:
		return domain.NormaliseCode(a.AgencyCode)
	case fieldProjectID:
		return strings.TrimSpace(a.ProjectID)
	case fieldProjectTitle:
		return strings.Join(strings.Fields(strings.ToLower(a.ProjectTitle)), " ")
	case fieldRecipient:
		return domain.NormaliseCode(a.RecipientCode)
	case fieldFinanceType:
		return domain.NormaliseCode(a.FinanceType)
	case fieldFlowModality:
		return strings.ToUpper(strings.TrimSpace(a.FlowModality))
	case fieldPurpose:
		return domain.NormaliseCode(a.PurposeCode)
	}
	return ""
}

// match links one classified CRDF record to the CRS flows it was found in
type match struct {
	record   int
	strategy string
	// factor per CRS flow type: CRS value over the reported CRDF value
	factors map[domain.FlowType]float64
}

// matchRecords runs the strategy cascade over one provider's records. It
// returns the matches and the indexes of records left unmatched.
func matchRecords(records []domain.ClassifiedRecord, crs []domain.Activity) ([]match, []int) {
	pendingCRS := make([]int, len(crs))
	for i := range crs {
		pendingCRS[i] = i
	}
	pending := make([]int, len(records))
	for i := range records {
		pending[i] = i
	}

	var matches []match
	for _, s := range Strategies {
		if len(pending) == 0 || len(pendingCRS) == 0 {
			break
		}

		crsByKey := make(map[string][]int)
		for _, i := range pendingCRS {
			k := s.key(crs[i])
			crsByKey[k] = append(crsByKey[k], i)
		}

		groups := make(map[string][]int)
		var keys []string
		for _, i := range pending {
			k := s.key(records[i].Activity)
			if _, seen := groups[k]; !seen {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], i)
		}

		usedCRS := make(map[int]bool)
		matched := make(map[int]bool)
		for _, k := range keys {
			crsRows, ok := crsByKey[k]
			if !ok {
				continue
			}
			reported := 0.0
			for _, i := range groups[k] {
				reported += records[i].Activity.Value
			}
			if reported <= 0 {
				continue
			}

			flows := make(map[domain.FlowType]float64)
			for _, ci := range crsRows {
				flows[crs[ci].FlowType] += crs[ci].Value
				usedCRS[ci] = true
			}
			factors := make(map[domain.FlowType]float64, len(flows))
			for f, v := range flows {
				factors[f] = v / reported
			}
			for _, i := range groups[k] {
				matches = append(matches, match{record: i, strategy: s.Name, factors: factors})
				matched[i] = true
			}
		}

		pending = filterIndexes(pending, matched)
		pendingCRS = filterIndexes(pendingCRS, usedCRS)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].record < matches[j].record })
	return matches, pending
}

func filterIndexes(idx []int, drop map[int]bool) []int {
	out := idx[:0]
	for _, i := range idx {
		if !drop[i] {
			out = append(out, i)
		}
	}
	return out
}

// restrictProvider918 drops agencies 1 and 2 of provider 918, whose CRS rows
// duplicate what the provider reports through its other agency
func restrictProvider918(crs []domain.Activity) []domain.Activity {
	out := make([]domain.Activity, 0, len(crs))
	for _, a := range crs {
		if domain.NormaliseCode(a.ProviderCode) == "918" {
			agency := domain.NormaliseCode(a.AgencyCode)
			if agency == "1" || agency == "2" {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// MatchReport measures how much of a provider's CRDF data found CRS values
type MatchReport struct {
	Provider      string         `json:"provider"`
	RowsMatched   int            `json:"rows_matched"`
	RowsFallback  int            `json:"rows_fallback"`
	ValueMatched  float64        `json:"value_matched"`
	ValueFallback float64        `json:"value_fallback"`
	MatchRate     float64        `json:"match_rate"`
	ByStrategy    map[string]int `json:"by_strategy"`
}

func newMatchReport(provider string, records []domain.ClassifiedRecord, matches []match, unmatched []int) MatchReport {
	report := MatchReport{
		Provider:     provider,
		RowsMatched:  len(matches),
		RowsFallback: len(unmatched),
		ByStrategy:   make(map[string]int),
	}
	for _, m := range matches {
		report.ValueMatched += records[m.record].Activity.Value
		report.ByStrategy[m.strategy]++
	}
	for _, i := range unmatched {
		report.ValueFallback += records[i].Activity.Value
	}
	if total := report.RowsMatched + report.RowsFallback; total > 0 {
		report.MatchRate = float64(report.RowsMatched) / float64(total)
	}
	return report
}
