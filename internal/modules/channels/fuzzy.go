package channels

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio is a 0-100 similarity based on edit distance
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 100
	}
	distance := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(distance)/float64(longest))))
}

// TokenSetRatio compares two strings by their word sets. The shared words are
// compared with each side's shared words plus its leftovers, so a name whose
// words are all contained in the other scores 100.
func TokenSetRatio(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var shared, onlyA, onlyB []string
	for w := range setA {
		if setB[w] {
			shared = append(shared, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range setB {
		if !setA[w] {
			onlyB = append(onlyB, w)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(shared, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	if sect == "" {
		return Ratio(combinedA, combinedB)
	}
	return max(Ratio(sect, combinedA), Ratio(sect, combinedB), Ratio(combinedA, combinedB))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// fuzzyCandidate is one key of a fuzzy lookup table
type fuzzyCandidate struct {
	key  string
	code string
}

// bestFuzzy returns the candidate with the highest token-set score strictly
// above threshold. Ties go to the closer whole-string match, then the lowest code.
func bestFuzzy(name string, candidates []fuzzyCandidate, threshold int) (fuzzyCandidate, int, bool) {
	var (
		best      fuzzyCandidate
		bestScore = -1
		bestRatio = -1
	)
	for _, c := range candidates {
		score := TokenSetRatio(name, c.key)
		if score < bestScore {
			continue
		}
		ratio := Ratio(name, c.key)
		if score == bestScore {
			if ratio < bestRatio || (ratio == bestRatio && c.code >= best.code) {
				continue
			}
		}
		best, bestScore, bestRatio = c, score, ratio
	}
	if bestScore <= threshold {
		return fuzzyCandidate{}, bestScore, false
	}
	return best, bestScore, true
}
