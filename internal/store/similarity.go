package store

import "strings"

// NameSimilarity scores how close two repo names are, in [0, 1].
// 1.0 is an exact match after normalization; the score decays with the
// Levenshtein distance relative to the longer name. Substring containment
// gets a floor so "yonk-redo-wrestling-game" still suggests
// "wrestling-game".
func NameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	sim := 1.0 - float64(levenshtein(na, nb))/float64(longest)

	// Containment floor: a registered name embedded in the query (or the
	// reverse) is a strong signal even when the length gap is large.
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shortest := len(na)
		if len(nb) < shortest {
			shortest = len(nb)
		}
		if contained := float64(shortest) / float64(longest); contained > sim {
			sim = contained
		}
		if sim < 0.6 {
			sim = 0.6
		}
	}
	return sim
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
