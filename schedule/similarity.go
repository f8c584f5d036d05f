// Package schedule implements the calendar intelligence layer: title
// similarity for duplicate detection, buffer-aware conflict checks,
// working-hours arithmetic, next-slot search, and slot confidence
// scoring. Everything here is pure: no provider calls, no clocks.
package schedule

import (
	"strings"
	"unicode"
)

// Similarity thresholds for title comparison. Titles containing "test"
// or "bulk" are held to the stricter threshold because test data tends
// to share long common prefixes.
const (
	similarityThreshold       = 0.85
	strictSimilarityThreshold = 0.95
)

// NormalizeTitle lowercases and collapses whitespace for comparison.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// TitlesAreSimilar reports whether two titles should be treated as the
// same item for duplicate detection.
//
// Numbered variants are never similar: if both titles contain digits
// and stripping all digits leaves identical strings, the titles differ
// only in their numbering ("Bulk test task 1" vs "Bulk test task 2").
func TitlesAreSimilar(a, b string) bool {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	if containsDigit(na) && containsDigit(nb) {
		sa, sb := stripDigits(na), stripDigits(nb)
		if sa == sb && na != nb {
			return false
		}
	}

	threshold := similarityThreshold
	if hasStrictMarker(na) && hasStrictMarker(nb) {
		threshold = strictSimilarityThreshold
	}

	return SequenceRatio(na, nb) >= threshold
}

func hasStrictMarker(s string) bool {
	return strings.Contains(s, "test") || strings.Contains(s, "bulk")
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// stripDigits removes digit runs and re-normalizes whitespace so
// "task 1" and "task 2" both reduce to "task".
func stripDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SequenceRatio computes the Ratcliff/Obershelp similarity of two
// strings: twice the number of matching characters divided by the total
// length. Matching characters are found by recursively locating the
// longest common substring and matching to its left and right.
func SequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	matched := matchingChars(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

type matchRegion struct {
	aLo, aHi int
	bLo, bHi int
}

func matchingChars(a, b string) int {
	total := 0
	stack := []matchRegion{{0, len(a), 0, len(b)}}

	for len(stack) > 0 {
		region := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ai, bi, size := longestCommonSubstring(a, b, region)
		if size == 0 {
			continue
		}
		total += size

		stack = append(stack,
			matchRegion{region.aLo, ai, region.bLo, bi},
			matchRegion{ai + size, region.aHi, bi + size, region.bHi},
		)
	}

	return total
}

// longestCommonSubstring finds the longest run shared by a[aLo:aHi] and
// b[bLo:bHi] using the classic rolling-row dynamic program.
func longestCommonSubstring(a, b string, r matchRegion) (aIdx, bIdx, size int) {
	if r.aLo >= r.aHi || r.bLo >= r.bHi {
		return 0, 0, 0
	}

	width := r.bHi - r.bLo
	prev := make([]int, width+1)
	curr := make([]int, width+1)

	for i := r.aLo; i < r.aHi; i++ {
		for j := r.bLo; j < r.bHi; j++ {
			if a[i] == b[j] {
				run := prev[j-r.bLo] + 1
				curr[j-r.bLo+1] = run
				if run > size {
					size = run
					aIdx = i - run + 1
					bIdx = j - run + 1
				}
			} else {
				curr[j-r.bLo+1] = 0
			}
		}
		prev, curr = curr, prev
		for k := range curr {
			curr[k] = 0
		}
	}

	return aIdx, bIdx, size
}
