package tokenstore

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ralts/langindex/internal/occurrence"
)

// matchTier ranks how a candidate name matched the query, highest wins
//.
type matchTier int

const (
	tierNone matchTier = iota
	tierSubsequence
	tierCamelPrefix
	tierExact
)

// FuzzyResult pairs an occurrence with the tier its name matched the
// query at, ready for sorting by RankFuzzy.
type FuzzyResult struct {
	Occurrence occurrence.Occurrence
	Tier       matchTier
}

// splitWords breaks name into words at uppercase-letter and
// underscore boundaries, e.g. "UserController" -> ["User",
// "Controller"], "find_by_id" -> ["find", "by", "id"].
func splitWords(name string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// matchCamelPrefix reports whether query can be fully consumed as a
// concatenation of case-insensitive prefixes of consecutive words of
// name, with the first word contributing at least one character. This
// is the "CamelCase prefix" fuzzy-match tier: query "UsR" matches
// "UserRecord" by taking "Us" from "User" and "R" from "Record", but
// ranks below an exact match and above a bare subsequence match. A
// word need not be fully consumed before the query moves on to the
// next word's prefix.
func matchCamelPrefix(query, name string) bool {
	if query == "" {
		return false
	}
	words := splitWords(name)
	if len(words) == 0 {
		return false
	}
	q := []rune(strings.ToLower(query))
	qi := 0

	for wi, w := range words {
		wl := []rune(strings.ToLower(w))
		matched := 0
		for matched < len(wl) && qi < len(q) && q[qi] == wl[matched] {
			qi++
			matched++
		}
		if wi == 0 && matched == 0 {
			return false
		}
		if qi == len(q) {
			return true
		}
	}
	return qi == len(q)
}

// matchSubsequence reports whether query appears as a case-insensitive
// subsequence of name.
func matchSubsequence(query, name string) bool {
	if query == "" {
		return false
	}
	q := []rune(strings.ToLower(query))
	n := []rune(strings.ToLower(name))
	qi := 0
	for _, r := range n {
		if qi < len(q) && r == q[qi] {
			qi++
		}
	}
	return qi == len(q)
}

// classify returns the best tier at which query matches name.
func classify(query, name string) matchTier {
	if strings.EqualFold(query, name) {
		return tierExact
	}
	if matchCamelPrefix(query, name) {
		return tierCamelPrefix
	}
	if matchSubsequence(query, name) {
		return tierSubsequence
	}
	return tierNone
}

// RankFuzzy filters candidates to those matching query at any tier and
// orders them per : higher tier first, then shorter candidate
// name, then file path, then start line.
func RankFuzzy(query string, candidates []occurrence.Occurrence) []occurrence.Occurrence {
	results := make([]FuzzyResult, 0, len(candidates))
	for _, occ := range candidates {
		tier := classify(query, occ.Name)
		if tier == tierNone {
			continue
		}
		results = append(results, FuzzyResult{Occurrence: occ, Tier: tier})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		if len(a.Occurrence.Name) != len(b.Occurrence.Name) {
			return len(a.Occurrence.Name) < len(b.Occurrence.Name)
		}
		if a.Occurrence.File != b.Occurrence.File {
			return a.Occurrence.File < b.Occurrence.File
		}
		return a.Occurrence.Range.Start.Line < b.Occurrence.Range.Start.Line
	})

	out := make([]occurrence.Occurrence, len(results))
	for i, r := range results {
		out[i] = r.Occurrence
	}
	return out
}
