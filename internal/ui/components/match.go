// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"unicode"
)

// =============================================================================
// SUBSTRING MATCHING
// =============================================================================

// MatchIndex returns the rune offset of the first case-insensitive
// occurrence of query in target, or -1. An empty or blank query matches at 0.
//
// Examples:
//   - "LL" matches "llama3" at 0
//   - "ma" matches "llama3" at 2
//   - "xyz" does not match "llama3"
func MatchIndex(query, target string) int {
	q := foldRunes(strings.TrimSpace(query))
	if len(q) == 0 {
		return 0
	}
	t := foldRunes(target)

outer:
	for i := 0; i+len(q) <= len(t); i++ {
		for j := range q {
			if t[i+j] != q[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Matches reports whether query occurs in target, ignoring case.
func Matches(query, target string) bool {
	return MatchIndex(query, target) >= 0
}

// Filter returns the items whose label contains query, ignoring case.
// Order is preserved.
func Filter(query string, items []Item) []Item {
	if strings.TrimSpace(query) == "" {
		return items
	}
	var out []Item
	for _, item := range items {
		if Matches(query, item.Label) {
			out = append(out, item)
		}
	}
	return out
}

// HighlightMatch returns the rune positions of target covered by the match.
func HighlightMatch(query, target string) (positions []int) {
	q := []rune(strings.TrimSpace(query))
	if len(q) == 0 {
		return nil
	}
	start := MatchIndex(query, target)
	if start < 0 {
		return nil
	}
	for i := range q {
		positions = append(positions, start+i)
	}
	return positions
}

// foldRunes lowercases per rune so offsets line up with the original.
func foldRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}
