// Package text provides utilities for text processing and analysis.
// This package includes reusable counting helpers shared by the summarization
// pipeline, the inference backends and the HTTP layer.
package text

import "strings"

// CountRunes counts the number of Unicode characters (runes) in the given text.
// Multi-byte characters (accented Latin-1 text, emoji, CJK) count as one each.
//
// Examples:
//
//	CountRunes("hello")   // returns 5
//	CountRunes("héllo")   // returns 5
//	CountRunes("")        // returns 0
func CountRunes(text string) int {
	return len([]rune(text))
}

// CountWords counts whitespace-separated words.
// Runs of spaces, tabs and newlines count as a single separator and
// leading/trailing whitespace is ignored.
//
// Examples:
//
//	CountWords("a b  c")     // returns 3
//	CountWords("  \n ")      // returns 0
func CountWords(text string) int {
	return len(strings.Fields(text))
}
