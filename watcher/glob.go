// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package watcher

import "strings"

// MatchGlob reports whether path matches pattern under §4.3's
// semantics: "**" matches any number of path segments, "*" matches
// any characters except '/' within one segment, and "?" matches a
// single character. Both pattern and path are split on '/' and
// matched segment by segment, since filepath.Match's "*" does not
// cross path separators either but has no "**" form of its own.
func MatchGlob(pattern, path string) bool {
	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(path, "/")
	return matchSegs(patSegs, pathSegs)
}

func matchSegs(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}

	if pat[0] == "**" {
		// "**" matches zero or more path segments: try consuming 0, 1, 2,
		// ... segments and see if the rest of the pattern matches what
		// remains.
		for n := 0; n <= len(path); n++ {
			if matchSegs(pat[1:], path[n:]) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}

	if !matchSegment(pat[0], path[0]) {
		return false
	}

	return matchSegs(pat[1:], path[1:])
}

// matchSegment matches a single path segment (no '/') against a
// pattern fragment using "*" (any run of characters) and "?" (any
// single character).
func matchSegment(pattern, s string) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}

	switch pattern[0] {
	case '*':
		rest := pattern[1:]
		for i := 0; i <= len(s); i++ {
			if matchSegment(rest, s[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return matchSegment(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return matchSegment(pattern[1:], s[1:])
	}
}
