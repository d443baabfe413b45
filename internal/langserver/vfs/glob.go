// Copyright 2024 The javascript-typescript-langserver Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"regexp"
	"strings"
)

// globToRegexp compiles one include/exclude pattern into a regular
// expression honoring spec.md §4.1's wildcard semantics:
//
//   - `*` matches any run of characters except `/`, and will not match a
//     leading `.` in the segment it appears in.
//   - `?` matches exactly one character that is neither `/` nor (at the
//     start of a segment) `.`.
//   - `**/` matches any number of path segments; those segments may not
//     begin with `.`, UNLESS the pattern is an exclude pattern, in which
//     case `**/` matches anything (including dot-segments).
//
// No pack library implements this exact include/exclude asymmetry (it is
// bespoke to this class of project-file matcher), so it is hand-built
// here rather than grounded on a third-party glob engine; see DESIGN.md.
func globToRegexp(pattern string, isExclude, caseSensitive bool) (*regexp.Regexp, error) {
	segments := strings.Split(pattern, "/")
	var b strings.Builder
	b.WriteString("^")
	for i, seg := range segments {
		if i > 0 && segments[i-1] != "**" {
			b.WriteString("/")
		}
		if seg == "**" {
			// a non-final "**" carries its own trailing separator, so none
			// is emitted before the next segment.
			last := i == len(segments)-1
			switch {
			case isExclude && last:
				b.WriteString(".*")
			case isExclude:
				b.WriteString("(?:.*/)?")
			case last:
				b.WriteString(`(?:[^/.][^/]*(?:/|$))*`)
			default:
				b.WriteString(`(?:[^/.][^/]*/)*`)
			}
			continue
		}
		b.WriteString(segmentToRegexp(seg))
	}
	b.WriteString("$")
	flags := ""
	if !caseSensitive {
		flags = "(?i)"
	}
	return regexp.Compile(flags + b.String())
}

// segmentToRegexp translates a single non-"**" path segment.
func segmentToRegexp(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch c {
		case '*':
			if i == 0 {
				b.WriteString(`(?:[^/.][^/]*)?`)
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			if i == 0 {
				b.WriteString(`[^/.]`)
			} else {
				b.WriteString(`[^/]`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// matchPatterns reports whether rel (a "/"-separated path relative to the
// scan root) satisfies: matches at least one include pattern (or there are
// no include patterns), matches no exclude pattern, and carries one of the
// given extensions (or extensions is empty).
func matchPatterns(rel string, extensions, excludes, includes []string, caseSensitive bool) (bool, error) {
	if len(extensions) > 0 {
		ok := false
		for _, ext := range extensions {
			if strings.HasSuffix(rel, ext) {
				ok = true
				break
			}
		}
		if !ok {
			return false, nil
		}
	}
	for _, ex := range excludes {
		re, err := globToRegexp(ex, true, caseSensitive)
		if err != nil {
			return false, err
		}
		if re.MatchString(rel) {
			return false, nil
		}
	}
	if len(includes) == 0 {
		return true, nil
	}
	for _, in := range includes {
		re, err := globToRegexp(in, false, caseSensitive)
		if err != nil {
			return false, err
		}
		if re.MatchString(rel) {
			return true, nil
		}
	}
	return false, nil
}
