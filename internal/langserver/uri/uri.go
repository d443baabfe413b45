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

// Package uri provides the bidirectional mapping between file paths and the
// file:// URIs carried on the wire, with the platform normalization and
// escaping rules the LSP wire format requires.
package uri

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sourcegraph/go-lsp"

	"github.com/golang/tools/span"
)

const (
	fileScheme = "file"

	// LibraryAuthority is the synthetic authority bundled library files are
	// addressed under (spec.md "URI conventions").
	LibraryAuthority = "git://github.com/Microsoft/TypeScript"
)

// URI is an absolute addressable identifier. Equality is string equality
// after normalization: hex-escapes lowercased, slashes forward, and (in
// non-strict Windows mode) the drive letter preserved as authored.
type URI string

// FromPath constructs a URI from an absolute filesystem path. windows
// indicates non-strict Windows mode, where an extra leading slash precedes
// the drive letter per spec.md §6.
func FromPath(p string, windows bool) URI {
	p = filepath2slash(p)
	if windows && len(p) > 1 && p[1] == ':' {
		p = "/" + p
	}
	u := url.URL{Scheme: fileScheme, Path: p}
	return URI(normalize(u.String()))
}

// Filename returns the filesystem path this URI addresses. It delegates to
// span.URI, which already implements the RFC 3986 percent-decoding this
// package's normalization assumes.
func (u URI) Filename() string {
	return span.URI(u).Filename()
}

// SpanURI adapts a URI to the golang/tools span representation used at the
// boundary with incremental-edit application (see vfs.FS.DidChange).
func (u URI) SpanURI() span.URI {
	return span.URI(u)
}

// Lsp adapts a URI to the wire-level sourcegraph/go-lsp document URI type.
func (u URI) Lsp() lsp.DocumentURI {
	return lsp.DocumentURI(u)
}

// FromLsp constructs a URI from a wire-level document URI.
func FromLsp(d lsp.DocumentURI) URI {
	return URI(normalize(string(d)))
}

// IsLibrary reports whether the URI addresses a bundled default-library
// declaration file rather than workspace content.
func (u URI) IsLibrary() bool {
	return strings.HasPrefix(string(u), LibraryAuthority)
}

// LibraryURI constructs the synthetic URI for a bundled library file of the
// given basename, at the given bundled compiler version. basename is
// escaped as a JSON Pointer reference token so a "/" or "~" in the name
// can't be mistaken for a fragment path separator.
func LibraryURI(version, basename string) URI {
	return URI(fmt.Sprintf("%s?v%s#lib/%s", LibraryAuthority, version, EscapeJSONPointerToken(basename)))
}

// EscapeJSONPointerToken escapes a single JSON Pointer reference token per
// RFC 6901 §4: "~" becomes "~0" and "/" becomes "~1" (spec.md §2 "Path/URI
// utilities... JSON-Pointer escaping").
func EscapeJSONPointerToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

// UnescapeJSONPointerToken reverses EscapeJSONPointerToken.
func UnescapeJSONPointerToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	token = strings.ReplaceAll(token, "~0", "~")
	return token
}

// Dir returns the URI of the containing directory.
func (u URI) Dir() URI {
	s := string(u)
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return u
	}
	return URI(s[:idx])
}

// Join joins a relative path onto a directory URI, normalizing "." and ".."
// segments the way path.Clean does for POSIX-style URI paths.
func (u URI) Join(rel string) URI {
	prefix, p := "", string(u)
	if i := strings.Index(p, "://"); i >= 0 {
		prefix, p = p[:i+3], p[i+3:]
	}
	return URI(prefix + path.Clean(p+"/"+rel))
}

// HasPrefixSegment reports whether uriPath's path component is prefixed, at
// a path-segment boundary, by the given other URI. Used by the configuration
// map's "deepest directory is a proper prefix" lookup (spec.md §3).
func HasPrefixSegment(uriPath, prefix URI) bool {
	p, pre := string(uriPath), string(prefix)
	if !strings.HasPrefix(p, pre) {
		return false
	}
	if len(p) == len(pre) {
		return true
	}
	return p[len(pre)] == '/'
}

// normalize lowercases percent-escape hex digits and forces forward
// slashes, per spec.md §3 "Uri" equality rules.
func normalize(s string) string {
	s = filepath2slash(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) {
			b.WriteByte(c)
			b.WriteByte(lowerHex(s[i+1]))
			b.WriteByte(lowerHex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c - 'A' + 'a'
	}
	return c
}

func filepath2slash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
