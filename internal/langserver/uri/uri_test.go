package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromPathNormalizesHexEscapes(t *testing.T) {
	u := FromPath("/a b/c.ts", false)
	assert.Equal(t, URI("file:///a%20b/c.ts"), u)
}

func TestFromLspLowercasesHexEscapes(t *testing.T) {
	u := FromLsp("file:///a%2Fb/c.ts")
	assert.Equal(t, URI("file:///a%2fb/c.ts"), u)
}

func TestDir(t *testing.T) {
	assert.Equal(t, URI("file:///a/b"), URI("file:///a/b/c.ts").Dir())
	assert.Equal(t, URI("file:///a/b/c.ts"), URI("file:///a/b/c.ts").Dir().Join("c.ts"))
}

func TestJoinCleansDotSegments(t *testing.T) {
	assert.Equal(t, URI("file:///a/c.ts"), URI("file:///a/b/..").Join("c.ts"))
}

func TestHasPrefixSegment(t *testing.T) {
	assert.True(t, HasPrefixSegment("file:///a/b/c.ts", "file:///a/b"))
	assert.True(t, HasPrefixSegment("file:///a/b", "file:///a/b"))
	assert.False(t, HasPrefixSegment("file:///a/bc.ts", "file:///a/b"))
	assert.False(t, HasPrefixSegment("file:///a/b.ts", "file:///a/b/c"))
}

func TestIsLibrary(t *testing.T) {
	u := LibraryURI("3.9.2", "lib.dom.d.ts")
	assert.True(t, u.IsLibrary())
	assert.False(t, URI("file:///a/b.ts").IsLibrary())
}

func TestEscapeJSONPointerToken(t *testing.T) {
	cases := []struct{ in, want string }{
		{"lib.dom.d.ts", "lib.dom.d.ts"},
		{"a/b", "a~1b"},
		{"a~b", "a~0b"},
		{"a~1b", "a~01b"},
	}
	for _, c := range cases {
		got := EscapeJSONPointerToken(c.in)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.in, UnescapeJSONPointerToken(got), "round trip")
	}
}

func TestLibraryURIEscapesBasename(t *testing.T) {
	u := LibraryURI("3.9.2", "types/node/fs.d.ts")
	assert.Equal(t, URI("git://github.com/Microsoft/TypeScript?v3.9.2#lib/types~1node~1fs.d.ts"), u)
}
