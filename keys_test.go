package fsx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"a", "a"},
		{"/a/b/", "a/b"},
		{"a//b///c", "a/b/c"},
		{"./a/./b", "a/b"},
		{"a/b/../c", "a/c"},
		{"../../etc/passwd", "etc/passwd"},
		{"a\\b", "a/b"},
		{"///", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPath(tt.in))
		})
	}
}

func TestNormalizationIsIdempotent(t *testing.T) {
	inputs := []string{"", "/", "a", "a//b/", "/x/./y/../z//", "../..", "dir///"}
	for _, in := range inputs {
		once := FileKey(in)
		assert.Equal(t, once, FileKey(once), "file key of %q", in)

		dir := DirKey(in)
		assert.Equal(t, dir, DirKey(dir), "dir key of %q", in)
	}
}

func TestDirKeyHasExactlyOneTrailingDelimiter(t *testing.T) {
	for _, in := range []string{"a", "a/", "a//", "a///", "/a/b////"} {
		key := DirKey(in)
		assert.True(t, strings.HasSuffix(key, "/"), key)
		assert.False(t, strings.HasSuffix(key, "//"), key)
	}
	assert.Equal(t, "", DirKey("/"))
}

func TestFileKeyHasNoTrailingDelimiter(t *testing.T) {
	for _, in := range []string{"a/", "a//", "/a/b///"} {
		assert.False(t, strings.HasSuffix(FileKey(in), "/"))
	}
}

func TestKeyMapper(t *testing.T) {
	m := NewKeyMapper("/tenant/")
	assert.Equal(t, "tenant", m.Prefix())
	assert.Equal(t, "tenant/a/b.txt", m.FileKey("a//b.txt"))
	assert.Equal(t, "tenant/a/", m.DirKey("a"))
	assert.Equal(t, "tenant/", m.DirKey(""))
	assert.Equal(t, "a/b.txt", m.Strip("tenant/a/b.txt"))

	noop := NewKeyMapper("")
	assert.Equal(t, "a", noop.FileKey("/a/"))
	assert.Equal(t, "", noop.DirKey("/"))
	assert.Equal(t, "a", noop.Strip("a"))
}

func TestChildName(t *testing.T) {
	assert.Equal(t, "b", ChildName("a/", "a/b"))
	assert.Equal(t, "sub", ChildName("a/", "a/sub/"))
	assert.Equal(t, "", ChildName("a/", "a/"))
	assert.Equal(t, "", ChildName("a/", "other/b"))
	assert.Equal(t, "top", ChildName("", "top/"))
}
