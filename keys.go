package fsx

import (
	"path"
	"strings"
)

// Delimiter separates path segments in keys on every backend
const Delimiter = "/"

// CleanPath normalizes a caller path into a relative slash-separated path.
// Repeated separators collapse, "." and ".." resolve without escaping the root,
// and leading and trailing separators are stripped. The root is "".
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", Delimiter)
	cleaned := path.Clean(Delimiter + p)
	return strings.Trim(cleaned, Delimiter)
}

// FileKey returns the file-key form of p: no leading or trailing delimiter
func FileKey(p string) string {
	return CleanPath(p)
}

// DirKey returns the directory-key form of p: exactly one trailing delimiter.
// The root maps to "" so that root listings carry no prefix.
func DirKey(p string) string {
	key := CleanPath(p)
	if key == "" {
		return ""
	}
	return key + Delimiter
}

// KeyMapper maps caller paths to backend keys under a base prefix
type KeyMapper struct {
	prefix string
}

// NewKeyMapper creates a KeyMapper rooted at basePrefix
func NewKeyMapper(basePrefix string) *KeyMapper {
	return &KeyMapper{prefix: CleanPath(basePrefix)}
}

// Prefix returns the normalized base prefix
func (m *KeyMapper) Prefix() string {
	return m.prefix
}

// FileKey maps p to its full file key
func (m *KeyMapper) FileKey(p string) string {
	return m.join(FileKey(p))
}

// DirKey maps p to its full directory key
func (m *KeyMapper) DirKey(p string) string {
	key := m.join(FileKey(p))
	if key == "" {
		return ""
	}
	return key + Delimiter
}

// Strip removes the base prefix from a full key
func (m *KeyMapper) Strip(fullKey string) string {
	if m.prefix == "" {
		return fullKey
	}
	if fullKey == m.prefix {
		return ""
	}
	return strings.TrimPrefix(fullKey, m.prefix+Delimiter)
}

func (m *KeyMapper) join(key string) string {
	switch {
	case m.prefix == "":
		return key
	case key == "":
		return m.prefix
	default:
		return m.prefix + Delimiter + key
	}
}

// ChildName reduces a listed key to the name of the entry directly beneath dirKey.
// It returns "" for the directory marker itself and for keys outside dirKey.
func ChildName(dirKey, key string) string {
	if !strings.HasPrefix(key, dirKey) {
		return ""
	}
	return strings.TrimRight(strings.TrimPrefix(key, dirKey), Delimiter)
}
