// internal/change/filter.go
package change

import (
	"path"
	"strings"
)

// Filter decides which directories and files the engine never sees.
// A name matching an ignore glob is skipped unless a whitelist glob also
// matches it.
type Filter struct {
	Dirs           []string
	DirsWhitelist  []string
	Files          []string
	FilesWhitelist []string
}

// SkipDir reports whether a directory with this base name is ignored.
func (f *Filter) SkipDir(name string) bool {
	if f == nil {
		return false
	}
	return matchAny(f.Dirs, name) && !matchAny(f.DirsWhitelist, name)
}

// SkipFile reports whether a file with this base name is ignored.
func (f *Filter) SkipFile(name string) bool {
	if f == nil {
		return false
	}
	return matchAny(f.Files, name) && !matchAny(f.FilesWhitelist, name)
}

// Ignored reports whether the slash separated relative path rel lies in an
// ignored directory or is an ignored file.
func (f *Filter) Ignored(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if f.SkipDir(dir) {
			return true
		}
	}
	return f.SkipFile(parts[len(parts)-1])
}

// MatchPattern matches a tracking pattern against a relative file path.
// Patterns are rooted at the file's containing directory: the directory
// part of the pattern must match the file's directory and the last element
// must match its base name.
func MatchPattern(pattern, rel string) bool {
	pdir, pbase := path.Split(pattern)
	fdir, fbase := path.Split(rel)

	ok, err := path.Match(strings.TrimSuffix(pdir, "/"), strings.TrimSuffix(fdir, "/"))
	if err != nil || !ok {
		return false
	}
	ok, err = path.Match(pbase, fbase)
	return err == nil && ok
}

// Tracked reports whether any of patterns matches rel.
func Tracked(patterns []string, rel string) bool {
	for _, p := range patterns {
		if MatchPattern(p, rel) {
			return true
		}
	}
	return false
}

// Matching returns the patterns that match rel.
func Matching(patterns []string, rel string) []string {
	var out []string
	for _, p := range patterns {
		if MatchPattern(p, rel) {
			out = append(out, p)
		}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
