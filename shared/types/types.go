package shared

import (
	"encoding/json"
	"sort"
	"strconv"
)

// PathEntry is the recorded state of one tracked file at one revision.
// An entry is either present (it has a size) or a tombstone marking the
// path as deleted as of that revision.
type PathEntry struct {
	NameHash    string
	Size        int64
	MTime       int64 // milliseconds since epoch
	ContentHash string
	deleted     bool
}

// Present builds an entry for a file that exists on disk.
func Present(nameHash string, size, mtime int64, contentHash string) PathEntry {
	if size == 0 {
		contentHash = ""
	}
	return PathEntry{NameHash: nameHash, Size: size, MTime: mtime, ContentHash: contentHash}
}

// Deleted builds a tombstone for nameHash.
func Deleted(nameHash string, mtime int64) PathEntry {
	return PathEntry{NameHash: nameHash, MTime: mtime, deleted: true}
}

// IsDeleted reports whether the entry is a tombstone.
func (e PathEntry) IsDeleted() bool {
	return e.deleted
}

// Tombstone returns the deleted counterpart of e.
func (e PathEntry) Tombstone() PathEntry {
	return Deleted(e.NameHash, e.MTime)
}

// pathEntryJSON is the on-disk shape; a null size marks a tombstone.
type pathEntryJSON struct {
	NameHash    string  `json:"name_hash"`
	Size        *int64  `json:"size"`
	MTime       int64   `json:"mtime"`
	ContentHash *string `json:"content_hash"`
}

func (e PathEntry) MarshalJSON() ([]byte, error) {
	out := pathEntryJSON{NameHash: e.NameHash, MTime: e.MTime}
	if !e.deleted {
		size := e.Size
		out.Size = &size
	}
	if e.ContentHash != "" {
		hash := e.ContentHash
		out.ContentHash = &hash
	}
	return json.Marshal(out)
}

func (e *PathEntry) UnmarshalJSON(data []byte) error {
	var in pathEntryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = PathEntry{NameHash: in.NameHash, MTime: in.MTime}
	if in.Size == nil {
		e.deleted = true
		return nil
	}
	e.Size = *in.Size
	if in.ContentHash != nil {
		e.ContentHash = *in.ContentHash
	}
	return nil
}

// BranchInfo describes one branch of the repository.
type BranchInfo struct {
	Number          int      `json:"number"`
	CreatedAt       int64    `json:"created_at"`
	Name            string   `json:"name,omitempty"`
	InSync          bool     `json:"in_sync"`
	TrackedPatterns []string `json:"tracked_patterns"`
}

// Label returns the branch name, or its number when unnamed.
func (b BranchInfo) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return "b" + strconv.Itoa(b.Number)
}

// CommitInfo describes one revision of a branch.
type CommitInfo struct {
	Number    int    `json:"number"`
	CreatedAt int64  `json:"created_at"`
	Message   string `json:"message,omitempty"`
}

// RepoState is the persisted repository flag file.
type RepoState struct {
	Version  string       `json:"version"`
	Branch   int          `json:"branch"`
	Track    bool         `json:"track"`
	Picky    bool         `json:"picky"`
	Strict   bool         `json:"strict"`
	Compress bool         `json:"compress"`
	Branches []BranchInfo `json:"branches"`
}

// Find returns the branch with the given number.
func (s *RepoState) Find(number int) (*BranchInfo, bool) {
	for i := range s.Branches {
		if s.Branches[i].Number == number {
			return &s.Branches[i], true
		}
	}
	return nil, false
}

// FindByName returns the branch with the given name.
func (s *RepoState) FindByName(name string) (*BranchInfo, bool) {
	for i := range s.Branches {
		if s.Branches[i].Name == name {
			return &s.Branches[i], true
		}
	}
	return nil, false
}

// NextNumber returns the smallest number greater than every existing branch.
func (s *RepoState) NextNumber() int {
	next := 0
	for _, b := range s.Branches {
		if b.Number >= next {
			next = b.Number + 1
		}
	}
	return next
}

// Current returns the active branch.
func (s *RepoState) Current() *BranchInfo {
	b, _ := s.Find(s.Branch)
	return b
}

// Tracking reports whether tracking patterns restrict the working tree.
func (s *RepoState) Tracking() bool {
	return s.Track || s.Picky
}

// ChangeSet is the three-way delta between two path states.
type ChangeSet struct {
	Additions     map[string]PathEntry `json:"additions"`
	Deletions     map[string]PathEntry `json:"deletions"`
	Modifications map[string]PathEntry `json:"modifications"`
}

// NewChangeSet returns an empty change set.
func NewChangeSet() ChangeSet {
	return ChangeSet{
		Additions:     make(map[string]PathEntry),
		Deletions:     make(map[string]PathEntry),
		Modifications: make(map[string]PathEntry),
	}
}

// Empty reports whether the change set carries no change at all.
func (c ChangeSet) Empty() bool {
	return len(c.Additions)+len(c.Deletions)+len(c.Modifications) == 0
}

// Len returns the total number of changed paths.
func (c ChangeSet) Len() int {
	return len(c.Additions) + len(c.Deletions) + len(c.Modifications)
}

// Revision flattens the change set into the persisted revision map:
// additions and modifications as new values, deletions as tombstones.
func (c ChangeSet) Revision() map[string]PathEntry {
	out := make(map[string]PathEntry, c.Len())
	for path, entry := range c.Additions {
		out[path] = entry
	}
	for path, entry := range c.Modifications {
		out[path] = entry
	}
	for path, entry := range c.Deletions {
		out[path] = entry.Tombstone()
	}
	return out
}

// Overlay merges a persisted revision map on top of state, keeping tombstones.
func Overlay(state, revision map[string]PathEntry) {
	for path, entry := range revision {
		state[path] = entry
	}
}

// ClonePaths returns a shallow copy of a path map.
func ClonePaths(paths map[string]PathEntry) map[string]PathEntry {
	out := make(map[string]PathEntry, len(paths))
	for k, v := range paths {
		out[k] = v
	}
	return out
}

// SortedPaths returns the keys of m in lexical order.
func SortedPaths(m map[string]PathEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
