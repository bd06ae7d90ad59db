// Package differ compares a local file set against the last deployed
// manifest and classifies every path as added, removed, modified or
// unchanged.
package differ

import "sort"

// FileRecord is one file in either the local bundle or the remote manifest.
type FileRecord struct {
	// Path is the slash-separated path relative to the app root.
	Path string
	// SHA256 is the hex-encoded content digest.
	SHA256 string
	// Size is the file size in bytes.
	Size int64
}

// Entry is one classified path in a diff result.
type Entry struct {
	// Path is the slash-separated file path.
	Path string
	// LocalSHA is the digest of the local file, empty for removed files.
	LocalSHA string
	// RemoteSHA is the digest recorded in the manifest, empty for added files.
	RemoteSHA string
	// Size is the local file size, or the recorded size for removed files.
	Size int64
}

// Diff groups entries by classification.
type Diff struct {
	Added     []Entry
	Removed   []Entry
	Modified  []Entry
	Unchanged []Entry
}

// Summary counts entries per classification.
type Summary struct {
	Added     int
	Removed   int
	Modified  int
	Unchanged int
	Total     int
}

// Result contains the difference between local files and the manifest.
type Result struct {
	Diff    Diff
	Summary Summary
}

// Clean reports whether the diff carries no changes.
func (r Result) Clean() bool {
	return r.Summary.Added == 0 && r.Summary.Removed == 0 && r.Summary.Modified == 0
}

// Compare classifies local files against remote manifest records. A nil or
// empty remote set marks every local file as added (first deploy). Entries
// in every bucket are sorted by path.
func Compare(local, remote []FileRecord) Result {
	remoteByPath := make(map[string]FileRecord, len(remote))
	for _, r := range remote {
		remoteByPath[r.Path] = r
	}
	localByPath := make(map[string]FileRecord, len(local))
	for _, l := range local {
		localByPath[l.Path] = l
	}

	var result Result
	for _, l := range local {
		r, exists := remoteByPath[l.Path]
		switch {
		case !exists:
			result.Diff.Added = append(result.Diff.Added, Entry{Path: l.Path, LocalSHA: l.SHA256, Size: l.Size})
		case r.SHA256 != l.SHA256:
			result.Diff.Modified = append(result.Diff.Modified, Entry{Path: l.Path, LocalSHA: l.SHA256, RemoteSHA: r.SHA256, Size: l.Size})
		default:
			result.Diff.Unchanged = append(result.Diff.Unchanged, Entry{Path: l.Path, LocalSHA: l.SHA256, RemoteSHA: r.SHA256, Size: l.Size})
		}
	}
	for _, r := range remote {
		if _, exists := localByPath[r.Path]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, Entry{Path: r.Path, RemoteSHA: r.SHA256, Size: r.Size})
		}
	}

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)
	sortEntries(result.Diff.Unchanged)

	result.Summary = Summary{
		Added:     len(result.Diff.Added),
		Removed:   len(result.Diff.Removed),
		Modified:  len(result.Diff.Modified),
		Unchanged: len(result.Diff.Unchanged),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed +
		result.Summary.Modified + result.Summary.Unchanged

	return result
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}
