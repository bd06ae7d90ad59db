package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(path, sha string, size int64) FileRecord {
	return FileRecord{Path: path, SHA256: sha, Size: size}
}

func TestCompareFirstDeploy(t *testing.T) {
	result := Compare([]FileRecord{rec("Main.py", "aa", 10), rec("pages/a.py", "bb", 20)}, nil)

	assert.Len(t, result.Diff.Added, 2)
	assert.Empty(t, result.Diff.Removed)
	assert.Empty(t, result.Diff.Modified)
	assert.Empty(t, result.Diff.Unchanged)
	assert.False(t, result.Clean())
	assert.Equal(t, Summary{Added: 2, Total: 2}, result.Summary)
}

func TestCompareClassifiesAllBuckets(t *testing.T) {
	local := []FileRecord{
		rec("Main.py", "same", 10),
		rec("pages/changed.py", "new-sha", 22),
		rec("pages/new.py", "cc", 5),
	}
	remote := []FileRecord{
		rec("Main.py", "same", 10),
		rec("pages/changed.py", "old-sha", 20),
		rec("pages/gone.py", "dd", 7),
	}

	result := Compare(local, remote)

	require.Len(t, result.Diff.Added, 1)
	assert.Equal(t, "pages/new.py", result.Diff.Added[0].Path)
	assert.Equal(t, "cc", result.Diff.Added[0].LocalSHA)
	assert.Empty(t, result.Diff.Added[0].RemoteSHA)

	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "pages/changed.py", result.Diff.Modified[0].Path)
	assert.Equal(t, "new-sha", result.Diff.Modified[0].LocalSHA)
	assert.Equal(t, "old-sha", result.Diff.Modified[0].RemoteSHA)
	assert.Equal(t, int64(22), result.Diff.Modified[0].Size)

	require.Len(t, result.Diff.Removed, 1)
	assert.Equal(t, "pages/gone.py", result.Diff.Removed[0].Path)
	assert.Equal(t, int64(7), result.Diff.Removed[0].Size)

	require.Len(t, result.Diff.Unchanged, 1)
	assert.Equal(t, "Main.py", result.Diff.Unchanged[0].Path)

	assert.Equal(t, Summary{Added: 1, Removed: 1, Modified: 1, Unchanged: 1, Total: 4}, result.Summary)
}

func TestCompareCleanWhenIdentical(t *testing.T) {
	files := []FileRecord{rec("Main.py", "aa", 1)}
	result := Compare(files, files)
	assert.True(t, result.Clean())
	assert.Len(t, result.Diff.Unchanged, 1)
}

func TestCompareSizeOnlyChangeIsUnchanged(t *testing.T) {
	// Classification follows the digest; size is informational.
	result := Compare([]FileRecord{rec("Main.py", "aa", 99)}, []FileRecord{rec("Main.py", "aa", 1)})
	assert.True(t, result.Clean())
}

func TestCompareSortsEntries(t *testing.T) {
	result := Compare([]FileRecord{
		rec("z.py", "1", 1),
		rec("a.py", "2", 1),
		rec("m.py", "3", 1),
	}, nil)

	paths := make([]string, 0, 3)
	for _, e := range result.Diff.Added {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.py", "m.py", "z.py"}, paths)
}
