// Package engine contains deployment planning and execution for stagectl:
// local source discovery, diffing against the remote manifest, and the
// ordered statement sequence that a deploy runs.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one local source file selected for upload.
type File struct {
	// Path is the slash-separated path relative to the source directory.
	Path string
	// Size is the file size in bytes.
	Size int64
	// SHA256 is the hex-encoded content digest.
	SHA256 string
}

// Bundle is the set of local files that make up the app.
type Bundle struct {
	// SourceDir is the absolute path to the source directory.
	SourceDir string
	// MainFile is the entrypoint path relative to SourceDir.
	MainFile string
	// Files lists the selected files sorted by path.
	Files []File
}

// DiscoverBundle expands the include globs relative to sourceDir, hashes
// every matched file, and returns a deterministic bundle. The main file must
// exist and be covered by the globs.
func DiscoverBundle(sourceDir, mainFile string, include []string) (*Bundle, error) {
	absDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory %q: %w", sourceDir, err)
	}
	if info, err := os.Stat(absDir); err != nil {
		return nil, fmt.Errorf("source directory %q: %w", sourceDir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("source directory %q is not a directory", sourceDir)
	}

	seen := make(map[string]struct{})
	var files []File
	for _, pattern := range include {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if err := validateRelativePattern(pattern); err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(filepath.Join(absDir, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("expand include pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("stat %q: %w", match, err)
			}
			if info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(absDir, match)
			if err != nil {
				return nil, fmt.Errorf("relativize %q: %w", match, err)
			}
			relSlash := filepath.ToSlash(rel)
			if _, dup := seen[relSlash]; dup {
				continue
			}
			seen[relSlash] = struct{}{}

			sum, err := hashFile(match)
			if err != nil {
				return nil, err
			}
			files = append(files, File{Path: relSlash, Size: info.Size(), SHA256: sum})
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched include patterns %v under %q", include, sourceDir)
	}

	mainSlash := filepath.ToSlash(mainFile)
	if _, ok := seen[mainSlash]; !ok {
		return nil, fmt.Errorf("main file %q is not covered by include patterns %v", mainFile, include)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Bundle{SourceDir: absDir, MainFile: mainSlash, Files: files}, nil
}

// TotalSize returns the summed size of all bundle files.
func (b *Bundle) TotalSize() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size
	}
	return total
}

// LocalPath returns the absolute local path for a bundle-relative file path.
func (b *Bundle) LocalPath(relPath string) string {
	return filepath.Join(b.SourceDir, filepath.FromSlash(relPath))
}

// validateRelativePattern rejects absolute and directory-escaping patterns.
func validateRelativePattern(pattern string) error {
	if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("include pattern %q must be relative to the source directory", pattern)
	}
	for _, segment := range strings.Split(filepath.ToSlash(pattern), "/") {
		if segment == ".." {
			return fmt.Errorf("include pattern %q must not escape the source directory", pattern)
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
