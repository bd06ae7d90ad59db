// Package manifest defines the deployment record stagectl writes to the
// stage after every successful deploy, and the store that reads and writes
// it through the warehouse client.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snowstage/stagectl/internal/snowflake"
)

// SchemaVersion is the manifest format version this build writes.
const SchemaVersion = 1

// Dir is the dot-prefixed directory under the app root that holds the
// manifest. The leading dot keeps it out of the page listing.
const Dir = ".stagectl"

// FileName is the manifest file name inside Dir.
const FileName = "manifest.json"

// FileRecord is one deployed file as recorded in the manifest.
type FileRecord struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the record of the last successful deploy, stored on the stage
// so every operator diffs against the same source of truth.
type Manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	Project       string       `json:"project"`
	Env           string       `json:"env,omitempty"`
	App           string       `json:"app"`
	ReleaseID     string       `json:"releaseId"`
	DeployedAt    time.Time    `json:"deployedAt"`
	DeployedBy    string       `json:"deployedBy,omitempty"`
	Warehouse     string       `json:"warehouse"`
	MainFile      string       `json:"mainFile"`
	Files         []FileRecord `json:"files"`
}

// NotFoundError indicates that no manifest exists at the app root, which is
// the expected state before the first deploy.
type NotFoundError struct {
	// Location is the stage location that was searched.
	Location string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "manifest not found"
	}
	return fmt.Sprintf("no manifest at @%s/%s/%s", e.Location, Dir, FileName)
}

// IsNotFound reports whether err indicates a missing manifest.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// StageIO is the slice of the warehouse client the store needs. Tests swap
// in an in-memory implementation.
type StageIO interface {
	PutBytes(ctx context.Context, data []byte, stageLocation, filename string) error
	GetFile(ctx context.Context, stagePath, localDir string) error
	ListStage(ctx context.Context, location string) ([]snowflake.StageEntry, error)
	RemoveStagePath(ctx context.Context, location string) error
}

// Store reads and writes manifests under an app root location.
type Store struct {
	io StageIO
}

// NewStore constructs a Store over the given stage transport.
func NewStore(io StageIO) *Store {
	return &Store{io: io}
}

// Load fetches the manifest stored under the app root location (the
// DB.SCHEMA.STAGE/prefix form, no leading @). It returns a NotFoundError
// when no manifest has been written yet.
func (s *Store) Load(ctx context.Context, rootLocation string) (*Manifest, error) {
	manifestPath := rootLocation + "/" + Dir + "/" + FileName

	// LS first: GET on a missing path is a driver error that is hard to
	// tell apart from transport failures.
	entries, err := s.io.ListStage(ctx, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("check for manifest at %q: %w", manifestPath, err)
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{Location: rootLocation}
	}

	tmpDir, err := os.MkdirTemp("", "stagectl-manifest-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir for manifest download: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if err := s.io.GetFile(ctx, manifestPath, tmpDir); err != nil {
		return nil, fmt.Errorf("download manifest from %q: %w", manifestPath, err)
	}

	raw, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("read downloaded manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest from %q: %w", manifestPath, err)
	}
	if m.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("manifest schema version %d is newer than this stagectl understands (%d); upgrade stagectl", m.SchemaVersion, SchemaVersion)
	}
	return &m, nil
}

// Save uploads the manifest to its location under the app root.
func (s *Store) Save(ctx context.Context, rootLocation string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	m.SchemaVersion = SchemaVersion

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	dir := rootLocation + "/" + Dir
	if err := s.io.PutBytes(ctx, data, dir, FileName); err != nil {
		return fmt.Errorf("upload manifest to %q: %w", dir, err)
	}
	return nil
}

// Delete removes the manifest directory under the app root.
func (s *Store) Delete(ctx context.Context, rootLocation string) error {
	dir := rootLocation + "/" + Dir
	if err := s.io.RemoveStagePath(ctx, dir); err != nil {
		return fmt.Errorf("remove manifest at %q: %w", dir, err)
	}
	return nil
}
