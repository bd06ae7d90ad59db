package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstage/stagectl/internal/snowflake"
)

// fakeStage keeps uploaded bytes in memory and serves GET by writing the
// stored content into the requested directory.
type fakeStage struct {
	objects map[string][]byte
	listErr error
	getErr  error
}

func newFakeStage() *fakeStage {
	return &fakeStage{objects: make(map[string][]byte)}
}

func (f *fakeStage) PutBytes(_ context.Context, data []byte, stageLocation, filename string) error {
	f.objects[stageLocation+"/"+filename] = data
	return nil
}

func (f *fakeStage) GetFile(_ context.Context, stagePath, localDir string) error {
	if f.getErr != nil {
		return f.getErr
	}
	data, ok := f.objects[stagePath]
	if !ok {
		return fmt.Errorf("no object at %q", stagePath)
	}
	return os.WriteFile(filepath.Join(localDir, filepath.Base(stagePath)), data, 0o600)
}

func (f *fakeStage) ListStage(_ context.Context, location string) ([]snowflake.StageEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var entries []snowflake.StageEntry
	for path, data := range f.objects {
		if path == location {
			entries = append(entries, snowflake.StageEntry{Name: path, Size: int64(len(data))})
		}
	}
	return entries, nil
}

func (f *fakeStage) RemoveStagePath(_ context.Context, location string) error {
	for path := range f.objects {
		if len(path) >= len(location) && path[:len(location)] == location {
			delete(f.objects, path)
		}
	}
	return nil
}

const testRoot = "DB.PUBLIC.S/streamlit"

func testManifest() *Manifest {
	return &Manifest{
		Project:    "dashboard",
		Env:        "dev",
		App:        "SALES_DASH",
		ReleaseID:  "rel-1",
		DeployedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		DeployedBy: "tester",
		Warehouse:  "WH",
		MainFile:   "Main.py",
		Files: []FileRecord{
			{Path: "Main.py", SHA256: "aa", Size: 10},
			{Path: "pages/a.py", SHA256: "bb", Size: 20},
		},
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	fake := newFakeStage()
	store := NewStore(fake)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRoot, testManifest()))

	loaded, err := store.Load(ctx, testRoot)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, "rel-1", loaded.ReleaseID)
	assert.Equal(t, "SALES_DASH", loaded.App)
	assert.Len(t, loaded.Files, 2)
}

func TestStoreLoadNotFound(t *testing.T) {
	store := NewStore(newFakeStage())

	_, err := store.Load(context.Background(), testRoot)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, testRoot, nfe.Location)
}

func TestStoreLoadListErrorIsNotNotFound(t *testing.T) {
	fake := newFakeStage()
	fake.listErr = fmt.Errorf("network down")
	store := NewStore(fake)

	_, err := store.Load(context.Background(), testRoot)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestStoreLoadRejectsNewerSchema(t *testing.T) {
	fake := newFakeStage()
	store := NewStore(fake)
	ctx := context.Background()

	future := testManifest()
	data, err := json.Marshal(future)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["schemaVersion"] = SchemaVersion + 1
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	fake.objects[testRoot+"/"+Dir+"/"+FileName] = data

	_, err = store.Load(ctx, testRoot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upgrade stagectl")
}

func TestStoreLoadRejectsGarbage(t *testing.T) {
	fake := newFakeStage()
	fake.objects[testRoot+"/"+Dir+"/"+FileName] = []byte("not json")
	store := NewStore(fake)

	_, err := store.Load(context.Background(), testRoot)
	assert.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestStoreDelete(t *testing.T) {
	fake := newFakeStage()
	store := NewStore(fake)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRoot, testManifest()))
	require.NoError(t, store.Delete(ctx, testRoot))

	_, err := store.Load(ctx, testRoot)
	assert.True(t, IsNotFound(err))
}

func TestStoreSaveNil(t *testing.T) {
	store := NewStore(newFakeStage())
	assert.Error(t, store.Save(context.Background(), testRoot, nil))
}

func TestIsNotFoundOnWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", &NotFoundError{Location: testRoot})
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(fmt.Errorf("other")))
}
