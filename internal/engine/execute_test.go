package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstage/stagectl/internal/hooks"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// fakeWarehouse records every call and doubles as the stage client, the
// manifest transport and the hook runner.
type fakeWarehouse struct {
	calls        []string
	putBytes     map[string][]byte
	failPut      string
	failExec     string
	createdSpecs []snowflake.AppSpec
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{putBytes: make(map[string][]byte)}
}

func (f *fakeWarehouse) CreateStage(_ context.Context, database, schema, stage string) error {
	f.calls = append(f.calls, "create-stage "+snowflake.QualifiedName(database, schema, stage))
	return nil
}

func (f *fakeWarehouse) PutFile(_ context.Context, localPath, stageLocation string) error {
	f.calls = append(f.calls, "put "+localPath+" -> "+stageLocation)
	if f.failPut != "" && localPath == f.failPut {
		return fmt.Errorf("put failed")
	}
	return nil
}

func (f *fakeWarehouse) RemoveStagePath(_ context.Context, location string) error {
	f.calls = append(f.calls, "remove "+location)
	return nil
}

func (f *fakeWarehouse) CreateOrReplaceStreamlit(_ context.Context, spec snowflake.AppSpec) error {
	f.calls = append(f.calls, "create-app "+spec.QualifiedName())
	f.createdSpecs = append(f.createdSpecs, spec)
	return nil
}

func (f *fakeWarehouse) PutBytes(_ context.Context, data []byte, stageLocation, filename string) error {
	f.calls = append(f.calls, "put-bytes "+stageLocation+"/"+filename)
	f.putBytes[stageLocation+"/"+filename] = data
	return nil
}

func (f *fakeWarehouse) GetFile(_ context.Context, stagePath, _ string) error {
	return fmt.Errorf("get %q: not implemented", stagePath)
}

func (f *fakeWarehouse) ListStage(_ context.Context, _ string) ([]snowflake.StageEntry, error) {
	return nil, nil
}

func (f *fakeWarehouse) Exec(_ context.Context, query string) error {
	f.calls = append(f.calls, "exec "+query)
	if f.failExec != "" && query == f.failExec {
		return fmt.Errorf("exec failed")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func buildTestPlan(t *testing.T, bundle *Bundle, remote *manifest.Manifest, opts PlanOptions) *Plan {
	t.Helper()
	plan, err := BuildPlan(bundle, remote, testTarget(), opts)
	require.NoError(t, err)
	return plan
}

func TestExecuteFirstDeploy(t *testing.T) {
	fake := newFakeWarehouse()
	bundle := testBundle(
		File{Path: "Main.py", Size: 10, SHA256: "aa"},
		File{Path: "pages/a.py", Size: 20, SHA256: "bb"},
	)
	plan := buildTestPlan(t, bundle, nil, PlanOptions{})

	exec := NewExecutor(fake, hooks.NewExecutor(fake, discardLogger()), manifest.NewStore(fake), discardLogger())
	result, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-1", DeployedBy: "tester"})
	require.NoError(t, err)

	assert.Equal(t, "rel-1", result.ReleaseID)
	assert.Equal(t, 2, result.FilesUploaded)
	assert.Equal(t, int64(30), result.BytesUploaded)
	assert.True(t, result.AppStatementRan)
	assert.Nil(t, result.PostHookError)

	require.GreaterOrEqual(t, len(fake.calls), 4)
	assert.Equal(t, "create-stage ANALYTICS.PUBLIC.APP_STAGE", fake.calls[0])
	assert.Contains(t, fake.calls, "create-app ANALYTICS.PUBLIC.SALES_DASH")

	data, ok := fake.putBytes["ANALYTICS.PUBLIC.APP_STAGE/streamlit/.stagectl/manifest.json"]
	require.True(t, ok, "manifest uploaded")

	var m manifest.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "rel-1", m.ReleaseID)
	assert.Equal(t, "tester", m.DeployedBy)
	assert.Equal(t, "SALES_DASH", m.App)
	assert.Len(t, m.Files, 2)
}

func TestExecuteRunsHooksInOrder(t *testing.T) {
	fake := newFakeWarehouse()
	bundle := testBundle(File{Path: "Main.py", Size: 10, SHA256: "aa"})
	plan := buildTestPlan(t, bundle, nil, PlanOptions{
		PreHooks:  []string{"SELECT 'pre'"},
		PostHooks: []string{"SELECT 'post'"},
	})

	exec := NewExecutor(fake, hooks.NewExecutor(fake, discardLogger()), manifest.NewStore(fake), discardLogger())
	_, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-2"})
	require.NoError(t, err)

	var preIdx, putIdx, postIdx int
	for i, c := range fake.calls {
		switch c {
		case "exec SELECT 'pre'":
			preIdx = i
		case "exec SELECT 'post'":
			postIdx = i
		default:
			if putIdx == 0 && len(c) > 3 && c[:3] == "put" {
				putIdx = i
			}
		}
	}
	assert.Less(t, preIdx, putIdx)
	assert.Greater(t, postIdx, putIdx)
}

func TestExecutePreHookFailureAborts(t *testing.T) {
	fake := newFakeWarehouse()
	fake.failExec = "SELECT 'pre'"
	bundle := testBundle(File{Path: "Main.py", Size: 10, SHA256: "aa"})
	plan := buildTestPlan(t, bundle, nil, PlanOptions{PreHooks: []string{"SELECT 'pre'"}})

	exec := NewExecutor(fake, hooks.NewExecutor(fake, discardLogger()), manifest.NewStore(fake), discardLogger())
	_, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-3"})
	require.Error(t, err)

	for _, c := range fake.calls {
		assert.NotContains(t, c, "create-app", "app statement must not run after a failed pre-hook")
	}
	assert.Empty(t, fake.putBytes, "manifest must not be written")
}

func TestExecutePostHookFailureReturnsResult(t *testing.T) {
	fake := newFakeWarehouse()
	fake.failExec = "SELECT 'post'"
	bundle := testBundle(File{Path: "Main.py", Size: 10, SHA256: "aa"})
	plan := buildTestPlan(t, bundle, nil, PlanOptions{PostHooks: []string{"SELECT 'post'"}})

	exec := NewExecutor(fake, hooks.NewExecutor(fake, discardLogger()), manifest.NewStore(fake), discardLogger())
	result, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-4"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.AppStatementRan)
	assert.Error(t, result.PostHookError)
	assert.NotEmpty(t, fake.putBytes, "manifest written before post hooks")
}

func TestExecuteUploadFailureAborts(t *testing.T) {
	fake := newFakeWarehouse()
	bundle := testBundle(File{Path: "Main.py", Size: 10, SHA256: "aa"})
	fake.failPut = bundle.LocalPath("Main.py")
	plan := buildTestPlan(t, bundle, nil, PlanOptions{})

	exec := NewExecutor(fake, nil, manifest.NewStore(fake), discardLogger())
	_, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Main.py")
	assert.Empty(t, fake.putBytes)
}

func TestExecuteManifestKeepsFilteredRemoteRecords(t *testing.T) {
	fake := newFakeWarehouse()
	bundle := testBundle(
		File{Path: "Main.py", Size: 10, SHA256: "new-main"},
		File{Path: "pages/a.py", Size: 20, SHA256: "new-a"},
	)
	remote := testManifest(
		manifest.FileRecord{Path: "Main.py", SHA256: "old-main", Size: 9},
		manifest.FileRecord{Path: "pages/a.py", SHA256: "old-a", Size: 19},
	)

	plan := buildTestPlan(t, bundle, remote, PlanOptions{Only: []string{"main.py"}})

	exec := NewExecutor(fake, nil, manifest.NewStore(fake), discardLogger())
	_, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-6"})
	require.NoError(t, err)

	data := fake.putBytes["ANALYTICS.PUBLIC.APP_STAGE/streamlit/.stagectl/manifest.json"]
	require.NotNil(t, data)
	var m manifest.Manifest
	require.NoError(t, json.Unmarshal(data, &m))

	byPath := map[string]manifest.FileRecord{}
	for _, f := range m.Files {
		byPath[f.Path] = f
	}
	assert.Equal(t, "new-main", byPath["Main.py"].SHA256, "uploaded file records the new digest")
	assert.Equal(t, "old-a", byPath["pages/a.py"].SHA256, "filtered file keeps the staged digest")
}

func TestExecuteHooksRequiredWhenPlanHasThem(t *testing.T) {
	fake := newFakeWarehouse()
	bundle := testBundle(File{Path: "Main.py", Size: 10, SHA256: "aa"})
	plan := buildTestPlan(t, bundle, nil, PlanOptions{PreHooks: []string{"SELECT 1"}})

	exec := NewExecutor(fake, nil, manifest.NewStore(fake), discardLogger())
	_, err := exec.Execute(context.Background(), plan, ExecuteOptions{ReleaseID: "rel-7"})
	assert.Error(t, err)
}

func TestExecuteNilPlan(t *testing.T) {
	exec := NewExecutor(newFakeWarehouse(), nil, nil, discardLogger())
	_, err := exec.Execute(context.Background(), nil, ExecuteOptions{})
	assert.Error(t, err)
}
