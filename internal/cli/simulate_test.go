package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/config"
)

var scenariosDir = filepath.Join("testdata", "scenarios")

// copyScenario copies the permission scenario into a temp dir, pointing it
// at the shared catalog.
func copyScenario(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, "permission_denied.yaml"))
	require.NoError(t, err)

	abs, err := filepath.Abs(catalogDir)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "catalog: ../catalog", "catalog: "+abs, 1))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "permission_denied.yaml"), data, 0o644))
	return dir
}

func TestSimulatePasses(t *testing.T) {
	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ permission_denied")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestSimulateRealtime(t *testing.T) {
	cfg := config.Default()
	cfg.TickPeriod = time.Millisecond
	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text", Config: cfg}), scenariosDir, "--realtime")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ permission_denied")
}

func TestSimulateJSON(t *testing.T) {
	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "json"}),
		filepath.Join(scenariosDir, "permission_denied.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, TestResult{
		Scenarios: []ScenarioResult{{Name: "permission_denied", Pass: true}},
		Passed:    1,
		Total:     1,
	}, resp.Data)
}

func TestSimulateUpdateWritesGolden(t *testing.T) {
	dir := copyScenario(t)

	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ permission_denied (golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "golden", "permission_denied.golden"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "permission_denied.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))
}

func TestSimulateGoldenMismatch(t *testing.T) {
	dir := copyScenario(t)
	goldenDir := filepath.Join(dir, "expected")
	require.NoError(t, os.MkdirAll(goldenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "permission_denied.golden"), []byte(`{}`), 0o644))

	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), dir, "--golden", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ permission_denied")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestSimulateFailedExpectation(t *testing.T) {
	dir := copyScenario(t)
	path := filepath.Join(dir, "permission_denied.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), "count: 0", "count: 2", 1)), 0o644))

	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Data  TestResult `json:"data"`
		Error *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "2 runs of aura()")
}

func TestSimulateBadScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nsteps: []\n"), 0o644))

	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestSimulateFilter(t *testing.T) {
	out, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), scenariosDir, "--filter", "lifesteal*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	_, err = execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulateMissingPath(t *testing.T) {
	_, err := execute(t, NewSimulateCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestFindScenarioFilesSkipsGolden(t *testing.T) {
	files, err := findScenarioFiles(scenariosDir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(scenariosDir, "permission_denied.yaml")}, files)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "golden", "x.golden"), goldenFilePath("", filepath.Join("a", "s.yaml"), "x"))
	assert.Equal(t, filepath.Join("g", "x.golden"), goldenFilePath("g", filepath.Join("a", "s.yaml"), "x"))
}
