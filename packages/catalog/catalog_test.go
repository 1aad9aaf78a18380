package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-test/blitz/packages/core/model"
)

const sampleJSON = `{
	"tests": [
		{
			"path": "test_api.py",
			"name": "test_create",
			"module": "test_api",
			"class": "TestUsers",
			"fixtures": ["db", "client"],
			"markers": ["smoke"]
		},
		{
			"path": "test_api.py",
			"name": "test_list",
			"module": "test_api",
			"params": "json"
		}
	],
	"fixtures": [
		{"name": "db", "scope": "session", "path": "conftest.py"},
		{"name": "client", "scope": "function", "deps": ["db"], "autouse": false}
	]
}`

const sampleYAML = `
tests:
  - path: test_api.py
    name: test_create
    module: test_api
    fixtures: [db]
fixtures:
  - name: db
    scope: module
    path: conftest.py
`

func TestLoadJSON(t *testing.T) {
	m, err := LoadJSON([]byte(sampleJSON))
	require.NoError(t, err)

	require.Len(t, m.Tests, 2)
	assert.Equal(t, "test_api.py::TestUsers::test_create", m.Tests[0].ID)
	assert.Equal(t, []string{"db", "client"}, m.Tests[0].Fixtures)
	assert.Equal(t, []string{"smoke"}, m.Tests[0].Markers)
	assert.Equal(t, "test_api.py::test_list[json]", m.Tests[1].ID)

	require.Len(t, m.Fixtures, 2)
	assert.Equal(t, model.ScopeSession, m.Fixtures[0].Scope)
	assert.Equal(t, []string{"db"}, m.Fixtures[1].Deps)
}

func TestLoadJSONRejectsInvalidManifest(t *testing.T) {
	// Missing the required tests array.
	_, err := LoadJSON([]byte(`{"fixtures": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest")

	// Bad fixture scope is caught by the schema enum.
	_, err = LoadJSON([]byte(`{
		"tests": [],
		"fixtures": [{"name": "db", "scope": "galaxy"}]
	}`))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	m, err := LoadYAML([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, m.Tests, 1)
	assert.Equal(t, "test_api.py::test_create", m.Tests[0].ID)
	require.Len(t, m.Fixtures, 1)
	assert.Equal(t, model.ScopeModule, m.Fixtures[0].Scope)
}

func TestLoadYAMLBadScope(t *testing.T) {
	_, err := LoadYAML([]byte("tests: []\nfixtures:\n  - name: db\n    scope: galaxy\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fixture "db"`)
}

func TestLoadFileDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0644))
	yamlPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0644))

	m, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, m.Tests, 2)

	m, err = LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, m.Tests, 1)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestExplicitIDPreserved(t *testing.T) {
	m, err := LoadJSON([]byte(`{"tests": [{"id": "custom::id", "path": "t.py", "name": "t"}]}`))
	require.NoError(t, err)
	require.Len(t, m.Tests, 1)
	assert.Equal(t, "custom::id", m.Tests[0].ID)
}

func TestFilterName(t *testing.T) {
	tests := []*model.TestRecord{
		{Name: "test_create_user"},
		{Name: "test_delete_user"},
		{Name: "test_login"},
	}

	assert.Len(t, FilterName(tests, ""), 3)
	assert.Len(t, FilterName(tests, "*user"), 2)
	assert.Len(t, FilterName(tests, "test_create*"), 1)
	assert.Len(t, FilterName(tests, "*delete*"), 1)
	assert.Len(t, FilterName(tests, "test_login"), 1)
	assert.Empty(t, FilterName(tests, "nomatch"))
}

func TestFilterMarkers(t *testing.T) {
	tests := []*model.TestRecord{
		{Name: "a", Markers: []string{"smoke"}},
		{Name: "b", Markers: []string{"slow", "db"}},
		{Name: "c"},
	}

	assert.Len(t, FilterMarkers(tests, nil), 3)

	out := FilterMarkers(tests, []string{"smoke", "db"})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "b", out[1].Name)
}
