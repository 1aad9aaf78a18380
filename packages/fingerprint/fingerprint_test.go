package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func setup(t *testing.T) (string, *model.TestRecord, *graph.Graph) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "test_api.py", "def test_create(): pass\n")
	writeFile(t, dir, "conftest.py", "import pytest\n")

	rec := &model.TestRecord{
		ID:       "test_api.py::test_create",
		Path:     "test_api.py",
		Name:     "test_create",
		Module:   "test_api",
		Fixtures: []string{"db"},
		Markers:  []string{"smoke"},
	}
	defs := []*model.FixtureDefinition{
		{Name: "db", Scope: model.ScopeSession, Path: "conftest.py"},
	}
	g, err := graph.Build([]*model.TestRecord{rec}, defs)
	require.NoError(t, err)
	return dir, rec, g
}

func TestFingerprintStable(t *testing.T) {
	dir, rec, g := setup(t)
	h := NewHasher(dir)

	first, err := h.Fingerprint(rec, g)
	require.NoError(t, err)
	second, err := h.Fingerprint(rec, g)
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.ElementsMatch(t, []string{"test_api.py", "conftest.py"}, first.Units)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	dir, rec, g := setup(t)

	before, err := NewHasher(dir).Fingerprint(rec, g)
	require.NoError(t, err)

	// Fixture source changes contribute too, not just the test's own file.
	writeFile(t, dir, "conftest.py", "import pytest  # changed\n")
	after, err := NewHasher(dir).Fingerprint(rec, g)
	require.NoError(t, err)

	assert.NotEqual(t, before.Digest, after.Digest)
}

func TestFingerprintIndependentPerParams(t *testing.T) {
	dir, rec, g := setup(t)
	h := NewHasher(dir)

	plain, err := h.Fingerprint(rec, g)
	require.NoError(t, err)

	variant := *rec
	variant.Params = "json"
	parametrized, err := h.Fingerprint(&variant, g)
	require.NoError(t, err)

	assert.NotEqual(t, plain.Digest, parametrized.Digest)
}

func TestFingerprintIncludesMarkers(t *testing.T) {
	dir, rec, g := setup(t)
	h := NewHasher(dir)

	before, err := h.Fingerprint(rec, g)
	require.NoError(t, err)

	marked := *rec
	marked.Markers = []string{"smoke", "slow"}
	after, err := h.Fingerprint(&marked, g)
	require.NoError(t, err)

	assert.NotEqual(t, before.Digest, after.Digest)
}

func TestFingerprintMissingUnit(t *testing.T) {
	dir, rec, g := setup(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "conftest.py")))

	_, err := NewHasher(dir).Fingerprint(rec, g)
	assert.Error(t, err)
}
