// Package fingerprint derives content-based identities for tests.
//
// A fingerprint hashes the test's defining source unit, the defining units
// of every fixture in its dependency closure, and the test's own declared
// inputs (markers and parametrization). Two tests share a fingerprint only
// when all contributing units are byte-identical; no semantic hashing is
// attempted. Parametrized variants of one logical test get fully
// independent fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
)

// Hasher computes fingerprints for tests rooted at a source directory.
// File contents are memoized for the duration of a run.
type Hasher struct {
	root  string
	files map[string][]byte
}

// NewHasher creates a hasher reading source units relative to root.
func NewHasher(root string) *Hasher {
	return &Hasher{root: root, files: make(map[string][]byte)}
}

// Fingerprint computes the content identity for a test over the given graph.
func (h *Hasher) Fingerprint(t *model.TestRecord, g *graph.Graph) (model.Fingerprint, error) {
	units := g.SourceUnits(t)

	sum := sha256.New()
	fmt.Fprintf(sum, "test\x00%s\x00params\x00%s\x00", t.ID, t.Params)
	for _, m := range t.Markers {
		fmt.Fprintf(sum, "marker\x00%s\x00", m)
	}
	for _, unit := range units {
		content, err := h.read(unit)
		if err != nil {
			return model.Fingerprint{}, fmt.Errorf("reading source unit %s: %w", unit, err)
		}
		fmt.Fprintf(sum, "unit\x00%s\x00%d\x00", unit, len(content))
		sum.Write(content)
	}

	return model.Fingerprint{
		Digest: hex.EncodeToString(sum.Sum(nil)),
		Units:  units,
	}, nil
}

func (h *Hasher) read(unit string) ([]byte, error) {
	if content, ok := h.files[unit]; ok {
		return content, nil
	}
	path := unit
	if h.root != "" && !filepath.IsAbs(unit) {
		path = filepath.Join(h.root, unit)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h.files[unit] = content
	return content, nil
}
