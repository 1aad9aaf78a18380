// Package catalog loads the discovered test catalog and fixture
// definitions from a collected manifest.
//
// The source-parsing front end that turns Python files into structured
// records is an external collaborator; its output is consumed here as a
// JSON or YAML manifest. JSON manifests are validated against a schema
// before use. The catalog is ordered and stable for the duration of a run.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/blitz-test/blitz/packages/core/model"
)

// Manifest is the loaded catalog: the ordered test records and the fixture
// definitions they resolve against.
type Manifest struct {
	Tests    []*model.TestRecord
	Fixtures []*model.FixtureDefinition
}

// LoadFile reads a manifest from a .json, .yaml or .yml file.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return LoadJSON(data)
	}
}

// LoadJSON parses and validates a JSON manifest.
func LoadJSON(data []byte) (*Manifest, error) {
	if err := validateJSON(data); err != nil {
		return nil, err
	}

	m := &Manifest{}
	for _, item := range gjson.GetBytes(data, "tests").Array() {
		t := &model.TestRecord{
			ID:     item.Get("id").String(),
			Path:   item.Get("path").String(),
			Name:   item.Get("name").String(),
			Module: item.Get("module").String(),
			Class:  item.Get("class").String(),
			Params: item.Get("params").String(),
		}
		for _, f := range item.Get("fixtures").Array() {
			t.Fixtures = append(t.Fixtures, f.String())
		}
		for _, mk := range item.Get("markers").Array() {
			t.Markers = append(t.Markers, mk.String())
		}
		if t.ID == "" {
			t.ID = deriveID(t)
		}
		m.Tests = append(m.Tests, t)
	}

	for _, item := range gjson.GetBytes(data, "fixtures").Array() {
		scope, err := model.ParseScope(item.Get("scope").String())
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", item.Get("name").String(), err)
		}
		def := &model.FixtureDefinition{
			Name:    item.Get("name").String(),
			Scope:   scope,
			Autouse: item.Get("autouse").Bool(),
			Path:    item.Get("path").String(),
		}
		for _, d := range item.Get("deps").Array() {
			def.Deps = append(def.Deps, d.String())
		}
		m.Fixtures = append(m.Fixtures, def)
	}

	return m, nil
}

type yamlTest struct {
	ID       string   `yaml:"id"`
	Path     string   `yaml:"path"`
	Name     string   `yaml:"name"`
	Module   string   `yaml:"module"`
	Class    string   `yaml:"class"`
	Fixtures []string `yaml:"fixtures"`
	Markers  []string `yaml:"markers"`
	Params   string   `yaml:"params"`
}

type yamlFixture struct {
	Name    string   `yaml:"name"`
	Scope   string   `yaml:"scope"`
	Autouse bool     `yaml:"autouse"`
	Deps    []string `yaml:"deps"`
	Path    string   `yaml:"path"`
}

type yamlManifest struct {
	Tests    []yamlTest    `yaml:"tests"`
	Fixtures []yamlFixture `yaml:"fixtures"`
}

// LoadYAML parses a YAML manifest.
func LoadYAML(data []byte) (*Manifest, error) {
	var wire yamlManifest
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	m := &Manifest{}
	for _, item := range wire.Tests {
		t := &model.TestRecord{
			ID:       item.ID,
			Path:     item.Path,
			Name:     item.Name,
			Module:   item.Module,
			Class:    item.Class,
			Fixtures: item.Fixtures,
			Markers:  item.Markers,
			Params:   item.Params,
		}
		if t.ID == "" {
			t.ID = deriveID(t)
		}
		m.Tests = append(m.Tests, t)
	}
	for _, item := range wire.Fixtures {
		scope, err := model.ParseScope(item.Scope)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", item.Name, err)
		}
		m.Fixtures = append(m.Fixtures, &model.FixtureDefinition{
			Name:    item.Name,
			Scope:   scope,
			Autouse: item.Autouse,
			Deps:    item.Deps,
			Path:    item.Path,
		})
	}
	return m, nil
}

func validateJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validating manifest: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// deriveID builds the stable pytest-style identity for a record without an
// explicit id.
func deriveID(t *model.TestRecord) string {
	id := t.Path
	if t.Class != "" {
		id += "::" + t.Class
	}
	id += "::" + t.Name
	if t.Params != "" {
		id += "[" + t.Params + "]"
	}
	return id
}

// FilterName keeps tests whose name matches the pattern. Patterns support
// leading/trailing "*" wildcards; empty pattern keeps everything.
func FilterName(tests []*model.TestRecord, pattern string) []*model.TestRecord {
	if pattern == "" {
		return tests
	}
	var out []*model.TestRecord
	for _, t := range tests {
		if matchesPattern(t.Name, pattern) {
			out = append(out, t)
		}
	}
	return out
}

// FilterMarkers keeps tests carrying any of the given markers. An empty
// filter keeps everything.
func FilterMarkers(tests []*model.TestRecord, markers []string) []*model.TestRecord {
	if len(markers) == 0 {
		return tests
	}
	var out []*model.TestRecord
	for _, t := range tests {
		for _, m := range markers {
			if t.HasMarker(m) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' && len(pattern) > 1 {
		return strings.Contains(name, pattern[1:len(pattern)-1])
	}
	if pattern[0] == '*' {
		return strings.HasSuffix(name, pattern[1:])
	}
	if pattern[len(pattern)-1] == '*' {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return name == pattern
}
