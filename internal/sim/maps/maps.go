// Package maps loads board topologies from YAML.
//
// A map file has a "nodes" table keyed by space id ({type, value}), an
// "edges" list of [from, to] pairs and optional "pos" layout hints. Files are
// checked against an embedded JSON Schema before the board is built. The
// first node in the file is the start space unless "start" names another.
package maps

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"quantumparty.dev/internal/sim/board"
)

//go:embed map.schema.json
var schemaJSON []byte

//go:embed classic.yaml
var classicYAML []byte

const schemaURL = "https://quantumparty.dev/schemas/map.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Map is a parsed topology ready for board.Build.
type Map struct {
	Name   string
	Start  string
	Spaces []board.Space
	Edges  []board.Edge
}

// Build constructs a fresh graph. Each call returns an independent board.
func (m Map) Build() (*board.Graph, error) {
	return board.Build(m.Spaces, m.Edges)
}

type nodeSpec struct {
	Type  int  `yaml:"type"`
	Value *int `yaml:"value"`
}

type fileSpec struct {
	Name  string                `yaml:"name"`
	Start string                `yaml:"start"`
	Nodes yaml.Node             `yaml:"nodes"`
	Edges [][]string            `yaml:"edges"`
	Pos   map[string][2]float64 `yaml:"pos"`
}

// Load reads and parses a map file.
func Load(path string) (Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Map{}, err
	}
	m, err := Parse(raw)
	if err != nil {
		return Map{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Classic is the built-in map.
func Classic() Map {
	m, err := Parse(classicYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded classic map: %v", err))
	}
	return m
}

// Named resolves "classic" to the built-in map and anything else to a file.
func Named(nameOrPath string) (Map, error) {
	if nameOrPath == "" || nameOrPath == "classic" {
		return Classic(), nil
	}
	return Load(nameOrPath)
}

// Parse validates raw against the map schema and converts it.
func Parse(raw []byte) (Map, error) {
	if err := Validate(raw); err != nil {
		return Map{}, err
	}
	var f fileSpec
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Map{}, fmt.Errorf("map yaml: %w", err)
	}
	if f.Nodes.Kind != yaml.MappingNode {
		return Map{}, fmt.Errorf("map nodes: expected a mapping")
	}

	m := Map{Name: f.Name}
	for i := 0; i+1 < len(f.Nodes.Content); i += 2 {
		id := f.Nodes.Content[i].Value
		var ns nodeSpec
		if err := f.Nodes.Content[i+1].Decode(&ns); err != nil {
			return Map{}, fmt.Errorf("map node %q: %w", id, err)
		}
		sp := board.Space{ID: id, Kind: board.SpaceKind(ns.Type), Value: ns.Value}
		if p, ok := f.Pos[id]; ok {
			sp.Pos = &board.Point{X: p[0], Y: p[1]}
		}
		m.Spaces = append(m.Spaces, sp)
	}
	for _, e := range f.Edges {
		m.Edges = append(m.Edges, board.Edge{From: e[0], To: e[1]})
	}

	m.Start = f.Start
	if m.Start == "" {
		m.Start = m.Spaces[0].ID
	}
	if m.Start != m.Spaces[0].ID {
		// Keep the start first so board.Graph.Start agrees with the file.
		found := false
		for i, sp := range m.Spaces {
			if sp.ID == m.Start {
				m.Spaces[0], m.Spaces[i] = m.Spaces[i], m.Spaces[0]
				found = true
				break
			}
		}
		if !found {
			return Map{}, fmt.Errorf("map start %q is not a node", m.Start)
		}
	}

	// Topology errors (unknown endpoints) surface here, before any session
	// sees the map.
	if _, err := m.Build(); err != nil {
		return Map{}, err
	}
	return m, nil
}

// Validate checks raw YAML against the embedded map schema.
func Validate(raw []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile map schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("map yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("map yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("map schema: %w", err)
	}
	return nil
}
