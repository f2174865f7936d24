package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://quantumparty.dev/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemasErr = err
			return
		}
		c := jsonschema.NewCompiler()
		for _, e := range entries {
			b, err := schemaFS.ReadFile("schemas/" + e.Name())
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", e.Name(), err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(entries))
		for _, e := range entries {
			s, err := c.Compile(schemaBase + e.Name())
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", e.Name(), err)
				return
			}
			out[e.Name()] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

var schemaForType = map[string]string{
	TypeHello: "hello.schema.json",
	TypeInput: "input.schema.json",
	TypeState: "state.schema.json",
}

// Validate checks a raw JSON message against the schema registered for its
// type. Types without a schema pass.
func Validate(raw []byte) error {
	base, err := DecodeBase(raw)
	if err != nil {
		return err
	}
	name, ok := schemaForType[base.Type]
	if !ok {
		return nil
	}
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := all[name].Validate(v); err != nil {
		return fmt.Errorf("%s: %w", base.Type, err)
	}
	return nil
}
