package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce  sync.Once
	schemaErr   error
	extractionS *jsonschema.Schema
	contentS    *jsonschema.Schema
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{"extraction.json", "content.json"} {
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("failed to read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("failed to load schema %s: %w", name, err)
				return
			}
		}
		if extractionS, schemaErr = compiler.Compile("extraction.json"); schemaErr != nil {
			return
		}
		contentS, schemaErr = compiler.Compile("content.json")
	})
	return schemaErr
}

// validate checks raw JSON against one of the embedded manifest schemas.
func validate(schema func() *jsonschema.Schema, data []byte) error {
	if err := loadSchemas(); err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return schema().Validate(doc)
}

func extractionSchema() *jsonschema.Schema { return extractionS }
func contentSchema() *jsonschema.Schema    { return contentS }
