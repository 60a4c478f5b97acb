package project

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed *.schema.json
var schemaFS embed.FS

const (
	projectSchemaName  = "project.schema.json"
	assemblySchemaName = "assembly.schema.json"
)

var (
	projectSchema  *jsonschema.Schema
	assemblySchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{assemblySchemaName, projectSchemaName} {
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
		}

		var err error
		if assemblySchema, err = compiler.Compile(assemblySchemaName); err != nil {
			compileErr = fmt.Errorf("compile assembly schema: %w", err)
			return
		}
		if projectSchema, err = compiler.Compile(projectSchemaName); err != nil {
			compileErr = fmt.Errorf("compile project schema: %w", err)
		}
	})
	return compileErr
}

// validate checks a decoded YAML or TOML document against schema. The
// document is round-tripped through JSON so the validator sees JSON types.
func validate(schema func() *jsonschema.Schema, doc any) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	return schema().Validate(v)
}

// ValidateProject validates a decoded project document.
func ValidateProject(doc any) error {
	if err := validate(func() *jsonschema.Schema { return projectSchema }, doc); err != nil {
		return fmt.Errorf("project validation failed: %w", err)
	}
	return nil
}

// ValidateAssemblyConfig validates a decoded assembly configuration document.
func ValidateAssemblyConfig(doc any) error {
	if err := validate(func() *jsonschema.Schema { return assemblySchema }, doc); err != nil {
		return fmt.Errorf("assembly config validation failed: %w", err)
	}
	return nil
}
