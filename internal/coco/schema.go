package coco

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var defaultSchema []byte

// pathSep never appears in COCO keys, so joining a context with it and
// splitting again recovers the individual path elements.
const pathSep = "\x1f"

const rootContext = "(root)"

// Validator checks parsed documents against a fixed JSON Schema. It is
// immutable once constructed and safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON []byte) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("error compiling coco schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// LoadValidator reads the schema at path, or uses the built in COCO schema
// when path is empty.
func LoadValidator(path string) (*Validator, error) {
	if path == "" {
		return NewValidator(defaultSchema)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema file %s: %w", path, err)
	}
	return NewValidator(data)
}

// Parse decodes raw JSON into a generic value suitable for Validate.
func Parse(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	return doc, nil
}

// Validate returns nil if doc conforms to the schema, or a *SchemaError
// describing the first offending node.
func (v *Validator) Validate(doc any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ParseError{Err: err}
	}

	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	if len(errs) == 0 {
		return &SchemaError{Message: "document does not match schema"}
	}

	first := errs[0]
	return &SchemaError{
		Path:    contextPath(first.Context()),
		Message: first.Description(),
	}
}

func contextPath(ctx *gojsonschema.JsonContext) []string {
	if ctx == nil {
		return nil
	}

	parts := strings.Split(ctx.String(pathSep), pathSep)
	if len(parts) > 0 && parts[0] == rootContext {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return nil
	}
	return parts
}
