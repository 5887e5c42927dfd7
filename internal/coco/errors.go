package coco

import (
	"fmt"
	"strings"
)

// ParseError is returned when an uploaded document is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Invalid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError locates the first node of a document that does not conform to
// the schema. Array indices appear in Path as decimal strings.
type SchemaError struct {
	Path    []string
	Message string
}

func (e *SchemaError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("schema error at (root): %s", e.Message)
	}
	return fmt.Sprintf("schema error at %s: %s", strings.Join(e.Path, "."), e.Message)
}
