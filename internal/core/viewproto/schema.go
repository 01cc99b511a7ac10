package viewproto

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/view.schema.json
var viewSchemaJSON []byte

//go:embed schema/update.schema.json
var updateSchemaJSON []byte

const (
	viewSchemaURL   = "https://cxr.local/schemas/view.schema.json"
	updateSchemaURL = "https://cxr.local/schemas/update.schema.json"
)

var (
	schemaOnce   sync.Once
	viewSchema   *jsonschema.Schema
	updateSchema *jsonschema.Schema
	schemaErr    error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(viewSchemaURL, bytes.NewReader(viewSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("viewproto: load view schema: %w", err)
			return
		}
		if err := c.AddResource(updateSchemaURL, bytes.NewReader(updateSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("viewproto: load update schema: %w", err)
			return
		}
		if viewSchema, schemaErr = c.Compile(viewSchemaURL); schemaErr != nil {
			return
		}
		updateSchema, schemaErr = c.Compile(updateSchemaURL)
	})
	return schemaErr
}

// CheckDocument validates serialized view-tree text against the wire schema.
func CheckDocument(doc []byte) error {
	return check(doc, func() *jsonschema.Schema { return viewSchema })
}

// CheckUpdate validates serialized update-batch text against the wire schema.
func CheckUpdate(doc []byte) error {
	return check(doc, func() *jsonschema.Schema { return updateSchema })
}

func check(doc []byte, pick func() *jsonschema.Schema) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("viewproto: invalid JSON: %w", err)
	}
	if err := pick().Validate(v); err != nil {
		return fmt.Errorf("viewproto: wire schema: %w", err)
	}
	return nil
}
