package wire

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry holds an optional compiled JSON Schema per fact type,
// following core/pkg/firewall.PolicyFirewall's tool->schema map. A fact
// type with no registered schema is vacuously valid; this registry lets
// a deployment opt individual types into stricter `fields` validation on
// deserialization without the core specification subsystem itself taking
// a JSON Schema dependency.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty SchemaRegistry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates it
// with factType, replacing any prior schema for that type.
func (r *SchemaRegistry) Register(factType, schemaJSON string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	resourceID := fmt.Sprintf("sigilgraph://fact-types/%s.schema.json", factType)
	if err := c.AddResource(resourceID, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("wire: loading schema for %s: %w", factType, err)
	}
	compiled, err := c.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("wire: compiling schema for %s: %w", factType, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[factType] = compiled
	return nil
}

// Validate checks fields against factType's registered schema, if any.
// It returns nil when factType has no schema registered.
func (r *SchemaRegistry) Validate(factType string, fields map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[factType]
	r.mu.RUnlock()
	if !ok || schema == nil {
		return nil
	}
	if err := schema.Validate(fields); err != nil {
		return fmt.Errorf("wire: %s fields failed schema validation: %w", factType, err)
	}
	return nil
}
