package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/deckgen/deckgen/internal/toolerr"
)

// Handler is a registered tool method. It receives the raw params object and
// returns a JSON-marshalable result, or a *toolerr.Error describing the
// failure (spec.md §9: "result type Ok(T) | Err(ErrorKind, message)").
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// toolEntry pairs a handler with its compiled params schema. Schema is nil
// when a method declares no params validation.
type toolEntry struct {
	handler Handler
	schema  *jsonschema.Schema
}

// Registry is the name→handler table (C1). Register calls are expected at
// startup, before Serve begins reading; Registry itself is read-only once
// serving starts and is safe for concurrent dispatch.
type Registry struct {
	methods map[string]toolEntry
	schemaN atomic.Int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: map[string]toolEntry{}}
}

// Register adds handler under name with no params schema.
func (r *Registry) Register(name string, handler Handler) {
	r.methods[name] = toolEntry{handler: handler}
}

// RegisterWithSchema adds handler under name, rejecting params that don't
// satisfy schemaJSON (a JSON Schema document) before handler is invoked.
// Unknown parameters are rejected by the tool's schema when the schema sets
// "additionalProperties": false (spec.md §4.1 "forbid-extra").
func (r *Registry) RegisterWithSchema(name string, schemaJSON string, handler Handler) error {
	compiler := jsonschema.NewCompiler()
	resourceName := fmt.Sprintf("mem://deckgen/%s-%d.json", name, r.schemaN.Add(1))
	if err := compiler.AddResource(resourceName, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("jsonrpc: compile schema for %q: %w", name, err)
	}
	sch, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("jsonrpc: compile schema for %q: %w", name, err)
	}
	r.methods[name] = toolEntry{handler: handler, schema: sch}
	return nil
}

// Lookup returns the handler for method and reports whether it is registered.
func (r *Registry) Lookup(method string) (toolEntry, bool) {
	e, ok := r.methods[method]
	return e, ok
}

// ValidateParams runs the method's schema (if any) against params.
func (e toolEntry) ValidateParams(params json.RawMessage) error {
	if e.schema == nil {
		return nil
	}
	var instance any
	if len(params) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(params, &instance); err != nil {
		return toolerr.Wrap(toolerr.BadRequest, "params is not valid JSON", err)
	}
	if err := e.schema.Validate(instance); err != nil {
		return toolerr.Wrap(toolerr.BadRequest, "params failed schema validation", err)
	}
	return nil
}

// dispatchID renders a json.RawMessage request id for error messages.
func dispatchID(id json.RawMessage) string {
	if len(id) == 0 {
		return "null"
	}
	return strconv.Quote(string(id))
}
