package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	mcperrors "github.com/pgexec/postgres-mcp/pkg/errors"
	"github.com/pgexec/postgres-mcp/pkg/protocol"
)

// ParamType is a declared schema type for a tool parameter. Anything outside
// these three is rejected at registry construction.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        ParamType
	Required    bool
	Description string
}

// Descriptor is the static description of a tool: name, human-readable
// description, and parameter schema. Constructed once at startup, read-only
// thereafter.
type Descriptor struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

// QueryToolName is the name of the single tool this server exposes. It is
// stable across the session; callers may cache it after discovery.
const QueryToolName = "query_database"

// QueryTool returns the descriptor for the SQL execution tool.
func QueryTool() Descriptor {
	return Descriptor{
		Name:        QueryToolName,
		Description: "Execute a SQL query on the PostgreSQL database and return results",
		Params: map[string]ParamSpec{
			"sql": {
				Type:        ParamString,
				Required:    true,
				Description: "The SQL query to execute",
			},
			"explain": {
				Type:        ParamBoolean,
				Description: "Run EXPLAIN ANALYZE instead of returning rows (SELECT only)",
			},
		},
	}
}

// Registry holds the static tool descriptors and answers discovery queries.
// No mutation path is exposed after construction.
type Registry struct {
	descriptors map[string]Descriptor
	wire        []protocol.Tool
}

// NewRegistry builds a registry from descriptors. The wire representation is
// rendered once so repeated discovery calls return byte-identical lists.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]Descriptor, len(descriptors)),
		wire:        make([]protocol.Tool, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("tool descriptor missing name")
		}
		if _, exists := r.descriptors[d.Name]; exists {
			return nil, fmt.Errorf("duplicate tool descriptor %q", d.Name)
		}
		schema, err := buildInputSchema(d.Params)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", d.Name, err)
		}
		r.descriptors[d.Name] = d
		r.wire = append(r.wire, protocol.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}

	return r, nil
}

// List returns the wire form of every registered tool. Idempotent and
// side-effect-free.
func (r *Registry) List() []protocol.Tool {
	return r.wire
}

// Lookup resolves a tool name to its descriptor.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// buildInputSchema renders the parameter specs as a JSON Schema object.
// encoding/json sorts map keys, so the output is deterministic.
func buildInputSchema(params map[string]ParamSpec) (json.RawMessage, error) {
	properties := make(map[string]interface{}, len(params))
	var required []string

	for name, spec := range params {
		switch spec.Type {
		case ParamString, ParamNumber, ParamBoolean:
		default:
			return nil, fmt.Errorf("parameter %q has unsupported type %q", name, spec.Type)
		}
		prop := map[string]interface{}{"type": string(spec.Type)}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		properties[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return json.Marshal(schema)
}

// Args holds validated tool arguments keyed by parameter name. Values are
// string, float64, or bool per the declared schema type.
type Args map[string]interface{}

// String returns the named argument as a string, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Number returns the named argument as a float64, or 0 when absent.
func (a Args) Number(name string) float64 {
	n, _ := a[name].(float64)
	return n
}

// Bool returns the named argument as a bool, or false when absent.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

var jsonNull = []byte("null")

// ValidateArguments checks raw call arguments against the descriptor's
// schema: required parameters present, value types matching, nothing
// undeclared. Values are decoded into their declared type rather than
// coerced; anything unexpected is rejected.
func (d Descriptor) ValidateArguments(raw map[string]json.RawMessage) (Args, error) {
	// Deterministic order so the first offending field is stable.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, declared := d.Params[name]; !declared {
			return nil, mcperrors.UnexpectedParameter(name)
		}
	}

	declared := make([]string, 0, len(d.Params))
	for name := range d.Params {
		declared = append(declared, name)
	}
	sort.Strings(declared)

	args := make(Args, len(raw))
	for _, name := range declared {
		spec := d.Params[name]
		value, present := raw[name]
		if !present {
			if spec.Required {
				return nil, mcperrors.MissingParameter(name)
			}
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), jsonNull) {
			return nil, mcperrors.InvalidParameter(name, string(spec.Type))
		}

		switch spec.Type {
		case ParamString:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return nil, mcperrors.InvalidParameter(name, "string")
			}
			args[name] = s
		case ParamNumber:
			var n float64
			if err := json.Unmarshal(value, &n); err != nil {
				return nil, mcperrors.InvalidParameter(name, "number")
			}
			args[name] = n
		case ParamBoolean:
			var b bool
			if err := json.Unmarshal(value, &b); err != nil {
				return nil, mcperrors.InvalidParameter(name, "boolean")
			}
			args[name] = b
		}
	}

	return args, nil
}
