// Package capability describes what a provider can do: named tools and
// prompt templates with a tagged parameter schema.
package capability

import (
	"maps"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
)

// Kind tells tools and prompt templates apart.
type Kind int

// Kinds.
const (
	Tool Kind = iota
	Prompt
)

func (k Kind) String() string {
	switch k {
	case Tool:
		return "tool"
	case Prompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// ParamType is the primitive JSON kind of a parameter.
type ParamType string

// Parameter types.
const (
	String  ParamType = "string"
	Number  ParamType = "number"
	Integer ParamType = "integer"
	Boolean ParamType = "boolean"
	Object  ParamType = "object"
	Array   ParamType = "array"
)

// Param is one entry of a descriptor's parameter schema.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Descriptor is the immutable description of one capability.
type Descriptor struct {
	Name        string
	Kind        Kind
	Description string
	Params      []Param
}

// Required returns the names of the required parameters, in schema order.
func (d Descriptor) Required() []string {
	var names []string
	for _, p := range d.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Missing returns the required parameters absent from args.
func (d Descriptor) Missing(args map[string]any) []string {
	var missing []string
	for _, name := range d.Required() {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// InputSchema renders the parameter list as a JSON Schema object.
func (d Descriptor) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if required := d.Required(); len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Equal reports whether two descriptors describe the same capability.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Name == o.Name &&
		d.Kind == o.Kind &&
		d.Description == o.Description &&
		slices.Equal(d.Params, o.Params)
}

// FromTool converts an MCP tool. Required parameters come first in their
// declared order, optional ones follow sorted by name.
func FromTool(tool mcp.Tool) Descriptor {
	d := Descriptor{
		Name:        tool.Name,
		Kind:        Tool,
		Description: tool.Description,
	}
	seen := map[string]bool{}
	for _, name := range tool.InputSchema.Required {
		if seen[name] {
			continue
		}
		seen[name] = true
		d.Params = append(d.Params, toolParam(name, tool.InputSchema.Properties[name], true))
	}
	for _, name := range slices.Sorted(maps.Keys(tool.InputSchema.Properties)) {
		if seen[name] {
			continue
		}
		d.Params = append(d.Params, toolParam(name, tool.InputSchema.Properties[name], false))
	}
	return d
}

func toolParam(name string, raw any, required bool) Param {
	p := Param{Name: name, Type: String, Required: required}
	prop, ok := raw.(map[string]any)
	if !ok {
		return p
	}
	if t, ok := prop["type"].(string); ok && validType(ParamType(t)) {
		p.Type = ParamType(t)
	}
	if desc, ok := prop["description"].(string); ok {
		p.Description = desc
	}
	return p
}

func validType(t ParamType) bool {
	switch t {
	case String, Number, Integer, Boolean, Object, Array:
		return true
	default:
		return false
	}
}

// FromPrompt converts an MCP prompt template. Template arguments are always
// strings.
func FromPrompt(prompt mcp.Prompt) Descriptor {
	d := Descriptor{
		Name:        prompt.Name,
		Kind:        Prompt,
		Description: prompt.Description,
	}
	for _, arg := range prompt.Arguments {
		d.Params = append(d.Params, Param{
			Name:        arg.Name,
			Type:        String,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return d
}

// SameSet reports whether a and b hold the same descriptors regardless of
// order.
func SameSet(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string]Descriptor, len(a))
	for _, d := range a {
		byName[d.Name] = d
	}
	for _, d := range b {
		other, ok := byName[d.Name]
		if !ok || !other.Equal(d) {
			return false
		}
		delete(byName, d.Name)
	}
	return len(byName) == 0
}
