package policy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Template is a reusable, named bundle of providers and their permissions.
type Template struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Providers   []Provider `json:"providers" yaml:"providers"`
}

// Validate checks the structural requirements of a template.
// Uniqueness of the ID is the catalog's job, not the template's.
func (t *Template) Validate() error {
	if t.ID == "" {
		return &TemplateError{Field: "id", Message: "template id cannot be empty"}
	}
	for i, p := range t.Providers {
		if p.Name == "" {
			return &TemplateError{
				TemplateID: t.ID,
				Field:      fmt.Sprintf("providers[%d].name", i),
				Message:    "provider name cannot be empty",
			}
		}
	}
	return nil
}

// Provider returns the provider with the given name.
func (t *Template) Provider(name string) (Provider, bool) {
	for _, p := range t.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}

// Provider names a permission-granting entity.
type Provider struct {
	Name        string       `json:"name" yaml:"name"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// Permission is an opaque permission entry. Its structure belongs to whatever
// consumes it; here it is carried as a JSON document and round-trips through
// both JSON and YAML unchanged.
type Permission struct {
	raw json.RawMessage
}

// NewPermission encodes v as a permission entry.
func NewPermission(v any) (Permission, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Permission{}, fmt.Errorf("failed to encode permission: %w", err)
	}
	return Permission{raw: b}, nil
}

// Raw returns a copy of the encoded permission.
func (p Permission) Raw() json.RawMessage {
	if p.raw == nil {
		return json.RawMessage("null")
	}
	return bytes.Clone(p.raw)
}

// Decode unmarshals the permission into v.
func (p Permission) Decode(v any) error {
	return json.Unmarshal(p.Raw(), v)
}

// String returns the compact JSON form.
func (p Permission) String() string {
	return string(p.Raw())
}

// MarshalJSON implements json.Marshaler.
func (p Permission) MarshalJSON() ([]byte, error) {
	return p.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Permission) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid permission document")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	p.raw = buf.Bytes()
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Permission) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	b, err := json.Marshal(NormalizeYAML(v))
	if err != nil {
		return fmt.Errorf("line %d: permission is not representable as JSON: %w", node.Line, err)
	}
	p.raw = b
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Permission) MarshalYAML() (any, error) {
	var v any
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// NormalizeYAML converts map[any]any produced by YAML mappings with
// non-string keys into map[string]any so encoding/json can handle it.
func NormalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = NormalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = NormalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = NormalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
