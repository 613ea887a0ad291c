package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"mercator-hq/policyhub/pkg/policy"
)

// SchemaID is the $id of the seed document schema.
const SchemaID = "https://policyhub.local/schemas/seed.json"

// Document is the on-disk shape of a seed file.
type Document struct {
	// Policies maps policy ids to their initial state.
	Policies map[string]Entry `json:"policies" yaml:"policies" jsonschema:"title=Policies,description=Initial state keyed by policy id"`
}

// Entry is the seeded state of one policy.
type Entry struct {
	Mode policy.Mode `json:"mode" yaml:"mode" jsonschema:"enum=disabled,enum=readonly,enum=full,description=Activation mode"`
}

var (
	schemaOnce     sync.Once
	schemaDoc      []byte
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

// Schema returns the JSON schema seed files are validated against.
func Schema() ([]byte, error) {
	if err := compileSchema(); err != nil {
		return nil, err
	}
	return bytes.Clone(schemaDoc), nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	if err := compileSchema(); err != nil {
		return nil, err
	}
	return schemaCompiled, nil
}

func compileSchema() error {
	schemaOnce.Do(func() {
		r := &invopop.Reflector{
			Anonymous:      true,
			DoNotReference: true,
		}
		s := r.Reflect(&Document{})
		s.ID = SchemaID
		s.Title = "policyhub seed file"
		if s.Properties != nil {
			if policies, ok := s.Properties.Get("policies"); ok && policies != nil {
				policies.PropertyNames = &invopop.Schema{MinLength: ptr(uint64(1))}
			}
		}

		doc, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			schemaErr = fmt.Errorf("failed to encode seed schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(SchemaID, bytes.NewReader(doc)); err != nil {
			schemaErr = fmt.Errorf("failed to add seed schema: %w", err)
			return
		}
		compiled, err := compiler.Compile(SchemaID)
		if err != nil {
			schemaErr = fmt.Errorf("failed to compile seed schema: %w", err)
			return
		}

		schemaDoc = doc
		schemaCompiled = compiled
	})
	return schemaErr
}

func ptr[T any](v T) *T {
	return &v
}
