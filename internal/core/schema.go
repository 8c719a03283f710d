package core

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"tabala/pkg/domain"
)

// stateSchema describes the persisted shape of each shared-store key.
// Raw payloads are checked against it before the migrator transforms
// them, so a corrupted store aborts migration instead of being rewritten.
const stateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "links": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "url", "collectionId"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "url": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "favicon": {"type": "string"},
          "collectionId": {"type": "string", "minLength": 1},
          "createdAt": {"type": "string"}
        }
      }
    },
    "collections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "order"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "order": {"type": "integer"},
          "color": {"type": "string"},
          "workspaceId": {"type": "string"},
          "isDefault": {"type": "boolean"},
          "createdAt": {"type": "string"}
        }
      }
    },
    "workspaces": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "order"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "color": {"type": "string"},
          "order": {"type": "integer"},
          "description": {"type": "string"},
          "createdAt": {"type": "string"},
          "isDefault": {"type": "boolean"}
        }
      }
    }
  }
}`

const stateSchemaURL = "tabala://schema/state.json"

// stateValidator validates raw store payloads per key.
type stateValidator struct {
	schemas map[string]*jsonschema.Schema
}

func newStateValidator() (*stateValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(stateSchema)))
	if err != nil {
		return nil, fmt.Errorf("decode state schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(stateSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("register state schema: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, 3)
	for _, key := range []string{domain.KeyLinks, domain.KeyCollections, domain.KeyWorkspaces} {
		sch, err := compiler.Compile(stateSchemaURL + "#/$defs/" + key)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", key, err)
		}
		schemas[key] = sch
	}
	return &stateValidator{schemas: schemas}, nil
}

// validate checks raw against the schema for key. Empty payloads pass;
// there is nothing to protect yet.
func (v *stateValidator) validate(key string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	sch, ok := v.schemas[key]
	if !ok {
		return nil
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &domain.PersistenceError{Op: "decode", Key: key, Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return &domain.PersistenceError{Op: "validate", Key: key, Err: err}
	}
	return nil
}
