package plugins

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/hooks"
	"github.com/casualjim/courier/pkg/jsonx"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
	Anonymous:                 true,
}

// PayloadSchema generates the JSON schema of a payload prototype.
// It returns nil for prototypes without a static shape: nil, interfaces and maps of any.
func PayloadSchema(prototype any) *jsonschema.Schema {
	if prototype == nil {
		return nil
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Interface {
		return nil
	}
	return reflector.Reflect(prototype)
}

// SchemaValidation denies sends whose payload does not match the schema
// generated from the catalog's payload types. Event types missing from the
// catalog, or without a static payload shape, pass unchecked.
func SchemaValidation(catalog *events.Catalog) courier.Plugin {
	return func(b *courier.Broker) (func(), error) {
		schemas, err := compileSchemas(catalog)
		if err != nil {
			return nil, err
		}
		return b.UseBeforeSendHook(func(_ context.Context, env events.Envelope) hooks.Decision {
			schema, ok := schemas[env.Type]
			if !ok {
				return hooks.Allow()
			}
			payload, err := jsonx.ToDynamic(env.Data)
			if err != nil {
				return hooks.Deny(fmt.Sprintf("payload of '%s' is not JSON: %v", env.Type, err))
			}
			if err := schema.Validate(payload); err != nil {
				return hooks.Deny(fmt.Sprintf("payload of '%s' does not match its schema: %v", env.Type, err))
			}
			return hooks.Allow()
		}), nil
	}
}

func compileSchemas(catalog *events.Catalog) (map[string]*validator.Schema, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	schemas := make(map[string]*validator.Schema)
	for _, def := range catalog.Descriptors() {
		schema := PayloadSchema(def.Prototype())
		if schema == nil {
			continue
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("encode schema of '%s': %w", def.Name(), err)
		}

		c := validator.NewCompiler()
		c.Draft = validator.Draft2020
		schemaURL := fmt.Sprintf("https://courier.schemas.local/events/%s.schema.json", def.Name())
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema of '%s' load failed: %w", def.Name(), err)
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("schema of '%s' compile failed: %w", def.Name(), err)
		}
		schemas[def.Name()] = compiled
	}
	return schemas, nil
}
