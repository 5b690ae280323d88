package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce    sync.Once
	schemaCompErr error
	decisionSpec  *validator.Schema
)

// decisionSchema lazily reflects Decision into a JSON Schema document via
// invopop/jsonschema and compiles it with santhosh-tekuri/jsonschema so
// every advisor response, whatever transport produced it, is validated
// against the same contract before it can influence a vehicle.
func decisionSchema() (*validator.Schema, error) {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{RequiredFromJSONSchemaTags: false, DoNotReference: true}
		doc := reflector.ReflectFromType(reflect.TypeOf(Decision{}))
		doc.Version = ""
		doc.Title = "Advisor Decision"
		doc.Required = []string{"action", "speed", "reason"}

		raw, err := json.Marshal(doc)
		if err != nil {
			schemaCompErr = fmt.Errorf("advisor: marshal decision schema: %w", err)
			return
		}
		compiler := validator.NewCompiler()
		if err := compiler.AddResource("decision.json", bytes.NewReader(raw)); err != nil {
			schemaCompErr = fmt.Errorf("advisor: add decision schema resource: %w", err)
			return
		}
		compiled, err := compiler.Compile("decision.json")
		if err != nil {
			schemaCompErr = fmt.Errorf("advisor: compile decision schema: %w", err)
			return
		}
		decisionSpec = compiled
	})
	return decisionSpec, schemaCompErr
}

// validateDecisionShape checks a raw decoded response against the reflected
// schema (required fields, enum membership, non-negative speed) before the
// dynamic V_MAX bound is applied by the caller.
func validateDecisionShape(v any) error {
	schema, err := decisionSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
