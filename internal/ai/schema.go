package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// ErrInvalidOutput is returned when model output does not match its schema
var ErrInvalidOutput = errors.New("model output does not match schema")

// JSON schemas sent to the model as structured-output formats and used
// again to validate what comes back. They stay within the keywords strict
// structured output accepts; blank strings are dropped after decoding.
const (
	foodsSchemaJSON = `{
  "type": "object",
  "properties": {
    "foods": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["foods"],
  "additionalProperties": false
}`

	symptomsSchemaJSON = `{
  "type": "object",
  "properties": {
    "symptoms": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["symptoms"],
  "additionalProperties": false
}`

	servingsSchemaJSON = `{
  "type": "object",
  "properties": {
    "servings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "foodGroup": {"type": "string"},
          "servings": {"type": "number"}
        },
        "required": ["foodGroup", "servings"],
        "additionalProperties": false
      }
    }
  },
  "required": ["servings"],
  "additionalProperties": false
}`
)

// Schema is a compiled JSON schema with its source text
type Schema struct {
	name     string
	source   json.RawMessage
	compiled *jsonschema.Schema
}

var (
	foodsSchema    = mustCompile("listOfFoods", foodsSchemaJSON)
	symptomsSchema = mustCompile("symptoms", symptomsSchemaJSON)
	servingsSchema = mustCompile("servings", servingsSchemaJSON)
)

func mustCompile(name, source string) *Schema {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile([]byte(source))
	if err != nil {
		panic(fmt.Sprintf("invalid %s schema: %v", name, err))
	}
	return &Schema{name: name, source: json.RawMessage(source), compiled: compiled}
}

// Decode validates raw model output against the schema and only then
// unmarshals it into out. Nothing is partially decoded on failure.
func (s *Schema) Decode(raw string, out interface{}) error {
	raw = stripCodeFence(raw)
	if raw == "" {
		return fmt.Errorf("%s: empty output: %w", s.name, ErrInvalidOutput)
	}

	var instance interface{}
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return fmt.Errorf("%s: output is not JSON: %v: %w", s.name, err, ErrInvalidOutput)
	}

	result := s.compiled.Validate(instance)
	if !result.IsValid() {
		var messages []string
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(messages)
		return fmt.Errorf("%s: %s: %w", s.name, strings.Join(messages, "; "), ErrInvalidOutput)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%s: %v: %w", s.name, err, ErrInvalidOutput)
	}
	return nil
}

// stripCodeFence removes a ```json fence some models wrap output in
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimPrefix(raw, "json")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
