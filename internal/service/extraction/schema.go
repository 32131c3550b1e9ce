package extraction

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const structureSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["jd_role", "min_experience_years", "selected_dimensions"],
  "properties": {
    "jd_role": {"type": "string"},
    "min_experience_years": {"type": ["number", "null"], "minimum": 0},
    "selected_dimensions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["dimension_id", "required_skills", "preferred_skills"],
        "properties": {
          "dimension_id": {"type": "string", "minLength": 1},
          "priority": {"type": "string"},
          "required_skills": {"type": "array", "items": {"type": "string"}},
          "preferred_skills": {"type": "array", "items": {"type": "string"}},
          "evidence_snippets": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

const evidenceSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["evidence_by_dimension"],
  "properties": {
    "evidence_by_dimension": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "required": ["confidence"],
        "properties": {
          "confidence": {"type": "string"},
          "evidence_skills": {"type": "array", "items": {"type": "string"}},
          "evidence_text": {"type": "string"}
        }
      }
    }
  }
}`

var (
	structureJSONSchema = mustSchema(structureSchema)
	evidenceJSONSchema  = mustSchema(evidenceSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return schema
}

// validateJSON checks a document against a schema and reports every
// violation as field: message, wrapped in ErrSchemaInvalid.
func validateJSON(schema *gojsonschema.Schema, doc string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		msgs = append(msgs, field+": "+desc.Description())
	}
	return fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, strings.Join(msgs, "; "))
}
