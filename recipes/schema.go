package recipes

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/recipebox/recipebox/errors"
)

const schemaURL = "https://recipebox.local/recipe.schema.json"

// recipeSchema constrains what may be saved. Only an owner and a title are
// required; everything else the extraction service reads off a photo is
// kept as given.
var recipeSchema = map[string]any{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"$id":      schemaURL,
	"type":     "object",
	"required": []any{"userId", "title"},
	"properties": map[string]any{
		"userId":       map[string]any{"type": "string", "minLength": 1},
		"title":        map[string]any{"type": "string", "pattern": `\S`},
		"description":  map[string]any{"type": "string"},
		"difficulty":   map[string]any{"type": "string"},
		"servings":     map[string]any{"type": "integer", "minimum": 0},
		"prepTime":     map[string]any{"type": "integer", "minimum": 0},
		"cookTime":     map[string]any{"type": "integer", "minimum": 0},
		"ingredients":  map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
		"instructions": map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
	},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(recipeSchema)
		if err != nil {
			compileErr = errors.Wrap(err, "marshal recipe schema")
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(b)); err != nil {
			compileErr = errors.Wrap(err, "add recipe schema")
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = errors.Wrap(compileErr, "compile recipe schema")
		}
	})
	return compiled, compileErr
}

// Validate checks r against the recipe schema. Failures are marked
// errors.ErrValidation.
func Validate(r *Recipe) error {
	s, err := schema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal recipe")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "unmarshal recipe")
	}

	if err := s.Validate(v); err != nil {
		return errors.Mark(errors.Wrap(err, "recipe does not match schema"), errors.ErrValidation)
	}
	return nil
}
