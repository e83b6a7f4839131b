// Package recipes holds the recipe record produced by the image pipeline:
// the shape the extraction service returns, validation before save, cover
// image preparation and the SQLite store.
package recipes

import (
	"math"
	"strings"
	"time"
)

// Extracted is what the extraction service reads off a recipe photo.
// Numbers are floats because the service is model-backed and sometimes
// answers 4.0 where 4 is meant.
type Extracted struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	CookingTimeMinutes float64  `json:"cookingTimeMinutes"`
	Difficulty         string   `json:"difficulty"`
	Ingredients        []string `json:"ingredients"`
	Instructions       []string `json:"instructions"`
	Servings           float64  `json:"servings"`
}

// Recipe is a saved recipe owned by one user.
type Recipe struct {
	ID           int64     `json:"id" yaml:"id"`
	UserID       string    `json:"userId" yaml:"user_id"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description" yaml:"description"`
	ImageData    string    `json:"imageData,omitempty" yaml:"-"`
	CoverType    string    `json:"coverType,omitempty" yaml:"cover_type,omitempty"`
	PrepTime     int       `json:"prepTime" yaml:"prep_time"`
	CookTime     int       `json:"cookTime" yaml:"cook_time"`
	Servings     int       `json:"servings" yaml:"servings"`
	Difficulty   string    `json:"difficulty" yaml:"difficulty"`
	Ingredients  []string  `json:"ingredients" yaml:"ingredients"`
	Instructions []string  `json:"instructions" yaml:"instructions"`
	CreatedAt    time.Time `json:"createdAt" yaml:"created_at"`
}

// FromExtracted builds an unsaved Recipe for userID. Strings are trimmed,
// blank list entries dropped and difficulty lower-cased.
func FromExtracted(userID string, e *Extracted) *Recipe {
	return &Recipe{
		UserID:       userID,
		Title:        strings.TrimSpace(e.Title),
		Description:  strings.TrimSpace(e.Description),
		CookTime:     roundNonNegative(e.CookingTimeMinutes),
		Servings:     roundNonNegative(e.Servings),
		Difficulty:   strings.ToLower(strings.TrimSpace(e.Difficulty)),
		Ingredients:  compact(e.Ingredients),
		Instructions: compact(e.Instructions),
	}
}

func roundNonNegative(f float64) int {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
