package domain

import (
	"fmt"
	"strings"
)

// Recipe is the indexed document (immutable value object). The external
// recipe dataset is the system of record; recipes are loaded wholesale at
// startup and never mutated while the service is running.
type Recipe struct {
	id          string
	name        string
	ingredients []string
	tags        []string
	tools       []string
	steps       []string
	method      string
	difficulty  string
	popularity  int
}

// NewRecipe validates and creates a Recipe.
// ID and Name are required; everything else is optional.
func NewRecipe(
	id, name string,
	ingredients, tags, tools, steps []string,
	method, difficulty string,
	popularity int,
) (Recipe, error) {
	if id == "" {
		return Recipe{}, fmt.Errorf("recipe ID is required")
	}
	if strings.TrimSpace(name) == "" {
		return Recipe{}, fmt.Errorf("recipe name is required")
	}
	return Recipe{
		id:          id,
		name:        name,
		ingredients: cloneStrings(ingredients),
		tags:        cloneStrings(tags),
		tools:       cloneStrings(tools),
		steps:       cloneStrings(steps),
		method:      method,
		difficulty:  difficulty,
		popularity:  popularity,
	}, nil
}

// ID returns the stable document identifier.
func (r *Recipe) ID() string { return r.id }

// Name returns the display title (primary lexical field).
func (r *Recipe) Name() string { return r.name }

// Ingredients returns the ingredient names.
func (r *Recipe) Ingredients() []string { return r.ingredients }

// Tags returns the category/cuisine labels.
func (r *Recipe) Tags() []string { return r.tags }

// Tools returns the required cookware.
func (r *Recipe) Tools() []string { return r.tools }

// Steps returns the preparation steps.
func (r *Recipe) Steps() []string { return r.steps }

// Method returns the free-text cooking method.
func (r *Recipe) Method() string { return r.method }

// Difficulty returns the difficulty label.
func (r *Recipe) Difficulty() string { return r.difficulty }

// Popularity returns the popularity counter (0 when absent).
func (r *Recipe) Popularity() int { return r.popularity }

// EmbeddingText concatenates the fields used for vectorization.
// Name, ingredients, tags and method carry the semantic signal; steps are
// too noisy and inflate token usage.
func (r *Recipe) EmbeddingText() string {
	parts := make([]string, 0, 4)
	parts = append(parts, r.name)
	if len(r.ingredients) > 0 {
		parts = append(parts, strings.Join(r.ingredients, " "))
	}
	if len(r.tags) > 0 {
		parts = append(parts, strings.Join(r.tags, " "))
	}
	if r.method != "" {
		parts = append(parts, r.method)
	}
	return strings.Join(parts, "\n")
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
