// Package recipes loads the static recipe dataset, the system of record
// both search indices are derived from.
package recipes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aicook/recipesearch/internal/domain"
)

type recipeJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Stuff      []string        `json:"stuff"` // dataset field name for ingredients
	Tools      []string        `json:"tools"`
	Tags       []string        `json:"tags"`
	Difficulty string          `json:"difficulty"`
	Methods    *string         `json:"methods"`
	Steps      json.RawMessage `json:"steps"`
	Popularity int             `json:"popularity"`
}

type stepJSON struct {
	Content string `json:"content"`
}

// Load reads a JSON array of recipes. Entries without a name are skipped;
// entries without an id get their array position as id, matching the
// dataset's import convention.
func Load(path string) ([]domain.Recipe, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read recipe dataset: %w", err)
	}
	return Parse(data)
}

// Parse decodes the dataset from raw JSON.
func Parse(data []byte) ([]domain.Recipe, error) {
	var raw []recipeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse recipe dataset: %w", err)
	}

	out := make([]domain.Recipe, 0, len(raw))
	for i, rj := range raw {
		if rj.Name == "" {
			continue
		}
		id := rj.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		method := ""
		if rj.Methods != nil {
			method = *rj.Methods
		}
		r, err := domain.NewRecipe(
			id, rj.Name,
			rj.Stuff, rj.Tags, rj.Tools, parseSteps(rj.Steps),
			method, rj.Difficulty, rj.Popularity,
		)
		if err != nil {
			return nil, fmt.Errorf("recipe %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// parseSteps accepts both object steps ({"content": ...}) and plain
// strings; the dataset mixes the two across versions.
func parseSteps(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var objs []stepJSON
	if err := json.Unmarshal(raw, &objs); err == nil {
		out := make([]string, 0, len(objs))
		for _, s := range objs {
			if s.Content != "" {
				out = append(out, s.Content)
			}
		}
		return out
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		return strs
	}
	return nil
}
