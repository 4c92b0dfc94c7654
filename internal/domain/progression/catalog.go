package progression

import (
	"context"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// World groups lessons. A world is completed when all its lessons are.
type World struct {
	ID    string
	Name  string
	Order int
}

// CatalogContent is the full static content loaded into a store.
type CatalogContent struct {
	Worlds     []World
	Activities []Activity
	Badges     []Badge
	Cosmetics  []Cosmetic
}

// WorldLessons maps every declared world to the ids of its lessons, sorted.
// Worlds without lessons map to an empty slice.
func (c CatalogContent) WorldLessons() map[string][]string {
	out := make(map[string][]string, len(c.Worlds))
	for _, w := range c.Worlds {
		out[w.ID] = []string{}
	}
	for _, a := range c.Activities {
		if a.Kind != ActivityLesson || a.WorldID == "" {
			continue
		}
		out[a.WorldID] = append(out[a.WorldID], a.ID)
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

// CatalogSeeder upserts catalog content into a store. Entries missing from
// the content are kept, since student records may still reference them.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, c CatalogContent) error
}
