// Package catalog loads the static progression content (worlds, activities,
// badges, cosmetics) from a JSON document. Documents are validated against an
// embedded JSON schema and then checked for dangling references before they
// are handed to a progression.CatalogSeeder.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed default_catalog.json
var defaultCatalogJSON []byte

const schemaURL = "schema://progression-catalog.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// ErrInvalidCatalog is returned for documents that fail validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

type document struct {
	Worlds     []worldDoc    `json:"worlds"`
	Activities []activityDoc `json:"activities"`
	Badges     []badgeDoc    `json:"badges"`
	Cosmetics  []cosmeticDoc `json:"cosmetics"`
}

type worldDoc struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type activityDoc struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	WorldID          string `json:"world_id"`
	Title            string `json:"title"`
	CoinReward       int64  `json:"coin_reward"`
	XPReward         int64  `json:"xp_reward"`
	BonusXP          int64  `json:"bonus_xp"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

type badgeDoc struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Icon        string                `json:"icon"`
	Condition   progression.Condition `json:"condition"`
}

type cosmeticDoc struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	Cost          int64  `json:"cost"`
	RequiredLevel int    `json:"required_level"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Default returns the catalog shipped with the binary.
func Default() (progression.CatalogContent, error) {
	return Parse(defaultCatalogJSON)
}

// Load reads and parses a catalog file. An empty path loads the default.
func Load(path string) (progression.CatalogContent, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return progression.CatalogContent{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return progression.CatalogContent{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse validates a catalog document and converts it to domain content.
func Parse(data []byte) (progression.CatalogContent, error) {
	if err := Validate(data); err != nil {
		return progression.CatalogContent{}, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return progression.CatalogContent{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	content := doc.toContent()
	if err := CheckReferences(content); err != nil {
		return progression.CatalogContent{}, err
	}
	return content, nil
}

// Validate checks a raw document against the catalog schema.
func Validate(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}

	var parsed any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidCatalog, err)
	}

	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var def any
		if err := json.Unmarshal(schemaJSON, &def); err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

func (d document) toContent() progression.CatalogContent {
	c := progression.CatalogContent{
		Worlds:     make([]progression.World, 0, len(d.Worlds)),
		Activities: make([]progression.Activity, 0, len(d.Activities)),
		Badges:     make([]progression.Badge, 0, len(d.Badges)),
		Cosmetics:  make([]progression.Cosmetic, 0, len(d.Cosmetics)),
	}
	for _, w := range d.Worlds {
		c.Worlds = append(c.Worlds, progression.World{ID: w.ID, Name: w.Name, Order: w.Order})
	}
	for _, a := range d.Activities {
		c.Activities = append(c.Activities, progression.Activity{
			ID:               a.ID,
			Kind:             progression.ActivityKind(a.Kind),
			WorldID:          a.WorldID,
			Title:            a.Title,
			CoinReward:       a.CoinReward,
			XPReward:         a.XPReward,
			BonusXP:          a.BonusXP,
			TimeLimitSeconds: a.TimeLimitSeconds,
		})
	}
	for _, b := range d.Badges {
		c.Badges = append(c.Badges, progression.Badge{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Icon:        b.Icon,
			Condition:   b.Condition,
		})
	}
	for _, item := range d.Cosmetics {
		c.Cosmetics = append(c.Cosmetics, progression.Cosmetic{
			ID:            item.ID,
			Kind:          progression.CosmeticKind(item.Kind),
			Name:          item.Name,
			Cost:          item.Cost,
			RequiredLevel: item.RequiredLevel,
		})
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// CheckReferences reports duplicate ids and references to undeclared worlds.
// All problems are returned joined.
func CheckReferences(c progression.CatalogContent) error {
	var errs []error

	worlds := make(map[string]bool, len(c.Worlds))
	for _, w := range c.Worlds {
		if worlds[w.ID] {
			errs = append(errs, fmt.Errorf("duplicate world %q", w.ID))
		}
		worlds[w.ID] = true
	}

	// Activities and cosmetics are addressed through the same purchase and
	// completion paths, so their ids share a namespace.
	ids := make(map[string]string)
	for _, a := range c.Activities {
		if prev, ok := ids[a.ID]; ok {
			errs = append(errs, fmt.Errorf("duplicate id %q (%s and activity)", a.ID, prev))
		}
		ids[a.ID] = "activity"
		if a.WorldID != "" && !worlds[a.WorldID] {
			errs = append(errs, fmt.Errorf("activity %q: unknown world %q", a.ID, a.WorldID))
		}
	}
	for _, item := range c.Cosmetics {
		if prev, ok := ids[item.ID]; ok {
			errs = append(errs, fmt.Errorf("duplicate id %q (%s and cosmetic)", item.ID, prev))
		}
		ids[item.ID] = "cosmetic"
	}

	badges := make(map[string]bool, len(c.Badges))
	for _, b := range c.Badges {
		if badges[b.ID] {
			errs = append(errs, fmt.Errorf("duplicate badge %q", b.ID))
		}
		badges[b.ID] = true
		if b.Condition.Type == progression.ConditionWorldCompleted && !worlds[b.Condition.WorldID] {
			errs = append(errs, fmt.Errorf("badge %q: unknown world %q", b.ID, b.Condition.WorldID))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
}
