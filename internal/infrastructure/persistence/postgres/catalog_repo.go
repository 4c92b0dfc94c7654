package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// GetActivity implements progression.Catalog.
func (s *ProgressionStore) GetActivity(ctx context.Context, id string) (*progression.Activity, error) {
	var a progression.Activity
	var kind string
	err := s.conn.QueryRow(ctx, `
		SELECT id, kind, COALESCE(world_id, ''), title, coin_reward, xp_reward, bonus_xp, time_limit_seconds
		FROM activities
		WHERE id = $1
	`, id).Scan(&a.ID, &kind, &a.WorldID, &a.Title, &a.CoinReward, &a.XPReward, &a.BonusXP, &a.TimeLimitSeconds)
	if IsNoRows(err) {
		return nil, progression.ErrInvalidActivity
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get activity: %w", err))
	}
	a.Kind = progression.ActivityKind(kind)
	return &a, nil
}

// GetCosmetic implements progression.Catalog.
func (s *ProgressionStore) GetCosmetic(ctx context.Context, id string) (*progression.Cosmetic, error) {
	var c progression.Cosmetic
	var kind string
	err := s.conn.QueryRow(ctx, `
		SELECT id, kind, name, cost, required_level
		FROM cosmetics
		WHERE id = $1
	`, id).Scan(&c.ID, &kind, &c.Name, &c.Cost, &c.RequiredLevel)
	if IsNoRows(err) {
		return nil, progression.ErrInvalidActivity
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get cosmetic: %w", err))
	}
	c.Kind = progression.CosmeticKind(kind)
	return &c, nil
}

// ListBadges implements progression.Catalog.
func (s *ProgressionStore) ListBadges(ctx context.Context) ([]progression.Badge, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, description, icon, condition
		FROM badges
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list badges: %w", err))
	}
	defer rows.Close()

	var out []progression.Badge
	for rows.Next() {
		var b progression.Badge
		var raw []byte
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		if err := json.Unmarshal(raw, &b.Condition); err != nil {
			return nil, fmt.Errorf("badge %s: failed to decode condition: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// WorldLessons implements progression.Catalog.
func (s *ProgressionStore) WorldLessons(ctx context.Context) (map[string][]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT w.id, a.id
		FROM worlds w
		LEFT JOIN activities a ON a.world_id = w.id AND a.kind = 'lesson'
		ORDER BY w.id, a.id
	`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list world lessons: %w", err))
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var worldID string
		var lessonID *string
		if err := rows.Scan(&worldID, &lessonID); err != nil {
			return nil, fmt.Errorf("failed to scan world lesson: %w", err)
		}
		if _, ok := out[worldID]; !ok {
			out[worldID] = []string{}
		}
		if lessonID != nil {
			out[worldID] = append(out[worldID], *lessonID)
		}
	}
	return out, rows.Err()
}

// SeedCatalog implements progression.CatalogSeeder. The whole catalog is
// upserted in one transaction.
func (s *ProgressionStore) SeedCatalog(ctx context.Context, c progression.CatalogContent) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for _, w := range c.Worlds {
			batch.Queue(`
				INSERT INTO worlds (id, name, sort_order) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sort_order = EXCLUDED.sort_order
			`, w.ID, w.Name, w.Order)
		}

		for _, a := range c.Activities {
			batch.Queue(`
				INSERT INTO activities (id, kind, world_id, title, coin_reward, xp_reward, bonus_xp, time_limit_seconds)
				VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					kind = EXCLUDED.kind,
					world_id = EXCLUDED.world_id,
					title = EXCLUDED.title,
					coin_reward = EXCLUDED.coin_reward,
					xp_reward = EXCLUDED.xp_reward,
					bonus_xp = EXCLUDED.bonus_xp,
					time_limit_seconds = EXCLUDED.time_limit_seconds
			`, a.ID, string(a.Kind), a.WorldID, a.Title, a.CoinReward, a.XPReward, a.BonusXP, a.TimeLimitSeconds)
		}

		for i, b := range c.Badges {
			condition, err := json.Marshal(b.Condition)
			if err != nil {
				return fmt.Errorf("badge %s: failed to encode condition: %w", b.ID, err)
			}
			batch.Queue(`
				INSERT INTO badges (id, name, description, icon, condition, sort_order)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					icon = EXCLUDED.icon,
					condition = EXCLUDED.condition,
					sort_order = EXCLUDED.sort_order
			`, b.ID, b.Name, b.Description, b.Icon, condition, i)
		}

		for _, item := range c.Cosmetics {
			batch.Queue(`
				INSERT INTO cosmetics (id, kind, name, cost, required_level)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET
					kind = EXCLUDED.kind,
					name = EXCLUDED.name,
					cost = EXCLUDED.cost,
					required_level = EXCLUDED.required_level
			`, item.ID, string(item.Kind), item.Name, item.Cost, item.RequiredLevel)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to seed catalog statement %d: %w", i, err)
			}
		}
		return nil
	})
	return classify(err)
}
