package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// migrationLockKey serialises concurrent migrators through an advisory lock.
const migrationLockKey int64 = 0x70726f67 // "prog"

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations creates a migrator with custom migrations.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: migrations,
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration in version order, one transaction
// per migration, and returns how many were applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if mig.UpSQL == "" {
			return count, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		var ran bool
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
				return err
			}
			done, err := m.applied(ctx, tx)
			if err != nil {
				return err
			}
			if _, ok := done[mig.Version]; ok {
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insert := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			if _, err := tx.Exec(ctx, insert, mig.Version, mig.Name); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		if ran {
			count++
		}
	}
	return count, nil
}

// Rollback reverts the most recently applied migration. It returns the
// reverted version, or 0 when nothing was applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	var reverted int
	err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return err
		}
		done, err := m.applied(ctx, tx)
		if err != nil {
			return err
		}

		last := 0
		for v := range done {
			if v > last {
				last = v
			}
		}
		if last == 0 {
			return nil
		}

		var mig *Migration
		for i := range m.migrations {
			if m.migrations[i].Version == last {
				mig = &m.migrations[i]
				break
			}
		}
		if mig == nil || mig.DownSQL == "" {
			return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
		}

		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", last, err)
		}
		remove := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		if _, err := tx.Exec(ctx, remove, last); err != nil {
			return err
		}
		reverted = last
		return nil
	})
	return reverted, err
}

// Status lists every known migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	done, err := m.applied(ctx, m.conn)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := done[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_students", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_progress", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Static content: worlds, lessons and challenges, badges, shop entries.

CREATE TABLE IF NOT EXISTS worlds (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    kind VARCHAR(20) NOT NULL,
    world_id TEXT REFERENCES worlds(id),
    title TEXT NOT NULL DEFAULT '',
    coin_reward BIGINT NOT NULL DEFAULT 0,
    xp_reward BIGINT NOT NULL DEFAULT 0,
    bonus_xp BIGINT NOT NULL DEFAULT 0,
    time_limit_seconds INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_activity_kind CHECK (kind IN ('lesson', 'challenge')),
    CONSTRAINT valid_rewards CHECK (coin_reward >= 0 AND xp_reward >= 0 AND bonus_xp >= 0),
    CONSTRAINT valid_time_limit CHECK (time_limit_seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_activities_world ON activities(world_id) WHERE kind = 'lesson';

CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    condition JSONB NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cosmetics (
    id TEXT PRIMARY KEY,
    kind VARCHAR(20) NOT NULL,
    name TEXT NOT NULL,
    cost BIGINT NOT NULL DEFAULT 0,
    required_level INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_cosmetic_kind CHECK (kind IN ('avatar', 'theme', 'item')),
    CONSTRAINT valid_cost CHECK (cost >= 0),
    CONSTRAINT valid_required_level CHECK (required_level >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS cosmetics;
DROP TABLE IF EXISTS badges;
DROP TABLE IF EXISTS activities;
DROP TABLE IF EXISTS worlds;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STUDENTS & LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    coins BIGINT NOT NULL DEFAULT 0,
    lifetime_coins BIGINT NOT NULL DEFAULT 0,
    xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    selected_avatar_id TEXT,
    selected_theme_id TEXT,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_coins CHECK (coins >= 0),
    CONSTRAINT valid_lifetime_coins CHECK (lifetime_coins >= 0),
    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_students_xp ON students(xp DESC, id);
CREATE INDEX IF NOT EXISTS idx_students_lifetime_coins ON students(lifetime_coins DESC, id);
CREATE INDEX IF NOT EXISTS idx_students_current_streak ON students(current_streak DESC, id);

-- Append-only coin movements
CREATE TABLE IF NOT EXISTS ledger_entries (
    id UUID PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    type VARCHAR(10) NOT NULL,
    source VARCHAR(20) NOT NULL,
    reference_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_amount CHECK (amount > 0),
    CONSTRAINT valid_entry_type CHECK (type IN ('earn', 'spend')),
    CONSTRAINT valid_entry_source CHECK (source IN ('lesson', 'challenge', 'level_up', 'hint', 'purchase'))
);

CREATE INDEX IF NOT EXISTS idx_ledger_student_date ON ledger_entries(student_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS ledger_entries;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- One completion per (student, activity); the primary key is the
-- double-reward guard.
CREATE TABLE IF NOT EXISTS completions (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    activity_id TEXT NOT NULL REFERENCES activities(id),
    activity_kind VARCHAR(20) NOT NULL,
    world_id TEXT,
    completed BOOLEAN NOT NULL DEFAULT TRUE,
    score INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 1,
    coins_earned BIGINT NOT NULL DEFAULT 0,
    xp_earned BIGINT NOT NULL DEFAULT 0,
    time_spent_seconds INTEGER NOT NULL DEFAULT 0,
    earned_bonus BOOLEAN NOT NULL DEFAULT FALSE,
    hints_used INTEGER NOT NULL DEFAULT 0,
    leveled_up BOOLEAN NOT NULL DEFAULT FALSE,
    new_level INTEGER NOT NULL DEFAULT 1,
    streak_after INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, activity_id)
);

CREATE INDEX IF NOT EXISTS idx_completions_completed_at ON completions(completed_at DESC);

CREATE TABLE IF NOT EXISTS hint_unlocks (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL REFERENCES activities(id),
    hint_level INTEGER NOT NULL,
    cost BIGINT NOT NULL DEFAULT 0,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, lesson_id, hint_level),
    CONSTRAINT valid_hint_level CHECK (hint_level BETWEEN 1 AND 3)
);

CREATE TABLE IF NOT EXISTS student_cosmetics (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    cosmetic_id TEXT NOT NULL REFERENCES cosmetics(id),
    kind VARCHAR(20) NOT NULL,
    price_paid BIGINT NOT NULL DEFAULT 0,
    purchased_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, cosmetic_id)
);

CREATE TABLE IF NOT EXISTS student_badges (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    badge_id TEXT NOT NULL REFERENCES badges(id),
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, badge_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS student_badges;
DROP TABLE IF EXISTS student_cosmetics;
DROP TABLE IF EXISTS hint_unlocks;
DROP TABLE IF EXISTS completions;
`
