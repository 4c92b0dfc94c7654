package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION STORE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionStore implements progression.Store for PostgreSQL.
type ProgressionStore struct {
	conn *Connection
}

var (
	_ progression.Store         = (*ProgressionStore)(nil)
	_ progression.CatalogSeeder = (*ProgressionStore)(nil)
)

// NewProgressionStore creates a new ProgressionStore.
func NewProgressionStore(conn *Connection) *ProgressionStore {
	return &ProgressionStore{conn: conn}
}

// WithTx implements progression.Store. Serialization failures and deadlocks
// surface as shared.ErrConcurrentModification, lost connections as
// shared.ErrServiceUnavailable; both are retryable.
func (s *ProgressionStore) WithTx(ctx context.Context, fn func(tx progression.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return classify(err)
}

// Ping implements progression.Store.
func (s *ProgressionStore) Ping(ctx context.Context) error {
	return classify(s.conn.Ping(ctx))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case IsSerializationFailure(err):
		return fmt.Errorf("postgres: %w: %v", shared.ErrConcurrentModification, err)
	case IsConnectionError(err):
		return fmt.Errorf("postgres: %w: %v", shared.ErrServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("postgres: %w: %v", shared.ErrTimeout, err)
	default:
		return err
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction operations
// ──────────────────────────────────────────────────────────────────────────────

type pgTx struct {
	tx pgx.Tx
}

const studentColumns = `
	id, display_name, coins, lifetime_coins, xp, level,
	current_streak, longest_streak, last_activity_date,
	COALESCE(selected_avatar_id, ''), COALESCE(selected_theme_id, ''),
	version, created_at, updated_at
`

func scanStudent(row pgx.Row) (*progression.Student, error) {
	var s progression.Student
	err := row.Scan(
		&s.ID,
		&s.DisplayName,
		&s.Coins,
		&s.LifetimeCoins,
		&s.XP,
		&s.Level,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastActivityDate,
		&s.SelectedAvatarID,
		&s.SelectedThemeID,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, progression.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}
	return &s, nil
}

func (t *pgTx) CreateStudent(ctx context.Context, s *progression.Student) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO students (id, display_name, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.DisplayName, s.Level, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return progression.ErrStudentExists
	}
	return nil
}

func (t *pgTx) LockStudent(ctx context.Context, id string) (*progression.Student, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
	return scanStudent(row)
}

func (t *pgTx) SaveStudent(ctx context.Context, s *progression.Student) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE students SET
			display_name = $2,
			coins = $3,
			lifetime_coins = $4,
			xp = $5,
			level = $6,
			current_streak = $7,
			longest_streak = $8,
			last_activity_date = $9,
			selected_avatar_id = NULLIF($10, ''),
			selected_theme_id = NULLIF($11, ''),
			updated_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $13
	`,
		s.ID,
		s.DisplayName,
		s.Coins,
		s.LifetimeCoins,
		s.XP,
		s.Level,
		s.CurrentStreak,
		s.LongestStreak,
		s.LastActivityDate,
		s.SelectedAvatarID,
		s.SelectedThemeID,
		s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		if IsCheckViolation(err) {
			return progression.ErrCorruptState.Wrap(err)
		}
		return fmt.Errorf("failed to save student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save student %s: %w", s.ID, shared.ErrConcurrentModification)
	}
	s.Version++
	return nil
}

func (t *pgTx) SpendCoins(ctx context.Context, studentID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, progression.ErrNegativeDelta
	}

	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE students SET coins = coins - $2
		WHERE id = $1 AND coins >= $2
		RETURNING coins
	`, studentID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("failed to spend coins: %w", err)
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check student: %w", err)
	}
	if !exists {
		return 0, progression.ErrStudentNotFound
	}
	return 0, progression.ErrInsufficientFunds
}

const completionColumns = `
	student_id, activity_id, activity_kind, COALESCE(world_id, ''), completed,
	score, attempts, coins_earned, xp_earned, time_spent_seconds, earned_bonus,
	hints_used, leveled_up, new_level, streak_after, completed_at
`

func scanCompletion(row pgx.Row) (progression.Completion, error) {
	var c progression.Completion
	var kind string
	err := row.Scan(
		&c.StudentID,
		&c.ActivityID,
		&kind,
		&c.WorldID,
		&c.Completed,
		&c.Score,
		&c.Attempts,
		&c.CoinsEarned,
		&c.XPEarned,
		&c.TimeSpentSeconds,
		&c.EarnedBonus,
		&c.HintsUsed,
		&c.LeveledUp,
		&c.NewLevel,
		&c.StreakAfter,
		&c.CompletedAt,
	)
	c.ActivityKind = progression.ActivityKind(kind)
	return c, err
}

func (t *pgTx) GetCompletion(ctx context.Context, studentID, activityID string) (*progression.Completion, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+completionColumns+`
		FROM completions
		WHERE student_id = $1 AND activity_id = $2
	`, studentID, activityID)

	c, err := scanCompletion(row)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return &c, nil
}

func (t *pgTx) InsertCompletion(ctx context.Context, c progression.Completion) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO completions (
			student_id, activity_id, activity_kind, world_id, completed,
			score, attempts, coins_earned, xp_earned, time_spent_seconds, earned_bonus,
			hints_used, leveled_up, new_level, streak_after, completed_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (student_id, activity_id) DO NOTHING
	`,
		c.StudentID,
		c.ActivityID,
		string(c.ActivityKind),
		c.WorldID,
		c.Completed,
		c.Score,
		c.Attempts,
		c.CoinsEarned,
		c.XPEarned,
		c.TimeSpentSeconds,
		c.EarnedBonus,
		c.HintsUsed,
		c.LeveledUp,
		c.NewLevel,
		c.StreakAfter,
		c.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) HighestHintLevel(ctx context.Context, studentID, lessonID string) (int, error) {
	var highest int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(hint_level), 0)
		FROM hint_unlocks
		WHERE student_id = $1 AND lesson_id = $2
	`, studentID, lessonID).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to get highest hint level: %w", err)
	}
	return highest, nil
}

func (t *pgTx) InsertHintUnlock(ctx context.Context, h progression.HintUnlock) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO hint_unlocks (student_id, lesson_id, hint_level, cost, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, lesson_id, hint_level) DO NOTHING
	`, h.StudentID, h.LessonID, h.Level, h.Cost, h.UnlockedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert hint unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) OwnsCosmetic(ctx context.Context, studentID, cosmeticID string) (bool, error) {
	var owned bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM student_cosmetics WHERE student_id = $1 AND cosmetic_id = $2)
	`, studentID, cosmeticID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return owned, nil
}

func (t *pgTx) InsertOwnership(ctx context.Context, o progression.Ownership) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO student_cosmetics (student_id, cosmetic_id, kind, price_paid, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, cosmetic_id) DO NOTHING
	`, o.StudentID, o.CosmeticID, string(o.Kind), o.PricePaid, o.PurchasedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert ownership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AppendLedger(ctx context.Context, entries ...progression.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO ledger_entries (id, student_id, amount, type, source, reference_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, e.StudentID, e.Amount, string(e.Type), string(e.Source), e.ReferenceID, e.CreatedAt)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Badges
// ──────────────────────────────────────────────────────────────────────────────

// ListStudentBadges implements progression.BadgeRepository.
func (s *ProgressionStore) ListStudentBadges(ctx context.Context, studentID string) ([]progression.StudentBadge, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT student_id, badge_id, unlocked_at
		FROM student_badges
		WHERE student_id = $1
		ORDER BY unlocked_at, badge_id
	`, studentID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list student badges: %w", err))
	}
	defer rows.Close()

	var out []progression.StudentBadge
	for rows.Next() {
		var sb progression.StudentBadge
		if err := rows.Scan(&sb.StudentID, &sb.BadgeID, &sb.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan student badge: %w", err)
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}

// InsertStudentBadge implements progression.BadgeRepository.
func (s *ProgressionStore) InsertStudentBadge(ctx context.Context, sb progression.StudentBadge) (bool, error) {
	unlockedAt := sb.UnlockedAt
	if unlockedAt.IsZero() {
		unlockedAt = time.Now().UTC()
	}
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO student_badges (student_id, badge_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, badge_id) DO NOTHING
	`, sb.StudentID, sb.BadgeID, unlockedAt)
	if err != nil {
		return false, classify(fmt.Errorf("failed to insert student badge: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}
