package postgres

import (
	"context"
	"fmt"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// GetStudent implements progression.Reader.
func (s *ProgressionStore) GetStudent(ctx context.Context, id string) (*progression.Student, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	st, err := scanStudent(row)
	if err != nil {
		return nil, classify(err)
	}
	return st, nil
}

// ListCompletions implements progression.Reader.
func (s *ProgressionStore) ListCompletions(ctx context.Context, studentID string) ([]progression.Completion, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+completionColumns+`
		FROM completions
		WHERE student_id = $1
		ORDER BY completed_at, activity_id
	`, studentID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list completions: %w", err))
	}
	defer rows.Close()

	var out []progression.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountOwnedCosmetics implements progression.Reader.
func (s *ProgressionStore) CountOwnedCosmetics(ctx context.Context, studentID string) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM student_cosmetics WHERE student_id = $1`, studentID).Scan(&n)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count cosmetics: %w", err))
	}
	return n, nil
}

// ListLedger implements progression.Reader.
func (s *ProgressionStore) ListLedger(ctx context.Context, studentID string, limit int) ([]progression.LedgerEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id::text, student_id, amount, type, source, reference_id, created_at
		FROM ledger_entries
		WHERE student_id = $1
		ORDER BY created_at DESC, id
		LIMIT NULLIF($2, 0)
	`, studentID, max(limit, 0))
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list ledger: %w", err))
	}
	defer rows.Close()

	var out []progression.LedgerEntry
	for rows.Next() {
		var e progression.LedgerEntry
		var typ, source string
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Amount, &typ, &source, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Type = progression.EntryType(typ)
		e.Source = progression.EntrySource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// Leaderboard
// ──────────────────────────────────────────────────────────────────────────────

// metricColumns whitelists the student column behind each all-time metric.
var metricColumns = map[progression.LeaderboardMetric]string{
	progression.MetricXP:     "xp",
	progression.MetricCoins:  "lifetime_coins",
	progression.MetricLevel:  "level",
	progression.MetricStreak: "current_streak",
}

// rankedQuery returns a query producing (rank, student_id, display_name,
// value, level) ordered by value descending with ties broken by id, and the
// arguments it needs.
func rankedQuery(q progression.LeaderboardQuery) (string, []interface{}, error) {
	if q.Since != nil && q.Metric.Windowed() {
		column := "c.xp_earned"
		if q.Metric == progression.MetricCoins {
			column = "c.coins_earned"
		}
		return fmt.Sprintf(`
			SELECT ROW_NUMBER() OVER (ORDER BY SUM(%[1]s) DESC, s.id) AS rank,
				   s.id AS student_id, s.display_name, SUM(%[1]s)::BIGINT AS value, s.level
			FROM completions c
			JOIN students s ON s.id = c.student_id
			WHERE c.completed_at >= $1
			GROUP BY s.id
		`, column), []interface{}{*q.Since}, nil
	}

	column, ok := metricColumns[q.Metric]
	if !ok {
		return "", nil, fmt.Errorf("unknown leaderboard metric %q", q.Metric)
	}
	return fmt.Sprintf(`
		SELECT ROW_NUMBER() OVER (ORDER BY %[1]s DESC, id) AS rank,
			   id AS student_id, display_name, %[1]s::BIGINT AS value, level
		FROM students
	`, column), nil, nil
}

// Leaderboard implements progression.Reader.
func (s *ProgressionStore) Leaderboard(ctx context.Context, q progression.LeaderboardQuery) ([]progression.LeaderboardEntry, error) {
	inner, args, err := rankedQuery(q)
	if err != nil {
		return nil, err
	}
	args = append(args, max(q.Limit, 0))
	query := fmt.Sprintf(`
		SELECT rank, student_id, display_name, value, level
		FROM (%s) ranked
		ORDER BY rank
		LIMIT NULLIF($%d, 0)
	`, inner, len(args))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query leaderboard: %w", err))
	}
	defer rows.Close()

	var out []progression.LeaderboardEntry
	for rows.Next() {
		var e progression.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.StudentID, &e.DisplayName, &e.Value, &e.Level); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StudentRank implements progression.Reader.
func (s *ProgressionStore) StudentRank(ctx context.Context, q progression.LeaderboardQuery, studentID string) (int, error) {
	inner, args, err := rankedQuery(q)
	if err != nil {
		return 0, err
	}
	args = append(args, studentID)
	query := fmt.Sprintf(`SELECT rank FROM (%s) ranked WHERE student_id = $%d`, inner, len(args))

	var rank int
	err = s.conn.QueryRow(ctx, query, args...).Scan(&rank)
	if IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(fmt.Errorf("failed to query student rank: %w", err))
	}
	return rank, nil
}
