package command

import (
	"context"
	"fmt"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARDER
// Runs a badge pass for one student after a committed change: evaluates the
// catalog against fresh aggregates and inserts each newly qualified badge
// with insert-if-absent semantics.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwarderConfig contains configuration for the awarder.
type BadgeAwarderConfig struct {
	// Location is the timezone for hour and weekday conditions.
	Location *time.Location

	// Enabled is consulted before every pass. Nil means always enabled.
	Enabled func() bool
}

// BadgeAwarder evaluates and persists badge unlocks.
type BadgeAwarder struct {
	store     progression.Store
	publisher shared.EventPublisher
	log       *logger.Logger
	loc       *time.Location
	enabled   func() bool
}

// NewBadgeAwarder creates a new BadgeAwarder.
func NewBadgeAwarder(store progression.Store, publisher shared.EventPublisher, log *logger.Logger, cfg BadgeAwarderConfig) *BadgeAwarder {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &BadgeAwarder{
		store:     store,
		publisher: publisher,
		log:       log.With(logger.Component("badge_awarder")),
		loc:       cfg.Location,
		enabled:   cfg.Enabled,
	}
}

// Award runs a badge pass and returns the badges this call inserted, in
// catalog order. Badges unlocked concurrently by another pass are not
// reported.
func (a *BadgeAwarder) Award(ctx context.Context, studentID string, now time.Time) ([]progression.Badge, error) {
	if a == nil || (a.enabled != nil && !a.enabled()) {
		return nil, nil
	}

	badges, err := a.store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	if len(badges) == 0 {
		return nil, nil
	}
	evaluator := progression.NewBadgeEvaluator(badges)

	stats, unlocked, err := a.loadStats(ctx, studentID)
	if err != nil {
		return nil, err
	}

	var awarded []progression.Badge
	for _, b := range evaluator.Evaluate(stats, unlocked) {
		inserted, err := a.store.InsertStudentBadge(ctx, progression.StudentBadge{
			StudentID:  studentID,
			BadgeID:    b.ID,
			UnlockedAt: now,
		})
		if err != nil {
			return awarded, fmt.Errorf("insert badge %s: %w", b.ID, err)
		}
		if !inserted {
			continue
		}
		awarded = append(awarded, b)
		a.log.Info("badge unlocked", logger.StudentID(studentID), logger.BadgeID(b.ID))
		publishAll(a.publisher, a.log, "", []shared.Event{progression.NewBadgeUnlockedEvent(studentID, b, now)})
	}
	return awarded, nil
}

// loadStats gathers the aggregates a pass evaluates against.
func (a *BadgeAwarder) loadStats(ctx context.Context, studentID string) (progression.BadgeStats, map[string]bool, error) {
	st, err := a.store.GetStudent(ctx, studentID)
	if err != nil {
		return progression.BadgeStats{}, nil, fmt.Errorf("get student: %w", err)
	}

	stats := progression.StatsFor(st)
	stats.Location = a.loc

	if stats.Completions, err = a.store.ListCompletions(ctx, studentID); err != nil {
		return stats, nil, fmt.Errorf("list completions: %w", err)
	}
	if stats.WorldLessons, err = a.store.WorldLessons(ctx); err != nil {
		return stats, nil, fmt.Errorf("world lessons: %w", err)
	}
	if stats.OwnedCosmetics, err = a.store.CountOwnedCosmetics(ctx, studentID); err != nil {
		return stats, nil, fmt.Errorf("count cosmetics: %w", err)
	}

	existing, err := a.store.ListStudentBadges(ctx, studentID)
	if err != nil {
		return stats, nil, fmt.Errorf("list student badges: %w", err)
	}
	unlocked := make(map[string]bool, len(existing))
	for _, sb := range existing {
		unlocked[sb.BadgeID] = true
	}
	return stats, unlocked, nil
}
