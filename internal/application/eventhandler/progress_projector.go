// Package eventhandler contains subscribers of progression domain events.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS PROJECTOR
// Keeps the read caches in step with committed writes:
//   - every progression event drops the student's cached snapshot
//   - events that move a ranked value refresh the student's leaderboard rows
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotInvalidator drops cached snapshots.
type SnapshotInvalidator interface {
	InvalidateSnapshot(ctx context.Context, studentID string) error
}

// LeaderboardUpdater rewrites one student's cached leaderboard rows.
type LeaderboardUpdater interface {
	UpdateStudent(ctx context.Context, s *progression.Student) error
}

// StudentReader loads the committed state of a student.
type StudentReader interface {
	GetStudent(ctx context.Context, id string) (*progression.Student, error)
}

// ProgressProjectorConfig contains configuration for the projector.
type ProgressProjectorConfig struct {
	// Enabled, when set, is consulted per event.
	Enabled func() bool

	// Timeout bounds the cache calls of one event.
	Timeout time.Duration
}

// DefaultProgressProjectorConfig returns default configuration.
func DefaultProgressProjectorConfig() ProgressProjectorConfig {
	return ProgressProjectorConfig{Timeout: 2 * time.Second}
}

// ProgressProjector projects events onto the snapshot and leaderboard caches.
type ProgressProjector struct {
	students    StudentReader
	snapshots   SnapshotInvalidator
	leaderboard LeaderboardUpdater
	log         *logger.Logger
	config      ProgressProjectorConfig
}

// NewProgressProjector creates a projector. snapshots and leaderboard may be
// nil when the matching cache is not deployed.
func NewProgressProjector(
	students StudentReader,
	snapshots SnapshotInvalidator,
	leaderboard LeaderboardUpdater,
	log *logger.Logger,
	config ProgressProjectorConfig,
) *ProgressProjector {
	if log == nil {
		log = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProgressProjectorConfig().Timeout
	}
	return &ProgressProjector{
		students:    students,
		snapshots:   snapshots,
		leaderboard: leaderboard,
		log:         log.With(logger.Component("progress_projector")),
		config:      config,
	}
}

// Register subscribes the projector to every event on the bus.
func (p *ProgressProjector) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(p.Handle)
}

// rankedEvents move xp, lifetime coins, level or streak.
var rankedEvents = map[shared.EventType]bool{
	progression.EventStudentRegistered:  true,
	progression.EventCompletionRecorded: true,
	progression.EventLevelUp:            true,
	progression.EventStreakBroken:       true,
}

// Handle implements shared.EventHandler.
func (p *ProgressProjector) Handle(event shared.Event) error {
	if p.config.Enabled != nil && !p.config.Enabled() {
		return nil
	}
	studentID := event.AggregateID()
	if studentID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	var errs []error
	if p.snapshots != nil {
		if err := p.snapshots.InvalidateSnapshot(ctx, studentID); err != nil {
			errs = append(errs, fmt.Errorf("invalidate snapshot: %w", err))
		}
	}

	if p.leaderboard != nil && rankedEvents[event.EventType()] {
		st, err := p.students.GetStudent(ctx, studentID)
		switch {
		case errors.Is(err, progression.ErrStudentNotFound):
		case err != nil:
			errs = append(errs, fmt.Errorf("load student: %w", err))
		default:
			if err := p.leaderboard.UpdateStudent(ctx, st); err != nil {
				errs = append(errs, fmt.Errorf("update leaderboard: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		p.log.Warn("projection failed",
			logger.StudentID(studentID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
		return err
	}
	return nil
}
