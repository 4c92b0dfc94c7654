// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"strings"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION SNAPSHOT QUERY
// Returns the read-only progression view of a student: balances, level
// progress, streaks, equipped cosmetics and unlocked badges.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressionSnapshotQuery contains the parameters of a snapshot request.
type GetProgressionSnapshotQuery struct {
	StudentID string

	// SkipCache forces a fresh read from the store.
	SkipCache bool
}

// Validate checks the query parameters.
func (q GetProgressionSnapshotQuery) Validate() error {
	if strings.TrimSpace(q.StudentID) == "" {
		return shared.NewDomainError("query", "GetProgressionSnapshot", shared.ErrValidation, "student_id is required")
	}
	return nil
}

// SnapshotSource is the slice of the store a snapshot is assembled from.
type SnapshotSource interface {
	progression.Reader
	progression.BadgeRepository
	ListBadges(ctx context.Context) ([]progression.Badge, error)
}

// SnapshotCache stores assembled snapshots.
type SnapshotCache interface {
	// GetSnapshot returns nil, nil on a miss.
	GetSnapshot(ctx context.Context, studentID string) (*progression.Snapshot, error)
	SetSnapshot(ctx context.Context, snap *progression.Snapshot) error
}

// GetProgressionSnapshotHandler handles snapshot queries.
type GetProgressionSnapshotHandler struct {
	source  SnapshotSource
	cache   SnapshotCache
	enabled func() bool
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewGetProgressionSnapshotHandler creates a new handler. cache may be nil.
// enabled, when set, is consulted on every call to decide whether the cache
// is used.
func NewGetProgressionSnapshotHandler(
	source SnapshotSource,
	cache SnapshotCache,
	enabled func() bool,
	clock timeutil.Clock,
	log *logger.Logger,
) *GetProgressionSnapshotHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &GetProgressionSnapshotHandler{
		source:  source,
		cache:   cache,
		enabled: enabled,
		clock:   clock,
		log:     log.With(logger.Component("progression_snapshot")),
	}
}

func (h *GetProgressionSnapshotHandler) cacheOn() bool {
	return h.cache != nil && (h.enabled == nil || h.enabled())
}

// Handle executes the query. Returns progression.ErrStudentNotFound for an
// unknown student.
func (h *GetProgressionSnapshotHandler) Handle(ctx context.Context, q GetProgressionSnapshotQuery) (*progression.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	useCache := h.cacheOn() && !q.SkipCache
	if useCache {
		snap, err := h.cache.GetSnapshot(ctx, q.StudentID)
		if err != nil {
			h.log.Warn("snapshot cache read failed", logger.StudentID(q.StudentID), logger.Err(err))
		}
		if snap != nil {
			return snap, nil
		}
	}

	snap, err := h.build(ctx, q.StudentID)
	if err != nil {
		return nil, readError(err)
	}

	if h.cacheOn() {
		if err := h.cache.SetSnapshot(ctx, snap); err != nil {
			h.log.Warn("snapshot cache write failed", logger.StudentID(q.StudentID), logger.Err(err))
		}
	}
	return snap, nil
}

// build assembles a snapshot from the store.
func (h *GetProgressionSnapshotHandler) build(ctx context.Context, studentID string) (*progression.Snapshot, error) {
	st, err := h.source.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	unlocks, err := h.source.ListStudentBadges(ctx, studentID)
	if err != nil {
		return nil, err
	}
	catalog, err := h.source.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	completions, err := h.source.ListCompletions(ctx, studentID)
	if err != nil {
		return nil, err
	}
	owned, err := h.source.CountOwnedCosmetics(ctx, studentID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]progression.Badge, len(catalog))
	for _, b := range catalog {
		byID[b.ID] = b
	}
	badges := make([]progression.SnapshotBadge, 0, len(unlocks))
	for _, u := range unlocks {
		sb := progression.SnapshotBadge{ID: u.BadgeID, Name: u.BadgeID, UnlockedAt: u.UnlockedAt}
		if b, ok := byID[u.BadgeID]; ok {
			sb.Name = b.Name
			sb.Icon = b.Icon
		}
		badges = append(badges, sb)
	}

	return &progression.Snapshot{
		StudentID:           st.ID,
		DisplayName:         st.DisplayName,
		Coins:               st.Coins,
		LifetimeCoins:       st.LifetimeCoins,
		XP:                  st.XP,
		Level:               st.Level,
		Progress:            progression.ProgressForXP(st.XP),
		CurrentStreak:       st.CurrentStreak,
		LongestStreak:       st.LongestStreak,
		LastActivityDate:    st.LastActivityDate,
		SelectedAvatarID:    st.SelectedAvatarID,
		SelectedThemeID:     st.SelectedThemeID,
		Badges:              badges,
		CompletedActivities: len(completions),
		OwnedCosmetics:      owned,
		GeneratedAt:         h.clock.Now(),
	}, nil
}

// readError keeps business errors and reports everything else as a
// persistence failure.
func readError(err error) error {
	if err == nil || progression.IsRejection(err) || shared.IsValidation(err) {
		return err
	}
	return progression.ErrPersistence.Wrap(err)
}
