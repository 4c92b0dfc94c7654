package command

import (
	"context"
	"errors"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Turns a validated lesson or challenge submission into coins, XP, level,
// streak and badges. A passing submission is rewarded at most once per
// (student, activity).
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionCommand contains the data of a finished submission.
type RecordCompletionCommand struct {
	StudentID  string
	ActivityID string

	// Passed is the verdict of the code validator.
	Passed bool

	// TimeSpentSeconds is measured by the client.
	TimeSpentSeconds int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	const op = "RecordCompletion"
	if c.StudentID == "" {
		return invalid(op, "student_id is required")
	}
	if c.ActivityID == "" {
		return invalid(op, "activity_id is required")
	}
	if c.TimeSpentSeconds < 0 {
		return invalid(op, "time_spent_seconds cannot be negative")
	}
	return nil
}

// RecordCompletionResult describes the reward of a submission.
type RecordCompletionResult struct {
	// Success is false when the submission did not pass.
	Success bool `json:"success"`

	// AlreadyCompleted is true when the activity had been rewarded before;
	// the reward fields then repeat the original reward.
	AlreadyCompleted bool `json:"already_completed"`

	// CoinsEarned includes the level-up bonus.
	CoinsEarned int64 `json:"coins_earned"`
	XPEarned    int64 `json:"xp_earned"`
	LeveledUp   bool  `json:"leveled_up"`
	NewLevel    int   `json:"new_level"`
	Streak      int   `json:"streak"`
	EarnedBonus bool  `json:"earned_bonus"`

	NewBadges []progression.Badge `json:"new_badges"`
}

func resultFromCompletion(c progression.Completion, already bool) *RecordCompletionResult {
	return &RecordCompletionResult{
		Success:          true,
		AlreadyCompleted: already,
		CoinsEarned:      c.CoinsEarned,
		XPEarned:         c.XPEarned,
		LeveledUp:        c.LeveledUp,
		NewLevel:         c.NewLevel,
		Streak:           c.StreakAfter,
		EarnedBonus:      c.EarnedBonus,
		NewBadges:        []progression.Badge{},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionHandlerConfig contains configuration for the handler.
type RecordCompletionHandlerConfig struct {
	// Location defines the calendar day used for streaks.
	Location *time.Location

	// TxAttempts bounds transaction retries.
	TxAttempts int
}

// DefaultRecordCompletionHandlerConfig returns default configuration.
func DefaultRecordCompletionHandlerConfig() RecordCompletionHandlerConfig {
	return RecordCompletionHandlerConfig{
		Location:   time.UTC,
		TxAttempts: DefaultTxAttempts,
	}
}

// RecordCompletionHandler is the progression coordinator.
type RecordCompletionHandler struct {
	store     progression.Store
	awarder   *BadgeAwarder
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
	tx        txRunner
	loc       *time.Location
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
func NewRecordCompletionHandler(
	store progression.Store,
	awarder *BadgeAwarder,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
	config RecordCompletionHandlerConfig,
) *RecordCompletionHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("record_completion"))

	return &RecordCompletionHandler{
		store:     store,
		awarder:   awarder,
		publisher: publisher,
		clock:     clock,
		log:       log,
		tx:        newTxRunner(store, config.TxAttempts, log, "record_completion"),
		loc:       config.Location,
	}
}

// Handle executes the record completion command.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*RecordCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !cmd.Passed {
		return &RecordCompletionResult{Success: false, NewBadges: []progression.Badge{}}, nil
	}

	activity, err := h.store.GetActivity(ctx, cmd.ActivityID)
	if err != nil {
		return nil, persistenceError(err)
	}

	now := h.clock.Now()
	today := timeutil.DateOf(now, h.loc)
	log := h.log.With(logger.StudentID(cmd.StudentID), logger.ActivityID(cmd.ActivityID), logger.CorrelationID(cmd.CorrelationID))

	var (
		result  *RecordCompletionResult
		events  []shared.Event
		anomaly *progression.StreakUpdate
	)

	err = h.tx.run(ctx, func(tx progression.Tx) error {
		result, events, anomaly = nil, nil, nil

		st, err := tx.LockStudent(ctx, cmd.StudentID)
		if err != nil {
			return err
		}

		existing, err := tx.GetCompletion(ctx, cmd.StudentID, cmd.ActivityID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = resultFromCompletion(*existing, true)
			return nil
		}

		if err := st.CheckInvariants(); err != nil {
			return err
		}

		hintsUsed := 0
		if activity.Kind == progression.ActivityLesson {
			if hintsUsed, err = tx.HighestHintLevel(ctx, cmd.StudentID, activity.ID); err != nil {
				return err
			}
		}

		previousStreak := st.CurrentStreak
		update := progression.NextStreak(st.LastActivityDate, today, st.CurrentStreak)
		if update.Anomalous() {
			u := update
			anomaly = &u
		}
		st.RecordStreak(update, today)

		earnedBonus := activity.EarnsBonus(cmd.TimeSpentSeconds)
		coins, xp := activity.Rewards(earnedBonus)
		reward, err := progression.ApplyReward(st, coins, xp)
		if err != nil {
			return err
		}
		st.UpdatedAt = now

		completion := progression.Completion{
			StudentID:        st.ID,
			ActivityID:       activity.ID,
			ActivityKind:     activity.Kind,
			WorldID:          activity.WorldID,
			Completed:        true,
			Score:            progression.PerfectScore,
			Attempts:         1,
			CoinsEarned:      reward.CoinsEarned,
			XPEarned:         reward.XPEarned,
			TimeSpentSeconds: cmd.TimeSpentSeconds,
			EarnedBonus:      earnedBonus,
			HintsUsed:        hintsUsed,
			LeveledUp:        reward.LeveledUp,
			NewLevel:         reward.NewLevel,
			StreakAfter:      st.CurrentStreak,
			CompletedAt:      now,
		}

		inserted, err := tx.InsertCompletion(ctx, completion)
		if err != nil {
			return err
		}
		if !inserted {
			winner, err := tx.GetCompletion(ctx, cmd.StudentID, cmd.ActivityID)
			if err != nil {
				return err
			}
			if winner == nil {
				return shared.ErrConcurrentModification
			}
			result = resultFromCompletion(*winner, true)
			return errRolledBack
		}

		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}
		if entries := progression.RewardEntries(st.ID, *activity, reward, now); len(entries) > 0 {
			if err := tx.AppendLedger(ctx, entries...); err != nil {
				return err
			}
		}

		result = &RecordCompletionResult{
			Success:     true,
			CoinsEarned: reward.CoinsEarned,
			XPEarned:    reward.XPEarned,
			LeveledUp:   reward.LeveledUp,
			NewLevel:    reward.NewLevel,
			Streak:      st.CurrentStreak,
			EarnedBonus: earnedBonus,
			NewBadges:   []progression.Badge{},
		}

		events = append(events, progression.NewCompletionRecordedEvent(st.ID, completion, st.XP, now))
		if reward.LeveledUp {
			events = append(events, progression.NewLevelUpEvent(st.ID, reward, now))
		}
		if update.Outcome == progression.StreakReset && previousStreak > 0 {
			events = append(events, progression.NewStreakBrokenEvent(st.ID, previousStreak, update.GapDays, now))
		}
		return nil
	})
	if errors.Is(err, errRolledBack) {
		err = nil
	}
	if err != nil {
		if !progression.IsRejection(err) {
			log.Error("completion not recorded", logger.Err(err))
		}
		return nil, err
	}

	if anomaly != nil {
		log.Warn("clock skew: activity date precedes last activity date",
			logger.Int("gap_days", anomaly.GapDays),
			logger.Int("streak", anomaly.Value),
		)
	}
	if !result.AlreadyCompleted {
		log.Info("completion recorded",
			logger.Coins(result.CoinsEarned),
			logger.XPAmount(result.XPEarned),
			logger.Int("level", result.NewLevel),
			logger.Int("streak", result.Streak),
		)
		publishAll(h.publisher, log, cmd.CorrelationID, events)
	}

	// Replays rerun the pass too; it only inserts badges still missing.
	badges, err := h.awarder.Award(ctx, cmd.StudentID, now)
	if err != nil {
		log.Error("badge pass failed", logger.Err(err))
	}
	if len(badges) > 0 {
		result.NewBadges = badges
	}
	return result, nil
}
