package command

import (
	"context"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK HINT COMMAND
// Sells the next hint tier of a lesson. Tiers unlock strictly in order and
// each is paid for once.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockHintCommand contains the data to buy a hint.
type UnlockHintCommand struct {
	StudentID string
	LessonID  string

	// Level requests a specific tier. Zero means the next locked tier.
	Level int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnlockHintCommand) Validate() error {
	const op = "UnlockHint"
	if c.StudentID == "" {
		return invalid(op, "student_id is required")
	}
	if c.LessonID == "" {
		return invalid(op, "lesson_id is required")
	}
	if c.Level < 0 || c.Level > progression.MaxHintLevel {
		return invalid(op, "level must be between 1 and %d", progression.MaxHintLevel)
	}
	return nil
}

// UnlockHintResult contains the outcome of a hint purchase.
type UnlockHintResult struct {
	Success bool  `json:"success"`
	Level   int   `json:"level"`
	Cost    int64 `json:"cost"`

	// Charged is false when the tier had already been unlocked.
	Charged bool `json:"charged"`

	CoinsRemaining int64 `json:"coins_remaining"`
	HintsRemaining int   `json:"hints_remaining"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UnlockHintHandlerConfig contains configuration for the handler.
type UnlockHintHandlerConfig struct {
	Costs      progression.HintCosts
	TxAttempts int
}

// DefaultUnlockHintHandlerConfig returns default configuration.
func DefaultUnlockHintHandlerConfig() UnlockHintHandlerConfig {
	return UnlockHintHandlerConfig{
		Costs:      progression.DefaultHintCosts(),
		TxAttempts: DefaultTxAttempts,
	}
}

// UnlockHintHandler handles the UnlockHintCommand.
type UnlockHintHandler struct {
	store     progression.Store
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
	tx        txRunner
	costs     progression.HintCosts
}

// NewUnlockHintHandler creates a new UnlockHintHandler.
func NewUnlockHintHandler(
	store progression.Store,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
	config UnlockHintHandlerConfig,
) *UnlockHintHandler {
	if config.Costs == (progression.HintCosts{}) {
		config.Costs = progression.DefaultHintCosts()
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
	log = log.With(logger.Component("unlock_hint"))

	return &UnlockHintHandler{
		store:     store,
		publisher: publisher,
		clock:     clock,
		log:       log,
		tx:        newTxRunner(store, config.TxAttempts, log, "unlock_hint"),
		costs:     config.Costs,
	}
}

// Handle executes the unlock hint command.
func (h *UnlockHintHandler) Handle(ctx context.Context, cmd UnlockHintCommand) (*UnlockHintResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	lesson, err := h.store.GetActivity(ctx, cmd.LessonID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if lesson.Kind != progression.ActivityLesson {
		return nil, progression.ErrInvalidActivity
	}

	now := h.clock.Now()
	log := h.log.With(logger.StudentID(cmd.StudentID), logger.ActivityID(cmd.LessonID), logger.CorrelationID(cmd.CorrelationID))

	var (
		result *UnlockHintResult
		events []shared.Event
	)

	err = h.tx.run(ctx, func(tx progression.Tx) error {
		result, events = nil, nil

		st, err := tx.LockStudent(ctx, cmd.StudentID)
		if err != nil {
			return err
		}
		highest, err := tx.HighestHintLevel(ctx, st.ID, lesson.ID)
		if err != nil {
			return err
		}

		level := cmd.Level
		if level == 0 {
			if level, err = progression.NextHintLevel(highest); err != nil {
				return err
			}
		} else if level <= highest {
			result = &UnlockHintResult{
				Success:        true,
				Level:          level,
				Cost:           h.costs.Cost(level),
				CoinsRemaining: st.Coins,
				HintsRemaining: progression.MaxHintLevel - highest,
			}
			return nil
		} else if err := progression.CheckHintOrder(highest, level); err != nil {
			return err
		}

		unlock := progression.HintUnlock{
			StudentID:  st.ID,
			LessonID:   lesson.ID,
			Level:      level,
			Cost:       h.costs.Cost(level),
			UnlockedAt: now,
		}
		result = &UnlockHintResult{
			Success:        true,
			Level:          level,
			Cost:           unlock.Cost,
			CoinsRemaining: st.Coins,
			HintsRemaining: progression.MaxHintLevel - level,
		}

		inserted, err := tx.InsertHintUnlock(ctx, unlock)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if unlock.Cost > 0 {
			balance, err := tx.SpendCoins(ctx, st.ID, unlock.Cost)
			if err != nil {
				return err
			}
			st.Coins = balance
			entry := progression.NewLedgerEntry(st.ID, unlock.Cost, progression.EntrySpend, progression.SourceHint, lesson.ID, now)
			if err := tx.AppendLedger(ctx, entry); err != nil {
				return err
			}
		}

		st.UpdatedAt = now
		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}

		result.Charged = unlock.Cost > 0
		result.CoinsRemaining = st.Coins
		events = append(events, progression.NewHintUnlockedEvent(unlock))
		return nil
	})
	if err != nil {
		if progression.IsRejection(err) {
			log.Info("hint rejected", logger.Err(err))
		} else {
			log.Error("hint unlock failed", logger.Err(err))
		}
		return nil, err
	}

	if len(events) > 0 {
		log.Info("hint unlocked", logger.Int("level", result.Level), logger.Coins(result.Cost))
	}
	publishAll(h.publisher, log, cmd.CorrelationID, events)
	return result, nil
}
