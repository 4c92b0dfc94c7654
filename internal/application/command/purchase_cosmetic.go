package command

import (
	"context"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURCHASE COSMETIC COMMAND
// Buys (or re-equips) an avatar, theme or shop item. Charging, recording
// ownership, equipping and the ledger entry commit together or not at all.
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseCosmeticCommand contains the data to buy a cosmetic.
type PurchaseCosmeticCommand struct {
	StudentID  string
	CosmeticID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c PurchaseCosmeticCommand) Validate() error {
	const op = "PurchaseCosmetic"
	if c.StudentID == "" {
		return invalid(op, "student_id is required")
	}
	if c.CosmeticID == "" {
		return invalid(op, "cosmetic_id is required")
	}
	return nil
}

// PurchaseCosmeticResult contains the outcome of a purchase.
type PurchaseCosmeticResult struct {
	Success bool `json:"success"`

	// AlreadyOwned is true when nothing was charged because the student
	// owned the cosmetic already.
	AlreadyOwned bool `json:"already_owned"`

	// Equipped is false for shop items, which are never equipped.
	Equipped bool `json:"equipped"`

	Action         progression.PurchaseAction `json:"action"`
	PricePaid      int64                      `json:"price_paid"`
	CoinsRemaining int64                      `json:"coins_remaining"`

	NewBadges []progression.Badge `json:"new_badges"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseCosmeticHandlerConfig contains configuration for the handler.
type PurchaseCosmeticHandlerConfig struct {
	TxAttempts int
}

// DefaultPurchaseCosmeticHandlerConfig returns default configuration.
func DefaultPurchaseCosmeticHandlerConfig() PurchaseCosmeticHandlerConfig {
	return PurchaseCosmeticHandlerConfig{TxAttempts: DefaultTxAttempts}
}

// PurchaseCosmeticHandler handles the PurchaseCosmeticCommand.
type PurchaseCosmeticHandler struct {
	store     progression.Store
	awarder   *BadgeAwarder
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
	tx        txRunner
}

// NewPurchaseCosmeticHandler creates a new PurchaseCosmeticHandler.
func NewPurchaseCosmeticHandler(
	store progression.Store,
	awarder *BadgeAwarder,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
	config PurchaseCosmeticHandlerConfig,
) *PurchaseCosmeticHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("purchase_cosmetic"))

	return &PurchaseCosmeticHandler{
		store:     store,
		awarder:   awarder,
		publisher: publisher,
		clock:     clock,
		log:       log,
		tx:        newTxRunner(store, config.TxAttempts, log, "purchase_cosmetic"),
	}
}

// Handle executes the purchase command.
func (h *PurchaseCosmeticHandler) Handle(ctx context.Context, cmd PurchaseCosmeticCommand) (*PurchaseCosmeticResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cosmetic, err := h.store.GetCosmetic(ctx, cmd.CosmeticID)
	if err != nil {
		return nil, persistenceError(err)
	}

	now := h.clock.Now()
	log := h.log.With(logger.StudentID(cmd.StudentID), logger.CosmeticID(cmd.CosmeticID), logger.CorrelationID(cmd.CorrelationID))

	var (
		result *PurchaseCosmeticResult
		events []shared.Event
	)

	err = h.tx.run(ctx, func(tx progression.Tx) error {
		result, events = nil, nil

		st, err := tx.LockStudent(ctx, cmd.StudentID)
		if err != nil {
			return err
		}
		owned, err := tx.OwnsCosmetic(ctx, st.ID, cosmetic.ID)
		if err != nil {
			return err
		}

		action, err := progression.DecidePurchase(st, *cosmetic, owned)
		if err != nil {
			return err
		}
		result = &PurchaseCosmeticResult{
			Success:      true,
			AlreadyOwned: action == progression.PurchaseEquipOnly,
			Action:       action,
			NewBadges:    []progression.Badge{},
		}

		if action != progression.PurchaseEquipOnly {
			price := int64(0)
			if action == progression.PurchaseCharge {
				price = cosmetic.Cost
				balance, err := tx.SpendCoins(ctx, st.ID, price)
				if err != nil {
					return err
				}
				st.Coins = balance
			}

			ownership := progression.Ownership{
				StudentID:   st.ID,
				CosmeticID:  cosmetic.ID,
				Kind:        cosmetic.Kind,
				PricePaid:   price,
				PurchasedAt: now,
			}
			inserted, err := tx.InsertOwnership(ctx, ownership)
			if err != nil {
				return err
			}
			if !inserted {
				// Bought concurrently; the replay sees it as owned.
				return shared.ErrConcurrentModification
			}
			if price > 0 {
				entry := progression.NewLedgerEntry(st.ID, price, progression.EntrySpend, progression.SourcePurchase, cosmetic.ID, now)
				if err := tx.AppendLedger(ctx, entry); err != nil {
					return err
				}
			}
			result.PricePaid = price
			events = append(events, progression.NewCosmeticPurchasedEvent(ownership))
		}

		avatar, theme := st.SelectedAvatarID, st.SelectedThemeID
		result.Equipped = st.Equip(*cosmetic)
		result.CoinsRemaining = st.Coins
		changed := st.SelectedAvatarID != avatar || st.SelectedThemeID != theme
		if action == progression.PurchaseEquipOnly && changed {
			events = append(events, progression.NewCosmeticEquippedEvent(st.ID, *cosmetic, now))
		}
		if changed || action != progression.PurchaseEquipOnly {
			st.UpdatedAt = now
			if err := tx.SaveStudent(ctx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if progression.IsRejection(err) {
			log.Info("purchase rejected", logger.Err(err))
		} else {
			log.Error("purchase failed", logger.Err(err))
		}
		return nil, err
	}

	log.Info("purchase completed",
		logger.String("action", string(result.Action)),
		logger.Coins(result.PricePaid),
	)
	publishAll(h.publisher, log, cmd.CorrelationID, events)

	if !result.AlreadyOwned {
		badges, err := h.awarder.Award(ctx, cmd.StudentID, now)
		if err != nil {
			log.Error("badge pass failed", logger.Err(err))
		}
		if len(badges) > 0 {
			result.NewBadges = badges
		}
	}
	return result, nil
}
