package progression

import (
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

// Progression event types.
const (
	EventCompletionRecorded shared.EventType = "progression.completion_recorded"
	EventLevelUp            shared.EventType = "progression.level_up"
	EventBadgeUnlocked      shared.EventType = "progression.badge_unlocked"
	EventStreakBroken       shared.EventType = "progression.streak_broken"
	EventCosmeticPurchased  shared.EventType = "progression.cosmetic_purchased"
	EventCosmeticEquipped   shared.EventType = "progression.cosmetic_equipped"
	EventHintUnlocked       shared.EventType = "progression.hint_unlocked"
	EventStudentRegistered  shared.EventType = "progression.student_registered"
)

// CompletionRecordedEvent is emitted once per rewarded completion.
type CompletionRecordedEvent struct {
	shared.BaseEvent
	ActivityID  string
	CoinsEarned int64
	XPEarned    int64
	TotalXP     int64
	Streak      int
}

// Payload implements shared.Event.
func (e CompletionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"activity_id":  e.ActivityID,
		"coins_earned": e.CoinsEarned,
		"xp_earned":    e.XPEarned,
		"total_xp":     e.TotalXP,
		"streak":       e.Streak,
	}
}

// NewCompletionRecordedEvent creates a CompletionRecordedEvent.
func NewCompletionRecordedEvent(studentID string, c Completion, totalXP int64, at time.Time) CompletionRecordedEvent {
	return CompletionRecordedEvent{
		BaseEvent:   shared.NewBaseEvent(EventCompletionRecorded, studentID, at),
		ActivityID:  c.ActivityID,
		CoinsEarned: c.CoinsEarned,
		XPEarned:    c.XPEarned,
		TotalXP:     totalXP,
		Streak:      c.StreakAfter,
	}
}

// LevelUpEvent is emitted when a reward crosses one or more thresholds.
type LevelUpEvent struct {
	shared.BaseEvent
	OldLevel int
	NewLevel int
	Bonus    int64
}

// Payload implements shared.Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"bonus":     e.Bonus,
	}
}

// NewLevelUpEvent creates a LevelUpEvent.
func NewLevelUpEvent(studentID string, r RewardResult, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: shared.NewBaseEvent(EventLevelUp, studentID, at),
		OldLevel:  r.OldLevel,
		NewLevel:  r.NewLevel,
		Bonus:     r.LevelUpBonus,
	}
}

// BadgeUnlockedEvent is emitted once per inserted StudentBadge.
type BadgeUnlockedEvent struct {
	shared.BaseEvent
	BadgeID   string
	BadgeName string
}

// Payload implements shared.Event.
func (e BadgeUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":   e.BadgeID,
		"badge_name": e.BadgeName,
	}
}

// NewBadgeUnlockedEvent creates a BadgeUnlockedEvent.
func NewBadgeUnlockedEvent(studentID string, b Badge, at time.Time) BadgeUnlockedEvent {
	return BadgeUnlockedEvent{
		BaseEvent: shared.NewBaseEvent(EventBadgeUnlocked, studentID, at),
		BadgeID:   b.ID,
		BadgeName: b.Name,
	}
}

// StreakBrokenEvent is emitted when a gap resets the streak.
type StreakBrokenEvent struct {
	shared.BaseEvent
	PreviousStreak int
	DaysMissed     int
}

// Payload implements shared.Event.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a StreakBrokenEvent.
func NewStreakBrokenEvent(studentID string, previous, gapDays int, at time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      shared.NewBaseEvent(EventStreakBroken, studentID, at),
		PreviousStreak: previous,
		DaysMissed:     gapDays - 1,
	}
}

// CosmeticPurchasedEvent is emitted when ownership is recorded.
type CosmeticPurchasedEvent struct {
	shared.BaseEvent
	CosmeticID string
	Kind       CosmeticKind
	PricePaid  int64
}

// Payload implements shared.Event.
func (e CosmeticPurchasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"cosmetic_id": e.CosmeticID,
		"kind":        string(e.Kind),
		"price_paid":  e.PricePaid,
	}
}

// NewCosmeticPurchasedEvent creates a CosmeticPurchasedEvent.
func NewCosmeticPurchasedEvent(o Ownership) CosmeticPurchasedEvent {
	return CosmeticPurchasedEvent{
		BaseEvent:  shared.NewBaseEvent(EventCosmeticPurchased, o.StudentID, o.PurchasedAt),
		CosmeticID: o.CosmeticID,
		Kind:       o.Kind,
		PricePaid:  o.PricePaid,
	}
}

// CosmeticEquippedEvent is emitted when an owned cosmetic replaces the
// current selection.
type CosmeticEquippedEvent struct {
	shared.BaseEvent
	CosmeticID string
	Kind       CosmeticKind
}

// Payload implements shared.Event.
func (e CosmeticEquippedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"cosmetic_id": e.CosmeticID,
		"kind":        string(e.Kind),
	}
}

// NewCosmeticEquippedEvent creates a CosmeticEquippedEvent.
func NewCosmeticEquippedEvent(studentID string, c Cosmetic, at time.Time) CosmeticEquippedEvent {
	return CosmeticEquippedEvent{
		BaseEvent:  shared.NewBaseEvent(EventCosmeticEquipped, studentID, at),
		CosmeticID: c.ID,
		Kind:       c.Kind,
	}
}

// HintUnlockedEvent is emitted when a hint tier is bought.
type HintUnlockedEvent struct {
	shared.BaseEvent
	LessonID string
	Level    int
	Cost     int64
}

// Payload implements shared.Event.
func (e HintUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id": e.LessonID,
		"level":     e.Level,
		"cost":      e.Cost,
	}
}

// NewHintUnlockedEvent creates a HintUnlockedEvent.
func NewHintUnlockedEvent(h HintUnlock) HintUnlockedEvent {
	return HintUnlockedEvent{
		BaseEvent: shared.NewBaseEvent(EventHintUnlocked, h.StudentID, h.UnlockedAt),
		LessonID:  h.LessonID,
		Level:     h.Level,
		Cost:      h.Cost,
	}
}

// StudentRegisteredEvent is emitted when a student is created.
type StudentRegisteredEvent struct {
	shared.BaseEvent
	DisplayName string
}

// Payload implements shared.Event.
func (e StudentRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"display_name": e.DisplayName}
}

// NewStudentRegisteredEvent creates a StudentRegisteredEvent.
func NewStudentRegisteredEvent(s *Student) StudentRegisteredEvent {
	return StudentRegisteredEvent{
		BaseEvent:   shared.NewBaseEvent(EventStudentRegistered, s.ID, s.CreatedAt),
		DisplayName: s.DisplayName,
	}
}
