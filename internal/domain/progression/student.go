package progression

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is the economic and progression state of one learner.
// Level is always derived from XP; it is stored only as a cached value.
type Student struct {
	ID          string
	DisplayName string

	// Coins is the spendable balance, never negative.
	Coins int64

	// LifetimeCoins counts every coin ever earned; spending does not reduce it.
	LifetimeCoins int64

	// XP only grows.
	XP    int64
	Level int

	CurrentStreak int
	LongestStreak int

	// LastActivityDate is a calendar date (midnight UTC), nil before the first activity.
	LastActivityDate *time.Time

	SelectedAvatarID string
	SelectedThemeID  string

	// Version increments on every persisted mutation.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudent creates a student with all counters zeroed, as at signup.
func NewStudent(id, displayName string, now time.Time) (*Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidStudentID
	}
	return &Student{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		Level:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Clone returns a deep copy of the student.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastActivityDate != nil {
		d := *s.LastActivityDate
		c.LastActivityDate = &d
	}
	return &c
}

// CheckInvariants verifies the stored state is consistent.
func (s *Student) CheckInvariants() error {
	switch {
	case s.Coins < 0, s.XP < 0, s.LifetimeCoins < 0:
		return ErrCorruptState
	case s.CurrentStreak < 0, s.LongestStreak < s.CurrentStreak:
		return ErrCorruptState
	case s.Level != LevelFromXP(s.XP):
		return ErrCorruptState
	}
	return nil
}

// Equip points the matching selection slot at a cosmetic.
// Items that are not avatars or themes are never equipped.
func (s *Student) Equip(c Cosmetic) bool {
	switch c.Kind {
	case CosmeticAvatar:
		s.SelectedAvatarID = c.ID
		return true
	case CosmeticTheme:
		s.SelectedThemeID = c.ID
		return true
	default:
		return false
	}
}
