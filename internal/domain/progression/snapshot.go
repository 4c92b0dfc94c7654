package progression

import "time"

// Snapshot is the read-only progression view of one student.
type Snapshot struct {
	StudentID     string        `json:"student_id"`
	DisplayName   string        `json:"display_name"`
	Coins         int64         `json:"coins"`
	LifetimeCoins int64         `json:"lifetime_coins"`
	XP            int64         `json:"xp"`
	Level         int           `json:"level"`
	Progress      LevelProgress `json:"progress"`

	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	SelectedAvatarID string `json:"selected_avatar_id,omitempty"`
	SelectedThemeID  string `json:"selected_theme_id,omitempty"`

	Badges              []SnapshotBadge `json:"badges"`
	CompletedActivities int             `json:"completed_activities"`
	OwnedCosmetics      int             `json:"owned_cosmetics"`

	GeneratedAt time.Time `json:"generated_at"`
}

// SnapshotBadge is an unlocked badge as shown in a snapshot.
type SnapshotBadge struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon,omitempty"`
	UnlockedAt time.Time `json:"unlocked_at"`
}
