package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, [3]int64{5, 10, 15}, cfg.Progression.HintCosts)
	assert.Equal(t, time.UTC, cfg.Progression.Location)
	assert.Equal(t, 3, cfg.Progression.TxAttempts)
	assert.Empty(t, cfg.Database.URL)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.LeaderboardRebuildInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PROGRESSION_HINT_COSTS", "1, 2, 3")
	t.Setenv("PROGRESSION_TIMEZONE", "Asia/Almaty")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, [3]int64{1, 2, 3}, cfg.Progression.HintCosts)
	assert.Equal(t, "Asia/Almaty", cfg.Progression.Location.String())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "postgres://app:secret@db:5432/progression?sslmode=disable", cfg.Database.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown timezone", map[string]string{"PROGRESSION_TIMEZONE": "Mars/Olympus"}, "PROGRESSION_TIMEZONE"},
		{"wrong hint cost count", map[string]string{"PROGRESSION_HINT_COSTS": "5,10"}, "PROGRESSION_HINT_COSTS"},
		{"negative hint cost", map[string]string{"PROGRESSION_HINT_COSTS": "5,-1,15"}, "PROGRESSION_HINT_COSTS[1]"},
		{"production without database", map[string]string{"APP_ENV": "production"}, "DATABASE_URL"},
		{"bad port", map[string]string{"HTTP_PORT": "70000"}, "HTTP_PORT"},
		{"no attempts", map[string]string{"PROGRESSION_TX_ATTEMPTS": "0"}, "PROGRESSION_TX_ATTEMPTS"},
		{"zero rebuild interval", map[string]string{"LEADERBOARD_REBUILD_INTERVAL": "0s"}, "LEADERBOARD_REBUILD_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		App:         AppConfig{Environment: EnvProduction},
		HTTP:        HTTPConfig{Port: 0},
		Progression: ProgressionConfig{TxAttempts: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "PROGRESSION_TX_ATTEMPTS")
}

func TestFeatureFlags(t *testing.T) {
	t.Run("defaults on", func(t *testing.T) {
		ff := NewFeatureFlags()
		for _, name := range []string{FeatureBadges, FeatureLeaderboardCache, FeatureSnapshotCache, FeatureEventProjection} {
			assert.True(t, ff.IsEnabled(name, nil), name)
		}
		assert.False(t, ff.IsEnabled("unknown.flag", nil))
	})

	t.Run("environment disables", func(t *testing.T) {
		t.Setenv("FEATURE_CACHE_SNAPSHOT", "false")
		ff := LoadFeatureFlags()
		assert.False(t, ff.IsEnabled(FeatureSnapshotCache, nil))
		assert.True(t, ff.IsEnabled(FeatureLeaderboardCache, nil))
	})

	t.Run("toggle follows live changes", func(t *testing.T) {
		ff := NewFeatureFlags()
		enabled := ff.Toggle(FeatureBadges)
		assert.True(t, enabled())

		require.NoError(t, ff.DisableFeature(FeatureBadges))
		assert.False(t, enabled())
	})

	t.Run("student override wins", func(t *testing.T) {
		ff := NewFeatureFlags()
		require.NoError(t, ff.DisableFeature(FeatureBadges))
		ff.SetStudentOverride("s1", FeatureBadges, true)

		assert.True(t, ff.IsEnabled(FeatureBadges, &FeatureContext{StudentID: "s1"}))
		assert.False(t, ff.IsEnabled(FeatureBadges, &FeatureContext{StudentID: "s2"}))

		ff.ClearStudentOverrides("s1")
		assert.False(t, ff.IsEnabled(FeatureBadges, &FeatureContext{StudentID: "s1"}))
	})

	t.Run("rollout is stable per student", func(t *testing.T) {
		ff := NewFeatureFlags()
		require.NoError(t, ff.SetRolloutPercent(FeatureBadges, 50))
		ctx := &FeatureContext{StudentID: "student-7"}
		first := ff.IsEnabled(FeatureBadges, ctx)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, ff.IsEnabled(FeatureBadges, ctx))
		}
	})

	t.Run("invalid rollout", func(t *testing.T) {
		ff := NewFeatureFlags()
		assert.ErrorIs(t, ff.SetRolloutPercent(FeatureBadges, 101), ErrInvalidRolloutPercent)
		assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	})
}
