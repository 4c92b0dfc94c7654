package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/application/command"
	"github.com/codequest-jr/progression-hub/internal/application/query"
	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/codequest-jr/progression-hub/internal/interface/http/handlers"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

type testAPI struct {
	store   *memory.Store
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.SeedCatalog(context.Background(), progression.CatalogContent{
		Activities: []progression.Activity{
			{ID: "lesson-a", Kind: progression.ActivityLesson, Title: "A", CoinReward: 10, XPReward: 50},
		},
		Cosmetics: []progression.Cosmetic{
			{ID: "avatar-cat", Kind: progression.CosmeticAvatar, Name: "Cat", Cost: 50},
			{ID: "theme-pro", Kind: progression.CosmeticTheme, Name: "Pro", Cost: 5, RequiredLevel: 3},
		},
	}))

	clock := timeutil.NewFixedClock(time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC))
	log := logger.Nop()
	awarder := command.NewBadgeAwarder(store, nil, log, command.BadgeAwarderConfig{})

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.NewPingCheck(store))

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, Dependencies{
		CreateStudent:    command.NewCreateStudentHandler(store, nil, clock, log),
		RecordCompletion: command.NewRecordCompletionHandler(store, awarder, nil, clock, log, command.DefaultRecordCompletionHandlerConfig()),
		PurchaseCosmetic: command.NewPurchaseCosmeticHandler(store, awarder, nil, clock, log, command.DefaultPurchaseCosmeticHandlerConfig()),
		UnlockHint:       command.NewUnlockHintHandler(store, nil, clock, log, command.DefaultUnlockHintHandlerConfig()),
		GetSnapshot:      query.NewGetProgressionSnapshotHandler(store, nil, nil, clock, log),
		GetLeaderboard:   query.NewGetLeaderboardHandler(store, nil, nil, clock, time.UTC, log),
		HealthChecker:    health,
		Logger:           log,
	})
	return &testAPI{store: store, handler: srv.Handler()}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (a *testAPI) signup(t *testing.T, id string) {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/api/v1/students", `{"student_id":"`+id+`","display_name":"Kid"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_CompletionFlow(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "s1")

	rec, env := api.do(t, http.MethodPost, "/api/v1/students/s1/completions",
		`{"activity_id":"lesson-a","passed":true,"time_spent_seconds":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var result command.RecordCompletionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, int64(10), result.CoinsEarned)
	assert.Equal(t, int64(50), result.XPEarned)
	assert.Equal(t, 1, result.Streak)

	rec, env = api.do(t, http.MethodGet, "/api/v1/students/s1/progression", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap progression.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(10), snap.Coins)
	assert.Equal(t, int64(50), snap.XP)
	assert.Equal(t, 1, snap.CompletedActivities)

	rec, env = api.do(t, http.MethodGet, "/api/v1/leaderboard?metric=coins&student_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var board query.GetLeaderboardResult
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 1, board.StudentRank)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"insufficient funds", http.MethodPost, "/api/v1/students/s1/cosmetics/avatar-cat/purchase", "", http.StatusPaymentRequired, "insufficient_funds"},
		{"unknown cosmetic", http.MethodPost, "/api/v1/students/s1/cosmetics/nope/purchase", "", http.StatusNotFound, "not_found"},
		{"unknown student", http.MethodGet, "/api/v1/students/ghost/progression", "", http.StatusNotFound, "not_found"},
		{"unknown activity", http.MethodPost, "/api/v1/students/s1/completions", `{"activity_id":"nope","passed":true}`, http.StatusNotFound, "not_found"},
		{"malformed body", http.MethodPost, "/api/v1/students/s1/completions", `{"activity_id":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/api/v1/students/s1/completions", `{"activity":"lesson-a"}`, http.StatusBadRequest, "invalid_request"},
		{"missing activity", http.MethodPost, "/api/v1/students/s1/completions", `{"passed":true}`, http.StatusBadRequest, "invalid_request"},
		{"duplicate signup", http.MethodPost, "/api/v1/students", `{"student_id":"s1"}`, http.StatusConflict, "already_exists"},
		{"bad metric", http.MethodGet, "/api/v1/leaderboard?metric=karma", "", http.StatusBadRequest, "invalid_request"},
		{"bad limit", http.MethodGet, "/api/v1/leaderboard?limit=ten", "", http.StatusBadRequest, "invalid_request"},
		{"hint out of order", http.MethodPost, "/api/v1/students/s1/lessons/lesson-a/hints", `{"level":3}`, http.StatusConflict, "hint_out_of_order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.signup(t, "s1")

			rec, env := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestServer_LevelTooLow(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "s1")
	_, _ = api.do(t, http.MethodPost, "/api/v1/students/s1/completions", `{"activity_id":"lesson-a","passed":true}`)

	rec, env := api.do(t, http.MethodPost, "/api/v1/students/s1/cosmetics/theme-pro/purchase", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "level_too_low", env.Error.Code)
}

func TestServer_HintsRunOut(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "s1")
	require.NoError(t, api.store.WithTx(context.Background(), func(tx progression.Tx) error {
		st, err := tx.LockStudent(context.Background(), "s1")
		if err != nil {
			return err
		}
		st.Coins = 100
		return tx.SaveStudent(context.Background(), st)
	}))

	for level := 1; level <= progression.MaxHintLevel; level++ {
		rec, env := api.do(t, http.MethodPost, "/api/v1/students/s1/lessons/lesson-a/hints", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res command.UnlockHintResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, level, res.Level)
	}

	rec, env := api.do(t, http.MethodPost, "/api/v1/students/s1/lessons/lesson-a/hints", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_more_hints", env.Error.Code)
}

func TestServer_PersistenceFailure(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "s1")
	api.store.FailOn(memory.OpCommit, errors.New("connection reset"), 0)

	rec, env := api.do(t, http.MethodPost, "/api/v1/students/s1/completions", `{"activity_id":"lesson-a","passed":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "persistence_error", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "connection reset")
}

func TestServer_HealthAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-42", env.RequestID)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "store")
}

func TestServer_GeneratesRequestID(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(t, http.MethodGet, "/live", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{progression.ErrInsufficientFunds, http.StatusPaymentRequired},
		{progression.ErrLevelTooLow, http.StatusForbidden},
		{progression.ErrNoMoreHints, http.StatusConflict},
		{progression.ErrInvalidActivity, http.StatusNotFound},
		{progression.ErrStudentNotFound, http.StatusNotFound},
		{progression.ErrInvalidStudentID, http.StatusBadRequest},
		{progression.ErrPersistence.Wrap(errors.New("boom")), http.StatusServiceUnavailable},
		{progression.ErrCorruptState, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, _ := errorStatus(tt.err)
			assert.Equal(t, tt.code, code)
		})
	}
}
