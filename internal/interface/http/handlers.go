package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/codequest-jr/progression-hub/internal/application/command"
	"github.com/codequest-jr/progression-hub/internal/application/query"
	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports the aggregated dependency checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createStudentRequest struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
}

type studentResponse struct {
	StudentID   string    `json:"student_id"`
	DisplayName string    `json:"display_name"`
	Coins       int64     `json:"coins"`
	XP          int64     `json:"xp"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleCreateStudent handles POST /api/v1/students
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.CreateStudent == nil {
		writeNotConfigured(w)
		return
	}

	var req createStudentRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	st, err := s.deps.CreateStudent.Handle(r.Context(), command.CreateStudentCommand{
		StudentID:   req.StudentID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, studentResponse{
		StudentID:   st.ID,
		DisplayName: st.DisplayName,
		Coins:       st.Coins,
		XP:          st.XP,
		Level:       st.Level,
		CreatedAt:   st.CreatedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type recordCompletionRequest struct {
	ActivityID       string `json:"activity_id"`
	Passed           bool   `json:"passed"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// handleRecordCompletion handles POST /api/v1/students/{id}/completions
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordCompletion == nil {
		writeNotConfigured(w)
		return
	}

	var req recordCompletionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.RecordCompletion.Handle(r.Context(), command.RecordCompletionCommand{
		StudentID:        r.PathValue("id"),
		ActivityID:       req.ActivityID,
		Passed:           req.Passed,
		TimeSpentSeconds: req.TimeSpentSeconds,
		CorrelationID:    getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handlePurchaseCosmetic handles POST /api/v1/students/{id}/cosmetics/{itemId}/purchase
func (s *Server) handlePurchaseCosmetic(w http.ResponseWriter, r *http.Request) {
	if s.deps.PurchaseCosmetic == nil {
		writeNotConfigured(w)
		return
	}

	result, err := s.deps.PurchaseCosmetic.Handle(r.Context(), command.PurchaseCosmeticCommand{
		StudentID:     r.PathValue("id"),
		CosmeticID:    r.PathValue("itemId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type unlockHintRequest struct {
	Level int `json:"level"`
}

// handleUnlockHint handles POST /api/v1/students/{id}/lessons/{lessonId}/hints
// The body is optional; without a level the next tier is sold.
func (s *Server) handleUnlockHint(w http.ResponseWriter, r *http.Request) {
	if s.deps.UnlockHint == nil {
		writeNotConfigured(w)
		return
	}

	var req unlockHintRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.UnlockHint.Handle(r.Context(), command.UnlockHintCommand{
		StudentID:     r.PathValue("id"),
		LessonID:      r.PathValue("lessonId"),
		Level:         req.Level,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetSnapshot handles GET /api/v1/students/{id}/progression
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetSnapshot == nil {
		writeNotConfigured(w)
		return
	}

	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
	snap, err := s.deps.GetSnapshot.Handle(r.Context(), query.GetProgressionSnapshotQuery{
		StudentID: r.PathValue("id"),
		SkipCache: fresh,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboard == nil {
		writeNotConfigured(w)
		return
	}

	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	params := r.URL.Query()
	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Metric:    progression.LeaderboardMetric(params.Get("metric")),
		Period:    progression.LeaderboardPeriod(params.Get("period")),
		Limit:     limit,
		StudentID: params.Get("student_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorStatus maps a domain error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, progression.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_error"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, progression.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, progression.ErrLevelTooLow):
		return http.StatusForbidden, "level_too_low"
	case errors.Is(err, progression.ErrNoMoreHints):
		return http.StatusConflict, "no_more_hints"
	case errors.Is(err, progression.ErrHintOutOfOrder):
		return http.StatusConflict, "hint_out_of_order"
	case errors.Is(err, progression.ErrStudentExists):
		return http.StatusConflict, "already_exists"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes the error response of a failed operation.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()

	switch status {
	case http.StatusServiceUnavailable:
		secs := int(math.Ceil(s.config.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		message = "Temporary storage failure, please retry"
		logger.FromContext(r.Context()).Warn("request failed", logger.String("path", r.URL.Path), logger.Err(err))
	case http.StatusInternalServerError:
		message = "An unexpected error occurred"
		logger.FromContext(r.Context()).Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
	}

	writeJSONError(w, status, code, message)
}

func writeNotConfigured(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Operation not configured")
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
// optional accepts an empty body.
func decodeBody(r *http.Request, dst interface{}, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("malformed JSON body: " + err.Error())
	}
	return nil
}
