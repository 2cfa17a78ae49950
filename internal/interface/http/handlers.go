package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/pkg/logger"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, HealthStatus{Healthy: true, Timestamp: time.Now().UTC(), Version: s.config.Version})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// handleStatistics handles GET /api/v1/users/{userID}/statistics
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Statistics == nil {
		writeNotConfigured(w, r)
		return
	}
	dashboard, err := s.deps.Statistics.Handle(r.Context(), userIDFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dashboard)
}

type activityRequest struct {
	Kind string `json:"kind"`
}

// handleActivity handles POST /api/v1/users/{userID}/activity. Validation
// runs in the background; the response is 202 as soon as it is scheduled.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activity == nil {
		writeNotConfigured(w, r)
		return
	}
	userID := userIDFrom(r)

	var req activityRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind := activity.EventKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "kind is required")
		return
	}

	if err := s.deps.Activity.Handle(r.Context(), userID, kind); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	logger.FromContext(r.Context()).Debug("activity accepted",
		logger.UserID(userID), logger.EventKind(string(kind)))
	writeJSON(w, r, http.StatusAccepted, map[string]string{"user_id": userID, "kind": string(kind)})
}

type validationResult struct {
	AchievementID string `json:"achievement_id"`
	Progress      int    `json:"progress"`
	Unlocked      bool   `json:"unlocked"`
	Error         string `json:"error,omitempty"`
}

// handleValidate handles POST /api/v1/users/{userID}/achievements/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recompute == nil {
		writeNotConfigured(w, r)
		return
	}
	results, err := s.deps.Recompute.Recompute(r.Context(), userIDFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]validationResult, 0, len(results))
	for _, res := range results {
		v := validationResult{AchievementID: res.AchievementID, Progress: res.Progress, Unlocked: res.WasUnlocked}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		out = append(out, v)
	}
	writeJSON(w, r, http.StatusOK, out)
}

type dailyGoalRequest struct {
	Goal *int `json:"goal"`
}

type streakResponse struct {
	UserID         string `json:"user_id"`
	CurrentStreak  int    `json:"current_streak"`
	BestStreak     int    `json:"best_streak"`
	DailyGoal      int    `json:"daily_goal"`
	LastStreakDate string `json:"last_streak_date,omitempty"`
}

// handleDailyGoal handles PUT /api/v1/users/{userID}/daily-goal
func (s *Server) handleDailyGoal(w http.ResponseWriter, r *http.Request) {
	if s.deps.DailyGoal == nil {
		writeNotConfigured(w, r)
		return
	}

	var req dailyGoalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Goal == nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "goal is required")
		return
	}

	state, err := s.deps.DailyGoal.UpdateDailyGoal(r.Context(), userIDFrom(r), *req.Goal)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := streakResponse{
		UserID:        state.UserID,
		CurrentStreak: state.CurrentStreak,
		BestStreak:    state.BestStreak,
		DailyGoal:     state.DailyGoal,
	}
	if state.LastStreakDate != nil {
		resp.LastStreakDate = state.LastStreakDate.Format(timeutil.DateLayout)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func userIDFrom(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["userID"])
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return false
	}
	return true
}

func writeNotConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "endpoint not configured")
}
