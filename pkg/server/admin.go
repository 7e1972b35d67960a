package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleStats serves the full monitoring snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Stats())
}

type keyStatsResponse struct {
	Found bool `json:"found"`
	Stats any  `json:"stats,omitempty"`
}

func (s *Server) handleIPStats(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "query parameter ip is required")
		return
	}
	stats, ok := s.tracker.IPStats(ip)
	if !ok {
		writeJSON(w, http.StatusOK, keyStatsResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, keyStatsResponse{Found: true, Stats: stats})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "query parameter user is required")
		return
	}
	stats, ok := s.tracker.UserStats(user)
	if !ok {
		writeJSON(w, http.StatusOK, keyStatsResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, keyStatsResponse{Found: true, Stats: stats})
}

func (s *Server) handleToolStats(w http.ResponseWriter, r *http.Request) {
	tool := r.URL.Query().Get("tool")
	if tool == "" {
		writeError(w, http.StatusBadRequest, "query parameter tool is required")
		return
	}
	stats, ok := s.tracker.ToolStats(tool)
	if !ok {
		writeJSON(w, http.StatusOK, keyStatsResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, keyStatsResponse{Found: true, Stats: stats})
}

type blockRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "field ip is required")
		return
	}
	s.tracker.BlockIP(req.IP, req.Reason)
	s.logger.Info("ip blocked by admin", "ip", req.IP, "reason", req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked", "ip": req.IP})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "field ip is required")
		return
	}
	s.tracker.UnblockIP(req.IP)
	s.logger.Info("ip unblocked by admin", "ip", req.IP)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked", "ip": req.IP})
}

type tierRequest struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Tier == "" {
		writeError(w, http.StatusBadRequest, "fields user_id and tier are required")
		return
	}
	if err := s.tracker.SetUserTier(req.UserID, req.Tier); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("user tier assigned", "user", req.UserID, "tier", req.Tier)
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned", "user_id": req.UserID, "tier": req.Tier})
}

type toolLimitsRequest struct {
	Tool           string `json:"tool"`
	PerMinute      int    `json:"per_minute"`
	PerHour        int    `json:"per_hour"`
	Burst          int    `json:"burst"`
	PenaltySeconds int    `json:"penalty_seconds"`
}

func (s *Server) handleSetToolLimits(w http.ResponseWriter, r *http.Request) {
	var req toolLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "field tool is required")
		return
	}
	rule := rules.LimitRule{
		PerMinute:      req.PerMinute,
		PerHour:        req.PerHour,
		Burst:          req.Burst,
		PenaltySeconds: req.PenaltySeconds,
	}
	if err := s.tracker.SetToolLimits(req.Tool, rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("tool limits set", "tool", req.Tool, "per_minute", req.PerMinute, "per_hour", req.PerHour)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "tool": req.Tool})
}

// handleAuditRecent serves the most recent audit decisions.
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit trail is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// Flush first so just-made decisions are visible.
	if err := s.auditStore.Flush(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "audit flush failed: "+err.Error())
		return
	}
	decisions, err := s.auditStore.Recent(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions, "count": len(decisions)})
}
