package handler

import (
	"encoding/json"
	"net/http"

	"access-gate/internal/util"
)

type adminRequest struct {
	Token        string `json:"token"`
	AdminContact string `json:"admin_contact"`
}

func (h *GateHandler) decodeAdmin(w http.ResponseWriter, r *http.Request) (*adminRequest, bool) {
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return nil, false
	}
	return &req, true
}

// AccessLogs returns the recent code log with contacts and IPs decrypted.
func (h *GateHandler) AccessLogs(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}

	logs, err := h.gate.FetchLogs(r.Context(), req.Token, req.AdminContact)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Failed to fetch logs"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"total_records": len(logs),
		"logs":          logs,
	})
	h.logger.Info("Admin access logs served", util.Int("records", len(logs)))
}

func (h *GateHandler) Sites(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}

	sites, err := h.gate.Sites(r.Context(), req.Token, req.AdminContact)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Failed to get sites"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"sites":   sites,
	})
}

func (h *GateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}

	stats, err := h.gate.Stats(r.Context(), req.Token, req.AdminContact)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Failed to fetch stats"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"total_requests":  stats.TotalRequests,
		"verified_access": stats.VerifiedAccess,
		"unique_visitors": stats.UniqueVisitors,
	})
}
