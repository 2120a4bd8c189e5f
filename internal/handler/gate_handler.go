package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"access-gate/internal/model"
	"access-gate/internal/service"
	"access-gate/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GateHandler serves the code, session, and admin endpoints.
type GateHandler struct {
	gate   *service.GateService
	logger *zap.Logger
}

func NewGateHandler(gate *service.GateService, logger *zap.Logger) *GateHandler {
	return &GateHandler{
		gate:   gate,
		logger: logger,
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type sendCodeRequest struct {
	Contact          string `json:"contact"`
	ContactType      string `json:"contact_type"`
	ContactTypeCamel string `json:"contactType"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Site             string `json:"site"`
}

func (r sendCodeRequest) contactType() model.ContactType {
	if r.ContactType != "" {
		return model.ContactType(r.ContactType)
	}
	return model.ContactType(r.ContactTypeCamel)
}

// sendCodeResponse carries the masked contact under both spellings.
type sendCodeResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	MaskedContact      string `json:"maskedContact"`
	MaskedContactSnake string `json:"masked_contact"`
	ExpiresIn          int    `json:"expires_in"`
}

type verifyCodeRequest struct {
	Code    string `json:"code"`
	Contact string `json:"contact"`
	Site    string `json:"site"`
}

type verifyCodeResponse struct {
	Success     bool   `json:"success"`
	Token       string `json:"token"`
	ExpiresIn   int    `json:"expires_in"`
	IsAdmin     bool   `json:"is_admin"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type checkSessionResponse struct {
	Valid         bool   `json:"valid"`
	RemainingTime int64  `json:"remaining_time"`
	IsAdmin       bool   `json:"is_admin"`
	Error         string `json:"error,omitempty"`
}

type logVisitRequest struct {
	Token string `json:"token"`
	Site  string `json:"site"`
}

// RegisterRoutes mounts the gate endpoints on router.
func (h *GateHandler) RegisterRoutes(router chi.Router) {
	router.Route("/gate", func(r chi.Router) {
		r.Post("/send-code", h.SendCode)
		r.Post("/send-code-email", h.sendCodeAs(model.ContactTypeEmail))
		r.Post("/send-code-sms", h.sendCodeAs(model.ContactTypeSMS))
		r.Post("/verify-code", h.VerifyCode)
		r.Get("/check-session/{token}/{site}", h.CheckSession)
		r.Post("/log-visit", h.LogVisit)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/access-logs", h.AccessLogs)
			r.Post("/sites", h.Sites)
			r.Post("/get-sites", h.Sites)
			r.Post("/stats", h.Stats)
		})
	})
}

// SendCode issues a code for {contact, contactType, site}. contact_type is
// accepted too.
func (h *GateHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	h.issue(w, r, req.Contact, req.contactType(), req.Site)
}

// sendCodeAs serves the per-channel forms {email, site} and {phone, site}.
func (h *GateHandler) sendCodeAs(t model.ContactType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
			return
		}
		contact := req.Email
		if t == model.ContactTypeSMS {
			contact = req.Phone
		}
		h.issue(w, r, contact, t, req.Site)
	}
}

func (h *GateHandler) issue(w http.ResponseWriter, r *http.Request, contact string, t model.ContactType, site string) {
	startTime := time.Now()

	res, err := h.gate.Issue(r.Context(), service.IssueRequest{
		Contact:     contact,
		ContactType: t,
		Site:        site,
		IPAddress:   clientIP(r),
	})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Failed to send code"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, sendCodeResponse{
		Success:            true,
		Message:            "Code sent",
		MaskedContact:      res.MaskedContact,
		MaskedContactSnake: res.MaskedContact,
		ExpiresIn:          res.ExpiresIn,
	})
	h.logger.Debug("Code issued via HTTP",
		util.String("site", site),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *GateHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	res, err := h.gate.Verify(r.Context(), service.VerifyRequest{
		Code:      req.Code,
		Contact:   req.Contact,
		Site:      req.Site,
		IPAddress: clientIP(r),
	})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Verification failed"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, verifyCodeResponse{
		Success:     true,
		Token:       res.Token,
		ExpiresIn:   res.ExpiresIn,
		IsAdmin:     res.IsAdmin,
		RedirectURL: res.RedirectURL,
	})
}

func (h *GateHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	site := chi.URLParam(r, "site")

	status, err := h.gate.Validate(r.Context(), token, site)
	if err != nil {
		h.logger.Error("Session check failed", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusInternalServerError, checkSessionResponse{Error: "Session check failed"})
		return
	}
	if !status.Valid {
		h.respondWithJSON(w, http.StatusUnauthorized, checkSessionResponse{Error: capitalize(status.Reason)})
		return
	}

	h.respondWithJSON(w, http.StatusOK, checkSessionResponse{
		Valid:         true,
		RemainingTime: status.RemainingMs,
		IsAdmin:       status.IsAdmin,
	})
}

func (h *GateHandler) LogVisit(w http.ResponseWriter, r *http.Request) {
	var req logVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	res, err := h.gate.LogVisit(r.Context(), service.VisitRequest{
		Token:     req.Token,
		Site:      req.Site,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, publicMessage(err, "Failed to log visit"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"browser": res.Browser,
		"os":      res.OS,
	})
}

// respondWithJSON sends a JSON response
func (h *GateHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError logs the full error and sends only message to the client.
func (h *GateHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorBody{Error: message})
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *GateHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCode), errors.Is(err, service.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides server-side detail. Client errors carry their sentinel
// text only, so a wrong, expired, and used code read the same.
func publicMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return capitalize(err.Error())
	case errors.Is(err, service.ErrInvalidCode):
		return capitalize(service.ErrInvalidCode.Error())
	case errors.Is(err, service.ErrSessionInvalid):
		return capitalize(service.ErrSessionInvalid.Error())
	case errors.Is(err, service.ErrUnauthorized):
		return capitalize(service.ErrUnauthorized.Error())
	default:
		return fallback
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// clientIP reads the address set by middleware.RealIP, dropping any port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
