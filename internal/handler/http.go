package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mintup-social/internal/domain"
	"github.com/mintup-social/internal/websocket"
)

// SocialService is the slice of the service layer the HTTP surface needs
type SocialService interface {
	CommunityLeaderboard(ctx context.Context, communityID string, now time.Time, topLimit, streakLimit int) (*domain.LeaderboardResult, error)
	RecordCheckIn(ctx context.Context, ci domain.CheckIn) error
	InitiateConnection(ctx context.Context, callerID, eventID, acceptorID string, now time.Time) (*domain.ConnectionInvite, error)
	ConfirmConnection(ctx context.Context, callerID, token string, now time.Time) (*domain.Connection, error)
	ConnectionStatus(ctx context.Context, eventID, userA, userB string, now time.Time) (domain.PairStatus, error)
	ConfirmedConnections(ctx context.Context, callerID, eventID string) ([]domain.ConnectedProfile, error)
}

// Handler provides HTTP handlers for the social-graph API
type Handler struct {
	service SocialService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service SocialService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// callerHeader carries the authenticated caller identity. Authentication
// itself (SIWF session validation) happens upstream; this service only trusts
// the identity the gateway forwards.
const callerHeader = "X-User-ID"

// callerID extracts the authenticated caller identity from the request
func callerID(r *http.Request) string {
	return r.Header.Get(callerHeader)
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/communities/{communityID}/leaderboard", h.GetLeaderboard)

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", h.InitiateConnection)
			r.Post("/confirm", h.ConfirmConnection)
		})

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Post("/checkins", h.RecordCheckIn)
			r.Get("/connections", h.ListConnections)
			r.Get("/connections/status", h.GetConnectionStatus)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps an error to its HTTP status by kind
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsUnauthenticated(err):
		h.writeError(w, http.StatusUnauthorized, err)
	case domain.IsPermissionDenied(err):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsInvalidArgument(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsConflict(err):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("internal error", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetLeaderboard returns a community's rankings
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")
	if communityID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	topLimit := 0
	streakLimit := 0
	if topStr := r.URL.Query().Get("top"); topStr != "" {
		if n, err := strconv.Atoi(topStr); err == nil {
			topLimit = n
		}
	}
	if streakStr := r.URL.Query().Get("streak"); streakStr != "" {
		if n, err := strconv.Atoi(streakStr); err == nil {
			streakLimit = n
		}
	}

	result, err := h.service.CommunityLeaderboard(r.Context(), communityID, time.Now(), topLimit, streakLimit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// checkInRequest is the body of a check-in submission
type checkInRequest struct {
	UserID string `json:"user_id"`
}

// RecordCheckIn records a verified check-in for a registration
func (h *Handler) RecordCheckIn(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	ci := domain.CheckIn{
		EventID:     eventID,
		UserID:      req.UserID,
		CheckedInAt: time.Now(),
	}
	if err := h.service.RecordCheckIn(r.Context(), ci); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "checked_in"})
}

// initiateRequest is the body of an initiate-connection call
type initiateRequest struct {
	EventID        string `json:"event_id"`
	AcceptorUserID string `json:"acceptor_user_id"`
}

// InitiateConnection starts a connection handshake for the caller
func (h *Handler) InitiateConnection(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.EventID == "" || req.AcceptorUserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	invite, err := h.service.InitiateConnection(r.Context(), callerID(r), req.EventID, req.AcceptorUserID, time.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    invite,
	})
}

// confirmRequest is the body of a confirm-connection call
type confirmRequest struct {
	ConnectionToken string `json:"connection_token"`
}

// confirmResponse mirrors what the mobile client expects after scanning
type confirmResponse struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
}

// ConfirmConnection redeems a connection token for the caller
func (h *Handler) ConfirmConnection(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionToken == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	conn, err := h.service.ConfirmConnection(r.Context(), callerID(r), req.ConnectionToken, time.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, confirmResponse{
		Success:      true,
		ConnectionID: conn.ID,
	})
}

// GetConnectionStatus returns the coarse pair status between the caller and
// another user at an event
func (h *Handler) GetConnectionStatus(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	otherID := r.URL.Query().Get("with")
	caller := callerID(r)
	if eventID == "" || otherID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	status, err := h.service.ConnectionStatus(r.Context(), eventID, caller, otherID, time.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": string(status)})
}

// ListConnections returns the caller's confirmed connections at an event
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profiles, err := h.service.ConfirmedConnections(r.Context(), callerID(r), eventID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, profiles)
}
