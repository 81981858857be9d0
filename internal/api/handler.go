// Package api exposes the search pipeline over a small JSON HTTP surface.
// It is the contract shim for the rendering layer, not an admin panel:
// exactly zero or one result record per search, never a page of candidates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/velmark/mailsearch/internal/database"
	"github.com/velmark/mailsearch/internal/imapsearch"
	"github.com/velmark/mailsearch/internal/search"
	"github.com/velmark/mailsearch/internal/tokenstore"
	"github.com/velmark/mailsearch/pkg/models"
)

// Searcher is the orchestrator surface the handler drives.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*models.ParsedMail, error)
	SearchPublic(ctx context.Context, serviceID int64, address string) (*models.ParsedMail, error)
	RawLookup(ctx context.Context, messageID string) ([]byte, error)
}

// UserSource loads requesters for authenticated searches.
type UserSource interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Handler serves the search endpoints.
type Handler struct {
	orchestrator Searcher
	sessions     tokenstore.Store
	users        UserSource
	logger       *slog.Logger
}

// NewHandler creates an API handler.
func NewHandler(orchestrator Searcher, sessions tokenstore.Store, users UserSource, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		users:        users,
		logger:       logger.With("component", "api"),
	}
}

// Register attaches all routes to a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("POST /public/search", h.handlePublicSearch)
	mux.HandleFunc("GET /raw", h.handleRaw)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

type searchRequest struct {
	ServiceID int64  `json:"service_id"`
	Address   string `json:"address"`
}

type searchResponse struct {
	Found  bool               `json:"found"`
	Result *models.ParsedMail `json:"result,omitempty"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSearchRequest(w, r)
	if !ok {
		return
	}

	requester, err := h.requesterFromToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	result, err := h.orchestrator.Search(r.Context(), search.Request{
		ServiceID: req.ServiceID,
		Address:   req.Address,
		Requester: requester,
	})
	if err != nil {
		h.logger.Error("search failed", "error", err, "service_id", req.ServiceID)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Found: result != nil, Result: result})
}

func (h *Handler) handlePublicSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSearchRequest(w, r)
	if !ok {
		return
	}

	result, err := h.orchestrator.SearchPublic(r.Context(), req.ServiceID, req.Address)
	if err != nil {
		h.logger.Error("public search failed", "error", err, "service_id", req.ServiceID)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Found: result != nil, Result: result})
}

func (h *Handler) handleRaw(w http.ResponseWriter, r *http.Request) {
	messageID := r.URL.Query().Get("message_id")

	raw, err := h.orchestrator.RawLookup(r.Context(), messageID)
	if errors.Is(err, imapsearch.ErrInvalidMessageID) {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err != nil {
		h.logger.Error("raw lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decodeSearchRequest(w http.ResponseWriter, r *http.Request) (*searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.ServiceID == 0 || req.Address == "" {
		writeError(w, http.StatusBadRequest, "service_id and address are required")
		return nil, false
	}
	return &req, true
}

// requesterFromToken resolves the bearer session token into a user. No
// token means an anonymous search.
func (h *Handler) requesterFromToken(r *http.Request) (*models.User, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, nil
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || token == "" {
		return nil, errors.New("malformed authorization header")
	}

	userID, ok, err := h.sessions.Get(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("unknown or expired token")
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, errors.New("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errors.New("user disabled")
	}
	return user, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": strconv.Itoa(status)})
}
