package relay

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/pkg/utils"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	// Per-sender insert budget: sustained 5 messages/s with a burst of 10.
	insertRate  = 5
	insertBurst = 10
)

// Server is the relay's HTTP surface: REST for history, profiles, membership
// and inserts, plus the websocket endpoint feeding the hub.
type Server struct {
	store    *Store
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires a server around an open store.
func NewServer(store *Store, log zerolog.Logger) *Server {
	return &Server{
		store: store,
		hub:   NewHub(log),
		log:   log.With().Str("component", "relay").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		limiters: map[string]*rate.Limiter{},
	}
}

// Router builds the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/channels", s.handleListChannels)
		api.Post("/channels", s.handleCreateChannel)
		api.Post("/channels/{channelID}/join", s.handleJoin)
		api.Post("/channels/{channelID}/leave", s.handleLeave)
		api.Get("/channels/{channelID}/members/{userID}", s.handleMember)
		api.Get("/channels/{channelID}/messages", s.handlePage)
		api.Post("/channels/{channelID}/messages", s.handleInsert)
		api.Put("/profiles/{userID}", s.handleUpsertProfile)
		api.Post("/profiles/resolve", s.handleResolveProfiles)
		api.Get("/users/{userID}/history", s.handleUserHistory)
		api.Get("/ws", s.handleWebSocket)
	})
	return r
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.Channels(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list channels failed")
		utils.RespondError(w, http.StatusInternalServerError, "list channels failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"isPrivate"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		utils.RespondError(w, http.StatusBadRequest, "channel name is required")
		return
	}
	ch, err := s.store.CreateChannel(r.Context(), chat.Channel{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Private:     req.IsPrivate,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("create channel failed")
		utils.RespondError(w, http.StatusInternalServerError, "create channel failed")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	var req struct {
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	exists, err := s.store.ChannelExists(r.Context(), channelID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "membership write failed")
		return
	}
	if !exists {
		utils.RespondError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err := s.store.Join(r.Context(), channelID, req.UserID); err != nil {
		s.log.Error().Err(err).Msg("join failed")
		utils.RespondError(w, http.StatusInternalServerError, "membership write failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"member": true})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	var req struct {
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := s.store.Leave(r.Context(), channelID, req.UserID); err != nil {
		s.log.Error().Err(err).Msg("leave failed")
		utils.RespondError(w, http.StatusInternalServerError, "membership write failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"member": false})
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.store.Member(r.Context(), chi.URLParam(r, "channelID"), chi.URLParam(r, "userID"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "membership check failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"member": member})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageLimit {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = &t
	}

	page, err := s.store.Page(r.Context(), channelID, before, limit)
	if err != nil {
		s.log.Error().Err(err).Str("channel", channelID).Msg("page fetch failed")
		utils.RespondError(w, http.StatusInternalServerError, "page fetch failed")
		return
	}
	if page == nil {
		page = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, page)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	var req struct {
		AuthorID string `json:"authorId"`
		Content  string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.AuthorID == "" || strings.TrimSpace(req.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "authorId and content are required")
		return
	}

	if !s.limiter(req.AuthorID).Allow() {
		utils.RespondError(w, http.StatusTooManyRequests, "slow down")
		return
	}

	member, err := s.store.Member(r.Context(), channelID, req.AuthorID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "membership check failed")
		return
	}
	if !member {
		utils.RespondError(w, http.StatusForbidden, "not a channel member")
		return
	}

	m, err := s.store.InsertMessage(r.Context(), channelID, req.AuthorID, strings.TrimSpace(req.Content))
	if err != nil {
		s.log.Error().Err(err).Str("channel", channelID).Msg("insert failed")
		utils.RespondError(w, http.StatusInternalServerError, "insert failed")
		return
	}

	// Authoritative row fan-out; author display is resolved client-side.
	s.hub.PublishRow(m)
	utils.RespondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p chat.AuthorProfile
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid profile")
		return
	}
	p.ID = chi.URLParam(r, "userID")
	if err := s.store.UpsertProfile(r.Context(), p); err != nil {
		s.log.Error().Err(err).Msg("profile upsert failed")
		utils.RespondError(w, http.StatusInternalServerError, "profile upsert failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (s *Server) handleResolveProfiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid id list")
		return
	}
	profiles, err := s.store.Profiles(r.Context(), req.IDs)
	if err != nil {
		s.log.Error().Err(err).Msg("profile resolve failed")
		utils.RespondError(w, http.StatusInternalServerError, "profile resolve failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > maxPageLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.UserHistory(r.Context(), userID, offset, limit)
	if err != nil {
		s.log.Error().Err(err).Str("user", userID).Msg("user history failed")
		utils.RespondError(w, http.StatusInternalServerError, "user history failed")
		return
	}
	if entries == nil {
		entries = []chat.HistoryEntry{}
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newConn(ws, s.hub, s.log)
	go c.writePump()
	go c.readPump()
}

// limiter returns the per-sender insert limiter, creating it on first use.
func (s *Server) limiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(insertRate), insertBurst)
		s.limiters[userID] = l
	}
	return l
}
