package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peopledesk/peopledesk/internal/server/models"
	"github.com/peopledesk/peopledesk/internal/server/ratelimit"
	"github.com/peopledesk/peopledesk/internal/server/storage"
	"github.com/peopledesk/peopledesk/internal/server/token"
	"github.com/peopledesk/peopledesk/internal/server/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ctxKey int

const userIDKey ctxKey = 0

type Server struct {
	Store   *storage.Store
	Tokens  *token.Manager
	Hub     *ws.Hub
	Limiter *ratelimit.RateLimiter
	Log     *zap.SugaredLogger
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/session", s.handleSession).Methods(http.MethodGet)
	authed.HandleFunc("/chat/sidebar", s.handleSidebar).Methods(http.MethodGet)
	authed.HandleFunc("/chat/messages/{userID:[0-9]+}", s.handleHistory).Methods(http.MethodGet)
	authed.HandleFunc("/chat/read/{userID:[0-9]+}", s.handleMarkRead).Methods(http.MethodPut)
	authed.HandleFunc("/notifications/counts", s.handleNotificationCounts).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/read-all", s.handleNotificationsReadAll).Methods(http.MethodPut)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.Tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func requestUser(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.GetClientIP(r)
	if !s.Limiter.CanAuth(ip) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Please wait a minute.")
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.Store.GetUserByEmail(req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.Log.Errorw("lookup user", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tok, err := s.Tokens.Issue(user.ID)
	if err != nil {
		s.Log.Errorw("issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: tok, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Store.SetOnline(requestUser(r), false)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	// requireAuth already validated the token.
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	convs, err := s.Store.GetSidebar(userID)
	if err != nil {
		s.Log.Errorw("load sidebar", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load conversations")
		return
	}

	// Live connection state beats the persisted flag.
	for i := range convs {
		if s.Hub.IsOnline(convs[i].OtherUserID) {
			convs[i].Online = true
		}
	}
	if convs == nil {
		convs = []models.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	otherID, _ := strconv.Atoi(mux.Vars(r)["userID"])

	msgs, err := s.Store.GetConversation(userID, otherID, 100)
	if err != nil {
		s.Log.Errorw("load history", "user", userID, "other", otherID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	otherID, _ := strconv.Atoi(mux.Vars(r)["userID"])

	n, err := s.Store.MarkConversationRead(userID, otherID)
	if err != nil {
		s.Log.Errorw("mark read", "user", userID, "other", otherID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleNotificationCounts(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	counts, err := s.Store.NotificationCounts(userID)
	if err != nil {
		s.Log.Errorw("notification counts", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load notifications")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if err := s.Store.MarkAllNotificationsRead(userID); err != nil {
		s.Log.Errorw("mark notifications read", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not update notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket authenticates via the token query parameter, since
// browsers cannot set headers on a WebSocket upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
		return
	}
	if _, err := s.Store.GetUserByID(userID); err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	clientIP := ratelimit.GetClientIP(r)
	if !s.Limiter.CanConnect(clientIP) {
		writeError(w, http.StatusTooManyRequests, "Too many connections from your IP")
		s.Log.Warnw("rate limited connection", "ip", clientIP)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorw("upgrade failed", "err", err)
		return
	}

	s.Limiter.AddConnection(clientIP)

	client := &ws.Client{
		Hub:    s.Hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
	s.Hub.Register(client)

	go func() {
		defer s.Limiter.RemoveConnection(clientIP)
		client.WritePump()
	}()
	go client.ReadPump()
}
