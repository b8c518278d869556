package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/QsSama-W/nimingChat/internal/auth"
	"github.com/QsSama-W/nimingChat/internal/chat"
	"github.com/QsSama-W/nimingChat/internal/config"
	"github.com/QsSama-W/nimingChat/internal/delivery/ws"
	"github.com/QsSama-W/nimingChat/internal/domain"
	"github.com/QsSama-W/nimingChat/internal/middleware"
	"github.com/QsSama-W/nimingChat/internal/roomkey"
	"github.com/QsSama-W/nimingChat/internal/store"
)

const (
	msgLocked        = "密码错误次数过多，已被临时锁定"
	msgWrongPassword = "密码错误，请重试"
	msgBadRequest    = "请求格式错误"

	maxLoginBody = 4096
)

// AuditLog records login attempts. *store.Store satisfies it.
type AuditLog interface {
	RecordAttempt(ctx context.Context, addr string, outcome store.Outcome, at time.Time) error
	RecentFailures(ctx context.Context, addr string, since time.Time) (int, error)
}

// Deps is everything the HTTP layer needs. Audit may be nil.
type Deps struct {
	Config     *config.Config
	Sessions   *auth.SessionStore
	Throttle   *auth.Throttle
	Hub        *ws.Hub
	Dispatcher *chat.Dispatcher
	Audit      AuditLog
	Logger     *slog.Logger
}

type Handler struct {
	cfg          *config.Config
	sessions     *auth.SessionStore
	throttle     *auth.Throttle
	hub          *ws.Hub
	dispatcher   *chat.Dispatcher
	audit        AuditLog
	log          *slog.Logger
	passwordHash []byte
	upgrader     websocket.Upgrader
	now          func() time.Time
}

// NewHandler validates the configured password and builds the handler.
// A plain password is hashed once here so requests only ever compare
// against a bcrypt hash.
func NewHandler(d Deps) (*Handler, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	var hash []byte
	if d.Config.PasswordHash != "" {
		hash = []byte(d.Config.PasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("CHAT_PASSWORD_HASH: %w", err)
		}
	} else {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(d.Config.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	h := &Handler{
		cfg:          d.Config,
		sessions:     d.Sessions,
		throttle:     d.Throttle,
		hub:          d.Hub,
		dispatcher:   d.Dispatcher,
		audit:        d.Audit,
		log:          d.Logger,
		passwordHash: hash,
		now:          time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.isOriginAllowed(r.Header.Get("Origin"))
		},
	}
	return h, nil
}

// isOriginAllowed checks if the origin is in the allowed list
func (h *Handler) isOriginAllowed(origin string) bool {
	// Empty origin is allowed (same-origin requests)
	if origin == "" {
		return true
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	Locked            *bool  `json:"locked,omitempty"`
	RemainingTime     *int   `json:"remaining_time,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

func failure(message string, st auth.Status) loginResponse {
	return loginResponse{
		Message:           message,
		Locked:            &st.Locked,
		RemainingTime:     &st.RemainingSeconds,
		RemainingAttempts: &st.RemainingAttempts,
	}
}

// HandleCheckLock reports the caller's login lock status.
func (h *Handler) HandleCheckLock(w http.ResponseWriter, r *http.Request) {
	addr := middleware.ClientIP(r, h.cfg.TrustProxyHeaders)
	writeJSON(w, http.StatusOK, h.throttle.Check(addr, h.now()))
}

// HandleLogin checks the shared password. The lock is consulted before the
// password, so a locked address cannot log in even with the right one.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	addr := middleware.ClientIP(r, h.cfg.TrustProxyHeaders)
	now := h.now()

	if st := h.throttle.Check(addr, now); st.Locked {
		h.recordAudit(r.Context(), addr, store.OutcomeLocked, now)
		st.RemainingAttempts = 0
		writeJSON(w, http.StatusOK, failure(msgLocked, st))
		return
	}

	var in loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Message: msgBadRequest})
		return
	}

	if bcrypt.CompareHashAndPassword(h.passwordHash, []byte(in.Password)) != nil {
		h.throttle.RecordFailure(addr, now)
		h.recordAudit(r.Context(), addr, store.OutcomeFailure, now)
		h.log.Info("login failed", "addr", addr)
		st := h.throttle.Check(addr, now)
		if st.Locked {
			h.logLockout(r.Context(), addr, now)
		}
		writeJSON(w, http.StatusOK, failure(msgWrongPassword, st))
		return
	}

	h.throttle.RecordSuccess(addr, now)

	// a fresh session on every login; any previous one is dropped
	if old, err := r.Cookie(domain.SessionCookie); err == nil {
		h.sessions.Revoke(old.Value)
	}
	token, err := h.sessions.Create(addr)
	if err != nil {
		h.log.Error("create session", "err", err)
		writeJSON(w, http.StatusInternalServerError, loginResponse{Message: "internal error"})
		return
	}

	h.recordAudit(r.Context(), addr, store.OutcomeSuccess, now)
	h.setAuthCookie(w, token, now)
	writeJSON(w, http.StatusOK, loginResponse{Success: true})
}

// HandleLogout drops the caller's session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(domain.SessionCookie); err == nil {
		h.sessions.Revoke(c.Value)
	}
	h.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, loginResponse{Success: true})
}

// HandleWebSocket upgrades to a websocket. The session cookie is captured
// here; whether it is still valid is decided per event.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(domain.SessionCookie); err == nil {
		token = c.Value
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	go ws.NewClient(h.hub, h.dispatcher, conn, token).Serve()
}

type healthResponse struct {
	Status       string     `json:"status"`
	Rooms        int        `json:"rooms"`
	PublicOnline int        `json:"public_online"`
	Connections  int        `json:"connections"`
	Sessions     int        `json:"sessions"`
	Dropped      uint64     `json:"dropped"`
	Events       chat.Stats `json:"events"`
}

// HandleHealth reports liveness and a few gauges.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dir := h.dispatcher.Directory()
	public, _ := dir.OnlineCount(roomkey.PublicRoom)
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Rooms:        dir.RoomCount(),
		PublicOnline: public,
		Connections:  h.hub.ClientCount(),
		Sessions:     h.sessions.Count(),
		Dropped:      h.hub.Dropped(),
		Events:       h.dispatcher.Stats(),
	})
}

func (h *Handler) recordAudit(ctx context.Context, addr string, outcome store.Outcome, at time.Time) {
	if h.audit == nil {
		return
	}
	if err := h.audit.RecordAttempt(ctx, addr, outcome, at); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("audit write failed", "err", err)
	}
}

// logLockout reports a fresh lock. The audit count spans restarts, unlike
// the in-memory throttle.
func (h *Handler) logLockout(ctx context.Context, addr string, now time.Time) {
	if h.audit == nil {
		h.log.Warn("login locked", "addr", addr)
		return
	}
	n, err := h.audit.RecentFailures(ctx, addr, now.Add(-h.cfg.LoginWindow))
	if err != nil {
		h.log.Warn("login locked", "addr", addr, "audit_err", err)
		return
	}
	h.log.Warn("login locked", "addr", addr, "recent_failures", n)
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     domain.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.CookieSecure,
		Expires:  now.Add(h.sessions.TTL()),
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     domain.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.CookieSecure,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
