package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/auth/bearer"
	"coterie/cmd/internal/auth/session"
	"coterie/cmd/internal/chat"
	"coterie/cmd/internal/invite"
	"coterie/cmd/internal/storage"
)

// Handler wires the JSON API to the identity, session, chat and invite
// services. All collaborators are injected; the handler owns no storage.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	users    identity.Store
	sessions *session.Manager
	chats    *chat.Service
	invites  *invite.Service
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Manager, chats *chat.Service, invites *invite.Service) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil || chats == nil || invites == nil {
		return nil, errors.New("api: nil dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg = DefaultConfig()
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		chats:    chats,
		invites:  invites,
	}, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/whoami", h.handleWhoami)
	mux.HandleFunc("GET /auth/sessions", h.handleSessions)
	mux.HandleFunc("POST /auth/invites", h.handleInviteCreate)
	mux.HandleFunc("POST /chats/self", h.handleCreateSelfChat)
	mux.HandleFunc("POST /chats/private", h.handleCreatePrivateChat)
	mux.HandleFunc("GET /chats", h.handleListChats)
	mux.HandleFunc("POST /chats/{id}/messages", h.handleSendMessage)
	mux.HandleFunc("GET /chats/{id}/messages", h.handleListMessages)
}

// ---- auth ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	handle := identity.NormalizeHandle(req.Handle)

	// The invite is spent before the user exists, so a registration that
	// later fails validation burns a use. Callers see invite problems first.
	inv, err := h.invites.ConsumeCode(ctx, req.InviteCode, handle, now)
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrNotFound), errors.Is(err, invite.ErrNotActive):
			writeError(w, http.StatusForbidden, "invalid_invite", "invite code is not valid")
		case errors.Is(err, invite.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invite code is required")
		default:
			h.writeDomainError(w, "auth.register.invite", err)
		}
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		InvitedBy:   inv.CreatedBy,
		Now:         now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "handle_taken", "handle is already taken")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.writeDomainError(w, "auth.register.create_user", err)
		}
		return
	}

	selfChat, err := h.chats.CreateSelfChat(ctx, now, u.ID)
	if err != nil {
		h.writeDomainError(w, "auth.register.self_chat", err)
		return
	}

	tok, err := h.sessions.Login(ctx, now, u.Handle, req.Password)
	if err != nil {
		h.writeDomainError(w, "auth.register.login", err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:       toUserResponse(u),
		SelfChatID: selfChat.ID,
		Token:      tok,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	tok, err := h.sessions.Login(r.Context(), time.Now().UTC(), req.Handle, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case errors.Is(err, session.ErrLoginThrottled):
			writeError(w, http.StatusTooManyRequests, "throttled", "too many login attempts")
		default:
			h.writeDomainError(w, "auth.login", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tok, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	fresh, err := h.sessions.RefreshBearer(r.Context(), time.Now().UTC(), tok)
	if err != nil {
		h.writeAuthError(w, "auth.refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: fresh})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	if err := h.sessions.Logout(r.Context(), time.Now().UTC(), tok); err != nil {
		h.writeAuthError(w, "auth.logout", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rows, err := h.sessions.Sessions(r.Context(), u.ID)
	if err != nil {
		h.writeDomainError(w, "auth.sessions", err)
		return
	}

	out := make([]sessionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSessionResponse(row))
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

func (h *Handler) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createInviteRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "ttl must be a positive duration")
			return
		}
		ttl = d
	}

	inv, code, err := h.invites.CreateInvite(r.Context(), invite.CreateInput{
		CreatedBy: &u.ID,
		TTL:       ttl,
		MaxUses:   req.MaxUses,
		Note:      req.Note,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, invite.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid invite parameters")
			return
		}
		h.writeDomainError(w, "auth.invites.create", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInviteResponse(inv, code))
}

// ---- chats ----

func (h *Handler) handleCreateSelfChat(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	c, err := h.chats.CreateSelfChat(r.Context(), time.Now().UTC(), u.ID)
	if err != nil {
		h.writeDomainError(w, "chats.self", err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(c))
}

func (h *Handler) handleCreatePrivateChat(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createPrivateChatRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	c, err := h.chats.CreatePrivateChat(r.Context(), time.Now().UTC(), u.ID, req.RecipientHandle)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidParticipants):
			writeError(w, http.StatusBadRequest, "invalid_participants", "recipient is unknown or is you")
		case errors.Is(err, chat.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "chat_exists", "a chat with this user already exists")
		default:
			h.writeDomainError(w, "chats.private", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toChatResponse(c))
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	page := pageFromQuery(r)
	rows, err := h.chats.ListChats(r.Context(), u.ID, page)
	if err != nil {
		h.writeDomainError(w, "chats.list", err)
		return
	}

	out := make([]chatResponse, 0, len(rows))
	for _, c := range rows {
		out = append(out, toChatResponse(c))
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: out})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	m, err := h.chats.SendMessage(r.Context(), time.Now().UTC(), r.PathValue("id"), u.ID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "chat not found")
		case errors.Is(err, chat.ErrValidation):
			writeError(w, http.StatusBadRequest, "invalid_message", err.Error())
		default:
			h.writeDomainError(w, "chats.send", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rows, err := h.chats.ListMessages(r.Context(), r.PathValue("id"), u.ID, pageFromQuery(r))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		h.writeDomainError(w, "chats.messages", err)
		return
	}

	out := make([]messageResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: out})
}

// ---- helpers ----

// authenticate resolves the caller from the Authorization header. On failure
// it writes a uniform 401 and returns ok=false.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (identity.User, session.Session, bool) {
	tok, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w)
		return identity.User{}, session.Session{}, false
	}

	u, row, err := h.sessions.ResolveBearer(r.Context(), time.Now().UTC(), tok)
	if err != nil {
		h.writeAuthError(w, "auth.resolve", err)
		return identity.User{}, session.Session{}, false
	}
	return u, row, true
}

// writeAuthError maps token and session failures to one indistinguishable
// 401; anything else falls through to the generic mapping.
func (h *Handler) writeAuthError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, bearer.ErrMalformedToken),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionInvalid):
		writeUnauthorized(w)
	default:
		h.writeDomainError(w, op, err)
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrUnavailable) {
		h.log.Error(op, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")
		return
	}
	h.log.Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(raw[len(prefix):]), true
}

func pageFromQuery(r *http.Request) chat.Page {
	var page chat.Page
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Offset = n
		}
	}
	return page
}
