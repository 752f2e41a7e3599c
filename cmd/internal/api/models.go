package api

import (
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/auth/session"
	"coterie/cmd/internal/chat"
	"coterie/cmd/internal/invite"
)

type registerRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	InviteCode  string `json:"invite_code"`
}

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

type registerResponse struct {
	User       userResponse `json:"user"`
	SelfChatID string       `json:"self_chat_id"`
	Token      string       `json:"token"`
}

type sessionResponse struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		ID:         s.ID.String(),
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

type sessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type createPrivateChatRequest struct {
	RecipientHandle string `json:"recipient_handle"`
}

type chatResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	DisplayName *string   `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toChatResponse(c chat.Chat) chatResponse {
	return chatResponse{
		ID:          c.ID,
		Kind:        string(c.Kind),
		DisplayName: c.DisplayName,
		CreatedAt:   c.CreatedAt,
	}
}

type chatsResponse struct {
	Chats []chatResponse `json:"chats"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

type messagesResponse struct {
	Messages []messageResponse `json:"messages"`
}

type createInviteRequest struct {
	TTL     string  `json:"ttl,omitempty"`
	MaxUses int     `json:"max_uses,omitempty"`
	Note    *string `json:"note,omitempty"`
}

type inviteResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
}

func toInviteResponse(inv invite.Invite, code string) inviteResponse {
	return inviteResponse{
		ID:        inv.ID,
		Code:      code,
		ExpiresAt: inv.ExpiresAt,
		MaxUses:   inv.MaxUses,
	}
}
