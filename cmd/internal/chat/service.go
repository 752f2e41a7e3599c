package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"coterie/cmd/identity"
	"coterie/cmd/internal/metrics"
)

// MaxMessageRunes is the message body limit, counted in runes.
const MaxMessageRunes = 4096

// Service is the application surface for chats and messages. All operations
// take the already-resolved caller id; authentication happens upstream.
type Service struct {
	log     *slog.Logger
	store   Store
	users   identity.Store
	guard   *Guard
	metrics *metrics.Set
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithMetrics installs the metrics set.
func WithMetrics(set *metrics.Set) ServiceOption {
	return func(s *Service) {
		if s == nil || set == nil {
			return
		}
		s.metrics = set
	}
}

// NewService constructs a Service.
func NewService(log *slog.Logger, store Store, users identity.Store, opts ...ServiceOption) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil || users == nil {
		return nil, fmt.Errorf("chat: nil store")
	}

	s := &Service{log: log, store: store, users: users, guard: NewGuard(store)}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// CreateSelfChat returns the caller's self chat, creating it on first call.
// Calling it again returns the same chat.
func (s *Service) CreateSelfChat(ctx context.Context, now time.Time, callerID string) (Chat, error) {
	c, created, err := s.store.CreateSelfChat(ctx, now, callerID)
	if err != nil {
		return Chat{}, err
	}
	if created {
		s.log.Info("chat.self.created", "chat_id", c.ID, "user_id", callerID)
	}
	return c, nil
}

// CreatePrivateChat creates a private chat between the caller and the user
// named by recipientHandle.
//
// An unknown handle and the caller's own handle both fail with
// ErrInvalidParticipants; a pair that already has a chat fails with
// ErrAlreadyExists.
func (s *Service) CreatePrivateChat(ctx context.Context, now time.Time, callerID, recipientHandle string) (Chat, error) {
	recipient, err := s.users.GetByHandle(ctx, recipientHandle)
	if err != nil {
		if identity.IsNotFound(err) {
			return Chat{}, fmt.Errorf("%w: unknown recipient", ErrInvalidParticipants)
		}
		return Chat{}, err
	}
	if recipient.ID == callerID {
		return Chat{}, fmt.Errorf("%w: cannot open a private chat with yourself", ErrInvalidParticipants)
	}

	c, err := s.store.CreatePrivateChat(ctx, now, callerID, recipient.ID)
	if err != nil {
		return Chat{}, err
	}

	s.log.Info("chat.private.created", "chat_id", c.ID, "user_id", callerID, "recipient_id", recipient.ID)
	return c, nil
}

// SendMessage validates the body and appends it to the chat. Non-members get
// ErrNotFound, same as for a chat that does not exist.
func (s *Service) SendMessage(ctx context.Context, now time.Time, chatID, senderID, text string) (Message, error) {
	if err := validateMessageText(text); err != nil {
		return Message{}, err
	}

	m, err := s.store.InsertMessage(ctx, now, chatID, senderID, text)
	if err != nil {
		return Message{}, err
	}

	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	s.log.Info("chat.message.sent", "chat_id", chatID, "message_id", m.ID)
	return m, nil
}

// ListMessages returns a page of the chat's messages in chronological order.
func (s *Service) ListMessages(ctx context.Context, chatID, requesterID string, page Page) ([]Message, error) {
	if err := s.guard.RequireMember(ctx, chatID, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID, page)
}

// ListChats returns a page of the chats the caller belongs to.
func (s *Service) ListChats(ctx context.Context, callerID string, page Page) ([]Chat, error) {
	return s.store.ListChats(ctx, callerID, page)
}

func validateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty message", ErrValidation)
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxMessageRunes)
	}
	return nil
}
