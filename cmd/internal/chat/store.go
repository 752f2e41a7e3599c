package chat

import (
	"context"
	"time"
)

// Kind discriminates chat shapes. Group and channel kinds are reserved in the
// schema but have no operations yet.
type Kind string

const (
	KindSelf    Kind = "with_self"
	KindPrivate Kind = "private"
)

// Chat is one conversation. DisplayName is nil for self and private chats,
// whose names are derived client-side from the member list.
type Chat struct {
	ID          string
	Kind        Kind
	DisplayName *string
	CreatedAt   time.Time
}

// Message is one immutable chat entry. ID is a server-assigned ULID, so id
// order and creation order agree.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	CreatedAt time.Time
}

// MaxPageSize caps every listing operation.
const MaxPageSize = 200

// Page is a listing window. Zero values mean "first MaxPageSize items".
type Page struct {
	Limit  int
	Offset int
}

// clamp normalizes a page to valid bounds.
func (p Page) clamp() Page {
	if p.Limit <= 0 || p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Store abstracts chat persistence.
//
// Implementations must create a chat and its member rows in one transaction,
// and must check membership and insert a message in one transaction.
type Store interface {
	// CreateSelfChat returns the user's self chat, creating it if absent.
	// created reports whether this call created it.
	CreateSelfChat(ctx context.Context, now time.Time, userID string) (c Chat, created bool, err error)

	// CreatePrivateChat creates a two-member chat. The pair is unordered:
	// (a,b) and (b,a) are the same chat, and a second creation fails with
	// ErrAlreadyExists.
	CreatePrivateChat(ctx context.Context, now time.Time, userA, userB string) (Chat, error)

	// IsMember reports whether userID is a member of chatID. A missing chat
	// is simply a non-membership.
	IsMember(ctx context.Context, chatID, userID string) (bool, error)

	// InsertMessage checks membership and inserts atomically. ErrNotFound if
	// the sender is not a member (or the chat does not exist).
	InsertMessage(ctx context.Context, now time.Time, chatID, senderID, text string) (Message, error)

	// ListMessages returns messages ordered by created_at ASC, id ASC.
	// Membership is NOT checked here; callers go through the service.
	ListMessages(ctx context.Context, chatID string, page Page) ([]Message, error)

	// ListChats returns the chats userID belongs to, ordered by chat id.
	ListChats(ctx context.Context, userID string, page Page) ([]Chat, error)
}

// pairKey builds the order-independent uniqueness key for a private chat.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "private:" + a + ":" + b
}

// selfKey builds the uniqueness key for a user's self chat.
func selfKey(userID string) string {
	return "self:" + userID
}
