package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"coterie/cmd/identity/ids"
)

// MemoryStore is an in-memory Store used by unit tests and DB-less dev mode.
// It mirrors the Postgres store's semantics; every operation runs under one
// mutex, so the check-then-insert pairs are atomic.
type MemoryStore struct {
	mu       sync.Mutex
	chats    map[string]*Chat           // chat id -> chat
	byKey    map[string]string          // pair key -> chat id
	members  map[string]map[string]bool // chat id -> user id set
	messages map[string][]Message       // chat id -> messages in insert order
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]*Chat),
		byKey:    make(map[string]string),
		members:  make(map[string]map[string]bool),
		messages: make(map[string][]Message),
	}
}

// CreateSelfChat returns the user's self chat, creating it if absent.
func (s *MemoryStore) CreateSelfChat(ctx context.Context, now time.Time, userID string) (Chat, bool, error) {
	if err := ctx.Err(); err != nil {
		return Chat{}, false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := selfKey(userID)
	if id, ok := s.byKey[key]; ok {
		return *s.chats[id], false, nil
	}

	c, err := s.insertChatLocked(now, KindSelf, key, userID)
	if err != nil {
		return Chat{}, false, err
	}
	return c, true, nil
}

// CreatePrivateChat creates a two-member chat, failing ErrAlreadyExists when
// the unordered pair already has one.
func (s *MemoryStore) CreatePrivateChat(ctx context.Context, now time.Time, userA, userB string) (Chat, error) {
	if err := ctx.Err(); err != nil {
		return Chat{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(userA, userB)
	if _, ok := s.byKey[key]; ok {
		return Chat{}, ErrAlreadyExists
	}

	return s.insertChatLocked(now, KindPrivate, key, userA, userB)
}

// IsMember reports whether userID belongs to chatID.
func (s *MemoryStore) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.members[chatID][userID], nil
}

// InsertMessage checks membership and inserts atomically.
func (s *MemoryStore) InsertMessage(ctx context.Context, now time.Time, chatID, senderID, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.members[chatID][senderID] {
		return Message{}, ErrNotFound
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	m := Message{ID: id, ChatID: chatID, SenderID: senderID, Text: text, CreatedAt: now}
	s.messages[chatID] = append(s.messages[chatID], m)
	return m, nil
}

// ListMessages returns messages ordered by created_at ASC, id ASC.
func (s *MemoryStore) ListMessages(ctx context.Context, chatID string, page Page) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.clamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Message, len(s.messages[chatID]))
	copy(all, s.messages[chatID])
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	return window(all, page), nil
}

// ListChats returns the chats userID belongs to, ordered by chat id.
func (s *MemoryStore) ListChats(ctx context.Context, userID string, page Page) ([]Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.clamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Chat
	for id, set := range s.members {
		if set[userID] {
			out = append(out, *s.chats[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return window(out, page), nil
}

func (s *MemoryStore) insertChatLocked(now time.Time, kind Kind, key string, memberIDs ...string) (Chat, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Chat{}, err
	}

	c := Chat{ID: id, Kind: kind, CreatedAt: now}
	s.chats[id] = &c
	s.byKey[key] = id

	set := make(map[string]bool, len(memberIDs))
	for _, m := range memberIDs {
		set[m] = true
	}
	s.members[id] = set

	return c, nil
}

func window[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if len(items) > page.Limit {
		items = items[:page.Limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
