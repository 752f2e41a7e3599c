package chat

import "context"

// Guard decides whether a resolved identity may act on a chat.
//
// Its answers never distinguish "no such chat" from "not a member": both are
// ErrNotFound, so probing chat ids reveals nothing.
type Guard struct {
	store Store
}

// NewGuard constructs a Guard over the given store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// RequireMember fails with ErrNotFound unless userID is a member of chatID.
func (g *Guard) RequireMember(ctx context.Context, chatID, userID string) error {
	ok, err := g.store.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
