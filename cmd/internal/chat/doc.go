// Package chat implements Coterie's access-controlled conversations.
//
// A chat is a container of messages with an explicit member list. Self chats
// hold exactly one member, private chats exactly two. Membership is the sole
// access criterion: for a requester who is not a member, a chat is
// indistinguishable from one that does not exist.
//
// Messages are immutable once written. Their ids are ULIDs assigned by the
// server, so chronological order and id order agree and listing is stable.
package chat
