package chat

import (
	"context"
	"time"
)

// Message is a posted chat message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Author    User      `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is a discussion thread. Threads started from a message share the
// message's id.
type Thread struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

// User is a chat platform identity.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// DisplayName returns the global name when set, else the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Mention renders the user as a mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// Client is the chat platform surface used by intake.
type Client interface {
	SendMessage(ctx context.Context, channelID, content string) (Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) (Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]User, error)
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	StartThread(ctx context.Context, channelID, messageID, name string) (Thread, error)
	ActiveThreads(ctx context.Context) ([]Thread, error)
	// ChannelViewers returns the ids of non-bot members that can view the channel.
	ChannelViewers(ctx context.Context, channelID string) ([]string, error)
	AddRole(ctx context.Context, userID, roleID string) error
	SendDirectMessage(ctx context.Context, userID, content string) (Message, error)
	// ResolveUser finds a guild member by id or name. ok is false when no
	// member matches.
	ResolveUser(ctx context.Context, query string) (user User, ok bool, err error)
}
