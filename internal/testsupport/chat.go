package testsupport

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"intake/internal/chat"
)

// Operation names used by FakeChat for call counting and scripted failures.
const (
	OpSendMessage    = "send_message"
	OpEditMessage    = "edit_message"
	OpAddReaction    = "add_reaction"
	OpReactionUsers  = "reaction_users"
	OpRecentMessages = "recent_messages"
	OpStartThread    = "start_thread"
	OpActiveThreads  = "active_threads"
	OpChannelViewers = "channel_viewers"
	OpAddRole        = "add_role"
	OpDirectMessage  = "direct_message"
	OpResolveUser    = "resolve_user"
)

// BotUserID is the identity FakeChat uses for its own reactions.
const BotUserID = "bot"

// RoleGrant records an AddRole call.
type RoleGrant struct {
	UserID string
	RoleID string
}

// DirectMessage records a SendDirectMessage call.
type DirectMessage struct {
	UserID  string
	Content string
}

// FakeChat is an in-memory chat platform. Every call is counted; failures
// can be scripted per operation.
type FakeChat struct {
	mu sync.Mutex

	nextID    int
	messages  map[string]*chat.Message
	order     map[string][]string
	reactions map[string]map[string][]string
	threads   map[string]chat.Thread
	viewers   map[string][]string
	users     map[string]chat.User
	roles     []RoleGrant
	dms       []DirectMessage
	calls     map[string]int
	failures  map[string][]error
}

// NewFakeChat returns an empty platform.
func NewFakeChat() *FakeChat {
	return &FakeChat{
		messages:  make(map[string]*chat.Message),
		order:     make(map[string][]string),
		reactions: make(map[string]map[string][]string),
		threads:   make(map[string]chat.Thread),
		viewers:   make(map[string][]string),
		users:     make(map[string]chat.User),
		calls:     make(map[string]int),
		failures:  make(map[string][]error),
	}
}

// FailNext queues errors returned by the next calls to op, in order.
func (f *FakeChat) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// RateLimitNext makes the next n calls to op return a 429.
func (f *FakeChat) RateLimitNext(op string, n int, wait time.Duration) {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &chat.APIError{Method: "FAKE", Path: op, Status: http.StatusTooManyRequests, Message: "rate limited", Wait: wait}
	}
	f.FailNext(op, errs...)
}

// Calls reports how many times op was invoked, failed calls included.
func (f *FakeChat) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Seed posts a message as if another client had sent it.
func (f *FakeChat) Seed(channelID, content string) chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.post(channelID, content)
}

// Messages returns a channel's messages, oldest first.
func (f *FakeChat) Messages(channelID string) []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Message, 0, len(f.order[channelID]))
	for _, id := range f.order[channelID] {
		out = append(out, *f.messages[id])
	}
	return out
}

// Message returns a message by id.
func (f *FakeChat) Message(id string) (chat.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return chat.Message{}, false
	}
	return *msg, true
}

// Thread returns the thread started on a message.
func (f *FakeChat) Thread(messageID string) (chat.Thread, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thread, ok := f.threads[messageID]
	return thread, ok
}

// SetReactions replaces the users reacting to a message with emoji.
func (f *FakeChat) SetReactions(messageID, emoji string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactions[messageID] == nil {
		f.reactions[messageID] = make(map[string][]string)
	}
	f.reactions[messageID][emoji] = slices.Clone(userIDs)
}

// Reactions returns the users reacting with emoji.
func (f *FakeChat) Reactions(messageID, emoji string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.reactions[messageID][emoji])
}

// SetViewers sets who can view a channel.
func (f *FakeChat) SetViewers(channelID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewers[channelID] = slices.Clone(userIDs)
}

// AddUser registers a member resolvable by id, username, and extra names.
func (f *FakeChat) AddUser(user chat.User, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range append([]string{user.ID, user.Username, user.GlobalName}, names...) {
		if name != "" {
			f.users[strings.ToLower(name)] = user
		}
	}
}

// RoleGrants returns every AddRole call that succeeded.
func (f *FakeChat) RoleGrants() []RoleGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.roles)
}

// DirectMessages returns every DM that succeeded.
func (f *FakeChat) DirectMessages() []DirectMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.dms)
}

func (f *FakeChat) begin(op string) error {
	f.calls[op]++
	if queued := f.failures[op]; len(queued) > 0 {
		err := queued[0]
		f.failures[op] = queued[1:]
		return err
	}
	return nil
}

func (f *FakeChat) post(channelID, content string) chat.Message {
	f.nextID++
	msg := &chat.Message{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		ChannelID: channelID,
		Content:   content,
		Author:    chat.User{ID: BotUserID, Username: "intake", Bot: true},
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Second),
	}
	f.messages[msg.ID] = msg
	f.order[channelID] = append(f.order[channelID], msg.ID)
	return *msg
}

func (f *FakeChat) SendMessage(_ context.Context, channelID, content string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpSendMessage); err != nil {
		return chat.Message{}, err
	}
	return f.post(channelID, content), nil
}

func (f *FakeChat) EditMessage(_ context.Context, channelID, messageID, content string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpEditMessage); err != nil {
		return chat.Message{}, err
	}
	msg, ok := f.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return chat.Message{}, &chat.APIError{Method: "PATCH", Path: messageID, Status: http.StatusNotFound, Code: 10008, Message: "Unknown Message"}
	}
	msg.Content = content
	return *msg, nil
}

func (f *FakeChat) AddReaction(_ context.Context, _ string, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpAddReaction); err != nil {
		return err
	}
	if f.reactions[messageID] == nil {
		f.reactions[messageID] = make(map[string][]string)
	}
	if !slices.Contains(f.reactions[messageID][emoji], BotUserID) {
		f.reactions[messageID][emoji] = append(f.reactions[messageID][emoji], BotUserID)
	}
	return nil
}

func (f *FakeChat) ReactionUsers(_ context.Context, _ string, messageID, emoji string) ([]chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpReactionUsers); err != nil {
		return nil, err
	}
	var users []chat.User
	for _, id := range f.reactions[messageID][emoji] {
		users = append(users, chat.User{ID: id, Bot: id == BotUserID})
	}
	return users, nil
}

func (f *FakeChat) RecentMessages(_ context.Context, channelID string, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpRecentMessages); err != nil {
		return nil, err
	}
	ids := f.order[channelID]
	var out []chat.Message
	for i := len(ids) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, *f.messages[ids[i]])
	}
	return out, nil
}

func (f *FakeChat) StartThread(_ context.Context, channelID, messageID, name string) (chat.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpStartThread); err != nil {
		return chat.Thread{}, err
	}
	if thread, ok := f.threads[messageID]; ok {
		return thread, nil
	}
	thread := chat.Thread{ID: messageID, ParentID: channelID, Name: name}
	f.threads[messageID] = thread
	return thread, nil
}

func (f *FakeChat) ActiveThreads(context.Context) ([]chat.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpActiveThreads); err != nil {
		return nil, err
	}
	out := make([]chat.Thread, 0, len(f.threads))
	for _, thread := range f.threads {
		out = append(out, thread)
	}
	slices.SortFunc(out, func(a, b chat.Thread) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *FakeChat) ChannelViewers(_ context.Context, channelID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpChannelViewers); err != nil {
		return nil, err
	}
	return slices.Clone(f.viewers[channelID]), nil
}

func (f *FakeChat) AddRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpAddRole); err != nil {
		return err
	}
	f.roles = append(f.roles, RoleGrant{UserID: userID, RoleID: roleID})
	return nil
}

func (f *FakeChat) SendDirectMessage(_ context.Context, userID, content string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpDirectMessage); err != nil {
		return chat.Message{}, err
	}
	f.dms = append(f.dms, DirectMessage{UserID: userID, Content: content})
	return f.post("dm-"+userID, content), nil
}

func (f *FakeChat) ResolveUser(_ context.Context, query string) (chat.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpResolveUser); err != nil {
		return chat.User{}, false, err
	}
	user, ok := f.users[strings.ToLower(strings.TrimSpace(query))]
	return user, ok, nil
}

var _ chat.Client = (*FakeChat)(nil)
