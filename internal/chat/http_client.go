package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"intake/internal/config"
	"intake/internal/services"
)

const (
	defaultBaseURL        = "https://discord.com/api/v10"
	defaultRequestTimeout = 15 * time.Second
	maxPageSize           = 100
	memberPageSize        = 1000
	threadArchiveMinutes  = 10080
	userAgent             = "DiscordBot (intake, 1.0)"
)

// HTTPDoer describes the HTTP client used by HTTPClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient implements Client over the platform REST API.
type HTTPClient struct {
	baseURL string
	token   string
	guildID string
	client  HTTPDoer
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer overrides the underlying HTTP client.
func WithHTTPDoer(doer HTTPDoer) HTTPOption {
	return func(c *HTTPClient) {
		if doer != nil {
			c.client = doer
		}
	}
}

// NewHTTPClient builds a client for the bot token and guild.
func NewHTTPClient(baseURL, token, guildID string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		guildID: strings.TrimSpace(guildID),
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConfiguredClient builds a client from the [chat] config section.
func NewConfiguredClient(cfg config.Chat) *HTTPClient {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	return NewHTTPClient(cfg.BaseURL, cfg.Token, cfg.GuildID, WithHTTPDoer(&http.Client{Timeout: timeout}))
}

type messagePayload struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

func newMessagePayload(content string) messagePayload {
	return messagePayload{Content: content, AllowedMentions: allowedMentions{Parse: []string{"users", "roles"}}}
}

// SendMessage posts content to a channel.
func (c *HTTPClient) SendMessage(ctx context.Context, channelID, content string) (Message, error) {
	var msg Message
	err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", newMessagePayload(content), &msg)
	return msg, err
}

// EditMessage replaces a message's content.
func (c *HTTPClient) EditMessage(ctx context.Context, channelID, messageID, content string) (Message, error) {
	var msg Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	err := c.do(ctx, http.MethodPatch, path, newMessagePayload(content), &msg)
	return msg, err
}

// AddReaction reacts to a message as the bot.
func (c *HTTPClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := reactionPath(channelID, messageID, emoji) + "/@me"
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// ReactionUsers lists every user that reacted with emoji, following pagination.
func (c *HTTPClient) ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]User, error) {
	var all []User
	after := ""
	for {
		query := url.Values{"limit": {strconv.Itoa(maxPageSize)}}
		if after != "" {
			query.Set("after", after)
		}
		var page []User
		if err := c.do(ctx, http.MethodGet, reactionPath(channelID, messageID, emoji)+"?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < maxPageSize {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}

// RecentMessages returns up to limit of the newest messages in a channel.
func (c *HTTPClient) RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	var msgs []Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages?limit=" + strconv.Itoa(limit)
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

// StartThread opens a thread on a message. A thread that already exists is
// returned as-is.
func (c *HTTPClient) StartThread(ctx context.Context, channelID, messageID, name string) (Thread, error) {
	payload := struct {
		Name                string `json:"name"`
		AutoArchiveDuration int    `json:"auto_archive_duration"`
	}{Name: name, AutoArchiveDuration: threadArchiveMinutes}
	var thread Thread
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID) + "/threads"
	err := c.do(ctx, http.MethodPost, path, payload, &thread)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeThreadExists {
		return Thread{ID: messageID, ParentID: channelID, Name: name}, nil
	}
	return thread, err
}

// ActiveThreads lists the guild's active threads.
func (c *HTTPClient) ActiveThreads(ctx context.Context) ([]Thread, error) {
	if err := c.requireGuild("active threads"); err != nil {
		return nil, err
	}
	var payload struct {
		Threads []Thread `json:"threads"`
	}
	err := c.do(ctx, http.MethodGet, "/guilds/"+url.PathEscape(c.guildID)+"/threads/active", nil, &payload)
	return payload.Threads, err
}

// AddRole grants a guild role to a member.
func (c *HTTPClient) AddRole(ctx context.Context, userID, roleID string) error {
	if err := c.requireGuild("add role"); err != nil {
		return err
	}
	path := "/guilds/" + url.PathEscape(c.guildID) + "/members/" + url.PathEscape(userID) + "/roles/" + url.PathEscape(roleID)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// SendDirectMessage opens a DM channel with the user and posts content.
func (c *HTTPClient) SendDirectMessage(ctx context.Context, userID, content string) (Message, error) {
	var channel struct {
		ID string `json:"id"`
	}
	payload := struct {
		RecipientID string `json:"recipient_id"`
	}{RecipientID: userID}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", payload, &channel); err != nil {
		return Message{}, err
	}
	return c.SendMessage(ctx, channel.ID, content)
}

// CurrentUser returns the identity behind the bot token.
func (c *HTTPClient) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

type guildMember struct {
	User  User     `json:"user"`
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

// ResolveUser looks up a member by snowflake id, or searches by name and
// returns the member whose username, global name, or nickname matches.
func (c *HTTPClient) ResolveUser(ctx context.Context, query string) (User, bool, error) {
	query = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	if query == "" {
		return User{}, false, nil
	}
	if err := c.requireGuild("resolve user"); err != nil {
		return User{}, false, err
	}
	guild := "/guilds/" + url.PathEscape(c.guildID)

	if isSnowflake(query) {
		var member guildMember
		err := c.do(ctx, http.MethodGet, guild+"/members/"+query, nil, &member)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return User{}, false, nil
		}
		if err != nil {
			return User{}, false, err
		}
		return member.User, true, nil
	}

	// Legacy tags like "name#0" search on the name part.
	name, _, _ := strings.Cut(query, "#")
	values := url.Values{"query": {name}, "limit": {"10"}}
	var members []guildMember
	if err := c.do(ctx, http.MethodGet, guild+"/members/search?"+values.Encode(), nil, &members); err != nil {
		return User{}, false, err
	}
	for _, member := range members {
		if member.User.Bot {
			continue
		}
		for _, candidate := range []string{member.User.Username, member.User.GlobalName, member.Nick} {
			if candidate != "" && strings.EqualFold(candidate, name) {
				return member.User, true, nil
			}
		}
	}
	return User{}, false, nil
}

func (c *HTTPClient) requireGuild(operation string) error {
	if c.guildID == "" {
		return services.Wrap(services.ErrConfiguration, "chat", operation, "chat.guild_id is not configured", nil)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode chat request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "chat", method+" "+req.URL.Path, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "chat", method+" "+req.URL.Path, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(method, req.URL.Path, resp, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrExternal, "chat", method+" "+req.URL.Path, "decode response", err)
	}
	return nil
}

func reactionPath(channelID, messageID, emoji string) string {
	return "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID) + "/reactions/" + url.PathEscape(emoji)
}

func isSnowflake(value string) bool {
	if len(value) < 15 || len(value) > 21 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var _ Client = (*HTTPClient)(nil)
