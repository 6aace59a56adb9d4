package chat

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
)

const (
	permissionAdministrator uint64 = 1 << 3
	permissionViewChannel   uint64 = 1 << 10

	overwriteRole   = 0
	overwriteMember = 1
)

type overwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type channelInfo struct {
	ID                   string      `json:"id"`
	GuildID              string      `json:"guild_id"`
	ParentID             string      `json:"parent_id"`
	PermissionOverwrites []overwrite `json:"permission_overwrites"`
}

type role struct {
	ID          string `json:"id"`
	Permissions string `json:"permissions"`
}

// ChannelViewers computes which non-bot guild members hold VIEW_CHANNEL on
// the channel, applying role and member overwrites in platform order.
func (c *HTTPClient) ChannelViewers(ctx context.Context, channelID string) ([]string, error) {
	if err := c.requireGuild("channel viewers"); err != nil {
		return nil, err
	}
	var channel channelInfo
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &channel); err != nil {
		return nil, err
	}
	guild := "/guilds/" + url.PathEscape(c.guildID)
	var roles []role
	if err := c.do(ctx, http.MethodGet, guild+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	members, err := c.listMembers(ctx)
	if err != nil {
		return nil, err
	}

	rolePerms := make(map[string]uint64, len(roles))
	for _, r := range roles {
		rolePerms[r.ID] = parsePermissions(r.Permissions)
	}
	var viewers []string
	for _, member := range members {
		if member.User.Bot || member.User.ID == "" {
			continue
		}
		perms := computePermissions(c.guildID, member, rolePerms, channel.PermissionOverwrites)
		if perms&permissionViewChannel != 0 {
			viewers = append(viewers, member.User.ID)
		}
	}
	slices.Sort(viewers)
	return viewers, nil
}

func (c *HTTPClient) listMembers(ctx context.Context) ([]guildMember, error) {
	guild := "/guilds/" + url.PathEscape(c.guildID)
	var all []guildMember
	after := ""
	for {
		query := url.Values{"limit": {strconv.Itoa(memberPageSize)}}
		if after != "" {
			query.Set("after", after)
		}
		var page []guildMember
		if err := c.do(ctx, http.MethodGet, guild+"/members?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < memberPageSize {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// computePermissions applies the platform's permission resolution: base role
// permissions, then the @everyone overwrite, then role overwrites combined,
// then the member overwrite.
func computePermissions(guildID string, member guildMember, rolePerms map[string]uint64, overwrites []overwrite) uint64 {
	perms := rolePerms[guildID]
	for _, id := range member.Roles {
		perms |= rolePerms[id]
	}
	if perms&permissionAdministrator != 0 {
		return ^uint64(0)
	}

	for _, ow := range overwrites {
		if ow.Type == overwriteRole && ow.ID == guildID {
			perms &^= parsePermissions(ow.Deny)
			perms |= parsePermissions(ow.Allow)
		}
	}
	var allow, deny uint64
	for _, ow := range overwrites {
		if ow.Type == overwriteRole && ow.ID != guildID && slices.Contains(member.Roles, ow.ID) {
			allow |= parsePermissions(ow.Allow)
			deny |= parsePermissions(ow.Deny)
		}
	}
	perms &^= deny
	perms |= allow
	for _, ow := range overwrites {
		if ow.Type == overwriteMember && ow.ID == member.User.ID {
			perms &^= parsePermissions(ow.Deny)
			perms |= parsePermissions(ow.Allow)
		}
	}
	return perms
}

func parsePermissions(value string) uint64 {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
