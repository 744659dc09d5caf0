package tgclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ResolvePeer turns a normalized peer reference into the InputPeerClass
// required by history calls.
//
// Telegram uses different ID formats:
//   - MTProto API uses the raw channel ID (e.g., 1234567890)
//   - the user-facing format adds a -100 prefix (e.g., -1001234567890)
//
// Numeric refs are converted from user-facing to MTProto format here.
// Username refs, and numeric refs the server-side peer cache does not know
// (no access hash), resolve through the public username.
func (g *Gateway) ResolvePeer(ctx context.Context, ref peers.Ref) (tg.InputPeerClass, error) {
	if ref.ID == 0 {
		if ref.Username == "" {
			return nil, fmt.Errorf("empty peer reference")
		}
		return g.resolveUsername(ctx, ref.Username)
	}

	peer, err := g.resolveID(ctx, ref.ID)
	if err != nil && ref.Username != "" {
		return g.resolveUsername(ctx, ref.Username)
	}
	return peer, err
}

func (g *Gateway) resolveID(ctx context.Context, dialogID int64) (tg.InputPeerClass, error) {
	api := g.client.API()

	// Positive IDs are users or basic chats.
	if dialogID > 0 {
		users, err := api.UsersGetUsers(ctx, []tg.InputUserClass{
			&tg.InputUser{UserID: dialogID},
		})
		if err == nil && len(users) > 0 {
			if user, ok := users[0].(*tg.User); ok && user.AccessHash != 0 {
				return &tg.InputPeerUser{
					UserID:     dialogID,
					AccessHash: user.AccessHash,
				}, nil
			}
		}

		return &tg.InputPeerChat{ChatID: dialogID}, nil
	}

	channelID := -dialogID
	if channelID > 1000000000000 {
		// Strip the user-facing -100 prefix.
		channelID -= 1000000000000
	}

	channels, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: channelID},
	})
	if err != nil {
		return nil, fmt.Errorf("looking up channel %d: %w", channelID, err)
	}

	if chats, ok := channels.(*tg.MessagesChats); ok && len(chats.Chats) > 0 {
		if channel, ok := chats.Chats[0].(*tg.Channel); ok {
			return &tg.InputPeerChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			}, nil
		}
	}

	return nil, fmt.Errorf("channel %d is unknown to the peer cache", channelID)
}

func (g *Gateway) resolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	resolved, err := g.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving username %q: %w", username, err)
	}

	for _, chat := range resolved.Chats {
		if channel, ok := chat.(*tg.Channel); ok && strings.EqualFold(channel.Username, username) {
			return &tg.InputPeerChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			}, nil
		}
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok && strings.EqualFold(user.Username, username) {
			return &tg.InputPeerUser{
				UserID:     user.ID,
				AccessHash: user.AccessHash,
			}, nil
		}
	}

	return nil, fmt.Errorf("username %q did not resolve to a peer", username)
}
