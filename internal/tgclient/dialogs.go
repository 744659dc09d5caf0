package tgclient

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// Dialogs enumerates every dialog of the account exactly once, preserving
// the server order (most recently active first). Channel and supergroup IDs
// are reported in the user-facing -100 form.
func (g *Gateway) Dialogs(ctx context.Context) ([]peers.Ref, error) {
	var refs []peers.Ref

	err := query.GetDialogs(g.client.API()).BatchSize(100).ForEach(ctx, func(ctx context.Context, dlg dialogs.Elem) error {
		if _, ok := dlg.Dialog.(*tg.Dialog); !ok {
			return nil
		}

		users := dlg.Entities.Users()
		chats := dlg.Entities.Chats()
		channels := dlg.Entities.Channels()

		var ref peers.Ref
		switch p := dlg.Peer.(type) {
		case *tg.InputPeerUser:
			ref = peers.Ref{ID: p.UserID, Kind: peers.KindUser}
			if user, ok := users[p.UserID]; ok {
				ref.Title = UserDisplayName(user)
				ref.Username = user.Username
			}
		case *tg.InputPeerChat:
			ref = peers.Ref{ID: p.ChatID, Kind: peers.KindChat}
			if chat, ok := chats[p.ChatID]; ok {
				ref.Title = chat.Title
			}
		case *tg.InputPeerChannel:
			// User-facing channel ID with the -100 prefix.
			ref = peers.Ref{ID: -1000000000000 - p.ChannelID, Kind: peers.KindChannel}
			if channel, ok := channels[p.ChannelID]; ok {
				ref.Title = channel.Title
				ref.Username = channel.Username
			}
		default:
			return nil
		}

		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing dialogs: %w", err)
	}

	g.log.Debug("dialogs enumerated", zap.Int("count", len(refs)))
	return refs, nil
}
