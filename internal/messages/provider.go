// Package messages fetches channel history from Telegram and normalizes
// every message into a flat record before anything else touches it.
package messages

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
	"go.uber.org/ratelimit"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// PeerResolver turns a normalized reference into the input peer history
// calls require. The gateway implements it.
type PeerResolver interface {
	ResolvePeer(ctx context.Context, ref peers.Ref) (tg.InputPeerClass, error)
}

// Provider fetches history with a unified interface and 1 RPS rate limiting.
type Provider struct {
	api      *tg.Client
	resolver PeerResolver
	limiter  ratelimit.Limiter
}

// NewProvider creates a message provider on top of the raw API handle.
func NewProvider(api *tg.Client, resolver PeerResolver) *Provider {
	return &Provider{
		api:      api,
		resolver: resolver,
		limiter:  ratelimit.New(1),
	}
}

// History retrieves messages for ref, paginating backward until opts.Limit
// messages are collected or the history is exhausted. Messages come back
// newest-first, as Telegram returns them.
func (p *Provider) History(ctx context.Context, ref peers.Ref, opts Options) ([]Message, error) {
	peer, err := p.resolver.ResolvePeer(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolving peer %s: %w", ref, err)
	}

	chunk := opts.ChunkSize
	if chunk <= 0 || chunk > defaultChunkSize {
		chunk = defaultChunkSize
	}
	want := opts.Limit
	if want <= 0 {
		want = chunk
	}

	var (
		collected []Message
		offsetID  = opts.OffsetID
	)
	for len(collected) < want {
		limit := chunk
		if rest := want - len(collected); rest < limit {
			limit = rest
		}

		batch, err := p.fetchChunk(ctx, ref, peer, limit, offsetID, opts.MinID, opts.MaxID)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		collected = append(collected, batch...)
		offsetID = batch[len(batch)-1].ID
		if len(batch) < limit {
			break
		}
	}

	return collected, nil
}

func (p *Provider) fetchChunk(ctx context.Context, ref peers.Ref, peer tg.InputPeerClass, limit int, offsetID, minID, maxID int64) ([]Message, error) {
	req := &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		Limit:    limit,
		OffsetID: int(offsetID),
		MinID:    int(minID),
		MaxID:    int(maxID),
	}

	p.limiter.Take()

	history, err := p.api.MessagesGetHistory(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("getting history for %s: %w", ref, err)
	}

	var raw []tg.MessageClass
	switch hist := history.(type) {
	case *tg.MessagesMessages:
		raw = hist.Messages
	case *tg.MessagesMessagesSlice:
		raw = hist.Messages
	case *tg.MessagesChannelMessages:
		raw = hist.Messages
	default:
		return nil, fmt.Errorf("unexpected history response type %T", history)
	}

	out := make([]Message, 0, len(raw))
	for _, msgClass := range raw {
		msg, ok := msgClass.(*tg.Message)
		if !ok {
			continue
		}
		// MinID/MaxID are also enforced server-side; the client-side check
		// guards against layers that ignore them.
		if minID > 0 && int64(msg.ID) <= minID {
			continue
		}
		if maxID > 0 && int64(msg.ID) >= maxID {
			continue
		}
		out = append(out, Normalize(msg, ref))
	}
	return out, nil
}
