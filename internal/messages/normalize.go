package messages

import (
	"encoding/json"
	"strconv"

	"github.com/gotd/td/tg"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// unknownSender marks messages whose author Telegram did not attach.
const unknownSender = "unknown"

// Normalize flattens a raw Telegram message into the record downstream code
// sees. The raw form is preserved as JSON for the archive.
func Normalize(msg *tg.Message, ref peers.Ref) Message {
	m := Message{
		ID:       int64(msg.ID),
		Date:     int64(msg.Date),
		Text:     msg.Message,
		FromID:   senderID(msg.FromID),
		PeerType: string(ref.Kind),
		PeerID:   ref.Key(),
	}

	if raw, err := json.Marshal(msg); err == nil {
		m.Raw = raw
	}
	return m
}

// senderID stringifies the author of a message. Channel posts and service
// messages often carry no FromID at all.
func senderID(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return strconv.FormatInt(p.ChatID, 10)
	case *tg.PeerChannel:
		return strconv.FormatInt(p.ChannelID, 10)
	default:
		return unknownSender
	}
}
