package messages

import "encoding/json"

// Message is the normalized form every downstream component sees. Raw keeps
// the serialized original for the archive.
type Message struct {
	ID       int64           `json:"id"`
	Date     int64           `json:"date,omitempty"` // unix seconds, 0 when unknown
	Text     string          `json:"text"`
	FromID   string          `json:"from_id,omitempty"`
	PeerType string          `json:"peer_type,omitempty"`
	PeerID   string          `json:"peer_id,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Options controls a history fetch.
type Options struct {
	// Limit is the total number of messages to collect; 0 means a single
	// chunk.
	Limit int
	// ChunkSize is the per-request batch size, capped at 100 by Telegram.
	ChunkSize int
	// OffsetID starts the backward cursor strictly below this message ID.
	OffsetID int64
	// MinID keeps only messages with ID strictly greater than this value.
	MinID int64
	// MaxID keeps only messages with ID strictly smaller than this value.
	MaxID int64
}

const defaultChunkSize = 100
