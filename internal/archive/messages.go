package archive

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
)

// ArchivedMessage is one row of the messages table as readers see it.
type ArchivedMessage struct {
	ChannelID string `json:"channel_id"`
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date,omitempty"`
	FromID    string `json:"from_id,omitempty"`
	Text      string `json:"text"`
}

// Stats summarizes the archived slice of one channel.
type Stats struct {
	Total   int64 `json:"total"`
	MinID   int64 `json:"min_id,omitempty"`
	MaxID   int64 `json:"max_id,omitempty"`
	MinDate int64 `json:"min_date,omitempty"`
	MaxDate int64 `json:"max_date,omitempty"`
}

// InsertMessages stores a chunk in a single transaction. Rows already
// present (same channel_id and message_id) are silently skipped; the
// returned count covers only fresh inserts.
func (s *Store) InsertMessages(channelID string, msgs []messages.Message) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO messages (channel_id, message_id, date, from_id, text, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, message_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	var inserted int64
	for _, m := range msgs {
		var date any
		if m.Date != 0 {
			date = m.Date
		}
		res, err := stmt.Exec(channelID, m.ID, date, m.FromID, m.Text, string(m.Raw), now)
		if err != nil {
			return 0, fmt.Errorf("inserting message %d: %w", m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting insert of message %d: %w", m.ID, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing insert: %w", err)
	}
	return inserted, nil
}

// CountMessages returns how many messages are archived for channelID.
func (s *Store) CountMessages(channelID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE channel_id = ?`, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages for %s: %w", channelID, err)
	}
	return count, nil
}

// MessageStats returns total plus ID and date bounds of the archived slice.
func (s *Store) MessageStats(channelID string) (Stats, error) {
	var (
		st                             Stats
		minID, maxID, minDate, maxDate sql.NullInt64
	)
	err := s.db.QueryRow(`SELECT COUNT(*), MIN(message_id), MAX(message_id), MIN(date), MAX(date)
		FROM messages WHERE channel_id = ?`, channelID).
		Scan(&st.Total, &minID, &maxID, &minDate, &maxDate)
	if err != nil {
		return Stats{}, fmt.Errorf("collecting stats for %s: %w", channelID, err)
	}
	st.MinID = minID.Int64
	st.MaxID = maxID.Int64
	st.MinDate = minDate.Int64
	st.MaxDate = maxDate.Int64
	return st, nil
}

// SearchMessages scans the channel's archived texts with an RE2 pattern,
// newest first, returning at most limit matches.
func (s *Store) SearchMessages(channelID, pattern string, limit int, caseInsensitive bool) ([]ArchivedMessage, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling search pattern: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`SELECT channel_id, message_id, date, from_id, text
		FROM messages WHERE channel_id = ? ORDER BY message_id DESC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("scanning messages for %s: %w", channelID, err)
	}
	defer rows.Close()

	var out []ArchivedMessage
	for rows.Next() {
		var (
			m      ArchivedMessage
			date   sql.NullInt64
			fromID sql.NullString
			text   sql.NullString
		)
		if err := rows.Scan(&m.ChannelID, &m.MessageID, &date, &fromID, &text); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Date = date.Int64
		m.FromID = fromID.String
		m.Text = text.String

		if !re.MatchString(m.Text) {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}
