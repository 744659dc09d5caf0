// Package peers normalizes user-supplied channel identifiers into peer
// references. Telegram addresses a dialog either by a signed 64-bit ID
// (channels and supergroups carry a -100 prefix in user-facing form) or by
// a public @username.
package peers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidPeer is returned for inputs that are neither a numeric ID nor a
// plausible username.
var ErrInvalidPeer = errors.New("invalid peer id")

// Kind classifies what a peer ID addresses.
type Kind string

const (
	KindUser    Kind = "user"
	KindChat    Kind = "chat"
	KindChannel Kind = "channel"
)

// channelPrefix is the user-facing -100 prefix marker: any ID below
// -1_000_000_000_000 addresses a channel or supergroup.
const channelPrefix = int64(-1_000_000_000_000)

// Ref is a normalized peer reference. Exactly one of ID or Username is the
// lookup key; Title is display-only. Refs compare equal by ID.
type Ref struct {
	ID       int64  `json:"id"`
	Kind     Kind   `json:"kind,omitempty"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// Key returns the stringified canonical ID, used as the archive database key.
func (r Ref) Key() string {
	if r.ID == 0 {
		return r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

func (r Ref) String() string {
	if r.ID != 0 {
		return r.Key()
	}
	return "@" + r.Username
}

// Parse normalizes an external identifier into a Ref. Numeric inputs keep
// their signed value verbatim (the -100 prefix is neither stripped nor
// added). Non-numeric strings become lowercase usernames with a leading @
// removed. Empty strings, NaN and mixed content fail with ErrInvalidPeer.
func Parse(v any) (Ref, error) {
	switch id := v.(type) {
	case int:
		return fromID(int64(id)), nil
	case int32:
		return fromID(int64(id)), nil
	case int64:
		return fromID(id), nil
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) || id != math.Trunc(id) {
			return Ref{}, fmt.Errorf("%w: %v", ErrInvalidPeer, id)
		}
		return fromID(int64(id)), nil
	case json.Number:
		return parseString(id.String())
	case string:
		return parseString(id)
	case nil:
		return Ref{}, fmt.Errorf("%w: missing value", ErrInvalidPeer)
	default:
		return Ref{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidPeer, v)
	}
}

func parseString(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty string", ErrInvalidPeer)
	}

	if isNumeric(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidPeer, s)
		}
		return fromID(id), nil
	}

	username := strings.TrimPrefix(s, "@")
	if !isUsername(username) {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidPeer, s)
	}
	return Ref{Username: strings.ToLower(username)}, nil
}

func fromID(id int64) Ref {
	return Ref{ID: id, Kind: classify(id)}
}

func classify(id int64) Kind {
	switch {
	case id < channelPrefix:
		return KindChannel
	case id < 0:
		return KindChat
	default:
		return KindUser
	}
}

func isNumeric(s string) bool {
	body := s
	if len(body) > 0 && (body[0] == '+' || body[0] == '-') {
		body = body[1:]
	}
	if body == "" {
		return false
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isUsername accepts Telegram public usernames: a letter followed by
// letters, digits and underscores. Anything else is mixed content.
func isUsername(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' && i > 0:
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
