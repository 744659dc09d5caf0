package tgclient

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"
)

// Flood wait intervals appear either as typed RPC errors or embedded in
// human-readable messages from intermediate layers.
var (
	floodWaitCodeRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)
	floodWaitTextRe = regexp.MustCompile(`wait of (\d+) seconds is required`)
)

// IsUnauthorized reports whether err means the session is invalid: any 401,
// AUTH_KEY* or SESSION_PASSWORD_NEEDED condition.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if auth.IsUnauthorized(err) {
		return true
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if rpcErr.Code == 401 || strings.HasPrefix(rpcErr.Type, "AUTH_KEY") || rpcErr.Type == "SESSION_PASSWORD_NEEDED" {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "AUTH_KEY") || strings.Contains(msg, "SESSION_PASSWORD_NEEDED") || strings.Contains(msg, "401")
}

// AsFloodWait extracts a rate-limit cool-off interval from err. It handles
// typed gotd flood-wait errors plus the FLOOD_WAIT_N and "wait of N seconds
// is required" message shapes.
func AsFloodWait(err error) (seconds int, ok bool) {
	if err == nil {
		return 0, false
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return int(d.Seconds()), true
	}

	msg := err.Error()
	if m := floodWaitCodeRe.FindStringSubmatch(msg); m != nil {
		if s, err := strconv.Atoi(m[1]); err == nil {
			return s, true
		}
	}
	if m := floodWaitTextRe.FindStringSubmatch(msg); m != nil {
		if s, err := strconv.Atoi(m[1]); err == nil {
			return s, true
		}
	}
	return 0, false
}
