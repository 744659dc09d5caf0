package tgclient

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gotd/td/tgerr"
)

func TestAsFloodWait(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		seconds int
		ok      bool
	}{
		{
			name:    "typed rpc error",
			err:     tgerr.New(420, "FLOOD_WAIT_17"),
			seconds: 17,
			ok:      true,
		},
		{
			name:    "code embedded in message",
			err:     errors.New("rpc error code 420: FLOOD_WAIT_2"),
			seconds: 2,
			ok:      true,
		},
		{
			name:    "wrapped code",
			err:     fmt.Errorf("fetching batch 3: %w", errors.New("FLOOD_WAIT_120 (caused by messages.GetHistory)")),
			seconds: 120,
			ok:      true,
		},
		{
			name:    "plain text form",
			err:     errors.New("A wait of 30 seconds is required (caused by messages.GetHistory)"),
			seconds: 30,
			ok:      true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection reset by peer"),
		},
		{
			name: "nil",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seconds, ok := AsFloodWait(tt.err)
			if ok != tt.ok || seconds != tt.seconds {
				t.Errorf("AsFloodWait(%v) = (%d, %v), want (%d, %v)", tt.err, seconds, ok, tt.seconds, tt.ok)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"401 unauthorized", tgerr.New(401, "AUTH_KEY_UNREGISTERED"), true},
		{"session password needed", tgerr.New(401, "SESSION_PASSWORD_NEEDED"), true},
		{"auth key text", errors.New("callback: AUTH_KEY_DUPLICATED"), true},
		{"flood wait", tgerr.New(420, "FLOOD_WAIT_5"), false},
		{"transport", errors.New("connection reset by peer"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnauthorized(tt.err); got != tt.want {
				t.Errorf("IsUnauthorized(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
