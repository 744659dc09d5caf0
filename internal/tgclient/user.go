package tgclient

import (
	"fmt"

	"github.com/gotd/td/tg"
)

// UserDisplayName returns a human-readable display name for a user:
// "FirstName LastName", falling back to the username, then "User#ID".
func UserDisplayName(user *tg.User) string {
	name := user.FirstName
	if user.LastName != "" {
		if name != "" {
			name += " "
		}
		name += user.LastName
	}
	if name == "" && user.Username != "" {
		return user.Username
	}
	if name == "" {
		return fmt.Sprintf("User#%d", user.ID)
	}
	return name
}
