// Property-based tests for the middleware access checks.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"loyalty-bot/internal/config"
)

// TestAdminCheckProperty checks that a user is recognized as admin exactly
// when their ID appears in the configured list.
func TestAdminCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if cfg.IsAdmin(userID) != expected {
			t.Fatalf("admin check mismatch: userID=%d, adminIDs=%v, expected=%v",
				userID, adminIDs, expected)
		}
	})
}

// TestKnownAdminAlwaysRecognized checks that every configured admin passes
// the check.
func TestKnownAdminAlwaysRecognized(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		idx := rapid.IntRange(0, numAdmins-1).Draw(t, "adminIndex")
		if !cfg.IsAdmin(adminIDs[idx]) {
			t.Fatalf("known admin %d not recognized, adminIDs=%v", adminIDs[idx], adminIDs)
		}
	})
}

// TestWhitelistCheckProperty checks chat whitelist membership, including
// the open-by-default behavior of an empty whitelist.
func TestWhitelistCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(0, 10).Draw(t, "numChats")
		chats := make([]int64, numChats)
		for i := 0; i < numChats; i++ {
			chats[i] = rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{Chats: chats},
		}

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "probeChatID")

		expected := numChats == 0
		for _, id := range chats {
			if id == chatID {
				expected = true
				break
			}
		}

		if cfg.IsChatAllowed(chatID) != expected {
			t.Fatalf("whitelist check mismatch: chatID=%d, chats=%v, expected=%v",
				chatID, chats, expected)
		}
	})
}
