package conversation

import "fmt"

// SessionKey is the cache key for one user's view of a conversation.
func SessionKey(userID int64, conversationID string) string {
	return fmt.Sprintf("session:%d:%s", userID, conversationID)
}

// ContextKey is the cache key for a conversation's recent-context window of
// the given size.
func ContextKey(conversationID string, limit int) string {
	return fmt.Sprintf("context:%s:%d", conversationID, limit)
}

// sessionPattern matches every user's session entry for the conversation.
func sessionPattern(conversationID string) string {
	return fmt.Sprintf("session:*:%s", conversationID)
}

// contextPattern matches every context window cached for the conversation.
func contextPattern(conversationID string) string {
	return fmt.Sprintf("context:%s:*", conversationID)
}
