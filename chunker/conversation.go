package chunker

import (
	"fmt"
	"strings"
)

// Message represents a single conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChunkConversation splits a conversation transcript into chunks of at
// most maxMessages turns each. Turns are rendered as "role: content"
// blocks; offsets index into the message list rather than a character
// stream.
func (c *Chunker) ChunkConversation(conversationID string, messages []Message, maxMessages int) []Chunk {
	if len(messages) == 0 {
		return nil
	}
	if maxMessages <= 0 {
		maxMessages = 10
	}

	total := (len(messages) + maxMessages - 1) / maxMessages
	chunks := make([]Chunk, 0, total)

	for start := 0; start < len(messages); start += maxMessages {
		end := start + maxMessages
		if end > len(messages) {
			end = len(messages)
		}

		parts := make([]string, 0, end-start)
		for _, msg := range messages[start:end] {
			parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
		}
		text := strings.Join(parts, "\n\n")

		index := start / maxMessages
		chunks = append(chunks, Chunk{
			ID:              ChunkID(conversationID, index),
			Text:            text,
			StartOffset:     start,
			EndOffset:       end,
			Index:           index,
			TotalInDocument: total,
			TokenCount:      c.count(text),
			Metadata: map[string]any{
				"document_id":   conversationID,
				"content_type":  "conversation",
				"message_count": end - start,
			},
		})
	}
	return chunks
}
