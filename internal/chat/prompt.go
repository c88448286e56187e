package chat

import (
	"fmt"
	"strings"

	"github.com/kalambet/vaani/internal/groq"
	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
)

// historySystemPrompt instructs the model to answer from conversation
// history alone and to report, as strict JSON, whether it could.
const historySystemPrompt = `You are a helpful assistant that answers questions using conversation history.

You will be given the recent conversation history and a new user question.
Try to answer the question using ONLY the information available in the conversation history.

IMPORTANT: You MUST respond with a valid JSON object in one of these two formats:

If you CAN answer from the conversation history:
{"status": "success", "content": "<your answer here>"}

If you CANNOT answer because the history doesn't contain enough information:
{"status": "failure", "content": "Need more context"}

Rules:
- Only return the JSON object, nothing else.
- Do NOT make up information not present in the history.
- If the question is a follow-up that can be answered from prior messages, return success.
- If the question is about something not discussed before, return failure.`

// retrievalSystemPrompt instructs the model to answer from retrieved
// article chunks, with recent history available for follow-up context.
const retrievalSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.

You will be given:
1. Recent conversation history (for follow-up context)
2. Retrieved information from a knowledge base

Use the retrieved information to answer the question. You may also use the
conversation history for understanding context. Keep your answer concise and accurate.
If the answer is not in the provided information, say so.`

// formatHistory renders messages as "User:"/"Assistant:" lines.
func formatHistory(history []storage.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		label := "Assistant"
		if m.Role == storage.RoleUser {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// formatChunks renders retrieved chunks as numbered context blocks
// separated by horizontal rules.
func formatChunks(chunks []retrieval.ContextChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Chunk %d]\n%s", i+1, c.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// buildHistoryMessages builds the phase one request: the full sliding
// window plus the new question, expecting a JSON verdict back.
func buildHistoryMessages(question string, history []storage.Message) []groq.Message {
	var b strings.Builder
	b.WriteString("Conversation history:\n")
	b.WriteString(formatHistory(history))
	b.WriteString("\n\nNew question: ")
	b.WriteString(question)
	b.WriteString("\n\nRespond with JSON:")

	return []groq.Message{
		{Role: "system", Content: historySystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// buildRetrievalMessages builds the phase two request from retrieved
// chunks and the tail of the history window.
func buildRetrievalMessages(question string, history []storage.Message, chunks []retrieval.ContextChunk) []groq.Message {
	var b strings.Builder
	if len(history) > 0 {
		tail := history
		if len(tail) > retrievalHistoryTurns {
			tail = tail[len(tail)-retrievalHistoryTurns:]
		}
		b.WriteString("Recent conversation:\n")
		b.WriteString(formatHistory(tail))
		b.WriteString("\n\n")
	}
	b.WriteString("Retrieved context:\n")
	b.WriteString(formatChunks(chunks))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	return []groq.Message{
		{Role: "system", Content: retrievalSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
