package chat

import "time"

// Room is a persisted chat room (spec.md §3), grounded on the original's
// ChatRoom.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Active    bool
	// SettingsJSON carries any per-room override of the default runner
	// model / system prompt / bound KB, serialized the way the original
	// stores its settings_str column.
	SettingsJSON string
}

// Message is one persisted turn in a room's history (spec.md §3), grounded
// on the original's RoomMessage. RAGSources is nil for turns that carried
// no RAG context (as opposed to an empty-but-present "[]", which means RAG
// ran and found nothing relevant — see Run's context_text_no_rag handling).
type Message struct {
	ID         int64
	RoomID     string
	Username   string
	Role       string // "system" | "user" | "assistant"
	Content    string
	RAGSources *string // json(reranked_sources), or nil if RAG wasn't used this turn
	Timestamp  time.Time
	Failed     bool
}

// Progress reuses pkg/runner.Progress as the Chat Orchestrator's per-token
// update shape instead of redeclaring an identical MessageProgress type:
// §4.9's on_progress callback and §4.4's streaming ProgressFunc describe
// the same event.
