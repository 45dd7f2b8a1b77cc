package core

import "time"

// BufferedMessage is a single piece of content observed by the in-page
// script. Messages are created page-side, deduplicated by ID within a flush
// window, drained exclusively by the flush, and never mutated after creation.
type BufferedMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	ChatName  string    `json:"chat_name,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsFromMe  bool      `json:"is_from_me"`
}

// ChatInfo identifies a chat currently loaded in the page's chat list.
type ChatInfo struct {
	Name string `json:"name"`
}

// ChatSyncResult is the per-chat outcome of a targeted sync.
type ChatSyncResult struct {
	Name     string   `json:"name"`
	Snippets []string `json:"snippets,omitempty"`
	Error    string   `json:"error,omitempty"`
	Success  bool     `json:"success"`
}
