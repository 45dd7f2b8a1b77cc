package bridge

import (
	"context"
	"encoding/json"

	"github.com/sahilm/fuzzy"

	"github.com/searchlet/chatbridge/internal/core"
)

// GetRecentChats asks the page for the chat titles currently loaded in the
// visible chat list.
func (b *Bridge) GetRecentChats(ctx context.Context) ([]core.ChatInfo, error) {
	env, err := b.ExecuteCommand(ctx, CommandListChats, nil)
	if err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, core.ErrState(core.CodeCommandFailed, env.Error)
	}

	var chats []core.ChatInfo
	if err := json.Unmarshal(env.Result, &chats); err != nil {
		return nil, core.ErrState(core.CodeCommandFailed, "malformed chat list").WithCause(err)
	}
	return chats, nil
}

// SyncSpecificChats performs a bounded, targeted sync of the named chats.
// Requested names are fuzzy-resolved against the currently loaded titles
// first, so "alice r" finds "Alice Rodriguez"; names with no plausible match
// pass through unchanged and the page reports them per-chat.
func (b *Bridge) SyncSpecificChats(ctx context.Context, names []string) ([]core.ChatSyncResult, error) {
	if len(names) == 0 {
		return nil, core.ErrValidation(core.CodeEmptyChatList, "at least one chat name is required")
	}

	loaded, err := b.GetRecentChats(ctx)
	if err != nil {
		return nil, err
	}
	resolved := resolveChatNames(names, loaded)

	env, err := b.ExecuteCommand(ctx, CommandSyncChats, map[string]interface{}{
		"names": resolved,
	})
	if err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, core.ErrState(core.CodeCommandFailed, env.Error)
	}

	var results []core.ChatSyncResult
	if err := json.Unmarshal(env.Result, &results); err != nil {
		return nil, core.ErrState(core.CodeCommandFailed, "malformed sync results").WithCause(err)
	}
	return results, nil
}

func resolveChatNames(requested []string, loaded []core.ChatInfo) []string {
	titles := make([]string, len(loaded))
	for i, chat := range loaded {
		titles[i] = chat.Name
	}

	resolved := make([]string, len(requested))
	for i, name := range requested {
		matches := fuzzy.Find(name, titles)
		if len(matches) > 0 {
			resolved[i] = titles[matches[0].Index]
		} else {
			resolved[i] = name
		}
	}
	return resolved
}
