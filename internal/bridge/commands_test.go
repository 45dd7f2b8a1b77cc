package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/logging"
)

// pageScript simulates the in-page command handler for chat commands.
func pageScript(t *testing.T, chats []string, snippets map[string][]string) func(context.Context, string) (interface{}, error) {
	return func(_ context.Context, expr string) (interface{}, error) {
		switch {
		case strings.Contains(expr, `"type":"LIST_CHATS"`):
			result := make([]map[string]string, len(chats))
			for i, name := range chats {
				result[i] = map[string]string{"name": name}
			}
			return replyForExpr(t, expr, result, ""), nil

		case strings.Contains(expr, `"type":"SYNC_CHATS"`):
			// Echo back per-chat results for every requested name.
			var results []map[string]interface{}
			for name, snips := range snippets {
				if strings.Contains(expr, name) {
					results = append(results, map[string]interface{}{
						"name": name, "snippets": snips, "success": true,
					})
				}
			}
			return replyForExpr(t, expr, results, ""), nil
		}
		t.Fatalf("unexpected command expression: %s", expr)
		return nil, nil
	}
}

func TestGetRecentChats(t *testing.T) {
	eval := &fakeEvaluator{fn: pageScript(t, []string{"Alice Rodriguez", "Bob"}, nil)}
	b := New(bridgeConfig(), eval, runningStatus{true}, logging.NewNop())
	b.Start()
	defer b.Stop()

	chats, err := b.GetRecentChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "Alice Rodriguez", chats[0].Name)
}

func TestGetRecentChats_PageError(t *testing.T) {
	eval := &fakeEvaluator{}
	eval.fn = func(_ context.Context, expr string) (interface{}, error) {
		return replyForExpr(t, expr, nil, "chat list not rendered"), nil
	}
	b := New(bridgeConfig(), eval, runningStatus{true}, logging.NewNop())
	b.Start()
	defer b.Stop()

	_, err := b.GetRecentChats(context.Background())
	assert.Equal(t, core.CodeCommandFailed, core.GetCode(err))
}

func TestSyncSpecificChats_EmptyNames(t *testing.T) {
	b := New(bridgeConfig(), &fakeEvaluator{}, runningStatus{true}, logging.NewNop())

	_, err := b.SyncSpecificChats(context.Background(), nil)
	assert.Equal(t, core.CodeEmptyChatList, core.GetCode(err))
}

func TestSyncSpecificChats_FuzzyResolution(t *testing.T) {
	eval := &fakeEvaluator{fn: pageScript(t,
		[]string{"Alice Rodriguez", "Bob Marley"},
		map[string][]string{"Alice Rodriguez": {"hi", "see you"}},
	)}
	b := New(bridgeConfig(), eval, runningStatus{true}, logging.NewNop())
	b.Start()
	defer b.Stop()

	// "alice r" must resolve against the loaded title.
	results, err := b.SyncSpecificChats(context.Background(), []string{"alice r"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Alice Rodriguez", results[0].Name)
	assert.True(t, results[0].Success)
	assert.Equal(t, []string{"hi", "see you"}, results[0].Snippets)
}

func TestResolveChatNames(t *testing.T) {
	loaded := []core.ChatInfo{{Name: "Alice Rodriguez"}, {Name: "Work Group"}}

	resolved := resolveChatNames([]string{"alice", "work", "Unknown Person"}, loaded)
	assert.Equal(t, "Alice Rodriguez", resolved[0])
	assert.Equal(t, "Work Group", resolved[1])
	assert.Equal(t, "Unknown Person", resolved[2], "unmatched names pass through")
}
