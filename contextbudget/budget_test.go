package contextbudget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/llm/tokenizer"
	"github.com/parley-ai/parley/types"
)

func newBudgeter(window int) *Budgeter {
	cfg := DefaultConfig()
	cfg.WindowTokens = window
	return New(cfg, tokenizer.NewEstimator(), zap.NewNop())
}

func fileWithChunks(id string, uploadedAt time.Time, personaID string, tokens ...int) types.FileContext {
	f := types.FileContext{
		ID:         id,
		Name:       id + ".txt",
		PersonaID:  personaID,
		UploadedAt: uploadedAt,
	}
	for i, n := range tokens {
		f.Chunks = append(f.Chunks, types.FileChunk{Index: i, Content: "chunk", TokenCount: n})
		f.TokenCount += n
	}
	return f
}

func TestSharesPartitionWindow(t *testing.T) {
	t.Parallel()
	b := newBudgeter(10000)
	assert.Equal(t, 5000, b.HistoryBudget())
	assert.Equal(t, 3000, b.FileBudget())
	assert.Equal(t, 2000, b.SystemBudget())
}

func TestSharesNormalized(t *testing.T) {
	t.Parallel()
	b := New(Config{
		WindowTokens: 1000,
		HistoryShare: 1,
		FileShare:    1,
		SystemShare:  2,
	}, tokenizer.NewEstimator(), zap.NewNop())
	assert.Equal(t, 250, b.HistoryBudget())
	assert.Equal(t, 250, b.FileBudget())
	assert.Equal(t, 500, b.SystemBudget())
}

func TestSelectPacksWholeChunksNewestFirst(t *testing.T) {
	t.Parallel()
	b := newBudgeter(10000)
	now := time.Now()
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	conv.Files = []types.FileContext{
		fileWithChunks("old", now.Add(-time.Hour), "", 100, 100),
		fileWithChunks("new", now, "", 150, 150),
	}

	sel := b.SelectFilesWithinBudget(conv, "p1", 400)

	require.Len(t, sel.Chunks, 3)
	assert.Equal(t, "new", sel.Chunks[0].FileID)
	assert.Equal(t, "new", sel.Chunks[1].FileID)
	assert.Equal(t, "old", sel.Chunks[2].FileID)
	assert.Equal(t, 400, sel.TokensUsed)
	assert.Contains(t, sel.PromptBlock, "new.txt")
	assert.Contains(t, sel.PromptBlock, "old.txt")
}

func TestSelectStopsAtFirstMisfit(t *testing.T) {
	t.Parallel()
	b := newBudgeter(10000)
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	conv.Files = []types.FileContext{
		fileWithChunks("doc", time.Now(), "", 100, 500, 50),
	}

	sel := b.SelectFilesWithinBudget(conv, "p1", 200)

	// The 500-token chunk ends selection; the later 50-token chunk is not
	// pulled ahead of it.
	require.Len(t, sel.Chunks, 1)
	assert.Equal(t, 100, sel.TokensUsed)
}

func TestSelectBudgetSmallerThanSmallestChunk(t *testing.T) {
	t.Parallel()
	b := newBudgeter(10000)
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	conv.Files = []types.FileContext{
		fileWithChunks("doc", time.Now(), "", 300, 400),
	}

	sel := b.SelectFilesWithinBudget(conv, "p1", 250)

	assert.Empty(t, sel.Chunks, "no partial chunks, ever")
	assert.Zero(t, sel.TokensUsed)
	assert.Empty(t, sel.PromptBlock)
}

func TestSelectRespectsVisibility(t *testing.T) {
	t.Parallel()
	b := newBudgeter(10000)
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}, {ID: "p2", Name: "Grace"}}, 20)
	conv.Files = []types.FileContext{
		fileWithChunks("shared", time.Now(), "", 100),
		fileWithChunks("private", time.Now().Add(time.Second), "p2", 100),
	}

	sel := b.SelectFilesWithinBudget(conv, "p1", 1000)
	require.Len(t, sel.Chunks, 1)
	assert.Equal(t, "shared", sel.Chunks[0].FileID)

	sel = b.SelectFilesWithinBudget(conv, "p2", 1000)
	assert.Len(t, sel.Chunks, 2)
}

func TestCanAddFileContextDryRun(t *testing.T) {
	t.Parallel()
	b := newBudgeter(1000) // file budget 300
	conv := types.NewConversation("u1", []types.Persona{{ID: "p1", Name: "Ada"}}, 20)
	conv.Files = []types.FileContext{
		fileWithChunks("existing", time.Now(), "", 200),
	}
	before := len(conv.Files)

	assert.True(t, b.CanAddFileContext(conv, fileWithChunks("small", time.Now(), "", 100)))
	assert.False(t, b.CanAddFileContext(conv, fileWithChunks("big", time.Now(), "", 150)))
	assert.Equal(t, before, len(conv.Files), "dry run must not mutate the conversation")
}

func TestTrimHistoryDropsOldestFirst(t *testing.T) {
	t.Parallel()
	b := New(Config{WindowTokens: 100, HistoryShare: 0.5, FileShare: 0.3, SystemShare: 0.2},
		tokenizer.NewEstimator(), zap.NewNop())

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	msgs := []types.Message{
		types.NewUserMessage(string(long)), // ~104 tokens, over budget alone
		types.NewUserMessage("short"),
		types.NewUserMessage("also short"),
	}

	trimmed := b.TrimHistory(msgs)
	require.Len(t, trimmed, 2)
	assert.Equal(t, msgs[1].ID, trimmed[0].ID)
}
