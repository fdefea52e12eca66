// Package contextbudget splits a model context window into fixed shares
// and packs persona-visible file chunks into the file share. Chunks are
// all-or-nothing; a chunk that does not fit whole is skipped.
package contextbudget

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/llm/tokenizer"
	"github.com/parley-ai/parley/types"
)

// Config fixes the window size and its fractional shares.
type Config struct {
	// WindowTokens is the total model context window.
	WindowTokens int `yaml:"window_tokens" json:"window_tokens"`
	// HistoryShare, FileShare and SystemShare split the window. They should
	// sum to 1; New normalizes them when they do not.
	HistoryShare float64 `yaml:"history_share" json:"history_share"`
	FileShare    float64 `yaml:"file_share" json:"file_share"`
	SystemShare  float64 `yaml:"system_share" json:"system_share"`
}

// DefaultConfig returns the 50/30/20 split over a 16k window.
func DefaultConfig() Config {
	return Config{
		WindowTokens: 16384,
		HistoryShare: 0.5,
		FileShare:    0.3,
		SystemShare:  0.2,
	}
}

// Budgeter computes token budgets and selects file context.
type Budgeter struct {
	cfg    Config
	tok    tokenizer.Tokenizer
	logger *zap.Logger
}

// New creates a budgeter. Shares that do not sum to 1 are normalized so
// the three budgets always partition the window.
func New(cfg Config, tok tokenizer.Tokenizer, logger *zap.Logger) *Budgeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.WindowTokens <= 0 {
		cfg.WindowTokens = def.WindowTokens
	}
	if cfg.HistoryShare <= 0 && cfg.FileShare <= 0 && cfg.SystemShare <= 0 {
		cfg.HistoryShare = def.HistoryShare
		cfg.FileShare = def.FileShare
		cfg.SystemShare = def.SystemShare
	}
	total := cfg.HistoryShare + cfg.FileShare + cfg.SystemShare
	if total > 0 && total != 1 {
		cfg.HistoryShare /= total
		cfg.FileShare /= total
		cfg.SystemShare /= total
	}
	return &Budgeter{
		cfg:    cfg,
		tok:    tok,
		logger: logger.With(zap.String("component", "context_budgeter")),
	}
}

// HistoryBudget is the token allotment for conversation history.
func (b *Budgeter) HistoryBudget() int {
	return int(float64(b.cfg.WindowTokens) * b.cfg.HistoryShare)
}

// FileBudget is the token allotment for uploaded-file context.
func (b *Budgeter) FileBudget() int {
	return int(float64(b.cfg.WindowTokens) * b.cfg.FileShare)
}

// SystemBudget is the token allotment for the system prompt.
func (b *Budgeter) SystemBudget() int {
	return int(float64(b.cfg.WindowTokens) * b.cfg.SystemShare)
}

// Selection is the result of packing file chunks into a budget.
type Selection struct {
	// Chunks holds the selected chunks in inclusion order.
	Chunks []SelectedChunk
	// PromptBlock is the formatted text block for prompt injection. Empty
	// when nothing was selected.
	PromptBlock string
	// TokensUsed is the token total of the selected chunks.
	TokensUsed int
}

// SelectedChunk ties a chunk back to the file it came from.
type SelectedChunk struct {
	FileID   string
	FileName string
	Chunk    types.FileChunk
}

// SelectFilesWithinBudget greedily packs whole chunks from the files
// visible to the persona, newest file first, until the next chunk no
// longer fits. Partial chunks are never included.
func (b *Budgeter) SelectFilesWithinBudget(conv *types.Conversation, personaID string, budget int) Selection {
	var sel Selection
	if budget <= 0 {
		return sel
	}

	// Greedy with a hard stop: selection ends at the first chunk that no
	// longer fits, preserving document order within the budget.
	remaining := budget
pack:
	for _, f := range conv.VisibleFiles(personaID) {
		for _, chunk := range f.Chunks {
			cost := chunk.TokenCount
			if cost <= 0 {
				cost = b.tok.CountTokens(chunk.Content)
			}
			if cost > remaining {
				break pack
			}
			sel.Chunks = append(sel.Chunks, SelectedChunk{
				FileID:   f.ID,
				FileName: f.Name,
				Chunk:    chunk,
			})
			sel.TokensUsed += cost
			remaining -= cost
		}
	}

	sel.PromptBlock = formatPromptBlock(sel.Chunks)

	b.logger.Debug("file context selected",
		zap.String("conversation_id", conv.ID),
		zap.String("persona_id", personaID),
		zap.Int("budget", budget),
		zap.Int("tokens_used", sel.TokensUsed),
		zap.Int("chunks", len(sel.Chunks)),
	)
	return sel
}

// SelectForPersona packs chunks into the configured file share.
func (b *Budgeter) SelectForPersona(conv *types.Conversation, personaID string) Selection {
	return b.SelectFilesWithinBudget(conv, personaID, b.FileBudget())
}

// CanAddFileContext reports whether a prospective file would still fit in
// the file-context budget alongside the conversation's existing files.
// Pure dry run; nothing is mutated. Used at upload time to reject
// oversized additions early.
func (b *Budgeter) CanAddFileContext(conv *types.Conversation, prospective types.FileContext) bool {
	total := fileTokens(prospective)
	for _, f := range conv.Files {
		total += fileTokens(f)
	}
	return total <= b.FileBudget()
}

// TrimHistory returns the longest suffix of msgs that fits the history
// budget, dropping oldest messages first.
func (b *Budgeter) TrimHistory(msgs []types.Message) []types.Message {
	budget := b.HistoryBudget()
	for start := 0; start < len(msgs); start++ {
		if b.tok.CountMessages(msgs[start:]) <= budget {
			return msgs[start:]
		}
	}
	return nil
}

func fileTokens(f types.FileContext) int {
	if f.TokenCount > 0 {
		return f.TokenCount
	}
	total := 0
	for _, c := range f.Chunks {
		total += c.TokenCount
	}
	return total
}

// formatPromptBlock renders selected chunks grouped under per-file
// headers, preserving inclusion order.
func formatPromptBlock(chunks []SelectedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant uploaded files:\n")
	lastFile := ""
	for _, sc := range chunks {
		if sc.FileID != lastFile {
			fmt.Fprintf(&b, "\n--- %s ---\n", sc.FileName)
			lastFile = sc.FileID
		}
		b.WriteString(sc.Chunk.Content)
		b.WriteString("\n")
	}
	return b.String()
}
