package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePromptStoreResolvesNestedRefs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "intake"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intake", "brief.md"), []byte("Summarize the request."), 0o644))

	store := NewFilePromptStore(dir)
	prompt, err := store.TaskPrompt(context.Background(), "intake/brief")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the request.", prompt)
}

func TestFilePromptStoreCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draft.md")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	store := NewFilePromptStore(dir)
	first, err := store.TaskPrompt(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "original", first)

	// A later file change is not observed; prompts are cached per ref.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	second, err := store.TaskPrompt(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "original", second)
}

func TestFilePromptStoreRejectsBadRefs(t *testing.T) {
	store := NewFilePromptStore(t.TempDir())
	ctx := context.Background()

	_, err := store.TaskPrompt(ctx, "")
	require.Error(t, err)

	_, err = store.TaskPrompt(ctx, "../etc/passwd")
	require.Error(t, err)

	_, err = store.TaskPrompt(ctx, "missing")
	require.Error(t, err)
}
