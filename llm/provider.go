// Package llm defines the externally supplied capabilities the workflow
// engine depends on: text completion, prompt lookup, and document schema
// validation. The engine treats these as injected collaborators; timeout and
// retry policy for the completion path belongs to the provider, not the
// engine.
package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions tunes a completion request. Zero values defer to the
// provider's defaults.
type CompleteOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Provider is the completion capability: complete(messages) -> text.
type Provider interface {
	// Complete returns the assistant text for the given conversation.
	Complete(ctx context.Context, messages []Message, opts *CompleteOptions) (string, error)
	// Name identifies the provider for logging and metrics.
	Name() string
}

// PromptStore resolves a task reference to its prompt text.
type PromptStore interface {
	TaskPrompt(ctx context.Context, ref string) (string, error)
}

// SchemaValidator checks a produced document against a referenced schema.
type SchemaValidator interface {
	// Validate returns whether the document is valid and the violations
	// found. The error return is for validator infrastructure failures, not
	// for invalid documents.
	Validate(ctx context.Context, document map[string]any, schemaRef string) (bool, []string, error)
}

// FilePromptStore loads prompts from a directory, one file per task ref.
// A ref "intake/brief" resolves to <dir>/intake/brief.md. Loaded prompts are
// cached for the life of the store.
type FilePromptStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string
}

// NewFilePromptStore creates a prompt store rooted at dir.
func NewFilePromptStore(dir string) *FilePromptStore {
	return &FilePromptStore{dir: dir, cache: make(map[string]string)}
}

// TaskPrompt returns the prompt text for a task ref.
func (s *FilePromptStore) TaskPrompt(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("task ref is empty")
	}
	if strings.Contains(ref, "..") {
		return "", fmt.Errorf("invalid task ref %q", ref)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[ref]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, ref+".md"))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %q: %w", ref, err)
	}
	prompt := string(data)

	s.mu.Lock()
	s.cache[ref] = prompt
	s.mu.Unlock()
	return prompt, nil
}
